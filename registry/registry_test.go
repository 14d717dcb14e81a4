package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/snowgate/types"
)

func mkcap(name string, tags ...string) types.Capability {
	return types.Capability{Name: name, Tags: tags}
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	require.NoError(t, reg.Register(mkcap("get_incident", "incidents")))
	require.NoError(t, reg.Register(mkcap("create_incident", "incidents")))
	assert.Equal(t, 2, reg.Len())

	got, ok := reg.Get("get_incident")
	require.True(t, ok)
	assert.Equal(t, []string{"incidents"}, got.Tags)
}

func TestRegistry_DuplicateName(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	require.NoError(t, reg.Register(mkcap("get_incident", "incidents")))
	err := reg.Register(mkcap("get_incident", "cmdb"))
	require.Error(t, err)
	assert.Equal(t, types.ErrDuplicateCapability, types.GetErrorCode(err))
}

func TestRegistry_RejectsTaglessCapability(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	err := reg.Register(types.Capability{Name: "orphan"})
	require.Error(t, err)
}

func TestRegistry_FrozenRejectsRegistration(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	require.NoError(t, reg.Register(mkcap("get_incident", "incidents")))

	reg.Freeze()

	err := reg.Register(mkcap("late", "incidents"))
	require.Error(t, err)
	assert.Equal(t, types.ErrConfig, types.GetErrorCode(err))
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_ListPreservesRegistrationOrder(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	names := []string{"c", "a", "b"}
	for _, n := range names {
		require.NoError(t, reg.Register(mkcap(n, "t")))
	}

	listed := reg.List()
	require.Len(t, listed, 3)
	for i, n := range names {
		assert.Equal(t, n, listed[i].Name)
	}
}
