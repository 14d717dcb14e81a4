package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/snowgate/types"
)

func seededRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry(zap.NewNop())
	require.NoError(t, reg.Register(mkcap("get_incident", "incidents")))
	require.NoError(t, reg.Register(mkcap("create_incident", "incidents")))
	require.NoError(t, reg.Register(mkcap("get_cmdb", "cmdb")))
	return reg
}

func TestPartitioner_Scope(t *testing.T) {
	p := NewPartitioner(seededRegistry(t), zap.NewNop())

	incidents := p.Scope("incidents")
	assert.Equal(t, "incidents", incidents.Tag)
	assert.Equal(t, []string{"get_incident", "create_incident"}, incidents.Names())

	cmdb := p.Scope("cmdb")
	assert.Equal(t, []string{"get_cmdb"}, cmdb.Names())
}

func TestPartitioner_UnknownTagIsEmptyNotError(t *testing.T) {
	p := NewPartitioner(seededRegistry(t), zap.NewNop())

	billing := p.Scope("billing")
	assert.True(t, billing.Empty())
	assert.Equal(t, "billing", billing.Tag)
	assert.Empty(t, billing.Names())
}

func TestPartitioner_UnionSemantics(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	require.NoError(t, reg.Register(mkcap("query_table", "table_api", "cmdb")))
	p := NewPartitioner(reg, zap.NewNop())

	assert.True(t, p.Scope("table_api").Has("query_table"))
	assert.True(t, p.Scope("cmdb").Has("query_table"))
}

func TestPartitioner_CacheAfterFreeze(t *testing.T) {
	reg := seededRegistry(t)
	p := NewPartitioner(reg, zap.NewNop())

	// Before freeze every call recomputes from the live registry.
	assert.Len(t, p.Scope("incidents").Capabilities, 2)
	require.NoError(t, reg.Register(mkcap("resolve_incident", "incidents")))
	assert.Len(t, p.Scope("incidents").Capabilities, 3)

	reg.Freeze()
	first := p.Scope("incidents")
	second := p.Scope("incidents")
	assert.Equal(t, first.Names(), second.Names())
}

func TestPartitioner_Tags(t *testing.T) {
	p := NewPartitioner(seededRegistry(t), zap.NewNop())
	assert.Equal(t, []string{"cmdb", "incidents"}, p.Tags())
}

// Property: for every tag T, Scope(T).Capabilities is exactly the set of
// registered capabilities whose tag list contains T.
func TestPartitioner_ScopeMatchesFilter_Property(t *testing.T) {
	tagPool := []string{"incidents", "cmdb", "change_management", "hr", "devops"}

	rapid.Check(t, func(rt *rapid.T) {
		reg := NewRegistry(zap.NewNop())
		count := rapid.IntRange(0, 30).Draw(rt, "count")

		expected := make(map[string][]string)
		for i := 0; i < count; i++ {
			name := fmt.Sprintf("cap_%d", i)
			n := rapid.IntRange(1, len(tagPool)).Draw(rt, "tag_count")
			picked := rapid.SampledFrom([]int{0, 1, 2, 3, 4}).Draw(rt, "first")
			tags := []string{tagPool[picked]}
			for len(tags) < n {
				next := tagPool[rapid.IntRange(0, len(tagPool)-1).Draw(rt, "next")]
				dup := false
				for _, tg := range tags {
					if tg == next {
						dup = true
					}
				}
				if !dup {
					tags = append(tags, next)
				}
			}
			if err := reg.Register(types.Capability{Name: name, Tags: tags}); err != nil {
				rt.Fatalf("register: %v", err)
			}
			for _, tg := range tags {
				expected[tg] = append(expected[tg], name)
			}
		}
		reg.Freeze()

		p := NewPartitioner(reg, zap.NewNop())
		for _, tag := range tagPool {
			got := p.Scope(tag).Names()
			want := expected[tag]
			if len(got) != len(want) {
				rt.Fatalf("tag %s: got %v want %v", tag, got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					rt.Fatalf("tag %s: got %v want %v", tag, got, want)
				}
			}
		}
	})
}
