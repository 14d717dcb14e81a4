package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/snowgate/auth"
	"github.com/BaSui01/snowgate/identity"
	"github.com/BaSui01/snowgate/registry"
	"github.com/BaSui01/snowgate/types"
)

// fakeProvider records invocations and returns canned results.
type fakeProvider struct {
	calls       atomic.Int64
	lastOp      atomic.Value
	lastCred    atomic.Value
	err         error
	delay       time.Duration
}

func (p *fakeProvider) Invoke(ctx context.Context, operation string, args json.RawMessage, id *types.IdentityContext) (json.RawMessage, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.calls.Add(1)
	p.lastOp.Store(operation)
	if id != nil {
		p.lastCred.Store(id.Credential())
	}
	if p.err != nil {
		return nil, p.err
	}
	return json.RawMessage(`{"ok": true}`), nil
}

func fixedPlanner(ops ...string) Planner {
	return PlannerFunc(func(ctx context.Context, task *types.Task, toolset registry.ScopedToolset) ([]Invocation, error) {
		plan := make([]Invocation, 0, len(ops))
		for _, op := range ops {
			plan = append(plan, Invocation{Operation: op})
		}
		return plan, nil
	})
}

func incidentToolset(t *testing.T) registry.ScopedToolset {
	t.Helper()
	reg := registry.NewRegistry(zap.NewNop())
	require.NoError(t, reg.Register(types.Capability{Name: "get_incident", Tags: []string{"incidents"}}))
	require.NoError(t, reg.Register(types.Capability{Name: "create_incident", Tags: []string{"incidents"}}))
	reg.Freeze()
	return registry.NewPartitioner(reg, zap.NewNop()).Scope("incidents")
}

func testTask(id *types.IdentityContext) *types.Task {
	return &types.Task{
		ID:          "t-1",
		Description: "Get incident INC0010004",
		Identity:    id,
		CreatedAt:   time.Now(),
	}
}

func TestWorker_Execute(t *testing.T) {
	provider := &fakeProvider{}
	w := NewWorker(incidentToolset(t), provider, fixedPlanner("get_incident"), nil, WorkerConfig{}, zap.NewNop())

	res := w.Execute(context.Background(), testTask(types.NewIdentityContext("abc")))
	require.True(t, res.Succeeded(), "unexpected error: %s", res.Error)
	assert.Equal(t, "incidents", res.Tag)
	assert.JSONEq(t, `{"ok": true}`, string(res.Output))
	assert.Equal(t, int64(1), provider.calls.Load())
	assert.Equal(t, "abc", provider.lastCred.Load())
}

func TestWorker_EmptyToolset(t *testing.T) {
	provider := &fakeProvider{}
	empty := registry.ScopedToolset{Tag: "billing"}
	w := NewWorker(empty, provider, KeywordPlanner{}, nil, WorkerConfig{}, zap.NewNop())

	res := w.Execute(context.Background(), testTask(types.NewIdentityContext("abc")))
	assert.False(t, res.Succeeded())
	assert.Equal(t, types.ErrNoCapability, res.ErrorCode)
	assert.Equal(t, int64(0), provider.calls.Load())
}

func TestWorker_OperationOutsideToolset(t *testing.T) {
	provider := &fakeProvider{}
	w := NewWorker(incidentToolset(t), provider, fixedPlanner("get_cmdb"), nil, WorkerConfig{}, zap.NewNop())

	res := w.Execute(context.Background(), testTask(types.NewIdentityContext("abc")))
	assert.Equal(t, types.ErrNoCapability, res.ErrorCode)
	assert.Equal(t, int64(0), provider.calls.Load())
}

func TestWorker_MultipleInvocations(t *testing.T) {
	provider := &fakeProvider{}
	w := NewWorker(incidentToolset(t), provider, fixedPlanner("get_incident", "create_incident"), nil, WorkerConfig{}, zap.NewNop())

	res := w.Execute(context.Background(), testTask(types.NewIdentityContext("abc")))
	require.True(t, res.Succeeded())
	assert.Equal(t, int64(2), provider.calls.Load())

	var outputs []invocationOutput
	require.NoError(t, json.Unmarshal(res.Output, &outputs))
	assert.Equal(t, "get_incident", outputs[0].Operation)
	assert.Equal(t, "create_incident", outputs[1].Operation)
}

func TestWorker_DelegationSuccessUsesExchangedToken(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token": "xyz", "expires_in": 3600}`)
	}))
	defer idp.Close()

	exchanger := newTestExchanger(t, idp.URL, idp.Client())
	provider := &fakeProvider{}
	w := NewWorker(incidentToolset(t), provider, fixedPlanner("get_incident"), exchanger, WorkerConfig{}, zap.NewNop())

	res := w.Execute(context.Background(), testTask(types.NewIdentityContext("abc")))
	require.True(t, res.Succeeded())
	assert.Equal(t, "xyz", provider.lastCred.Load())
}

func TestWorker_DelegationFailureSkipsInvocation(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer idp.Close()

	exchanger := newTestExchanger(t, idp.URL, idp.Client())
	provider := &fakeProvider{}
	w := NewWorker(incidentToolset(t), provider, fixedPlanner("get_incident"), exchanger, WorkerConfig{}, zap.NewNop())

	res := w.Execute(context.Background(), testTask(types.NewIdentityContext("abc")))
	assert.Equal(t, types.ErrTokenExchange, res.ErrorCode)
	assert.Equal(t, int64(0), provider.calls.Load(), "invoke must not run after a failed exchange")
}

func TestWorker_ProviderError(t *testing.T) {
	provider := &fakeProvider{err: types.NewError(types.ErrUpstream, "servicenow returned 500")}
	w := NewWorker(incidentToolset(t), provider, fixedPlanner("get_incident"), nil, WorkerConfig{}, zap.NewNop())

	res := w.Execute(context.Background(), testTask(types.NewIdentityContext("abc")))
	assert.Equal(t, types.ErrUpstream, res.ErrorCode)
	assert.Contains(t, res.Error, "servicenow")
}

func TestWorker_Timeout(t *testing.T) {
	provider := &fakeProvider{delay: 200 * time.Millisecond}
	w := NewWorker(incidentToolset(t), provider, fixedPlanner("get_incident"), nil,
		WorkerConfig{Timeout: 20 * time.Millisecond}, zap.NewNop())

	res := w.Execute(context.Background(), testTask(types.NewIdentityContext("abc")))
	assert.Equal(t, types.ErrTimeout, res.ErrorCode)
}

func TestWorker_Canceled(t *testing.T) {
	provider := &fakeProvider{delay: time.Second}
	w := NewWorker(incidentToolset(t), provider, fixedPlanner("get_incident"), nil, WorkerConfig{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := w.Execute(ctx, testTask(types.NewIdentityContext("abc")))
	assert.Equal(t, types.ErrCanceled, res.ErrorCode)
}

func TestKeywordPlanner(t *testing.T) {
	toolset := incidentToolset(t)

	plan, err := KeywordPlanner{}.Plan(context.Background(), testTask(nil), toolset)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, "get_incident", plan[0].Operation)

	var args map[string]string
	require.NoError(t, json.Unmarshal(plan[0].Arguments, &args))
	assert.Equal(t, "Get incident INC0010004", args["query"])
}

// newTestExchanger builds a delegation exchanger against a test endpoint.
func newTestExchanger(t *testing.T, endpoint string, client *http.Client) *identity.Exchanger {
	t.Helper()
	e, err := identity.NewExchanger(identity.Config{
		Enabled:      true,
		Audience:     "servicenow",
		ClientID:     "snowgate",
		ClientSecret: "secret",
	}, tokenEndpointStrategy{endpoint: endpoint}, client, zap.NewNop())
	require.NoError(t, err)
	return e
}

type tokenEndpointStrategy struct {
	endpoint string
}

func (s tokenEndpointStrategy) Type() auth.StrategyType { return auth.StrategyOIDCProxy }
func (s tokenEndpointStrategy) TokenEndpoint() string   { return s.endpoint }
func (s tokenEndpointStrategy) Verify(ctx context.Context, token string) (*auth.Claims, error) {
	return &auth.Claims{}, nil
}
