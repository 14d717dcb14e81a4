package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/snowgate/auth"
	"github.com/BaSui01/snowgate/types"
)

// endpointStrategy is a minimal delegation-capable Strategy for tests.
type endpointStrategy struct {
	endpoint string
}

func (s *endpointStrategy) Type() auth.StrategyType { return auth.StrategyOIDCProxy }
func (s *endpointStrategy) TokenEndpoint() string   { return s.endpoint }
func (s *endpointStrategy) Verify(ctx context.Context, token string) (*auth.Claims, error) {
	return &auth.Claims{Subject: "test"}, nil
}

func testConfig() Config {
	return Config{
		Enabled:      true,
		Audience:     "servicenow",
		Scopes:       "api",
		ClientID:     "snowgate",
		ClientSecret: "secret",
	}
}

func newTestExchanger(t *testing.T, endpoint string, client *http.Client) *Exchanger {
	t.Helper()
	e, err := NewExchanger(testConfig(), &endpointStrategy{endpoint: endpoint}, client, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, e)
	return e
}

func TestExchanger_WireContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, GrantTypeTokenExchange, r.PostForm.Get("grant_type"))
		assert.Equal(t, "abc", r.PostForm.Get("subject_token"))
		assert.Equal(t, TokenTypeAccessToken, r.PostForm.Get("subject_token_type"))
		assert.Equal(t, TokenTypeAccessToken, r.PostForm.Get("requested_token_type"))
		assert.Equal(t, "servicenow", r.PostForm.Get("audience"))
		assert.Equal(t, "api", r.PostForm.Get("scope"))

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "snowgate", user)
		assert.Equal(t, "secret", pass)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "xyz", "expires_in": 3600}`)
	}))
	defer srv.Close()

	e := newTestExchanger(t, srv.URL, srv.Client())
	ic := types.NewIdentityContext("abc")

	token, err := e.Authorize(context.Background(), ic)
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)
	assert.Equal(t, "xyz", ic.Credential())
}

func TestExchanger_ExchangeOncePerTask(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"access_token": "xyz", "expires_in": 3600}`)
	}))
	defer srv.Close()

	e := newTestExchanger(t, srv.URL, srv.Client())
	ic := types.NewIdentityContext("abc")

	// Concurrent branches of the same task share one exchange.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := e.Authorize(context.Background(), ic)
			assert.NoError(t, err)
			assert.Equal(t, "xyz", tok)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
}

func TestExchanger_NoCrossTaskLeakage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		// Each exchanged token embeds the subject it came from.
		fmt.Fprintf(w, `{"access_token": "for-%s", "expires_in": 3600}`, r.PostForm.Get("subject_token"))
	}))
	defer srv.Close()

	e := newTestExchanger(t, srv.URL, srv.Client())

	const n = 16
	var wg sync.WaitGroup
	tokens := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ic := types.NewIdentityContext(fmt.Sprintf("raw-%d", i))
			tok, err := e.Authorize(context.Background(), ic)
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.Equal(t, fmt.Sprintf("for-raw-%d", i), tokens[i])
	}
}

func TestExchanger_UpstreamRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid_grant"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	e := newTestExchanger(t, srv.URL, srv.Client())
	ic := types.NewIdentityContext("abc")

	_, err := e.Authorize(context.Background(), ic)
	require.Error(t, err)
	assert.Equal(t, types.ErrTokenExchange, types.GetErrorCode(err))

	// The raw credential stays in place; nothing was cached.
	_, cached := ic.Exchanged()
	assert.False(t, cached)
	assert.Equal(t, "abc", ic.Credential())
}

func TestExchanger_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"token_type": "Bearer"}`)
	}))
	defer srv.Close()

	e := newTestExchanger(t, srv.URL, srv.Client())
	_, err := e.Authorize(context.Background(), types.NewIdentityContext("abc"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_token")
}

func TestExchanger_ExpiredTokenIsReExchanged(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		fmt.Fprintf(w, `{"access_token": "tok-%d", "expires_in": 3600}`, n)
	}))
	defer srv.Close()

	e := newTestExchanger(t, srv.URL, srv.Client())
	ic := types.NewIdentityContext("abc")

	tok, err := e.Authorize(context.Background(), ic)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	// Simulate expiry: a fresh context for the same caller re-exchanges.
	ic2 := types.NewIdentityContext("abc")
	tok2, err := e.Authorize(context.Background(), ic2)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok2)
	assert.Equal(t, int64(2), calls.Load())
}

func TestConfig_ValidateRequiresCapableStrategy(t *testing.T) {
	cfg := testConfig()
	err := cfg.Validate(&endpointStrategy{endpoint: ""})
	require.Error(t, err)
	assert.Equal(t, types.ErrDelegationConfig, types.GetErrorCode(err))
}

func TestConfig_ValidateRequiresClientCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.ClientSecret = ""
	err := cfg.Validate(&endpointStrategy{endpoint: "https://idp.example.com/token"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delegation.client_secret")
}

func TestNewExchanger_DisabledReturnsNil(t *testing.T) {
	e, err := NewExchanger(Config{Enabled: false}, nil, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestIdentityContext_ExchangedExpiry(t *testing.T) {
	ic := types.NewIdentityContext("abc")
	_, err := ic.ExchangeOnce(func() (string, time.Time, error) {
		return "short", time.Now().Add(-time.Second), nil
	})
	require.NoError(t, err)

	// Already expired: not visible and not used as the credential.
	_, ok := ic.Exchanged()
	assert.False(t, ok)
	assert.Equal(t, "abc", ic.Credential())
}
