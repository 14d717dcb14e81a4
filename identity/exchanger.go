package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/snowgate/auth"
	"github.com/BaSui01/snowgate/types"
)

// RFC 8693 token-exchange grant constants.
const (
	GrantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"
	TokenTypeAccessToken   = "urn:ietf:params:oauth:token-type:access_token"
)

// Config controls identity delegation.
type Config struct {
	// Enabled turns token exchange on. When false, downstream invocations
	// see the caller's raw credential as-is.
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// Audience is the downstream audience requested in the exchange.
	Audience string `yaml:"audience" env:"AUDIENCE"`

	// Scopes is the space-separated scope string requested in the exchange.
	Scopes string `yaml:"scopes" env:"SCOPES"`

	// ClientID and ClientSecret authenticate this process to the token
	// endpoint.
	ClientID     string `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"CLIENT_SECRET"`

	// Timeout bounds one exchange call.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// Validate checks delegation preconditions against the active strategy.
// All failures here are startup-fatal.
func (c Config) Validate(strategy auth.Strategy) error {
	if !c.Enabled {
		return nil
	}
	if strategy == nil || strategy.TokenEndpoint() == "" {
		name := "none"
		if strategy != nil {
			name = string(strategy.Type())
		}
		return types.NewError(types.ErrDelegationConfig,
			fmt.Sprintf("delegation requires an auth strategy with a trusted token endpoint, have %q", name))
	}
	var missing []string
	if c.Audience == "" {
		missing = append(missing, "delegation.audience")
	}
	if c.ClientID == "" {
		missing = append(missing, "delegation.client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "delegation.client_secret")
	}
	if len(missing) > 0 {
		return types.NewError(types.ErrDelegationConfig,
			"delegation requires "+strings.Join(missing, ", "))
	}
	return nil
}

// tokenResponse is the token endpoint's success payload.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Exchanger performs per-task token exchange against the strategy's
// trusted token endpoint.
type Exchanger struct {
	cfg      Config
	endpoint string
	client   *http.Client
	logger   *zap.Logger
	observe  func(success bool)
}

// SetObserver installs a callback invoked once per exchange attempt.
// Used for metrics; must be set before the exchanger is shared.
func (e *Exchanger) SetObserver(fn func(success bool)) {
	e.observe = fn
}

func (e *Exchanger) observed(success bool) {
	if e.observe != nil {
		e.observe(success)
	}
}

// NewExchanger validates cfg against the active strategy and builds the
// exchanger. Returns (nil, nil) when delegation is disabled.
func NewExchanger(cfg Config, strategy auth.Strategy, client *http.Client, logger *zap.Logger) (*Exchanger, error) {
	if err := cfg.Validate(strategy); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Scopes == "" {
		cfg.Scopes = "api"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Exchanger{
		cfg:      cfg,
		endpoint: strategy.TokenEndpoint(),
		client:   client,
		logger:   logger.With(zap.String("component", "token_exchanger")),
	}, nil
}

// Authorize ensures ic carries a downstream token, exchanging the raw
// credential on first use and reusing the cached result until expiry.
// A failure is scoped to the calling task; it returns a
// TOKEN_EXCHANGE_FAILED error and leaves other tasks untouched.
func (e *Exchanger) Authorize(ctx context.Context, ic *types.IdentityContext) (string, error) {
	if ic == nil || ic.Raw() == "" {
		return "", types.NewError(types.ErrTokenExchange, "no subject credential to exchange")
	}
	return ic.ExchangeOnce(func() (string, time.Time, error) {
		token, expiry, err := e.exchange(ctx, ic.Raw())
		e.observed(err == nil)
		return token, expiry, err
	})
}

func (e *Exchanger) exchange(ctx context.Context, subjectToken string) (string, time.Time, error) {
	form := url.Values{
		"grant_type":           {GrantTypeTokenExchange},
		"subject_token":        {subjectToken},
		"subject_token_type":   {TokenTypeAccessToken},
		"requested_token_type": {TokenTypeAccessToken},
		"audience":             {e.cfg.Audience},
		"scope":                {e.cfg.Scopes},
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, types.NewError(types.ErrTokenExchange, "building exchange request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(e.cfg.ClientID, e.cfg.ClientSecret)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", time.Time{}, types.NewError(types.ErrTokenExchange, "token endpoint unreachable").
			WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", time.Time{}, types.NewError(types.ErrTokenExchange, "reading exchange response").WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.logger.Warn("token exchange rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("audience", e.cfg.Audience),
		)
		return "", time.Time{}, types.NewError(types.ErrTokenExchange,
			fmt.Sprintf("token endpoint returned status %d", resp.StatusCode)).
			WithHTTPStatus(resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", time.Time{}, types.NewError(types.ErrTokenExchange, "malformed exchange response").WithCause(err)
	}
	if tr.AccessToken == "" {
		return "", time.Time{}, types.NewError(types.ErrTokenExchange, "exchange response has no access_token")
	}

	var expiry time.Time
	if tr.ExpiresIn > 0 {
		expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	e.logger.Debug("token exchanged",
		zap.String("audience", e.cfg.Audience),
		zap.Int64("expires_in", tr.ExpiresIn),
	)
	return tr.AccessToken, expiry, nil
}
