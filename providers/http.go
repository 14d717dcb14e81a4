// Package providers contains concrete capability-provider bindings.
// The router itself never builds transport requests; everything that
// talks to a downstream service lives here behind the Invoke contract.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/snowgate/types"
)

// HTTPConfig configures the REST capability provider.
type HTTPConfig struct {
	// BaseURL is the downstream service root, e.g.
	// https://instance.service-now.com.
	BaseURL string `yaml:"base_url" env:"BASE_URL"`

	// Timeout bounds one invocation. Defaults to 30s.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`

	// BasicUser and BasicPassword authenticate anonymous tasks to the
	// downstream service when delegation is off. A task that carries its
	// own credential always wins over this pair.
	BasicUser     string `yaml:"basic_user" env:"BASIC_USER"`
	BasicPassword string `yaml:"basic_password" env:"BASIC_PASSWORD"`
}

// HTTPProvider invokes capabilities as POST {base}/api/capabilities/{name}
// with the planned arguments as the JSON body. The caller's identity
// decides the auth header: bearer when a token (raw or exchanged) is
// present, HTTP basic as the fallback.
type HTTPProvider struct {
	cfg    HTTPConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPProvider creates the provider. client may be nil.
func NewHTTPProvider(cfg HTTPConfig, client *http.Client, logger *zap.Logger) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		return nil, types.NewError(types.ErrConfig, "provider.base_url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPProvider{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("component", "http_provider")),
	}, nil
}

func (p *HTTPProvider) Name() string { return "http" }

// Invoke executes one capability call under the given identity.
func (p *HTTPProvider) Invoke(ctx context.Context, operation string, arguments json.RawMessage, id *types.IdentityContext) (json.RawMessage, error) {
	if len(arguments) == 0 {
		arguments = json.RawMessage(`{}`)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	endpoint := p.cfg.BaseURL + "/api/capabilities/" + operation
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(arguments))
	if err != nil {
		return nil, types.NewError(types.ErrUpstream, "building capability request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	p.authorize(req, id)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.NewError(types.ErrUpstream, "downstream service unreachable").
			WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, types.NewError(types.ErrUpstream, "reading capability response").WithCause(err)
	}

	p.logger.Debug("capability invoked",
		zap.String("operation", operation),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, types.NewError(types.ErrUnauthorized,
			fmt.Sprintf("downstream rejected credentials for %s", operation)).
			WithHTTPStatus(resp.StatusCode)
	default:
		return nil, types.NewError(types.ErrUpstream,
			fmt.Sprintf("capability %s returned status %d: %s", operation, resp.StatusCode, errMessage(body))).
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests)
	}
}

// authorize sets the request credentials from the task's identity.
func (p *HTTPProvider) authorize(req *http.Request, id *types.IdentityContext) {
	if id == nil {
		return
	}
	if token := id.Credential(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		return
	}
	if user, password, ok := id.Basic(); ok {
		req.SetBasicAuth(user, password)
	}
}

// HealthCheck probes the downstream service.
func (p *HTTPProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return types.NewError(types.ErrUpstream, "downstream health check failed").WithCause(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return types.NewError(types.ErrUpstream,
			fmt.Sprintf("downstream health check returned status %d", resp.StatusCode))
	}
	return nil
}

// errMessage pulls a short error description out of a failure body.
func errMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if len(body) > 120 {
		body = body[:120]
	}
	return string(body)
}
