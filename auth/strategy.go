package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/snowgate/types"
)

// Claims is the verified identity extracted from a credential.
type Claims struct {
	Subject  string         `json:"subject,omitempty"`
	ClientID string         `json:"client_id,omitempty"`
	Scopes   []string       `json:"scopes,omitempty"`
	Expiry   time.Time      `json:"expiry,omitempty"`
	Raw      map[string]any `json:"-"`
}

// HasScopes reports whether the claims carry every required scope.
func (c *Claims) HasScopes(required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(c.Scopes))
	for _, s := range c.Scopes {
		have[s] = struct{}{}
	}
	for _, s := range required {
		if _, ok := have[s]; !ok {
			return false
		}
	}
	return true
}

// Verifier turns a raw bearer credential into verified Claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// Strategy is one configured authentication strategy.
type Strategy interface {
	Verifier

	// Type returns the strategy's enumeration value.
	Type() StrategyType

	// TokenEndpoint returns the trusted upstream token endpoint usable for
	// OAuth2 token exchange, or "" when the strategy cannot delegate.
	TokenEndpoint() string
}

// noneStrategy accepts every request without inspecting credentials.
type noneStrategy struct{}

func (noneStrategy) Type() StrategyType    { return StrategyNone }
func (noneStrategy) TokenEndpoint() string { return "" }

func (noneStrategy) Verify(ctx context.Context, token string) (*Claims, error) {
	return &Claims{}, nil
}

// staticStrategy matches tokens against a fixed map. Development only.
type staticStrategy struct {
	tokens map[string]StaticToken
}

func (s *staticStrategy) Type() StrategyType    { return StrategyStaticToken }
func (s *staticStrategy) TokenEndpoint() string { return "" }

func (s *staticStrategy) Verify(ctx context.Context, token string) (*Claims, error) {
	entry, ok := s.tokens[token]
	if !ok {
		return nil, unauthorized("unknown token")
	}
	return &Claims{
		Subject:  entry.ClientID,
		ClientID: entry.ClientID,
		Scopes:   entry.Scopes,
	}, nil
}

func unauthorized(msg string) error {
	return types.NewError(types.ErrUnauthorized, msg).WithHTTPStatus(401)
}

func unauthorizedf(format string, args ...any) error {
	return unauthorized(fmt.Sprintf(format, args...))
}
