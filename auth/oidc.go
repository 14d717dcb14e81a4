package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// oidcDiscovery is the subset of an OIDC discovery document snowgate
// consumes.
type oidcDiscovery struct {
	Issuer        string `json:"issuer"`
	TokenEndpoint string `json:"token_endpoint"`
	JWKSURI       string `json:"jwks_uri"`
}

// fetchOIDCDiscovery retrieves and parses the provider's discovery
// document. Runs once at startup; a failure here is a ConfigError.
func fetchOIDCDiscovery(ctx context.Context, configURL string, client httpDoer) (*oidcDiscovery, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, configURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery fetch failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var doc oidcDiscovery
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("discovery parse failed: %w", err)
	}
	return &doc, nil
}

// oidcProxyStrategy delegates the authorization flow to an external OIDC
// provider. Verification uses the provider's JWKS; the discovery document
// supplies the token endpoint used for identity delegation.
type oidcProxyStrategy struct {
	cfg           OIDCProxyConfig
	tokenEndpoint string
	verifier      *jwtStrategy
}

func newOIDCProxyStrategy(ctx context.Context, cfg OIDCProxyConfig, client httpDoer, logger *zap.Logger) (*oidcProxyStrategy, error) {
	if client == nil {
		client = http.DefaultClient
	}

	doc, err := fetchOIDCDiscovery(ctx, cfg.ConfigURL, client)
	if err != nil {
		return nil, configError("oidc-proxy: " + err.Error())
	}
	if doc.TokenEndpoint == "" {
		return nil, configError("oidc-proxy: no token_endpoint in discovery document")
	}
	if doc.JWKSURI == "" {
		return nil, configError("oidc-proxy: no jwks_uri in discovery document")
	}

	verifier, err := newJWTStrategy(JWTConfig{
		JWKSURI:  doc.JWKSURI,
		Issuer:   doc.Issuer,
		Audience: cfg.ClientID,
	}, client, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("OIDC discovery resolved",
		zap.String("issuer", doc.Issuer),
		zap.String("token_endpoint", doc.TokenEndpoint),
	)

	return &oidcProxyStrategy{
		cfg:           cfg,
		tokenEndpoint: doc.TokenEndpoint,
		verifier:      verifier,
	}, nil
}

func (s *oidcProxyStrategy) Type() StrategyType    { return StrategyOIDCProxy }
func (s *oidcProxyStrategy) TokenEndpoint() string { return s.tokenEndpoint }

func (s *oidcProxyStrategy) Verify(ctx context.Context, token string) (*Claims, error) {
	return s.verifier.Verify(ctx, token)
}
