package auth

import (
	"context"

	"go.uber.org/zap"
)

// oauthProxyStrategy terminates an upstream authorization-code flow and
// verifies the re-issued tokens. Its upstream token endpoint is trusted
// for identity delegation.
type oauthProxyStrategy struct {
	cfg      OAuthProxyConfig
	verifier *jwtStrategy
}

func newOAuthProxyStrategy(cfg OAuthProxyConfig, client httpDoer, logger *zap.Logger) (*oauthProxyStrategy, error) {
	verifier, err := newJWTStrategy(cfg.Verifier, client, logger)
	if err != nil {
		return nil, err
	}
	return &oauthProxyStrategy{cfg: cfg, verifier: verifier}, nil
}

func (s *oauthProxyStrategy) Type() StrategyType    { return StrategyOAuthProxy }
func (s *oauthProxyStrategy) TokenEndpoint() string { return s.cfg.UpstreamTokenEndpoint }

func (s *oauthProxyStrategy) Verify(ctx context.Context, token string) (*Claims, error) {
	return s.verifier.Verify(ctx, token)
}

// remoteOAuthStrategy accepts tokens issued by the listed external
// authorization servers. It never issues or exchanges tokens itself.
type remoteOAuthStrategy struct {
	cfg      RemoteOAuthConfig
	verifier *jwtStrategy
}

func newRemoteOAuthStrategy(cfg RemoteOAuthConfig, client httpDoer, logger *zap.Logger) (*remoteOAuthStrategy, error) {
	verifier, err := newJWTStrategy(cfg.Verifier, client, logger)
	if err != nil {
		return nil, err
	}
	return &remoteOAuthStrategy{cfg: cfg, verifier: verifier}, nil
}

func (s *remoteOAuthStrategy) Type() StrategyType    { return StrategyRemoteOAuth }
func (s *remoteOAuthStrategy) TokenEndpoint() string { return "" }

func (s *remoteOAuthStrategy) Verify(ctx context.Context, token string) (*Claims, error) {
	return s.verifier.Verify(ctx, token)
}

// AuthorizationServers returns the trusted external issuers, for the
// protected-resource metadata surface.
func (s *remoteOAuthStrategy) AuthorizationServers() []string {
	return s.cfg.AuthServers
}
