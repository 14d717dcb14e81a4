package auth

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// State is the selector's lifecycle state.
type State string

const (
	StateUnconfigured State = "unconfigured"
	StateValidating   State = "validating"
	StateReady        State = "ready"
	StateConfigError  State = "config_error"
)

// Selector validates a Config and instantiates exactly one Strategy.
// Validation runs inside Build, at startup; a selector that is not Ready
// never hands out a strategy.
type Selector struct {
	mu       sync.Mutex
	state    State
	strategy Strategy
	client   httpDoer
	logger   *zap.Logger
}

// NewSelector creates a selector in the Unconfigured state. client is
// used for JWKS and OIDC discovery fetches; nil means http.DefaultClient.
func NewSelector(client *http.Client, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	var doer httpDoer = http.DefaultClient
	if client != nil {
		doer = client
	}
	return &Selector{
		state:  StateUnconfigured,
		client: doer,
		logger: logger.With(zap.String("component", "auth_selector")),
	}
}

// State returns the current lifecycle state.
func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Strategy returns the Ready strategy, or nil before a successful Build.
func (s *Selector) Strategy() Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategy
}

// Build validates cfg exhaustively and instantiates the strategy. Any
// missing or conflicting field is a CONFIG_ERROR; the selector then stays
// in ConfigError and the process must not accept tasks.
func (s *Selector) Build(ctx context.Context, cfg Config) (Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateValidating

	if err := cfg.validate(); err != nil {
		s.state = StateConfigError
		s.logger.Error("auth configuration rejected",
			zap.String("strategy", string(cfg.Strategy)),
			zap.Error(err),
		)
		return nil, err
	}

	strategy, err := s.instantiate(ctx, cfg)
	if err != nil {
		s.state = StateConfigError
		s.logger.Error("auth strategy construction failed",
			zap.String("strategy", string(cfg.Strategy)),
			zap.Error(err),
		)
		return nil, err
	}

	s.state = StateReady
	s.strategy = strategy
	s.logger.Info("auth strategy ready",
		zap.String("strategy", string(strategy.Type())),
		zap.Bool("delegation_capable", strategy.TokenEndpoint() != ""),
	)
	return strategy, nil
}

func (s *Selector) instantiate(ctx context.Context, cfg Config) (Strategy, error) {
	switch cfg.Strategy {
	case StrategyNone, "":
		return noneStrategy{}, nil
	case StrategyStaticToken:
		return &staticStrategy{tokens: cfg.Static.Tokens}, nil
	case StrategyJWT:
		return newJWTStrategy(cfg.JWT, s.client, s.logger)
	case StrategyOAuthProxy:
		return newOAuthProxyStrategy(cfg.OAuthProxy, s.client, s.logger)
	case StrategyOIDCProxy:
		return newOIDCProxyStrategy(ctx, cfg.OIDCProxy, s.client, s.logger)
	case StrategyRemoteOAuth:
		return newRemoteOAuthStrategy(cfg.RemoteOAuth, s.client, s.logger)
	default:
		// cfg.validate already rejected unknown strategies.
		return nil, configError("unknown auth strategy")
	}
}
