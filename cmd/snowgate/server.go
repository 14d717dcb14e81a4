package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/snowgate/api/handlers"
	"github.com/BaSui01/snowgate/auth"
	"github.com/BaSui01/snowgate/config"
	"github.com/BaSui01/snowgate/identity"
	"github.com/BaSui01/snowgate/internal/metrics"
	"github.com/BaSui01/snowgate/internal/server"
	"github.com/BaSui01/snowgate/orchestrator"
	"github.com/BaSui01/snowgate/providers"
	"github.com/BaSui01/snowgate/registry"
	"github.com/BaSui01/snowgate/specialist"
	"github.com/BaSui01/snowgate/store"
	"github.com/BaSui01/snowgate/types"
)

// skipAuthPaths are reachable without a verified credential.
var skipAuthPaths = []string{"/health", "/ready", "/version", "/metrics"}

// Server wires the gateway's components and runs the HTTP surface.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	collector *metrics.Collector
	registry  *registry.Registry
	strategy  auth.Strategy
	exchanger *identity.Exchanger
	provider  *providers.HTTPProvider
	archive   store.Store
	manager   *orchestrator.Manager

	httpServer *server.Manager

	// cancel stops background goroutines (rate limiter cleanup).
	cancel context.CancelFunc
}

// NewServer creates the server; components are built in Start.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Start builds every component and begins serving. Auth and delegation
// configuration errors are fatal here, before the listener opens.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.collector = metrics.NewCollector("snowgate", s.logger)

	if err := s.initRegistry(); err != nil {
		return err
	}
	if err := s.initAuth(ctx); err != nil {
		return err
	}
	if err := s.initPipeline(ctx); err != nil {
		return err
	}
	return s.startHTTPServer(ctx)
}

func (s *Server) initRegistry() error {
	s.registry = registry.NewRegistry(s.logger)
	for _, entry := range s.cfg.Capabilities {
		if err := s.registry.Register(entry.Capability()); err != nil {
			return fmt.Errorf("register capability: %w", err)
		}
	}
	s.registry.Freeze()
	s.logger.Info("capability catalog frozen", zap.Int("capabilities", len(s.cfg.Capabilities)))
	return nil
}

func (s *Server) initAuth(ctx context.Context) error {
	selector := auth.NewSelector(nil, s.logger)
	strategy, err := selector.Build(ctx, s.cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth strategy: %w", err)
	}
	s.strategy = strategy

	exchanger, err := identity.NewExchanger(s.cfg.Delegation, strategy, nil, s.logger)
	if err != nil {
		return fmt.Errorf("delegation: %w", err)
	}
	if exchanger != nil {
		exchanger.SetObserver(s.collector.RecordTokenExchange)
	}
	s.exchanger = exchanger
	return nil
}

func (s *Server) initPipeline(ctx context.Context) error {
	provider, err := providers.NewHTTPProvider(s.cfg.Provider, nil, s.logger)
	if err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	s.provider = provider

	archive, err := s.buildStore(ctx)
	if err != nil {
		return err
	}
	s.archive = archive

	partitioner := registry.NewPartitioner(s.registry, s.logger)
	oracle := orchestrator.KeywordOracle{Rules: s.cfg.Routing.Rules}
	orch := orchestrator.New(partitioner, provider, specialist.KeywordPlanner{}, s.exchanger,
		oracle, s.cfg.Orchestrator, s.collector, s.logger)
	s.manager = orchestrator.NewManager(orch, archive, s.cfg.Tasks, s.collector, s.logger)
	return nil
}

func (s *Server) buildStore(ctx context.Context) (store.Store, error) {
	switch s.cfg.Store.Backend {
	case "redis":
		rs, err := store.NewRedisStore(ctx, s.cfg.Store.Redis, s.logger)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		s.logger.Info("task archive backend", zap.String("backend", "redis"), zap.String("addr", s.cfg.Store.Redis.Addr))
		return rs, nil
	default:
		s.logger.Info("task archive backend", zap.String("backend", "memory"))
		return store.NewMemoryStore(), nil
	}
}

// identityFallback returns the constructor for anonymous-caller
// identities: the downstream basic credential pair when one is configured
// and delegation is off, nil otherwise.
func (s *Server) identityFallback() func() *types.IdentityContext {
	if s.cfg.Delegation.Enabled || s.cfg.Provider.BasicUser == "" {
		return nil
	}
	user, password := s.cfg.Provider.BasicUser, s.cfg.Provider.BasicPassword
	return func() *types.IdentityContext {
		return types.NewBasicIdentityContext(user, password)
	}
}

func (s *Server) startHTTPServer(ctx context.Context) error {
	taskHandler := handlers.NewTaskHandler(s.manager, s.logger)
	capHandler := handlers.NewCapabilityHandler(s.registry, registry.NewPartitioner(s.registry, s.logger), s.logger)
	healthHandler := handlers.NewHealthHandler(s.logger)
	healthHandler.RegisterCheck(handlers.HealthCheckFunc{CheckName: "provider", Fn: s.provider.HealthCheck})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", healthHandler.HandleReady)
	mux.HandleFunc("GET /version", healthHandler.HandleVersion(Version, BuildTime, GitCommit))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/tasks", taskHandler.HandleSubmit)
	mux.HandleFunc("GET /api/v1/tasks/{id}", taskHandler.HandlePoll)
	mux.HandleFunc("DELETE /api/v1/tasks/{id}", taskHandler.HandleCancel)
	mux.HandleFunc("GET /api/v1/capabilities", capHandler.HandleList)

	// Identity runs before throttling and accounting; recovery stays
	// outermost so a panic anywhere in the chain still yields a 500.
	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		Identity(s.strategy, s.identityFallback(), skipAuthPaths, s.logger),
	}
	if s.cfg.RateLimit.Enabled {
		middlewares = append(middlewares, RateLimiter(ctx, s.cfg.RateLimit.RPS, s.cfg.RateLimit.Burst, s.logger))
	}
	middlewares = append(middlewares,
		MetricsMiddleware(s.collector),
		RequestLogger(s.logger),
	)
	handler := Chain(mux, middlewares...)

	s.httpServer = server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	if err := s.httpServer.Start(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	s.logger.Info("HTTP server started",
		zap.String("addr", s.httpServer.Addr()),
		zap.String("auth_strategy", string(s.strategy.Type())),
		zap.Bool("delegation", s.exchanger != nil),
	)
	return nil
}

// WaitForShutdown blocks until SIGINT/SIGTERM, then shuts down.
func (s *Server) WaitForShutdown() {
	s.httpServer.WaitForShutdown()
	s.Shutdown()
}

// Shutdown stops the HTTP surface first, then drains in-flight tasks.
func (s *Server) Shutdown() {
	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP shutdown failed", zap.Error(err))
		}
	}
	if s.manager != nil {
		if err := s.manager.Shutdown(ctx); err != nil {
			s.logger.Error("task drain failed", zap.Error(err))
		}
	}
	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			s.logger.Error("archive close failed", zap.Error(err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("shutdown complete")
}
