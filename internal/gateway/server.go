// Package gateway implements the HTTP front door: the /v1/messages dispatch
// endpoint, health/status, and the OAuth login callback endpoints, wired
// together from every other internal package.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Davincible/claude-proxy/internal/config"
	"github.com/Davincible/claude-proxy/internal/creds"
	"github.com/Davincible/claude-proxy/internal/middleware"
	"github.com/Davincible/claude-proxy/internal/oauth"
	"github.com/Davincible/claude-proxy/internal/process"
	"github.com/Davincible/claude-proxy/internal/providers"
	"github.com/Davincible/claude-proxy/internal/state"
	"github.com/Davincible/claude-proxy/internal/vision"
)

// Server owns the HTTP listener and every collaborator request handling
// needs.
type Server struct {
	cfgMgr   *config.Manager
	logger   *slog.Logger
	registry *providers.Registry
	credsStore *creds.Store
	pending  *oauth.PendingTable
	active   *state.ActiveSelection
	procMgr  *process.Manager

	startedAt time.Time
	server    *http.Server
}

func New(cfgMgr *config.Manager, procMgr *process.Manager, logger *slog.Logger) *Server {
	cfg := cfgMgr.Get()

	registry := providers.NewRegistry()
	registry.Register(providers.NewChatCompletions("openai"))
	registry.Register(providers.NewOpenRouter(cfg.OpenRouterReferer, cfg.OpenRouterTitle))
	registry.Register(providers.NewGeminiAPIKey())
	registry.Register(providers.NewGeminiWorkspace(""))
	registry.Register(providers.NewResponses(cfg.CodexReasoningEffort))
	registry.Register(providers.NewPassthrough("passthrough-anthropic", cfg.AnthropicVersion))
	registry.Register(providers.NewPassthrough("passthrough-glm", cfg.AnthropicVersion))

	return &Server{
		cfgMgr:     cfgMgr,
		logger:     logger,
		registry:   registry,
		credsStore: creds.NewStore(cfgMgr.BaseDir()),
		pending:    oauth.NewPendingTable(),
		active:     state.NewActiveSelection(),
		procMgr:    procMgr,
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	dispatcher := &dispatchHandler{
		cfgMgr:     s.cfgMgr,
		logger:     s.logger,
		registry:   s.registry,
		credsStore: s.credsStore,
		active:     s.active,
		vision:     s.visionDescriber(),
	}

	healthHandler := &healthHandler{startedAt: s.startedAt, active: s.active}
	oauthHandler := &oauthHandler{pending: s.pending, credsStore: s.credsStore, cfgMgr: s.cfgMgr, logger: s.logger}

	ms := middleware.NewMiddlewareSet(s.logger)

	mux.Handle("/v1/messages", ms.DefaultChain().Handler(dispatcher))
	mux.Handle("/healthz", ms.HealthChain().Handler(healthHandler))
	mux.Handle("/_status", ms.HealthChain().Handler(healthHandler))
	mux.Handle("/google/login", ms.HealthChain().Handler(http.HandlerFunc(oauthHandler.googleLogin)))
	mux.Handle("/google/callback", ms.HealthChain().Handler(http.HandlerFunc(oauthHandler.googleCallback)))
	mux.Handle("/codex/login", ms.HealthChain().Handler(http.HandlerFunc(oauthHandler.codexLogin)))
	mux.Handle("/codex/callback", ms.HealthChain().Handler(http.HandlerFunc(oauthHandler.codexCallback)))

	// Anything else (the client's own telemetry/metrics calls against its
	// real vendor host) still passes through the blocker chain even
	// without a matching route.
	mux.Handle("/", ms.DefaultChain().Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})))

	return mux
}

func (s *Server) visionDescriber() *vision.Describer {
	cfg := s.cfgMgr.Get()
	endpoint := cfg.OpenRouterBaseURL
	if endpoint == "" {
		endpoint = "https://openrouter.ai/api/v1"
	}
	return vision.NewDescriber(endpoint, cfg.OpenRouterAPIKey, cfg.VisionModel)
}

// Start runs the gateway in the foreground until the process receives
// SIGINT/SIGTERM, then shuts it down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.startedAt = time.Now()
	cfg := s.cfgMgr.Get()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("gateway listener failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	return nil
}
