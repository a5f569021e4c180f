// Package server exposes generation, persistence and preview over HTTP.
package server

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pagesmith/internal/config"
	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/journal"
	"git.home.luguber.info/inful/pagesmith/internal/metrics"
	"git.home.luguber.info/inful/pagesmith/internal/pipeline"
	"git.home.luguber.info/inful/pagesmith/internal/preview"
	"git.home.luguber.info/inful/pagesmith/internal/server/middleware"
	"git.home.luguber.info/inful/pagesmith/internal/site"
)

// Generator runs generations. *pipeline.Controller satisfies it.
type Generator interface {
	Run(ctx context.Context, req pipeline.Request, sink pipeline.Sink) (*pipeline.Result, error)
	Registry() *pipeline.Registry
}

// Deps are the components the handlers call into.
type Deps struct {
	Generator Generator
	Sites     *site.Manager
	Preview   *preview.Resolver
	Journal   journal.Journal

	// Circuit reports the provider circuit breaker state on /health.
	Circuit interface{ State() string }

	// Metrics is served at MetricsPath when set.
	Metrics     *prom.Registry
	MetricsPath string
	Recorder    metrics.Recorder

	Logger *slog.Logger
}

// Server is the HTTP front of the service.
type Server struct {
	cfg      config.ServerConfig
	deps     Deps
	router   chi.Router
	errors   *errors.HTTPErrorAdapter
	validate *requestValidator
	logger   *slog.Logger
	httpSrv  *http.Server
}

// New builds the router. Call Start to listen.
func New(cfg config.ServerConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Journal == nil {
		deps.Journal = journal.Noop{}
	}
	if deps.Recorder == nil {
		deps.Recorder = metrics.NoopRecorder{}
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = config.DefaultMetricsPath
	}
	s := &Server{
		cfg:      cfg,
		deps:     deps,
		errors:   errors.NewHTTPErrorAdapter(deps.Logger),
		validate: newRequestValidator(),
		logger:   deps.Logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Chain(s.logger, s.errors))

	r.Get("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, s.deps.MetricsPath, metrics.HTTPHandler(s.deps.Metrics))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate/stream", s.handleGenerate)
		r.Post("/generations/{id}/cancel", s.handleCancel)
		r.Get("/generations/{id}/events", s.handleEvents)

		r.Post("/pages", s.handleSavePage)
		r.Get("/pages/{id}", s.handleGetPage)

		r.Get("/projects", s.handleListProjects)
		r.Get("/projects/{id}", s.handleGetProject)
		r.Get("/projects/{id}/links", s.handleProjectLinks)
	})

	r.Get("/preview/{id}", s.handlePreview)
	r.Get("/preview/{id}/{page}", s.handlePreview)
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured address and serves until ctx is done,
// then shuts down within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "listen").
			WithContext("addr", s.cfg.Addr).Fatal().Build()
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// No write timeout: generation streams stay open for minutes.
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", slog.String("addr", ln.Addr().String()))
		errCh <- s.httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	s.logger.Info("HTTP server shutting down", slog.Duration("timeout", timeout))
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":             "healthy",
		"active_generations": len(s.deps.Generator.Registry().Active()),
	}
	if s.deps.Circuit != nil {
		state := s.deps.Circuit.State()
		body["circuit"] = state
		if state == "open" {
			body["status"] = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, body)
}
