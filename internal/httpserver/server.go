package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/redisgate/redisgate/internal/config"
)

// CommandHandler is the subset of dispatch.Handler the server mounts.
// Declared here rather than importing internal/dispatch directly to keep
// httpserver free of a dependency on the command-execution core it only
// hosts — dispatch imports httpserver for RespondErrorKind, so the
// reverse import would cycle.
type CommandHandler interface {
	BodyCommand(w http.ResponseWriter, r *http.Request)
	KeyRoute(w http.ResponseWriter, r *http.Request)
	PathCommand(w http.ResponseWriter, r *http.Request)
}

// Server holds the HTTP server dependencies and mounts the request-
// execution core's routes, per SPEC_FULL.md §6.
type Server struct {
	Router    *chi.Mux
	Logger    *slog.Logger
	DB        *pgxpool.Pool
	Metrics   *prometheus.Registry
	startedAt time.Time
}

// NewServer creates the HTTP server: global middleware, health/metrics
// endpoints, and the /redis/* command surface backed by handler.
func NewServer(cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, metricsReg *prometheus.Registry, handler CommandHandler) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		DB:        db,
		Metrics:   metricsReg,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle(cfg.MetricsPath, promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.Router.Route("/redis/{instance_id}", func(r chi.Router) {
		r.Post("/", handler.BodyCommand)
		r.Get("/key/{key}", handler.KeyRoute)
		r.Get("/*", handler.PathCommand)
		r.Post("/*", handler.PathCommand)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz pings Postgres, per SPEC_FULL.md §6 — not a full Redis
// fan-out, since most instances have no pool constructed until first use.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("readiness check: database ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}
