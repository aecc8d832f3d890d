package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/transcribe-etl/internal/config"
	"github.com/snarg/transcribe-etl/internal/metrics"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// ServerOptions carries the server's dependencies. DB, MQTT, Watcher and
// Pipeline may be nil.
type ServerOptions struct {
	Config    *config.Config
	DB        HealthChecker
	MQTT      ConnectionStatus
	Watcher   WatcherStatusSource
	Pipeline  Pipeline
	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	log := opts.Log.With().Str("component", "http").Logger()
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(metrics.InstrumentHandler)

	// Health and metrics: no auth
	health := NewHealthHandler(opts.DB, opts.MQTT, opts.Watcher, opts.Version, opts.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.With(MaxBody(cfg.MaxBodyBytes)).Post("/api/v1/transcripts/parse", ParseTranscript)
		if opts.Pipeline != nil {
			r.Post("/api/v1/runs", NewRunsHandler(opts.Pipeline).Create)
		}
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
