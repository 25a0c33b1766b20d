package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/captionhub/internal/config"
	"github.com/snarg/captionhub/internal/events"
	"github.com/snarg/captionhub/internal/media"
	"github.com/snarg/captionhub/internal/metrics"
	"github.com/snarg/captionhub/internal/snapshot"
)

// ServerOptions wires the HTTP server to the rest of the process.
type ServerOptions struct {
	Config    *config.Config
	Store     Store
	Snapshots *snapshot.Manager
	Bus       *events.Bus
	Media     media.Source
	Ingest    Ingester
	Mirror    MirrorStatus // nil when the mirror is disabled
	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

type Server struct {
	http      *http.Server
	router    chi.Router
	closing   chan struct{}
	closeOnce sync.Once
	log       zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	s := &Server{
		closing: make(chan struct{}),
		log:     opts.Log,
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(metrics.InstrumentHandler)
	r.Use(CORSWithOrigins(cfg.CORSOriginList()))

	r.Handle("/metrics", promhttp.Handler())

	health := NewHealthHandler(opts.Store, opts.Bus, opts.Ingest, opts.Mirror, opts.Version, opts.StartTime)

	projects := NewProjectsHandler(opts.Store, opts.Media, opts.Ingest, cfg.IngestEnqueueWait)
	subtitles := NewSubtitlesHandler(opts.Store, opts.Bus)
	snapshots := NewSnapshotsHandler(opts.Store, opts.Snapshots)
	stream := NewEventsHandler(opts.Store, opts.Bus, cfg.SSEKeepalive, s.closing)

	r.Route("/api/v1", func(r chi.Router) {
		// Health endpoint, no auth
		r.Get("/health", health.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(cfg.AuthToken))
			r.Use(RequireUser)

			projects.Routes(r)
			subtitles.Routes(r)
			snapshots.Routes(r)
			stream.Routes(r)
		})
	})

	s.router = r
	s.http = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown ends live event streams first so they do not hold the server
// open, then drains remaining requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	s.closeOnce.Do(func() { close(s.closing) })
	return s.http.Shutdown(ctx)
}
