package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/fleetwatch/internal/archive"
	"github.com/JakeFAU/fleetwatch/internal/export"
	"github.com/JakeFAU/fleetwatch/internal/metrics"
	"github.com/JakeFAU/fleetwatch/internal/notify"
	"github.com/JakeFAU/fleetwatch/internal/policy/ratelimit"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultStreamPing     = 30 * time.Second
)

// Exporter snapshots the feed to blob storage.
type Exporter interface {
	Export(ctx context.Context, filter notify.Filter) (export.Result, error)
}

// Options wires the server's collaborators.
//   - Store is required; every request is bound to it.
//   - Exporter and Archive are optional; their routes answer 503 when nil.
//   - Metrics and Gatherer enable request metrics and the /metrics route.
//   - RateLimiter throttles /v1 per API key, or per remote host without one.
type Options struct {
	Store            *notify.Store
	Exporter         Exporter
	Archive          archive.Repository
	Metrics          *metrics.HTTP
	Gatherer         prometheus.Gatherer
	Logger           *zap.Logger
	APIKey           string
	RateLimiter      *ratelimit.Limiter
	RequestTimeout   time.Duration
	StreamPing       time.Duration
	SubscriberBuffer int
}

// Server wires HTTP handlers to the notification store.
type Server struct {
	router   chi.Router
	store    *notify.Store
	exporter Exporter
	archive  *ArchiveHandler
	metrics  *metrics.HTTP
	logger   *zap.Logger

	streamPing       time.Duration
	subscriberBuffer int
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	ping := opts.StreamPing
	if ping <= 0 {
		ping = defaultStreamPing
	}
	s := &Server{
		store:            opts.Store,
		exporter:         opts.Exporter,
		archive:          NewArchiveHandler(opts.Archive, logger),
		metrics:          opts.Metrics,
		logger:           logger,
		streamPing:       ping,
		subscriberBuffer: opts.SubscriberBuffer,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(opts.Gatherer))
	}

	r.Route("/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		if opts.RateLimiter != nil {
			r.Use(rateLimitMiddleware(opts.RateLimiter))
		}
		r.Use(storeMiddleware(opts.Store))

		// The stream hijacks the connection, so it stays outside the timeout.
		r.Get("/notifications/stream", s.stream)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(timeout))
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", s.listNotifications)
				r.Post("/", s.addNotification)
				r.Delete("/", s.clearNotifications)
				r.Get("/summary", s.summary)
				r.Post("/read-all", s.markAllRead)
				r.Post("/export", s.exportNotifications)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.getNotification)
					r.Delete("/", s.deleteNotification)
					r.Post("/read", s.markRead)
				})
			})
			r.Get("/archive", s.archive.List)
			r.Get("/archive/{id}", s.archive.Get)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "notification store not initialized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
