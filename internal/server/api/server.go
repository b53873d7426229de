// Package api exposes the resource service over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/systemshift/graphrest/internal/server/metrics"
	"github.com/systemshift/graphrest/internal/server/resource"
	"github.com/systemshift/graphrest/internal/server/schema"
	"github.com/systemshift/graphrest/internal/server/subscriptions"
)

// Server holds the HTTP server dependencies
type Server struct {
	service  *resource.Service
	registry *schema.Registry
	subMgr   *subscriptions.Manager
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// New creates a new API server. subMgr and collector may be nil.
func New(service *resource.Service, registry *schema.Registry, subMgr *subscriptions.Manager, collector *metrics.Collector, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{service: service, registry: registry, subMgr: subMgr, metrics: collector, logger: logger}
}

// Routes returns the router. Every path not claimed by an operational route
// is resolved as a resource path.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.HealthCheck)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/_subscriptions", func(r chi.Router) {
		r.Get("/", s.ListSubscriptions)
		r.Post("/", s.CreateSubscription)
		r.Get("/{id}", s.GetSubscription)
		r.Delete("/{id}", s.DeleteSubscription)
	})

	r.HandleFunc("/*", s.ServeResource)
	return r
}

// logRequests logs every request once it is answered and records its
// metrics.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.RecordHTTP(r.Method, status, elapsed)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("remote_addr", r.RemoteAddr),
		)
	})
}
