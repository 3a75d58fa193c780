package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/traffic-eagle/internal/observability"
	"github.com/couchcryptid/traffic-eagle/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service is the pipeline surface the HTTP API exposes.
type Service interface {
	sharedobs.ReadinessChecker
	Years() (pipeline.YearsResult, error)
	SelectYear(ctx context.Context, ev pipeline.YearSelected) (pipeline.MapResult, error)
	Analyze(ctx context.Context, req pipeline.AnalysisRequest) (pipeline.AnalysisResult, error)
}

// Options configures the listener and the API middleware.
type Options struct {
	Addr              string
	CORSOrigins       []string
	RateLimitRequests int // zero disables rate limiting
	RateLimitWindow   time.Duration
}

// Server exposes the map and analysis API plus health, readiness, and metrics.
type Server struct {
	httpServer *http.Server
	svc        Service
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the probe routes and the /api/v1 and
// /sse routes backed by svc.
func NewServer(opts Options, svc Service, metrics *observability.Metrics, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		svc:    svc,
		logger: logger,
	}

	r.Use(requestID)
	r.Use(instrument(logger, metrics))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(svc))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
			MaxAge:         300,
		}))
		if opts.RateLimitRequests > 0 {
			r.Use(httprate.Limit(opts.RateLimitRequests, opts.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP)))
		}

		r.Get("/api/v1/years", s.handleYears)
		r.Get("/api/v1/rates", s.handleRates)
		r.Get("/api/v1/analysis", s.handleAnalysis)
		r.Get("/api/v1/analysis/chart.png", s.handleChart)
		r.Get("/sse/analysis", s.handleAnalysisSSE)
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
