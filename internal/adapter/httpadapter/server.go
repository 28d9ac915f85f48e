// Package httpadapter serves run observability for the report command: health,
// readiness, the current run stage, and Prometheus metrics.
package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/storm-impact-report/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunTracker is the view of a pipeline run the server exposes. Readiness
// turns true once the run has extracted its source data.
type RunTracker interface {
	sharedobs.ReadinessChecker
	Status() pipeline.Status
}

// Server exposes a report run over HTTP while it is in progress.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a server with /healthz, /readyz, /status and /metrics.
// Metrics come from gatherer rather than the global registry.
func NewServer(addr string, run RunTracker, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(run))
	mux.HandleFunc("GET /status", statusHandler(run))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}))

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// statusHandler reports the stage of the current run. A failed run answers
// 500 so scrapers can alert on it.
func statusHandler(run RunTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		st := run.Status()
		code := http.StatusOK
		if st.Stage == pipeline.StageFailed {
			code = http.StatusInternalServerError
		}
		sharedobs.WriteJSON(w, code, st)
	}
}

// Start listens until Shutdown. Returns http.ErrServerClosed after a graceful
// shutdown.
func (s *Server) Start() error {
	s.logger.Info("observability server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains connections within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("observability server stopping")
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP routes a request without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
