package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/inful/neuroflow/internal/logfields"
)

// HTTPHandler serves reg in the OpenMetrics exposition format. A nil reg
// falls back to the global registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true, Registry: reg})
}

// Server exposes /metrics and a /healthz probe for long-running commands.
type Server struct {
	srv    *http.Server
	logger *slog.Logger

	once        sync.Once
	shutdownErr error
}

func NewServer(listen string, reg *prom.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", HTTPHandler(reg))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return &Server{
		srv:    &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		logger: logger.With(slog.String("listen", listen)),
	}
}

// Start listens in the background. Listen failures are logged, not returned,
// since a missing metrics endpoint must not stop a pipeline run.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Serving metrics")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server failed", logfields.Error(err))
		}
	}()
}

// Shutdown waits up to five seconds for in-flight scrapes. Only the first
// call does any work.
func (s *Server) Shutdown() error {
	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.shutdownErr = s.srv.Shutdown(ctx)
	})
	return s.shutdownErr
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }
