// Package ops serves the operational HTTP endpoints next to the gRPC API:
// Prometheus metrics, liveness and readiness.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/logging"
	"github.com/dmitrijs2005/happypaisa/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker reports chain and queue health; *services.HealthService is one.
type Checker interface {
	Check(ctx context.Context) services.Health
}

type Server struct {
	address string
	checker Checker
	logger  logging.Logger
}

func NewServer(address string, c Checker, l logging.Logger) *Server {
	return &Server{address: address, checker: c, logger: l.With("module", "ops")}
}

// Handler routes /metrics, /healthz and /readyz. /readyz turns 503 while
// the chain is unreachable.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", s.ready)
	return r
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	h := s.checker.Check(r.Context())

	code := http.StatusOK
	if !h.ChainOK {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(h); err != nil {
		s.logger.Warn(r.Context(), "error writing readiness", "error", err)
	}
}

// Serve blocks until ctx ends, then shuts the server down.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting ops server", "address", l.Addr().String())
		errCh <- srv.Serve(l)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		s.logger.Info(ctx, "Stopping ops server")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}
