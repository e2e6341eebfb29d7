package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"courtclip/internal/logging"
)

// Router mounts /metrics and /healthz.
func Router(m *Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", m.Handler())
	return r
}

// Serve runs the metrics server on addr until ctx is cancelled. An empty addr
// disables the server and returns immediately.
func Serve(ctx context.Context, addr string, m *Metrics, logger *slog.Logger) error {
	if addr == "" {
		return nil
	}
	logger = logging.NewComponentLogger(logger, "telemetry")
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           Router(m),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", logging.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "metrics_shutdown_failed"),
				logging.String(logging.FieldErrorHint, "the process will exit regardless"),
				logging.String(logging.FieldImpact, "in-flight scrapes may be cut short"),
			)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
