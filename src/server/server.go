package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"riskengine/src/engine"
	"riskengine/src/handler"
	"riskengine/src/model"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"
)

// Engine is the part of the evaluation loop the HTTP surface needs.
type Engine interface {
	Snapshot() engine.Status
	Positions() []model.Position
	SubmitOverride(ctx context.Context) error
}

type TokenVerifier interface {
	Verify(token string) error
}

type EventLister interface {
	Recent(ctx context.Context, limit int) ([]model.RiskEventRecord, error)
}

// Routes wires the handlers. Events may be nil when the journal is disabled.
type Routes struct {
	Engine   Engine
	Verifier TokenVerifier
	Events   EventLister
}

func NewRouter(routes Routes) http.Handler {
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/status", handler.StatusHandler(routes.Engine))
	r.Get("/positions", handler.PositionsHandler(routes.Engine))
	if routes.Events != nil {
		r.Get("/events", handler.RecentEventsHandler(routes.Events))
	}

	// Operator routes
	r.Post("/override", handler.OverrideHandler(routes.Verifier, routes.Engine, routes.Engine))

	return r
}

// StartServer serves until ctx is cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, cfg *Config, h http.Handler) error {
	addr := ":" + cfg.Port
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, h, cfg)
}

func Serve(ctx context.Context, ln net.Listener, h http.Handler, cfg *Config) error {
	srv := &http.Server{
		Handler: h,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		logger.WithError(err).Error("Server crashed")
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
