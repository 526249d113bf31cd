package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
	srv    *http.Server
}

func New(port int, timeout time.Duration, logger *slog.Logger, limiter *RateLimiter) *Server {
	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	if limiter != nil {
		r.Use(limiter.Middleware)
	}

	r.Use(TimeoutMiddleware(timeout))
	r.Use(middleware.Recoverer)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "contextgate")
	})

	return &Server{
		Router: r,
		Port:   port,
		logger: logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Port),
		Handler: s.Router,
	}
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests before returning.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
