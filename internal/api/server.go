package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/correlator-io/alertmon/internal/api/middleware"
	"github.com/correlator-io/alertmon/internal/monitor"
)

type (
	// Monitor runs the alert and report operations behind the HTTP handlers.
	Monitor interface {
		Alerts(ctx context.Context, req monitor.Request) (*monitor.AlertsResult, error)
		Report(ctx context.Context, req monitor.Request) (*monitor.Report, error)
		Ready(ctx context.Context) error
	}

	// Server represents the HTTP API server.
	Server struct {
		httpServer  *http.Server
		handler     http.Handler
		logger      *slog.Logger
		config      *ServerConfig
		monitor     Monitor
		rateLimiter middleware.RateLimiter
		startTime   time.Time
	}
)

// NewServer wires routes and the middleware stack. A nil rateLimiter disables rate limiting.
func NewServer(cfg *ServerConfig, mon Monitor, rateLimiter middleware.RateLimiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	server := &Server{
		logger:      logger,
		config:      cfg,
		monitor:     mon,
		rateLimiter: rateLimiter,
		startTime:   time.Now(),
	}

	mux := http.NewServeMux()
	server.setupRoutes(mux)

	if rateLimiter == nil {
		logger.Warn("RateLimiter not configured - rate limiting middleware disabled")
	}

	// Order: correlation id for every response, recovery around everything
	// below it, rate limiting before any warehouse work, then request logging.
	server.handler = middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithRateLimit(rateLimiter, logger, probePaths...),
		middleware.WithRequestLogger(logger),
	)

	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      server.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting alertmon API server",
			slog.String("address", s.config.Address()),
			slog.String("version", s.config.Version),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		s.logger.Info("Received shutdown signal")

		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed",
			slog.String("error", err.Error()),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if closer, ok := s.rateLimiter.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logger.Error("Failed to close rate limiter", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("Server shutdown completed successfully")

	return nil
}
