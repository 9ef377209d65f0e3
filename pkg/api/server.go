package api

import (
	"context"
	"fmt"
	"net/http"
	gosync "sync"
	"time"

	"github.com/youngmoe/obsync/internal/logger"
	"github.com/youngmoe/obsync/pkg/auth"
	"github.com/youngmoe/obsync/pkg/config"
	"github.com/youngmoe/obsync/pkg/metrics"
	"github.com/youngmoe/obsync/pkg/store"
	"github.com/youngmoe/obsync/pkg/sync"
)

// Server is the HTTP server of the sync backend. It carries both the REST
// endpoints and the WebSocket sync routes on a single listener.
//
// The server supports graceful shutdown with a fixed timeout.
type Server struct {
	server       *http.Server
	host         string
	shutdownOnce gosync.Once
}

// NewServer creates the API HTTP server.
//
// The server is created in a stopped state. Call Start() to begin serving
// requests.
func NewServer(cfg *config.Config, st *store.Store, tokens *auth.TokenService, engine *sync.Engine, m *metrics.SyncMetrics) *Server {
	router := NewRouter(cfg, st, tokens, engine, m)

	server := &http.Server{
		Addr:    cfg.Host,
		Handler: router,
		// No WriteTimeout: WebSocket sessions hold the connection open for
		// as long as the client edits.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		server: server,
		host:   cfg.Host,
	}
}

// Start starts the HTTP server and blocks until the context is cancelled or
// an error occurs.
//
// When the context is cancelled, Start initiates graceful shutdown and
// returns.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "host", s.host)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("server shutdown signal received")
		// Create new context with timeout for graceful shutdown.
		// Don't use the cancelled ctx as it would cause immediate shutdown.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	}
}

// Stop initiates graceful shutdown of the server.
//
// Stop is safe to call multiple times and safe to call concurrently with
// Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			logger.Error("server shutdown error", "error", err)
		} else {
			logger.Info("server stopped gracefully")
		}
	})
	return shutdownErr
}
