package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rocketscienceinc/tictactoe-live/internal/entity"
)

type statsProvider interface {
	GetStats(ctx context.Context, userID string) (*entity.Stats, error)
}

type verifier interface {
	Verify(token string) (string, error)
}

type Server struct {
	logger *slog.Logger

	stats    statsProvider
	verifier verifier
}

func New(logger *slog.Logger, stats statsProvider, verifier verifier) *Server {
	return &Server{
		logger:   logger.With("component", "rest"),
		stats:    stats,
		verifier: verifier,
	}
}

func (that *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", that.handlePing)
	mux.HandleFunc("GET /stats/{userID}", that.handleStats)

	return mux
}

// Start - starts HTTP server and stops it when ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      that.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
