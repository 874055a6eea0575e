package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rocketscienceinc/tictactoe-live/internal/broadcast"
	"github.com/rocketscienceinc/tictactoe-live/internal/config"
	"github.com/rocketscienceinc/tictactoe-live/internal/entity"
	"github.com/rocketscienceinc/tictactoe-live/internal/repository"
	"github.com/rocketscienceinc/tictactoe-live/internal/repository/memory"
	"github.com/rocketscienceinc/tictactoe-live/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-live/internal/service"
	"github.com/rocketscienceinc/tictactoe-live/internal/usecase"
	"github.com/rocketscienceinc/tictactoe-live/internal/worker"
	"github.com/rocketscienceinc/tictactoe-live/transport/rest"
	"github.com/rocketscienceinc/tictactoe-live/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

type stores struct {
	matches repository.MatchRepository
	users   repository.UserRepository
	close   func() error
}

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	st, err := openStores(ctx, conf)
	if err != nil {
		return err
	}

	defer func() {
		if err = st.close(); err != nil {
			log.Error("could not close storage", "error", err)
		}
	}()

	if err = seedUsers(ctx, st.users, conf.Users); err != nil {
		return err
	}

	gateway := broadcast.New(logger)
	authService := service.NewAuthService(conf.JWTSecretKey)
	matchManager := usecase.NewMatchManager(logger, st.matches, st.users, gateway)

	sweeper := worker.NewSweeper(logger, matchManager, conf.Session.SweepInterval, conf.Session.IdleTTL)
	if err = sweeper.Start(); err != nil {
		return fmt.Errorf("could not start sweeper: %w", err)
	}

	defer func() {
		if err = sweeper.Stop(); err != nil {
			log.Error("could not stop sweeper", "error", err)
		}
	}()

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		restServer := rest.New(logger, matchManager, authService)
		if httpErr := restServer.Start(ctx, conf.HTTPPort); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		wsServer := websocket.New(logger, matchManager, authService, st.users, conf.Session.SendBuffer)
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

func openStores(ctx context.Context, conf *config.Config) (*stores, error) {
	if conf.Storage == config.StorageMemory {
		return &stores{
			matches: memory.NewMatchStore(),
			users:   memory.NewUserStore(),
			close:   func() error { return nil },
		}, nil
	}

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return nil, ErrAddrNotFound
	}

	redisStorage, err := storage.New(ctx, redisAddrString)
	if err != nil {
		return nil, fmt.Errorf("could not connect to redis storage: %w", err)
	}

	return &stores{
		matches: repository.NewMatchRepository(redisStorage),
		users:   repository.NewUserRepository(redisStorage),
		close:   redisStorage.Close,
	}, nil
}

func seedUsers(ctx context.Context, users repository.UserRepository, seed []config.User) error {
	for _, user := range seed {
		if err := users.CreateOrUpdate(ctx, &entity.User{ID: user.ID, Name: user.Name}); err != nil {
			return fmt.Errorf("could not seed user %s: %w", user.ID, err)
		}
	}

	return nil
}
