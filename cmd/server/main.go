package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackmichael/wish-lanterns/internal/config"
	"github.com/blackmichael/wish-lanterns/internal/domain"
	"github.com/blackmichael/wish-lanterns/internal/httpserver"
	"github.com/blackmichael/wish-lanterns/internal/postgres"
	"github.com/blackmichael/wish-lanterns/internal/sqlite"
)

// resyncDelay is the pause before the board mirror reconnects to a feed
// that ended.
const resyncDelay = time.Second

type store interface {
	domain.WishStore
	Close() error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	repo, err := openStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("create repository: %w", err)
	}
	defer repo.Close()
	logger.Info("connected to database", "driver", cfg.Driver())

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// The board mirrors the store for /api/board and the metrics gauges.
	board := domain.NewBoard(repo, logger)
	go board.Sync(ctx, resyncDelay)

	server := httpserver.NewServer(cfg, repo, board, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started", "port", cfg.Port)

	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (store, error) {
	if cfg.Driver() == config.DriverPostgres {
		return postgres.NewRepository(cfg.DatabaseURL, logger)
	}
	return sqlite.NewRepository(cfg.DatabaseURL, logger)
}
