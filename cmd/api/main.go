package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/mekong-bank/mekong_bank/internal/config"
	"github.com/mekong-bank/mekong_bank/internal/infra"
	"github.com/mekong-bank/mekong_bank/internal/logging"
	"github.com/mekong-bank/mekong_bank/internal/server"
	"github.com/mekong-bank/mekong_bank/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	var (
		st store.Store
		db *pgxpool.Pool
	)
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		st, err = store.NewPostgres(ctx, db, logger)
		if err != nil {
			logger.Error("init postgres store", "error", err)
			os.Exit(1)
		}
		logger.Info("using postgres store")
	} else {
		ldb, err := infra.OpenLevelDB(cfg.DataDir)
		if err != nil {
			logger.Error("open leveldb", "error", err)
			os.Exit(1)
		}
		st = store.NewLevelDB(ldb, logger)
		logger.Info("using leveldb store", "dir", cfg.DataDir)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("close store", "error", err)
		}
	}()

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	srv, err := server.New(cfg, st, db, cache, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
