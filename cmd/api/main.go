package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/swapyard/swapyard/internal/config"
	"github.com/swapyard/swapyard/internal/escrow"
	"github.com/swapyard/swapyard/internal/infra"
	"github.com/swapyard/swapyard/internal/ledger"
	"github.com/swapyard/swapyard/internal/logging"
	"github.com/swapyard/swapyard/internal/notification"
	"github.com/swapyard/swapyard/internal/offers"
	"github.com/swapyard/swapyard/internal/reaper"
	"github.com/swapyard/swapyard/internal/routes"
	"github.com/swapyard/swapyard/internal/server"
	"github.com/swapyard/swapyard/internal/transfer"
	"github.com/swapyard/swapyard/internal/wallet"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL, int32(cfg.DBMaxConns))
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

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

	var store ledger.Store
	if db != nil {
		store = ledger.NewPostgresStore(db)
	} else {
		store = ledger.NewMemoryStore()
		logger.Warn("no DATABASE_URL set, using in-memory store")
	}

	var gateway offers.Gateway
	var directory offers.Directory
	if cfg.OffersBaseURL != "" {
		client := offers.NewClient(cfg.OffersBaseURL)
		gateway, directory = client, client
	} else {
		mem := offers.NewMemoryGateway()
		gateway, directory = mem, mem
		logger.Warn("no OFFERS_BASE_URL set, using in-memory offers fixture")
	}

	notifier := notification.NewLoggerNotifier(logger)
	walletSvc := wallet.NewService(store, logger)
	escrowSvc := escrow.NewService(store, gateway, notifier, logger, escrow.Settings{
		FeeBps:         cfg.EscrowFeeBps,
		Window:         cfg.EscrowWindow,
		DefaultDeposit: cfg.ProtectionDeposit,
	})
	transferSvc := transfer.NewService(store, directory, notifier, logger)

	srv, err := server.New(routes.Deps{
		Cfg:       cfg,
		DB:        db,
		Cache:     cache,
		Logger:    logger,
		Wallets:   walletSvc,
		Escrows:   escrowSvc,
		Transfers: transferSvc,
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	if cfg.RedisURL != "" {
		sweep, err := reaper.New(cfg.RedisURL, cfg.SweepInterval, escrowSvc, logger)
		if err != nil {
			logger.Error("build sweep runner", "error", err)
			os.Exit(1)
		}
		if err := sweep.Start(); err != nil {
			logger.Error("start sweep runner", "error", err)
			os.Exit(1)
		}
		defer sweep.Shutdown()
	} else {
		logger.Warn("no REDIS_URL set, escrow auto-release sweep disabled")
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
