// Package main is the entry point for the quipubase server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quipubase/quipubase/internal/api"
	"github.com/quipubase/quipubase/internal/autoload"
	"github.com/quipubase/quipubase/internal/cache"
	"github.com/quipubase/quipubase/internal/config"
	"github.com/quipubase/quipubase/internal/kv"
	"github.com/quipubase/quipubase/internal/kv/badger"
	"github.com/quipubase/quipubase/internal/kv/memory"
	"github.com/quipubase/quipubase/internal/kv/mysql"
	"github.com/quipubase/quipubase/internal/kv/postgres"
	"github.com/quipubase/quipubase/internal/logging"
	"github.com/quipubase/quipubase/internal/metrics"
	"github.com/quipubase/quipubase/internal/pubsub"
	"github.com/quipubase/quipubase/internal/registry"
	"github.com/quipubase/quipubase/internal/store"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("quipubase %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Bootstrap logger until the configured one is up
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, closeLogs, err := logging.Setup(cfg.Logging)
	if err != nil {
		slog.Error("failed to set up logging", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := closeLogs(); err != nil {
			fmt.Fprintf(os.Stderr, "log sink close error: %v\n", err)
		}
	}()

	logger.Info("starting quipubase",
		slog.String("version", version),
		slog.String("storage", cfg.Storage.Type),
		slog.String("address", cfg.Address()),
	)

	// Create the key-value backend
	kvStore, err := createStorage(cfg, logger)
	if err != nil {
		logger.Error("failed to create storage backend", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Wire the core: one metrics registry shared by the bus and the server.
	m := metrics.New()
	bus := pubsub.New(cfg.Stream.BufferSize, logger, m)
	models := cache.NewModelCache(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTL)*time.Second)
	reg := registry.New(kvStore, models, bus, logger, m)
	st := store.New(kvStore, bus, logger, m)

	server := api.NewServer(cfg, reg, st, bus, logger, m, version)

	// Schema autoload
	autoloadCtx, stopAutoload := context.WithCancel(context.Background())
	defer stopAutoload()
	if cfg.Autoload.Enabled {
		loader := autoload.New(reg, cfg.Autoload.Dir, logger)
		if err := loader.Start(autoloadCtx); err != nil {
			logger.Error("schema autoload unavailable",
				slog.String("dir", cfg.Autoload.Dir),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("schema autoload watching", slog.String("dir", cfg.Autoload.Dir))
		}
	}

	// Handle shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Wait for shutdown signal or error
	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			if cerr := kvStore.Close(); cerr != nil {
				logger.Error("storage close error", slog.String("error", cerr.Error()))
			}
			os.Exit(1)
		}
	case sig := <-shutdown:
		logger.Info("shutting down", slog.String("signal", sig.String()))

		// Refuse new work, then end every live stream so the HTTP
		// shutdown below is not held open by subscribers.
		server.BeginDrain()
		bus.CloseAll()
		stopAutoload()

		ctx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
		}

		if err := kvStore.Close(); err != nil {
			logger.Error("storage close error", slog.String("error", err.Error()))
		}
	}

	logger.Info("shutdown complete")
}

// createStorage creates the appropriate key-value backend based on configuration.
func createStorage(cfg *config.Config, logger *slog.Logger) (kv.Store, error) {
	switch cfg.Storage.Type {
	case "memory":
		logger.Info("using in-memory storage")
		return memory.NewStore(), nil

	case "badger":
		logger.Info("opening badger database", slog.String("path", cfg.Storage.Path))
		return badger.NewStore(badger.Config{
			Path:       cfg.Storage.Path,
			SyncWrites: true,
			Logger:     logger,
		})

	case "postgres":
		logger.Info("connecting to PostgreSQL",
			slog.String("host", cfg.Storage.Postgres.Host),
			slog.Int("port", cfg.Storage.Postgres.Port),
			slog.String("database", cfg.Storage.Postgres.Database),
		)
		pgCfg := postgres.DefaultConfig()
		if cfg.Storage.Postgres.Host != "" {
			pgCfg.Host = cfg.Storage.Postgres.Host
		}
		if cfg.Storage.Postgres.Port != 0 {
			pgCfg.Port = cfg.Storage.Postgres.Port
		}
		if cfg.Storage.Postgres.Database != "" {
			pgCfg.Database = cfg.Storage.Postgres.Database
		}
		if cfg.Storage.Postgres.User != "" {
			pgCfg.Username = cfg.Storage.Postgres.User
		}
		if cfg.Storage.Postgres.Password != "" {
			pgCfg.Password = cfg.Storage.Postgres.Password
		}
		if cfg.Storage.Postgres.SSLMode != "" {
			pgCfg.SSLMode = cfg.Storage.Postgres.SSLMode
		}
		if cfg.Storage.Postgres.MaxOpenConns != 0 {
			pgCfg.MaxOpenConns = cfg.Storage.Postgres.MaxOpenConns
		}
		if cfg.Storage.Postgres.MaxIdleConns != 0 {
			pgCfg.MaxIdleConns = cfg.Storage.Postgres.MaxIdleConns
		}
		if cfg.Storage.Postgres.ConnMaxLifetime != 0 {
			pgCfg.ConnMaxLifetime = time.Duration(cfg.Storage.Postgres.ConnMaxLifetime) * time.Second
		}
		return postgres.NewStore(pgCfg)

	case "mysql":
		logger.Info("connecting to MySQL",
			slog.String("host", cfg.Storage.MySQL.Host),
			slog.Int("port", cfg.Storage.MySQL.Port),
			slog.String("database", cfg.Storage.MySQL.Database),
		)
		myCfg := mysql.DefaultConfig()
		if cfg.Storage.MySQL.Host != "" {
			myCfg.Host = cfg.Storage.MySQL.Host
		}
		if cfg.Storage.MySQL.Port != 0 {
			myCfg.Port = cfg.Storage.MySQL.Port
		}
		if cfg.Storage.MySQL.Database != "" {
			myCfg.Database = cfg.Storage.MySQL.Database
		}
		if cfg.Storage.MySQL.User != "" {
			myCfg.Username = cfg.Storage.MySQL.User
		}
		if cfg.Storage.MySQL.Password != "" {
			myCfg.Password = cfg.Storage.MySQL.Password
		}
		if cfg.Storage.MySQL.TLS != "" {
			myCfg.TLS = cfg.Storage.MySQL.TLS
		}
		if cfg.Storage.MySQL.MaxOpenConns != 0 {
			myCfg.MaxOpenConns = cfg.Storage.MySQL.MaxOpenConns
		}
		if cfg.Storage.MySQL.MaxIdleConns != 0 {
			myCfg.MaxIdleConns = cfg.Storage.MySQL.MaxIdleConns
		}
		if cfg.Storage.MySQL.ConnMaxLifetime != 0 {
			myCfg.ConnMaxLifetime = time.Duration(cfg.Storage.MySQL.ConnMaxLifetime) * time.Second
		}
		return mysql.NewStore(myCfg)

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}
