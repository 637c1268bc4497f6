package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	config "github.com/avatarctic/offline-cache/configs"
	"github.com/avatarctic/offline-cache/internal/application/services"
	"github.com/avatarctic/offline-cache/internal/core/ports"
	"github.com/avatarctic/offline-cache/internal/infrastructure/codec"
	"github.com/avatarctic/offline-cache/internal/infrastructure/db"
	"github.com/avatarctic/offline-cache/internal/infrastructure/health"
	"github.com/avatarctic/offline-cache/internal/infrastructure/memory"
	"github.com/avatarctic/offline-cache/internal/infrastructure/metrics"
	"github.com/avatarctic/offline-cache/internal/infrastructure/network"
	"github.com/avatarctic/offline-cache/internal/infrastructure/redis"
	"github.com/avatarctic/offline-cache/internal/infrastructure/repositories"
)

// app is the wired object graph shared by every command.
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	host     *services.Host
	checkers []ports.HealthChecker
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}
	return logger
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	a := &app{cfg: cfg, logger: newLogger(cfg.Log)}

	storage, err := a.openStorage()
	if err != nil {
		a.Close()
		return nil, err
	}

	fetcher := network.NewHTTPFetcher(cfg.Origin.Public, cfg.Origin.Upstream, cfg.Origin.Timeout, a.logger)
	a.checkers = append(a.checkers, health.NewUpstreamHealthChecker(fetcher))

	a.host = services.NewHost(services.HostConfig{
		Prefix:                cfg.Cache.Prefix,
		Origin:                cfg.Origin.Public,
		Manifest:              cfg.Cache.Manifest,
		FallbackOnServerError: cfg.Cache.FallbackOnServerError,
		SkipWaitingOnInstall:  cfg.Cache.SkipWaitingOnInstall,
	}, storage, fetcher, a.logger, metrics.NewCacheMetrics(prometheus.DefaultRegisterer))
	return a, nil
}

// openStorage connects the configured cache backend.
func (a *app) openStorage() (ports.CacheStorage, error) {
	cfg := a.cfg
	if cfg.Cache.Backend == config.BackendMemory {
		a.logger.Warn("Using in-memory cache storage - cached content is lost on restart")
		return memory.NewCacheStorage(), nil
	}

	entryCodec, err := codec.NewEntryCodec(cfg.Cache.CompressThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize entry codec: %w", err)
	}
	a.closers = append(a.closers, entryCodec.Close)

	switch cfg.Cache.Backend {
	case config.BackendRedis:
		client, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.checkers = append(a.checkers, health.NewRedisHealthChecker(client))
		a.logger.Info("Connected to Redis successfully")
		return redis.NewRedisCacheStorage(client, cfg.Redis.KeyPrefix, entryCodec), nil

	default:
		database, err := db.NewDatabaseWithConfig(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, func() { _ = database.Close() })
		a.logger.Info("Connected to database successfully")
		if err := database.Migrate(cfg.Database.MigrationsPath); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		a.checkers = append(a.checkers, health.NewDBHealthChecker(database))
		return repositories.NewCacheStorageRepository(database, entryCodec), nil
	}
}
