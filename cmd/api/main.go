package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/timelock/internal/clock"
	"github.com/congo-pay/timelock/internal/config"
	"github.com/congo-pay/timelock/internal/infra"
	"github.com/congo-pay/timelock/internal/logging"
	"github.com/congo-pay/timelock/internal/routes"
	"github.com/congo-pay/timelock/internal/scheduler"
	"github.com/congo-pay/timelock/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.OpenPostgres(ctx, cfg.DatabaseURL, cfg.AppName)
		if err != nil {
			logger.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory ledger and records")
	}

	var (
		cache    *redis.Client
		queue    *asynq.Client
		redisOpt asynq.RedisConnOpt
	)
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL, cfg.AppName)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		queue, redisOpt, err = infra.NewTaskQueue(cfg.RedisURL)
		if err != nil {
			logger.Error("connect task queue", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := queue.Close(); err != nil {
				logger.Warn("close task queue", "error", err)
			}
		}()
	} else {
		logger.Warn("REDIS_URL not set, idempotency, rate limiting and link expiry notices are disabled")
	}

	emitter, closeEmitter, err := infra.NewEmitter(cfg.KafkaBrokers, cfg.KafkaTopic, logging.WithComponent(logger, "events"))
	if err != nil {
		logger.Error("build event emitter", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeEmitter(); err != nil {
			logger.Warn("close event emitter", "error", err)
		}
	}()

	deps := routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger}
	services, err := routes.NewServices(ctx, deps, queue, emitter, clock.System{})
	if err != nil {
		logger.Error("build services", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(deps, services)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	var worker *scheduler.Worker
	if redisOpt != nil {
		worker = scheduler.NewWorker(redisOpt, cfg.WorkerConcurrency, services.Link, logging.WithComponent(logger, "worker"))
		if err := worker.Start(); err != nil {
			logger.Error("start task worker", "error", err)
			os.Exit(1)
		}
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
		if worker != nil {
			worker.Shutdown()
		}
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
	if worker != nil {
		worker.Shutdown()
	}

	logger.Info("server exited cleanly")
}
