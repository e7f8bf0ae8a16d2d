package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wasmlab-server/config"
	"wasmlab-server/logging"
	"wasmlab-server/middleware"
	"wasmlab-server/services"
)

const popTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load("")
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}
	log := logging.Must(cfg.Log.Level, cfg.Log.Development).Named("worker")
	defer log.Sync()
	if err := checkSharedStores(cfg); err != nil {
		log.Fatal("worker needs the server's stores", zap.Error(err))
	}
	if err := middleware.ConfigureXRay(); err != nil {
		log.Warn("failed to configure x-ray", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisService := services.NewRedisService(cfg.Redis.Host, cfg.Redis.Port).WithResultTTL(cfg.Worker.ResultTTL)
	defer redisService.Close()

	// Test connection
	if err := redisService.Ping(ctx); err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	log.Info("connected to redis", zap.String("host", cfg.Redis.Host), zap.Int("port", cfg.Redis.Port))

	storageService, err := services.NewStorageService(cfg.Storage.Type, cfg.Storage.Path)
	if err != nil {
		log.Fatal("failed to initialize storage service", zap.Error(err))
	}
	chainService, err := services.NewChainService(cfg.Chains, middleware.ChainRPCClient(cfg.Sandbox.TxTimeout, false), log.Named("chain"))
	if err != nil {
		log.Fatal("invalid chain config", zap.Error(err))
	}
	projectService, err := services.NewProjectService(cfg, redisService.Client(), chainService.Dispatcher(), log.Named("projects"))
	if err != nil {
		log.Fatal("failed to initialize projects", zap.Error(err))
	}
	defer projectService.Close(context.Background())

	executor := NewExecutor(projectService, storageService, cfg.Sandbox.InvokeTimeout, log)

	concurrency := cfg.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	log.Info("worker started", zap.String("queue", cfg.Worker.Queue), zap.Int("concurrency", concurrency))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := log.With(zap.Int("consumer", i))
		g.Go(func() error {
			return consume(gctx, redisService, executor, cfg.Worker.Queue, consumer)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker stopped", zap.Error(err))
	}
	log.Info("worker stopped")
}

// checkSharedStores rejects configs under which queued invocations would run
// against stores private to the worker process instead of the ones the server
// reads and writes.
func checkSharedStores(cfg config.Config) error {
	if cfg.KV.Backend != "redis" {
		return fmt.Errorf("kv.backend is %q, want \"redis\"", cfg.KV.Backend)
	}
	switch cfg.SQL.Dialect {
	case "postgres":
		return nil
	case "sqlite":
		if cfg.SQL.DataDir == "" {
			return errors.New("sqlite without sql.data_dir is private to this process")
		}
		return nil
	}
	return fmt.Errorf("unknown sql dialect %q", cfg.SQL.Dialect)
}

func consume(ctx context.Context, redisService *services.RedisService, executor *Executor, queue string, log *zap.Logger) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Block and wait for job from queue
		req, err := redisService.PopExecutionRequest(ctx, queue, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("error reading from queue", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if req == nil {
			continue // Timeout, no job available
		}

		log.Info("processing invocation", zap.String("invocation_id", req.InvocationID), zap.String("module_id", req.ModuleID))
		result := executor.Execute(ctx, req)

		if err := redisService.StoreResult(context.WithoutCancel(ctx), result); err != nil {
			log.Error("error storing result", zap.String("invocation_id", req.InvocationID), zap.Error(err))
			continue
		}
		log.Info("finished invocation",
			zap.String("invocation_id", req.InvocationID),
			zap.String("status", result.Status),
			zap.Int64("duration_ms", result.DurationMs))
	}
}
