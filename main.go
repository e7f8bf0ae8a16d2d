package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"

	"wasmlab-server/config"
	"wasmlab-server/handlers"
	"wasmlab-server/logging"
	"wasmlab-server/middleware"
	"wasmlab-server/services"

	_ "wasmlab-server/docs"
)

// @title wasmlab API
// @version 1.0
// @description Compile guest scripts to WebAssembly and run them in a sandbox with a fixed host ABI
// @host localhost:8080
// @BasePath /api
func main() {
	// Config
	cfg, err := config.Load("")
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}
	log := logging.Must(cfg.Log.Level, cfg.Log.Development)
	defer log.Sync()
	if err := middleware.ConfigureXRay(); err != nil {
		log.Warn("failed to configure x-ray", zap.Error(err))
	}

	// Initialize storage service
	storageService, err := services.NewStorageService(cfg.Storage.Type, cfg.Storage.Path)
	if err != nil {
		log.Fatal("failed to initialize storage service", zap.Error(err))
	}
	log.Info("storage service initialized", zap.String("type", cfg.Storage.Type), zap.String("path", cfg.Storage.Path))

	// Initialize Redis service
	redisService := services.NewRedisService(cfg.Redis.Host, cfg.Redis.Port).WithResultTTL(cfg.Worker.ResultTTL)
	defer redisService.Close()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 2*time.Second)
	if err := redisService.Ping(pingCtx); err != nil {
		if cfg.KV.Backend == "redis" {
			log.Fatal("redis is required by the kv backend", zap.Error(err))
		}
		log.Warn("redis unreachable, queued invocations will fail", zap.Error(err))
	}
	cancelPing()

	chainService, err := services.NewChainService(cfg.Chains, middleware.ChainRPCClient(cfg.Sandbox.TxTimeout, cfg.Server.XRayEnabled), log.Named("chain"))
	if err != nil {
		log.Fatal("invalid chain config", zap.Error(err))
	}

	projectService, err := services.NewProjectService(cfg, redisService.Client(), chainService.Dispatcher(), log.Named("projects"))
	if err != nil {
		log.Fatal("failed to initialize projects", zap.Error(err))
	}

	var payloads services.PayloadCache = services.NewMemoryPayloadCache()
	if cfg.KV.Backend == "redis" {
		payloads = services.NewRedisPayloadCache(redisService.Client())
	}

	compilerService := services.NewCompilerService(cfg.Compiler.ASCPath, cfg.Compiler.WorkDir, cfg.Compiler.Timeout, log.Named("compiler"))
	moduleService := services.NewModuleService(projectService, compilerService, storageService, payloads, redisService, services.ModuleConfig{
		Queue:         cfg.Worker.Queue,
		EntryPoint:    cfg.Sandbox.EntryPoint,
		InvokeTimeout: cfg.Sandbox.InvokeTimeout,
	}, log.Named("modules"))
	triggerService := services.NewTriggerService(moduleService, log.Named("triggers"))

	// Initialize handlers
	moduleHandler := handlers.NewModuleHandler(moduleService)
	projectHandler := handlers.NewProjectHandler(projectService)
	triggerHandler := handlers.NewTriggerHandler(triggerService)

	// Fiber App
	app := fiber.New(handlers.AppConfig())

	// Middleware
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))
	if cfg.Server.XRayEnabled {
		app.Use(middleware.XRayMiddleware(log))
	}

	// Swagger
	app.Get("/swagger/*", swagger.HandlerDefault)

	// Health endpoints
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "UP"})
	})

	// API routes
	api := app.Group("/api")
	project := api.Group("/projects/:project")

	project.Post("/modules", moduleHandler.CreateModule)
	project.Get("/modules", moduleHandler.ListModules)
	project.Get("/modules/:id", moduleHandler.GetModule)
	project.Put("/modules/:id", moduleHandler.UpdateModule)
	project.Delete("/modules/:id", moduleHandler.DeleteModule)
	project.Post("/modules/:id/debug", moduleHandler.DebugModule)
	project.Post("/modules/:id/invoke", moduleHandler.InvokeModule)
	project.Get("/modules/:id/logs", moduleHandler.GetLogs)
	project.Delete("/modules/:id/logs", moduleHandler.ResetLogs)
	project.Get("/modules/:id/payload", moduleHandler.GetPayload)
	project.Get("/invocations/:invocationId", moduleHandler.GetInvocationResult)

	project.Post("/tables", projectHandler.CreateTables)
	project.Get("/tables", projectHandler.ListTables)
	project.Get("/tables/export", projectHandler.ExportTables)
	project.Delete("/tables/:name", projectHandler.DropTable)
	project.Post("/sql", projectHandler.RunSQL)
	project.Get("/kv", projectHandler.ListKV)
	project.Get("/kv/:key", projectHandler.GetKV)
	project.Put("/kv/:key", projectHandler.SetKV)

	project.Post("/modules/:id/triggers", triggerHandler.CreateTrigger)
	project.Get("/triggers", triggerHandler.ListTriggers)
	project.Delete("/triggers/:triggerId", triggerHandler.DeleteTrigger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	log.Info("wasmlab server starting",
		zap.String("port", cfg.Server.Port),
		zap.String("sql", cfg.SQL.Dialect),
		zap.String("kv", cfg.KV.Backend),
		zap.Int("chains", len(cfg.Chains)))
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Error("server stopped", zap.Error(err))
	}

	triggerService.Close()
	moduleService.Close(context.Background())
	if err := projectService.Close(context.Background()); err != nil {
		log.Warn("failed to close projects", zap.Error(err))
	}
}
