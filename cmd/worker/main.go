package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/bootstrap"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/config"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/http/handlers"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/http/routes"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/logging"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/depth"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/handler"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/jobs"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/processor"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/queue"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/storage"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/webhook"
)

const localBacklog = 64

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	if configured, err := logging.New(cfg.Log); err != nil {
		logger.Warn("Invalid logging configuration, keeping defaults", zap.Error(err))
	} else {
		logger = configured
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("Worker stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Prepare the container
	if _, err := bootstrap.NewRunner(cfg.Bootstrap, logger).Run(ctx); err != nil {
		logger.Warn("Bootstrap incomplete, continuing", zap.Error(err))
	}

	// Model
	factory := depth.NewRemoteFactory(cfg.Model.ServerURL, cfg.Model.LoadTimeout, cfg.Model.InferenceTimeout)
	loader := depth.NewLoader(factory, cfg.Model.Name, cfg.Model.Device, depth.DetectAccelerator, logger)
	if cfg.Model.Preload {
		if err := preload(ctx, loader); err != nil {
			if ctx.Err() != nil {
				logger.Info("Shutdown signal received during model load")
				return nil
			}
			return err
		}
	}

	// Initialize services
	storageService := storage.NewStorageService(cfg)
	defer storageService.Close()

	var store jobs.StatusStore
	if err := storageService.Ping(ctx); err != nil {
		logger.Warn("Redis unavailable, job status will not be stored", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	} else {
		store = storageService
	}

	imageProcessor := processor.NewImageProcessor(cfg.Image.MaxBytes, cfg.Image.MaxPixels)
	jobHandler := handler.NewHandler(loader, imageProcessor, logger)
	if storageService.UploadsEnabled() {
		jobHandler.WithUploader(storageService)
	}

	runner := jobs.NewRunner(jobHandler, store, webhook.NewSender(logger), logger)

	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	modelStats := func(context.Context) (map[string]interface{}, error) {
		return map[string]interface{}{
			"name":   loader.Name(),
			"loaded": loader.Loaded(),
			"loads":  loader.Loads(),
		}, nil
	}
	healthHandler := newHealthHandler(loader, modelStats, storageService, store != nil, factory, logger)

	var (
		dispatcher   handlers.Dispatcher
		queueFatal   <-chan error
		pool         *jobs.Pool
		queueService *queue.QueueService
	)
	if cfg.RabbitMQ.Enabled() {
		var err error
		queueService, err = queue.NewQueueService(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, 1, runner, logger)
		if err != nil {
			logger.Warn("Failed to initialize queue service, using local workers", zap.Error(err))
		} else {
			defer queueService.Close()
			for i := 0; i < cfg.RabbitMQ.Workers; i++ {
				if err := queueService.StartWorker(workCtx, i); err != nil {
					return fmt.Errorf("failed to start queue worker: %w", err)
				}
			}
			dispatcher = queueService
			queueFatal = queueService.Fatal()
			healthHandler.
				AddCheck("queue", func(context.Context) string { return queueService.HealthCheck() }).
				AddStats("queue", func(context.Context) (map[string]interface{}, error) { return queueService.GetQueueStats() })
		}
	}
	if dispatcher == nil {
		pool = jobs.NewPool(runner, cfg.RabbitMQ.Workers, localBacklog, logger)
		pool.Start(workCtx)
		dispatcher = pool
		healthHandler.AddStats("queue", func(context.Context) (map[string]interface{}, error) {
			return map[string]interface{}{"name": "local", "messages": pool.Pending()}, nil
		})
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := routes.NewRouter(
		handlers.NewJobHandler(runner, dispatcher, store, logger),
		healthHandler,
		cfg.Server.APIKey,
		logger,
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout(),
		Handler:      router.SetupRoutes(),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("addr", server.Addr), zap.String("model", cfg.Model.Name))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var cause error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case cause = <-runner.Fatal():
		logger.Error("Model unavailable, shutting down", zap.Error(cause))
	case cause = <-queueFatal:
	case cause = <-serverErr:
		logger.Error("Server failed", zap.Error(cause))
	}

	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if pool != nil {
		pool.Stop()
	}
	cancelWork()
	if queueService != nil {
		if err := queueService.Wait(shutdownCtx); err != nil {
			logger.Error("Queue workers did not drain", zap.Error(err))
		}
	}

	logger.Info("Server exited")
	return cause
}
