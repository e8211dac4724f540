package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/http/handlers"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/depth"
)

type modelGetter interface {
	Get(ctx context.Context) (depth.Model, error)
}

// preload loads the model before serving. It gives up when ctx ends even
// though the load itself keeps running until MODEL_LOAD_TIMEOUT.
func preload(ctx context.Context, loader modelGetter) error {
	errc := make(chan error, 1)
	go func() {
		_, err := loader.Get(ctx)
		errc <- err
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type storageChecks interface {
	RedisHealth(ctx context.Context) string
	SupabaseHealth(ctx context.Context) string
	GetCacheStats(ctx context.Context) (map[string]interface{}, error)
}

type modelServer interface {
	Health(ctx context.Context) error
}

// newHealthHandler wires dependency checks. Redis counts only when the job
// store is in use; a worker that started without it still serves /runsync.
func newHealthHandler(
	model handlers.ModelState,
	stats func(context.Context) (map[string]interface{}, error),
	storage storageChecks,
	storeActive bool,
	server modelServer,
	logger *zap.Logger,
) *handlers.HealthHandler {
	h := handlers.NewHealthHandler(model, logger).
		AddCheck("supabase", storage.SupabaseHealth).
		AddCheck("model_server", func(ctx context.Context) string {
			if err := server.Health(ctx); err != nil {
				return "unhealthy: " + err.Error()
			}
			return "healthy"
		})

	if stats != nil {
		h.AddStats("model", stats)
	}

	if storeActive {
		h.AddCheck("redis", storage.RedisHealth).
			AddStats("cache", storage.GetCacheStats)
	} else {
		h.AddCheck("redis", func(context.Context) string { return handlers.NotConfigured })
	}
	return h
}
