package storage

import (
	"time"

	"github.com/redis/go-redis/v9"
	storage_go "github.com/supabase-community/storage-go"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/config"
)

type StorageService struct {
	sbClient    *storage_go.Client
	redisClient *redis.Client
	bucket      string
	resultTTL   time.Duration
}

type ServiceOptions struct {
	MaxRetries int
	Timeout    time.Duration
}

var DefaultOptions = ServiceOptions{
	MaxRetries: 3,
	Timeout:    5 * time.Second,
}

func NewStorageService(cfg *config.Config, opts ...ServiceOptions) *StorageService {
	options := DefaultOptions
	if len(opts) > 0 {
		options = opts[0]
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   options.MaxRetries,
		DialTimeout:  options.Timeout,
		ReadTimeout:  options.Timeout,
		WriteTimeout: options.Timeout,
	})

	s := &StorageService{
		redisClient: redisClient,
		bucket:      cfg.Supabase.BUCKET,
		resultTTL:   cfg.Redis.ResultTTL,
	}

	if cfg.Supabase.Enabled() {
		s.sbClient = storage_go.NewClient(cfg.Supabase.URL+"/storage/v1", cfg.Supabase.KEY, nil)
	}

	return s
}

// UploadsEnabled reports whether a Supabase bucket is configured.
func (s *StorageService) UploadsEnabled() bool {
	return s.sbClient != nil
}

func (s *StorageService) Close() error {
	return s.redisClient.Close()
}
