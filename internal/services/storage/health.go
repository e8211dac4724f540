package storage

import (
	"context"

	storage_go "github.com/supabase-community/storage-go"
)

const notConfigured = "not configured"

func (s *StorageService) Ping(ctx context.Context) error {
	return s.redisClient.Ping(ctx).Err()
}

func (s *StorageService) RedisHealth(ctx context.Context) string {
	if err := s.Ping(ctx); err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}

// SupabaseHealth lists the bucket root. storage-go has no context support.
func (s *StorageService) SupabaseHealth(_ context.Context) string {
	if s.sbClient == nil {
		return notConfigured
	}
	if _, err := s.sbClient.ListFiles(s.bucket, "", storage_go.FileSearchOptions{}); err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}
