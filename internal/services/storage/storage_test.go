package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/config"
)

func unreachableConfig() *config.Config {
	return &config.Config{
		Redis: config.RedisConfig{Addr: "127.0.0.1:1", ResultTTL: time.Minute},
	}
}

func TestJobKey(t *testing.T) {
	assert.Equal(t, "depth_job:abc-123", JobKey("abc-123"))
}

func TestUploadDisabled(t *testing.T) {
	s := NewStorageService(unreachableConfig(), ServiceOptions{MaxRetries: -1, Timeout: 100 * time.Millisecond})
	defer s.Close()

	assert.False(t, s.UploadsEnabled())

	_, err := s.UploadDepthMap(context.Background(), "job", []byte("png"))
	require.ErrorIs(t, err, ErrUploadDisabled)
}

func TestUploadsEnabledWithSupabase(t *testing.T) {
	cfg := unreachableConfig()
	cfg.Supabase = config.SupabaseConfig{URL: "https://project.supabase.co", KEY: "key", BUCKET: "depth"}

	s := NewStorageService(cfg, ServiceOptions{MaxRetries: -1, Timeout: 100 * time.Millisecond})
	defer s.Close()

	assert.True(t, s.UploadsEnabled())
}

func TestHealthCheckUnreachableRedis(t *testing.T) {
	s := NewStorageService(unreachableConfig(), ServiceOptions{MaxRetries: -1, Timeout: 100 * time.Millisecond})
	defer s.Close()

	assert.Contains(t, s.RedisHealth(context.Background()), "unhealthy")
	assert.Equal(t, "not configured", s.SupabaseHealth(context.Background()))
}

func TestGetStatusUnreachableRedis(t *testing.T) {
	s := NewStorageService(unreachableConfig(), ServiceOptions{MaxRetries: -1, Timeout: 100 * time.Millisecond})
	defer s.Close()

	_, err := s.GetStatus(context.Background(), "missing")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrJobNotFound)
}
