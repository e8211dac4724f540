package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/models"
)

const JobKeyPrefix = "depth_job:"

var ErrJobNotFound = errors.New("job not found")

func JobKey(id string) string {
	return JobKeyPrefix + id
}

// SaveStatus stores the latest status of a job until the result TTL expires.
func (s *StorageService) SaveStatus(ctx context.Context, status *models.JobStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal job status: %w", err)
	}

	if err := s.redisClient.Set(ctx, JobKey(status.ID), data, s.resultTTL).Err(); err != nil {
		return fmt.Errorf("failed to store job status: %w", err)
	}
	return nil
}

func (s *StorageService) GetStatus(ctx context.Context, id string) (*models.JobStatus, error) {
	data, err := s.redisClient.Get(ctx, JobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("job status get error: %w", err)
	}

	var status models.JobStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job status: %w", err)
	}
	return &status, nil
}

func (s *StorageService) GetCacheStats(ctx context.Context) (map[string]interface{}, error) {
	pipeline := s.redisClient.Pipeline()

	dbSizeCmd := pipeline.DBSize(ctx)
	jobsCmd := pipeline.Keys(ctx, JobKeyPrefix+"*")

	if _, err := pipeline.Exec(ctx); err != nil {
		return nil, fmt.Errorf("pipeline error: %w", err)
	}

	return map[string]interface{}{
		"db_keys": dbSizeCmd.Val(),
		"jobs":    len(jobsCmd.Val()),
	}, nil
}
