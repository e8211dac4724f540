package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/tyndreus1/depth-anything-3-serverless/pkg/utils"
)

var ErrUploadDisabled = errors.New("supabase storage is not configured")

// UploadDepthMap stores a rendered PNG and returns its public URL.
func (s *StorageService) UploadDepthMap(ctx context.Context, jobID string, data []byte) (string, error) {
	if s.sbClient == nil {
		return "", ErrUploadDisabled
	}

	key := utils.GenerateStorageKey(jobID, "png")

	if _, err := s.sbClient.UploadFile(s.bucket, key, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to upload to supabase: %w", err)
	}

	publicURL := s.sbClient.GetPublicUrl(s.bucket, key)
	return publicURL.SignedURL, nil
}
