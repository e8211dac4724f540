package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/replicate/go/httpclient"
	"go.uber.org/zap"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/models"
)

// Sender delivers final job statuses to the webhook named in the job.
type Sender interface {
	Send(ctx context.Context, url string, status *models.JobStatus) error
}

var _ Sender = (*DefaultSender)(nil)

type DefaultSender struct {
	logger *zap.Logger
	client *http.Client
}

func NewSender(logger *zap.Logger) *DefaultSender {
	return &DefaultSender{
		logger: logger.Named("webhook"),
		client: httpclient.ApplyRetryPolicy(http.DefaultClient),
	}
}

func (s *DefaultSender) Send(ctx context.Context, url string, status *models.JobStatus) error {
	if url == "" {
		return nil
	}

	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	s.logger.Debug("Webhook delivered",
		zap.String("job_id", status.ID),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode))
	return nil
}
