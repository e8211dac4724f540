package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/models"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/webhook"
)

// Processor runs a single job; see handler.Handler.
type Processor interface {
	Process(ctx context.Context, job models.Job) (*models.Result, error)
}

// StatusStore persists job statuses for /status lookups.
type StatusStore interface {
	SaveStatus(ctx context.Context, status *models.JobStatus) error
	GetStatus(ctx context.Context, id string) (*models.JobStatus, error)
}

// Runner wraps the handler with status bookkeeping and webhook delivery.
// It is shared by the HTTP and queue runtimes.
type Runner struct {
	processor Processor
	store     StatusStore
	webhooks  webhook.Sender
	logger    *zap.Logger

	fatalOnce sync.Once
	fatal     chan error
}

func NewRunner(processor Processor, store StatusStore, webhooks webhook.Sender, logger *zap.Logger) *Runner {
	return &Runner{
		processor: processor,
		store:     store,
		webhooks:  webhooks,
		logger:    logger,
		fatal:     make(chan error, 1),
	}
}

// Fatal yields the first error that leaves the worker unable to serve.
func (r *Runner) Fatal() <-chan error {
	return r.fatal
}

// Queued records a job accepted for asynchronous execution.
func (r *Runner) Queued(ctx context.Context, job models.Job) *models.JobStatus {
	now := time.Now()
	status := &models.JobStatus{
		ID:        job.ID,
		Status:    models.StatusInQueue,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.save(ctx, status)
	return status
}

// Rejected records a job that was accepted but could not be dispatched,
// replacing its IN_QUEUE status.
func (r *Runner) Rejected(ctx context.Context, job models.Job, cause error) *models.JobStatus {
	now := time.Now()
	status := &models.JobStatus{
		ID:        job.ID,
		Status:    models.StatusFailed,
		Error:     cause.Error(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.save(ctx, status)
	return status
}

// Execute runs job and returns its terminal status. createdAt is when the
// job entered the system and drives delayTime.
func (r *Runner) Execute(ctx context.Context, job models.Job, createdAt time.Time) *models.JobStatus {
	started := time.Now()
	if createdAt.IsZero() {
		createdAt = started
	}

	status := &models.JobStatus{
		ID:        job.ID,
		Status:    models.StatusInProgress,
		DelayTime: started.Sub(createdAt).Milliseconds(),
		CreatedAt: createdAt,
		UpdatedAt: started,
	}
	r.save(ctx, status)

	result, err := r.processor.Process(ctx, job)

	final := *status
	final.Output = result
	final.Status = models.StatusCompleted
	final.ExecutionTime = time.Since(started).Milliseconds()
	final.UpdatedAt = time.Now()
	if err != nil {
		final.Status = models.StatusFailed
		final.Error = err.Error()
		r.signalFatal(err)
	}

	r.save(ctx, &final)
	r.notify(ctx, job.Webhook, &final)

	return &final
}

func (r *Runner) save(ctx context.Context, status *models.JobStatus) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveStatus(ctx, status); err != nil {
		r.logger.Warn("Failed to store job status",
			zap.String("job_id", status.ID),
			zap.String("status", status.Status),
			zap.Error(err))
	}
}

func (r *Runner) notify(ctx context.Context, url string, status *models.JobStatus) {
	if url == "" || r.webhooks == nil {
		return
	}
	if err := r.webhooks.Send(ctx, url, status); err != nil {
		r.logger.Error("Failed to send webhook",
			zap.String("job_id", status.ID),
			zap.String("url", url),
			zap.Error(err))
	}
}

func (r *Runner) signalFatal(err error) {
	r.fatalOnce.Do(func() {
		r.fatal <- err
	})
}
