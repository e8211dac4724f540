package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/models"
)

var ErrPoolFull = errors.New("job backlog is full")

var ErrPoolStopped = errors.New("job pool is stopped")

// Executor is the part of Runner the pool drives.
type Executor interface {
	Execute(ctx context.Context, job models.Job, createdAt time.Time) *models.JobStatus
}

type task struct {
	job       models.Job
	createdAt time.Time
}

// Pool runs asynchronous jobs in-process when no broker is configured.
type Pool struct {
	executor Executor
	workers  int
	tasks    chan task
	logger   *zap.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func NewPool(executor Executor, workers, backlog int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if backlog < 0 {
		backlog = 0
	}
	return &Pool{
		executor: executor,
		workers:  workers,
		tasks:    make(chan task, backlog),
		logger:   logger,
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
	p.logger.Info("Local job pool started", zap.Int("workers", p.workers), zap.Int("backlog", cap(p.tasks)))
}

func (p *Pool) work(ctx context.Context, workerID int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			status := p.executor.Execute(ctx, t.job, t.createdAt)
			p.logger.Info("Job finished",
				zap.String("job_id", t.job.ID),
				zap.String("status", status.Status),
				zap.Int("worker_id", workerID))
		}
	}
}

// PublishJob enqueues job without blocking. It mirrors the broker-backed
// publisher so the HTTP layer can use either.
func (p *Pool) PublishJob(ctx context.Context, job models.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.tasks <- task{job: job, createdAt: time.Now()}:
		return nil
	default:
		return ErrPoolFull
	}
}

// Pending is the number of accepted jobs not yet picked up.
func (p *Pool) Pending() int {
	return len(p.tasks)
}

// Stop rejects new jobs and waits for in-flight ones to drain.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
