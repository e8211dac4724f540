package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/models"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/jobs"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/storage"
)

// Executor runs and records jobs; see jobs.Runner.
type Executor interface {
	Execute(ctx context.Context, job models.Job, createdAt time.Time) *models.JobStatus
	Queued(ctx context.Context, job models.Job) *models.JobStatus
	Rejected(ctx context.Context, job models.Job, cause error) *models.JobStatus
}

// Dispatcher hands a job to whatever runs /run requests: the broker or
// the local pool.
type Dispatcher interface {
	PublishJob(ctx context.Context, job models.Job) error
}

type JobHandler struct {
	executor   Executor
	dispatcher Dispatcher
	store      jobs.StatusStore
	logger     *zap.Logger
}

func NewJobHandler(executor Executor, dispatcher Dispatcher, store jobs.StatusStore, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		executor:   executor,
		dispatcher: dispatcher,
		store:      store,
		logger:     logger,
	}
}

// RunSync processes the job inline and replies with its terminal status.
func (h *JobHandler) RunSync(c *gin.Context) {
	job, ok := h.bindJob(c)
	if !ok {
		return
	}

	status := h.executor.Execute(c.Request.Context(), job, time.Now())
	c.JSON(http.StatusOK, status)
}

// Run accepts the job for asynchronous processing.
func (h *JobHandler) Run(c *gin.Context) {
	job, ok := h.bindJob(c)
	if !ok {
		return
	}
	if h.dispatcher == nil {
		respondError(c, http.StatusServiceUnavailable, "asynchronous jobs are not enabled")
		return
	}

	queued := h.executor.Queued(c.Request.Context(), job)
	if err := h.dispatcher.PublishJob(c.Request.Context(), job); err != nil {
		h.logger.Error("Failed to dispatch job", zap.String("job_id", job.ID), zap.Error(err))
		// The IN_QUEUE record must not outlive the rejection.
		h.executor.Rejected(c.Request.Context(), job, err)

		code := http.StatusServiceUnavailable
		if errors.Is(err, jobs.ErrPoolFull) {
			code = http.StatusTooManyRequests
		}
		respondError(c, code, "failed to enqueue job: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, models.JobStatus{
		ID:        queued.ID,
		Status:    queued.Status,
		CreatedAt: queued.CreatedAt,
		UpdatedAt: queued.UpdatedAt,
	})
}

func (h *JobHandler) Status(c *gin.Context) {
	if h.store == nil {
		respondError(c, http.StatusServiceUnavailable, "job store is not configured")
		return
	}

	id := c.Param("id")
	status, err := h.store.GetStatus(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			respondError(c, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("Failed to read job status", zap.String("job_id", id), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to read job status")
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *JobHandler) bindJob(c *gin.Context) (models.Job, bool) {
	var job models.Job
	if err := c.ShouldBindJSON(&job); err != nil {
		respondError(c, http.StatusBadRequest, "invalid job payload: "+err.Error())
		return job, false
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	return job, true
}

func respondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, models.APIResponse{
		Success: false,
		Error:   message,
	})
}
