package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/models"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/depth"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/jobs"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/storage"
)

type fakeExecutor struct {
	mu     sync.Mutex
	jobs   []models.Job
	queued []models.Job
}

func (e *fakeExecutor) Execute(_ context.Context, job models.Job, createdAt time.Time) *models.JobStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, job)
	return &models.JobStatus{
		ID:        job.ID,
		Status:    models.StatusCompleted,
		Output:    &models.Result{Success: true, DepthMap: "cG5n"},
		CreatedAt: createdAt,
	}
}

func (e *fakeExecutor) Queued(_ context.Context, job models.Job) *models.JobStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queued = append(e.queued, job)
	return &models.JobStatus{ID: job.ID, Status: models.StatusInQueue}
}

func (e *fakeExecutor) Rejected(_ context.Context, job models.Job, cause error) *models.JobStatus {
	return &models.JobStatus{ID: job.ID, Status: models.StatusFailed, Error: cause.Error()}
}

type fakeDispatcher struct {
	jobs []models.Job
	err  error
}

func (d *fakeDispatcher) PublishJob(_ context.Context, job models.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type fakeStore struct {
	statuses map[string]*models.JobStatus
	err      error
}

func (s *fakeStore) SaveStatus(_ context.Context, status *models.JobStatus) error {
	s.statuses[status.ID] = status
	return nil
}

func (s *fakeStore) GetStatus(_ context.Context, id string) (*models.JobStatus, error) {
	if s.err != nil {
		return nil, s.err
	}
	status, ok := s.statuses[id]
	if !ok {
		return nil, storage.ErrJobNotFound
	}
	return status, nil
}

type fakeModelState struct {
	loaded bool
	err    error
}

func (m fakeModelState) Name() string            { return "depth-anything/DA3-LARGE" }
func (m fakeModelState) Loaded() bool            { return m.loaded }
func (m fakeModelState) Device() depth.Device    { return depth.DeviceCUDA }
func (m fakeModelState) LoadTime() time.Duration { return 1234 * time.Millisecond }
func (m fakeModelState) Err() error              { return m.err }

func newJobEngine(h *JobHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.POST("/runsync", h.RunSync)
	engine.POST("/run", h.Run)
	engine.GET("/status/:id", h.Status)
	return engine
}

func postJSON(engine *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRunSync(t *testing.T) {
	exec := &fakeExecutor{}
	engine := newJobEngine(NewJobHandler(exec, nil, nil, zaptest.NewLogger(t)))

	w := postJSON(engine, "/runsync", `{"input":{"image":"aGVsbG8="}}`)
	require.Equal(t, http.StatusOK, w.Code)

	var status models.JobStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.StatusCompleted, status.Status)
	assert.NotEmpty(t, status.ID)
	require.NotNil(t, status.Output)
	assert.True(t, status.Output.Success)

	require.Len(t, exec.jobs, 1)
	assert.Equal(t, "aGVsbG8=", exec.jobs[0].Input.Image)
	assert.Equal(t, status.ID, exec.jobs[0].ID)
}

func TestRunSyncKeepsCallerID(t *testing.T) {
	exec := &fakeExecutor{}
	engine := newJobEngine(NewJobHandler(exec, nil, nil, zaptest.NewLogger(t)))

	w := postJSON(engine, "/runsync", `{"id":"caller-1","input":{}}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, exec.jobs, 1)
	assert.Equal(t, "caller-1", exec.jobs[0].ID)
}

func TestRunSyncInvalidJSON(t *testing.T) {
	exec := &fakeExecutor{}
	engine := newJobEngine(NewJobHandler(exec, nil, nil, zaptest.NewLogger(t)))

	w := postJSON(engine, "/runsync", `{"input":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
	assert.Empty(t, exec.jobs)
}

func TestRun(t *testing.T) {
	exec := &fakeExecutor{}
	dispatcher := &fakeDispatcher{}
	engine := newJobEngine(NewJobHandler(exec, dispatcher, nil, zaptest.NewLogger(t)))

	w := postJSON(engine, "/run", `{"id":"async-1","input":{"image":"aGVsbG8="},"webhook":"https://hooks.example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var status models.JobStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "async-1", status.ID)
	assert.Equal(t, models.StatusInQueue, status.Status)

	require.Len(t, dispatcher.jobs, 1)
	assert.Equal(t, "https://hooks.example.com", dispatcher.jobs[0].Webhook)
	assert.Len(t, exec.queued, 1)
	assert.Empty(t, exec.jobs)
}

func TestRunDispatchErrors(t *testing.T) {
	t.Run("backlog full", func(t *testing.T) {
		handler := NewJobHandler(&fakeExecutor{}, &fakeDispatcher{err: jobs.ErrPoolFull}, nil, zaptest.NewLogger(t))
		w := postJSON(newJobEngine(handler), "/run", `{"input":{"image":"x"}}`)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})

	t.Run("broker down", func(t *testing.T) {
		handler := NewJobHandler(&fakeExecutor{}, &fakeDispatcher{err: errors.New("channel closed")}, nil, zaptest.NewLogger(t))
		w := postJSON(newJobEngine(handler), "/run", `{"input":{"image":"x"}}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("no dispatcher", func(t *testing.T) {
		handler := NewJobHandler(&fakeExecutor{}, nil, nil, zaptest.NewLogger(t))
		w := postJSON(newJobEngine(handler), "/run", `{"input":{"image":"x"}}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestRunRejectedJobIsNotReportedQueued(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := &fakeStore{statuses: map[string]*models.JobStatus{}}
	runner := jobs.NewRunner(nil, store, nil, logger)
	engine := newJobEngine(NewJobHandler(runner, &fakeDispatcher{err: jobs.ErrPoolFull}, store, logger))

	w := postJSON(engine, "/run", `{"id":"rejected-1","input":{"image":"aGVsbG8="}}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status/rejected-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var status models.JobStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.StatusFailed, status.Status)
	assert.Contains(t, status.Error, jobs.ErrPoolFull.Error())
}

func TestStatus(t *testing.T) {
	store := &fakeStore{statuses: map[string]*models.JobStatus{
		"done": {ID: "done", Status: models.StatusCompleted, Output: &models.Result{Success: true}},
	}}
	engine := newJobEngine(NewJobHandler(&fakeExecutor{}, nil, store, zaptest.NewLogger(t)))

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := get("/status/done")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"COMPLETED"`)

	assert.Equal(t, http.StatusNotFound, get("/status/missing").Code)

	store.err = errors.New("redis: connection refused")
	assert.Equal(t, http.StatusInternalServerError, get("/status/done").Code)
}

func TestStatusWithoutStore(t *testing.T) {
	engine := newJobEngine(NewJobHandler(&fakeExecutor{}, nil, nil, zaptest.NewLogger(t)))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status/any", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func healthResponse(t *testing.T, h *HealthHandler) (int, models.HealthCheck) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/health", h.HealthCheck)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp struct {
		Success bool               `json:"success"`
		Data    models.HealthCheck `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, resp.Data.Status == "healthy", resp.Success)
	return w.Code, resp.Data
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler(fakeModelState{loaded: true}, zaptest.NewLogger(t)).
		AddCheck("redis", func(context.Context) string { return "healthy" }).
		AddCheck("supabase", func(context.Context) string { return NotConfigured })

	code, health := healthResponse(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Services["model"])
	require.NotNil(t, health.Model)
	assert.True(t, health.Model.Loaded)
	assert.Equal(t, "cuda", health.Model.Device)
	assert.Equal(t, 1.23, health.Model.LoadTime)
}

func TestHealthCheckModelNotLoadedYet(t *testing.T) {
	code, health := healthResponse(t, NewHealthHandler(fakeModelState{}, zaptest.NewLogger(t)))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "not loaded", health.Services["model"])
	assert.Empty(t, health.Model.Device)
}

func TestHealthCheckUnhealthy(t *testing.T) {
	t.Run("model failed", func(t *testing.T) {
		h := NewHealthHandler(fakeModelState{err: errors.New("model load failed")}, zaptest.NewLogger(t))
		code, health := healthResponse(t, h)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unhealthy", health.Status)
	})

	t.Run("dependency down", func(t *testing.T) {
		h := NewHealthHandler(nil, zaptest.NewLogger(t)).
			AddCheck("queue", func(context.Context) string { return "unhealthy: connection closed" })
		code, health := healthResponse(t, h)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Nil(t, health.Model)
	})
}

func TestGetStats(t *testing.T) {
	h := NewHealthHandler(nil, zaptest.NewLogger(t)).
		AddStats("queue", func(context.Context) (map[string]interface{}, error) {
			return map[string]interface{}{"messages": 2}, nil
		}).
		AddStats("cache", func(context.Context) (map[string]interface{}, error) {
			return nil, errors.New("redis down")
		})

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/stats", h.GetStats)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.JSONEq(t, `{"messages":2}`, string(resp.Data["queue"]))
	assert.JSONEq(t, `{"error":"redis down"}`, string(resp.Data["cache"]))
}
