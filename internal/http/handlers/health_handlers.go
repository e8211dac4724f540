package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/models"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/depth"
)

// NotConfigured marks an optional dependency that is switched off.
const NotConfigured = "not configured"

// ModelState is the read side of depth.Loader.
type ModelState interface {
	Name() string
	Loaded() bool
	Device() depth.Device
	LoadTime() time.Duration
	Err() error
}

// CheckFunc reports the state of one dependency as "healthy", "not
// configured" or "unhealthy: <reason>".
type CheckFunc func(ctx context.Context) string

// StatsFunc contributes one section of /stats.
type StatsFunc func(ctx context.Context) (map[string]interface{}, error)

type HealthHandler struct {
	model  ModelState
	checks map[string]CheckFunc
	stats  map[string]StatsFunc
	logger *zap.Logger
}

func NewHealthHandler(model ModelState, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		model:  model,
		checks: make(map[string]CheckFunc),
		stats:  make(map[string]StatsFunc),
		logger: logger,
	}
}

func (h *HealthHandler) AddCheck(name string, check CheckFunc) *HealthHandler {
	h.checks[name] = check
	return h
}

func (h *HealthHandler) AddStats(name string, stats StatsFunc) *HealthHandler {
	h.stats[name] = stats
	return h
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	services := make(map[string]string, len(h.checks)+1)
	for name, check := range h.checks {
		services[name] = check(ctx)
	}

	var model *models.ModelStatus
	if h.model != nil {
		model = h.modelStatus()
		services["model"] = modelHealth(h.model)
	}

	overall := calculateOverallHealth(services)
	statusCode := http.StatusOK
	if overall == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, models.APIResponse{
		Success: overall == "healthy",
		Data: models.HealthCheck{
			Status:    overall,
			Timestamp: time.Now(),
			Services:  services,
			Model:     model,
		},
	})
}

func (h *HealthHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	names := make([]string, 0, len(h.stats))
	for name := range h.stats {
		names = append(names, name)
	}
	sort.Strings(names)

	stats := map[string]interface{}{
		"timestamp": time.Now(),
	}
	for _, name := range names {
		section, err := h.stats[name](ctx)
		if err != nil {
			h.logger.Error("Failed to get stats", zap.String("section", name), zap.Error(err))
			stats[name] = gin.H{"error": err.Error()}
			continue
		}
		stats[name] = section
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    stats,
	})
}

func (h *HealthHandler) modelStatus() *models.ModelStatus {
	status := &models.ModelStatus{
		Name:   h.model.Name(),
		Loaded: h.model.Loaded(),
	}
	if status.Loaded {
		status.Device = string(h.model.Device())
		status.LoadTime = *models.Seconds(h.model.LoadTime().Seconds())
	}
	return status
}

// modelHealth treats a model that has not been requested yet as healthy.
func modelHealth(model ModelState) string {
	if err := model.Err(); err != nil {
		return "unhealthy: " + err.Error()
	}
	if !model.Loaded() {
		return "not loaded"
	}
	return "healthy"
}

func calculateOverallHealth(services map[string]string) string {
	for _, status := range services {
		if status != "healthy" && status != NotConfigured && status != "not loaded" {
			return "unhealthy"
		}
	}
	return "healthy"
}
