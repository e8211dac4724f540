package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/http/handlers"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/http/middleware"
)

type Router struct {
	jobHandler    *handlers.JobHandler
	healthHandler *handlers.HealthHandler
	apiKey        string
	logger        *zap.Logger
}

func NewRouter(
	jobHandler *handlers.JobHandler,
	healthHandler *handlers.HealthHandler,
	apiKey string,
	logger *zap.Logger,
) *Router {
	return &Router{
		jobHandler:    jobHandler,
		healthHandler: healthHandler,
		apiKey:        apiKey,
		logger:        logger,
	}
}

// SetupRoutes exposes the job API at the root and under /v2/:endpoint so
// RunPod style URLs work unchanged.
func (r *Router) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger(r.logger))
	router.Use(middleware.ErrorHandler(r.logger))
	router.Use(middleware.SecurityHeaders())

	router.GET("/health", r.healthHandler.HealthCheck)

	r.registerJobRoutes(router.Group("/"))
	r.registerJobRoutes(router.Group("/v2/:endpoint"))

	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"status":  "OK",
			"message": "Depth Anything 3 worker is running",
		})
	})

	return router
}

func (r *Router) registerJobRoutes(group *gin.RouterGroup) {
	group.Use(middleware.APIKey(r.apiKey))

	group.POST("/runsync", middleware.RequireJSON(), r.jobHandler.RunSync)
	group.POST("/run", middleware.RequireJSON(), r.jobHandler.Run)
	group.GET("/status/:id", r.jobHandler.Status)
	group.GET("/stats", r.healthHandler.GetStats)
}
