// Package api exposes the scheduling service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/domain"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/logger"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/metrics"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/reconciler"
)

// Default timeout and health constants.
const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
	healthCheckTimeout   = 2 * time.Second
	serviceVersion       = "1.0.0"
	serviceName          = "vox-prismatic-scheduler"
)

// ItemStore is the persistence surface the read handlers use. Writes go
// through the reconciler, whose client is typically the same repository.
type ItemStore interface {
	reconciler.Client
	GetByID(ctx context.Context, id string) (*domain.ScheduledItem, error)
	Stats(ctx context.Context) (*domain.ItemStats, error)
	PlatformStats(ctx context.Context) ([]domain.PlatformStats, error)
	Ping(ctx context.Context) error
}

// PreferencesStore resolves per-user scheduling preferences.
type PreferencesStore interface {
	GetByUser(ctx context.Context, userID string) (domain.Preferences, error)
}

// Router holds the API dependencies
type Router struct {
	store       ItemStore
	prefs       PreferencesStore
	rec         *reconciler.Reconciler
	broker      *EventBroker
	redisClient redis.UniversalClient
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	logger      logger.Logger
	debug       bool
}

// NewRouter creates a new API router
func NewRouter(
	store ItemStore,
	prefs PreferencesStore,
	rec *reconciler.Reconciler,
	broker *EventBroker,
	redisClient redis.UniversalClient,
	registry *prometheus.Registry,
	m *metrics.Metrics,
	log logger.Logger,
	debug bool,
) *Router {
	return &Router{
		store:       store,
		prefs:       prefs,
		rec:         rec,
		broker:      broker,
		redisClient: redisClient,
		registry:    registry,
		metrics:     m,
		logger:      log,
		debug:       debug,
	}
}

// SetupRoutes builds the gin engine with middleware and all routes.
func (r *Router) SetupRoutes() *gin.Engine {
	if !r.debug {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(r.logger))
	router.Use(corsMiddleware())

	// Health and metrics (public, no auth)
	router.GET("/health", r.healthCheck)
	if r.registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})))
	}

	r.setupServiceRoutes(router)

	return router
}

// setupServiceRoutes configures the schedule API routes.
func (r *Router) setupServiceRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1/schedule")

	v1.POST("", r.createSchedule)
	v1.GET("", r.listSchedule)
	v1.POST("/validate", r.validateTime)
	v1.POST("/distribute", r.distributePreview)
	v1.GET("/stats", r.getStats)
	v1.GET("/events", r.streamEvents)
	v1.GET("/:id", r.getItem)
	v1.PUT("/:id", r.rescheduleItem)
	v1.DELETE("/:id", r.unscheduleItem)
}

// healthCheck returns the service health status
func (r *Router) healthCheck(c *gin.Context) {
	health := gin.H{
		"status":  healthStatusHealthy,
		"service": serviceName,
		"version": serviceVersion,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	dbConnected := true
	if err := r.store.Ping(ctx); err != nil {
		dbConnected = false
		health["status"] = healthStatusDegraded
	}
	health["database"] = gin.H{
		"connected": dbConnected,
	}

	redisHealth := r.checkRedisHealth(ctx)
	health["redis"] = redisHealth

	if connected, ok := redisHealth["connected"].(bool); ok && !connected {
		if health["status"] == healthStatusHealthy {
			health["status"] = healthStatusDegraded
		}
	}

	c.JSON(http.StatusOK, health)
}

// checkRedisHealth checks Redis connection and returns health info
func (r *Router) checkRedisHealth(ctx context.Context) gin.H {
	if r.redisClient == nil {
		return gin.H{
			"connected": false,
			"error":     "Redis client not initialized",
		}
	}

	redisHealth := gin.H{"connected": true}
	if err := r.redisClient.Ping(ctx).Err(); err != nil {
		redisHealth["connected"] = false
		redisHealth["error"] = err.Error()
	}

	return redisHealth
}
