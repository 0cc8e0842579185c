package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/logger"
)

// getStats returns item counts overall and per platform
// GET /api/v1/schedule/stats
func (r *Router) getStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := r.store.Stats(ctx)
	if err != nil {
		r.logger.Error("failed to get stats", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to get stats",
		})
		return
	}

	platformStats, err := r.store.PlatformStats(ctx)
	if err != nil {
		r.logger.Error("failed to get platform stats", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to get stats",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"totals":       stats,
		"by_platform":  platformStats,
		"generated_at": time.Now().UTC(),
	})
}
