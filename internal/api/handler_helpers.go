package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/domain"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/reconciler"
)

// handleScheduleError maps domain errors to HTTP status codes.
func handleScheduleError(c *gin.Context, err error, operation string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "scheduled item not found",
		})
	case errors.Is(err, domain.ErrAlreadyScheduled):
		c.JSON(http.StatusConflict, gin.H{
			"error": "this content is already scheduled",
		})
	case errors.Is(err, reconciler.ErrPastDropTarget):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "cannot schedule into the past",
		})
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to " + operation + " scheduled item",
		})
	}
}

// parseTimeQuery parses an RFC 3339 query parameter, falling back to a
// default when the parameter is absent. Reports false after writing a 400
// response when the value is present but malformed.
func parseTimeQuery(c *gin.Context, name string, fallback time.Time) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid " + name + ": expected RFC 3339 timestamp",
		})
		return time.Time{}, false
	}
	return t, true
}

// parsePlatformQuery parses an optional platform filter. Reports false after
// writing a 400 response when the value is present but not a known platform.
func parsePlatformQuery(c *gin.Context) (*domain.Platform, bool) {
	raw := c.Query("platform")
	if raw == "" {
		return nil, true
	}
	platform := domain.Platform(raw)
	if !platform.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown platform: " + raw,
		})
		return nil, false
	}
	return &platform, true
}
