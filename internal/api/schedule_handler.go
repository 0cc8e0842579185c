package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/domain"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/logger"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/reconciler"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/schedule"
)

const (
	defaultUserID       = "default"
	defaultListLookback = 24 * time.Hour
	defaultListHorizon  = 30 * 24 * time.Hour
	slotScanWindow      = 24 * time.Hour
	settleTimeout       = 15 * time.Second
)

// userID resolves the acting user from the X-User-ID header.
func userID(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return defaultUserID
}

// preferences loads the user's scheduling preferences, falling back to
// defaults when the lookup fails.
func (r *Router) preferences(c *gin.Context) domain.Preferences {
	prefs, err := r.prefs.GetByUser(c.Request.Context(), userID(c))
	if err != nil {
		r.logger.Warn("failed to load preferences, using defaults",
			logger.String("user_id", userID(c)),
			logger.Error(err))
		return domain.DefaultPreferences()
	}
	return prefs
}

type scheduleCreateRequest struct {
	Platform        string  `json:"platform" binding:"required"`
	Content         string  `json:"content" binding:"required"`
	LocalTime       string  `json:"local_time" binding:"required"`
	SourceContentID *string `json:"source_content_id"`
}

// createSchedule validates the requested local time and creates a scheduled
// item through the reconciler.
// POST /api/v1/schedule
func (r *Router) createSchedule(c *gin.Context) {
	var req scheduleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return
	}

	platform := domain.Platform(req.Platform)
	if !platform.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown platform: " + req.Platform,
		})
		return
	}

	now := time.Now()
	prefs := r.preferences(c)

	result, err := schedule.ValidateLocalTime(req.LocalTime, prefs, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "preference timezone could not be loaded",
		})
		return
	}
	if !result.OK {
		r.countRejection(result.Reason)
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  result.Message,
			"reason": result.Reason,
		})
		return
	}

	schedReq, err := domain.NewScheduleRequest(platform, req.Content, result.ScheduledTime, now)
	if err != nil {
		handleScheduleError(c, err, "create")
		return
	}
	if req.SourceContentID != nil && *req.SourceContentID != "" {
		schedReq = schedReq.WithSourceContent(*req.SourceContentID)
	}

	decision := r.resolveSlot(c, result.ScheduledTime, platform, schedReq.SourceContentID)

	mut, err := r.rec.Schedule(c.Request.Context(), schedReq)
	if err != nil {
		if r.metrics != nil && errors.Is(err, domain.ErrAlreadyScheduled) {
			r.metrics.SlotConflictsTotal.Inc()
		}
		handleScheduleError(c, err, "create")
		return
	}

	item, ok := r.awaitSettlement(c, mut, "create")
	if !ok {
		return
	}
	if r.metrics != nil {
		r.metrics.ItemsScheduledTotal.WithLabelValues(string(item.Platform)).Inc()
	}

	response := gin.H{
		"item":         item,
		"confirmation": result.Confirmation,
	}
	if len(decision.SameSlot) > 0 {
		response["same_slot"] = decision.SameSlot
	}
	c.JSON(http.StatusCreated, response)
}

// resolveSlot checks the candidate instant against nearby scheduled items so
// the response can carry same-slot warnings. List failures only cost the
// warning, never the schedule call.
func (r *Router) resolveSlot(c *gin.Context, candidate time.Time, platform domain.Platform, sourceContentID *string) schedule.SlotDecision {
	existing, err := r.store.ListScheduledItems(c.Request.Context(),
		candidate.Add(-slotScanWindow), candidate.Add(slotScanWindow), &platform)
	if err != nil {
		r.logger.Warn("slot scan failed", logger.Error(err))
		return schedule.SlotDecision{Free: true}
	}
	return schedule.ResolveSlot(candidate, platform, sourceContentID, existing)
}

func (r *Router) countRejection(reason schedule.Reason) {
	if r.metrics != nil {
		r.metrics.ValidationRejectionsTotal.WithLabelValues(string(reason)).Inc()
	}
}

// awaitSettlement blocks until the optimistic mutation settles, mapping a
// settlement failure to an error response.
func (r *Router) awaitSettlement(c *gin.Context, mut *reconciler.Mutation, operation string) (*domain.ScheduledItem, bool) {
	select {
	case <-mut.Done():
	case <-time.After(settleTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error": "timed out waiting for the schedule store",
		})
		return nil, false
	case <-c.Request.Context().Done():
		c.Status(http.StatusRequestTimeout)
		return nil, false
	}

	if err := mut.Err(); err != nil {
		handleScheduleError(c, err, operation)
		return nil, false
	}
	return mut.Item(), true
}

// listSchedule returns scheduled items in a calendar range.
// GET /api/v1/schedule?start=...&end=...&platform=...
func (r *Router) listSchedule(c *gin.Context) {
	now := time.Now()
	start, ok := parseTimeQuery(c, "start", now.Add(-defaultListLookback))
	if !ok {
		return
	}
	end, ok := parseTimeQuery(c, "end", now.Add(defaultListHorizon))
	if !ok {
		return
	}
	platform, ok := parsePlatformQuery(c)
	if !ok {
		return
	}

	items, err := r.store.ListScheduledItems(c.Request.Context(), start, end, platform)
	if err != nil {
		r.logger.Error("failed to list scheduled items", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to list scheduled items",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

// getItem retrieves a single scheduled item.
// GET /api/v1/schedule/:id
func (r *Router) getItem(c *gin.Context) {
	item, err := r.store.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleScheduleError(c, err, "get")
		return
	}
	c.JSON(http.StatusOK, item)
}

type rescheduleRequest struct {
	LocalTime string `json:"local_time" binding:"required"`
}

// rescheduleItem moves an item to a new validated instant.
// PUT /api/v1/schedule/:id
func (r *Router) rescheduleItem(c *gin.Context) {
	var req rescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return
	}

	now := time.Now()
	result, err := schedule.ValidateLocalTime(req.LocalTime, r.preferences(c), now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "preference timezone could not be loaded",
		})
		return
	}
	if !result.OK {
		r.countRejection(result.Reason)
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  result.Message,
			"reason": result.Reason,
		})
		return
	}

	id := c.Param("id")
	mut, err := r.rec.Reschedule(c.Request.Context(), id, result.ScheduledTime)
	if err != nil {
		// The reconciler only knows items inside its loaded window; fall
		// through to the store for the rest.
		if item, storeErr := r.rescheduleDirect(c, id, result.ScheduledTime, err); storeErr != nil {
			handleScheduleError(c, storeErr, "reschedule")
		} else if item != nil {
			c.JSON(http.StatusOK, gin.H{"item": item, "confirmation": result.Confirmation})
		}
		return
	}

	item, ok := r.awaitSettlement(c, mut, "reschedule")
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"item":         item,
		"confirmation": result.Confirmation,
	})
}

// rescheduleDirect retries a cache-miss reschedule against the store.
func (r *Router) rescheduleDirect(c *gin.Context, id string, newTime time.Time, cause error) (*domain.ScheduledItem, error) {
	if !errors.Is(cause, domain.ErrNotFound) {
		return nil, cause
	}
	return r.store.RescheduleItem(c.Request.Context(), id, newTime)
}

// unscheduleItem cancels a scheduled item.
// DELETE /api/v1/schedule/:id
func (r *Router) unscheduleItem(c *gin.Context) {
	id := c.Param("id")
	cached, _ := r.rec.Cache().Get(id)

	mut, err := r.rec.Unschedule(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Cache miss; cancel directly against the store.
			if storeErr := r.store.UnscheduleItem(c.Request.Context(), id); storeErr != nil {
				handleScheduleError(c, storeErr, "unschedule")
				return
			}
			c.Status(http.StatusNoContent)
			return
		}
		handleScheduleError(c, err, "unschedule")
		return
	}

	if _, ok := r.awaitSettlement(c, mut, "unschedule"); !ok {
		return
	}
	if r.metrics != nil {
		r.metrics.ItemsCancelledTotal.WithLabelValues(string(cached.Platform)).Inc()
	}
	c.Status(http.StatusNoContent)
}

type validateRequest struct {
	LocalTime string `json:"local_time"`
}

// validateTime runs the schedule validator without creating anything.
// POST /api/v1/schedule/validate
func (r *Router) validateTime(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return
	}

	now := time.Now()
	prefs := r.preferences(c)

	result, err := schedule.ValidateLocalTime(req.LocalTime, prefs, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "preference timezone could not be loaded",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result":           result,
		"earliest_allowed": schedule.EarliestAllowed(prefs, now),
	})
}

type distributeRequest struct {
	ContentIDs []string                  `json:"content_ids" binding:"required"`
	Strategy   schedule.Strategy         `json:"strategy" binding:"required"`
	Start      time.Time                 `json:"start" binding:"required"`
	Params     schedule.DistributeParams `json:"params"`
}

// distributePreview computes bulk placement without writing anything.
// POST /api/v1/schedule/distribute
func (r *Router) distributePreview(c *gin.Context) {
	var req distributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return
	}

	// Strategies that follow the wall clock need the user's zone, not the
	// zone the timestamp happened to arrive in.
	loc, err := r.preferences(c).Location()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "preference timezone could not be loaded",
		})
		return
	}

	assignments, err := schedule.Distribute(req.ContentIDs, req.Strategy, req.Start.In(loc), req.Params)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"assignments": assignments,
		"count":       len(assignments),
	})
}
