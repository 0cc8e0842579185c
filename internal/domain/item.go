// Package domain contains the core domain models for the scheduler service.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform identifies a publishing target.
type Platform string

const (
	PlatformLinkedIn Platform = "linkedin"
	PlatformX        Platform = "x"
)

// Platforms lists every supported platform.
func Platforms() []Platform {
	return []Platform{PlatformLinkedIn, PlatformX}
}

// IsValid returns true if the platform is one of the supported targets.
func (p Platform) IsValid() bool {
	return p == PlatformLinkedIn || p == PlatformX
}

// Channel returns the Redis channel due posts for this platform are published to.
func (p Platform) Channel() string {
	return "posts:" + string(p)
}

// ItemStatus represents the state of a scheduled item
type ItemStatus string

const (
	StatusPending   ItemStatus = "pending"
	StatusPublished ItemStatus = "published"
	StatusFailed    ItemStatus = "failed"
	StatusCancelled ItemStatus = "cancelled"
)

// CanTransitionTo reports whether the status machine permits moving to next.
// Pending may publish, fail, or be cancelled; failed items may be retried
// back to pending. Published and cancelled are terminal.
func (s ItemStatus) CanTransitionTo(next ItemStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusPublished || next == StatusFailed || next == StatusCancelled
	case StatusFailed:
		return next == StatusPending
	default:
		return false
	}
}

// IsTerminal returns true for states the item can never leave.
func (s ItemStatus) IsTerminal() bool {
	return s == StatusPublished || s == StatusCancelled
}

// tempIDPrefix marks client-generated ids for optimistic entries that the
// server has not confirmed yet.
const tempIDPrefix = "temp-"

// NewTempID generates a client-side temporary id for an optimistic entry.
func NewTempID() string {
	return tempIDPrefix + uuid.NewString()
}

// IsTempID reports whether an id was generated client-side.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// ScheduledItem represents one post queued for publication on one platform
type ScheduledItem struct {
	ID              string     `db:"id"                json:"id"`
	SourceContentID *string    `db:"source_content_id" json:"source_content_id,omitempty"`
	Platform        Platform   `db:"platform"          json:"platform"`
	Content         string     `db:"content"           json:"content"`
	ScheduledTime   time.Time  `db:"scheduled_time"    json:"scheduled_time"`
	Status          ItemStatus `db:"status"            json:"status"`
	RetryCount      int        `db:"retry_count"       json:"retry_count"`
	MaxRetries      int        `db:"max_retries"       json:"max_retries"`
	ErrorMessage    *string    `db:"error_message"     json:"error_message,omitempty"`
	CreatedAt       time.Time  `db:"created_at"        json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"        json:"updated_at"`
	PublishedAt     *time.Time `db:"published_at"      json:"published_at,omitempty"`
	NextRetryAt     *time.Time `db:"next_retry_at"     json:"next_retry_at,omitempty"`
}

// IsActive returns true while the item still occupies its source content slot.
// Cancelled items release the slot; everything else holds it.
func (i *ScheduledItem) IsActive() bool {
	return i.Status != StatusCancelled
}

// ShouldRetry returns true if a failed item can be retried
func (i *ScheduledItem) ShouldRetry() bool {
	return i.Status == StatusFailed && i.RetryCount < i.MaxRetries
}

// IsExhausted returns true if all retries have been used up
func (i *ScheduledItem) IsExhausted() bool {
	return i.RetryCount >= i.MaxRetries
}

// ToPublishMessage converts the item to the platform channel message format
func (i *ScheduledItem) ToPublishMessage() map[string]any {
	msg := map[string]any{
		"id":             i.ID,
		"platform":       string(i.Platform),
		"content":        i.Content,
		"scheduled_time": i.ScheduledTime.UTC().Format(time.RFC3339),
		"retry_count":    i.RetryCount,
		"scheduler": map[string]any{
			"dispatched_at": time.Now().UTC().Format(time.RFC3339),
			"channel":       i.Platform.Channel(),
		},
	}
	if i.SourceContentID != nil {
		msg["source_content_id"] = *i.SourceContentID
	}
	return msg
}

// ItemStats holds scheduled item counts for monitoring
type ItemStats struct {
	Pending              int64   `json:"pending"`
	Published            int64   `json:"published"`
	FailedRetryable      int64   `json:"failed_retryable"`
	FailedExhausted      int64   `json:"failed_exhausted"`
	Cancelled            int64   `json:"cancelled"`
	AvgPublishLagSeconds float64 `json:"avg_publish_lag_seconds"`
}

// PlatformStats holds per-platform counts
type PlatformStats struct {
	Platform  Platform `json:"platform"`
	Pending   int64    `json:"pending"`
	Published int64    `json:"published"`
	Failed    int64    `json:"failed"`
}
