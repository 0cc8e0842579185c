package domain

import (
	"fmt"
	"time"
)

// ScheduleRequest is the validated, immutable input to a scheduling attempt.
// Construct it through NewScheduleRequest after the validator has resolved
// the target instant; handlers never build one from raw user input directly.
type ScheduleRequest struct {
	Platform        Platform
	Content         string
	ScheduledTime   time.Time
	SourceContentID *string
}

// NewScheduleRequest validates and constructs a schedule request.
// The scheduled time must be in the future relative to now.
func NewScheduleRequest(platform Platform, content string, scheduledTime, now time.Time) (*ScheduleRequest, error) {
	if !platform.IsValid() {
		return nil, fmt.Errorf("%w: unsupported platform %q", ErrInvalidRequest, platform)
	}
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidRequest)
	}
	if !scheduledTime.After(now) {
		return nil, fmt.Errorf("%w: scheduled time must be in the future", ErrInvalidRequest)
	}

	return &ScheduleRequest{
		Platform:      platform,
		Content:       content,
		ScheduledTime: scheduledTime.UTC(),
	}, nil
}

// WithSourceContent attaches the originating content id to the request.
// Returns a copy; the request itself stays immutable.
func (r ScheduleRequest) WithSourceContent(id string) *ScheduleRequest {
	r.SourceContentID = &id
	return &r
}
