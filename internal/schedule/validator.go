// Package schedule contains the scheduling validity engine: local-time
// validation against user preferences and deterministic bulk placement.
// Everything here is pure; the only clock is the caller-supplied instant.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/domain"
)

// Reason classifies why a candidate time was rejected
type Reason string

const (
	ReasonEmptyInput    Reason = "empty_input"
	ReasonInvalidFormat Reason = "invalid_format"
	ReasonPastTime      Reason = "past_time"
	ReasonLeadTime      Reason = "lead_time_violation"
)

// EarliestHintRefreshInterval is how often a long-lived caller should
// recompute the displayed "earliest available" hint. Display nicety only;
// validation always uses the instant passed at call time.
const EarliestHintRefreshInterval = 30 * time.Second

// inputLayouts are the accepted local date/time formats, in match order.
// The first is what an HTML datetime-local control produces.
var inputLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// Result is the outcome of validating a candidate local time.
// When OK is false, Reason and Message describe the corrective action;
// when OK is true, ScheduledTime holds the resolved absolute instant and
// Confirmation a human-readable summary.
type Result struct {
	OK            bool      `json:"ok"`
	Reason        Reason    `json:"reason,omitempty"`
	Message       string    `json:"message,omitempty"`
	ScheduledTime time.Time `json:"scheduled_time,omitzero"`
	Confirmation  string    `json:"confirmation,omitempty"`
}

// ValidateLocalTime converts a locally-entered date/time string to an
// absolute instant using the preference timezone and checks it against the
// current instant and the minimum lead time. The conversion is DST-aware:
// the same wall-clock string maps to different instants depending on the
// calendar date.
//
// Lead-time violations take precedence over past-time whenever a lead time
// is configured, so the UI can show "must be at least N minutes from now"
// rather than the weaker "must be in the future".
//
// Returns a non-nil error only when the preference timezone cannot be
// loaded; user input problems are reported through the Result.
func ValidateLocalTime(raw string, prefs domain.Preferences, now time.Time) (Result, error) {
	loc, err := prefs.Location()
	if err != nil {
		return Result{}, err
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Result{
			Reason:  ReasonEmptyInput,
			Message: "Please select a date and time",
		}, nil
	}

	instant, parseErr := parseLocal(raw, loc)
	if parseErr != nil {
		return Result{
			Reason:  ReasonInvalidFormat,
			Message: "Unrecognized date/time format",
		}, nil
	}

	if prefs.LeadTimeMinutes > 0 && instant.Before(now.Add(prefs.LeadTime())) {
		return Result{
			Reason: ReasonLeadTime,
			Message: fmt.Sprintf("Scheduled time must be at least %d minutes from now",
				prefs.LeadTimeMinutes),
		}, nil
	}

	if !instant.After(now) {
		return Result{
			Reason:  ReasonPastTime,
			Message: "Scheduled time must be in the future",
		}, nil
	}

	return Result{
		OK:            true,
		ScheduledTime: instant.UTC(),
		Confirmation:  confirmation(instant, now, loc),
	}, nil
}

// EarliestAllowed returns the minimum acceptable instant under the given
// preferences. Derived value for UI hints; recompute when preferences
// change and on EarliestHintRefreshInterval.
func EarliestAllowed(prefs domain.Preferences, now time.Time) time.Time {
	return now.Add(prefs.LeadTime())
}

func parseLocal(raw string, loc *time.Location) (time.Time, error) {
	var lastErr error
	for _, layout := range inputLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// confirmation renders an absolute-plus-relative summary of the instant,
// e.g. "Tomorrow at 9:00 AM (14 hours from now)".
func confirmation(instant, now time.Time, loc *time.Location) string {
	local := instant.In(loc)
	relative := humanize.RelTime(instant, now, "ago", "from now")

	day := describeDay(local, now.In(loc))
	clock := local.Format("3:04 PM")

	return fmt.Sprintf("%s at %s (%s)", day, clock, relative)
}

func describeDay(local, nowLocal time.Time) string {
	ly, lm, ld := local.Date()
	ny, nm, nd := nowLocal.Date()
	if ly == ny && lm == nm && ld == nd {
		return "Today"
	}

	tomorrow := nowLocal.AddDate(0, 0, 1)
	ty, tm, td := tomorrow.Date()
	if ly == ty && lm == tm && ld == td {
		return "Tomorrow"
	}

	return local.Format("Monday, Jan 2")
}
