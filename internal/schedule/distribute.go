package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/domain"
)

// Strategy selects a deterministic bulk-placement cadence
type Strategy string

const (
	// StrategyEven places each item a fixed interval after the previous one
	StrategyEven Strategy = "even"
	// StrategyDaily places each item one calendar day after the previous,
	// same local time-of-day
	StrategyDaily Strategy = "daily"
	// StrategyPeakHours cycles through a fixed list of hours-of-day,
	// advancing one day per full cycle
	StrategyPeakHours Strategy = "peak_hours"
)

// ErrUnknownStrategy is returned for strategies outside the supported set
var ErrUnknownStrategy = errors.New("unknown distribution strategy")

const defaultIntervalHours = 4

// DefaultPeakHours are the preferred posting hours when none are supplied
var DefaultPeakHours = []int{9, 12, 15, 18}

// DistributeParams tunes the placement strategies
type DistributeParams struct {
	// IntervalHours is the gap between consecutive items for StrategyEven
	IntervalHours int `json:"interval_hours"`
	// PeakHours is the ordered hour-of-day cycle for StrategyPeakHours
	PeakHours []int `json:"peak_hours"`
}

// Assignment pairs a content id with its computed publication instant.
// Positions are preserved so a preview UI can render the list in input order.
type Assignment struct {
	ContentID     string    `json:"content_id"`
	Position      int       `json:"position"`
	ScheduledTime time.Time `json:"scheduled_time"`
}

// Distribute computes publication times for an ordered list of content ids.
// Pure and fully reproducible: the same inputs always yield the same
// assignments, so the output can be previewed before any item is committed.
// An empty input list yields an empty assignment list.
func Distribute(contentIDs []string, strategy Strategy, start time.Time, params DistributeParams) ([]Assignment, error) {
	assignments := make([]Assignment, 0, len(contentIDs))
	if len(contentIDs) == 0 {
		return assignments, nil
	}

	switch strategy {
	case StrategyEven:
		interval := params.IntervalHours
		if interval <= 0 {
			interval = defaultIntervalHours
		}
		// Intervals compound: each offset is measured from the previous
		// item, not from start.
		current := start
		for i, id := range contentIDs {
			assignments = append(assignments, Assignment{ContentID: id, Position: i, ScheduledTime: current})
			current = current.Add(time.Duration(interval) * time.Hour)
		}

	case StrategyDaily:
		// AddDate keeps the local wall-clock time across DST transitions.
		current := start
		for i, id := range contentIDs {
			assignments = append(assignments, Assignment{ContentID: id, Position: i, ScheduledTime: current})
			current = current.AddDate(0, 0, 1)
		}

	case StrategyPeakHours:
		peaks := params.PeakHours
		if len(peaks) == 0 {
			peaks = DefaultPeakHours
		}
		year, month, day := start.Date()
		for i, id := range contentIDs {
			dayOffset := i / len(peaks)
			hour := peaks[i%len(peaks)]
			at := time.Date(year, month, day+dayOffset, hour, 0, 0, 0, start.Location())
			assignments = append(assignments, Assignment{ContentID: id, Position: i, ScheduledTime: at})
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	return assignments, nil
}

// SlotDecision reports whether a candidate slot is usable.
// The only hard conflict in this system is another active item for the same
// source content; two different posts at the identical instant on the same
// platform are allowed, and are reported in SameSlot so the UI can warn.
type SlotDecision struct {
	Free     bool                   `json:"free"`
	Conflict *domain.ScheduledItem  `json:"conflict,omitempty"`
	SameSlot []domain.ScheduledItem `json:"same_slot,omitempty"`
}

// ResolveSlot checks a candidate instant against the already-scheduled items
// for a platform. sourceContentID may be nil for standalone posts, which can
// never conflict.
func ResolveSlot(candidate time.Time, platform domain.Platform, sourceContentID *string, existing []domain.ScheduledItem) SlotDecision {
	decision := SlotDecision{Free: true}

	for i := range existing {
		item := &existing[i]
		if !item.IsActive() {
			continue
		}

		if sourceContentID != nil && item.SourceContentID != nil &&
			*item.SourceContentID == *sourceContentID {
			decision.Free = false
			decision.Conflict = item
			continue
		}

		if item.Platform == platform && item.ScheduledTime.Equal(candidate) {
			decision.SameSlot = append(decision.SameSlot, *item)
		}
	}

	return decision
}
