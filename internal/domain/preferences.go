package domain

import (
	"fmt"
	"time"
)

const (
	// DefaultTimezone is used when a user has not configured one
	DefaultTimezone = "UTC"

	// DefaultLeadTimeMinutes is the default minimum gap between now and a
	// scheduled instant
	DefaultLeadTimeMinutes = 5
)

// Preferences holds the user's scheduling preferences.
// Read-only from the scheduling core's perspective.
type Preferences struct {
	Timezone        string `db:"timezone"          json:"timezone"`
	LeadTimeMinutes int    `db:"lead_time_minutes" json:"lead_time_minutes"`
}

// DefaultPreferences returns the fallback preferences for users without a row.
func DefaultPreferences() Preferences {
	return Preferences{
		Timezone:        DefaultTimezone,
		LeadTimeMinutes: DefaultLeadTimeMinutes,
	}
}

// Location resolves the preference timezone to a *time.Location.
func (p Preferences) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, p.Timezone)
	}
	return loc, nil
}

// LeadTime returns the minimum lead time as a duration.
func (p Preferences) LeadTime() time.Duration {
	return time.Duration(p.LeadTimeMinutes) * time.Minute
}
