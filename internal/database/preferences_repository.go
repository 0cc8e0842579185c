package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/domain"
)

// PreferencesRepository provides read-only access to user scheduling
// preferences. The scheduling core never writes this table.
type PreferencesRepository struct {
	db *sqlx.DB
}

// NewPreferencesRepository creates a new repository
func NewPreferencesRepository(db *sqlx.DB) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

// GetByUser returns the user's scheduling preferences, falling back to the
// defaults when the user has no row.
func (r *PreferencesRepository) GetByUser(ctx context.Context, userID string) (domain.Preferences, error) {
	query := `
		SELECT timezone, lead_time_minutes
		FROM user_scheduling_preferences
		WHERE user_id = $1`

	var prefs domain.Preferences
	err := r.db.GetContext(ctx, &prefs, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultPreferences(), nil
	}
	if err != nil {
		return domain.Preferences{}, fmt.Errorf("get preferences: %w", err)
	}

	if prefs.Timezone == "" {
		prefs.Timezone = domain.DefaultTimezone
	}
	if prefs.LeadTimeMinutes < 0 {
		prefs.LeadTimeMinutes = 0
	}
	return prefs, nil
}
