package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/domain"
)

func TestNewScheduleRequest(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	future := now.Add(2 * time.Hour)

	t.Run("valid request", func(t *testing.T) {
		req, err := domain.NewScheduleRequest(domain.PlatformLinkedIn, "hello", future, now)
		require.NoError(t, err)
		assert.Equal(t, domain.PlatformLinkedIn, req.Platform)
		assert.Equal(t, "hello", req.Content)
		assert.True(t, req.ScheduledTime.Equal(future))
		assert.Nil(t, req.SourceContentID)
	})

	t.Run("normalizes to UTC", func(t *testing.T) {
		ny, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)

		local := future.In(ny)
		req, err := domain.NewScheduleRequest(domain.PlatformX, "hello", local, now)
		require.NoError(t, err)
		assert.Equal(t, time.UTC, req.ScheduledTime.Location())
		assert.True(t, req.ScheduledTime.Equal(future))
	})

	t.Run("rejects unsupported platform", func(t *testing.T) {
		_, err := domain.NewScheduleRequest("mastodon", "hello", future, now)
		assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
	})

	t.Run("rejects empty content", func(t *testing.T) {
		_, err := domain.NewScheduleRequest(domain.PlatformX, "", future, now)
		assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
	})

	t.Run("rejects past time", func(t *testing.T) {
		_, err := domain.NewScheduleRequest(domain.PlatformX, "hello", now.Add(-time.Minute), now)
		assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
	})

	t.Run("rejects exact now", func(t *testing.T) {
		_, err := domain.NewScheduleRequest(domain.PlatformX, "hello", now, now)
		assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
	})
}

func TestScheduleRequest_WithSourceContent(t *testing.T) {
	now := time.Now()
	req, err := domain.NewScheduleRequest(domain.PlatformLinkedIn, "hello", now.Add(time.Hour), now)
	require.NoError(t, err)

	withSource := req.WithSourceContent("content-1")
	require.NotNil(t, withSource.SourceContentID)
	assert.Equal(t, "content-1", *withSource.SourceContentID)

	// Original request is untouched
	assert.Nil(t, req.SourceContentID)
}

func TestPreferences(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		prefs := domain.DefaultPreferences()
		assert.Equal(t, "UTC", prefs.Timezone)
		assert.Equal(t, domain.DefaultLeadTimeMinutes, prefs.LeadTimeMinutes)
	})

	t.Run("lead time duration", func(t *testing.T) {
		prefs := domain.Preferences{Timezone: "UTC", LeadTimeMinutes: 30}
		assert.Equal(t, 30*time.Minute, prefs.LeadTime())
	})

	t.Run("valid location", func(t *testing.T) {
		prefs := domain.Preferences{Timezone: "America/Chicago"}
		loc, err := prefs.Location()
		require.NoError(t, err)
		assert.Equal(t, "America/Chicago", loc.String())
	})

	t.Run("invalid location", func(t *testing.T) {
		prefs := domain.Preferences{Timezone: "Mars/Olympus_Mons"}
		_, err := prefs.Location()
		assert.True(t, errors.Is(err, domain.ErrInvalidTimezone))
	})
}
