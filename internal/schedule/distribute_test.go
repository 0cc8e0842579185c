package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/domain"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/schedule"
)

func TestDistribute_Even(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	assignments, err := schedule.Distribute(
		[]string{"a", "b", "c"},
		schedule.StrategyEven,
		start,
		schedule.DistributeParams{IntervalHours: 4},
	)
	require.NoError(t, err)
	require.Len(t, assignments, 3)

	assert.True(t, assignments[0].ScheduledTime.Equal(start))
	assert.True(t, assignments[1].ScheduledTime.Equal(start.Add(4*time.Hour)))
	assert.True(t, assignments[2].ScheduledTime.Equal(start.Add(8*time.Hour)))

	for i, a := range assignments {
		assert.Equal(t, i, a.Position)
	}
}

func TestDistribute_EvenDefaultInterval(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	assignments, err := schedule.Distribute(
		[]string{"a", "b"},
		schedule.StrategyEven,
		start,
		schedule.DistributeParams{},
	)
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	assert.True(t, assignments[1].ScheduledTime.Equal(start.Add(4*time.Hour)))
}

func TestDistribute_Daily(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// Crosses the US spring-forward transition (March 10, 2024); the local
	// time-of-day must stay at 9:00 AM on every assignment.
	start := time.Date(2024, 3, 9, 9, 0, 0, 0, ny)

	assignments, err := schedule.Distribute(
		[]string{"a", "b", "c"},
		schedule.StrategyDaily,
		start,
		schedule.DistributeParams{},
	)
	require.NoError(t, err)
	require.Len(t, assignments, 3)

	for i, a := range assignments {
		local := a.ScheduledTime.In(ny)
		assert.Equal(t, 9, local.Hour(), "assignment %d local hour", i)
		assert.Equal(t, 9+i, local.Day(), "assignment %d day", i)
	}
}

func TestDistribute_PeakHours(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	peaks := []int{9, 12, 15, 18}

	assignments, err := schedule.Distribute(
		[]string{"a", "b", "c", "d", "e"},
		schedule.StrategyPeakHours,
		start,
		schedule.DistributeParams{PeakHours: peaks},
	)
	require.NoError(t, err)
	require.Len(t, assignments, 5)

	wantTimes := []time.Time{
		time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC),
		// Wraps to the next day after a full cycle
		time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
	}
	for i, want := range wantTimes {
		assert.True(t, assignments[i].ScheduledTime.Equal(want),
			"assignment %d = %v, want %v", i, assignments[i].ScheduledTime, want)
	}
}

func TestDistribute_PeakHoursDefaults(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assignments, err := schedule.Distribute(
		[]string{"a"},
		schedule.StrategyPeakHours,
		start,
		schedule.DistributeParams{},
	)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, 9, assignments[0].ScheduledTime.Hour())
}

func TestDistribute_EmptyInput(t *testing.T) {
	for _, strategy := range []schedule.Strategy{schedule.StrategyEven, schedule.StrategyDaily, schedule.StrategyPeakHours} {
		assignments, err := schedule.Distribute(nil, strategy, time.Now(), schedule.DistributeParams{})
		require.NoError(t, err)
		assert.Empty(t, assignments)
		assert.NotNil(t, assignments)
	}
}

func TestDistribute_UnknownStrategy(t *testing.T) {
	_, err := schedule.Distribute([]string{"a"}, "random", time.Now(), schedule.DistributeParams{})
	assert.ErrorIs(t, err, schedule.ErrUnknownStrategy)
}

func TestDistribute_IsDeterministic(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	ids := []string{"a", "b", "c", "d", "e", "f"}

	first, err := schedule.Distribute(ids, schedule.StrategyPeakHours, start, schedule.DistributeParams{})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, distributeErr := schedule.Distribute(ids, schedule.StrategyPeakHours, start, schedule.DistributeParams{})
		require.NoError(t, distributeErr)
		assert.Equal(t, first, again)
	}
}

func strPtr(s string) *string {
	return &s
}

func TestResolveSlot_FreeWhenNoActiveConflict(t *testing.T) {
	candidate := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	existing := []domain.ScheduledItem{
		{ID: "1", Platform: domain.PlatformLinkedIn, SourceContentID: strPtr("c1"),
			ScheduledTime: candidate.Add(time.Hour), Status: domain.StatusPending},
		// Cancelled items release the slot
		{ID: "2", Platform: domain.PlatformLinkedIn, SourceContentID: strPtr("c2"),
			ScheduledTime: candidate, Status: domain.StatusCancelled},
	}

	decision := schedule.ResolveSlot(candidate, domain.PlatformLinkedIn, strPtr("c2"), existing)
	assert.True(t, decision.Free)
	assert.Nil(t, decision.Conflict)
	assert.Empty(t, decision.SameSlot)
}

func TestResolveSlot_ConflictOnActiveSourceContent(t *testing.T) {
	candidate := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	existing := []domain.ScheduledItem{
		{ID: "1", Platform: domain.PlatformX, SourceContentID: strPtr("c1"),
			ScheduledTime: candidate.Add(48 * time.Hour), Status: domain.StatusPending},
	}

	decision := schedule.ResolveSlot(candidate, domain.PlatformLinkedIn, strPtr("c1"), existing)
	assert.False(t, decision.Free)
	require.NotNil(t, decision.Conflict)
	assert.Equal(t, "1", decision.Conflict.ID)
}

func TestResolveSlot_SameInstantSamePlatformIsAllowed(t *testing.T) {
	// Two different pieces of content at the identical instant on the same
	// platform do not conflict; the decision reports them as informational.
	candidate := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	existing := []domain.ScheduledItem{
		{ID: "1", Platform: domain.PlatformLinkedIn, SourceContentID: strPtr("c1"),
			ScheduledTime: candidate, Status: domain.StatusPending},
	}

	decision := schedule.ResolveSlot(candidate, domain.PlatformLinkedIn, strPtr("c2"), existing)
	assert.True(t, decision.Free)
	require.Len(t, decision.SameSlot, 1)
	assert.Equal(t, "1", decision.SameSlot[0].ID)
}

func TestResolveSlot_NilSourceNeverConflicts(t *testing.T) {
	candidate := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	existing := []domain.ScheduledItem{
		{ID: "1", Platform: domain.PlatformLinkedIn, SourceContentID: strPtr("c1"),
			ScheduledTime: candidate.Add(time.Hour), Status: domain.StatusPending},
	}

	decision := schedule.ResolveSlot(candidate, domain.PlatformLinkedIn, nil, existing)
	assert.True(t, decision.Free)
}
