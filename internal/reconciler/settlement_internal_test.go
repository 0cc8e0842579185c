package reconciler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/domain"
)

// Duplicate settlement of the same mutation (e.g. a transport layer that
// delivers a late duplicate callback) must not double-apply or corrupt the
// cache entry, and must notify the UI exactly once.
func TestSettlement_DuplicateCommitIsIdempotent(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	var mu sync.Mutex
	var notified int
	cache := NewCache()
	rec := New(cache, nil,
		WithNotifier(func(Notification) {
			mu.Lock()
			notified++
			mu.Unlock()
		}),
		WithClock(func() time.Time { return now }))

	tempID := domain.NewTempID()
	rec.mu.Lock()
	snap := snapshot{id: tempID, existed: false, seq: rec.nextSeq(tempID)}
	rec.cache.upsert(domain.ScheduledItem{
		ID: tempID, Platform: domain.PlatformX, Content: "post",
		ScheduledTime: now.Add(time.Hour), Status: domain.StatusPending,
	})
	rec.mu.Unlock()

	canonical := domain.ScheduledItem{
		ID: "server-1", Platform: domain.PlatformX, Content: "post",
		ScheduledTime: now.Add(time.Hour), Status: domain.StatusPending,
	}

	m := newMutation()
	rec.settleSchedule(m, snap, &canonical, nil)
	rec.settleSchedule(m, snap, &canonical, nil)

	if cache.Len() != 1 {
		t.Fatalf("cache has %d entries, want 1", cache.Len())
	}
	if _, ok := cache.Get("server-1"); !ok {
		t.Fatal("canonical entry missing")
	}
	if _, ok := cache.Get(tempID); ok {
		t.Fatal("temporary entry should have been replaced")
	}

	mu.Lock()
	if notified != 1 {
		t.Errorf("notified %d times, want exactly 1", notified)
	}
	mu.Unlock()
}

// A duplicate failure settlement must roll back only once.
func TestSettlement_DuplicateRollbackIsIdempotent(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	var mu sync.Mutex
	var notified int
	cache := NewCache()
	rec := New(cache, nil,
		WithNotifier(func(Notification) {
			mu.Lock()
			notified++
			mu.Unlock()
		}),
		WithClock(func() time.Time { return now }))

	prior := domain.ScheduledItem{
		ID: "item-1", Platform: domain.PlatformX, Content: "post",
		ScheduledTime: now.Add(time.Hour), Status: domain.StatusPending,
	}
	cache.upsert(prior)

	rec.mu.Lock()
	snap := snapshot{id: "item-1", existed: true, prior: prior, seq: rec.nextSeq("item-1")}
	moved := prior
	moved.ScheduledTime = now.Add(3 * time.Hour)
	rec.cache.upsert(moved)
	rec.mu.Unlock()

	m := newMutation()
	rec.settleReschedule(m, snap, nil, errTest)
	rec.settleReschedule(m, snap, nil, errTest)

	item, ok := cache.Get("item-1")
	if !ok {
		t.Fatal("item missing after rollback")
	}
	if !item.ScheduledTime.Equal(prior.ScheduledTime) {
		t.Errorf("ScheduledTime = %v, want rollback to %v", item.ScheduledTime, prior.ScheduledTime)
	}

	mu.Lock()
	if notified != 1 {
		t.Errorf("notified %d times, want exactly 1", notified)
	}
	mu.Unlock()
}

var errTest = errors.New("simulated failure")
