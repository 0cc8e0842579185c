package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/api"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/domain"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/logger"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/reconciler"
)

func TestEventBroker_PublishReachesSubscribers(t *testing.T) {
	broker := api.NewEventBroker(logger.NewNopLogger())
	broker.Start(context.Background())
	defer broker.Stop()

	events, cleanup := broker.Subscribe()
	defer cleanup()

	broker.Publish(api.Event{Type: "upsert", ID: "item-1", At: time.Now()})

	select {
	case ev := <-events:
		assert.Equal(t, "upsert", ev.Type)
		assert.Equal(t, "item-1", ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventBroker_CleanupStopsDelivery(t *testing.T) {
	broker := api.NewEventBroker(logger.NewNopLogger())
	broker.Start(context.Background())
	defer broker.Stop()

	events, cleanup := broker.Subscribe()
	cleanup()

	// Channel is closed after cleanup.
	_, open := <-events
	assert.False(t, open)

	// Double cleanup must not panic.
	cleanup()
}

func TestEventBroker_BindCache(t *testing.T) {
	broker := api.NewEventBroker(logger.NewNopLogger())
	broker.Start(context.Background())
	defer broker.Stop()

	store := newMemoryStore()
	cache := reconciler.NewCache()
	rec := reconciler.New(cache, store, reconciler.WithLogger(logger.NewNopLogger()))

	unbind := broker.BindCache(cache)
	defer unbind()

	events, cleanup := broker.Subscribe()
	defer cleanup()

	req, err := domain.NewScheduleRequest(domain.PlatformLinkedIn, "post", time.Now().Add(time.Hour), time.Now())
	require.NoError(t, err)

	mut, err := rec.Schedule(context.Background(), req)
	require.NoError(t, err)
	<-mut.Done()
	require.NoError(t, mut.Err())

	// The optimistic insert and the canonical merge each produce changes;
	// the first one out is the optimistic upsert.
	select {
	case ev := <-events:
		assert.Equal(t, "upsert", ev.Type)
		require.NotNil(t, ev.Item)
		assert.Equal(t, "post", ev.Item.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cache event")
	}
}
