package api

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/domain"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/logger"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/reconciler"
)

const (
	defaultEventBuffer  = 64
	defaultClientBuffer = 16
	heartbeatInterval   = 30 * time.Second
	brokerStopTimeout   = 5 * time.Second
)

// Event is one calendar change pushed to SSE subscribers.
type Event struct {
	Type string                `json:"type"` // upsert | remove
	ID   string                `json:"id"`
	Item *domain.ScheduledItem `json:"item,omitempty"`
	At   time.Time             `json:"at"`
}

// EventBroker fans calendar cache changes out to SSE subscribers. Slow
// subscribers drop events rather than block the cache listener.
type EventBroker struct {
	logger logger.Logger

	mu      sync.RWMutex
	clients map[uint64]chan Event
	nextID  uint64

	publish chan Event

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEventBroker creates an event broker.
func NewEventBroker(log logger.Logger) *EventBroker {
	return &EventBroker{
		logger:  log,
		clients: make(map[uint64]chan Event),
		publish: make(chan Event, defaultEventBuffer),
	}
}

// Start begins distributing events.
func (b *EventBroker) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(1)
	go b.broadcastLoop(ctx)

	b.logger.Info("event broker started")
}

// Stop shuts the broker down, waiting briefly for the broadcast loop.
func (b *EventBroker) Stop() {
	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("event broker stopped")
	case <-time.After(brokerStopTimeout):
		b.logger.Warn("event broker stop timeout exceeded")
	}
}

// Publish queues an event for all subscribers. Events are dropped when the
// broker buffer is full; the SSE stream is a live view, not a journal.
func (b *EventBroker) Publish(ev Event) {
	select {
	case b.publish <- ev:
	default:
		b.logger.Warn("event buffer full, dropping event",
			logger.String("type", ev.Type),
			logger.String("id", ev.ID))
	}
}

// Subscribe registers a subscriber. The cleanup func must be called when the
// subscriber goes away.
func (b *EventBroker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, defaultClientBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.clients[id] = ch
	b.mu.Unlock()

	cleanup := func() {
		b.mu.Lock()
		if _, ok := b.clients[id]; ok {
			delete(b.clients, id)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cleanup
}

// BindCache forwards cache changes into the broker. Returns the unsubscribe
// func from the cache.
func (b *EventBroker) BindCache(cache *reconciler.Cache) func() {
	return cache.OnChange(func(change reconciler.Change) {
		ev := Event{
			Type: string(change.Kind),
			ID:   change.ID,
			At:   time.Now().UTC(),
		}
		if change.Item != nil {
			item := *change.Item
			ev.Item = &item
		}
		b.Publish(ev)
	})
}

func (b *EventBroker) broadcastLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case ev := <-b.publish:
			b.mu.RLock()
			for _, ch := range b.clients {
				select {
				case ch <- ev:
				default:
					// Subscriber is not keeping up; skip it.
				}
			}
			b.mu.RUnlock()
		case <-ctx.Done():
			return
		}
	}
}

// streamEvents streams calendar changes as server-sent events.
// GET /api/v1/schedule/events
func (r *Router) streamEvents(c *gin.Context) {
	if r.broker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "event streaming is not enabled",
		})
		return
	}

	events, cleanup := r.broker.Subscribe()
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev)
			return true
		case at := <-heartbeat.C:
			c.SSEvent("heartbeat", at.UTC().Format(time.RFC3339))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
