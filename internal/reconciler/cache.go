// Package reconciler implements the optimistic-update reconciliation
// protocol for the calendar cache: mutations apply to the in-memory cache
// immediately, the server call settles asynchronously, and sequence-numbered
// snapshots decide whether a failed call may roll the cache back.
package reconciler

import (
	"sort"
	"sync"

	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/domain"
)

// ChangeKind classifies a cache change event
type ChangeKind string

const (
	ChangeUpsert ChangeKind = "upsert"
	ChangeRemove ChangeKind = "remove"
)

// Change describes one cache modification, delivered to subscribed listeners.
// Item is nil for removals.
type Change struct {
	Kind ChangeKind            `json:"kind"`
	ID   string                `json:"id"`
	Item *domain.ScheduledItem `json:"item,omitempty"`
}

// Listener receives cache change events
type Listener func(Change)

// Cache is the single in-memory store of scheduled items shared by every
// surface that displays the calendar. It is injectable and observable:
// callers hold a reference and subscribe with OnChange rather than reaching
// for ambient global state. Only the Reconciler mutates it.
type Cache struct {
	mu        sync.RWMutex
	items     map[string]domain.ScheduledItem
	listeners map[int]Listener
	nextSub   int
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{
		items:     make(map[string]domain.ScheduledItem),
		listeners: make(map[int]Listener),
	}
}

// Get returns a copy of the item with the given id
func (c *Cache) Get(id string) (domain.ScheduledItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	return item, ok
}

// Len returns the number of cached items
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Snapshot returns all cached items ordered by scheduled time, then id.
// The slice and its elements are copies; mutating them does not touch the
// cache.
func (c *Cache) Snapshot() []domain.ScheduledItem {
	c.mu.RLock()
	items := make([]domain.ScheduledItem, 0, len(c.items))
	for _, item := range c.items {
		items = append(items, item)
	}
	c.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].ScheduledTime.Equal(items[j].ScheduledTime) {
			return items[i].ScheduledTime.Before(items[j].ScheduledTime)
		}
		return items[i].ID < items[j].ID
	})
	return items
}

// OnChange subscribes a listener to cache changes and returns an
// unsubscribe function. Listeners are invoked after the mutation is applied,
// outside the cache lock.
func (c *Cache) OnChange(fn Listener) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// findActiveBySource returns the active item holding the given source
// content id, if any. Used by the Reconciler's synchronous pre-flight check.
func (c *Cache) findActiveBySource(sourceContentID string) (domain.ScheduledItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, item := range c.items {
		if item.SourceContentID != nil && *item.SourceContentID == sourceContentID && item.IsActive() {
			return item, true
		}
	}
	return domain.ScheduledItem{}, false
}

func (c *Cache) upsert(item domain.ScheduledItem) {
	c.mu.Lock()
	c.items[item.ID] = item
	listeners := c.copyListeners()
	c.mu.Unlock()

	change := Change{Kind: ChangeUpsert, ID: item.ID, Item: &item}
	for _, fn := range listeners {
		fn(change)
	}
}

func (c *Cache) remove(id string) {
	c.mu.Lock()
	_, existed := c.items[id]
	delete(c.items, id)
	listeners := c.copyListeners()
	c.mu.Unlock()

	if !existed {
		return
	}
	change := Change{Kind: ChangeRemove, ID: id}
	for _, fn := range listeners {
		fn(change)
	}
}

// replaceID swaps a temporary optimistic entry for its canonical server
// representation. Listeners see a removal of the old id followed by an
// upsert of the new one.
func (c *Cache) replaceID(oldID string, item domain.ScheduledItem) {
	c.mu.Lock()
	delete(c.items, oldID)
	c.items[item.ID] = item
	listeners := c.copyListeners()
	c.mu.Unlock()

	removal := Change{Kind: ChangeRemove, ID: oldID}
	upsert := Change{Kind: ChangeUpsert, ID: item.ID, Item: &item}
	for _, fn := range listeners {
		fn(removal)
		fn(upsert)
	}
}

// copyListeners must be called with the lock held
func (c *Cache) copyListeners() []Listener {
	listeners := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	return listeners
}
