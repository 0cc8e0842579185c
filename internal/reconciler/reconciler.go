package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/domain"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/logger"
)

// genericErrorMessage is shown when the server gives no usable reason
const genericErrorMessage = "Something went wrong. Please try again."

// ErrPastDropTarget is returned synchronously when a drag-drop reschedule
// targets an instant that is already in the past. No mutation is recorded.
var ErrPastDropTarget = errors.New("cannot schedule into the past")

// Client is the persistence/API boundary the reconciler dispatches to.
// The reconciler treats these as opaque async operations; they may be REST
// calls, RPC, or direct repository calls.
type Client interface {
	ScheduleItem(ctx context.Context, req *domain.ScheduleRequest) (*domain.ScheduledItem, error)
	RescheduleItem(ctx context.Context, id string, newTime time.Time) (*domain.ScheduledItem, error)
	UnscheduleItem(ctx context.Context, id string) error
	ListScheduledItems(ctx context.Context, start, end time.Time, platform *domain.Platform) ([]domain.ScheduledItem, error)
}

// NotificationKind is the outcome class surfaced to the UI
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

// Notification is delivered to the UI layer after every mutation settles
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Message string           `json:"message"`
}

// Notifier receives settlement notifications
type Notifier func(Notification)

// snapshot is the pre-mutation state of one item: what the cache held (or
// that it held nothing) and the sequence number of the mutation that
// replaced it. Created when the mutation applies, consumed at settlement.
type snapshot struct {
	id      string
	existed bool
	prior   domain.ScheduledItem
	seq     uint64
}

// Mutation is the caller's handle on one in-flight optimistic mutation.
// Done is closed when the server call settles and the cache is reconciled.
type Mutation struct {
	done chan struct{}

	mu      sync.Mutex
	settled bool
	err     error
	item    *domain.ScheduledItem
}

// Done returns a channel closed at settlement
func (m *Mutation) Done() <-chan struct{} { return m.done }

// Err returns the settlement error, if any. Valid after Done is closed.
func (m *Mutation) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Item returns the canonical server item for successful schedule and
// reschedule mutations. Valid after Done is closed.
func (m *Mutation) Item() *domain.ScheduledItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.item
}

// markSettled flips the mutation to settled exactly once; duplicate
// settlements report false and must be ignored by the caller.
func (m *Mutation) markSettled(item *domain.ScheduledItem, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled {
		return false
	}
	m.settled = true
	m.item = item
	m.err = err
	return true
}

// Reconciler owns the cache mutation discipline. Every mutation follows the
// same protocol: snapshot, optimistic apply, async dispatch, then commit or
// sequence-checked rollback at settlement.
//
// Cache mutations happen under the reconciler's lock, but the per-id
// sequence number is the actual ordering mechanism: it makes a late
// rollback from a superseded mutation detectable and discardable, which a
// lock alone cannot do across an async settlement boundary.
type Reconciler struct {
	cache  *Cache
	client Client
	notify Notifier
	log    logger.Logger
	now    func() time.Time

	mu   sync.Mutex
	seqs map[string]uint64
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithNotifier sets the UI notification callback
func WithNotifier(fn Notifier) Option {
	return func(r *Reconciler) { r.notify = fn }
}

// WithLogger sets the logger
func WithLogger(log logger.Logger) Option {
	return func(r *Reconciler) { r.log = log }
}

// WithClock overrides the wall clock, for deterministic tests
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New creates a reconciler around an injectable cache and client
func New(cache *Cache, client Client, opts ...Option) *Reconciler {
	r := &Reconciler{
		cache:  cache,
		client: client,
		notify: func(Notification) {},
		log:    logger.NewNopLogger(),
		now:    time.Now,
		seqs:   make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache returns the cache this reconciler owns
func (r *Reconciler) Cache() *Cache { return r.cache }

// nextSeq must be called with r.mu held
func (r *Reconciler) nextSeq(id string) uint64 {
	r.seqs[id]++
	return r.seqs[id]
}

// latestSeq must be called with r.mu held
func (r *Reconciler) latestSeq(id string) uint64 {
	return r.seqs[id]
}

// Load seeds the cache from the server for a calendar range. Existing
// entries for fetched ids are overwritten; optimistic entries for other ids
// are left untouched.
func (r *Reconciler) Load(ctx context.Context, start, end time.Time, platform *domain.Platform) error {
	items, err := r.client.ListScheduledItems(ctx, start, end, platform)
	if err != nil {
		return fmt.Errorf("load scheduled items: %w", err)
	}
	for _, item := range items {
		r.cache.upsert(item)
	}
	return nil
}

// Schedule optimistically adds a new pending item under a temporary id and
// dispatches the create call. The request must already have passed
// validation. Returns the mutation handle, or an error when the synchronous
// pre-flight check rejects the request (nothing is applied to the cache).
func (r *Reconciler) Schedule(ctx context.Context, req *domain.ScheduleRequest) (*Mutation, error) {
	// Pre-empt the server round-trip when the cache already shows an active
	// item for this source content.
	if req.SourceContentID != nil {
		if holder, found := r.cache.findActiveBySource(*req.SourceContentID); found {
			r.log.Debug("schedule rejected pre-flight",
				logger.String("source_content_id", *req.SourceContentID),
				logger.String("holder_id", holder.ID))
			return nil, domain.ErrAlreadyScheduled
		}
	}

	now := r.now()
	optimistic := domain.ScheduledItem{
		ID:              domain.NewTempID(),
		SourceContentID: req.SourceContentID,
		Platform:        req.Platform,
		Content:         req.Content,
		ScheduledTime:   req.ScheduledTime,
		Status:          domain.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	r.mu.Lock()
	snap := snapshot{id: optimistic.ID, existed: false, seq: r.nextSeq(optimistic.ID)}
	r.cache.upsert(optimistic)
	r.mu.Unlock()

	m := newMutation()
	go func() {
		item, err := r.client.ScheduleItem(ctx, req)
		r.settleSchedule(m, snap, item, err)
	}()
	return m, nil
}

// Reschedule optimistically moves an existing item to a new instant and
// dispatches the update call. A target in the past is rejected before any
// snapshot or cache mutation (the drag-drop guard).
func (r *Reconciler) Reschedule(ctx context.Context, id string, newTime time.Time) (*Mutation, error) {
	if !newTime.After(r.now()) {
		return nil, ErrPastDropTarget
	}

	r.mu.Lock()
	current, ok := r.cache.Get(id)
	if !ok {
		r.mu.Unlock()
		return nil, domain.ErrNotFound
	}

	snap := snapshot{id: id, existed: true, prior: current, seq: r.nextSeq(id)}
	optimistic := current
	optimistic.ScheduledTime = newTime.UTC()
	optimistic.UpdatedAt = r.now()
	r.cache.upsert(optimistic)
	r.mu.Unlock()

	m := newMutation()
	go func() {
		item, err := r.client.RescheduleItem(ctx, id, newTime)
		r.settleReschedule(m, snap, item, err)
	}()
	return m, nil
}

// Unschedule optimistically removes an item from the calendar and
// dispatches the cancel call.
func (r *Reconciler) Unschedule(ctx context.Context, id string) (*Mutation, error) {
	r.mu.Lock()
	current, ok := r.cache.Get(id)
	if !ok {
		r.mu.Unlock()
		return nil, domain.ErrNotFound
	}

	snap := snapshot{id: id, existed: true, prior: current, seq: r.nextSeq(id)}
	r.cache.remove(id)
	r.mu.Unlock()

	m := newMutation()
	go func() {
		err := r.client.UnscheduleItem(ctx, id)
		r.settleUnschedule(m, snap, err)
	}()
	return m, nil
}

func newMutation() *Mutation {
	return &Mutation{done: make(chan struct{})}
}

func (r *Reconciler) settleSchedule(m *Mutation, snap snapshot, item *domain.ScheduledItem, err error) {
	if !m.markSettled(item, err) {
		return
	}
	defer close(m.done)

	if err != nil {
		r.rollback(snap, err, "schedule")
		return
	}

	r.mu.Lock()
	// Swap the temporary optimistic entry for the canonical server item.
	// Other ids' in-flight mutations are untouched.
	if r.latestSeq(snap.id) == snap.seq {
		r.cache.replaceID(snap.id, *item)
	}
	r.mu.Unlock()

	r.log.Debug("schedule committed",
		logger.String("temp_id", snap.id),
		logger.String("id", item.ID))
	r.notify(Notification{Kind: NotifySuccess, Message: "Post scheduled"})
}

func (r *Reconciler) settleReschedule(m *Mutation, snap snapshot, item *domain.ScheduledItem, err error) {
	if !m.markSettled(item, err) {
		return
	}
	defer close(m.done)

	if err != nil {
		r.rollback(snap, err, "reschedule")
		return
	}

	r.mu.Lock()
	// Merge the canonical representation unless a newer mutation on this id
	// has since applied its own optimistic state.
	if r.latestSeq(snap.id) == snap.seq {
		r.cache.upsert(*item)
	}
	r.mu.Unlock()

	r.log.Debug("reschedule committed", logger.String("id", snap.id))
	r.notify(Notification{Kind: NotifySuccess, Message: "Post rescheduled"})
}

func (r *Reconciler) settleUnschedule(m *Mutation, snap snapshot, err error) {
	if !m.markSettled(nil, err) {
		return
	}
	defer close(m.done)

	if err != nil {
		r.rollback(snap, err, "unschedule")
		return
	}

	r.log.Debug("unschedule committed", logger.String("id", snap.id))
	r.notify(Notification{Kind: NotifySuccess, Message: "Post unscheduled"})
}

// rollback restores the snapshot only while its sequence number is still the
// latest recorded for the id. A newer, still-pending mutation on the same
// item takes precedence; its settlement, not this one, decides the final
// state. This is what keeps a slow failure from clobbering a fast success.
func (r *Reconciler) rollback(snap snapshot, cause error, op string) {
	r.mu.Lock()
	if r.latestSeq(snap.id) != snap.seq {
		r.mu.Unlock()
		r.log.Debug("stale rollback dropped",
			logger.String("op", op),
			logger.String("id", snap.id),
			logger.Uint64("seq", snap.seq))
		r.notify(Notification{Kind: NotifyError, Message: errorMessage(cause)})
		return
	}

	if snap.existed {
		r.cache.upsert(snap.prior)
	} else {
		r.cache.remove(snap.id)
	}
	r.mu.Unlock()

	r.log.Warn("mutation rolled back",
		logger.String("op", op),
		logger.String("id", snap.id),
		logger.Error(cause))
	r.notify(Notification{Kind: NotifyError, Message: errorMessage(cause)})
}

func errorMessage(err error) string {
	if err == nil || err.Error() == "" {
		return genericErrorMessage
	}
	return err.Error()
}
