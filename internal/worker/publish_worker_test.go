package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/domain"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/logger"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/worker"
)

// fakeRepo is an in-memory worker.Repository.
type fakeRepo struct {
	mu        sync.Mutex
	due       []domain.ScheduledItem
	retryable []domain.ScheduledItem
	published []string
	failed    map[string]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{failed: make(map[string]string)}
}

func (f *fakeRepo) FetchDue(_ context.Context, limit int) ([]domain.ScheduledItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.due) > limit {
		batch := f.due[:limit]
		f.due = f.due[limit:]
		return batch, nil
	}
	batch := f.due
	f.due = nil
	return batch, nil
}

func (f *fakeRepo) FetchRetryable(_ context.Context, limit int) ([]domain.ScheduledItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.retryable) > limit {
		batch := f.retryable[:limit]
		f.retryable = f.retryable[limit:]
		return batch, nil
	}
	batch := f.retryable
	f.retryable = nil
	return batch, nil
}

func (f *fakeRepo) MarkPublished(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailed(_ context.Context, id, errorMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = errorMsg
	return nil
}

func (f *fakeRepo) DeleteTerminalBefore(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) publishedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published...)
}

func (f *fakeRepo) failedReason(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reason, ok := f.failed[id]
	return reason, ok
}

func dueItem(id string, platform domain.Platform) domain.ScheduledItem {
	now := time.Now()
	return domain.ScheduledItem{
		ID:            id,
		Platform:      platform,
		Content:       "post body",
		ScheduledTime: now.Add(-time.Minute),
		Status:        domain.StatusPending,
		MaxRetries:    5,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := worker.DefaultConfig()

	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want %v", cfg.PollInterval, 30*time.Second)
	}
	if cfg.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want %d", cfg.BatchSize, 10)
	}
	if cfg.PublishTimeout != 10*time.Second {
		t.Errorf("PublishTimeout = %v, want %v", cfg.PublishTimeout, 10*time.Second)
	}
}

func TestProcessOnce_PublishesDueItems(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, domain.PlatformLinkedIn.Channel())
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	repo := newFakeRepo()
	repo.due = []domain.ScheduledItem{dueItem("item-1", domain.PlatformLinkedIn)}

	w := worker.NewPublishWorker(repo, client, worker.DefaultConfig(), nil, logger.NewNopLogger())
	w.ProcessOnce(ctx)

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive message: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["id"] != "item-1" {
		t.Errorf("payload id = %v, want item-1", payload["id"])
	}
	if payload["platform"] != "linkedin" {
		t.Errorf("payload platform = %v, want linkedin", payload["platform"])
	}

	if got := repo.publishedIDs(); len(got) != 1 || got[0] != "item-1" {
		t.Errorf("published ids = %v, want [item-1]", got)
	}
}

func TestProcessOnce_MarksFailedOnPublishError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	// A dead broker makes every publish fail.
	mr.Close()

	repo := newFakeRepo()
	repo.due = []domain.ScheduledItem{dueItem("item-1", domain.PlatformX)}

	cfg := worker.DefaultConfig()
	cfg.PublishTimeout = time.Second

	w := worker.NewPublishWorker(repo, client, cfg, nil, logger.NewNopLogger())
	w.ProcessOnce(context.Background())

	reason, ok := repo.failedReason("item-1")
	if !ok {
		t.Fatal("item was not marked failed")
	}
	if reason == "" {
		t.Error("failure reason is empty")
	}
	if got := repo.publishedIDs(); len(got) != 0 {
		t.Errorf("published ids = %v, want none", got)
	}
}

func TestProcessOnce_RetryBatchRunsAfterDue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	repo := newFakeRepo()
	repo.due = []domain.ScheduledItem{dueItem("due-1", domain.PlatformLinkedIn)}
	retry := dueItem("retry-1", domain.PlatformX)
	retry.RetryCount = 2
	repo.retryable = []domain.ScheduledItem{retry}

	w := worker.NewPublishWorker(repo, client, worker.DefaultConfig(), nil, logger.NewNopLogger())
	w.ProcessOnce(context.Background())

	got := repo.publishedIDs()
	if len(got) != 2 || got[0] != "due-1" || got[1] != "retry-1" {
		t.Errorf("published ids = %v, want [due-1 retry-1]", got)
	}
}

func TestStartStop(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := worker.DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond

	w := worker.NewPublishWorker(newFakeRepo(), client, cfg, nil, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)
	if !w.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}

	// Second Start is a no-op.
	w.Start(ctx)

	w.Stop()
}

var errBroken = errors.New("database down")

// brokenRepo fails every fetch.
type brokenRepo struct{ *fakeRepo }

func (b *brokenRepo) FetchDue(context.Context, int) ([]domain.ScheduledItem, error) {
	return nil, errBroken
}

func (b *brokenRepo) FetchRetryable(context.Context, int) ([]domain.ScheduledItem, error) {
	return nil, errBroken
}

func TestProcessOnce_SurvivesFetchErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	repo := &brokenRepo{fakeRepo: newFakeRepo()}
	w := worker.NewPublishWorker(repo, client, worker.DefaultConfig(), nil, logger.NewNopLogger())

	// Must not panic or publish anything.
	w.ProcessOnce(context.Background())
}
