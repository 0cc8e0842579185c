// Package worker provides the background publish worker for the scheduling
// service. publish_worker.go implements the polling loop that delivers due
// items to platform channels over Redis Pub/Sub.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/domain"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/logger"
	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/metrics"
)

const (
	defaultPollInterval   = 30 * time.Second
	defaultBatchSize      = 10
	defaultPublishTimeout = 10 * time.Second
	cleanupInterval       = 1 * time.Hour
	cleanupRetention      = 7 * 24 * time.Hour // Keep terminal items for 7 days
	retryBatchDivisor     = 2                  // Retry batch = batchSize / divisor
)

// Repository is the persistence surface the worker needs.
type Repository interface {
	FetchDue(ctx context.Context, limit int) ([]domain.ScheduledItem, error)
	FetchRetryable(ctx context.Context, limit int) ([]domain.ScheduledItem, error)
	MarkPublished(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errorMsg string) error
	DeleteTerminalBefore(ctx context.Context, retention time.Duration) (int64, error)
}

// PublishWorker polls for due scheduled items and publishes them to Redis
// Pub/Sub, one channel per platform.
type PublishWorker struct {
	repo    Repository
	redis   redis.UniversalClient
	logger  logger.Logger
	metrics *metrics.Metrics

	pollInterval   time.Duration
	batchSize      int
	publishTimeout time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// Config holds worker configuration options
type Config struct {
	PollInterval   time.Duration
	BatchSize      int
	PublishTimeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		PublishTimeout: defaultPublishTimeout,
	}
}

// NewPublishWorker creates a new publish worker
func NewPublishWorker(
	repo Repository,
	redisClient redis.UniversalClient,
	cfg Config,
	m *metrics.Metrics,
	log logger.Logger,
) *PublishWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}

	return &PublishWorker{
		repo:           repo,
		redis:          redisClient,
		logger:         log,
		metrics:        m,
		pollInterval:   cfg.PollInterval,
		batchSize:      cfg.BatchSize,
		publishTimeout: cfg.PublishTimeout,
		stopChan:       make(chan struct{}),
	}
}

// Start begins the polling loop
func (w *PublishWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.wg.Add(1)
	go w.runCleanup(ctx)

	w.logger.Info("publish worker started",
		logger.Duration("poll_interval", w.pollInterval),
		logger.Int("batch_size", w.batchSize))
}

// Stop gracefully stops the worker
func (w *PublishWorker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("publish worker stopped")
}

// IsRunning returns whether the worker is currently running
func (w *PublishWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

func (w *PublishWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Process immediately on start
	w.ProcessOnce(ctx)

	for {
		select {
		case <-ticker.C:
			w.ProcessOnce(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ProcessOnce runs a single poll pass: due items first, then a smaller
// retry batch so new content keeps priority.
func (w *PublishWorker) ProcessOnce(ctx context.Context) {
	due, err := w.repo.FetchDue(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to fetch due items", logger.Error(err))
	} else {
		if w.metrics != nil {
			w.metrics.WorkerBatchItems.Observe(float64(len(due)))
		}
		if len(due) > 0 {
			w.logger.Debug("processing due items", logger.Int("count", len(due)))
			w.publishBatch(ctx, due)
		}
	}

	retryable, err := w.repo.FetchRetryable(ctx, w.batchSize/retryBatchDivisor)
	if err != nil {
		w.logger.Error("failed to fetch retryable items", logger.Error(err))
	} else if len(retryable) > 0 {
		w.logger.Debug("processing retryable items", logger.Int("count", len(retryable)))
		w.publishBatch(ctx, retryable)
	}
}

func (w *PublishWorker) publishBatch(ctx context.Context, items []domain.ScheduledItem) {
	for i := range items {
		w.publishOne(ctx, &items[i])
	}
}

func (w *PublishWorker) publishOne(ctx context.Context, item *domain.ScheduledItem) {
	message := item.ToPublishMessage()
	messageJSON, err := json.Marshal(message)
	if err != nil {
		w.handlePublishError(ctx, item, fmt.Errorf("marshal message: %w", err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, w.publishTimeout)
	defer cancel()

	channel := item.Platform.Channel()
	if err := w.redis.Publish(pubCtx, channel, messageJSON).Err(); err != nil {
		w.handlePublishError(ctx, item, fmt.Errorf("redis publish: %w", err))
		return
	}

	// Message is out; a failed status update only delays cleanup, so log
	// and move on.
	if markErr := w.repo.MarkPublished(ctx, item.ID); markErr != nil {
		w.logger.Error("failed to mark item as published",
			logger.String("item_id", item.ID),
			logger.Error(markErr))
	}

	if w.metrics != nil {
		w.metrics.ItemsPublishedTotal.WithLabelValues(string(item.Platform)).Inc()
		w.metrics.PublishLagSeconds.WithLabelValues(string(item.Platform)).
			Observe(time.Since(item.ScheduledTime).Seconds())
	}

	w.logger.Debug("published to platform channel",
		logger.String("item_id", item.ID),
		logger.String("channel", channel),
		logger.Int("retry_count", item.RetryCount))
}

func (w *PublishWorker) handlePublishError(ctx context.Context, item *domain.ScheduledItem, err error) {
	w.logger.Error("failed to publish scheduled item",
		logger.String("item_id", item.ID),
		logger.String("platform", string(item.Platform)),
		logger.Int("retry_count", item.RetryCount),
		logger.Error(err))

	if w.metrics != nil {
		w.metrics.PublishFailuresTotal.WithLabelValues(string(item.Platform)).Inc()
	}

	if markErr := w.repo.MarkFailed(ctx, item.ID, err.Error()); markErr != nil {
		w.logger.Error("failed to mark item as failed",
			logger.String("item_id", item.ID),
			logger.Error(markErr))
	}
}

// runCleanup periodically removes old published and cancelled items
func (w *PublishWorker) runCleanup(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deleted, err := w.repo.DeleteTerminalBefore(ctx, cleanupRetention)
			if err != nil {
				w.logger.Error("item cleanup failed", logger.Error(err))
			} else if deleted > 0 {
				w.logger.Info("cleaned up old scheduled items",
					logger.Int64("deleted", deleted))
			}
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
