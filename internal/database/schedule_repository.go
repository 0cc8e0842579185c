package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/HanifCarroll/vox-prismatic-scheduler/internal/domain"
)

// itemSelectList is the column list for SELECT/RETURNING on scheduled_items
// (single source for schema changes)
const itemSelectList = `id, source_content_id, platform, content, scheduled_time,
			status, retry_count, max_retries, error_message,
			created_at, updated_at, published_at, next_retry_at`

const defaultMaxRetries = 5

// uniqueViolation is the PostgreSQL error code raised by the partial unique
// index on (source_content_id) WHERE status != 'cancelled'
const uniqueViolation = "23505"

// ScheduleRepository manages scheduled items in PostgreSQL.
// Its ScheduleItem/RescheduleItem/UnscheduleItem/ListScheduledItems methods
// satisfy the reconciler's client interface, so the reconciler can run
// in-process against the database.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new repository
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Ping verifies database connectivity
func (r *ScheduleRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ScheduleItem inserts a new pending item.
// The one-active-item-per-source-content invariant is enforced by a partial
// unique index; violations surface as domain.ErrAlreadyScheduled.
func (r *ScheduleRepository) ScheduleItem(ctx context.Context, req *domain.ScheduleRequest) (*domain.ScheduledItem, error) {
	query := `
		INSERT INTO scheduled_items (id, source_content_id, platform, content,
			scheduled_time, status, retry_count, max_retries, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, NOW(), NOW())
		RETURNING ` + itemSelectList

	var item domain.ScheduledItem
	err := r.db.QueryRowxContext(ctx, query,
		uuid.NewString(), req.SourceContentID, req.Platform, req.Content,
		req.ScheduledTime, domain.StatusPending, defaultMaxRetries,
	).StructScan(&item)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, domain.ErrAlreadyScheduled
		}
		return nil, fmt.Errorf("schedule item: %w", err)
	}

	return &item, nil
}

// RescheduleItem moves an item to a new instant. Only items that have not
// reached a terminal state can move; rescheduling a failed item also resets
// it to pending so the publish worker picks it up again.
func (r *ScheduleRepository) RescheduleItem(ctx context.Context, id string, newTime time.Time) (*domain.ScheduledItem, error) {
	query := `
		UPDATE scheduled_items
		SET scheduled_time = $2,
		    status = 'pending',
		    error_message = NULL,
		    next_retry_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
		  AND status IN ('pending', 'failed')
		RETURNING ` + itemSelectList

	var item domain.ScheduledItem
	err := r.db.QueryRowxContext(ctx, query, id, newTime.UTC()).StructScan(&item)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reschedule item: %w", err)
	}

	return &item, nil
}

// UnscheduleItem cancels a non-terminal item, releasing its source content
// slot for rescheduling.
func (r *ScheduleRepository) UnscheduleItem(ctx context.Context, id string) error {
	query := `
		UPDATE scheduled_items
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1
		  AND status IN ('pending', 'failed')`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("unschedule item: %w", err)
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListScheduledItems returns items inside a calendar range, optionally
// filtered by platform. Cancelled items are excluded.
func (r *ScheduleRepository) ListScheduledItems(ctx context.Context, start, end time.Time, platform *domain.Platform) ([]domain.ScheduledItem, error) {
	query := `
		SELECT ` + itemSelectList + `
		FROM scheduled_items
		WHERE scheduled_time >= $1
		  AND scheduled_time < $2
		  AND status != 'cancelled'`
	args := []any{start.UTC(), end.UTC()}

	if platform != nil {
		query += ` AND platform = $3`
		args = append(args, *platform)
	}
	query += ` ORDER BY scheduled_time ASC, id ASC`

	var items []domain.ScheduledItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list scheduled items: %w", err)
	}
	if items == nil {
		items = []domain.ScheduledItem{}
	}
	return items, nil
}

// GetByID retrieves a single item
func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*domain.ScheduledItem, error) {
	query := `SELECT ` + itemSelectList + ` FROM scheduled_items WHERE id = $1`

	var item domain.ScheduledItem
	err := r.db.GetContext(ctx, &item, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get by id: %w", err)
	}
	return &item, nil
}

// FetchDue claims pending items whose scheduled time has arrived.
// FOR UPDATE SKIP LOCKED keeps concurrent workers from claiming the same
// rows.
func (r *ScheduleRepository) FetchDue(ctx context.Context, limit int) ([]domain.ScheduledItem, error) {
	query := `
		UPDATE scheduled_items
		SET updated_at = NOW()
		WHERE id IN (
			SELECT id FROM scheduled_items
			WHERE status = 'pending'
			  AND scheduled_time <= NOW()
			ORDER BY scheduled_time ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + itemSelectList

	var items []domain.ScheduledItem
	if err := r.db.SelectContext(ctx, &items, query, limit); err != nil {
		return nil, fmt.Errorf("fetch due: %w", err)
	}
	return items, nil
}

// FetchRetryable claims failed items whose backoff window has elapsed and
// whose retries are not exhausted, flipping them back to pending.
func (r *ScheduleRepository) FetchRetryable(ctx context.Context, limit int) ([]domain.ScheduledItem, error) {
	query := `
		UPDATE scheduled_items
		SET status = 'pending', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM scheduled_items
			WHERE status = 'failed'
			  AND retry_count < max_retries
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY next_retry_at ASC NULLS FIRST
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + itemSelectList

	var items []domain.ScheduledItem
	if err := r.db.SelectContext(ctx, &items, query, limit); err != nil {
		return nil, fmt.Errorf("fetch retryable: %w", err)
	}
	return items, nil
}

// MarkPublished marks an item as successfully published
func (r *ScheduleRepository) MarkPublished(ctx context.Context, id string) error {
	query := `
		UPDATE scheduled_items
		SET status = 'published',
		    published_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1`
	return r.execExpectOneRow(ctx, "mark published", query, id)
}

// MarkFailed records a publish failure with exponential retry backoff:
// 1min, 2min, 4min, 8min, 16min.
func (r *ScheduleRepository) MarkFailed(ctx context.Context, id, errorMsg string) error {
	query := `
		UPDATE scheduled_items
		SET status = 'failed',
		    error_message = $2,
		    retry_count = retry_count + 1,
		    next_retry_at = NOW() + (INTERVAL '1 minute' * POWER(2, retry_count)),
		    updated_at = NOW()
		WHERE id = $1`
	return r.execExpectOneRow(ctx, "mark failed", query, id, errorMsg)
}

// DeleteTerminalBefore removes published and cancelled items older than the
// retention window, returning how many rows were deleted.
func (r *ScheduleRepository) DeleteTerminalBefore(ctx context.Context, retention time.Duration) (int64, error) {
	query := `
		DELETE FROM scheduled_items
		WHERE status IN ('published', 'cancelled')
		  AND updated_at < NOW() - make_interval(secs => $1)`

	result, err := r.db.ExecContext(ctx, query, retention.Seconds())
	if err != nil {
		return 0, fmt.Errorf("delete terminal items: %w", err)
	}
	return result.RowsAffected()
}

// Stats returns item counts for monitoring
func (r *ScheduleRepository) Stats(ctx context.Context) (*domain.ItemStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') as pending,
			COUNT(*) FILTER (WHERE status = 'published') as published,
			COUNT(*) FILTER (WHERE status = 'failed' AND retry_count < max_retries) as failed_retryable,
			COUNT(*) FILTER (WHERE status = 'failed' AND retry_count >= max_retries) as failed_exhausted,
			COUNT(*) FILTER (WHERE status = 'cancelled') as cancelled,
			COALESCE(AVG(EXTRACT(EPOCH FROM (published_at - scheduled_time)))
				FILTER (WHERE status = 'published' AND published_at > NOW() - INTERVAL '1 hour'), 0) as avg_publish_lag_seconds
		FROM scheduled_items`

	var stats domain.ItemStats
	err := r.db.QueryRowxContext(ctx, query).Scan(
		&stats.Pending,
		&stats.Published,
		&stats.FailedRetryable,
		&stats.FailedExhausted,
		&stats.Cancelled,
		&stats.AvgPublishLagSeconds,
	)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return &stats, nil
}

// PlatformStats returns per-platform counts
func (r *ScheduleRepository) PlatformStats(ctx context.Context) ([]domain.PlatformStats, error) {
	query := `
		SELECT
			platform,
			COUNT(*) FILTER (WHERE status = 'pending') as pending,
			COUNT(*) FILTER (WHERE status = 'published') as published,
			COUNT(*) FILTER (WHERE status = 'failed') as failed
		FROM scheduled_items
		GROUP BY platform
		ORDER BY platform`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("platform stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.PlatformStats
	for rows.Next() {
		var s domain.PlatformStats
		if scanErr := rows.Scan(&s.Platform, &s.Pending, &s.Published, &s.Failed); scanErr != nil {
			return nil, fmt.Errorf("scan platform stats: %w", scanErr)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// execExpectOneRow runs an exec and returns domain.ErrNotFound when no row
// was affected
func (r *ScheduleRepository) execExpectOneRow(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
