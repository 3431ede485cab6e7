package storage

import (
	"context"
	"fmt"
	"time"
)

// UsageLogRepository handles the shared per-minute request log backing the
// rolling window gate.
type UsageLogRepository struct {
	db *PostgresDB
}

// NewUsageLogRepository creates a new usage log repository
func NewUsageLogRepository(db *PostgresDB) *UsageLogRepository {
	return &UsageLogRepository{db: db}
}

// WindowSum returns the summed request counts for minutes at or after since
func (r *UsageLogRepository) WindowSum(ctx context.Context, since time.Time) (int, error) {
	var n int
	query := `SELECT COALESCE(SUM(num_requests), 0) FROM api_use_log WHERE minute >= $1`
	if err := r.db.Pool().QueryRow(ctx, query, since.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to sum usage window: %w", err)
	}
	return n, nil
}

// Upsert adds delta to the minute's row, creating it when absent. Minute is
// floored to the UTC minute so concurrent workers land on the same row.
func (r *UsageLogRepository) Upsert(ctx context.Context, minute time.Time, delta int) error {
	query := `
		INSERT INTO api_use_log (minute, num_requests)
		VALUES ($1, $2)
		ON CONFLICT (minute) DO UPDATE SET
			num_requests = api_use_log.num_requests + EXCLUDED.num_requests
	`
	floored := minute.UTC().Truncate(time.Minute)
	if _, err := r.db.Pool().Exec(ctx, query, floored, delta); err != nil {
		return fmt.Errorf("failed to upsert usage log: %w", err)
	}
	return nil
}

// Prune removes rows older than the retention horizon
func (r *UsageLogRepository) Prune(ctx context.Context, before time.Time) error {
	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM api_use_log WHERE minute < $1`, before.UTC()); err != nil {
		return fmt.Errorf("failed to prune usage log: %w", err)
	}
	return nil
}
