package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/nosferatu/internal/models"
	"github.com/wolfeidau/nosferatu/internal/store"
)

var _ store.TaskRunStore = (*TaskRunStore)(nil)

// TaskRunStore implements store.TaskRunStore on PostgreSQL.
type TaskRunStore struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// NewTaskRunStore creates a store backed by pool. The schema must already
// exist, see RunMigrations.
func NewTaskRunStore(pool *pgxpool.Pool) *TaskRunStore {
	return &TaskRunStore{
		pool:         pool,
		queryTimeout: 10 * time.Second,
	}
}

// RecordRun inserts run.
func (s *TaskRunStore) RecordRun(ctx context.Context, run *models.TaskRun) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO task_runs (run_id, scheduled_at, processed_at)
		VALUES ($1, $2, $3)
	`, run.RunID, run.ScheduledAt, run.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to insert task run: %w", mapPostgresError(err))
	}

	return nil
}

// CountRuns returns the number of recorded runs.
func (s *TaskRunStore) CountRuns(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM task_runs`).Scan(&count); err != nil {
		return 0, mapPostgresError(err)
	}

	return count, nil
}
