package store

import (
	"context"
	"errors"

	"github.com/wolfeidau/nosferatu/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrTaskRunExists = errors.New("task run already recorded")
	ErrUnavailable   = errors.New("store unavailable")
)

// TaskRunStore persists the task runs handled by the dispatcher.
type TaskRunStore interface {
	// RecordRun stores a handled task. Recording the same RunID twice fails
	// with ErrTaskRunExists.
	RecordRun(ctx context.Context, run *models.TaskRun) error

	// CountRuns returns the number of recorded runs.
	CountRuns(ctx context.Context) (int64, error)
}
