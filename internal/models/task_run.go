package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskRun records one background task handled by the dispatcher.
type TaskRun struct {
	RunID       uuid.UUID // UUIDv7, assigned when the run is recorded
	ScheduledAt time.Time // When the request handler scheduled the task
	ProcessedAt time.Time // When the dispatcher picked it up
}

// Latency returns how long the task waited in the queue.
func (r *TaskRun) Latency() time.Duration {
	return r.ProcessedAt.Sub(r.ScheduledAt)
}
