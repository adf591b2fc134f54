package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/nosferatu/internal/models"
	"github.com/wolfeidau/nosferatu/internal/store"
)

var _ store.TaskRunStore = (*TaskRunStore)(nil)

// TaskRunStore implements store.TaskRunStore using in-memory storage.
// This implementation is for development and testing only - data is lost on restart.
type TaskRunStore struct {
	mu sync.RWMutex

	runs map[uuid.UUID]*models.TaskRun
}

// NewTaskRunStore creates a new in-memory task run store.
func NewTaskRunStore() *TaskRunStore {
	return &TaskRunStore{
		runs: make(map[uuid.UUID]*models.TaskRun),
	}
}

// RecordRun stores a copy of run.
func (s *TaskRunStore) RecordRun(ctx context.Context, run *models.TaskRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.RunID]; exists {
		return store.ErrTaskRunExists
	}

	clone := *run
	s.runs[run.RunID] = &clone

	return nil
}

// CountRuns returns the number of recorded runs.
func (s *TaskRunStore) CountRuns(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.runs)), nil
}
