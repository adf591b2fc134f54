//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/nosferatu/internal/models"
	"github.com/wolfeidau/nosferatu/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*TaskRunStore, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pool, err := NewPool(ctx, &PoolConfig{
		ConnString: fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MinConns:   1,
		MaxConns:   4,
	})
	require.NoError(t, err)

	require.NoError(t, RunMigrations(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return NewTaskRunStore(pool), cleanup
}

func TestIntegration_TaskRunStore(t *testing.T) {
	ctx := context.Background()
	runs, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	scheduled := time.Now().UTC().Truncate(time.Microsecond)
	run := &models.TaskRun{
		RunID:       uuid.Must(uuid.NewV7()),
		ScheduledAt: scheduled,
		ProcessedAt: scheduled.Add(150 * time.Millisecond),
	}

	t.Run("record run", func(t *testing.T) {
		require.NoError(t, runs.RecordRun(ctx, run))
	})

	t.Run("duplicate run", func(t *testing.T) {
		err := runs.RecordRun(ctx, run)
		require.ErrorIs(t, err, store.ErrTaskRunExists)
	})

	t.Run("count runs", func(t *testing.T) {
		count, err := runs.CountRuns(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(1), count)
	})

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, RunMigrations(ctx, runs.pool))
	})
}
