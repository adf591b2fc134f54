package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/nosferatu/internal/store"
)

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		contains string
	}{
		{
			name:     "duplicate run",
			err:      &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "task_runs_pkey"},
			sentinel: store.ErrTaskRunExists,
		},
		{
			name:     "other unique violation",
			err:      &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "other_key"},
			contains: "unique constraint violation: other_key",
		},
		{
			name:     "connection failure",
			err:      &pgconn.PgError{Code: pgerrcode.ConnectionFailure},
			sentinel: store.ErrUnavailable,
		},
		{
			name:     "unknown code",
			err:      &pgconn.PgError{Code: pgerrcode.SyntaxError, Message: "syntax error"},
			contains: "postgres error [42601]: syntax error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := mapPostgresError(tt.err)
			require.Error(t, mapped)
			if tt.sentinel != nil {
				require.ErrorIs(t, mapped, tt.sentinel)
			}
			if tt.contains != "" {
				require.Contains(t, mapped.Error(), tt.contains)
			}
		})
	}
}

func TestMapPostgresErrorPassthrough(t *testing.T) {
	require.NoError(t, mapPostgresError(nil))

	plain := errors.New("plain")
	require.Equal(t, plain, mapPostgresError(plain))
}

func TestPoolConfigDefaults(t *testing.T) {
	cfg := &PoolConfig{ConnString: "postgres://localhost/test"}
	cfg.ApplyDefaults()

	require.Equal(t, int32(20), cfg.MaxConns)
	require.Equal(t, int32(5), cfg.MinConns)
	require.Equal(t, int32(3600), cfg.MaxConnLifetime)
	require.Equal(t, int32(1800), cfg.MaxConnIdleTime)
	require.Equal(t, int32(10), cfg.ConnectTimeout)
	require.Equal(t, int32(30), cfg.StartupTimeout)
	require.NoError(t, cfg.Validate())

	require.Error(t, (&PoolConfig{}).Validate())
	require.Error(t, (&PoolConfig{ConnString: "postgres://x", MinConns: 10, MaxConns: 2}).Validate())
}
