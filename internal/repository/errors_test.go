package repository

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"category-tree/internal/model"
)

func TestMapPgError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, model.ErrNotFound},
		{"serialization", &pgconn.PgError{Code: pgSerializationFailure}, model.ErrConcurrentModification},
		{"deadlock", &pgconn.PgError{Code: pgDeadlockDetected}, model.ErrConcurrentModification},
		{"unique", &pgconn.PgError{Code: pgUniqueViolation}, model.ErrInvalidOperation},
		{"other", errors.New("connection refused"), model.ErrStoreFailure},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, mapPgError("find category", tc.err), tc.want)
		})
	}

	require.NoError(t, mapPgError("noop", nil))
}
