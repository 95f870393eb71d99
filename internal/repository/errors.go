package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"category-tree/internal/model"
)

const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// mapPgError translates driver errors into the model taxonomy.
func mapPgError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%s: %s: %w", op, pgErr.Message, model.ErrConcurrentModification)
		case pgUniqueViolation, pgForeignKeyViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.Message, model.ErrInvalidOperation)
		}
	}

	return model.ClassifyStoreError(op, err)
}
