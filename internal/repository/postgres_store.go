package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgTx struct {
	*NodeRepository
	*ItemRepository
	*AuditRepository
}

func newPgTx(db dbtx) *pgTx {
	return &pgTx{
		NodeRepository:  NewNodeRepository(db),
		ItemRepository:  NewItemRepository(db),
		AuditRepository: NewAuditRepository(db),
	}
}

// PostgresStore is the TreeStore backed by PostgreSQL. Outside RunAtomic each
// call autocommits on a pooled connection.
type PostgresStore struct {
	*pgTx
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pgTx: newPgTx(pool), pool: pool}
}

// RunAtomic runs fn in a SERIALIZABLE transaction. A serialization failure
// surfaces as model.ErrConcurrentModification; the caller decides whether to retry.
func (s *PostgresStore) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return mapPgError("begin transaction", err)
	}
	defer func() {
		if rbErr := tx.Rollback(context.Background()); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Warn("transaction rollback failed", "error", rbErr)
		}
	}()

	if err := fn(ctx, newPgTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError("commit transaction", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	return nil
}
