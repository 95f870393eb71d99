package database

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
)

//go:embed migrations/001_initial.up.sql
var initialMigrationSQL string

//go:embed migrations/002_item_path_denormalization.up.sql
var itemPathDenormalizationSQL string

var requiredTables = []string{
	"categories",
	"catalog_items",
	"category_audit_entries",
}

func (db *DB) EnsureSchema(ctx context.Context) error {
	if db == nil || db.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	exists, err := db.hasAllRequiredTables(ctx)
	if err != nil {
		return fmt.Errorf("check existing tables: %w", err)
	}

	if !exists {
		slog.Info("database schema missing tables; applying initial migration")
		if _, err := db.Pool.Exec(ctx, initialMigrationSQL); err != nil {
			return fmt.Errorf("apply initial migration: %w", err)
		}

		exists, err = db.hasAllRequiredTables(ctx)
		if err != nil {
			return fmt.Errorf("re-check tables after migration: %w", err)
		}

		if !exists {
			return fmt.Errorf("schema initialization incomplete: required tables are still missing")
		}
	}

	// ── Incremental migrations ───────────────────────────────────
	// 002: denormalized category path on catalog items.
	if err := db.applyItemPathDenormalization(ctx); err != nil {
		return fmt.Errorf("apply item path denormalization migration: %w", err)
	}

	slog.Info("database schema ensured")
	return nil
}

// applyItemPathDenormalization runs migration 002 idempotently.
func (db *DB) applyItemPathDenormalization(ctx context.Context) error {
	hasColumn, err := db.hasColumn(ctx, "catalog_items", "category_path_ids")
	if err != nil {
		return fmt.Errorf("check category_path_ids column: %w", err)
	}

	if !hasColumn {
		slog.Info("applying item path denormalization migration (002)")
		if _, err := db.Pool.Exec(ctx, itemPathDenormalizationSQL); err != nil {
			return fmt.Errorf("exec item path denormalization SQL: %w", err)
		}
		slog.Info("item path denormalization migration applied")
	}

	return nil
}

func (db *DB) hasColumn(ctx context.Context, table string, column string) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = current_schema()
			  AND table_name = $1
			  AND column_name = $2
		)
	`, table, column).Scan(&exists)
	return exists, err
}

func (db *DB) hasAllRequiredTables(ctx context.Context) (bool, error) {
	var count int
	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		  AND table_name = ANY($1)
	`, requiredTables).Scan(&count)
	if err != nil {
		return false, err
	}

	return count == len(requiredTables), nil
}
