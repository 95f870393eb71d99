//go:build integration

package integration

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"category-tree/internal/app"
	"category-tree/internal/database"
	"category-tree/internal/model"
	"category-tree/internal/repository"
)

// newPostgresApp wires the services over TEST_DATABASE_URL with empty tables.
func newPostgresApp(t *testing.T, limits model.Limits) (*app.App, *database.DB) {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	db, err := database.New(ctx, database.PoolConfig{URL: url, MaxConns: 4, MinConns: 1})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.EnsureSchema(ctx))
	_, err = db.Pool.Exec(ctx, `TRUNCATE category_audit_entries, catalog_items, categories`)
	require.NoError(t, err)

	a := app.NewWithStore(repository.NewPostgresStore(db.Pool), limits, nil)
	t.Cleanup(a.Close)
	return a, db
}

func createNode(t *testing.T, a *app.App, parentID *string, slug string) model.TreeNode {
	t.Helper()

	node, err := a.Categories.CreateNode(context.Background(), model.CreateNodeRequest{
		ParentID: parentID,
		Slug:     slug,
		Name:     slug,
	}, "integration")
	require.NoError(t, err)
	return node
}

func fileItem(t *testing.T, db *database.DB, id string, category model.TreeNode) {
	t.Helper()

	_, err := db.Pool.Exec(context.Background(),
		`INSERT INTO catalog_items (id, category_id, name, category_path, category_path_ids, category_depth)
		 VALUES ($1, $2, $1, $3, $4, $5)`,
		id, category.ID, category.Path, category.PathIDs, category.Depth)
	require.NoError(t, err)
}
