package repository

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"category-tree/internal/model"
)

func TestBuildNodeWhere(t *testing.T) {
	t.Parallel()

	t.Run("empty filter hides deleted rows", func(t *testing.T) {
		where, args := buildNodeWhere(NodeFilter{})

		assert.Equal(t, "WHERE deleted_at IS NULL", where)
		assert.Empty(t, args)
	})

	t.Run("numbers arguments in order", func(t *testing.T) {
		depth := 2
		parentID := "p1"
		where, args := buildNodeWhere(NodeFilter{
			ParentID:   &parentID,
			AncestorID: "root",
			Depth:      &depth,
			Statuses:   []model.Status{model.StatusActive},
		})

		assert.Contains(t, where, "parent_id = $1")
		assert.Contains(t, where, "path_ids @> ARRAY[$2]::text[]")
		assert.Contains(t, where, "depth = $3")
		assert.Contains(t, where, "status = ANY($4)")
		require.Len(t, args, 4)
		assert.Equal(t, []string{"ACTIVE"}, args[3])
	})

	t.Run("escapes like wildcards in search text", func(t *testing.T) {
		where, args := buildNodeWhere(NodeFilter{Text: " 50%_Off ", IncludeDeleted: true})

		assert.NotContains(t, where, "deleted_at")
		require.Len(t, args, 1)
		assert.Equal(t, `%50\%\_off%`, args[0])
		assert.Equal(t, 4, strings.Count(where, "$1"))
	})
}

func TestBuildNodeQuery(t *testing.T) {
	t.Parallel()

	sql, args := buildNodeQuery(NodeQuery{Filter: NodeFilter{Slug: "phones"}, Order: OrderDisplay, Limit: 10, Offset: 20})

	assert.Contains(t, sql, "WHERE deleted_at IS NULL AND slug = $1")
	assert.Contains(t, sql, "ORDER BY display_order ASC")
	assert.True(t, strings.HasSuffix(sql, "LIMIT $2 OFFSET $3"))
	assert.Equal(t, []any{"phones", 10, 20}, args)
}

func TestBuildNodeUpdate(t *testing.T) {
	t.Parallel()

	sql, args := buildNodeUpdate(NodeUpdate{
		ID:              "n1",
		ExpectedVersion: 3,
		Path:            &PathPatch{Reparent: true, Path: "/n1", Depth: 0},
	})

	assert.Contains(t, sql, "parent_id = $3, path = $4, path_ids = $5, depth = $6")
	assert.Contains(t, sql, "version = version + 1")
	assert.True(t, strings.HasSuffix(sql, "WHERE id = $1 AND version = $2"))
	require.Len(t, args, 6)
	assert.Nil(t, args[2])
	assert.Equal(t, []string{}, args[4])
}

func TestBuildNodeUpdateWritesLeafWithCounters(t *testing.T) {
	t.Parallel()

	sql, args := buildNodeUpdate(NodeUpdate{ID: "n1", ExpectedVersion: 1, Stats: &StatsPatch{ChildCount: 2, DescendantCount: 5}})

	assert.Contains(t, sql, "child_count = $3, descendant_count = $4, item_count = $5, is_leaf = $6")
	assert.Equal(t, []any{"n1", int64(1), 2, 5, 0, false}, args)
}
