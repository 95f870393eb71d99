package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"category-tree/internal/event"
	"category-tree/internal/model"
)

func TestReparentMovesSubtreeToRoot(t *testing.T) {
	f := newFixture(t, model.DefaultLimits(), nil)
	f.add(t, "a", "")
	f.add(t, "b", "a")
	f.add(t, "c", "b")
	_, err := f.stats.Refresh(context.Background(), "a")
	require.NoError(t, err)

	result, err := f.reparent.Reparent(context.Background(), "b", nil, "admin", model.MoveOptions{Reason: "flatten"})

	require.NoError(t, err)
	require.True(t, result.Committed)
	require.Equal(t, "/a/b", result.OldPath)
	require.Equal(t, "/b", result.NewPath)
	require.Equal(t, 2, result.AffectedNodes)
	require.Equal(t, ptr("a"), result.OldParentID)

	b := f.get(t, "b")
	assert.Nil(t, b.ParentID)
	assert.Equal(t, 0, b.Depth)
	assert.Empty(t, b.PathIDs)
	assert.Equal(t, int64(2), b.Version)

	c := f.get(t, "c")
	assert.Equal(t, 1, c.Depth)
	assert.Equal(t, []string{"b"}, c.PathIDs)
	assert.Equal(t, "/b/c", c.Path)

	a := f.get(t, "a")
	assert.Equal(t, 0, a.ChildCount)
	assert.Equal(t, 0, a.DescendantCount)

	snap := f.store.Snapshot()
	require.Len(t, snap.Audit, 1)
	entry := snap.Audit[0]
	assert.Equal(t, result.AuditID, entry.ID)
	assert.Equal(t, model.AuditActionReparent, entry.Action)
	assert.Equal(t, "admin", entry.ActorID)
	assert.Equal(t, "flatten", entry.Reason)
	assert.Equal(t, []string{"a"}, entry.OldPathIDs)
	assert.Empty(t, entry.NewPathIDs)
	assert.Equal(t, 2, entry.Metadata["affectedCategories"])
	assert.Equal(t, 100, entry.Metadata["batchSize"])

	f.requireIntact(t)
}

func TestReparentRefusals(t *testing.T) {
	setup := func(t *testing.T, limits model.Limits) *fixture {
		f := newFixture(t, limits, nil)
		f.add(t, "a", "")
		f.add(t, "b", "a")
		f.add(t, "c", "b")
		f.add(t, "x", "")
		f.add(t, "y", "x")
		f.add(t, "z", "y")
		f.add(t, "old", "", func(n *model.TreeNode) { n.Status = model.StatusArchived })
		f.add(t, "dup", "x")
		f.add(t, "dup-root", "a", func(n *model.TreeNode) { n.Slug = "dup" })
		return f
	}

	tests := []struct {
		name     string
		limits   model.Limits
		nodeID   string
		parentID *string
		opts     model.MoveOptions
		code     string
		kind     error
	}{
		{name: "self move", nodeID: "a", parentID: ptr("a"), code: model.CodeSelfMove, kind: model.ErrInvalidOperation},
		{name: "into own descendant", nodeID: "a", parentID: ptr("c"), code: model.CodeCycle, kind: model.ErrInvalidOperation},
		{name: "missing node", nodeID: "ghost", parentID: ptr("a"), code: model.CodeNodeNotFound, kind: model.ErrNotFound},
		{name: "missing target", nodeID: "b", parentID: ptr("ghost"), code: model.CodeTargetNotFound, kind: model.ErrNotFound},
		{name: "archived node", nodeID: "old", parentID: ptr("a"), code: model.CodeNodeArchived, kind: model.ErrInvalidOperation},
		{name: "archived target", nodeID: "b", parentID: ptr("old"), code: model.CodeTargetArchived, kind: model.ErrInvalidOperation},
		{name: "same parent", nodeID: "c", parentID: ptr("b"), code: model.CodeSameParent, kind: model.ErrInvalidOperation},
		{name: "root to root", nodeID: "a", parentID: nil, code: model.CodeSameParent, kind: model.ErrInvalidOperation},
		{name: "sibling slug taken", nodeID: "dup-root", parentID: ptr("x"), code: model.CodeSlugConflict, kind: model.ErrInvalidOperation},
		{
			name:     "depth ceiling",
			limits:   limitsWith(func(l *model.Limits) { l.MaxDepth = 3 }),
			nodeID:   "b",
			parentID: ptr("z"),
			code:     model.CodeDepthLimit,
			kind:     model.ErrInvalidOperation,
		},
		{
			name:     "stale expected version",
			nodeID:   "b",
			parentID: ptr("x"),
			opts:     model.MoveOptions{ExpectedVersion: ptr(int64(7))},
			code:     model.CodeVersionMismatch,
			kind:     model.ErrConcurrentModification,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			limits := tc.limits
			if limits == (model.Limits{}) {
				limits = model.DefaultLimits()
			}
			f := setup(t, limits)
			before := f.store.Snapshot()

			result, err := f.reparent.Reparent(context.Background(), tc.nodeID, tc.parentID, "admin", tc.opts)

			require.Error(t, err)
			require.ErrorIs(t, err, tc.kind)
			var moveErr *model.MoveError
			require.ErrorAs(t, err, &moveErr)
			require.False(t, result.Committed)
			require.Len(t, result.Errors, 1)
			require.Equal(t, tc.code, result.Errors[0].Code)
			require.Equal(t, before, f.store.Snapshot())
		})
	}
}

func TestReparentDepthCeilingBoundary(t *testing.T) {
	f := newFixture(t, limitsWith(func(l *model.Limits) { l.MaxDepth = 3 }), nil)
	f.add(t, "x", "")
	f.add(t, "y", "x")
	f.add(t, "z", "y")
	f.add(t, "r", "")
	f.add(t, "a", "r")
	f.add(t, "b", "a")

	_, err := f.reparent.Reparent(context.Background(), "b", ptr("z"), "admin", model.MoveOptions{})

	require.NoError(t, err)
	require.Equal(t, 3, f.get(t, "b").Depth)
	f.requireIntact(t)
}

func TestReparentRollsBackOnStoreFailure(t *testing.T) {
	f := newFixture(t, model.DefaultLimits(), nil)
	f.add(t, "root", "")
	f.add(t, "target", "")
	f.add(t, "n", "root")
	for i := range 7 {
		f.add(t, fmt.Sprintf("d%d", i), "n")
	}
	f.store.PutItem(model.CatalogItem{ID: "item-1", CategoryID: "d1", Name: "widget"})

	f.store.SetFault(func(op string, id string) error {
		if op == "update" && id == "d5" {
			return errors.New("disk full")
		}
		return nil
	})
	before := f.store.Snapshot()

	result, err := f.reparent.Reparent(context.Background(), "n", ptr("target"), "admin", model.MoveOptions{
		BatchSize:            2,
		UpdateDependentItems: true,
	})

	require.Error(t, err)
	require.ErrorIs(t, err, model.ErrStoreFailure)
	require.False(t, result.Committed)
	require.Len(t, result.Errors, 1)
	require.Equal(t, model.CodeStoreFailure, result.Errors[0].Code)
	require.Equal(t, before, f.store.Snapshot())

	// Only the request echo survives a rolled-back scope.
	assert.Equal(t, model.MoveResult{
		NodeID:      "n",
		NewParentID: ptr("target"),
		Errors:      result.Errors,
		Warnings:    result.Warnings,
	}, result)
}

func TestReparentAuditFailureRollsBack(t *testing.T) {
	f := newFixture(t, model.DefaultLimits(), nil)
	f.add(t, "a", "")
	f.add(t, "b", "a")
	f.add(t, "x", "")
	f.store.SetFault(func(op string, _ string) error {
		if op == "audit" {
			return errors.New("audit sink unavailable")
		}
		return nil
	})
	before := f.store.Snapshot()

	_, err := f.reparent.Reparent(context.Background(), "b", ptr("x"), "admin", model.MoveOptions{})

	require.ErrorIs(t, err, model.ErrStoreFailure)
	require.Equal(t, before, f.store.Snapshot())
}

func TestReparentRoundTripRestoresPaths(t *testing.T) {
	f := newFixture(t, model.DefaultLimits(), nil)
	f.add(t, "home", "")
	f.add(t, "garden", "home")
	f.add(t, "tools", "garden")
	f.add(t, "shovels", "tools")
	f.add(t, "rakes", "tools")
	f.add(t, "outdoor", "")
	f.add(t, "seasonal", "outdoor")

	subtree := []string{"garden", "tools", "shovels", "rakes"}
	original := make(map[string]model.PathInfo, len(subtree))
	for _, id := range subtree {
		n := f.get(t, id)
		original[id] = model.PathInfo{Path: n.Path, PathIDs: n.PathIDs, Depth: n.Depth}
	}

	_, err := f.reparent.Reparent(context.Background(), "garden", ptr("seasonal"), "admin", model.MoveOptions{})
	require.NoError(t, err)
	require.Equal(t, "/outdoor/seasonal/garden/tools/shovels", f.get(t, "shovels").Path)
	f.requireIntact(t)

	_, err = f.reparent.Reparent(context.Background(), "garden", ptr("home"), "admin", model.MoveOptions{})
	require.NoError(t, err)

	for _, id := range subtree {
		n := f.get(t, id)
		assert.Equal(t, original[id], model.PathInfo{Path: n.Path, PathIDs: n.PathIDs, Depth: n.Depth}, id)
	}
	f.requireIntact(t)
}

func TestReparentLargeSubtreeInBatches(t *testing.T) {
	limits := limitsWith(func(l *model.Limits) {
		l.BatchConcurrency = 4
		l.BatchRate = 1000
		l.WarnChildren = 10
		l.WarnDescendants = 100
	})
	f := newFixture(t, limits, nil)
	f.add(t, "src", "")
	f.add(t, "dst", "")
	f.add(t, "n", "src")
	for i := range 30 {
		parent := fmt.Sprintf("c%d", i)
		f.add(t, parent, "n")
		for j := range 4 {
			f.add(t, fmt.Sprintf("c%d-%d", i, j), parent)
		}
	}

	result, err := f.reparent.Reparent(context.Background(), "n", ptr("dst"), "admin", model.MoveOptions{BatchSize: 7})

	require.NoError(t, err)
	require.Equal(t, 151, result.AffectedNodes)
	require.True(t, hasCode(result.Warnings, model.CodeLargeChildren))
	require.True(t, hasCode(result.Warnings, model.CodeLargeSubtree))
	require.Equal(t, "/dst/n/c29/c29-3", f.get(t, "c29-3").Path)
	require.Equal(t, []string{"dst", "n", "c29"}, f.get(t, "c29-3").PathIDs)
	require.Equal(t, 151, f.get(t, "dst").DescendantCount)
	f.requireIntact(t)
}

func TestReparentWarningsDoNotBlock(t *testing.T) {
	f := newFixture(t, model.DefaultLimits(), nil)
	f.add(t, "a", "")
	f.add(t, "b", "a")
	f.add(t, "shelf", "", func(n *model.TreeNode) {
		n.IsLeaf = true
		n.Status = model.StatusInactive
	})

	result, err := f.reparent.Reparent(context.Background(), "b", ptr("shelf"), "admin", model.MoveOptions{})

	require.NoError(t, err)
	require.True(t, result.Committed)
	require.Empty(t, result.Errors)
	require.True(t, hasCode(result.Warnings, model.CodeTargetIsLeaf))
	require.True(t, hasCode(result.Warnings, model.CodeTargetInactive))

	shelf := f.get(t, "shelf")
	assert.False(t, shelf.IsLeaf)
	assert.Equal(t, 1, shelf.ChildCount)
	leaves, err := f.query.Leaves(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, leaves)
}

func TestReparentDryRun(t *testing.T) {
	f := newFixture(t, model.DefaultLimits(), nil)
	f.add(t, "a", "")
	f.add(t, "b", "a")
	f.add(t, "c", "b")
	f.add(t, "x", "")
	f.store.PutItem(model.CatalogItem{ID: "i1", CategoryID: "b"})
	f.store.PutItem(model.CatalogItem{ID: "i2", CategoryID: "c"})
	f.store.PutItem(model.CatalogItem{ID: "i3", CategoryID: "a"})
	before := f.store.Snapshot()

	result, err := f.reparent.Reparent(context.Background(), "b", ptr("x"), "admin", model.MoveOptions{DryRun: true})

	require.NoError(t, err)
	require.True(t, result.DryRun)
	require.False(t, result.Committed)
	require.Equal(t, "/a/b", result.OldPath)
	require.Equal(t, "/x/b", result.NewPath)
	require.Equal(t, 1, result.OldDepth)
	require.Equal(t, 1, result.NewDepth)
	require.Equal(t, 2, result.AffectedNodes)
	require.Equal(t, 2, result.AffectedItems)
	require.Empty(t, result.AuditID)
	require.Equal(t, before, f.store.Snapshot())
}

func TestReparentUpdatesDependentItems(t *testing.T) {
	f := newFixture(t, model.DefaultLimits(), nil)
	f.add(t, "a", "")
	f.add(t, "b", "a")
	f.add(t, "c", "b")
	f.add(t, "x", "")
	f.store.PutItem(model.CatalogItem{ID: "i1", CategoryID: "c", CategoryPath: "/a/b/c", CategoryPathIDs: []string{"a", "b"}, CategoryDepth: 2})
	f.store.PutItem(model.CatalogItem{ID: "i2", CategoryID: "a", CategoryPath: "/a"})

	result, err := f.reparent.Reparent(context.Background(), "b", ptr("x"), "admin", model.MoveOptions{UpdateDependentItems: true})

	require.NoError(t, err)
	require.Equal(t, 1, result.AffectedItems)

	items := f.store.Snapshot().Items
	require.Len(t, items, 2)
	assert.Equal(t, "/x/b/c", items[0].CategoryPath)
	assert.Equal(t, []string{"x", "b"}, items[0].CategoryPathIDs)
	assert.Equal(t, 2, items[0].CategoryDepth)
	assert.Equal(t, "/a", items[1].CategoryPath)
}

func TestReparentConstraintHook(t *testing.T) {
	t.Run("hook errors refuse the move", func(t *testing.T) {
		hook := new(mockConstraintHook)
		hook.On("Validate", mock.Anything, mock.MatchedBy(func(n model.TreeNode) bool { return n.ID == "b" }), ptr("x")).
			Return([]model.Issue{{Code: "brand_locked", Message: "brand categories are frozen"}}, []model.Issue{{Message: "check merchandising"}}, nil).
			Once()

		f := newFixture(t, model.DefaultLimits(), hook)
		f.add(t, "a", "")
		f.add(t, "b", "a")
		f.add(t, "x", "")
		before := f.store.Snapshot()

		result, err := f.reparent.Reparent(context.Background(), "b", ptr("x"), "admin", model.MoveOptions{ValidateConstraints: true})

		require.ErrorIs(t, err, model.ErrConstraintViolation)
		require.Equal(t, "brand_locked", result.Errors[0].Code)
		require.Equal(t, model.CodeConstraint, result.Warnings[0].Code)
		require.Equal(t, before, f.store.Snapshot())
		hook.AssertExpectations(t)
	})

	t.Run("hook is skipped unless requested", func(t *testing.T) {
		hook := new(mockConstraintHook)
		f := newFixture(t, model.DefaultLimits(), hook)
		f.add(t, "a", "")
		f.add(t, "b", "a")
		f.add(t, "x", "")

		_, err := f.reparent.Reparent(context.Background(), "b", ptr("x"), "admin", model.MoveOptions{})

		require.NoError(t, err)
		hook.AssertNotCalled(t, "Validate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("hook failure is a store failure", func(t *testing.T) {
		hook := new(mockConstraintHook)
		hook.On("Validate", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil, errors.New("rules service down"))
		f := newFixture(t, model.DefaultLimits(), hook)
		f.add(t, "a", "")
		f.add(t, "b", "a")
		f.add(t, "x", "")

		_, err := f.reparent.Reparent(context.Background(), "b", ptr("x"), "admin", model.MoveOptions{ValidateConstraints: true})

		require.ErrorIs(t, err, model.ErrStoreFailure)
	})
}

func TestValidateMove(t *testing.T) {
	f := newFixture(t, model.DefaultLimits(), nil)
	f.add(t, "a", "")
	f.add(t, "b", "a")
	f.add(t, "c", "b")
	f.add(t, "leaf", "", func(n *model.TreeNode) { n.IsLeaf = true })
	before := f.store.Snapshot()

	t.Run("reports cycle", func(t *testing.T) {
		result, err := f.reparent.ValidateMove(context.Background(), "a", ptr("c"), model.MoveOptions{})

		require.NoError(t, err)
		require.False(t, result.IsValid)
		require.True(t, result.HasCode(model.CodeCycle))
	})

	t.Run("valid with warnings", func(t *testing.T) {
		result, err := f.reparent.ValidateMove(context.Background(), "b", ptr("leaf"), model.MoveOptions{})

		require.NoError(t, err)
		require.True(t, result.IsValid)
		require.True(t, result.HasCode(model.CodeTargetIsLeaf))
	})

	t.Run("rejects bad options", func(t *testing.T) {
		result, err := f.reparent.ValidateMove(context.Background(), "b", nil, model.MoveOptions{BatchSize: -1})

		require.NoError(t, err)
		require.False(t, result.IsValid)
		require.True(t, result.HasCode(model.CodeInvalidOptions))
	})

	require.Equal(t, before, f.store.Snapshot())
}

func TestReparentPublishesEvent(t *testing.T) {
	f := newFixture(t, model.DefaultLimits(), nil)
	f.add(t, "a", "")
	f.add(t, "b", "a")
	events, unsubscribe := f.bus.Subscribe()
	defer unsubscribe()

	_, err := f.reparent.Reparent(context.Background(), "b", nil, "admin", model.MoveOptions{})
	require.NoError(t, err)

	var moved []event.Event
	for len(events) > 0 {
		if e := <-events; e.Type == event.TypeCategoryMoved {
			moved = append(moved, e)
		}
	}
	require.Len(t, moved, 1)
	require.Equal(t, "b", moved[0].NodeID)
	require.Equal(t, "admin", moved[0].ActorID)
}

func TestReparentRejectsInvalidOptions(t *testing.T) {
	f := newFixture(t, model.DefaultLimits(), nil)
	f.add(t, "a", "")

	_, err := f.reparent.Reparent(context.Background(), "a", nil, "admin", model.MoveOptions{BatchSize: 20000})

	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func hasCode(issues []model.Issue, code string) bool {
	for _, issue := range issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}
