package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"category-tree/internal/event"
	"category-tree/internal/model"
)

func TestBatchReparentDeepestFirst(t *testing.T) {
	f := newFixture(t, model.DefaultLimits(), nil)
	f.add(t, "r1", "")
	f.add(t, "y", "r1")
	f.add(t, "r2", "")
	f.add(t, "m", "r2")
	f.add(t, "x", "m")
	f.add(t, "z", "")

	result, err := f.batch.BatchReparent(context.Background(), []model.MoveRequest{
		{NodeID: "y", NewParentID: ptr("z")},
		{NodeID: "x", NewParentID: ptr("y")},
	}, "admin", model.MoveOptions{})

	require.NoError(t, err)
	require.Equal(t, 2, result.Succeeded)
	require.Equal(t, "x", result.Results[0].NodeID)
	require.Equal(t, "/r1/y/x", result.Results[0].NewPath)
	require.Equal(t, "y", result.Results[1].NodeID)
	require.Equal(t, 2, result.Results[1].AffectedNodes)

	x := f.get(t, "x")
	assert.Equal(t, "/z/y/x", x.Path)
	assert.Equal(t, []string{"z", "y"}, x.PathIDs)
	assert.Equal(t, 2, x.Depth)
	f.requireIntact(t)
}

func TestBatchReparentStopsAtFirstFailure(t *testing.T) {
	f := newFixture(t, model.DefaultLimits(), nil)
	f.add(t, "a", "")
	f.add(t, "b", "a")
	f.add(t, "c", "b")
	f.add(t, "d", "c")
	f.add(t, "x", "")
	events, unsubscribe := f.bus.Subscribe()
	defer unsubscribe()

	result, err := f.batch.BatchReparent(context.Background(), []model.MoveRequest{
		{NodeID: "a", NewParentID: ptr("x")},
		{NodeID: "b", NewParentID: ptr("c")},
		{NodeID: "d", NewParentID: ptr("x")},
	}, "admin", model.MoveOptions{})

	require.Error(t, err)
	require.ErrorIs(t, err, model.ErrInvalidOperation)
	require.Equal(t, 1, result.Succeeded)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, 1, result.Skipped)
	require.Len(t, result.Results, 2)
	require.Equal(t, "d", result.Results[0].NodeID)
	require.True(t, result.Results[0].Committed)
	require.Equal(t, model.CodeCycle, result.Results[1].Errors[0].Code)

	require.Equal(t, "/x/d", f.get(t, "d").Path)
	require.Equal(t, "/a", f.get(t, "a").Path)
	f.requireIntact(t)

	var completed int
	for len(events) > 0 {
		if e := <-events; e.Type == event.TypeBatchCompleted {
			completed++
		}
	}
	require.Equal(t, 1, completed)
}

func TestBatchReparentDryRunContinues(t *testing.T) {
	f := newFixture(t, model.DefaultLimits(), nil)
	f.add(t, "a", "")
	f.add(t, "b", "a")
	f.add(t, "x", "")
	before := f.store.Snapshot()

	result, err := f.batch.BatchReparent(context.Background(), []model.MoveRequest{
		{NodeID: "a", NewParentID: ptr("b")},
		{NodeID: "ghost", NewParentID: ptr("x")},
		{NodeID: "b", NewParentID: ptr("x")},
	}, "admin", model.MoveOptions{DryRun: true})

	require.NoError(t, err)
	require.True(t, result.DryRun)
	require.Equal(t, 1, result.Succeeded)
	require.Equal(t, 2, result.Failed)
	require.Zero(t, result.Skipped)
	require.Len(t, result.Results, 3)
	require.Equal(t, []string{"b", "a", "ghost"}, []string{result.Results[0].NodeID, result.Results[1].NodeID, result.Results[2].NodeID})
	require.Equal(t, "/x/b", result.Results[0].NewPath)
	require.Equal(t, before, f.store.Snapshot())
}

func TestBatchReparentRejectsInvalidRequests(t *testing.T) {
	f := newFixture(t, model.DefaultLimits(), nil)

	_, err := f.batch.BatchReparent(context.Background(), []model.MoveRequest{{NodeID: ""}}, "admin", model.MoveOptions{})

	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestBatchReparentExpectedVersionIsPerRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("options-level version is rejected", func(t *testing.T) {
		f := newFixture(t, model.DefaultLimits(), nil)
		f.add(t, "r", "")
		f.add(t, "a", "")
		f.add(t, "b", "")
		before := f.store.Snapshot()

		_, err := f.batch.BatchReparent(ctx, []model.MoveRequest{
			{NodeID: "a", NewParentID: ptr("r")},
			{NodeID: "b", NewParentID: ptr("r")},
		}, "admin", model.MoveOptions{ExpectedVersion: ptr(int64(1))})

		require.ErrorIs(t, err, model.ErrInvalidInput)
		assert.Equal(t, before, f.store.Snapshot())
	})

	t.Run("each request checks its own version", func(t *testing.T) {
		f := newFixture(t, model.DefaultLimits(), nil)
		f.add(t, "r", "")
		f.add(t, "a", "")
		f.add(t, "b", "", func(n *model.TreeNode) { n.Version = 4 })

		result, err := f.batch.BatchReparent(ctx, []model.MoveRequest{
			{NodeID: "a", NewParentID: ptr("r"), ExpectedVersion: ptr(int64(1))},
			{NodeID: "b", NewParentID: ptr("r"), ExpectedVersion: ptr(int64(4))},
		}, "admin", model.MoveOptions{})

		require.NoError(t, err)
		assert.Equal(t, 2, result.Succeeded)
		assert.Equal(t, ptr("r"), f.get(t, "a").ParentID)
		assert.Equal(t, ptr("r"), f.get(t, "b").ParentID)
	})

	t.Run("a stale request stops the batch", func(t *testing.T) {
		f := newFixture(t, model.DefaultLimits(), nil)
		f.add(t, "r", "")
		f.add(t, "a", "")

		result, err := f.batch.BatchReparent(ctx, []model.MoveRequest{
			{NodeID: "a", NewParentID: ptr("r"), ExpectedVersion: ptr(int64(3))},
		}, "admin", model.MoveOptions{})

		require.ErrorIs(t, err, model.ErrConcurrentModification)
		assert.Equal(t, 1, result.Failed)
		assert.Nil(t, f.get(t, "a").ParentID)
	})
}
