package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"category-tree/internal/event"
	"category-tree/internal/model"
	"category-tree/internal/pathcodec"
	"category-tree/internal/repository"
)

type fixture struct {
	store      *repository.MemoryStore
	bus        *event.InMemoryBus
	stats      *StatisticsService
	query      *QueryService
	reparent   *ReparentService
	batch      *BatchService
	categories *CategoryService
}

func newFixture(t *testing.T, limits model.Limits, hook ConstraintHook) *fixture {
	t.Helper()

	store := repository.NewMemoryStore()
	bus := event.NewBus()
	stats := NewStatisticsService(store, bus)
	reparent := NewReparentService(store, stats, hook, bus, limits)

	return &fixture{
		store:      store,
		bus:        bus,
		stats:      stats,
		query:      NewQueryService(store),
		reparent:   reparent,
		batch:      NewBatchService(store, reparent, bus),
		categories: NewCategoryService(store, stats, bus, limits),
	}
}

// add inserts a category whose slug defaults to its id, with path fields derived from the parent.
func (f *fixture) add(t *testing.T, id string, parentID string, mutate ...func(*model.TreeNode)) model.TreeNode {
	t.Helper()
	ctx := context.Background()

	var parent *model.NodeSummary
	var pid *string
	if parentID != "" {
		p, err := f.store.FindByID(ctx, parentID)
		require.NoError(t, err)
		summary := p.Summary()
		parent = &summary
		pid = ptr(p.ID)
	}

	node := model.TreeNode{
		ID:       id,
		ParentID: pid,
		Slug:     id,
		Name:     strings.ToUpper(id),
		Status:   model.StatusActive,
		Version:  1,
	}
	for _, m := range mutate {
		m(&node)
	}

	info := pathcodec.Compute(parent, node.Slug)
	node.Path = info.Path
	node.PathIDs = info.PathIDs
	node.Depth = info.Depth

	require.NoError(t, f.store.Insert(ctx, node))
	return node
}

func (f *fixture) get(t *testing.T, id string) model.TreeNode {
	t.Helper()
	node, err := f.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return node
}

func (f *fixture) requireIntact(t *testing.T) {
	t.Helper()
	violations, err := f.query.CheckIntegrity(context.Background())
	require.NoError(t, err)
	require.Empty(t, violations)
}

func ptr[T any](v T) *T {
	return &v
}

func limitsWith(mutate func(*model.Limits)) model.Limits {
	l := model.DefaultLimits()
	mutate(&l)
	return l
}

type mockConstraintHook struct {
	mock.Mock
}

func (m *mockConstraintHook) Validate(ctx context.Context, node model.TreeNode, proposedParentID *string) ([]model.Issue, []model.Issue, error) {
	args := m.Called(ctx, node, proposedParentID)
	errs, _ := args.Get(0).([]model.Issue)
	warnings, _ := args.Get(1).([]model.Issue)
	return errs, warnings, args.Error(2)
}
