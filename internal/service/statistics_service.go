package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"category-tree/internal/event"
	"category-tree/internal/model"
	"category-tree/internal/repository"
)

type StatisticsService struct {
	store repository.TreeStore
	bus   event.Bus
}

func NewStatisticsService(store repository.TreeStore, bus event.Bus) *StatisticsService {
	if bus == nil {
		bus = event.Nop{}
	}
	return &StatisticsService{store: store, bus: bus}
}

// Refresh recomputes the counters of one node in its own atomic scope.
func (s *StatisticsService) Refresh(ctx context.Context, id string) (model.TreeNode, error) {
	ctx, span := tracer().Start(ctx, "category.RefreshStatistics", trace.WithAttributes(attribute.String("node_id", id)))
	defer span.End()

	var refreshed model.TreeNode
	err := s.store.RunAtomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		node, err := s.refresh(ctx, tx, id)
		refreshed = node
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.TreeNode{}, model.ClassifyStoreError("refresh statistics", err)
	}

	s.bus.Publish(event.New(event.TypeStatisticsRefreshed, id, "", refreshed))
	return refreshed, nil
}

// RefreshChain refreshes id and then each of its ancestors, deepest first, in
// one atomic scope. It repairs ancestor counters a move leaves behind.
func (s *StatisticsService) RefreshChain(ctx context.Context, id string) ([]model.TreeNode, error) {
	ctx, span := tracer().Start(ctx, "category.RefreshStatisticsChain", trace.WithAttributes(attribute.String("node_id", id)))
	defer span.End()

	var refreshed []model.TreeNode
	err := s.store.RunAtomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		node, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}

		chain := append([]string{node.ID}, node.PathIDs...)
		slices.Reverse(chain[1:])

		refreshed = make([]model.TreeNode, 0, len(chain))
		for _, nodeID := range chain {
			n, err := s.refresh(ctx, tx, nodeID)
			if err != nil {
				return err
			}
			refreshed = append(refreshed, n)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, model.ClassifyStoreError("refresh statistics chain", err)
	}

	span.SetAttributes(attribute.Int("refreshed", len(refreshed)))
	for _, n := range refreshed {
		s.bus.Publish(event.New(event.TypeStatisticsRefreshed, n.ID, "", n))
	}
	return refreshed, nil
}

// refresh reads the live counts for id and writes them with a version bump.
func (s *StatisticsService) refresh(ctx context.Context, tx repository.Tx, id string) (model.TreeNode, error) {
	node, err := tx.FindByID(ctx, id)
	if err != nil {
		return model.TreeNode{}, fmt.Errorf("refresh statistics of %s: %w", id, err)
	}

	children, err := tx.Count(ctx, repository.NodeFilter{ParentID: &node.ID})
	if err != nil {
		return model.TreeNode{}, fmt.Errorf("count children of %s: %w", id, err)
	}
	descendants, err := tx.Count(ctx, repository.NodeFilter{AncestorID: node.ID})
	if err != nil {
		return model.TreeNode{}, fmt.Errorf("count descendants of %s: %w", id, err)
	}
	items, err := tx.CountItems(ctx, repository.ItemFilter{CategoryIDs: []string{node.ID}})
	if err != nil {
		return model.TreeNode{}, fmt.Errorf("count items of %s: %w", id, err)
	}

	// A leaf flag never survives a live child.
	isLeaf := node.IsLeaf && children == 0

	err = tx.UpdateOne(ctx, repository.NodeUpdate{
		ID:              node.ID,
		ExpectedVersion: node.Version,
		Stats: &repository.StatsPatch{
			ChildCount:      children,
			DescendantCount: descendants,
			ItemCount:       items,
			IsLeaf:          isLeaf,
		},
	})
	if err != nil {
		return model.TreeNode{}, fmt.Errorf("write statistics of %s: %w", id, err)
	}

	statisticsRefreshes.Inc()
	slog.Debug("statistics refreshed",
		"node_id", node.ID,
		"child_count", children,
		"descendant_count", descendants,
		"item_count", items,
	)

	node.ChildCount = children
	node.DescendantCount = descendants
	node.ItemCount = items
	node.IsLeaf = isLeaf
	node.Version++
	return node, nil
}
