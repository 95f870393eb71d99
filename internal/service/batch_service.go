package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"category-tree/internal/event"
	"category-tree/internal/model"
	"category-tree/internal/repository"
)

type BatchService struct {
	store    repository.TreeStore
	reparent *ReparentService
	bus      event.Bus
}

func NewBatchService(store repository.TreeStore, reparent *ReparentService, bus event.Bus) *BatchService {
	if bus == nil {
		bus = event.Nop{}
	}
	return &BatchService{store: store, reparent: reparent, bus: bus}
}

// BatchReparent runs the requests deepest node first. Outside dry-run it stops
// at the first failure and returns the results so far together with that
// failure; later requests are counted as skipped. A dry run previews every
// request against the current, unmoved tree. Version guards travel on each
// request; opts.ExpectedVersion is rejected.
func (s *BatchService) BatchReparent(ctx context.Context, requests []model.MoveRequest, actorID string, opts model.MoveOptions) (model.BatchResult, error) {
	ctx, span := tracer().Start(ctx, "category.BatchReparent", trace.WithAttributes(
		attribute.Int("requests", len(requests)),
		attribute.Bool("dry_run", opts.DryRun),
	))
	defer span.End()

	result := model.BatchResult{DryRun: opts.DryRun, Results: make([]model.MoveResult, 0, len(requests))}
	if opts.ExpectedVersion != nil {
		return result, fmt.Errorf("expected_version applies per move, not per batch: %w", model.ErrInvalidInput)
	}
	for i, req := range requests {
		if err := validateStruct(req); err != nil {
			return result, fmt.Errorf("request %d: %w", i, err)
		}
	}

	ordered, err := s.orderDeepestFirst(ctx, requests)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	start := time.Now()
	for i, req := range ordered {
		reqOpts := opts
		reqOpts.ExpectedVersion = req.ExpectedVersion
		moved, err := s.reparent.Reparent(ctx, req.NodeID, req.NewParentID, actorID, reqOpts)
		result.Results = append(result.Results, moved)
		if err == nil {
			result.Succeeded++
			batchRequests.WithLabelValues(outcomeCommitted).Inc()
			continue
		}

		result.Failed++
		batchRequests.WithLabelValues(outcomeFailed).Inc()
		if opts.DryRun {
			continue
		}

		result.Skipped = len(ordered) - i - 1
		batchRequests.WithLabelValues(outcomeSkipped).Add(float64(result.Skipped))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("batch move stopped",
			"node_id", req.NodeID,
			"position", i+1,
			"requests", len(ordered),
			"skipped", result.Skipped,
			"error", err,
		)
		s.bus.Publish(event.New(event.TypeBatchCompleted, "", actorID, result))
		return result, fmt.Errorf("batch move %d of %d (%s): %w", i+1, len(ordered), req.NodeID, err)
	}

	span.SetAttributes(attribute.Int("succeeded", result.Succeeded), attribute.Int("failed", result.Failed))
	slog.Info("batch move finished",
		"requests", len(ordered),
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"dry_run", opts.DryRun,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if !opts.DryRun {
		s.bus.Publish(event.New(event.TypeBatchCompleted, "", actorID, result))
	}
	return result, nil
}

// orderDeepestFirst sorts by the current depth of each moving node, deepest
// first. Unknown nodes sort last; ties keep request order.
func (s *BatchService) orderDeepestFirst(ctx context.Context, requests []model.MoveRequest) ([]model.MoveRequest, error) {
	ids := make([]string, 0, len(requests))
	for _, req := range requests {
		ids = append(ids, req.NodeID)
	}

	depths := make(map[string]int, len(ids))
	if len(ids) > 0 {
		nodes, err := s.store.FindMany(ctx, repository.NodeQuery{Filter: repository.NodeFilter{IDs: ids}})
		if err != nil {
			return nil, model.ClassifyStoreError("load batch nodes", err)
		}
		for _, n := range nodes {
			depths[n.ID] = n.Depth
		}
	}

	depthOf := func(id string) int {
		if d, ok := depths[id]; ok {
			return d
		}
		return -1
	}

	ordered := slices.Clone(requests)
	slices.SortStableFunc(ordered, func(a, b model.MoveRequest) int {
		return cmp.Compare(depthOf(b.NodeID), depthOf(a.NodeID))
	})
	return ordered, nil
}
