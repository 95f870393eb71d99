package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"category-tree/internal/event"
	"category-tree/internal/model"
	"category-tree/internal/pathcodec"
	"category-tree/internal/repository"
)

// treeReader is what validation needs; both the store and a Tx provide it.
type treeReader interface {
	repository.NodeReader
	repository.ItemStore
}

// ReparentService moves a node and its subtree under a new parent.
type ReparentService struct {
	store  repository.TreeStore
	stats  *StatisticsService
	hook   ConstraintHook
	bus    event.Bus
	limits model.Limits
	now    func() time.Time
}

func NewReparentService(store repository.TreeStore, stats *StatisticsService, hook ConstraintHook, bus event.Bus, limits model.Limits) *ReparentService {
	if bus == nil {
		bus = event.Nop{}
	}
	if stats == nil {
		stats = NewStatisticsService(store, bus)
	}
	return &ReparentService{
		store:  store,
		stats:  stats,
		hook:   hook,
		bus:    bus,
		limits: withDefaultLimits(limits),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// movePlan is the outcome of a successful validation.
type movePlan struct {
	node        model.TreeNode
	newParentID *string
	newInfo     model.PathInfo
	depthDelta  int
	descendants int
}

// ValidateMove checks a proposed move against current state without writing.
// Refusals are reported in the result; the error is reserved for store failures.
func (s *ReparentService) ValidateMove(ctx context.Context, nodeID string, newParentID *string, opts model.MoveOptions) (model.ValidationResult, error) {
	if err := validateStruct(opts); err != nil {
		result := newValidationResult()
		result.AddError(model.NewIssue(model.ErrInvalidInput, model.CodeInvalidOptions, "%v", err))
		return result, nil
	}

	_, result, err := s.validate(ctx, s.store, nodeID, newParentID, opts)
	if err != nil {
		return model.ValidationResult{}, model.ClassifyStoreError("validate move", err)
	}
	return result, nil
}

// validate stops at the first hard error but keeps the warnings gathered up to
// that point.
func (s *ReparentService) validate(ctx context.Context, r treeReader, nodeID string, newParentID *string, opts model.MoveOptions) (*movePlan, model.ValidationResult, error) {
	result := newValidationResult()

	if newParentID != nil && *newParentID == nodeID {
		result.AddError(model.NewIssue(model.ErrInvalidOperation, model.CodeSelfMove, "category %s cannot be its own parent", nodeID))
		return nil, result, nil
	}

	node, err := r.FindByID(ctx, nodeID)
	if errors.Is(err, model.ErrNotFound) {
		result.AddError(model.NewIssue(model.ErrNotFound, model.CodeNodeNotFound, "category %s not found", nodeID))
		return nil, result, nil
	}
	if err != nil {
		return nil, result, err
	}
	if node.IsArchived() {
		result.AddError(model.NewIssue(model.ErrInvalidOperation, model.CodeNodeArchived, "category %s is archived", nodeID))
		return nil, result, nil
	}
	if opts.ExpectedVersion != nil && *opts.ExpectedVersion != node.Version {
		result.AddError(model.NewIssue(model.ErrConcurrentModification, model.CodeVersionMismatch,
			"category %s is at version %d, expected %d", nodeID, node.Version, *opts.ExpectedVersion))
		return nil, result, nil
	}

	children, err := r.Count(ctx, repository.NodeFilter{ParentID: &node.ID})
	if err != nil {
		return nil, result, err
	}
	descendants, err := r.Count(ctx, repository.NodeFilter{AncestorID: node.ID})
	if err != nil {
		return nil, result, err
	}
	if children > s.limits.WarnChildren {
		result.AddWarning(model.NewIssue(nil, model.CodeLargeChildren,
			"category %s has %d children; the move may be slow", nodeID, children))
	}
	if descendants > s.limits.WarnDescendants {
		result.AddWarning(model.NewIssue(nil, model.CodeLargeSubtree,
			"category %s has %d descendants; the move may be slow", nodeID, descendants))
	}

	var parent *model.NodeSummary
	if newParentID != nil {
		target, err := r.FindByID(ctx, *newParentID)
		if errors.Is(err, model.ErrNotFound) {
			result.AddError(model.NewIssue(model.ErrNotFound, model.CodeTargetNotFound, "target category %s not found", *newParentID))
			return nil, result, nil
		}
		if err != nil {
			return nil, result, err
		}
		if target.IsArchived() {
			result.AddError(model.NewIssue(model.ErrInvalidOperation, model.CodeTargetArchived, "target category %s is archived", target.ID))
			return nil, result, nil
		}
		if target.IsLeaf {
			result.AddWarning(model.NewIssue(nil, model.CodeTargetIsLeaf, "target category %s is flagged as a leaf", target.ID))
		}
		if target.Status == model.StatusInactive {
			result.AddWarning(model.NewIssue(nil, model.CodeTargetInactive, "target category %s is inactive", target.ID))
		}
		if slices.Contains(target.PathIDs, node.ID) {
			result.AddError(model.NewIssue(model.ErrInvalidOperation, model.CodeCycle,
				"target category %s is a descendant of %s; the move would create a cycle", target.ID, node.ID))
			return nil, result, nil
		}
		summary := target.Summary()
		parent = &summary
	}

	if sameParent(node.ParentID, newParentID) {
		result.AddError(model.NewIssue(model.ErrInvalidOperation, model.CodeSameParent, "category %s is already under that parent", nodeID))
		return nil, result, nil
	}

	newInfo := pathcodec.Compute(parent, node.Slug)
	depthDelta := newInfo.Depth - node.Depth

	deepest := node.Depth
	if descendants > 0 {
		bottom, err := r.FindMany(ctx, repository.NodeQuery{
			Filter: repository.NodeFilter{AncestorID: node.ID},
			Order:  repository.OrderDepthDesc,
			Limit:  1,
		})
		if err != nil {
			return nil, result, err
		}
		if len(bottom) > 0 {
			deepest = bottom[0].Depth
		}
	}
	if deepest+depthDelta > s.limits.MaxDepth {
		result.AddError(model.NewIssue(model.ErrInvalidOperation, model.CodeDepthLimit,
			"moving %s would place categories at depth %d, beyond the maximum of %d", nodeID, deepest+depthDelta, s.limits.MaxDepth))
		return nil, result, nil
	}

	siblingFilter := repository.NodeFilter{Slug: node.Slug, ExcludeIDs: []string{node.ID}, RootsOnly: newParentID == nil}
	if newParentID != nil {
		siblingFilter.ParentID = newParentID
	}
	conflicts, err := r.Count(ctx, siblingFilter)
	if err != nil {
		return nil, result, err
	}
	if conflicts > 0 {
		result.AddError(model.NewIssue(model.ErrInvalidOperation, model.CodeSlugConflict,
			"a sibling with slug %q already exists under the target", node.Slug))
		return nil, result, nil
	}

	if opts.ValidateConstraints && s.hook != nil {
		errs, warnings, err := s.hook.Validate(ctx, node, newParentID)
		if err != nil {
			return nil, result, fmt.Errorf("constraint hook: %w", err)
		}
		for _, w := range warnings {
			result.AddWarning(normalizeConstraintIssue(w))
		}
		for _, e := range errs {
			result.AddError(normalizeConstraintIssue(e))
		}
		if !result.IsValid {
			return nil, result, nil
		}
	}

	return &movePlan{
		node:        node,
		newParentID: newParentID,
		newInfo:     newInfo,
		depthDelta:  depthDelta,
		descendants: descendants,
	}, result, nil
}

// Reparent moves nodeID under newParentID (nil makes it a root). In dry-run
// mode it reports the impact without writing. Otherwise validation and every
// write run in one atomic scope: a refusal returns a *model.MoveError, and any
// failure leaves the tree as it was.
func (s *ReparentService) Reparent(ctx context.Context, nodeID string, newParentID *string, actorID string, opts model.MoveOptions) (model.MoveResult, error) {
	ctx, span := tracer().Start(ctx, "category.Reparent", trace.WithAttributes(
		attribute.String("node_id", nodeID),
		attribute.String("new_parent_id", derefOr(newParentID, "")),
		attribute.Bool("dry_run", opts.DryRun),
	))
	defer span.End()

	start := time.Now()
	result := model.MoveResult{
		NodeID:      nodeID,
		NewParentID: newParentID,
		DryRun:      opts.DryRun,
		Errors:      []model.Issue{},
		Warnings:    []model.Issue{},
	}

	if err := validateStruct(opts); err != nil {
		result.Errors = append(result.Errors, model.NewIssue(model.ErrInvalidInput, model.CodeInvalidOptions, "%v", err))
		return result, err
	}

	if opts.DryRun {
		return s.preview(ctx, span, result, opts, start)
	}

	var validation model.ValidationResult
	err := s.store.RunAtomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		plan, v, err := s.validate(ctx, tx, nodeID, newParentID, opts)
		validation = v
		if err != nil {
			return err
		}
		if !v.IsValid {
			return &model.MoveError{NodeID: nodeID, TargetID: derefOr(newParentID, ""), Issues: v.Errors}
		}

		result.OldParentID = plan.node.ParentID
		result.OldPath = plan.node.Path
		result.OldDepth = plan.node.Depth
		result.NewPath = plan.newInfo.Path
		result.NewDepth = plan.newInfo.Depth

		applied, err := s.apply(ctx, tx, plan, actorID, opts)
		if err != nil {
			return err
		}
		result.AffectedNodes = applied.nodes
		result.AffectedItems = applied.items
		result.AuditID = applied.auditID
		return nil
	})
	result.Errors = append(result.Errors, validation.Errors...)
	result.Warnings = append(result.Warnings, validation.Warnings...)

	var moveErr *model.MoveError
	switch {
	case errors.As(err, &moveErr):
		s.rejected(span, result, moveErr, start)
		return result, moveErr
	case err != nil:
		err = model.ClassifyStoreError(fmt.Sprintf("reparent category %s", nodeID), err)
		code := model.CodeStoreFailure
		kind := model.ErrStoreFailure
		if errors.Is(err, model.ErrConcurrentModification) {
			code, kind = model.CodeVersionMismatch, model.ErrConcurrentModification
		}
		result.Errors = append(result.Errors, model.NewIssue(kind, code, "%v", err))
		// Nothing read inside the rolled-back scope is reported.
		result.OldParentID = nil
		result.OldPath, result.NewPath = "", ""
		result.OldDepth, result.NewDepth = 0, 0
		result.AffectedNodes, result.AffectedItems, result.AuditID = 0, 0, ""

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		reparentOperations.WithLabelValues(outcomeFailed).Inc()
		reparentDuration.WithLabelValues(outcomeFailed).Observe(time.Since(start).Seconds())
		slog.Error("category move failed", "node_id", nodeID, "new_parent_id", derefOr(newParentID, ""), "error", err)
		return result, err
	}

	result.Committed = true
	duration := time.Since(start)
	reparentOperations.WithLabelValues(outcomeCommitted).Inc()
	reparentDuration.WithLabelValues(outcomeCommitted).Observe(duration.Seconds())
	reparentDescendants.Observe(float64(result.AffectedNodes - 1))
	span.SetAttributes(attribute.Int("affected_nodes", result.AffectedNodes), attribute.Int("affected_items", result.AffectedItems))
	span.SetStatus(codes.Ok, "")

	s.bus.Publish(event.New(event.TypeCategoryMoved, nodeID, actorID, result))
	slog.Info("category moved",
		"node_id", nodeID,
		"new_parent_id", derefOr(newParentID, ""),
		"old_path", result.OldPath,
		"new_path", result.NewPath,
		"descendants", result.AffectedNodes-1,
		"duration_ms", duration.Milliseconds(),
	)
	return result, nil
}

func (s *ReparentService) preview(ctx context.Context, span trace.Span, result model.MoveResult, opts model.MoveOptions, start time.Time) (model.MoveResult, error) {
	plan, validation, err := s.validate(ctx, s.store, result.NodeID, result.NewParentID, opts)
	if err != nil {
		err = model.ClassifyStoreError("preview move", err)
		result.Errors = append(result.Errors, model.NewIssue(model.ErrStoreFailure, model.CodeStoreFailure, "%v", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	result.Errors = append(result.Errors, validation.Errors...)
	result.Warnings = append(result.Warnings, validation.Warnings...)

	if !validation.IsValid {
		moveErr := &model.MoveError{NodeID: result.NodeID, TargetID: derefOr(result.NewParentID, ""), Issues: validation.Errors}
		s.rejected(span, result, moveErr, start)
		return result, moveErr
	}

	ids := []string{plan.node.ID}
	if plan.descendants > 0 {
		descendants, err := s.store.FindMany(ctx, repository.NodeQuery{Filter: repository.NodeFilter{AncestorID: plan.node.ID}})
		if err != nil {
			return result, model.ClassifyStoreError("preview move", err)
		}
		for _, d := range descendants {
			ids = append(ids, d.ID)
		}
	}
	items, err := s.store.CountItems(ctx, repository.ItemFilter{CategoryIDs: ids})
	if err != nil {
		return result, model.ClassifyStoreError("preview move", err)
	}

	result.OldParentID = plan.node.ParentID
	result.OldPath = plan.node.Path
	result.OldDepth = plan.node.Depth
	result.NewPath = plan.newInfo.Path
	result.NewDepth = plan.newInfo.Depth
	result.AffectedNodes = len(ids)
	result.AffectedItems = items

	reparentOperations.WithLabelValues(outcomeDryRun).Inc()
	reparentDuration.WithLabelValues(outcomeDryRun).Observe(time.Since(start).Seconds())
	span.SetStatus(codes.Ok, "")
	slog.Debug("category move previewed", "node_id", result.NodeID, "new_path", result.NewPath, "descendants", len(ids)-1)
	return result, nil
}

func (s *ReparentService) rejected(span trace.Span, result model.MoveResult, moveErr *model.MoveError, start time.Time) {
	code := model.CodeInvalidOptions
	if len(moveErr.Issues) > 0 {
		code = moveErr.Issues[0].Code
	}
	reparentRejections.WithLabelValues(code).Inc()
	reparentOperations.WithLabelValues(outcomeRejected).Inc()
	reparentDuration.WithLabelValues(outcomeRejected).Observe(time.Since(start).Seconds())
	span.SetStatus(codes.Error, moveErr.Error())
	slog.Warn("category move rejected",
		"node_id", result.NodeID,
		"new_parent_id", derefOr(result.NewParentID, ""),
		"code", code,
		"error", moveErr,
	)
}

type appliedMove struct {
	nodes   int
	items   int
	auditID string
}

func (s *ReparentService) apply(ctx context.Context, tx repository.Tx, plan *movePlan, actorID string, opts model.MoveOptions) (appliedMove, error) {
	node := plan.node

	err := tx.UpdateOne(ctx, repository.NodeUpdate{
		ID:              node.ID,
		ExpectedVersion: node.Version,
		Path: &repository.PathPatch{
			Reparent: true,
			ParentID: plan.newParentID,
			Path:     plan.newInfo.Path,
			PathIDs:  plan.newInfo.PathIDs,
			Depth:    plan.newInfo.Depth,
		},
	})
	if err != nil {
		return appliedMove{}, fmt.Errorf("move category %s: %w", node.ID, err)
	}

	descendants, err := tx.FindMany(ctx, repository.NodeQuery{
		Filter: repository.NodeFilter{AncestorID: node.ID},
		Order:  repository.OrderDepth,
	})
	if err != nil {
		return appliedMove{}, fmt.Errorf("load descendants of %s: %w", node.ID, err)
	}

	itemUpdates := []repository.ItemPathUpdate{{
		CategoryID: node.ID,
		Path:       plan.newInfo.Path,
		PathIDs:    plan.newInfo.PathIDs,
		Depth:      plan.newInfo.Depth,
	}}

	batchSize := cmpOr(opts.BatchSize, s.limits.BatchSize)
	rewritten, err := s.rewriteDescendants(ctx, tx, node, plan.newInfo, descendants, batchSize)
	if err != nil {
		return appliedMove{}, err
	}
	itemUpdates = append(itemUpdates, rewritten...)

	var items int
	if opts.UpdateDependentItems {
		items, err = tx.UpdateItemPaths(ctx, itemUpdates)
		if err != nil {
			return appliedMove{}, fmt.Errorf("update item paths under %s: %w", node.ID, err)
		}
	} else {
		ids := make([]string, 0, len(itemUpdates))
		for _, u := range itemUpdates {
			ids = append(ids, u.CategoryID)
		}
		items, err = tx.CountItems(ctx, repository.ItemFilter{CategoryIDs: ids})
		if err != nil {
			return appliedMove{}, fmt.Errorf("count items under %s: %w", node.ID, err)
		}
	}

	if node.ParentID != nil {
		if _, err := s.stats.refresh(ctx, tx, *node.ParentID); err != nil {
			return appliedMove{}, err
		}
	}
	if plan.newParentID != nil {
		if _, err := s.stats.refresh(ctx, tx, *plan.newParentID); err != nil {
			return appliedMove{}, err
		}
	}

	entry := model.AuditEntry{
		ID:          uuid.NewString(),
		NodeID:      node.ID,
		Action:      model.AuditActionReparent,
		OldParentID: node.ParentID,
		NewParentID: plan.newParentID,
		OldPath:     node.Path,
		NewPath:     plan.newInfo.Path,
		OldPathIDs:  node.PathIDs,
		NewPathIDs:  plan.newInfo.PathIDs,
		OldDepth:    node.Depth,
		NewDepth:    plan.newInfo.Depth,
		ActorID:     actorID,
		Reason:      opts.Reason,
		Metadata: model.Metadata{
			"affectedCategories": len(descendants) + 1,
			"affectedItems":      items,
			"batchSize":          batchSize,
			"depthDelta":         plan.depthDelta,
		},
		CreatedAt: s.now(),
	}
	if err := tx.Record(ctx, entry); err != nil {
		return appliedMove{}, fmt.Errorf("record audit for %s: %w", node.ID, err)
	}

	return appliedMove{nodes: len(descendants) + 1, items: items, auditID: entry.ID}, nil
}

// rewriteDescendants rebases descendants onto the moved node's new path.
// Batches are written in ascending depth order; within a batch the new paths
// are computed concurrently and written in one UpdateMany call.
func (s *ReparentService) rewriteDescendants(ctx context.Context, tx repository.Tx, node model.TreeNode, newInfo model.PathInfo, descendants []model.TreeNode, batchSize int) ([]repository.ItemPathUpdate, error) {
	var limiter *rate.Limiter
	if s.limits.BatchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.limits.BatchRate), 1)
	}
	concurrency := cmpOr(s.limits.BatchConcurrency, 1)

	rewritten := make([]repository.ItemPathUpdate, 0, len(descendants))
	batchNo := 0
	for batch := range slices.Chunk(descendants, batchSize) {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("wait for descendant batch %d: %w", batchNo, err)
			}
		}

		updates := make([]repository.NodeUpdate, len(batch))
		g := new(errgroup.Group)
		g.SetLimit(concurrency)
		for i, d := range batch {
			g.Go(func() error {
				info, err := pathcodec.Rebase(
					model.PathInfo{Path: d.Path, PathIDs: d.PathIDs, Depth: d.Depth},
					node.ID, node.Path, newInfo,
				)
				if err != nil {
					return fmt.Errorf("rebase descendant %s: %w", d.ID, err)
				}
				updates[i] = repository.NodeUpdate{
					ID:              d.ID,
					ExpectedVersion: d.Version,
					Path:            &repository.PathPatch{Path: info.Path, PathIDs: info.PathIDs, Depth: info.Depth},
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if err := tx.UpdateMany(ctx, updates); err != nil {
			return nil, fmt.Errorf("write descendant batch %d: %w", batchNo, err)
		}
		for _, u := range updates {
			rewritten = append(rewritten, repository.ItemPathUpdate{
				CategoryID: u.ID,
				Path:       u.Path.Path,
				PathIDs:    u.Path.PathIDs,
				Depth:      u.Path.Depth,
			})
		}

		slog.Debug("descendant batch rewritten", "node_id", node.ID, "batch", batchNo, "size", len(batch))
		batchNo++
	}

	return rewritten, nil
}

func newValidationResult() model.ValidationResult {
	return model.ValidationResult{IsValid: true, Errors: []model.Issue{}, Warnings: []model.Issue{}}
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func sameParent(a *string, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// withDefaultLimits fills unset limits from model.DefaultLimits.
func withDefaultLimits(l model.Limits) model.Limits {
	d := model.DefaultLimits()
	l.MaxDepth = cmpOr(l.MaxDepth, d.MaxDepth)
	l.BatchSize = cmpOr(l.BatchSize, d.BatchSize)
	l.BatchConcurrency = cmpOr(l.BatchConcurrency, d.BatchConcurrency)
	l.WarnChildren = cmpOr(l.WarnChildren, d.WarnChildren)
	l.WarnDescendants = cmpOr(l.WarnDescendants, d.WarnDescendants)
	return l
}

func cmpOr(v int, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
