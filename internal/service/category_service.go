package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"category-tree/internal/event"
	"category-tree/internal/model"
	"category-tree/internal/pathcodec"
	"category-tree/internal/repository"
	"category-tree/internal/util"
)

// CategoryService creates, deletes and changes the status of categories.
type CategoryService struct {
	store  repository.TreeStore
	stats  *StatisticsService
	bus    event.Bus
	limits model.Limits
	now    func() time.Time
	newID  func() string
}

func NewCategoryService(store repository.TreeStore, stats *StatisticsService, bus event.Bus, limits model.Limits) *CategoryService {
	if bus == nil {
		bus = event.Nop{}
	}
	if stats == nil {
		stats = NewStatisticsService(store, bus)
	}
	return &CategoryService{
		store:  store,
		stats:  stats,
		bus:    bus,
		limits: withDefaultLimits(limits),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

func (s *CategoryService) CreateNode(ctx context.Context, req model.CreateNodeRequest, actorID string) (model.TreeNode, error) {
	name, err := util.SanitizeName(req.Name)
	if err != nil {
		return model.TreeNode{}, err
	}
	req.Name = name
	req.Slug = strings.TrimSpace(req.Slug)
	if req.Slug == "" {
		req.Slug = util.Slugify(req.Name)
	}
	if err := validateStruct(req); err != nil {
		return model.TreeNode{}, err
	}

	var created model.TreeNode
	err = s.store.RunAtomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		var parent *model.NodeSummary
		siblings := repository.NodeFilter{RootsOnly: true, Slug: req.Slug}

		if req.ParentID != nil {
			p, err := tx.FindByID(ctx, *req.ParentID)
			if err != nil {
				return fmt.Errorf("parent category %s: %w", *req.ParentID, err)
			}
			if p.IsArchived() {
				return fmt.Errorf("parent category %s is archived: %w", p.ID, model.ErrInvalidOperation)
			}
			if p.IsLeaf {
				slog.Warn("creating child under leaf category", "parent_id", p.ID, "slug", req.Slug)
			}
			summary := p.Summary()
			parent = &summary
			siblings = repository.NodeFilter{ParentID: &p.ID, Slug: req.Slug}
		}

		info := pathcodec.Compute(parent, req.Slug)
		if info.Depth > s.limits.MaxDepth {
			return fmt.Errorf("depth %d exceeds the maximum of %d: %w", info.Depth, s.limits.MaxDepth, model.ErrInvalidOperation)
		}

		taken, err := tx.Count(ctx, siblings)
		if err != nil {
			return err
		}
		if taken > 0 {
			return fmt.Errorf("a sibling with slug %q already exists: %w", req.Slug, model.ErrInvalidOperation)
		}

		now := s.now()
		created = model.TreeNode{
			ID:           s.newID(),
			ParentID:     req.ParentID,
			Slug:         req.Slug,
			Name:         req.Name,
			Description:  req.Description,
			Keywords:     req.Keywords,
			DisplayOrder: req.DisplayOrder,
			Path:         info.Path,
			PathIDs:      info.PathIDs,
			Depth:        info.Depth,
			IsLeaf:       req.IsLeaf,
			Status:       model.StatusActive,
			CustomFields: req.CustomFields,
			Version:      1,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Insert(ctx, created); err != nil {
			return err
		}

		if req.ParentID != nil {
			if _, err := s.stats.refresh(ctx, tx, *req.ParentID); err != nil {
				return err
			}
		}

		return tx.Record(ctx, model.AuditEntry{
			ID:          uuid.NewString(),
			NodeID:      created.ID,
			Action:      model.AuditActionCreate,
			NewParentID: created.ParentID,
			NewPath:     created.Path,
			NewPathIDs:  created.PathIDs,
			NewDepth:    created.Depth,
			ActorID:     actorID,
			CreatedAt:   now,
		})
	})
	if err != nil {
		return model.TreeNode{}, model.ClassifyStoreError("create category", err)
	}

	s.bus.Publish(event.New(event.TypeCategoryCreated, created.ID, actorID, created))
	slog.Info("category created", "node_id", created.ID, "path", created.Path)
	return created, nil
}

// DeleteNode soft-deletes a category that has no live children and no
// directly filed items.
func (s *CategoryService) DeleteNode(ctx context.Context, id string, actorID string) error {
	var deleted model.TreeNode
	err := s.store.RunAtomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		node, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if node.IsArchived() {
			return fmt.Errorf("category %s is archived: %w", id, model.ErrInvalidOperation)
		}

		children, err := tx.Count(ctx, repository.NodeFilter{ParentID: &node.ID})
		if err != nil {
			return err
		}
		if children > 0 {
			return fmt.Errorf("category %s still has %d children: %w", id, children, model.ErrInvalidOperation)
		}
		items, err := tx.CountItems(ctx, repository.ItemFilter{CategoryIDs: []string{node.ID}})
		if err != nil {
			return err
		}
		if items > 0 {
			return fmt.Errorf("category %s still has %d items: %w", id, items, model.ErrInvalidOperation)
		}

		now := s.now()
		if err := tx.UpdateOne(ctx, repository.NodeUpdate{ID: node.ID, ExpectedVersion: node.Version, DeletedAt: &now}); err != nil {
			return err
		}

		if node.ParentID != nil {
			if _, err := s.stats.refresh(ctx, tx, *node.ParentID); err != nil {
				return err
			}
		}

		deleted = node
		return tx.Record(ctx, model.AuditEntry{
			ID:          uuid.NewString(),
			NodeID:      node.ID,
			Action:      model.AuditActionDelete,
			OldParentID: node.ParentID,
			OldPath:     node.Path,
			OldPathIDs:  node.PathIDs,
			OldDepth:    node.Depth,
			ActorID:     actorID,
			CreatedAt:   now,
		})
	})
	if err != nil {
		return model.ClassifyStoreError("delete category", err)
	}

	s.bus.Publish(event.New(event.TypeCategoryDeleted, id, actorID, deleted))
	slog.Info("category deleted", "node_id", id, "path", deleted.Path)
	return nil
}

// SetStatus changes a category's status. ARCHIVED is terminal.
func (s *CategoryService) SetStatus(ctx context.Context, id string, status model.Status, actorID string) (model.TreeNode, error) {
	status = model.Status(strings.ToUpper(strings.TrimSpace(string(status))))
	if !status.Valid() {
		return model.TreeNode{}, fmt.Errorf("status %q: %w", status, model.ErrInvalidInput)
	}

	var (
		updated model.TreeNode
		changed bool
	)
	err := s.store.RunAtomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		node, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if node.Status == status {
			updated = node
			return nil
		}
		if node.IsArchived() {
			return fmt.Errorf("category %s is archived: %w", id, model.ErrInvalidOperation)
		}

		if err := tx.UpdateOne(ctx, repository.NodeUpdate{ID: node.ID, ExpectedVersion: node.Version, Status: &status}); err != nil {
			return err
		}
		if updated, err = tx.FindByID(ctx, id); err != nil {
			return err
		}
		changed = true

		return tx.Record(ctx, model.AuditEntry{
			ID:          uuid.NewString(),
			NodeID:      node.ID,
			Action:      model.AuditActionStatus,
			OldParentID: node.ParentID,
			NewParentID: node.ParentID,
			OldPath:     node.Path,
			NewPath:     node.Path,
			OldPathIDs:  node.PathIDs,
			NewPathIDs:  node.PathIDs,
			OldDepth:    node.Depth,
			NewDepth:    node.Depth,
			ActorID:     actorID,
			Metadata:    model.Metadata{"from": string(node.Status), "to": string(status)},
			CreatedAt:   s.now(),
		})
	})
	if err != nil {
		return model.TreeNode{}, model.ClassifyStoreError("set category status", err)
	}

	if changed {
		s.bus.Publish(event.New(event.TypeCategoryStatusChanged, id, actorID, updated))
		slog.Info("category status changed", "node_id", id, "status", status)
	}
	return updated, nil
}
