package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"category-tree/internal/model"
	"category-tree/internal/pathcodec"
	"category-tree/internal/repository"
)

// QueryService answers read-only questions about the tree. It never writes.
type QueryService struct {
	store repository.TreeStore
}

func NewQueryService(store repository.TreeStore) *QueryService {
	return &QueryService{store: store}
}

func (s *QueryService) Get(ctx context.Context, id string) (model.TreeNode, error) {
	node, err := s.store.FindByID(ctx, id)
	if err != nil {
		return model.TreeNode{}, model.ClassifyStoreError("get category", err)
	}
	return node, nil
}

// Subtree returns every live descendant of rootID, excluding the root itself,
// ordered by depth then display order. maxDepthOffset caps the result at
// root.Depth + offset.
func (s *QueryService) Subtree(ctx context.Context, rootID string, maxDepthOffset *int) ([]model.TreeNode, error) {
	root, err := s.Get(ctx, rootID)
	if err != nil {
		return nil, err
	}

	filter := repository.NodeFilter{AncestorID: root.ID}
	if maxDepthOffset != nil {
		if *maxDepthOffset < 0 {
			return nil, fmt.Errorf("max depth offset %d: %w", *maxDepthOffset, model.ErrInvalidInput)
		}
		maxDepth := root.Depth + *maxDepthOffset
		filter.MaxDepth = &maxDepth
	}

	return s.find(ctx, "query subtree", repository.NodeQuery{Filter: filter, Order: repository.OrderDepth})
}

// Ancestors returns the chain root-to-parent. Roots have none.
func (s *QueryService) Ancestors(ctx context.Context, nodeID string) ([]model.TreeNode, error) {
	node, err := s.Get(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if len(node.PathIDs) == 0 {
		return []model.TreeNode{}, nil
	}

	return s.find(ctx, "query ancestors", repository.NodeQuery{
		Filter: repository.NodeFilter{IDs: node.PathIDs},
		Order:  repository.OrderDepth,
	})
}

// Children pages through the direct children of parentID, or through the roots
// when parentID is nil.
func (s *QueryService) Children(ctx context.Context, parentID *string, page int, limit int) ([]model.TreeNode, model.Meta, error) {
	page, limit = model.NormalizePage(page, limit)

	filter := repository.NodeFilter{RootsOnly: true}
	if parentID != nil {
		if _, err := s.Get(ctx, *parentID); err != nil {
			return nil, model.Meta{}, err
		}
		filter = repository.NodeFilter{ParentID: parentID}
	}

	total, err := s.store.Count(ctx, filter)
	if err != nil {
		return nil, model.Meta{}, model.ClassifyStoreError("count children", err)
	}

	nodes, err := s.find(ctx, "query children", repository.NodeQuery{
		Filter: filter,
		Order:  repository.OrderDisplay,
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, model.Meta{}, err
	}

	return nodes, model.NewMeta(page, limit, total), nil
}

func (s *QueryService) DepthSlice(ctx context.Context, depth int, scopeID string) ([]model.TreeNode, error) {
	if depth < 0 {
		return nil, fmt.Errorf("depth %d: %w", depth, model.ErrInvalidInput)
	}

	filter, err := s.scoped(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	filter.Depth = &depth

	return s.find(ctx, "query depth slice", repository.NodeQuery{Filter: filter, Order: repository.OrderDepth})
}

func (s *QueryService) Leaves(ctx context.Context, scopeID string) ([]model.TreeNode, error) {
	filter, err := s.scoped(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	filter.LeafOnly = true

	return s.find(ctx, "query leaves", repository.NodeQuery{Filter: filter, Order: repository.OrderDepth})
}

// Search matches text case-insensitively against name, description, slug and keywords.
func (s *QueryService) Search(ctx context.Context, text string, scopeID string) ([]model.TreeNode, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("search text is required: %w", model.ErrInvalidInput)
	}

	filter, err := s.scoped(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	filter.Text = text

	return s.find(ctx, "search categories", repository.NodeQuery{Filter: filter, Order: repository.OrderDepth})
}

// Tree loads and nests the whole forest, or the subtree under rootID.
func (s *QueryService) Tree(ctx context.Context, rootID *string, maxDepthOffset *int) ([]*model.NestedNode, error) {
	if rootID != nil {
		nodes, err := s.Subtree(ctx, *rootID, maxDepthOffset)
		if err != nil {
			return nil, err
		}
		return AssembleTree(nodes, rootID), nil
	}

	filter := repository.NodeFilter{}
	if maxDepthOffset != nil {
		if *maxDepthOffset < 0 {
			return nil, fmt.Errorf("max depth offset %d: %w", *maxDepthOffset, model.ErrInvalidInput)
		}
		filter.MaxDepth = maxDepthOffset
	}
	nodes, err := s.find(ctx, "query tree", repository.NodeQuery{Filter: filter, Order: repository.OrderDepth})
	if err != nil {
		return nil, err
	}
	return AssembleTree(nodes, nil), nil
}

// AssembleTree folds a flat node list into a forest. A node is a root of the
// result when its parent is missing from nodes or equals rootID. Input order
// is kept among siblings.
func AssembleTree(nodes []model.TreeNode, rootID *string) []*model.NestedNode {
	byID := make(map[string]*model.NestedNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = &model.NestedNode{TreeNode: n, Children: []*model.NestedNode{}}
	}

	forest := make([]*model.NestedNode, 0)
	for _, n := range nodes {
		current := byID[n.ID]
		if n.ParentID == nil || (rootID != nil && *n.ParentID == *rootID) {
			forest = append(forest, current)
			continue
		}
		parent, ok := byID[*n.ParentID]
		if !ok || parent == current {
			forest = append(forest, current)
			continue
		}
		parent.Children = append(parent.Children, current)
	}

	return forest
}

// ValidateOperationTargets reports whether nodeID can be deleted and which
// nodes are outside its subtree and so eligible as new parents. The counts are
// read live rather than from the cached counters.
func (s *QueryService) ValidateOperationTargets(ctx context.Context, nodeID string) (model.OperationTargets, error) {
	node, err := s.Get(ctx, nodeID)
	if err != nil {
		return model.OperationTargets{}, err
	}

	var (
		childCount int
		itemCount  int
		targets    []model.TreeNode
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.Count(gctx, repository.NodeFilter{ParentID: &node.ID})
		if err != nil {
			return model.ClassifyStoreError("count children", err)
		}
		childCount = n
		return nil
	})
	g.Go(func() error {
		n, err := s.store.CountItems(gctx, repository.ItemFilter{CategoryIDs: []string{node.ID}})
		if err != nil {
			return model.ClassifyStoreError("count items", err)
		}
		itemCount = n
		return nil
	})
	g.Go(func() error {
		nodes, err := s.find(gctx, "query move targets", repository.NodeQuery{
			Filter: repository.NodeFilter{ExcludeIDs: []string{node.ID}, ExcludeAncestorID: node.ID},
			Order:  repository.OrderDepth,
		})
		if err != nil {
			return err
		}
		targets = nodes
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.OperationTargets{}, err
	}

	return model.OperationTargets{
		NodeID:     node.ID,
		CanDelete:  childCount == 0 && itemCount == 0,
		ChildCount: childCount,
		ItemCount:  itemCount,
		Targets:    targets,
	}, nil
}

// CheckIntegrity reports every live node whose structural fields disagree
// with its parent chain.
func (s *QueryService) CheckIntegrity(ctx context.Context) ([]model.IntegrityViolation, error) {
	nodes, err := s.find(ctx, "load categories", repository.NodeQuery{Order: repository.OrderDepth})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.TreeNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	violations := make([]model.IntegrityViolation, 0)
	report := func(id, field, format string, args ...any) {
		violations = append(violations, model.IntegrityViolation{NodeID: id, Field: field, Problem: fmt.Sprintf(format, args...)})
	}

	for _, n := range nodes {
		if n.Depth != len(n.PathIDs) {
			report(n.ID, "depth", "depth %d but %d ancestors", n.Depth, len(n.PathIDs))
		}

		var parent *model.NodeSummary
		if n.ParentID != nil {
			p, ok := byID[*n.ParentID]
			if !ok {
				report(n.ID, "parent_id", "parent %s is missing or deleted", *n.ParentID)
				continue
			}
			summary := p.Summary()
			parent = &summary
		}

		want := pathcodec.Compute(parent, n.Slug)
		if !slices.Equal(n.PathIDs, want.PathIDs) {
			report(n.ID, "path_ids", "have %v, want %v", n.PathIDs, want.PathIDs)
		}
		if n.Path != want.Path {
			report(n.ID, "path", "have %q, want %q", n.Path, want.Path)
		}
	}

	return violations, nil
}

func (s *QueryService) scoped(ctx context.Context, scopeID string) (repository.NodeFilter, error) {
	scopeID = strings.TrimSpace(scopeID)
	if scopeID == "" {
		return repository.NodeFilter{}, nil
	}
	if _, err := s.Get(ctx, scopeID); err != nil {
		return repository.NodeFilter{}, err
	}
	return repository.NodeFilter{AncestorID: scopeID}, nil
}

func (s *QueryService) find(ctx context.Context, op string, query repository.NodeQuery) ([]model.TreeNode, error) {
	nodes, err := s.store.FindMany(ctx, query)
	if err != nil {
		return nil, model.ClassifyStoreError(op, err)
	}
	return nodes, nil
}
