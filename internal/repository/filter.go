package repository

import (
	"cmp"
	"slices"
	"strings"

	"category-tree/internal/model"
)

// Matches evaluates the filter against one node in memory.
func (f NodeFilter) Matches(n model.TreeNode) bool {
	if !f.IncludeDeleted && n.IsDeleted() {
		return false
	}
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, n.ID) {
		return false
	}
	if slices.Contains(f.ExcludeIDs, n.ID) {
		return false
	}
	if f.RootsOnly && n.ParentID != nil {
		return false
	}
	if f.ParentID != nil && (n.ParentID == nil || *n.ParentID != *f.ParentID) {
		return false
	}
	if f.AncestorID != "" && !slices.Contains(n.PathIDs, f.AncestorID) {
		return false
	}
	if f.ExcludeAncestorID != "" && slices.Contains(n.PathIDs, f.ExcludeAncestorID) {
		return false
	}
	if f.Depth != nil && n.Depth != *f.Depth {
		return false
	}
	if f.MaxDepth != nil && n.Depth > *f.MaxDepth {
		return false
	}
	if f.Slug != "" && n.Slug != f.Slug {
		return false
	}
	if f.LeafOnly && !n.IsLeaf {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, n.Status) {
		return false
	}
	if text := strings.ToLower(strings.TrimSpace(f.Text)); text != "" && !matchesText(n, text) {
		return false
	}
	return true
}

func matchesText(n model.TreeNode, text string) bool {
	if strings.Contains(strings.ToLower(n.Name), text) ||
		strings.Contains(strings.ToLower(n.Description), text) ||
		strings.Contains(strings.ToLower(n.Slug), text) {
		return true
	}
	for _, keyword := range n.Keywords {
		if strings.Contains(strings.ToLower(keyword), text) {
			return true
		}
	}
	return false
}

func sortNodes(nodes []model.TreeNode, order Order) {
	slices.SortStableFunc(nodes, func(a, b model.TreeNode) int {
		switch order {
		case OrderDisplay:
			return cmp.Or(
				cmp.Compare(a.DisplayOrder, b.DisplayOrder),
				cmp.Compare(a.Slug, b.Slug),
				cmp.Compare(a.ID, b.ID),
			)
		case OrderDepthDesc:
			return cmp.Or(
				cmp.Compare(b.Depth, a.Depth),
				cmp.Compare(a.DisplayOrder, b.DisplayOrder),
				cmp.Compare(a.ID, b.ID),
			)
		default:
			return cmp.Or(
				cmp.Compare(a.Depth, b.Depth),
				cmp.Compare(a.DisplayOrder, b.DisplayOrder),
				cmp.Compare(a.Slug, b.Slug),
				cmp.Compare(a.ID, b.ID),
			)
		}
	})
}

func paginate[T any](in []T, offset int, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(in) {
		return in[:0]
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
