// Package pathcodec derives the materialized path metadata of a category from
// its parent's.
package pathcodec

import (
	"fmt"
	"slices"
	"strings"

	"category-tree/internal/model"
)

const Separator = "/"

// Compute returns the path info of a node named slug under parent. A nil parent
// yields root metadata.
func Compute(parent *model.NodeSummary, slug string) model.PathInfo {
	if parent == nil {
		return model.PathInfo{Path: Separator + slug, PathIDs: []string{}, Depth: 0}
	}

	pathIDs := make([]string, 0, len(parent.PathIDs)+1)
	pathIDs = append(pathIDs, parent.PathIDs...)
	pathIDs = append(pathIDs, parent.ID)

	return model.PathInfo{
		Path:    parent.Path + Separator + slug,
		PathIDs: pathIDs,
		Depth:   parent.Depth + 1,
	}
}

// Rebase rewrites a descendant's path info after the subtree rooted at
// movedID was relocated from oldPath to moved.
func Rebase(descendant model.PathInfo, movedID string, oldPath string, moved model.PathInfo) (model.PathInfo, error) {
	if !strings.HasPrefix(descendant.Path, oldPath+Separator) {
		return model.PathInfo{}, fmt.Errorf("path %q is not under %q", descendant.Path, oldPath)
	}

	idx := slices.Index(descendant.PathIDs, movedID)
	if idx < 0 {
		return model.PathInfo{}, fmt.Errorf("path ids of %q do not contain %s", descendant.Path, movedID)
	}

	pathIDs := make([]string, 0, len(moved.PathIDs)+len(descendant.PathIDs)-idx)
	pathIDs = append(pathIDs, moved.PathIDs...)
	pathIDs = append(pathIDs, descendant.PathIDs[idx:]...)

	return model.PathInfo{
		Path:    moved.Path + strings.TrimPrefix(descendant.Path, oldPath),
		PathIDs: pathIDs,
		Depth:   len(pathIDs),
	}, nil
}
