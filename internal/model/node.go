package model

import (
	"slices"
	"time"
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusArchived Status = "ARCHIVED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusArchived:
		return true
	default:
		return false
	}
}

// Metadata is an opaque string-keyed bag of scalars.
type Metadata map[string]any

// TreeNode is one category in the hierarchy. Path, PathIDs and Depth are
// denormalized from the ancestor chain; the counters are maintained by the
// statistics refresh.
type TreeNode struct {
	ID              string     `json:"id"`
	ParentID        *string    `json:"parent_id"`
	Slug            string     `json:"slug"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	Keywords        []string   `json:"keywords,omitempty"`
	DisplayOrder    int        `json:"display_order"`
	Path            string     `json:"path"`
	PathIDs         []string   `json:"path_ids"`
	Depth           int        `json:"depth"`
	ChildCount      int        `json:"child_count"`
	DescendantCount int        `json:"descendant_count"`
	ItemCount       int        `json:"associated_item_count"`
	IsLeaf          bool       `json:"is_leaf"`
	Status          Status     `json:"status"`
	CustomFields    Metadata   `json:"custom_fields,omitempty"`
	Version         int64      `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

func (n TreeNode) IsRoot() bool {
	return n.ParentID == nil
}

func (n TreeNode) IsDeleted() bool {
	return n.DeletedAt != nil
}

func (n TreeNode) IsArchived() bool {
	return n.Status == StatusArchived
}

// Summary returns the fields the path codec needs from a parent.
func (n TreeNode) Summary() NodeSummary {
	return NodeSummary{ID: n.ID, Path: n.Path, PathIDs: n.PathIDs, Depth: n.Depth}
}

// Clone returns a copy that shares no slices or maps with n.
func (n TreeNode) Clone() TreeNode {
	out := n
	if n.ParentID != nil {
		parent := *n.ParentID
		out.ParentID = &parent
	}
	if n.PathIDs != nil {
		out.PathIDs = slices.Clone(n.PathIDs)
	}
	if n.Keywords != nil {
		out.Keywords = slices.Clone(n.Keywords)
	}
	if n.CustomFields != nil {
		out.CustomFields = make(Metadata, len(n.CustomFields))
		for k, v := range n.CustomFields {
			out.CustomFields[k] = v
		}
	}
	if n.DeletedAt != nil {
		deletedAt := *n.DeletedAt
		out.DeletedAt = &deletedAt
	}
	return out
}

type NodeSummary struct {
	ID      string
	Path    string
	PathIDs []string
	Depth   int
}

type PathInfo struct {
	Path    string   `json:"path"`
	PathIDs []string `json:"path_ids"`
	Depth   int      `json:"depth"`
}

// CatalogItem is a record filed directly under one category. The category_*
// fields are an optional denormalized copy of the category's path metadata.
type CatalogItem struct {
	ID              string     `json:"id"`
	CategoryID      string     `json:"category_id"`
	Name            string     `json:"name"`
	CategoryPath    string     `json:"category_path"`
	CategoryPathIDs []string   `json:"category_path_ids"`
	CategoryDepth   int        `json:"category_depth"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

type NestedNode struct {
	TreeNode
	Children []*NestedNode `json:"children"`
}

type OperationTargets struct {
	NodeID     string     `json:"node_id"`
	CanDelete  bool       `json:"can_delete"`
	ChildCount int        `json:"child_count"`
	ItemCount  int        `json:"associated_item_count"`
	Targets    []TreeNode `json:"targets"`
}

type IntegrityViolation struct {
	NodeID  string `json:"node_id"`
	Field   string `json:"field"`
	Problem string `json:"problem"`
}

type CreateNodeRequest struct {
	ParentID     *string  `json:"parent_id" yaml:"parent_id"`
	Slug         string   `json:"slug" yaml:"slug" validate:"required,max=100,slug"`
	Name         string   `json:"name" yaml:"name" validate:"required,max=200"`
	Description  string   `json:"description" yaml:"description" validate:"max=2000"`
	Keywords     []string `json:"keywords" yaml:"keywords" validate:"max=50,dive,max=100"`
	DisplayOrder int      `json:"display_order" yaml:"display_order"`
	IsLeaf       bool     `json:"is_leaf" yaml:"is_leaf"`
	CustomFields Metadata `json:"custom_fields" yaml:"custom_fields"`
}
