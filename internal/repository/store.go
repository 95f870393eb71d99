package repository

import (
	"context"
	"time"

	"category-tree/internal/model"
)

type Order string

const (
	OrderDepth     Order = "depth"
	OrderDisplay   Order = "display"
	OrderDepthDesc Order = "depth_desc"
)

// NodeFilter is a conjunction of predicates over the denormalized node fields.
// Zero values mean "no constraint". Deleted nodes are excluded unless IncludeDeleted.
type NodeFilter struct {
	IDs               []string
	ExcludeIDs        []string
	ParentID          *string
	RootsOnly         bool
	AncestorID        string
	ExcludeAncestorID string
	Depth             *int
	MaxDepth          *int
	Slug              string
	LeafOnly          bool
	Text              string
	Statuses          []model.Status
	IncludeDeleted    bool
}

type NodeQuery struct {
	Filter NodeFilter
	Order  Order
	Offset int
	Limit  int
}

// PathPatch rewrites the structural fields. ParentID is applied only when Reparent is set.
type PathPatch struct {
	Reparent bool
	ParentID *string
	Path     string
	PathIDs  []string
	Depth    int
}

// StatsPatch rewrites the cached counters. IsLeaf is written with them so a
// node that gained children loses its leaf flag.
type StatsPatch struct {
	ChildCount      int
	DescendantCount int
	ItemCount       int
	IsLeaf          bool
}

// NodeUpdate is one optimistic write: it applies only when the stored version
// equals ExpectedVersion, and increments the version.
type NodeUpdate struct {
	ID              string
	ExpectedVersion int64
	Path            *PathPatch
	Stats           *StatsPatch
	Status          *model.Status
	DeletedAt       *time.Time
}

type ItemFilter struct {
	CategoryIDs []string
}

type ItemPathUpdate struct {
	CategoryID string
	Path       string
	PathIDs    []string
	Depth      int
}

type NodeReader interface {
	FindByID(ctx context.Context, id string) (model.TreeNode, error)
	FindMany(ctx context.Context, query NodeQuery) ([]model.TreeNode, error)
	Count(ctx context.Context, filter NodeFilter) (int, error)
}

type NodeWriter interface {
	Insert(ctx context.Context, node model.TreeNode) error
	UpdateOne(ctx context.Context, update NodeUpdate) error
	UpdateMany(ctx context.Context, updates []NodeUpdate) error
}

type ItemStore interface {
	CountItems(ctx context.Context, filter ItemFilter) (int, error)
	UpdateItemPaths(ctx context.Context, updates []ItemPathUpdate) (int, error)
}

type AuditSink interface {
	Record(ctx context.Context, entry model.AuditEntry) error
}

type AuditReader interface {
	QueryAudit(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

// Tx is the capability set available inside an atomic scope.
type Tx interface {
	NodeReader
	NodeWriter
	ItemStore
	AuditSink
}

// TreeStore is the backing store of the category tree. RunAtomic executes fn
// in one transactional scope: every write made through the Tx is committed
// together, or none is when fn returns an error.
type TreeStore interface {
	Tx
	AuditReader
	RunAtomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

var (
	_ TreeStore = (*PostgresStore)(nil)
	_ TreeStore = (*MemoryStore)(nil)
)
