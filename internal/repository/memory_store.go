package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"category-tree/internal/model"
)

// MemoryStore is an in-process TreeStore. RunAtomic works on a cloned state
// and swaps it in only when the body succeeds, so a failed scope leaves no trace.
// The body must only use the Tx it is given: calling back into the store from
// inside a scope deadlocks.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
	fault func(op string, id string) error
	now   func() time.Time
}

type memState struct {
	nodes map[string]model.TreeNode
	items map[string]model.CatalogItem
	audit []model.AuditEntry
}

func (s *memState) clone() *memState {
	out := &memState{
		nodes: make(map[string]model.TreeNode, len(s.nodes)),
		items: make(map[string]model.CatalogItem, len(s.items)),
		audit: slices.Clone(s.audit),
	}
	for id, n := range s.nodes {
		out.nodes[id] = n.Clone()
	}
	for id, item := range s.items {
		item.CategoryPathIDs = slices.Clone(item.CategoryPathIDs)
		out.items[id] = item
	}
	return out
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			nodes: make(map[string]model.TreeNode),
			items: make(map[string]model.CatalogItem),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetFault installs a hook consulted before every write; a non-nil return
// fails that write. Ops are "insert", "update", "update_items" and "audit".
func (s *MemoryStore) SetFault(fault func(op string, id string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fault
}

func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// PutItem files a catalog item directly, bypassing transactions.
func (s *MemoryStore) PutItem(item model.CatalogItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.CategoryPathIDs = slices.Clone(item.CategoryPathIDs)
	s.state.items[item.ID] = item
}

type MemorySnapshot struct {
	Nodes []model.TreeNode
	Items []model.CatalogItem
	Audit []model.AuditEntry
}

// Snapshot returns a deep copy of the whole store ordered by id.
func (s *MemoryStore) Snapshot() MemorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := s.state.clone()
	snap := MemorySnapshot{Audit: state.audit}
	for _, n := range state.nodes {
		snap.Nodes = append(snap.Nodes, n)
	}
	for _, item := range state.items {
		snap.Items = append(snap.Items, item)
	}
	slices.SortFunc(snap.Nodes, func(a, b model.TreeNode) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(snap.Items, func(a, b model.CatalogItem) int { return cmp.Compare(a.ID, b.ID) })
	return snap
}

func (s *MemoryStore) view() *memTx {
	return &memTx{state: s.state, fault: s.fault, now: s.now}
}

func (s *MemoryStore) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{state: s.state.clone(), fault: s.fault, now: s.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.state = tx.state
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (model.TreeNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().FindByID(ctx, id)
}

func (s *MemoryStore) FindMany(ctx context.Context, query NodeQuery) ([]model.TreeNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().FindMany(ctx, query)
}

func (s *MemoryStore) Count(ctx context.Context, filter NodeFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().Count(ctx, filter)
}

func (s *MemoryStore) CountItems(ctx context.Context, filter ItemFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().CountItems(ctx, filter)
}

func (s *MemoryStore) Insert(ctx context.Context, node model.TreeNode) error {
	return s.RunAtomic(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Insert(ctx, node)
	})
}

func (s *MemoryStore) UpdateOne(ctx context.Context, update NodeUpdate) error {
	return s.RunAtomic(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpdateOne(ctx, update)
	})
}

func (s *MemoryStore) UpdateMany(ctx context.Context, updates []NodeUpdate) error {
	return s.RunAtomic(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpdateMany(ctx, updates)
	})
}

func (s *MemoryStore) UpdateItemPaths(ctx context.Context, updates []ItemPathUpdate) (int, error) {
	var n int
	err := s.RunAtomic(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		n, err = tx.UpdateItemPaths(ctx, updates)
		return err
	})
	return n, err
}

func (s *MemoryStore) Record(ctx context.Context, entry model.AuditEntry) error {
	return s.RunAtomic(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Record(ctx, entry)
	})
}

func (s *MemoryStore) QueryAudit(_ context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query.Page, query.Limit = model.NormalizePage(query.Page, query.Limit)

	from, err := parseOptionalTime(query.From)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("parse from: %w", model.ErrInvalidInput)
	}
	to, err := parseOptionalTime(query.To)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("parse to: %w", model.ErrInvalidInput)
	}

	s.mu.RLock()
	entries := slices.Clone(s.state.audit)
	s.mu.RUnlock()

	items := make([]model.AuditEntry, 0, len(entries))
	for _, entry := range entries {
		if query.NodeID != "" && entry.NodeID != query.NodeID {
			continue
		}
		if query.ActorID != "" && entry.ActorID != query.ActorID {
			continue
		}
		if query.Action != "" && !strings.EqualFold(string(entry.Action), query.Action) {
			continue
		}
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && entry.CreatedAt.After(to) {
			continue
		}
		items = append(items, entry)
	}

	slices.SortStableFunc(items, func(a, b model.AuditEntry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	meta := model.NewMeta(query.Page, query.Limit, len(items))
	return paginate(items, (query.Page-1)*query.Limit, query.Limit), meta, nil
}

func parseOptionalTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, trimmed)
}

// memTx operates on one state. Its mutex serializes callers that share a scope.
type memTx struct {
	mu    sync.Mutex
	state *memState
	fault func(op string, id string) error
	now   func() time.Time
}

func (t *memTx) check(op string, id string) error {
	if t.fault == nil {
		return nil
	}
	return t.fault(op, id)
}

func (t *memTx) FindByID(_ context.Context, id string) (model.TreeNode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.state.nodes[id]
	if !ok || n.IsDeleted() {
		return model.TreeNode{}, fmt.Errorf("category %s: %w", id, model.ErrNotFound)
	}
	return n.Clone(), nil
}

func (t *memTx) FindMany(_ context.Context, query NodeQuery) ([]model.TreeNode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.TreeNode, 0)
	for _, n := range t.state.nodes {
		if query.Filter.Matches(n) {
			out = append(out, n.Clone())
		}
	}
	sortNodes(out, query.Order)
	return paginate(out, query.Offset, query.Limit), nil
}

func (t *memTx) Count(_ context.Context, filter NodeFilter) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := 0
	for _, n := range t.state.nodes {
		if filter.Matches(n) {
			total++
		}
	}
	return total, nil
}

func (t *memTx) Insert(_ context.Context, node model.TreeNode) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.check("insert", node.ID); err != nil {
		return err
	}
	if _, exists := t.state.nodes[node.ID]; exists {
		return fmt.Errorf("insert category %s: already exists: %w", node.ID, model.ErrInvalidOperation)
	}
	for _, other := range t.state.nodes {
		if other.IsDeleted() || other.Slug != node.Slug || !sameParent(other.ParentID, node.ParentID) {
			continue
		}
		return fmt.Errorf("insert category %s: sibling slug %q taken: %w", node.ID, node.Slug, model.ErrInvalidOperation)
	}

	now := t.now()
	node = node.Clone()
	if node.Version == 0 {
		node.Version = 1
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	node.UpdatedAt = now
	t.state.nodes[node.ID] = node
	return nil
}

func (t *memTx) UpdateOne(_ context.Context, update NodeUpdate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.apply(update)
}

func (t *memTx) UpdateMany(_ context.Context, updates []NodeUpdate) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, update := range updates {
		if err := t.apply(update); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTx) apply(update NodeUpdate) error {
	if err := t.check("update", update.ID); err != nil {
		return err
	}

	n, ok := t.state.nodes[update.ID]
	if !ok {
		return fmt.Errorf("update category %s: %w", update.ID, model.ErrNotFound)
	}
	if n.Version != update.ExpectedVersion {
		return fmt.Errorf("update category %s: expected version %d, found %d: %w",
			update.ID, update.ExpectedVersion, n.Version, model.ErrConcurrentModification)
	}

	if p := update.Path; p != nil {
		if p.Reparent {
			n.ParentID = nil
			if p.ParentID != nil {
				parentID := *p.ParentID
				n.ParentID = &parentID
			}
		}
		n.Path = p.Path
		n.PathIDs = slices.Clone(p.PathIDs)
		n.Depth = p.Depth
	}
	if st := update.Stats; st != nil {
		n.ChildCount = st.ChildCount
		n.DescendantCount = st.DescendantCount
		n.ItemCount = st.ItemCount
		n.IsLeaf = st.IsLeaf
	}
	if update.Status != nil {
		n.Status = *update.Status
	}
	if update.DeletedAt != nil {
		deletedAt := *update.DeletedAt
		n.DeletedAt = &deletedAt
	}

	n.Version++
	n.UpdatedAt = t.now()
	t.state.nodes[n.ID] = n
	return nil
}

// CountItems counts live items filed under any of the given categories.
// An empty id list counts nothing.
func (t *memTx) CountItems(_ context.Context, filter ItemFilter) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := 0
	for _, item := range t.state.items {
		if item.DeletedAt == nil && slices.Contains(filter.CategoryIDs, item.CategoryID) {
			total++
		}
	}
	return total, nil
}

func (t *memTx) UpdateItemPaths(_ context.Context, updates []ItemPathUpdate) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	byCategory := make(map[string]ItemPathUpdate, len(updates))
	for _, update := range updates {
		if err := t.check("update_items", update.CategoryID); err != nil {
			return 0, err
		}
		byCategory[update.CategoryID] = update
	}

	updated := 0
	for id, item := range t.state.items {
		update, ok := byCategory[item.CategoryID]
		if !ok || item.DeletedAt != nil {
			continue
		}
		item.CategoryPath = update.Path
		item.CategoryPathIDs = slices.Clone(update.PathIDs)
		item.CategoryDepth = update.Depth
		t.state.items[id] = item
		updated++
	}
	return updated, nil
}

func (t *memTx) Record(_ context.Context, entry model.AuditEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.check("audit", entry.NodeID); err != nil {
		return err
	}
	t.state.audit = append(t.state.audit, entry)
	return nil
}

func sameParent(a *string, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
