package repository

import (
	"fmt"
	"strings"
)

const nodeColumns = `id, parent_id, slug, name, description, keywords, display_order,
	path, path_ids, depth, child_count, descendant_count, item_count,
	is_leaf, status, custom_fields, version, created_at, updated_at, deleted_at`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// buildNodeWhere renders the filter as a WHERE clause with positional
// arguments numbered from 1.
func buildNodeWhere(f NodeFilter) (string, []any) {
	where := make([]string, 0)
	args := make([]any, 0)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if !f.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if len(f.IDs) > 0 {
		add("id = ANY($%d)", f.IDs)
	}
	if len(f.ExcludeIDs) > 0 {
		add("NOT (id = ANY($%d))", f.ExcludeIDs)
	}
	if f.RootsOnly {
		where = append(where, "parent_id IS NULL")
	}
	if f.ParentID != nil {
		add("parent_id = $%d", *f.ParentID)
	}
	if f.AncestorID != "" {
		add("path_ids @> ARRAY[$%d]::text[]", f.AncestorID)
	}
	if f.ExcludeAncestorID != "" {
		add("NOT (path_ids @> ARRAY[$%d]::text[])", f.ExcludeAncestorID)
	}
	if f.Depth != nil {
		add("depth = $%d", *f.Depth)
	}
	if f.MaxDepth != nil {
		add("depth <= $%d", *f.MaxDepth)
	}
	if f.Slug != "" {
		add("slug = $%d", f.Slug)
	}
	if f.LeafOnly {
		where = append(where, "is_leaf")
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, status := range f.Statuses {
			statuses = append(statuses, string(status))
		}
		add("status = ANY($%d)", statuses)
	}
	if text := strings.ToLower(strings.TrimSpace(f.Text)); text != "" {
		add(`(lower(name) LIKE $%[1]d OR lower(description) LIKE $%[1]d OR lower(slug) LIKE $%[1]d
		  OR EXISTS (SELECT 1 FROM unnest(keywords) AS kw WHERE lower(kw) LIKE $%[1]d))`,
			"%"+likeEscaper.Replace(text)+"%")
	}

	if len(where) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(where, " AND "), args
}

func orderClause(order Order) string {
	switch order {
	case OrderDisplay:
		return "ORDER BY display_order ASC, slug ASC, id ASC"
	case OrderDepthDesc:
		return "ORDER BY depth DESC, display_order ASC, id ASC"
	default:
		return "ORDER BY depth ASC, display_order ASC, slug ASC, id ASC"
	}
}

// buildNodeQuery renders a full SELECT for query.
func buildNodeQuery(query NodeQuery) (string, []any) {
	whereClause, args := buildNodeWhere(query.Filter)

	sql := fmt.Sprintf("SELECT %s FROM categories %s %s", nodeColumns, whereClause, orderClause(query.Order))
	if query.Limit > 0 {
		args = append(args, query.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if query.Offset > 0 {
		args = append(args, query.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return sql, args
}

// buildNodeUpdate renders an optimistic UPDATE: $1 is the id and $2 the
// expected version.
func buildNodeUpdate(u NodeUpdate) (string, []any) {
	sets := make([]string, 0, 8)
	args := []any{u.ID, u.ExpectedVersion}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if p := u.Path; p != nil {
		if p.Reparent {
			set("parent_id", p.ParentID)
		}
		set("path", p.Path)
		set("path_ids", nonNil(p.PathIDs))
		set("depth", p.Depth)
	}
	if st := u.Stats; st != nil {
		set("child_count", st.ChildCount)
		set("descendant_count", st.DescendantCount)
		set("item_count", st.ItemCount)
		set("is_leaf", st.IsLeaf)
	}
	if u.Status != nil {
		set("status", string(*u.Status))
	}
	if u.DeletedAt != nil {
		set("deleted_at", *u.DeletedAt)
	}
	sets = append(sets, "version = version + 1", "updated_at = now()")

	return fmt.Sprintf("UPDATE categories SET %s WHERE id = $1 AND version = $2", strings.Join(sets, ", ")), args
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
