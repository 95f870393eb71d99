package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"category-tree/internal/model"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type NodeRepository struct {
	db dbtx
}

func NewNodeRepository(db dbtx) *NodeRepository {
	return &NodeRepository{db: db}
}

func (r *NodeRepository) FindByID(ctx context.Context, id string) (model.TreeNode, error) {
	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM categories WHERE id = $1 AND deleted_at IS NULL`, nodeColumns), id)

	node, err := scanNode(row)
	if err != nil {
		return model.TreeNode{}, mapPgError(fmt.Sprintf("find category %s", id), err)
	}
	return node, nil
}

func (r *NodeRepository) FindMany(ctx context.Context, query NodeQuery) ([]model.TreeNode, error) {
	sql, args := buildNodeQuery(query)

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapPgError("query categories", err)
	}
	defer rows.Close()

	nodes := make([]model.TreeNode, 0)
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, mapPgError("scan category", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError("iterate categories", err)
	}

	return nodes, nil
}

func (r *NodeRepository) Count(ctx context.Context, filter NodeFilter) (int, error) {
	whereClause, args := buildNodeWhere(filter)

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM categories "+whereClause, args...).Scan(&total); err != nil {
		return 0, mapPgError("count categories", err)
	}
	return total, nil
}

func (r *NodeRepository) Insert(ctx context.Context, node model.TreeNode) error {
	customFields, err := marshalMetadata(node.CustomFields)
	if err != nil {
		return fmt.Errorf("marshal custom fields: %w", err)
	}

	version := node.Version
	if version == 0 {
		version = 1
	}
	createdAt := node.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO categories
		 (id, parent_id, slug, name, description, keywords, display_order,
		  path, path_ids, depth, child_count, descendant_count, item_count,
		  is_leaf, status, custom_fields, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18)`,
		node.ID, node.ParentID, node.Slug, node.Name, node.Description, nonNil(node.Keywords), node.DisplayOrder,
		node.Path, nonNil(node.PathIDs), node.Depth, node.ChildCount, node.DescendantCount, node.ItemCount,
		node.IsLeaf, string(node.Status), customFields, version, createdAt)
	if err != nil {
		return mapPgError(fmt.Sprintf("insert category %s", node.ID), err)
	}
	return nil
}

func (r *NodeRepository) UpdateOne(ctx context.Context, update NodeUpdate) error {
	sql, args := buildNodeUpdate(update)

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return mapPgError(fmt.Sprintf("update category %s", update.ID), err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current int64
	err = r.db.QueryRow(ctx, `SELECT version FROM categories WHERE id = $1`, update.ID).Scan(&current)
	if err != nil {
		return mapPgError(fmt.Sprintf("update category %s", update.ID), err)
	}
	return fmt.Errorf("update category %s: expected version %d, found %d: %w",
		update.ID, update.ExpectedVersion, current, model.ErrConcurrentModification)
}

// UpdateMany pipelines the updates in one round trip. Any update that matches
// no row fails the whole call with ErrConcurrentModification.
func (r *NodeRepository) UpdateMany(ctx context.Context, updates []NodeUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, update := range updates {
		sql, args := buildNodeUpdate(update)
		batch.Queue(sql, args...)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	for _, update := range updates {
		tag, err := br.Exec()
		if err != nil {
			return mapPgError(fmt.Sprintf("update category %s", update.ID), err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("update category %s: version %d no longer current: %w",
				update.ID, update.ExpectedVersion, model.ErrConcurrentModification)
		}
	}

	return br.Close()
}

func scanNode(row pgx.Row) (model.TreeNode, error) {
	var n model.TreeNode
	var status string
	var customFields []byte

	err := row.Scan(
		&n.ID, &n.ParentID, &n.Slug, &n.Name, &n.Description, &n.Keywords, &n.DisplayOrder,
		&n.Path, &n.PathIDs, &n.Depth, &n.ChildCount, &n.DescendantCount, &n.ItemCount,
		&n.IsLeaf, &status, &customFields, &n.Version, &n.CreatedAt, &n.UpdatedAt, &n.DeletedAt,
	)
	if err != nil {
		return model.TreeNode{}, err
	}

	n.Status = model.Status(status)
	n.PathIDs = nonNil(n.PathIDs)
	if len(customFields) > 0 {
		if err := json.Unmarshal(customFields, &n.CustomFields); err != nil {
			return model.TreeNode{}, fmt.Errorf("unmarshal custom fields: %w", err)
		}
	}

	return n, nil
}

func marshalMetadata(m model.Metadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
