package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"category-tree/internal/model"
)

type AuditRepository struct {
	db dbtx
}

func NewAuditRepository(db dbtx) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Record(ctx context.Context, entry model.AuditEntry) error {
	metadata, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO category_audit_entries
		 (id, node_id, action, old_parent_id, new_parent_id, old_path, new_path,
		  old_path_ids, new_path_ids, old_depth, new_depth, actor_id, reason, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		entry.ID, entry.NodeID, string(entry.Action), entry.OldParentID, entry.NewParentID,
		entry.OldPath, entry.NewPath, nonNil(entry.OldPathIDs), nonNil(entry.NewPathIDs),
		entry.OldDepth, entry.NewDepth, entry.ActorID, entry.Reason, metadata, entry.CreatedAt)
	if err != nil {
		return mapPgError("record audit entry", err)
	}
	return nil
}

func (r *AuditRepository) QueryAudit(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query.Page, query.Limit = model.NormalizePage(query.Page, query.Limit)

	where := make([]string, 0)
	args := make([]any, 0)
	argIdx := 1

	if nodeID := strings.TrimSpace(query.NodeID); nodeID != "" {
		where = append(where, fmt.Sprintf("node_id = $%d", argIdx))
		args = append(args, nodeID)
		argIdx++
	}
	if actorID := strings.TrimSpace(query.ActorID); actorID != "" {
		where = append(where, fmt.Sprintf("actor_id = $%d", argIdx))
		args = append(args, actorID)
		argIdx++
	}
	if action := strings.TrimSpace(query.Action); action != "" {
		where = append(where, fmt.Sprintf("lower(action) = lower($%d)", argIdx))
		args = append(args, action)
		argIdx++
	}
	if from := strings.TrimSpace(query.From); from != "" {
		where = append(where, fmt.Sprintf("created_at >= $%d::timestamptz", argIdx))
		args = append(args, from)
		argIdx++
	}
	if to := strings.TrimSpace(query.To); to != "" {
		where = append(where, fmt.Sprintf("created_at <= $%d::timestamptz", argIdx))
		args = append(args, to)
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM category_audit_entries "+whereClause, args...).Scan(&total); err != nil {
		return nil, model.Meta{}, mapPgError("count audit entries", err)
	}
	meta := model.NewMeta(query.Page, query.Limit, total)

	offset := (query.Page - 1) * query.Limit
	dataQuery := fmt.Sprintf(
		`SELECT id, node_id, action, old_parent_id, new_parent_id, old_path, new_path,
		        old_path_ids, new_path_ids, old_depth, new_depth, actor_id, reason, metadata, created_at
		 FROM category_audit_entries %s
		 ORDER BY created_at DESC
		 LIMIT $%d OFFSET $%d`, whereClause, argIdx, argIdx+1)
	args = append(args, query.Limit, offset)

	rows, err := r.db.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, model.Meta{}, mapPgError("query audit entries", err)
	}
	defer rows.Close()

	entries := make([]model.AuditEntry, 0)
	for rows.Next() {
		var e model.AuditEntry
		var action string
		var metadata []byte

		if err := rows.Scan(
			&e.ID, &e.NodeID, &action, &e.OldParentID, &e.NewParentID, &e.OldPath, &e.NewPath,
			&e.OldPathIDs, &e.NewPathIDs, &e.OldDepth, &e.NewDepth, &e.ActorID, &e.Reason, &metadata, &e.CreatedAt,
		); err != nil {
			return nil, model.Meta{}, mapPgError("scan audit entry", err)
		}

		e.Action = model.AuditAction(action)
		if len(metadata) > 0 {
			if jsonErr := json.Unmarshal(metadata, &e.Metadata); jsonErr != nil {
				return nil, model.Meta{}, fmt.Errorf("unmarshal audit metadata: %w", jsonErr)
			}
		}

		entries = append(entries, e)
	}

	return entries, meta, rows.Err()
}
