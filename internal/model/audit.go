package model

import "time"

type AuditAction string

const (
	AuditActionReparent AuditAction = "REPARENT"
	AuditActionCreate   AuditAction = "CREATE"
	AuditActionDelete   AuditAction = "DELETE"
	AuditActionStatus   AuditAction = "STATUS"
)

// AuditEntry is an immutable record of one structural change.
type AuditEntry struct {
	ID          string      `json:"id"`
	NodeID      string      `json:"node_id"`
	Action      AuditAction `json:"action"`
	OldParentID *string     `json:"old_parent_id"`
	NewParentID *string     `json:"new_parent_id"`
	OldPath     string      `json:"old_path"`
	NewPath     string      `json:"new_path"`
	OldPathIDs  []string    `json:"old_path_ids"`
	NewPathIDs  []string    `json:"new_path_ids"`
	OldDepth    int         `json:"old_depth"`
	NewDepth    int         `json:"new_depth"`
	ActorID     string      `json:"actor_id"`
	Reason      string      `json:"reason,omitempty"`
	Metadata    Metadata    `json:"metadata,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

type AuditQuery struct {
	NodeID  string
	ActorID string
	Action  string
	From    string
	To      string
	Page    int
	Limit   int
}
