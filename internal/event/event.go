package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeCategoryCreated       Type = "category.created"
	TypeCategoryMoved         Type = "category.moved"
	TypeCategoryDeleted       Type = "category.deleted"
	TypeCategoryStatusChanged Type = "category.status_changed"
	TypeStatisticsRefreshed   Type = "category.statistics_refreshed"
	TypeBatchCompleted        Type = "batch.completed"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	NodeID    string `json:"node_id,omitempty"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
	ActorID   string `json:"actor_id,omitempty"`
}

func New(t Type, nodeID, actorID string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		NodeID:    nodeID,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		ActorID:   actorID,
	}
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func())
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
