package events

import (
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/adalundhe/skillvcs/core/versioning"
)

// VersionEvent is a lifecycle notification as it travels through the bus.
type VersionEvent struct {
	ID           string               `json:"id"`
	Kind         versioning.EventKind `json:"kind"`
	DocumentID   string               `json:"document_id"`
	VersionLabel string               `json:"version_label,omitempty"`
	Actor        string               `json:"actor,omitempty"`
	Data         map[string]string    `json:"data,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
}

// NewVersionEvent wraps a manager notification with a fresh event ID.
func NewVersionEvent(n versioning.Notification) *VersionEvent {
	ts := n.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &VersionEvent{
		ID:           uuid.New().String(),
		Kind:         n.Kind,
		DocumentID:   n.DocumentID,
		VersionLabel: n.VersionLabel,
		Actor:        n.Actor,
		Data:         maps.Clone(n.Extra),
		Timestamp:    ts,
	}
}

// Subscriber receives events from the bus. An empty Kinds list subscribes to
// every kind.
type Subscriber interface {
	ID() string
	Kinds() []versioning.EventKind
	OnEvent(event *VersionEvent) error
}
