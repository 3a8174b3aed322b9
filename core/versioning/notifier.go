package versioning

import (
	"context"
	"time"
)

type EventKind string

const (
	EventVersionCreated    EventKind = "version_created"
	EventVersionTagged     EventKind = "version_tagged"
	EventBranchCreated     EventKind = "branch_created"
	EventBranchDeleted     EventKind = "branch_deleted"
	EventBranchMerged      EventKind = "branch_merged"
	EventVersionRolledBack EventKind = "version_rolled_back"
	EventVersionCompared   EventKind = "version_compared"
	EventVersionsPruned    EventKind = "versions_pruned"
)

type Notification struct {
	Kind         EventKind         `json:"kind"`
	DocumentID   string            `json:"document_id"`
	VersionLabel string            `json:"version_label,omitempty"`
	Actor        string            `json:"actor,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Notifier receives lifecycle events after a mutation has been committed.
// Delivery is best-effort: errors are logged and never undo the mutation.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
