package versioning

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const rollbackStampLayout = "20060102T150405.000000000Z"

type RollbackRequest struct {
	DocumentID    string `json:"document_id"`
	TargetVersion string `json:"target_version"`
	Author        string `json:"author"`
	Reason        string `json:"reason"`
}

// RollbackCoordinator restores earlier content by recording a new commit.
// The target commit and everything after it stay untouched.
type RollbackCoordinator struct {
	store  *VersionStore
	blobs  BlobStore
	source ContentSource
	clock  func() time.Time
}

func NewRollbackCoordinator(store *VersionStore, blobs BlobStore, source ContentSource, clock func() time.Time) *RollbackCoordinator {
	if clock == nil {
		clock = time.Now
	}
	return &RollbackCoordinator{store: store, blobs: blobs, source: source, clock: clock}
}

// Rollback must be called with the document guard held.
func (r *RollbackCoordinator) Rollback(ctx context.Context, req RollbackRequest) (*Commit, error) {
	if err := ValidateDocumentID(req.DocumentID); err != nil {
		return nil, err
	}
	if err := ValidateVersionLabel(req.TargetVersion); err != nil {
		return nil, err
	}

	target, err := r.store.GetCommit(req.DocumentID, req.TargetVersion)
	if err != nil {
		return nil, err
	}

	content, err := r.blobs.Get(ctx, target.ContentHash)
	if err != nil {
		return nil, contentError("rollback", target, err)
	}

	now := r.clock()
	label := r.rollbackLabel(req.DocumentID, target.VersionLabel, now)
	if err := ValidateVersionLabel(label); err != nil {
		return nil, err
	}

	meta := CommitMetadata{
		StoragePath: target.Metadata.StoragePath,
		Status:      StatusActive,
		Extra:       map[string]string{"rollback_of": target.VersionLabel},
	}
	if name, ok := target.Metadata.Extra[skillNameKey]; ok {
		meta.Extra[skillNameKey] = name
	}

	message := "Rollback to " + target.VersionLabel
	if req.Reason != "" {
		message += ": " + req.Reason
	}
	commit := NewCommit(req.DocumentID, label, message, req.Author, target.ID, content, meta, now)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := r.blobs.Put(ctx, content); err != nil {
		return nil, fmt.Errorf("store rollback content: %w", err)
	}
	if r.source != nil && target.Metadata.StoragePath != "" {
		if err := r.source.WriteBlob(ctx, target.Metadata.StoragePath, content); err != nil {
			return nil, fmt.Errorf("restore working copy: %w", err)
		}
	}

	return r.store.RecordCommit(commit)
}

// rollbackLabel derives "<target>-rollback-<utc stamp>", adding a counter
// in the unlikely case the stamp already exists.
func (r *RollbackCoordinator) rollbackLabel(documentID, target string, now time.Time) string {
	return deriveLabel(target, "-rollback-"+now.UTC().Format(rollbackStampLayout), func(label string) bool {
		return r.store.HasCommit(documentID, label)
	})
}

func contentError(op string, c *Commit, err error) error {
	if errors.Is(err, ErrBlobNotFound) || errors.Is(err, ErrBlobCorrupt) {
		return newVersionError(KindContentUnavailable, op, c.DocumentID, c.VersionLabel,
			"blob "+c.ContentHash.Short(), err)
	}
	return fmt.Errorf("%s %s@%s: %w", op, c.DocumentID, c.VersionLabel, err)
}
