package versioning

import (
	"fmt"
	"maps"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	MaxMetadataEntries  = 32
	MaxMetadataKeyLen   = 64
	MaxMetadataValueLen = 1024

	MaxDocumentIDLen   = 256
	MaxVersionLabelLen = 128
	MaxRefNameLen      = 128
)

// Version labels and ref names are path- and URL-safe tokens such as
// "1.0.0", "release-2024.05" or "feature/tools".
var (
	versionLabelPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+\-]*$`)
	refNamePattern      = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/\-]*$`)
)

// CommitStatus is the lifecycle status a caller attaches to a version.
type CommitStatus string

const (
	StatusDraft      CommitStatus = "draft"
	StatusActive     CommitStatus = "active"
	StatusDeprecated CommitStatus = "deprecated"
)

func (s CommitStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusDeprecated:
		return true
	}
	return false
}

// CommitMetadata holds the typed attributes of a commit plus a bounded
// free-form map for anything else.
type CommitMetadata struct {
	StoragePath string            `json:"storage_path,omitempty" yaml:"storage_path,omitempty"`
	ByteSize    int64             `json:"byte_size" yaml:"byte_size"`
	LineCount   int               `json:"line_count" yaml:"line_count"`
	Status      CommitStatus      `json:"status" yaml:"status"`
	Extra       map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

func (m CommitMetadata) clone() CommitMetadata {
	m.Extra = maps.Clone(m.Extra)
	return m
}

// Commit is an immutable record of one version of a document.
type Commit struct {
	ID           CommitID       `json:"commit_id" yaml:"commit_id"`
	DocumentID   string         `json:"document_id" yaml:"document_id"`
	VersionLabel string         `json:"version_label" yaml:"version_label"`
	Message      string         `json:"message" yaml:"message"`
	Author       string         `json:"author" yaml:"author"`
	Timestamp    time.Time      `json:"timestamp" yaml:"timestamp"`
	ParentID     CommitID       `json:"parent_commit_id,omitempty" yaml:"parent_commit_id,omitempty"`
	ContentHash  ContentHash    `json:"content_hash" yaml:"content_hash"`
	Metadata     CommitMetadata `json:"metadata" yaml:"metadata"`
}

func (c *Commit) HasParent() bool {
	return !c.ParentID.IsZero()
}

// Clone returns a copy that shares no mutable state with c.
func (c *Commit) Clone() *Commit {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Metadata = c.Metadata.clone()
	return &clone
}

// NewCommit builds a commit for content, deriving its ID from a fresh nonce.
func NewCommit(documentID, versionLabel, message, author string, parent CommitID, content []byte, meta CommitMetadata, now time.Time) *Commit {
	hash := ComputeContentHash(content)
	meta = meta.clone()
	meta.ByteSize = int64(len(content))
	meta.LineCount = len(splitLines(content))
	if meta.Status == "" {
		meta.Status = StatusActive
	}

	return &Commit{
		ID:           ComputeCommitID(documentID, versionLabel, hash, uuid.New()),
		DocumentID:   documentID,
		VersionLabel: versionLabel,
		Message:      message,
		Author:       author,
		Timestamp:    now.UTC(),
		ParentID:     parent,
		ContentHash:  hash,
		Metadata:     meta,
	}
}

// Tag is a named pointer to a version label. Names may repeat within a
// document; lookups return the most recently created tag.
type Tag struct {
	Name         string    `json:"name" yaml:"name"`
	DocumentID   string    `json:"document_id" yaml:"document_id"`
	VersionLabel string    `json:"version_label" yaml:"version_label"`
	Message      string    `json:"message,omitempty" yaml:"message,omitempty"`
	CreatedBy    string    `json:"created_by" yaml:"created_by"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// Branch is a named, movable pointer to a branch head.
type Branch struct {
	Name         string    `json:"name" yaml:"name"`
	DocumentID   string    `json:"document_id" yaml:"document_id"`
	VersionLabel string    `json:"version_label" yaml:"version_label"`
	BaseBranch   string    `json:"base_branch,omitempty" yaml:"base_branch,omitempty"`
	CreatedBy    string    `json:"created_by" yaml:"created_by"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
	IsActive     bool      `json:"is_active" yaml:"is_active"`
}

func ValidateDocumentID(documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id is empty", ErrValidation)
	}
	if len(documentID) > MaxDocumentIDLen {
		return fmt.Errorf("%w: document id exceeds %d bytes", ErrValidation, MaxDocumentIDLen)
	}
	return nil
}

func ValidateVersionLabel(label string) error {
	if label == "" {
		return fmt.Errorf("%w: version label is empty", ErrValidation)
	}
	if len(label) > MaxVersionLabelLen {
		return fmt.Errorf("%w: version label exceeds %d bytes", ErrValidation, MaxVersionLabelLen)
	}
	if !versionLabelPattern.MatchString(label) {
		return fmt.Errorf("%w: invalid version label %q", ErrValidation, label)
	}
	return nil
}

// deriveLabel builds a generated label from the label it derives from and a
// marker tail, appending -2, -3... until taken reports false. The stem is cut
// so the result never exceeds MaxVersionLabelLen.
func deriveLabel(stem, tail string, taken func(string) bool) string {
	for i := 1; ; i++ {
		suffix := tail
		if i > 1 {
			suffix += "-" + strconv.Itoa(i)
		}
		head := stem
		if room := MaxVersionLabelLen - len(suffix); len(head) > room {
			head = head[:room]
		}
		if label := head + suffix; !taken(label) {
			return label
		}
	}
}

func ValidateRefName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrValidation)
	}
	if len(name) > MaxRefNameLen {
		return fmt.Errorf("%w: name exceeds %d bytes", ErrValidation, MaxRefNameLen)
	}
	if !refNamePattern.MatchString(name) {
		return fmt.Errorf("%w: invalid name %q", ErrValidation, name)
	}
	return nil
}

func ValidateMetadata(meta CommitMetadata) error {
	if meta.Status != "" && !meta.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, meta.Status)
	}
	if len(meta.Extra) > MaxMetadataEntries {
		return fmt.Errorf("%w: metadata has %d entries, limit is %d", ErrValidation, len(meta.Extra), MaxMetadataEntries)
	}
	for k, v := range meta.Extra {
		if k == "" || len(k) > MaxMetadataKeyLen {
			return fmt.Errorf("%w: invalid metadata key %q", ErrValidation, k)
		}
		if len(v) > MaxMetadataValueLen {
			return fmt.Errorf("%w: metadata value for %q exceeds %d bytes", ErrValidation, k, MaxMetadataValueLen)
		}
	}
	return nil
}
