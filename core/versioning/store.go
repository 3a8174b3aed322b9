package versioning

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gobwas/glob"
)

type HistoryOptions struct {
	// Limit caps the number of commits returned; zero or less means no cap.
	Limit int
	Since *time.Time
	Until *time.Time
	// Author is a glob matched against Commit.Author.
	Author string
}

type documentIndex struct {
	commits  []*Commit
	byLabel  map[string]*Commit
	byID     map[CommitID]*Commit
	tags     []*Tag
	branches []*Branch
}

func newDocumentIndex() *documentIndex {
	return &documentIndex{
		byLabel: make(map[string]*Commit),
		byID:    make(map[CommitID]*Commit),
	}
}

// PruneReport describes a retention pass. Refs that pointed at removed
// commits are reported in DanglingTags and DanglingBranches and left in place.
type PruneReport struct {
	DocumentID       string    `json:"document_id"`
	Removed          []*Commit `json:"removed"`
	DanglingTags     []Tag     `json:"dangling_tags,omitempty"`
	DanglingBranches []Branch  `json:"dangling_branches,omitempty"`
}

func (r PruneReport) RemovedCount() int {
	return len(r.Removed)
}

// VersionStore owns the commit graph, tags and branches of every document.
// All methods are safe for concurrent use; returned values are copies.
type VersionStore struct {
	mu   sync.RWMutex
	docs map[string]*documentIndex
	now  func() time.Time
}

func NewVersionStore() *VersionStore {
	return &VersionStore{
		docs: make(map[string]*documentIndex),
		now:  time.Now,
	}
}

// RecordCommit appends c to its document's history.
func (s *VersionStore) RecordCommit(c *Commit) (*Commit, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil commit", ErrValidation)
	}
	if err := ValidateDocumentID(c.DocumentID); err != nil {
		return nil, err
	}
	if err := ValidateVersionLabel(c.VersionLabel); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.docs[c.DocumentID]
	if idx != nil {
		if _, exists := idx.byLabel[c.VersionLabel]; exists {
			return nil, newVersionError(KindDuplicateVersion, "record commit", c.DocumentID, c.VersionLabel, "", nil)
		}
	}
	if c.HasParent() && (idx == nil || idx.byID[c.ParentID] == nil) {
		return nil, newVersionError(KindVersionNotFound, "record commit", c.DocumentID, c.VersionLabel,
			fmt.Sprintf("parent %s not found", c.ParentID.Short()), nil)
	}

	if idx == nil {
		idx = newDocumentIndex()
		s.docs[c.DocumentID] = idx
	}

	stored := c.Clone()
	idx.commits = append(idx.commits, stored)
	idx.byLabel[stored.VersionLabel] = stored
	idx.byID[stored.ID] = stored
	return stored.Clone(), nil
}

func (s *VersionStore) GetCommit(documentID, versionLabel string) (*Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.lookupLocked(documentID, versionLabel)
	if c == nil {
		return nil, newVersionError(KindVersionNotFound, "get commit", documentID, versionLabel, "", nil)
	}
	return c.Clone(), nil
}

func (s *VersionStore) GetCommitByID(documentID string, id CommitID) (*Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx := s.docs[documentID]; idx != nil {
		if c := idx.byID[id]; c != nil {
			return c.Clone(), nil
		}
	}
	return nil, newVersionError(KindVersionNotFound, "get commit", documentID, id.Short(), "", nil)
}

func (s *VersionStore) HasCommit(documentID, versionLabel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(documentID, versionLabel) != nil
}

func (s *VersionStore) lookupLocked(documentID, versionLabel string) *Commit {
	idx := s.docs[documentID]
	if idx == nil {
		return nil
	}
	return idx.byLabel[versionLabel]
}

// Latest returns the newest commit of a document.
func (s *VersionStore) Latest(documentID string) (*Commit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.docs[documentID]
	if idx == nil || len(idx.commits) == 0 {
		return nil, false
	}
	return newestFirst(idx.commits)[0].Clone(), true
}

// newestFirst orders by timestamp descending; commits with equal timestamps
// keep reverse insertion order.
func newestFirst(commits []*Commit) []*Commit {
	ordered := slices.Clone(commits)
	slices.Reverse(ordered)
	slices.SortStableFunc(ordered, func(a, b *Commit) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return ordered
}

func (s *VersionStore) History(documentID string, opts HistoryOptions) ([]*Commit, error) {
	var author glob.Glob
	if opts.Author != "" {
		g, err := glob.Compile(opts.Author)
		if err != nil {
			return nil, fmt.Errorf("%w: author pattern: %v", ErrValidation, err)
		}
		author = g
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.docs[documentID]
	if idx == nil {
		return []*Commit{}, nil
	}

	result := make([]*Commit, 0, len(idx.commits))
	for _, c := range newestFirst(idx.commits) {
		if !commitMatches(c, opts, author) {
			continue
		}
		result = append(result, c.Clone())
		if opts.Limit > 0 && len(result) == opts.Limit {
			break
		}
	}
	return result, nil
}

func commitMatches(c *Commit, opts HistoryOptions, author glob.Glob) bool {
	if opts.Since != nil && c.Timestamp.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && c.Timestamp.After(*opts.Until) {
		return false
	}
	return author == nil || author.Match(c.Author)
}

func (s *VersionStore) CreateTag(documentID, versionLabel, name, message, author string) (*Tag, error) {
	if err := ValidateRefName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lookupLocked(documentID, versionLabel) == nil {
		return nil, newVersionError(KindVersionNotFound, "create tag", documentID, versionLabel, "", nil)
	}

	tag := &Tag{
		Name:         name,
		DocumentID:   documentID,
		VersionLabel: versionLabel,
		Message:      message,
		CreatedBy:    author,
		CreatedAt:    s.now().UTC(),
	}
	idx := s.docs[documentID]
	idx.tags = append(idx.tags, tag)
	out := *tag
	return &out, nil
}

// ResolveTag returns the most recently created tag with the given name.
func (s *VersionStore) ResolveTag(documentID, name string) (*Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx := s.docs[documentID]; idx != nil {
		for i := len(idx.tags) - 1; i >= 0; i-- {
			if idx.tags[i].Name == name {
				out := *idx.tags[i]
				return &out, nil
			}
		}
	}
	return nil, newVersionError(KindVersionNotFound, "resolve tag", documentID, "", fmt.Sprintf("tag %q not found", name), nil)
}

// ListTags returns tags in creation order, optionally filtered by a name glob.
func (s *VersionStore) ListTags(documentID, pattern string) ([]Tag, error) {
	match, err := compileNameFilter(pattern)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []Tag{}
	if idx := s.docs[documentID]; idx != nil {
		for _, tag := range idx.tags {
			if match(tag.Name) {
				result = append(result, *tag)
			}
		}
	}
	return result, nil
}

func (s *VersionStore) CreateBranch(documentID, versionLabel, name, baseBranch, author string) (*Branch, error) {
	if err := ValidateRefName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lookupLocked(documentID, versionLabel) == nil {
		return nil, newVersionError(KindVersionNotFound, "create branch", documentID, versionLabel, "", nil)
	}
	idx := s.docs[documentID]
	if activeBranch(idx, name) != nil {
		return nil, fmt.Errorf("%w: branch %q already exists", ErrValidation, name)
	}
	if baseBranch != "" && activeBranch(idx, baseBranch) == nil {
		return nil, newVersionError(KindVersionNotFound, "create branch", documentID, versionLabel,
			fmt.Sprintf("base branch %q not found", baseBranch), nil)
	}

	now := s.now().UTC()
	branch := &Branch{
		Name:         name,
		DocumentID:   documentID,
		VersionLabel: versionLabel,
		BaseBranch:   baseBranch,
		CreatedBy:    author,
		CreatedAt:    now,
		UpdatedAt:    now,
		IsActive:     true,
	}
	idx.branches = append(idx.branches, branch)
	out := *branch
	return &out, nil
}

func activeBranch(idx *documentIndex, name string) *Branch {
	if idx == nil {
		return nil
	}
	for _, b := range idx.branches {
		if b.IsActive && b.Name == name {
			return b
		}
	}
	return nil
}

// ResolveBranch only sees active branches.
func (s *VersionStore) ResolveBranch(documentID, name string) (*Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := activeBranch(s.docs[documentID], name)
	if b == nil {
		return nil, newVersionError(KindVersionNotFound, "resolve branch", documentID, "", fmt.Sprintf("branch %q not found", name), nil)
	}
	out := *b
	return &out, nil
}

func (s *VersionStore) ListBranches(documentID, pattern string, includeInactive bool) ([]Branch, error) {
	match, err := compileNameFilter(pattern)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []Branch{}
	if idx := s.docs[documentID]; idx != nil {
		for _, b := range idx.branches {
			if (b.IsActive || includeInactive) && match(b.Name) {
				result = append(result, *b)
			}
		}
	}
	return result, nil
}

// MoveBranch points an active branch at another existing version.
func (s *VersionStore) MoveBranch(documentID, name, versionLabel string) (*Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lookupLocked(documentID, versionLabel) == nil {
		return nil, newVersionError(KindVersionNotFound, "move branch", documentID, versionLabel, "", nil)
	}
	b := activeBranch(s.docs[documentID], name)
	if b == nil {
		return nil, newVersionError(KindVersionNotFound, "move branch", documentID, "", fmt.Sprintf("branch %q not found", name), nil)
	}
	b.VersionLabel = versionLabel
	b.UpdatedAt = s.now().UTC()
	out := *b
	return &out, nil
}

// DeactivateBranch soft-deletes a branch. The record stays for audit.
func (s *VersionStore) DeactivateBranch(documentID, name string) (*Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := activeBranch(s.docs[documentID], name)
	if b == nil {
		return nil, newVersionError(KindVersionNotFound, "delete branch", documentID, "", fmt.Sprintf("branch %q not found", name), nil)
	}
	b.IsActive = false
	b.UpdatedAt = s.now().UTC()
	out := *b
	return &out, nil
}

// Prune keeps the keep newest commits of a document and removes the rest.
func (s *VersionStore) Prune(documentID string, keep int) (PruneReport, error) {
	if keep < 0 {
		return PruneReport{}, fmt.Errorf("%w: keep count must not be negative", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	report := PruneReport{DocumentID: documentID, Removed: []*Commit{}}
	idx := s.docs[documentID]
	if idx == nil || len(idx.commits) <= keep {
		return report, nil
	}

	ordered := newestFirst(idx.commits)
	removed := ordered[keep:]
	gone := make(map[string]bool, len(removed))
	for _, c := range removed {
		gone[c.VersionLabel] = true
		delete(idx.byLabel, c.VersionLabel)
		delete(idx.byID, c.ID)
		report.Removed = append(report.Removed, c.Clone())
	}
	idx.commits = slices.DeleteFunc(idx.commits, func(c *Commit) bool {
		return gone[c.VersionLabel]
	})

	for _, tag := range idx.tags {
		if gone[tag.VersionLabel] {
			report.DanglingTags = append(report.DanglingTags, *tag)
		}
	}
	for _, b := range idx.branches {
		if b.IsActive && gone[b.VersionLabel] {
			report.DanglingBranches = append(report.DanglingBranches, *b)
		}
	}
	return report, nil
}

// ReferencesContent reports whether any commit of any document still points
// at hash.
func (s *VersionStore) ReferencesContent(hash ContentHash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, idx := range s.docs {
		for _, c := range idx.commits {
			if c.ContentHash == hash {
				return true
			}
		}
	}
	return false
}

func (s *VersionStore) Documents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

type DocumentCounts struct {
	Commits        int `json:"commits"`
	Tags           int `json:"tags"`
	ActiveBranches int `json:"active_branches"`
}

func (s *VersionStore) Counts(documentID string) DocumentCounts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.docs[documentID]
	if idx == nil {
		return DocumentCounts{}
	}
	counts := DocumentCounts{Commits: len(idx.commits), Tags: len(idx.tags)}
	for _, b := range idx.branches {
		if b.IsActive {
			counts.ActiveBranches++
		}
	}
	return counts
}

func compileNameFilter(pattern string) (func(string) bool, error) {
	if pattern == "" || pattern == "*" {
		return func(string) bool { return true }, nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("%w: pattern %q: %v", ErrValidation, pattern, err)
	}
	return g.Match, nil
}

// DocumentSnapshot is the serializable form of one document's index.
type DocumentSnapshot struct {
	Commits  []*Commit `json:"commits"`
	Tags     []Tag     `json:"tags"`
	Branches []Branch  `json:"branches"`
}

type StoreSnapshot struct {
	Documents map[string]DocumentSnapshot `json:"documents"`
}

func (s *VersionStore) Snapshot() StoreSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StoreSnapshot{Documents: make(map[string]DocumentSnapshot, len(s.docs))}
	for id, idx := range s.docs {
		doc := DocumentSnapshot{
			Commits:  make([]*Commit, 0, len(idx.commits)),
			Tags:     make([]Tag, 0, len(idx.tags)),
			Branches: make([]Branch, 0, len(idx.branches)),
		}
		for _, c := range idx.commits {
			doc.Commits = append(doc.Commits, c.Clone())
		}
		for _, t := range idx.tags {
			doc.Tags = append(doc.Tags, *t)
		}
		for _, b := range idx.branches {
			doc.Branches = append(doc.Branches, *b)
		}
		snap.Documents[id] = doc
	}
	return snap
}

// Restore replaces the store contents with snap. Commits must carry unique
// labels per document.
func (s *VersionStore) Restore(snap StoreSnapshot) error {
	docs := make(map[string]*documentIndex, len(snap.Documents))
	for id, doc := range snap.Documents {
		idx := newDocumentIndex()
		commits := slices.Clone(doc.Commits)
		slices.SortStableFunc(commits, func(a, b *Commit) int {
			return cmp.Compare(a.Timestamp.UnixNano(), b.Timestamp.UnixNano())
		})
		for _, c := range commits {
			if c == nil || c.DocumentID != id {
				return fmt.Errorf("%w: snapshot commit does not belong to %q", ErrValidation, id)
			}
			if _, dup := idx.byLabel[c.VersionLabel]; dup {
				return newVersionError(KindDuplicateVersion, "restore", id, c.VersionLabel, "", nil)
			}
			stored := c.Clone()
			idx.commits = append(idx.commits, stored)
			idx.byLabel[stored.VersionLabel] = stored
			idx.byID[stored.ID] = stored
		}
		for _, t := range doc.Tags {
			tag := t
			idx.tags = append(idx.tags, &tag)
		}
		for _, b := range doc.Branches {
			branch := b
			idx.branches = append(idx.branches, &branch)
		}
		docs[id] = idx
	}

	s.mu.Lock()
	s.docs = docs
	s.mu.Unlock()
	return nil
}
