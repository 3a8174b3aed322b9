package versioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/adalundhe/skillvcs/core/concurrency/safelock"
	"github.com/adalundhe/skillvcs/skilldoc"
)

const (
	defaultContextLines        = 3
	defaultComparisonCacheSize = 256
	mergeStampLayout           = "20060102T150405Z"

	skillNameKey = "skill_name"
)

var ErrNoContent = fmt.Errorf("%w: no content and no storage path", ErrValidation)

type ManagerConfig struct {
	Store    *VersionStore
	Blobs    BlobStore
	Source   ContentSource
	Notifier Notifier
	Logger   *slog.Logger

	ContextLines        int
	DefaultDiffMode     DiffMode
	MergeOptions        MergeOptions
	ComparisonCacheSize int
	Clock               func() time.Time
}

// Manager is the entry point for versioning. Mutations on one document are
// serialized by a per-document guard; mutations on different documents run
// in parallel. Reads never take the guard.
type Manager struct {
	store    *VersionStore
	blobs    BlobStore
	source   ContentSource
	notifier Notifier
	logger   *slog.Logger
	clock    func() time.Time

	diff     *DiffEngine
	merge    *MergeEngine
	rollback *RollbackCoordinator

	defaultMode  DiffMode
	mergeOptions MergeOptions

	locks *safelock.KeyedMutex
	// blobMu lets writers add blobs concurrently while blob garbage
	// collection runs exclusively.
	blobMu      sync.RWMutex
	comparisons *lru.Cache[comparisonKey, *Comparison]
}

type comparisonKey struct {
	from, to           ContentHash
	fromLabel, toLabel string
	mode               DiffMode
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		cfg.Store = NewVersionStore()
	}
	if cfg.Blobs == nil {
		cfg.Blobs = NewMemoryBlobStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.ContextLines <= 0 {
		cfg.ContextLines = defaultContextLines
	}
	if cfg.ComparisonCacheSize <= 0 {
		cfg.ComparisonCacheSize = defaultComparisonCacheSize
	}
	mode, err := ParseDiffMode(string(cfg.DefaultDiffMode))
	if err != nil {
		return nil, err
	}

	comparisons, err := lru.New[comparisonKey, *Comparison](cfg.ComparisonCacheSize)
	if err != nil {
		return nil, fmt.Errorf("comparison cache: %w", err)
	}

	return &Manager{
		store:        cfg.Store,
		blobs:        cfg.Blobs,
		source:       cfg.Source,
		notifier:     cfg.Notifier,
		logger:       cfg.Logger.With("component", "versioning"),
		clock:        cfg.Clock,
		diff:         NewDiffEngine(cfg.ContextLines),
		merge:        NewMergeEngine(),
		rollback:     NewRollbackCoordinator(cfg.Store, cfg.Blobs, cfg.Source, cfg.Clock),
		defaultMode:  mode,
		mergeOptions: cfg.MergeOptions,
		locks:        safelock.NewKeyedMutex(),
		comparisons:  comparisons,
	}, nil
}

func (m *Manager) Store() *VersionStore {
	return m.store
}

func (m *Manager) Blobs() BlobStore {
	return m.blobs
}

// lockDocument takes the per-document guard. The returned release must be
// called exactly once.
func (m *Manager) lockDocument(ctx context.Context, documentID string) (func(), error) {
	unlock, err := m.locks.Lock(ctx, documentID)
	if err != nil {
		return nil, err
	}
	m.blobMu.RLock()
	return func() {
		m.blobMu.RUnlock()
		unlock()
	}, nil
}

type CreateVersionRequest struct {
	DocumentID   string
	VersionLabel string
	Message      string
	Author       string
	// Content is committed as-is when non-nil. Otherwise the content is read
	// from StoragePath through the configured ContentSource.
	Content     []byte
	StoragePath string
	// ParentLabel overrides the default parent, the document's latest commit.
	ParentLabel string
	Status      CommitStatus
	Extra       map[string]string
}

func (m *Manager) CreateVersion(ctx context.Context, req CreateVersionRequest) (commit *Commit, err error) {
	ctx, finish := startOperation(ctx, "create_version", req.DocumentID, req.VersionLabel)
	defer func() { finish(err) }()

	if err := ValidateDocumentID(req.DocumentID); err != nil {
		return nil, err
	}
	if err := ValidateVersionLabel(req.VersionLabel); err != nil {
		return nil, err
	}
	meta := CommitMetadata{StoragePath: req.StoragePath, Status: req.Status, Extra: maps.Clone(req.Extra)}
	if err := ValidateMetadata(meta); err != nil {
		return nil, err
	}
	if req.Content == nil && (req.StoragePath == "" || m.source == nil) {
		return nil, ErrNoContent
	}

	release, err := m.lockDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	defer release()

	content := req.Content
	if content == nil {
		content, err = m.source.ReadBlob(ctx, req.StoragePath)
		if err != nil {
			if errors.Is(err, ErrSourceNotFound) {
				return nil, newVersionError(KindContentUnavailable, "create version", req.DocumentID, req.VersionLabel, "", err)
			}
			return nil, err
		}
	}

	if m.store.HasCommit(req.DocumentID, req.VersionLabel) {
		return nil, newVersionError(KindDuplicateVersion, "create version", req.DocumentID, req.VersionLabel, "", nil)
	}

	var parent CommitID
	if req.ParentLabel != "" {
		p, err := m.store.GetCommit(req.DocumentID, req.ParentLabel)
		if err != nil {
			return nil, err
		}
		parent = p.ID
	} else if latest, ok := m.store.Latest(req.DocumentID); ok {
		parent = latest.ID
	}

	annotateSkill(&meta, content)
	commit = NewCommit(req.DocumentID, req.VersionLabel, req.Message, req.Author, parent, content, meta, m.clock())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := m.blobs.Put(ctx, content); err != nil {
		return nil, fmt.Errorf("store content: %w", err)
	}
	commit, err = m.store.RecordCommit(commit)
	if err != nil {
		return nil, err
	}

	m.logger.Info("version created",
		"document", commit.DocumentID,
		"version", commit.VersionLabel,
		"commit", commit.ID.Short(),
		"bytes", commit.Metadata.ByteSize)
	m.notify(ctx, EventVersionCreated, commit.DocumentID, commit.VersionLabel, commit.Author, map[string]string{
		"commit_id":    commit.ID.String(),
		"content_hash": commit.ContentHash.String(),
	})
	return commit, nil
}

// annotateSkill records the skill name of SKILL.md documents.
func annotateSkill(meta *CommitMetadata, content []byte) {
	doc, err := skilldoc.Parse(content)
	if err != nil || !doc.HasFront || doc.Skill.Name == "" {
		return
	}
	if meta.Extra == nil {
		meta.Extra = make(map[string]string)
	}
	if _, set := meta.Extra[skillNameKey]; set || len(meta.Extra) >= MaxMetadataEntries {
		return
	}
	meta.Extra[skillNameKey] = doc.Skill.Name
}

func (m *Manager) GetCommit(ctx context.Context, documentID, versionLabel string) (*Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.store.GetCommit(documentID, versionLabel)
}

func (m *Manager) History(ctx context.Context, documentID string, opts HistoryOptions) ([]*Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.store.History(documentID, opts)
}

// GetContent returns the blob recorded for a version.
func (m *Manager) GetContent(ctx context.Context, documentID, versionLabel string) ([]byte, error) {
	c, err := m.store.GetCommit(documentID, versionLabel)
	if err != nil {
		return nil, err
	}
	return m.contentOf(ctx, "get content", c)
}

func (m *Manager) contentOf(ctx context.Context, op string, c *Commit) ([]byte, error) {
	content, err := m.blobs.Get(ctx, c.ContentHash)
	if err != nil {
		return nil, contentError(op, c, err)
	}
	return content, nil
}

// ResolveRef resolves a version label, then an active branch name, then a
// tag name.
func (m *Manager) ResolveRef(documentID, ref string) (*Commit, error) {
	if c, err := m.store.GetCommit(documentID, ref); err == nil {
		return c, nil
	}
	if b, err := m.store.ResolveBranch(documentID, ref); err == nil {
		return m.store.GetCommit(documentID, b.VersionLabel)
	}
	if t, err := m.store.ResolveTag(documentID, ref); err == nil {
		return m.store.GetCommit(documentID, t.VersionLabel)
	}
	return nil, newVersionError(KindVersionNotFound, "resolve", documentID, ref, "no version, branch or tag by that name", nil)
}

type TagRequest struct {
	DocumentID   string
	VersionLabel string
	Name         string
	Message      string
	Author       string
}

func (m *Manager) CreateTag(ctx context.Context, req TagRequest) (tag *Tag, err error) {
	ctx, finish := startOperation(ctx, "create_tag", req.DocumentID, req.VersionLabel)
	defer func() { finish(err) }()

	if err := ValidateDocumentID(req.DocumentID); err != nil {
		return nil, err
	}
	release, err := m.lockDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tag, err = m.store.CreateTag(req.DocumentID, req.VersionLabel, req.Name, req.Message, req.Author)
	if err != nil {
		return nil, err
	}

	m.logger.Info("version tagged", "document", tag.DocumentID, "version", tag.VersionLabel, "tag", tag.Name)
	m.notify(ctx, EventVersionTagged, tag.DocumentID, tag.VersionLabel, tag.CreatedBy, map[string]string{"tag": tag.Name})
	return tag, nil
}

type BranchRequest struct {
	DocumentID string
	// VersionLabel is the branch head. When empty the head of BaseBranch is
	// used, or the latest commit when no base branch is given.
	VersionLabel string
	Name         string
	BaseBranch   string
	Author       string
}

func (m *Manager) CreateBranch(ctx context.Context, req BranchRequest) (branch *Branch, err error) {
	ctx, finish := startOperation(ctx, "create_branch", req.DocumentID, req.VersionLabel)
	defer func() { finish(err) }()

	if err := ValidateDocumentID(req.DocumentID); err != nil {
		return nil, err
	}
	release, err := m.lockDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	defer release()

	label := req.VersionLabel
	if label == "" {
		switch {
		case req.BaseBranch != "":
			base, err := m.store.ResolveBranch(req.DocumentID, req.BaseBranch)
			if err != nil {
				return nil, err
			}
			label = base.VersionLabel
		default:
			latest, ok := m.store.Latest(req.DocumentID)
			if !ok {
				return nil, newVersionError(KindVersionNotFound, "create branch", req.DocumentID, "", "document has no versions", nil)
			}
			label = latest.VersionLabel
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	branch, err = m.store.CreateBranch(req.DocumentID, label, req.Name, req.BaseBranch, req.Author)
	if err != nil {
		return nil, err
	}

	m.logger.Info("branch created", "document", branch.DocumentID, "branch", branch.Name, "head", branch.VersionLabel)
	m.notify(ctx, EventBranchCreated, branch.DocumentID, branch.VersionLabel, branch.CreatedBy, map[string]string{
		"branch":      branch.Name,
		"base_branch": branch.BaseBranch,
	})
	return branch, nil
}

// DeleteBranch deactivates a branch. Its commits are untouched.
func (m *Manager) DeleteBranch(ctx context.Context, documentID, name, actor string) (branch *Branch, err error) {
	ctx, finish := startOperation(ctx, "delete_branch", documentID, "")
	defer func() { finish(err) }()

	release, err := m.lockDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	branch, err = m.store.DeactivateBranch(documentID, name)
	if err != nil {
		return nil, err
	}

	m.logger.Info("branch deleted", "document", documentID, "branch", name)
	m.notify(ctx, EventBranchDeleted, documentID, branch.VersionLabel, actor, map[string]string{"branch": name})
	return branch, nil
}

func (m *Manager) ResolveTag(documentID, name string) (*Tag, error) {
	return m.store.ResolveTag(documentID, name)
}

func (m *Manager) ResolveBranch(documentID, name string) (*Branch, error) {
	return m.store.ResolveBranch(documentID, name)
}

func (m *Manager) ListTags(documentID, pattern string) ([]Tag, error) {
	return m.store.ListTags(documentID, pattern)
}

func (m *Manager) ListBranches(documentID, pattern string, includeInactive bool) ([]Branch, error) {
	return m.store.ListBranches(documentID, pattern, includeInactive)
}

// Compare diffs two refs of a document. Results are memoized by content and
// mode; the returned Comparison must be treated as read-only.
func (m *Manager) Compare(ctx context.Context, documentID, fromRef, toRef string, mode DiffMode) (cmp *Comparison, err error) {
	ctx, finish := startOperation(ctx, "compare", documentID, fromRef+".."+toRef)
	defer func() { finish(err) }()

	if mode == "" {
		mode = m.defaultMode
	}
	mode, err = ParseDiffMode(string(mode))
	if err != nil {
		return nil, err
	}

	from, err := m.ResolveRef(documentID, fromRef)
	if err != nil {
		return nil, err
	}
	to, err := m.ResolveRef(documentID, toRef)
	if err != nil {
		return nil, err
	}

	key := comparisonKey{
		from: from.ContentHash, to: to.ContentHash,
		fromLabel: from.VersionLabel, toLabel: to.VersionLabel,
		mode: mode,
	}
	if cached, ok := m.comparisons.Get(key); ok {
		m.notify(ctx, EventVersionCompared, documentID, to.VersionLabel, "", map[string]string{"from": from.VersionLabel, "cached": "true"})
		return cached, nil
	}

	fromContent, err := m.contentOf(ctx, "compare", from)
	if err != nil {
		return nil, err
	}
	toContent, err := m.contentOf(ctx, "compare", to)
	if err != nil {
		return nil, err
	}

	cmp, err = m.diff.CompareLabeled(from.VersionLabel, to.VersionLabel, fromContent, toContent, mode)
	if err != nil {
		return nil, err
	}
	m.comparisons.Add(key, cmp)

	m.notify(ctx, EventVersionCompared, documentID, to.VersionLabel, "", map[string]string{"from": from.VersionLabel})
	return cmp, nil
}

// CompareContent diffs two blobs directly.
func (m *Manager) CompareContent(from, to []byte, mode DiffMode) (*Comparison, error) {
	if mode == "" {
		mode = m.defaultMode
	}
	return m.diff.Compare(from, to, mode)
}

type MergeRequest struct {
	DocumentID   string
	SourceBranch string
	TargetBranch string
	Strategy     MergeStrategy
	Author       string
	Message      string
	// VersionLabel names the merge commit; a label is derived from the
	// target head when empty.
	VersionLabel string
	// RejectOnConflict aborts without committing when the merge has
	// conflicts.
	RejectOnConflict bool
}

type MergeOutcome struct {
	Commit      *Commit         `json:"commit,omitempty"`
	Conflicts   []MergeConflict `json:"conflicts"`
	Strategy    MergeStrategy   `json:"strategy"`
	NeedsReview bool            `json:"needs_review"`
}

// MergeBranches merges the source branch head into the target branch head,
// records the result on the target branch and advances it. A merge with
// conflicts still commits and reports NeedsReview unless RejectOnConflict is
// set, in which case nothing is recorded and a ConflictPresent error is
// returned with the outcome.
func (m *Manager) MergeBranches(ctx context.Context, req MergeRequest) (outcome *MergeOutcome, err error) {
	ctx, finish := startOperation(ctx, "merge_branches", req.DocumentID, req.SourceBranch+"->"+req.TargetBranch)
	defer func() { finish(err) }()

	if err := ValidateDocumentID(req.DocumentID); err != nil {
		return nil, err
	}
	if req.SourceBranch == "" || req.TargetBranch == "" {
		return nil, fmt.Errorf("%w: source and target branch are required", ErrValidation)
	}
	if req.SourceBranch == req.TargetBranch {
		return nil, fmt.Errorf("%w: cannot merge a branch into itself", ErrValidation)
	}
	strategy, err := ParseMergeStrategy(string(req.Strategy))
	if err != nil {
		return nil, err
	}
	if req.VersionLabel != "" {
		if err := ValidateVersionLabel(req.VersionLabel); err != nil {
			return nil, err
		}
	}

	release, err := m.lockDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	defer release()

	source, err := m.branchHead(req.DocumentID, req.SourceBranch)
	if err != nil {
		return nil, err
	}
	target, err := m.branchHead(req.DocumentID, req.TargetBranch)
	if err != nil {
		return nil, err
	}
	sourceContent, err := m.contentOf(ctx, "merge", source)
	if err != nil {
		return nil, err
	}
	targetContent, err := m.contentOf(ctx, "merge", target)
	if err != nil {
		return nil, err
	}

	opts := m.mergeOptions
	if opts.SourceLabel == "" {
		opts.SourceLabel = req.SourceBranch
	}
	if opts.TargetLabel == "" {
		opts.TargetLabel = req.TargetBranch
	}
	result, err := m.merge.Merge(sourceContent, targetContent, strategy, opts)
	if err != nil {
		return nil, err
	}
	mergeConflictsTotal.Add(float64(len(result.Conflicts)))

	outcome = &MergeOutcome{
		Conflicts:   result.Conflicts,
		Strategy:    strategy,
		NeedsReview: result.HasConflicts(),
	}
	if result.HasConflicts() && req.RejectOnConflict {
		cerr := result.ConflictError().(*VersionError)
		cerr.DocumentID = req.DocumentID
		cerr.VersionLabel = target.VersionLabel
		return outcome, cerr
	}

	now := m.clock()
	label := req.VersionLabel
	if label == "" {
		label = m.mergeLabel(req.DocumentID, target.VersionLabel, now)
	}
	if m.store.HasCommit(req.DocumentID, label) {
		return nil, newVersionError(KindDuplicateVersion, "merge", req.DocumentID, label, "", nil)
	}

	message := req.Message
	if message == "" {
		message = fmt.Sprintf("Merge %s into %s", req.SourceBranch, req.TargetBranch)
	}
	meta := CommitMetadata{
		StoragePath: target.Metadata.StoragePath,
		Status:      StatusActive,
		Extra: map[string]string{
			"merged_from":     req.SourceBranch + "@" + source.VersionLabel,
			"merge_strategy":  string(strategy),
			"merge_conflicts": strconv.Itoa(len(result.Conflicts)),
		},
	}
	annotateSkill(&meta, result.Content)
	commit := NewCommit(req.DocumentID, label, message, req.Author, target.ID, result.Content, meta, now)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := m.blobs.Put(ctx, result.Content); err != nil {
		return nil, fmt.Errorf("store merged content: %w", err)
	}
	commit, err = m.store.RecordCommit(commit)
	if err != nil {
		return nil, err
	}
	if _, err := m.store.MoveBranch(req.DocumentID, req.TargetBranch, commit.VersionLabel); err != nil {
		return nil, err
	}
	outcome.Commit = commit

	m.logger.Info("branches merged",
		"document", req.DocumentID,
		"source", req.SourceBranch,
		"target", req.TargetBranch,
		"version", commit.VersionLabel,
		"conflicts", len(result.Conflicts))
	m.notify(ctx, EventBranchMerged, req.DocumentID, commit.VersionLabel, req.Author, map[string]string{
		"source_branch": req.SourceBranch,
		"target_branch": req.TargetBranch,
		"strategy":      string(strategy),
		"conflicts":     strconv.Itoa(len(result.Conflicts)),
	})
	return outcome, nil
}

func (m *Manager) branchHead(documentID, name string) (*Commit, error) {
	b, err := m.store.ResolveBranch(documentID, name)
	if err != nil {
		return nil, err
	}
	return m.store.GetCommit(documentID, b.VersionLabel)
}

func (m *Manager) mergeLabel(documentID, targetHead string, now time.Time) string {
	return deriveLabel(targetHead, "-merge-"+now.UTC().Format(mergeStampLayout), func(label string) bool {
		return m.store.HasCommit(documentID, label)
	})
}

func (m *Manager) Rollback(ctx context.Context, req RollbackRequest) (commit *Commit, err error) {
	ctx, finish := startOperation(ctx, "rollback", req.DocumentID, req.TargetVersion)
	defer func() { finish(err) }()

	if err := ValidateDocumentID(req.DocumentID); err != nil {
		return nil, err
	}
	release, err := m.lockDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	defer release()

	commit, err = m.rollback.Rollback(ctx, req)
	if err != nil {
		return nil, err
	}

	m.logger.Info("version rolled back",
		"document", commit.DocumentID,
		"target", req.TargetVersion,
		"version", commit.VersionLabel,
		"reason", req.Reason)
	m.notify(ctx, EventVersionRolledBack, commit.DocumentID, commit.VersionLabel, req.Author, map[string]string{
		"target_version": req.TargetVersion,
		"reason":         req.Reason,
	})
	return commit, nil
}

type PruneOutcome struct {
	PruneReport
	BlobsReclaimed int `json:"blobs_reclaimed"`
}

// Prune keeps the keep newest commits of a document and deletes blobs no
// commit of any document references anymore.
func (m *Manager) Prune(ctx context.Context, documentID string, keep int) (outcome *PruneOutcome, err error) {
	ctx, finish := startOperation(ctx, "prune", documentID, "")
	defer func() { finish(err) }()

	if err := ValidateDocumentID(documentID); err != nil {
		return nil, err
	}
	if keep < 0 {
		return nil, fmt.Errorf("%w: keep count must not be negative", ErrValidation)
	}

	unlock, err := m.locks.Lock(ctx, documentID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.blobMu.Lock()
	defer m.blobMu.Unlock()

	report, err := m.store.Prune(documentID, keep)
	if err != nil {
		return nil, err
	}
	outcome = &PruneOutcome{PruneReport: report}

	seen := make(map[ContentHash]bool)
	for _, c := range report.Removed {
		if seen[c.ContentHash] || m.store.ReferencesContent(c.ContentHash) {
			continue
		}
		seen[c.ContentHash] = true
		// The commits are already gone, so a failed delete only leaks a blob.
		if err := m.blobs.Delete(context.WithoutCancel(ctx), c.ContentHash); err != nil && !errors.Is(err, ErrBlobNotFound) {
			m.logger.Warn("blob delete failed", "hash", c.ContentHash.Short(), "error", err)
			continue
		}
		outcome.BlobsReclaimed++
	}

	if len(report.DanglingTags) > 0 || len(report.DanglingBranches) > 0 {
		m.logger.Warn("prune left dangling refs",
			"document", documentID,
			"tags", len(report.DanglingTags),
			"branches", len(report.DanglingBranches))
	}
	m.logger.Info("versions pruned", "document", documentID, "removed", report.RemovedCount(), "blobs", outcome.BlobsReclaimed)
	m.notify(ctx, EventVersionsPruned, documentID, "", "", map[string]string{
		"removed":           strconv.Itoa(report.RemovedCount()),
		"dangling_tags":     strconv.Itoa(len(report.DanglingTags)),
		"dangling_branches": strconv.Itoa(len(report.DanglingBranches)),
	})
	return outcome, nil
}

type DocumentStats struct {
	DocumentID    string         `json:"document_id"`
	Counts        DocumentCounts `json:"counts"`
	LatestVersion string         `json:"latest_version,omitempty"`
	TotalBytes    int64          `json:"total_bytes"`
	Blobs         BlobStats      `json:"blobs"`
}

func (m *Manager) Stats(ctx context.Context, documentID string) (*DocumentStats, error) {
	stats := &DocumentStats{
		DocumentID: documentID,
		Counts:     m.store.Counts(documentID),
	}
	history, err := m.store.History(documentID, HistoryOptions{})
	if err != nil {
		return nil, err
	}
	for _, c := range history {
		stats.TotalBytes += c.Metadata.ByteSize
	}
	if len(history) > 0 {
		stats.LatestVersion = history[0].VersionLabel
	}
	blobStats, err := m.blobs.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("blob stats: %w", err)
	}
	stats.Blobs = blobStats
	return stats, nil
}

// notify delivers n without letting the notifier affect the caller. The
// mutation is already committed, so caller cancellation is ignored too.
func (m *Manager) notify(ctx context.Context, kind EventKind, documentID, versionLabel, actor string, extra map[string]string) {
	if m.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			notifyFailures.Inc()
			m.logger.Error("notifier panicked", "event", kind, "document", documentID, "panic", r)
		}
	}()

	err := m.notifier.Notify(context.WithoutCancel(ctx), Notification{
		Kind:         kind,
		DocumentID:   documentID,
		VersionLabel: versionLabel,
		Actor:        actor,
		Extra:        extra,
		Timestamp:    m.clock().UTC(),
	})
	if err != nil {
		notifyFailures.Inc()
		m.logger.Warn("notification failed", "event", kind, "document", documentID, "error", err)
	}
}
