package versioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, n)
	return nil
}

func (r *recordingNotifier) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]EventKind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func newTestManager(t *testing.T, mutate ...func(*ManagerConfig)) *Manager {
	t.Helper()
	cfg := ManagerConfig{Clock: stepClock()}
	for _, fn := range mutate {
		fn(&cfg)
	}
	m, err := NewManager(cfg)
	require.NoError(t, err)
	return m
}

func createVersion(t *testing.T, m *Manager, doc, label, content string) *Commit {
	t.Helper()
	c, err := m.CreateVersion(context.Background(), CreateVersionRequest{
		DocumentID:   doc,
		VersionLabel: label,
		Message:      "commit " + label,
		Author:       "alice",
		Content:      []byte(content),
	})
	require.NoError(t, err)
	return c
}

func TestManager_CreateVersion(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	c := createVersion(t, m, "doc1", "1.0.0", "A\nB\nC\n")
	assert.Equal(t, "1.0.0", c.VersionLabel)
	assert.False(t, c.HasParent())
	assert.Equal(t, ComputeContentHash([]byte("A\nB\nC\n")), c.ContentHash)
	assert.Equal(t, int64(6), c.Metadata.ByteSize)
	assert.Equal(t, 3, c.Metadata.LineCount)

	history, err := m.History(ctx, "doc1", HistoryOptions{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "1.0.0", history[0].VersionLabel)

	content, err := m.GetContent(ctx, "doc1", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "A\nB\nC\n", string(content))

	t.Run("duplicate label leaves history unchanged", func(t *testing.T) {
		_, err := m.CreateVersion(ctx, CreateVersionRequest{
			DocumentID: "doc1", VersionLabel: "1.0.0", Author: "alice", Content: []byte("A\nB\nC\n"),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDuplicateVersion)
		assert.True(t, IsDuplicate(err))

		history, err := m.History(ctx, "doc1", HistoryOptions{})
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("next version chains to latest", func(t *testing.T) {
		next := createVersion(t, m, "doc1", "1.1.0", "A\nB\nC\nD\n")
		assert.Equal(t, c.ID, next.ParentID)
	})

	t.Run("explicit parent", func(t *testing.T) {
		c3, err := m.CreateVersion(ctx, CreateVersionRequest{
			DocumentID: "doc1", VersionLabel: "1.0.1", Author: "alice",
			Content: []byte("A\nB2\nC\n"), ParentLabel: "1.0.0",
		})
		require.NoError(t, err)
		assert.Equal(t, c.ID, c3.ParentID)
	})

	t.Run("identical content shares one blob", func(t *testing.T) {
		before, err := m.Blobs().Stats(ctx)
		require.NoError(t, err)
		createVersion(t, m, "doc1", "1.0.2", "A\nB\nC\n")
		after, err := m.Blobs().Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, before.Count, after.Count)
	})
}

func TestManager_CreateVersionValidation(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	tests := []struct {
		name string
		req  CreateVersionRequest
	}{
		{"empty document", CreateVersionRequest{VersionLabel: "1.0.0", Content: []byte("x")}},
		{"empty label", CreateVersionRequest{DocumentID: "doc", Content: []byte("x")}},
		{"label with space", CreateVersionRequest{DocumentID: "doc", VersionLabel: "1 0", Content: []byte("x")}},
		{"no content", CreateVersionRequest{DocumentID: "doc", VersionLabel: "1.0.0"}},
		{"bad status", CreateVersionRequest{DocumentID: "doc", VersionLabel: "1.0.0", Content: []byte("x"), Status: "retired"}},
		{"missing parent", CreateVersionRequest{DocumentID: "doc", VersionLabel: "1.0.0", Content: []byte("x"), ParentLabel: "0.9"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.CreateVersion(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, IsValidation(err) || IsNotFound(err), "unexpected error: %v", err)
		})
	}

	assert.Empty(t, m.Store().Documents())
}

func TestManager_CreateVersionFromSource(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/skills/pdf/SKILL.md", []byte("---\nname: pdf\ndescription: read pdfs\n---\nbody\n"), 0644))

	m := newTestManager(t, func(cfg *ManagerConfig) {
		cfg.Source = NewFSContentSource(fs, "/skills")
	})

	c, err := m.CreateVersion(ctx, CreateVersionRequest{
		DocumentID: "pdf", VersionLabel: "1.0.0", Author: "alice", StoragePath: "pdf/SKILL.md",
	})
	require.NoError(t, err)
	assert.Equal(t, "pdf/SKILL.md", c.Metadata.StoragePath)
	assert.Equal(t, "pdf", c.Metadata.Extra[skillNameKey])

	_, err = m.CreateVersion(ctx, CreateVersionRequest{
		DocumentID: "pdf", VersionLabel: "1.0.1", Author: "alice", StoragePath: "pdf/MISSING.md",
	})
	assert.ErrorIs(t, err, ErrContentUnavailable)
}

func TestManager_Compare(t *testing.T) {
	ctx := context.Background()
	rec := &recordingNotifier{}
	m := newTestManager(t, func(cfg *ManagerConfig) { cfg.Notifier = rec })

	createVersion(t, m, "doc1", "1.0.0", "A\nB\nC\n")
	createVersion(t, m, "doc1", "1.1.0", "A\nX\nC\n")

	cmp, err := m.Compare(ctx, "doc1", "1.0.0", "1.1.0", DiffModeUnified)
	require.NoError(t, err)
	assert.Equal(t, 1, cmp.Summary.Added)
	assert.Equal(t, 1, cmp.Summary.Deleted)
	assert.Equal(t, "1.0.0", cmp.FromVersion)
	assert.Equal(t, "1.1.0", cmp.ToVersion)
	assert.Contains(t, cmp.Text, "-B")
	assert.Contains(t, cmp.Text, "+X")

	again, err := m.Compare(ctx, "doc1", "1.0.0", "1.1.0", DiffModeUnified)
	require.NoError(t, err)
	assert.Same(t, cmp, again)

	side, err := m.Compare(ctx, "doc1", "1.0.0", "1.1.0", DiffModeSideBySide)
	require.NoError(t, err)
	assert.Equal(t, 1, side.Summary.Modified)

	_, err = m.Compare(ctx, "doc1", "1.0.0", "9.9.9", DiffModeUnified)
	assert.True(t, IsNotFound(err))

	_, err = m.Compare(ctx, "doc1", "1.0.0", "1.1.0", "fancy")
	assert.True(t, IsValidation(err))

	assert.Contains(t, rec.kinds(), EventVersionCompared)
}

func TestManager_CompareResolvesRefs(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	createVersion(t, m, "doc", "1.0.0", "one\n")
	createVersion(t, m, "doc", "2.0.0", "two\n")
	_, err := m.CreateTag(ctx, TagRequest{DocumentID: "doc", VersionLabel: "1.0.0", Name: "stable", Author: "alice"})
	require.NoError(t, err)
	_, err = m.CreateBranch(ctx, BranchRequest{DocumentID: "doc", Name: "main", Author: "alice"})
	require.NoError(t, err)

	cmp, err := m.Compare(ctx, "doc", "stable", "main", DiffModeInline)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", cmp.FromVersion)
	assert.Equal(t, "2.0.0", cmp.ToVersion)
	assert.Contains(t, cmp.Text, "[-one-]")
	assert.Contains(t, cmp.Text, "{+two+}")
}

func TestManager_TagsAndBranches(t *testing.T) {
	ctx := context.Background()
	rec := &recordingNotifier{}
	m := newTestManager(t, func(cfg *ManagerConfig) { cfg.Notifier = rec })

	createVersion(t, m, "doc", "1.0.0", "a\n")
	createVersion(t, m, "doc", "1.1.0", "b\n")

	t.Run("tag missing version", func(t *testing.T) {
		_, err := m.CreateTag(ctx, TagRequest{DocumentID: "doc", VersionLabel: "3.0.0", Name: "v3"})
		assert.True(t, IsNotFound(err))
	})

	t.Run("retag resolves to newest", func(t *testing.T) {
		_, err := m.CreateTag(ctx, TagRequest{DocumentID: "doc", VersionLabel: "1.0.0", Name: "release"})
		require.NoError(t, err)
		_, err = m.CreateTag(ctx, TagRequest{DocumentID: "doc", VersionLabel: "1.1.0", Name: "release"})
		require.NoError(t, err)

		tag, err := m.ResolveTag("doc", "release")
		require.NoError(t, err)
		assert.Equal(t, "1.1.0", tag.VersionLabel)
	})

	t.Run("branch defaults to latest", func(t *testing.T) {
		b, err := m.CreateBranch(ctx, BranchRequest{DocumentID: "doc", Name: "main", Author: "alice"})
		require.NoError(t, err)
		assert.Equal(t, "1.1.0", b.VersionLabel)
		assert.True(t, b.IsActive)
	})

	t.Run("branch from base", func(t *testing.T) {
		b, err := m.CreateBranch(ctx, BranchRequest{DocumentID: "doc", Name: "feature/x", BaseBranch: "main", Author: "bob"})
		require.NoError(t, err)
		assert.Equal(t, "1.1.0", b.VersionLabel)
		assert.Equal(t, "main", b.BaseBranch)
	})

	t.Run("duplicate active branch", func(t *testing.T) {
		_, err := m.CreateBranch(ctx, BranchRequest{DocumentID: "doc", Name: "main", VersionLabel: "1.0.0"})
		assert.True(t, IsValidation(err))
	})

	t.Run("list with glob", func(t *testing.T) {
		branches, err := m.ListBranches("doc", "feature/*", false)
		require.NoError(t, err)
		require.Len(t, branches, 1)
		assert.Equal(t, "feature/x", branches[0].Name)
	})

	t.Run("delete deactivates", func(t *testing.T) {
		_, err := m.DeleteBranch(ctx, "doc", "feature/x", "bob")
		require.NoError(t, err)

		_, err = m.ResolveBranch("doc", "feature/x")
		assert.True(t, IsNotFound(err))

		all, err := m.ListBranches("doc", "", true)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		_, err = m.CreateBranch(ctx, BranchRequest{DocumentID: "doc", Name: "feature/x", VersionLabel: "1.0.0"})
		assert.NoError(t, err)
	})

	kinds := rec.kinds()
	assert.Contains(t, kinds, EventVersionTagged)
	assert.Contains(t, kinds, EventBranchCreated)
	assert.Contains(t, kinds, EventBranchDeleted)
}

func TestManager_MergeBranches(t *testing.T) {
	ctx := context.Background()
	rec := &recordingNotifier{}
	m := newTestManager(t, func(cfg *ManagerConfig) { cfg.Notifier = rec })

	base := createVersion(t, m, "doc", "1.0.0", "A\nY\nC\n")
	_, err := m.CreateBranch(ctx, BranchRequest{DocumentID: "doc", Name: "main"})
	require.NoError(t, err)
	feature := createVersion(t, m, "doc", "1.1.0-feature", "A\nB\nC\n")
	_, err = m.CreateBranch(ctx, BranchRequest{DocumentID: "doc", Name: "feature", VersionLabel: feature.VersionLabel})
	require.NoError(t, err)

	t.Run("reject on conflict records nothing", func(t *testing.T) {
		outcome, err := m.MergeBranches(ctx, MergeRequest{
			DocumentID: "doc", SourceBranch: "feature", TargetBranch: "main", RejectOnConflict: true,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConflictPresent)
		require.NotNil(t, outcome)
		assert.Nil(t, outcome.Commit)
		assert.Len(t, outcome.Conflicts, 1)

		history, err := m.History(ctx, "doc", HistoryOptions{})
		require.NoError(t, err)
		assert.Len(t, history, 2)
	})

	outcome, err := m.MergeBranches(ctx, MergeRequest{
		DocumentID: "doc", SourceBranch: "feature", TargetBranch: "main", Author: "carol",
		VersionLabel: "1.2.0",
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Commit)
	assert.True(t, outcome.NeedsReview)
	require.Len(t, outcome.Conflicts, 1)
	assert.Equal(t, "B", outcome.Conflicts[0].SourceValue)
	assert.Equal(t, "Y", outcome.Conflicts[0].TargetValue)

	merged := outcome.Commit
	assert.Equal(t, "1.2.0", merged.VersionLabel)
	assert.Equal(t, base.ID, merged.ParentID)
	assert.Equal(t, "feature@1.1.0-feature", merged.Metadata.Extra["merged_from"])
	assert.Equal(t, "1", merged.Metadata.Extra["merge_conflicts"])

	content, err := m.GetContent(ctx, "doc", "1.2.0")
	require.NoError(t, err)
	assert.Equal(t, "A\nB\nC\n", string(content))

	head, err := m.ResolveBranch("doc", "main")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", head.VersionLabel)

	t.Run("derived label", func(t *testing.T) {
		out, err := m.MergeBranches(ctx, MergeRequest{
			DocumentID: "doc", SourceBranch: "feature", TargetBranch: "main", Strategy: StrategyReplace,
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out.Commit.VersionLabel, "1.2.0-merge-"), out.Commit.VersionLabel)
		assert.False(t, out.NeedsReview)
	})

	t.Run("self merge", func(t *testing.T) {
		_, err := m.MergeBranches(ctx, MergeRequest{DocumentID: "doc", SourceBranch: "main", TargetBranch: "main"})
		assert.True(t, IsValidation(err))
	})

	t.Run("unknown branch", func(t *testing.T) {
		_, err := m.MergeBranches(ctx, MergeRequest{DocumentID: "doc", SourceBranch: "nope", TargetBranch: "main"})
		assert.True(t, IsNotFound(err))
	})

	assert.Contains(t, rec.kinds(), EventBranchMerged)
}

func TestManager_Rollback(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	rec := &recordingNotifier{}
	m := newTestManager(t, func(cfg *ManagerConfig) {
		cfg.Source = NewFSContentSource(fs, "")
		cfg.Notifier = rec
	})

	require.NoError(t, afero.WriteFile(fs, "/doc1.md", []byte("A\nB\nC\n"), 0644))
	target, err := m.CreateVersion(ctx, CreateVersionRequest{
		DocumentID: "doc1", VersionLabel: "1.0.0", Author: "alice", StoragePath: "/doc1.md",
	})
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/doc1.md", []byte("broken\n"), 0644))
	_, err = m.CreateVersion(ctx, CreateVersionRequest{
		DocumentID: "doc1", VersionLabel: "2.0.0", Author: "alice", StoragePath: "/doc1.md",
	})
	require.NoError(t, err)

	rb, err := m.Rollback(ctx, RollbackRequest{
		DocumentID: "doc1", TargetVersion: "1.0.0", Author: "bob", Reason: "undo breaking change",
	})
	require.NoError(t, err)

	assert.Equal(t, target.ID, rb.ParentID)
	assert.Equal(t, target.ContentHash, rb.ContentHash)
	assert.Equal(t, "bob", rb.Author)
	assert.Equal(t, "Rollback to 1.0.0: undo breaking change", rb.Message)
	assert.True(t, strings.HasPrefix(rb.VersionLabel, "1.0.0-rollback-"), rb.VersionLabel)
	assert.Equal(t, "1.0.0", rb.Metadata.Extra["rollback_of"])

	restored, err := m.GetContent(ctx, "doc1", rb.VersionLabel)
	require.NoError(t, err)
	assert.Equal(t, "A\nB\nC\n", string(restored))

	working, err := afero.ReadFile(fs, "/doc1.md")
	require.NoError(t, err)
	assert.Equal(t, "A\nB\nC\n", string(working))

	history, err := m.History(ctx, "doc1", HistoryOptions{})
	require.NoError(t, err)
	assert.Len(t, history, 3)
	assert.Equal(t, rb.VersionLabel, history[0].VersionLabel)

	t.Run("two rollbacks in a row get distinct labels", func(t *testing.T) {
		again, err := m.Rollback(ctx, RollbackRequest{DocumentID: "doc1", TargetVersion: "1.0.0", Author: "bob"})
		require.NoError(t, err)
		assert.NotEqual(t, rb.VersionLabel, again.VersionLabel)
		assert.Equal(t, "Rollback to 1.0.0", again.Message)
	})

	t.Run("unknown target", func(t *testing.T) {
		_, err := m.Rollback(ctx, RollbackRequest{DocumentID: "doc1", TargetVersion: "0.1.0", Author: "bob"})
		assert.True(t, IsNotFound(err))
	})

	assert.Contains(t, rec.kinds(), EventVersionRolledBack)
}

func TestManager_RollbackMissingBlob(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryBlobStore()
	m := newTestManager(t, func(cfg *ManagerConfig) { cfg.Blobs = blobs })

	c := createVersion(t, m, "doc", "1.0.0", "gone\n")
	createVersion(t, m, "doc", "1.1.0", "here\n")
	require.NoError(t, blobs.Delete(ctx, c.ContentHash))

	_, err := m.Rollback(ctx, RollbackRequest{DocumentID: "doc", TargetVersion: "1.0.0", Author: "bob"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContentUnavailable)

	history, err := m.History(ctx, "doc", HistoryOptions{})
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestManager_Prune(t *testing.T) {
	ctx := context.Background()

	t.Run("keep zero removes everything", func(t *testing.T) {
		m := newTestManager(t)
		for i := 1; i <= 5; i++ {
			createVersion(t, m, "doc1", fmt.Sprintf("1.%d.0", i), fmt.Sprintf("content %d\n", i))
		}

		outcome, err := m.Prune(ctx, "doc1", 0)
		require.NoError(t, err)
		assert.Equal(t, 5, outcome.RemovedCount())
		assert.Equal(t, 5, outcome.BlobsReclaimed)

		history, err := m.History(ctx, "doc1", HistoryOptions{})
		require.NoError(t, err)
		assert.Empty(t, history)

		stats, err := m.Blobs().Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.Count)
	})

	t.Run("keeps newest and shared blobs", func(t *testing.T) {
		m := newTestManager(t)
		createVersion(t, m, "doc", "1", "shared\n")
		createVersion(t, m, "doc", "2", "old\n")
		createVersion(t, m, "doc", "3", "newer\n")
		createVersion(t, m, "other", "1", "shared\n")
		_, err := m.CreateTag(ctx, TagRequest{DocumentID: "doc", VersionLabel: "1", Name: "first"})
		require.NoError(t, err)

		outcome, err := m.Prune(ctx, "doc", 1)
		require.NoError(t, err)
		assert.Equal(t, 2, outcome.RemovedCount())
		assert.Equal(t, 1, outcome.BlobsReclaimed)
		require.Len(t, outcome.DanglingTags, 1)
		assert.Equal(t, "first", outcome.DanglingTags[0].Name)

		content, err := m.GetContent(ctx, "other", "1")
		require.NoError(t, err)
		assert.Equal(t, "shared\n", string(content))

		latest, err := m.History(ctx, "doc", HistoryOptions{})
		require.NoError(t, err)
		require.Len(t, latest, 1)
		assert.Equal(t, "3", latest[0].VersionLabel)
	})

	t.Run("negative keep", func(t *testing.T) {
		m := newTestManager(t)
		_, err := m.Prune(ctx, "doc", -1)
		assert.True(t, IsValidation(err))
	})
}

func TestManager_CancelledContextIsNoop(t *testing.T) {
	m := newTestManager(t)
	createVersion(t, m, "doc", "1.0.0", "a\n")
	_, err := m.CreateBranch(context.Background(), BranchRequest{DocumentID: "doc", Name: "main"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.CreateVersion(ctx, CreateVersionRequest{DocumentID: "doc", VersionLabel: "2.0.0", Content: []byte("b\n")})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = m.CreateTag(ctx, TagRequest{DocumentID: "doc", VersionLabel: "1.0.0", Name: "t"})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = m.Rollback(ctx, RollbackRequest{DocumentID: "doc", TargetVersion: "1.0.0"})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = m.Prune(ctx, "doc", 0)
	assert.ErrorIs(t, err, context.Canceled)

	counts := m.Store().Counts("doc")
	assert.Equal(t, 1, counts.Commits)
	assert.Zero(t, counts.Tags)
}

func TestManager_NotifierFailureIsSwallowed(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		m := newTestManager(t, func(cfg *ManagerConfig) {
			cfg.Notifier = NotifierFunc(func(context.Context, Notification) error {
				return errors.New("bus down")
			})
		})
		c := createVersion(t, m, "doc", "1.0.0", "a\n")
		assert.NotNil(t, c)
	})

	t.Run("panic", func(t *testing.T) {
		m := newTestManager(t, func(cfg *ManagerConfig) {
			cfg.Notifier = NotifierFunc(func(context.Context, Notification) error {
				panic("boom")
			})
		})
		c := createVersion(t, m, "doc", "1.0.0", "a\n")
		assert.NotNil(t, c)
		assert.True(t, m.Store().HasCommit("doc", "1.0.0"))
	})

	t.Run("cancelled caller still delivers", func(t *testing.T) {
		var ctxErr atomic.Value
		m := newTestManager(t, func(cfg *ManagerConfig) {
			cfg.Notifier = NotifierFunc(func(ctx context.Context, _ Notification) error {
				ctxErr.Store(fmt.Sprint(ctx.Err()))
				return nil
			})
		})
		createVersion(t, m, "doc", "1.0.0", "a\n")
		assert.Equal(t, "<nil>", ctxErr.Load())
	})
}

func TestManager_ConcurrentDocuments(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	const docs, versions = 8, 10
	var wg sync.WaitGroup
	errs := make(chan error, docs*versions)
	for d := 0; d < docs; d++ {
		wg.Add(1)
		go func(d int) {
			defer wg.Done()
			doc := fmt.Sprintf("doc-%d", d)
			for v := 0; v < versions; v++ {
				_, err := m.CreateVersion(ctx, CreateVersionRequest{
					DocumentID:   doc,
					VersionLabel: fmt.Sprintf("1.%d.0", v),
					Author:       "worker",
					Content:      []byte(fmt.Sprintf("%s v%d\n", doc, v)),
				})
				if err != nil {
					errs <- err
				}
			}
		}(d)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	for d := 0; d < docs; d++ {
		history, err := m.History(ctx, fmt.Sprintf("doc-%d", d), HistoryOptions{})
		require.NoError(t, err)
		require.Len(t, history, versions)
		// Each commit chains to the one before it.
		for i := 0; i < len(history)-1; i++ {
			assert.Equal(t, history[i+1].ID, history[i].ParentID)
		}
	}
}

func TestManager_ConcurrentSameLabel(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	const writers = 16
	var wg sync.WaitGroup
	var ok, dup atomic.Int32
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.CreateVersion(ctx, CreateVersionRequest{
				DocumentID: "doc", VersionLabel: "1.0.0", Content: []byte(fmt.Sprintf("writer %d\n", i)),
			})
			switch {
			case err == nil:
				ok.Add(1)
			case IsDuplicate(err):
				dup.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(writers-1), dup.Load())
}

func TestManager_Export(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	createVersion(t, m, "doc", "1.0.0", "hello\n")
	_, err := m.CreateTag(ctx, TagRequest{DocumentID: "doc", VersionLabel: "1.0.0", Name: "v1"})
	require.NoError(t, err)

	t.Run("json", func(t *testing.T) {
		out, err := m.Export(ctx, "doc", "1.0.0", ExportJSON)
		require.NoError(t, err)
		assert.Contains(t, string(out), `"version_label": "1.0.0"`)
		assert.Contains(t, string(out), `"content": "hello\n"`)
		assert.Contains(t, string(out), `"v1"`)
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := m.Export(ctx, "doc", "v1", ExportYAML)
		require.NoError(t, err)
		var decoded map[string]any
		require.NoError(t, yaml.Unmarshal(out, &decoded))
		assert.Equal(t, "hello\n", decoded["content"])
	})

	t.Run("text", func(t *testing.T) {
		out, err := m.Export(ctx, "doc", "1.0.0", ExportText)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(out), "# document: doc\n"))
		assert.True(t, strings.HasSuffix(string(out), "\nhello\n"))
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := m.Export(ctx, "doc", "1.0.0", "xml")
		assert.True(t, IsValidation(err))
	})
}

func TestManager_Stats(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	createVersion(t, m, "doc", "1.0.0", "abc\n")
	createVersion(t, m, "doc", "1.1.0", "abcdef\n")

	stats, err := m.Stats(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Counts.Commits)
	assert.Equal(t, "1.1.0", stats.LatestVersion)
	assert.Equal(t, int64(11), stats.TotalBytes)
	assert.Equal(t, 2, stats.Blobs.Count)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	m := newTestManager(t)

	first := createVersion(t, m, "doc", "1.0.0", "a\n")
	second := createVersion(t, m, "doc", "1.1.0", "b\n")
	_, err := m.CreateTag(ctx, TagRequest{DocumentID: "doc", VersionLabel: "1.0.0", Name: "v1"})
	require.NoError(t, err)
	_, err = m.CreateBranch(ctx, BranchRequest{DocumentID: "doc", Name: "main"})
	require.NoError(t, err)

	require.NoError(t, SaveSnapshot(fs, "/state/index.json", m.Store()))

	restored := NewVersionStore()
	require.NoError(t, LoadSnapshot(fs, "/state/index.json", restored))

	got, err := restored.GetCommit("doc", "1.1.0")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, first.ID, got.ParentID)

	root, err := restored.GetCommit("doc", "1.0.0")
	require.NoError(t, err)
	assert.False(t, root.HasParent())

	tag, err := restored.ResolveTag("doc", "v1")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", tag.VersionLabel)

	branch, err := restored.ResolveBranch("doc", "main")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", branch.VersionLabel)

	t.Run("missing file is empty", func(t *testing.T) {
		empty := NewVersionStore()
		require.NoError(t, LoadSnapshot(fs, "/nope/index.json", empty))
		assert.Empty(t, empty.Documents())
	})
}

func TestManager_GeneratedLabelsStayWithinLimit(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	long := strings.Repeat("a", 120)

	base := createVersion(t, m, "doc", long, "A\nY\nC\n")

	t.Run("rollback", func(t *testing.T) {
		createVersion(t, m, "doc", "2", "later\n")
		commit, err := m.Rollback(ctx, RollbackRequest{DocumentID: "doc", TargetVersion: long, Author: "alice"})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(commit.VersionLabel), MaxVersionLabelLen)
		assert.Contains(t, commit.VersionLabel, "-rollback-")
		assert.True(t, strings.HasPrefix(commit.VersionLabel, "aaaa"))
		assert.Equal(t, long, commit.Metadata.Extra["rollback_of"])
		assert.Equal(t, base.ID, commit.ParentID)
	})

	t.Run("merge", func(t *testing.T) {
		_, err := m.CreateBranch(ctx, BranchRequest{DocumentID: "doc", Name: "main", VersionLabel: long})
		require.NoError(t, err)
		_, err = m.CreateBranch(ctx, BranchRequest{DocumentID: "doc", Name: "feature", VersionLabel: "2"})
		require.NoError(t, err)

		outcome, err := m.MergeBranches(ctx, MergeRequest{
			DocumentID: "doc", SourceBranch: "feature", TargetBranch: "main", Strategy: StrategyReplace,
		})
		require.NoError(t, err)
		label := outcome.Commit.VersionLabel
		assert.LessOrEqual(t, len(label), MaxVersionLabelLen)
		assert.Contains(t, label, "-merge-")
		assert.True(t, strings.HasPrefix(label, "aaaa"))
	})
}

func TestDeriveLabel(t *testing.T) {
	taken := map[string]bool{}
	isTaken := func(l string) bool { return taken[l] }

	assert.Equal(t, "1.0.0-x", deriveLabel("1.0.0", "-x", isTaken))

	taken["1.0.0-x"] = true
	taken["1.0.0-x-2"] = true
	assert.Equal(t, "1.0.0-x-3", deriveLabel("1.0.0", "-x", isTaken))

	stem := strings.Repeat("b", MaxVersionLabelLen)
	first := deriveLabel(stem, "-tail", isTaken)
	assert.Len(t, first, MaxVersionLabelLen)
	assert.True(t, strings.HasSuffix(first, "-tail"))
	require.NoError(t, ValidateVersionLabel(first))

	taken[first] = true
	second := deriveLabel(stem, "-tail", isTaken)
	assert.Len(t, second, MaxVersionLabelLen)
	assert.True(t, strings.HasSuffix(second, "-tail-2"))
}
