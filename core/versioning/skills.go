package versioning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adalundhe/skillvcs/core/skills"
)

const skillDomain = "versioning"

// VersioningSkills exposes Manager operations as agent-invocable skills.
type VersioningSkills struct {
	manager *Manager
	author  string
}

// NewVersioningSkills binds the skills to m. author is used when an input
// does not name one.
func NewVersioningSkills(m *Manager, author string) *VersioningSkills {
	return &VersioningSkills{manager: m, author: author}
}

func (vs *VersioningSkills) RegisterSkills(registry *skills.Registry) error {
	for _, skill := range vs.buildSkillDefinitions() {
		if err := registry.Register(skill); err != nil {
			return fmt.Errorf("failed to register skill %s: %w", skill.Name, err)
		}
	}
	return nil
}

func (vs *VersioningSkills) buildSkillDefinitions() []*skills.Skill {
	return []*skills.Skill{
		skills.NewSkill("create_version").
			Description("Record a new version of a document. Content is stored once per unique hash.").
			Domain(skillDomain).
			StringParam("document_id", "Document to version", true).
			StringParam("version_label", "Unique label for the new version", true).
			StringParam("content", "Full document content", false).
			StringParam("storage_path", "Path to read content from when content is omitted", false).
			StringParam("message", "Commit message", false).
			StringParam("author", "Commit author", false).
			Handler(vs.handleCreateVersion).
			Build(),
		skills.NewSkill("create_tag").
			Description("Attach a named tag to an existing version.").
			Domain(skillDomain).
			StringParam("document_id", "Document", true).
			StringParam("version_label", "Version to tag", true).
			StringParam("tag_name", "Tag name", true).
			StringParam("message", "Tag message", false).
			Handler(vs.handleCreateTag).
			Build(),
		skills.NewSkill("create_branch").
			Description("Create a branch at a version, at the head of a base branch, or at the latest version.").
			Domain(skillDomain).
			StringParam("document_id", "Document", true).
			StringParam("branch_name", "Name of the new branch", true).
			StringParam("version_label", "Branch head", false).
			StringParam("base_branch", "Branch to start from", false).
			Handler(vs.handleCreateBranch).
			Build(),
		skills.NewSkill("list_branches").
			Description("List the branches of a document.").
			Domain(skillDomain).
			StringParam("document_id", "Document", true).
			StringParam("pattern", "Glob filter on branch names", false).
			BoolParam("include_inactive", "Include deleted branches", false).
			Handler(vs.handleListBranches).
			Build(),
		skills.NewSkill("merge_branches").
			Description("Merge the head of one branch into another and advance the target branch.").
			Domain(skillDomain).
			StringParam("document_id", "Document", true).
			StringParam("source_branch", "Branch to merge from", true).
			StringParam("target_branch", "Branch to merge into", true).
			EnumParam("strategy", "Merge strategy", []string{string(StrategyMerge), string(StrategyReplace), string(StrategyKeepBoth)}, false).
			StringParam("message", "Merge commit message", false).
			BoolParam("reject_on_conflict", "Abort instead of committing when conflicts occur", false).
			Handler(vs.handleMergeBranches).
			Build(),
		skills.NewSkill("compare_versions").
			Description("Diff two versions, branches or tags of a document.").
			Domain(skillDomain).
			StringParam("document_id", "Document", true).
			StringParam("from", "Older ref", true).
			StringParam("to", "Newer ref", true).
			EnumParam("mode", "Rendering", []string{string(DiffModeUnified), string(DiffModeSideBySide), string(DiffModeInline)}, false).
			Handler(vs.handleCompare).
			Build(),
		skills.NewSkill("rollback_version").
			Description("Restore an earlier version by recording a new version with its content. History is preserved.").
			Domain(skillDomain).
			StringParam("document_id", "Document", true).
			StringParam("target_version", "Version to restore", true).
			StringParam("reason", "Why the rollback is needed", false).
			Handler(vs.handleRollback).
			Build(),
		skills.NewSkill("get_history").
			Description("List versions of a document, newest first.").
			Domain(skillDomain).
			StringParam("document_id", "Document", true).
			IntParam("limit", "Maximum number of versions", false).
			StringParam("author", "Glob filter on author", false).
			Handler(vs.handleGetHistory).
			Build(),
		skills.NewSkill("export_version").
			Description("Export a version with its content.").
			Domain(skillDomain).
			StringParam("document_id", "Document", true).
			StringParam("ref", "Version, branch or tag", true).
			EnumParam("format", "Output format", []string{string(ExportJSON), string(ExportYAML), string(ExportText)}, false).
			Handler(vs.handleExport).
			Build(),
		skills.NewSkill("prune_versions").
			Description("Keep only the newest versions of a document and reclaim unreferenced content.").
			Domain(skillDomain).
			StringParam("document_id", "Document", true).
			IntParam("keep", "Number of newest versions to keep", true).
			Handler(vs.handlePrune).
			Build(),
	}
}

func (vs *VersioningSkills) authorOr(name string) string {
	if name != "" {
		return name
	}
	return vs.author
}

type commitSummary struct {
	DocumentID   string `json:"document_id"`
	VersionLabel string `json:"version_label"`
	CommitID     string `json:"commit_id"`
	Parent       string `json:"parent_commit_id,omitempty"`
	ContentHash  string `json:"content_hash"`
	Author       string `json:"author"`
	Message      string `json:"message"`
	Timestamp    string `json:"timestamp"`
}

func summarize(c *Commit) commitSummary {
	s := commitSummary{
		DocumentID:   c.DocumentID,
		VersionLabel: c.VersionLabel,
		CommitID:     c.ID.String(),
		ContentHash:  c.ContentHash.String(),
		Author:       c.Author,
		Message:      c.Message,
		Timestamp:    c.Timestamp.Format(time.RFC3339),
	}
	if c.HasParent() {
		s.Parent = c.ParentID.String()
	}
	return s
}

func (vs *VersioningSkills) handleCreateVersion(ctx context.Context, input json.RawMessage) (any, error) {
	in, err := skills.Decode[struct {
		DocumentID   string  `json:"document_id"`
		VersionLabel string  `json:"version_label"`
		Content      *string `json:"content"`
		StoragePath  string  `json:"storage_path"`
		Message      string  `json:"message"`
		Author       string  `json:"author"`
	}](input)
	if err != nil {
		return nil, err
	}

	req := CreateVersionRequest{
		DocumentID:   in.DocumentID,
		VersionLabel: in.VersionLabel,
		Message:      in.Message,
		Author:       vs.authorOr(in.Author),
		StoragePath:  in.StoragePath,
	}
	if in.Content != nil {
		req.Content = []byte(*in.Content)
	}
	c, err := vs.manager.CreateVersion(ctx, req)
	if err != nil {
		return nil, err
	}
	return summarize(c), nil
}

func (vs *VersioningSkills) handleCreateTag(ctx context.Context, input json.RawMessage) (any, error) {
	in, err := skills.Decode[struct {
		DocumentID   string `json:"document_id"`
		VersionLabel string `json:"version_label"`
		TagName      string `json:"tag_name"`
		Message      string `json:"message"`
	}](input)
	if err != nil {
		return nil, err
	}
	return vs.manager.CreateTag(ctx, TagRequest{
		DocumentID:   in.DocumentID,
		VersionLabel: in.VersionLabel,
		Name:         in.TagName,
		Message:      in.Message,
		Author:       vs.author,
	})
}

func (vs *VersioningSkills) handleCreateBranch(ctx context.Context, input json.RawMessage) (any, error) {
	in, err := skills.Decode[struct {
		DocumentID   string `json:"document_id"`
		BranchName   string `json:"branch_name"`
		VersionLabel string `json:"version_label"`
		BaseBranch   string `json:"base_branch"`
	}](input)
	if err != nil {
		return nil, err
	}
	return vs.manager.CreateBranch(ctx, BranchRequest{
		DocumentID:   in.DocumentID,
		VersionLabel: in.VersionLabel,
		Name:         in.BranchName,
		BaseBranch:   in.BaseBranch,
		Author:       vs.author,
	})
}

func (vs *VersioningSkills) handleListBranches(_ context.Context, input json.RawMessage) (any, error) {
	in, err := skills.Decode[struct {
		DocumentID      string `json:"document_id"`
		Pattern         string `json:"pattern"`
		IncludeInactive bool   `json:"include_inactive"`
	}](input)
	if err != nil {
		return nil, err
	}
	return vs.manager.ListBranches(in.DocumentID, in.Pattern, in.IncludeInactive)
}

func (vs *VersioningSkills) handleMergeBranches(ctx context.Context, input json.RawMessage) (any, error) {
	in, err := skills.Decode[struct {
		DocumentID       string `json:"document_id"`
		SourceBranch     string `json:"source_branch"`
		TargetBranch     string `json:"target_branch"`
		Strategy         string `json:"strategy"`
		Message          string `json:"message"`
		RejectOnConflict bool   `json:"reject_on_conflict"`
	}](input)
	if err != nil {
		return nil, err
	}
	return vs.manager.MergeBranches(ctx, MergeRequest{
		DocumentID:       in.DocumentID,
		SourceBranch:     in.SourceBranch,
		TargetBranch:     in.TargetBranch,
		Strategy:         MergeStrategy(in.Strategy),
		Author:           vs.author,
		Message:          in.Message,
		RejectOnConflict: in.RejectOnConflict,
	})
}

func (vs *VersioningSkills) handleCompare(ctx context.Context, input json.RawMessage) (any, error) {
	in, err := skills.Decode[struct {
		DocumentID string `json:"document_id"`
		From       string `json:"from"`
		To         string `json:"to"`
		Mode       string `json:"mode"`
	}](input)
	if err != nil {
		return nil, err
	}
	cmp, err := vs.manager.Compare(ctx, in.DocumentID, in.From, in.To, DiffMode(in.Mode))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"from":    cmp.FromVersion,
		"to":      cmp.ToVersion,
		"mode":    cmp.Mode,
		"summary": cmp.Summary,
		"diff":    cmp.Text,
	}, nil
}

func (vs *VersioningSkills) handleRollback(ctx context.Context, input json.RawMessage) (any, error) {
	in, err := skills.Decode[struct {
		DocumentID    string `json:"document_id"`
		TargetVersion string `json:"target_version"`
		Reason        string `json:"reason"`
	}](input)
	if err != nil {
		return nil, err
	}
	c, err := vs.manager.Rollback(ctx, RollbackRequest{
		DocumentID:    in.DocumentID,
		TargetVersion: in.TargetVersion,
		Author:        vs.author,
		Reason:        in.Reason,
	})
	if err != nil {
		return nil, err
	}
	return summarize(c), nil
}

func (vs *VersioningSkills) handleGetHistory(ctx context.Context, input json.RawMessage) (any, error) {
	in, err := skills.Decode[struct {
		DocumentID string `json:"document_id"`
		Limit      int    `json:"limit"`
		Author     string `json:"author"`
	}](input)
	if err != nil {
		return nil, err
	}
	history, err := vs.manager.History(ctx, in.DocumentID, HistoryOptions{Limit: in.Limit, Author: in.Author})
	if err != nil {
		return nil, err
	}
	out := make([]commitSummary, len(history))
	for i, c := range history {
		out[i] = summarize(c)
	}
	return out, nil
}

func (vs *VersioningSkills) handleExport(ctx context.Context, input json.RawMessage) (any, error) {
	in, err := skills.Decode[struct {
		DocumentID string `json:"document_id"`
		Ref        string `json:"ref"`
		Format     string `json:"format"`
	}](input)
	if err != nil {
		return nil, err
	}
	out, err := vs.manager.Export(ctx, in.DocumentID, in.Ref, ExportFormat(in.Format))
	if err != nil {
		return nil, err
	}
	return string(out), nil
}

func (vs *VersioningSkills) handlePrune(ctx context.Context, input json.RawMessage) (any, error) {
	in, err := skills.Decode[struct {
		DocumentID string `json:"document_id"`
		Keep       *int   `json:"keep"`
	}](input)
	if err != nil {
		return nil, err
	}
	if in.Keep == nil {
		return nil, fmt.Errorf("%w: keep is required", ErrValidation)
	}
	outcome, err := vs.manager.Prune(ctx, in.DocumentID, *in.Keep)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"removed":           outcome.RemovedCount(),
		"blobs_reclaimed":   outcome.BlobsReclaimed,
		"dangling_tags":     len(outcome.DanglingTags),
		"dangling_branches": len(outcome.DanglingBranches),
	}, nil
}
