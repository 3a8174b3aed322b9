package versioning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportYAML ExportFormat = "yaml"
	ExportText ExportFormat = "text"
)

func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", ExportJSON:
		return ExportJSON, nil
	case ExportYAML, "yml":
		return ExportYAML, nil
	case ExportText, "txt", "raw":
		return ExportText, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", ErrValidation, s)
}

// ExportedVersion is a version with its content and the refs pointing at it.
type ExportedVersion struct {
	Commit   *Commit  `json:"commit" yaml:"commit"`
	Content  string   `json:"content" yaml:"content"`
	Tags     []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Branches []string `json:"branches,omitempty" yaml:"branches,omitempty"`
}

// Export renders one version for hand-off outside the store. The text format
// is a comment header followed by the raw content.
func (m *Manager) Export(ctx context.Context, documentID, ref string, format ExportFormat) (out []byte, err error) {
	ctx, finish := startOperation(ctx, "export", documentID, ref)
	defer func() { finish(err) }()

	format, err = ParseExportFormat(string(format))
	if err != nil {
		return nil, err
	}
	commit, err := m.ResolveRef(documentID, ref)
	if err != nil {
		return nil, err
	}
	content, err := m.contentOf(ctx, "export", commit)
	if err != nil {
		return nil, err
	}

	exported := ExportedVersion{Commit: commit, Content: string(content)}
	tags, err := m.store.ListTags(documentID, "")
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		if t.VersionLabel == commit.VersionLabel {
			exported.Tags = append(exported.Tags, t.Name)
		}
	}
	branches, err := m.store.ListBranches(documentID, "", false)
	if err != nil {
		return nil, err
	}
	for _, b := range branches {
		if b.VersionLabel == commit.VersionLabel {
			exported.Branches = append(exported.Branches, b.Name)
		}
	}

	switch format {
	case ExportYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(exported); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	case ExportText:
		return renderTextExport(exported), nil
	default:
		data, err := json.MarshalIndent(exported, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(data, '\n'), nil
	}
}

func renderTextExport(e ExportedVersion) []byte {
	var buf bytes.Buffer
	c := e.Commit
	fmt.Fprintf(&buf, "# document: %s\n", c.DocumentID)
	fmt.Fprintf(&buf, "# version: %s\n", c.VersionLabel)
	fmt.Fprintf(&buf, "# commit: %s\n", c.ID)
	fmt.Fprintf(&buf, "# author: %s\n", c.Author)
	fmt.Fprintf(&buf, "# date: %s\n", c.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
	if len(e.Tags) > 0 {
		fmt.Fprintf(&buf, "# tags: %s\n", strings.Join(e.Tags, ", "))
	}
	if len(e.Branches) > 0 {
		fmt.Fprintf(&buf, "# branches: %s\n", strings.Join(e.Branches, ", "))
	}
	buf.WriteString("\n")
	buf.WriteString(e.Content)
	return buf.Bytes()
}
