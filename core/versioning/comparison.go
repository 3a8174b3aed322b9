package versioning

import (
	"fmt"
	"strings"
	"unicode/utf8"

	godiff "github.com/sourcegraph/go-diff/diff"
)

type DiffMode string

const (
	DiffModeUnified    DiffMode = "unified"
	DiffModeSideBySide DiffMode = "side-by-side"
	DiffModeInline     DiffMode = "inline"
)

func ParseDiffMode(s string) (DiffMode, error) {
	switch DiffMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DiffModeUnified:
		return DiffModeUnified, nil
	case DiffModeSideBySide, "sidebyside", "side_by_side":
		return DiffModeSideBySide, nil
	case DiffModeInline:
		return DiffModeInline, nil
	}
	return "", fmt.Errorf("%w: unknown diff mode %q", ErrValidation, s)
}

// DiffSummary counts every added line and every deleted line, so a replaced
// line counts once in each. Modified counts delete/add pairs that the
// side-by-side and inline modes show as one row; unified leaves it zero.
type DiffSummary struct {
	Added    int `json:"added"`
	Deleted  int `json:"deleted"`
	Modified int `json:"modified"`
}

func (s DiffSummary) IsZero() bool {
	return s == DiffSummary{}
}

type RowKind string

const (
	RowContext  RowKind = "context"
	RowAdded    RowKind = "added"
	RowDeleted  RowKind = "deleted"
	RowModified RowKind = "modified"
)

// DiffRow is one aligned row of a side-by-side or inline rendering.
type DiffRow struct {
	Kind  RowKind   `json:"kind"`
	Left  *DiffLine `json:"left,omitempty"`
	Right *DiffLine `json:"right,omitempty"`
}

type ComparisonEntry struct {
	OldStart int        `json:"old_start"`
	OldCount int        `json:"old_count"`
	NewStart int        `json:"new_start"`
	NewCount int        `json:"new_count"`
	Lines    []DiffLine `json:"lines"`
	Rows     []DiffRow  `json:"rows,omitempty"`
}

// Comparison is the derived, non-persistent result of diffing two versions.
type Comparison struct {
	FromVersion string            `json:"from_version"`
	ToVersion   string            `json:"to_version"`
	Mode        DiffMode          `json:"mode"`
	Entries     []ComparisonEntry `json:"entries"`
	Summary     DiffSummary       `json:"summary"`
	Text        string            `json:"text"`
}

func (c *Comparison) Identical() bool {
	return len(c.Entries) == 0
}

type DiffEngine struct {
	differ *MyersDiffer
}

func NewDiffEngine(contextLines int) *DiffEngine {
	return &DiffEngine{differ: NewMyersDiffer(contextLines)}
}

func (e *DiffEngine) ContextLines() int {
	return e.differ.ContextLines
}

func (e *DiffEngine) Compare(from, to []byte, mode DiffMode) (*Comparison, error) {
	return e.CompareLabeled("a", "b", from, to, mode)
}

// CompareLabeled is Compare with the version names used in headers.
func (e *DiffEngine) CompareLabeled(fromLabel, toLabel string, from, to []byte, mode DiffMode) (*Comparison, error) {
	mode, err := ParseDiffMode(string(mode))
	if err != nil {
		return nil, err
	}

	fd := e.differ.DiffBytes(from, to)
	cmp := &Comparison{
		FromVersion: fromLabel,
		ToVersion:   toLabel,
		Mode:        mode,
		Entries:     make([]ComparisonEntry, 0, len(fd.Hunks)),
		Summary: DiffSummary{
			Added:   fd.Stats.Additions,
			Deleted: fd.Stats.Deletions,
		},
	}

	for _, h := range fd.Hunks {
		entry := ComparisonEntry{
			OldStart: h.OldStart,
			OldCount: h.OldCount,
			NewStart: h.NewStart,
			NewCount: h.NewCount,
			Lines:    h.Lines,
		}
		if mode != DiffModeUnified {
			entry.Rows = alignRows(h.Lines)
			for _, row := range entry.Rows {
				if row.Kind == RowModified {
					cmp.Summary.Modified++
				}
			}
		}
		cmp.Entries = append(cmp.Entries, entry)
	}

	if cmp.Identical() {
		return cmp, nil
	}

	switch mode {
	case DiffModeSideBySide:
		cmp.Text = renderSideBySide(cmp)
	case DiffModeInline:
		cmp.Text = renderInline(cmp)
	default:
		text, err := renderUnified(cmp, fd.Hunks)
		if err != nil {
			return nil, err
		}
		cmp.Text = text
	}
	return cmp, nil
}

// alignRows pairs each run of deletions with the run of additions that
// follows it. Paired lines become modified rows; the excess stays one-sided.
func alignRows(lines []DiffLine) []DiffRow {
	rows := make([]DiffRow, 0, len(lines))

	for i := 0; i < len(lines); {
		if lines[i].Type == DiffLineContext {
			line := lines[i]
			rows = append(rows, DiffRow{Kind: RowContext, Left: &line, Right: &line})
			i++
			continue
		}

		var dels, adds []DiffLine
		for i < len(lines) && lines[i].Type == DiffLineDelete {
			dels = append(dels, lines[i])
			i++
		}
		for i < len(lines) && lines[i].Type == DiffLineAdd {
			adds = append(adds, lines[i])
			i++
		}

		paired := min(len(dels), len(adds))
		for j := range paired {
			rows = append(rows, DiffRow{Kind: RowModified, Left: &dels[j], Right: &adds[j]})
		}
		for j := paired; j < len(dels); j++ {
			rows = append(rows, DiffRow{Kind: RowDeleted, Left: &dels[j]})
		}
		for j := paired; j < len(adds); j++ {
			rows = append(rows, DiffRow{Kind: RowAdded, Right: &adds[j]})
		}
	}
	return rows
}

func renderUnified(cmp *Comparison, hunks []DiffHunk) (string, error) {
	fd := &godiff.FileDiff{
		OrigName: cmp.FromVersion,
		NewName:  cmp.ToVersion,
		Hunks:    make([]*godiff.Hunk, 0, len(hunks)),
	}

	for _, h := range hunks {
		var body strings.Builder
		for _, line := range h.Lines {
			body.WriteString(line.Type.Prefix())
			body.WriteString(line.Content)
			body.WriteByte('\n')
		}
		fd.Hunks = append(fd.Hunks, &godiff.Hunk{
			OrigStartLine: int32(h.OldStart),
			OrigLines:     int32(h.OldCount),
			NewStartLine:  int32(h.NewStart),
			NewLines:      int32(h.NewCount),
			Body:          []byte(body.String()),
		})
	}

	out, err := godiff.PrintFileDiff(fd)
	if err != nil {
		return "", fmt.Errorf("render unified diff: %w", err)
	}
	return string(out), nil
}

const sideBySideMaxWidth = 60

var rowMarkers = map[RowKind]string{
	RowContext:  " ",
	RowAdded:    ">",
	RowDeleted:  "<",
	RowModified: "|",
}

func renderSideBySide(cmp *Comparison) string {
	width := 0
	for _, entry := range cmp.Entries {
		for _, row := range entry.Rows {
			if row.Left != nil {
				width = max(width, utf8.RuneCountInString(row.Left.Content))
			}
		}
	}
	width = min(width, sideBySideMaxWidth)

	var b strings.Builder
	fmt.Fprintf(&b, "%s%s | %s\n", cmp.FromVersion, pad(width-utf8.RuneCountInString(cmp.FromVersion)), cmp.ToVersion)
	for i, entry := range cmp.Entries {
		if i > 0 {
			b.WriteString("...\n")
		}
		for _, row := range entry.Rows {
			left, right := "", ""
			if row.Left != nil {
				left = truncate(row.Left.Content, width)
			}
			if row.Right != nil {
				right = row.Right.Content
			}
			fmt.Fprintf(&b, "%s%s %s %s\n", left, pad(width-utf8.RuneCountInString(left)), rowMarkers[row.Kind], right)
		}
	}
	return b.String()
}

func renderInline(cmp *Comparison) string {
	var b strings.Builder
	for i, entry := range cmp.Entries {
		if i > 0 {
			b.WriteString("...\n")
		}
		for _, row := range entry.Rows {
			switch row.Kind {
			case RowContext:
				b.WriteString(row.Left.Content)
			case RowDeleted:
				fmt.Fprintf(&b, "[-%s-]", row.Left.Content)
			case RowAdded:
				fmt.Fprintf(&b, "{+%s+}", row.Right.Content)
			case RowModified:
				fmt.Fprintf(&b, "[-%s-]{+%s+}", row.Left.Content, row.Right.Content)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func pad(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(" ", n)
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	if width <= 1 {
		return string(runes[:width])
	}
	return string(runes[:width-1]) + "~"
}
