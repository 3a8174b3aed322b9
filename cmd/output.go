package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/adalundhe/skillvcs/core/versioning"
)

// =============================================================================
// Output Format Type
// =============================================================================

// OutputFormat selects how commands render their results.
type OutputFormat string

const (
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
	OutputPlain OutputFormat = "plain"
)

func parseOutputFormat(s string) OutputFormat {
	switch strings.ToLower(s) {
	case "json":
		return OutputJSON
	case "plain":
		return OutputPlain
	default:
		return OutputTable
	}
}

func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func newTable(w io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	rules := make([]string, len(headers))
	for i, h := range headers {
		rules[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(rules, "\t"))
	return tw
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// =============================================================================
// Commits
// =============================================================================

func outputCommits(w io.Writer, commits []*versioning.Commit, format OutputFormat) error {
	if format == OutputJSON {
		return outputJSON(w, commits)
	}
	if len(commits) == 0 {
		fmt.Fprintln(w, "No versions found.")
		return nil
	}
	if format == OutputPlain {
		for _, c := range commits {
			outputCommitPlain(w, c)
		}
		return nil
	}

	tw := newTable(w, "VERSION", "COMMIT", "PARENT", "AUTHOR", "DATE", "MESSAGE")
	for _, c := range commits {
		parent := "-"
		if c.HasParent() {
			parent = c.ParentID.Short()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.VersionLabel,
			c.ID.Short(),
			parent,
			truncateString(c.Author, 20),
			formatTime(c.Timestamp),
			truncateString(firstLine(c.Message), 50),
		)
	}
	return tw.Flush()
}

func outputCommitPlain(w io.Writer, c *versioning.Commit) {
	fmt.Fprintf(w, "version %s\n", c.VersionLabel)
	fmt.Fprintf(w, "commit  %s\n", c.ID)
	if c.HasParent() {
		fmt.Fprintf(w, "parent  %s\n", c.ParentID)
	}
	fmt.Fprintf(w, "Author: %s\n", c.Author)
	fmt.Fprintf(w, "Date:   %s\n", c.Timestamp.Format(time.RFC1123))
	if name := c.Metadata.Extra["skill_name"]; name != "" {
		fmt.Fprintf(w, "Skill:  %s\n", name)
	}
	fmt.Fprintf(w, "\n    %s\n\n", strings.ReplaceAll(strings.TrimRight(c.Message, "\n"), "\n", "\n    "))
}

func outputCommit(w io.Writer, c *versioning.Commit, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return outputJSON(w, c)
	case OutputPlain:
		outputCommitPlain(w, c)
		return nil
	}
	fmt.Fprintf(w, "Created %s (%s)\n", c.VersionLabel, c.ID.Short())
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// =============================================================================
// Refs
// =============================================================================

func outputTags(w io.Writer, tags []versioning.Tag, format OutputFormat) error {
	if format == OutputJSON {
		return outputJSON(w, tags)
	}
	if len(tags) == 0 {
		fmt.Fprintln(w, "No tags found.")
		return nil
	}
	if format == OutputPlain {
		for _, t := range tags {
			fmt.Fprintf(w, "%s %s\n", t.Name, t.VersionLabel)
		}
		return nil
	}

	tw := newTable(w, "TAG", "VERSION", "CREATED BY", "DATE", "MESSAGE")
	for _, t := range tags {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			t.Name, t.VersionLabel, t.CreatedBy, formatTime(t.CreatedAt), truncateString(t.Message, 40))
	}
	return tw.Flush()
}

func outputBranches(w io.Writer, branches []versioning.Branch, format OutputFormat) error {
	if format == OutputJSON {
		return outputJSON(w, branches)
	}
	if len(branches) == 0 {
		fmt.Fprintln(w, "No branches found.")
		return nil
	}
	if format == OutputPlain {
		for _, b := range branches {
			fmt.Fprintf(w, "%s %s\n", b.Name, b.VersionLabel)
		}
		return nil
	}

	tw := newTable(w, "BRANCH", "HEAD", "BASE", "ACTIVE", "UPDATED")
	for _, b := range branches {
		base := b.BaseBranch
		if base == "" {
			base = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", b.Name, b.VersionLabel, base, b.IsActive, formatTime(b.UpdatedAt))
	}
	return tw.Flush()
}

// =============================================================================
// Comparisons and merges
// =============================================================================

func outputComparison(w io.Writer, cmp *versioning.Comparison, format OutputFormat) error {
	if format == OutputJSON {
		return outputJSON(w, cmp)
	}
	if cmp.Identical() {
		fmt.Fprintf(w, "%s and %s are identical.\n", cmp.FromVersion, cmp.ToVersion)
		return nil
	}
	fmt.Fprint(w, cmp.Text)
	if !strings.HasSuffix(cmp.Text, "\n") {
		fmt.Fprintln(w)
	}
	if format == OutputTable {
		s := cmp.Summary
		fmt.Fprintf(w, "\n%d added, %d deleted", s.Added, s.Deleted)
		if s.Modified > 0 {
			fmt.Fprintf(w, ", %d modified", s.Modified)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func outputMerge(w io.Writer, outcome *versioning.MergeOutcome, format OutputFormat) error {
	if format == OutputJSON {
		return outputJSON(w, outcome)
	}
	if outcome.Commit != nil {
		fmt.Fprintf(w, "Merged into %s (%s) using %s\n",
			outcome.Commit.VersionLabel, outcome.Commit.ID.Short(), outcome.Strategy)
	}
	if len(outcome.Conflicts) == 0 {
		return nil
	}

	fmt.Fprintf(w, "%d conflict(s) need review:\n", len(outcome.Conflicts))
	tw := newTable(w, "LOCATION", "KIND", "SOURCE", "TARGET")
	for _, c := range outcome.Conflicts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			c.Location, c.Kind, truncateString(c.SourceValue, 40), truncateString(c.TargetValue, 40))
	}
	return tw.Flush()
}
