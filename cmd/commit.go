package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/adalundhe/skillvcs/core/versioning"
)

// =============================================================================
// Commit Command Flags
// =============================================================================

var (
	commitPath    string
	commitStdin   bool
	commitMessage string
	commitParent  string
	commitStatus  string
	commitMeta    map[string]string

	logSince  string
	logUntil  string
	logAuthor string
	logLimit  int
)

// =============================================================================
// Commands
// =============================================================================

var commitCmd = &cobra.Command{
	Use:   "commit <document> <version>",
	Short: "Record a new version of a document",
	Long: `Record a new immutable version of a document.

Content comes from --path, read relative to the project directory and
remembered so that rollback can restore the working copy, or from stdin
with --stdin. The new version's parent is the document's latest version
unless --parent names another.`,
	Args: cobra.ExactArgs(2),
	RunE: runCommit,
}

var logCmd = &cobra.Command{
	Use:   "log <document>",
	Short: "Show version history",
	Long:  `Show the versions of a document, newest first.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runLog,
}

var showCmd = &cobra.Command{
	Use:   "show <document> <ref>",
	Short: "Print the content of a version",
	Long: `Print the content of a version. The ref may be a version label, a branch
name or a tag name, resolved in that order.`,
	Args: cobra.ExactArgs(2),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(showCmd)

	commitCmd.Flags().StringVarP(&commitPath, "path", "p", "", "Document file, relative to the project directory")
	commitCmd.Flags().BoolVar(&commitStdin, "stdin", false, "Read content from stdin")
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "Commit message")
	commitCmd.Flags().StringVar(&commitParent, "parent", "", "Parent version label (defaults to the latest version)")
	commitCmd.Flags().StringVar(&commitStatus, "status", "", "Version status (draft, active, deprecated)")
	commitCmd.Flags().StringToStringVar(&commitMeta, "meta", nil, "Extra metadata as key=value pairs")

	logCmd.Flags().StringVar(&logSince, "since", "", "Show versions after date (e.g., 24h, 7d, 2024-01-01)")
	logCmd.Flags().StringVar(&logUntil, "until", "", "Show versions before date (e.g., 24h, 2024-01-01)")
	logCmd.Flags().StringVar(&logAuthor, "author", "", "Filter by author glob (e.g., 'alice*')")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 0, "Maximum number of versions to show")
}

// =============================================================================
// Commit
// =============================================================================

func runCommit(cmd *cobra.Command, args []string) error {
	req := versioning.CreateVersionRequest{
		DocumentID:   args[0],
		VersionLabel: args[1],
		Message:      commitMessage,
		StoragePath:  commitPath,
		ParentLabel:  commitParent,
		Status:       versioning.CommitStatus(commitStatus),
		Extra:        commitMeta,
	}

	switch {
	case commitStdin && commitPath != "":
		return fmt.Errorf("--path and --stdin are mutually exclusive")
	case commitStdin:
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		req.Content = content
	case commitPath == "":
		return fmt.Errorf("one of --path or --stdin is required")
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		req.Author = a.author
		commit, err := a.manager.CreateVersion(ctx, req)
		if err != nil {
			return err
		}
		return outputCommit(cmd.OutOrStdout(), commit, parseOutputFormat(rootFormat))
	})
}

// =============================================================================
// Log
// =============================================================================

func runLog(cmd *cobra.Command, args []string) error {
	opts, err := buildHistoryOptions()
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		commits, err := a.manager.History(ctx, args[0], opts)
		if err != nil {
			return err
		}
		return outputCommits(cmd.OutOrStdout(), commits, parseOutputFormat(rootFormat))
	})
}

func buildHistoryOptions() (versioning.HistoryOptions, error) {
	opts := versioning.HistoryOptions{Limit: logLimit, Author: logAuthor}

	if logSince != "" {
		t, err := parseTimeFlag(logSince)
		if err != nil {
			return opts, fmt.Errorf("invalid --since value: %w", err)
		}
		opts.Since = &t
	}
	if logUntil != "" {
		t, err := parseTimeFlag(logUntil)
		if err != nil {
			return opts, fmt.Errorf("invalid --until value: %w", err)
		}
		opts.Until = &t
	}
	return opts, nil
}

// =============================================================================
// Show
// =============================================================================

func runShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		var out []byte
		switch parseOutputFormat(rootFormat) {
		case OutputJSON:
			exported, err := a.manager.Export(ctx, args[0], args[1], versioning.ExportJSON)
			if err != nil {
				return err
			}
			out = exported
		case OutputPlain:
			exported, err := a.manager.Export(ctx, args[0], args[1], versioning.ExportText)
			if err != nil {
				return err
			}
			out = exported
		default:
			commit, err := a.manager.ResolveRef(args[0], args[1])
			if err != nil {
				return err
			}
			if out, err = a.manager.GetContent(ctx, args[0], commit.VersionLabel); err != nil {
				return err
			}
		}
		_, err := cmd.OutOrStdout().Write(out)
		return err
	})
}

// =============================================================================
// Time Parsing
// =============================================================================

// parseTimeFlag accepts an absolute date or a duration relative to now
// ("24h", "7d", "2w", "3m", "1y").
func parseTimeFlag(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return parseRelativeTime(s, time.Now())
}

func parseRelativeTime(s string, now time.Time) (time.Time, error) {
	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("unsupported duration format: %s", s)
	}

	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return time.Time{}, fmt.Errorf("unsupported duration format: %s", s)
	}

	switch unit {
	case 'h':
		return now.Add(-time.Duration(n) * time.Hour), nil
	case 'd':
		return now.AddDate(0, 0, -n), nil
	case 'w':
		return now.AddDate(0, 0, -n*7), nil
	case 'm':
		return now.AddDate(0, -n, 0), nil
	case 'y':
		return now.AddDate(-n, 0, 0), nil
	}
	return time.Time{}, fmt.Errorf("unsupported duration format: %s", s)
}
