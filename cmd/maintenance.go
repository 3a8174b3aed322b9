package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/adalundhe/skillvcs/core/events"
	"github.com/adalundhe/skillvcs/core/versioning"
)

// =============================================================================
// Maintenance Command Flags
// =============================================================================

var (
	exportAs     string
	exportOutput string

	pruneKeep int

	eventsKind     string
	eventsDocument string
	eventsLimit    int
)

// =============================================================================
// Commands
// =============================================================================

var exportCmd = &cobra.Command{
	Use:   "export <document> <ref>",
	Short: "Export a version with its metadata",
	Long: `Export one version as json, yaml or text. The text format is a short
comment header followed by the raw content.`,
	Args: cobra.ExactArgs(2),
	RunE: runExport,
}

var pruneCmd = &cobra.Command{
	Use:   "prune <document>",
	Short: "Remove old versions",
	Long: `Keep the --keep newest versions of a document and remove the rest. Content
no longer referenced by any version is deleted from the blob store. Tags and
branches that pointed at removed versions are reported, not deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrune,
}

var statsCmd = &cobra.Command{
	Use:   "stats [document]",
	Short: "Show repository statistics",
	Long:  `Show version, tag and branch counts and stored bytes for one document or every document.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStats,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the event journal",
	Long:  `Show recorded lifecycle events, newest last.`,
	Args:  cobra.NoArgs,
	RunE:  runEvents,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(eventsCmd)

	exportCmd.Flags().StringVar(&exportAs, "as", "json", "Export format (json, yaml, text)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to a file instead of stdout")

	pruneCmd.Flags().IntVarP(&pruneKeep, "keep", "k", -1, "Number of newest versions to keep (required)")
	_ = pruneCmd.MarkFlagRequired("keep")

	eventsCmd.Flags().StringVar(&eventsKind, "kind", "", "Only show events of this kind (e.g., version_created)")
	eventsCmd.Flags().StringVar(&eventsDocument, "document", "", "Only show events of this document")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 0, "Show at most the last n events")
}

// =============================================================================
// Export
// =============================================================================

func runExport(cmd *cobra.Command, args []string) error {
	format, err := versioning.ParseExportFormat(exportAs)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		out, err := a.manager.Export(ctx, args[0], args[1], format)
		if err != nil {
			return err
		}
		if exportOutput != "" {
			if err := os.WriteFile(exportOutput, out, 0644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s@%s to %s\n", args[0], args[1], exportOutput)
			return nil
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	})
}

// =============================================================================
// Prune
// =============================================================================

func runPrune(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		outcome, err := a.manager.Prune(ctx, args[0], pruneKeep)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if parseOutputFormat(rootFormat) == OutputJSON {
			return outputJSON(out, outcome)
		}
		fmt.Fprintf(out, "Removed %d version(s), reclaimed %d blob(s)\n", outcome.RemovedCount(), outcome.BlobsReclaimed)
		for _, t := range outcome.DanglingTags {
			fmt.Fprintf(out, "  tag %s points at removed version %s\n", t.Name, t.VersionLabel)
		}
		for _, b := range outcome.DanglingBranches {
			fmt.Fprintf(out, "  branch %s points at removed version %s\n", b.Name, b.VersionLabel)
		}
		return nil
	})
}

// =============================================================================
// Stats
// =============================================================================

func runStats(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		documents := args
		if len(documents) == 0 {
			documents = a.manager.Store().Documents()
		}

		all := make([]*versioning.DocumentStats, 0, len(documents))
		for _, doc := range documents {
			stats, err := a.manager.Stats(ctx, doc)
			if err != nil {
				return err
			}
			all = append(all, stats)
		}

		out := cmd.OutOrStdout()
		if parseOutputFormat(rootFormat) == OutputJSON {
			return outputJSON(out, all)
		}
		if len(all) == 0 {
			fmt.Fprintln(out, "No documents found.")
			return nil
		}

		tw := newTable(out, "DOCUMENT", "VERSIONS", "TAGS", "BRANCHES", "LATEST", "BYTES")
		for _, s := range all {
			latest := s.LatestVersion
			if latest == "" {
				latest = "-"
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%d\n",
				s.DocumentID, s.Counts.Commits, s.Counts.Tags, s.Counts.ActiveBranches, latest, s.TotalBytes)
		}
		return tw.Flush()
	})
}

// =============================================================================
// Events
// =============================================================================

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	project := projectDirs(cfg)
	if !project.Exists() {
		return fmt.Errorf("%w at %s (run 'skillvcs init')", errNoRepository, project.Root)
	}

	all, err := events.ReadJournal(afero.NewOsFs(), project.Journal)
	if err != nil {
		return err
	}
	filtered := filterEvents(all, eventsKind, eventsDocument, eventsLimit)

	out := cmd.OutOrStdout()
	switch parseOutputFormat(rootFormat) {
	case OutputJSON:
		return outputJSON(out, filtered)
	case OutputPlain:
		for _, e := range filtered {
			fmt.Fprintf(out, "%s %s %s %s\n", e.Timestamp.Format("2006-01-02T15:04:05Z07:00"), e.Kind, e.DocumentID, e.VersionLabel)
		}
		return nil
	}

	if len(filtered) == 0 {
		fmt.Fprintln(out, "No events recorded.")
		return nil
	}
	tw := newTable(out, "TIME", "KIND", "DOCUMENT", "VERSION", "ACTOR", "DETAILS")
	for _, e := range filtered {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			formatTime(e.Timestamp), e.Kind, e.DocumentID, dash(e.VersionLabel), dash(e.Actor), formatEventData(e.Data))
	}
	return tw.Flush()
}

func filterEvents(all []*events.VersionEvent, kind, document string, limit int) []*events.VersionEvent {
	filtered := make([]*events.VersionEvent, 0, len(all))
	for _, e := range all {
		if kind != "" && string(e.Kind) != kind {
			continue
		}
		if document != "" && e.DocumentID != document {
			continue
		}
		filtered = append(filtered, e)
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered
}

func formatEventData(data map[string]string) string {
	if len(data) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		if k == "commit_id" || k == "content_hash" {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + data[k]
	}
	if len(parts) == 0 {
		return "-"
	}
	return truncateString(strings.Join(parts, " "), 60)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
