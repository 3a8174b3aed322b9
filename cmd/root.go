// Package cmd provides the skillvcs command line interface.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// =============================================================================
// Global Flags
// =============================================================================

var (
	rootRepo     string
	rootAuthor   string
	rootFormat   string
	rootLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "skillvcs",
	Short: "skillvcs - version control for skill documents",
	Long: `skillvcs records versions of skill documents, compares them, merges branches
and rolls back to earlier content without ever rewriting history.

Examples:
  skillvcs init
  skillvcs commit pdf-skill 1.0.0 --file skills/pdf/SKILL.md -m "initial"
  skillvcs log pdf-skill
  skillvcs diff pdf-skill 1.0.0 1.1.0 --mode side-by-side
  skillvcs rollback pdf-skill 1.0.0 --reason "regression in 1.1.0"`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootRepo, "repo", ".", "Project directory holding the .skillvcs repository")
	rootCmd.PersistentFlags().StringVar(&rootAuthor, "author", "", "Author recorded on new commits (defaults to config, then $USER)")
	rootCmd.PersistentFlags().StringVarP(&rootFormat, "format", "f", "table", "Output format (table, json, plain)")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level override (debug, info, warn, error)")
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
