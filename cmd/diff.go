package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adalundhe/skillvcs/core/versioning"
)

var (
	diffMode  string
	diffFiles bool
)

var diffCmd = &cobra.Command{
	Use:   "diff <document> <from> <to>",
	Short: "Compare two versions",
	Long: `Compare two versions of a document. Refs may be version labels, branch
names or tag names.

With --files, the two arguments are file paths compared directly; no
repository is needed.

Modes:
  unified       - unified diff with context lines (default)
  side-by-side  - two aligned columns
  inline        - one column with [-deleted-] and {+added+} markers`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().StringVar(&diffMode, "mode", "", "Diff mode (unified, side-by-side, inline); defaults to config")
	diffCmd.Flags().BoolVar(&diffFiles, "files", false, "Compare two files on disk instead of stored versions")
}

func runDiff(cmd *cobra.Command, args []string) error {
	if diffFiles {
		if len(args) != 2 {
			return fmt.Errorf("diff --files needs <from-file> <to-file>")
		}
		cmp, err := compareFiles(args[0], args[1])
		if err != nil {
			return err
		}
		return outputComparison(cmd.OutOrStdout(), cmp, parseOutputFormat(rootFormat))
	}
	if len(args) != 3 {
		return fmt.Errorf("diff needs <document> <from> <to>")
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		cmp, err := a.manager.Compare(ctx, args[0], args[1], args[2], versioning.DiffMode(diffMode))
		if err != nil {
			return err
		}
		return outputComparison(cmd.OutOrStdout(), cmp, parseOutputFormat(rootFormat))
	})
}

func compareFiles(fromPath, toPath string) (*versioning.Comparison, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	mode := diffMode
	if mode == "" {
		mode = cfg.Diff.DefaultMode
	}
	parsed, err := versioning.ParseDiffMode(mode)
	if err != nil {
		return nil, err
	}

	from, err := os.ReadFile(fromPath)
	if err != nil {
		return nil, err
	}
	to, err := os.ReadFile(toPath)
	if err != nil {
		return nil, err
	}
	return versioning.NewDiffEngine(cfg.Diff.ContextLines).CompareLabeled(fromPath, toPath, from, to, parsed)
}
