package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adalundhe/skillvcs/core/versioning"
)

var (
	mergeStrategy string
	mergeMessage  string
	mergeLabel    string
	mergeReject   bool

	rollbackReason string
)

var mergeCmd = &cobra.Command{
	Use:   "merge <document> <source-branch> <target-branch>",
	Short: "Merge one branch into another",
	Long: `Merge the head of the source branch into the head of the target branch,
record the result on the target branch and advance it.

Strategies:
  merge      - line merge; conflicting lines take the source side (default)
  replace    - take the source content as is
  keep-both  - keep both contents, separated by labeled markers

Conflicts are committed and reported for review unless --reject-on-conflict
is set or the config enables merge.reject_on_conflict.`,
	Args: cobra.ExactArgs(3),
	RunE: runMerge,
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <document> <version>",
	Short: "Restore an earlier version as a new version",
	Long: `Record a new version whose content equals the given version. History is
never rewritten: the target and everything after it stay in place. When the
document was committed from a file, the working copy is restored too.`,
	Args: cobra.ExactArgs(2),
	RunE: runRollback,
}

func init() {
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(rollbackCmd)

	mergeCmd.Flags().StringVarP(&mergeStrategy, "strategy", "s", "", "Merge strategy (merge, replace, keep-both); defaults to config")
	mergeCmd.Flags().StringVarP(&mergeMessage, "message", "m", "", "Merge commit message")
	mergeCmd.Flags().StringVar(&mergeLabel, "label", "", "Version label of the merge commit (derived when empty)")
	mergeCmd.Flags().BoolVar(&mergeReject, "reject-on-conflict", false, "Abort without committing when conflicts are found")

	rollbackCmd.Flags().StringVarP(&rollbackReason, "reason", "r", "", "Why the rollback is needed (required)")
	_ = rollbackCmd.MarkFlagRequired("reason")
}

func runMerge(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		strategy := mergeStrategy
		if strategy == "" {
			strategy = a.cfg.Merge.DefaultStrategy
		}

		outcome, err := a.manager.MergeBranches(ctx, versioning.MergeRequest{
			DocumentID:       args[0],
			SourceBranch:     args[1],
			TargetBranch:     args[2],
			Strategy:         versioning.MergeStrategy(strategy),
			Author:           a.author,
			Message:          mergeMessage,
			VersionLabel:     mergeLabel,
			RejectOnConflict: mergeReject || a.cfg.Merge.RejectOnConflict,
		})
		if errors.Is(err, versioning.ErrConflictPresent) && outcome != nil {
			if outErr := outputMerge(cmd.OutOrStdout(), outcome, parseOutputFormat(rootFormat)); outErr != nil {
				return outErr
			}
			return err
		}
		if err != nil {
			return err
		}
		return outputMerge(cmd.OutOrStdout(), outcome, parseOutputFormat(rootFormat))
	})
}

func runRollback(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		commit, err := a.manager.Rollback(ctx, versioning.RollbackRequest{
			DocumentID:    args[0],
			TargetVersion: args[1],
			Author:        a.author,
			Reason:        rollbackReason,
		})
		if err != nil {
			return err
		}
		if parseOutputFormat(rootFormat) == OutputJSON {
			return outputJSON(cmd.OutOrStdout(), commit)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rolled back to %s as %s (%s)\n",
			args[1], commit.VersionLabel, commit.ID.Short())
		return nil
	})
}
