package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adalundhe/skillvcs/core/versioning"
)

// =============================================================================
// Ref Command Flags
// =============================================================================

var (
	tagMessage string
	tagPattern string

	branchFrom    string
	branchBase    string
	branchAll     bool
	branchPattern string
)

// =============================================================================
// Tag Commands
// =============================================================================

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage tags",
	Long: `Tags are named pointers to versions. A tag name may be reused; lookups
return the most recently created tag of that name.`,
}

var tagCreateCmd = &cobra.Command{
	Use:   "create <document> <version> <name>",
	Short: "Tag a version",
	Args:  cobra.ExactArgs(3),
	RunE:  runTagCreate,
}

var tagListCmd = &cobra.Command{
	Use:   "list <document>",
	Short: "List tags",
	Args:  cobra.ExactArgs(1),
	RunE:  runTagList,
}

// =============================================================================
// Branch Commands
// =============================================================================

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Manage branches",
	Long: `Branches are movable pointers to versions. Merging advances the target
branch; deleting a branch deactivates it and keeps its record.`,
}

var branchCreateCmd = &cobra.Command{
	Use:   "create <document> <name>",
	Short: "Create a branch",
	Long: `Create a branch at --from, or at the head of --base, or at the latest
version when neither is given.`,
	Args: cobra.ExactArgs(2),
	RunE: runBranchCreate,
}

var branchListCmd = &cobra.Command{
	Use:   "list <document>",
	Short: "List branches",
	Args:  cobra.ExactArgs(1),
	RunE:  runBranchList,
}

var branchDeleteCmd = &cobra.Command{
	Use:   "delete <document> <name>",
	Short: "Deactivate a branch",
	Args:  cobra.ExactArgs(2),
	RunE:  runBranchDelete,
}

func init() {
	rootCmd.AddCommand(tagCmd)
	tagCmd.AddCommand(tagCreateCmd)
	tagCmd.AddCommand(tagListCmd)

	rootCmd.AddCommand(branchCmd)
	branchCmd.AddCommand(branchCreateCmd)
	branchCmd.AddCommand(branchListCmd)
	branchCmd.AddCommand(branchDeleteCmd)

	tagCreateCmd.Flags().StringVarP(&tagMessage, "message", "m", "", "Tag message")
	tagListCmd.Flags().StringVar(&tagPattern, "pattern", "", "Only list tags matching a glob (e.g., 'release/*')")

	branchCreateCmd.Flags().StringVar(&branchFrom, "from", "", "Version label to start the branch at")
	branchCreateCmd.Flags().StringVar(&branchBase, "base", "", "Branch this one forks from")
	branchListCmd.Flags().BoolVarP(&branchAll, "all", "a", false, "Include deleted branches")
	branchListCmd.Flags().StringVar(&branchPattern, "pattern", "", "Only list branches matching a glob")
}

// =============================================================================
// Tags
// =============================================================================

func runTagCreate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		tag, err := a.manager.CreateTag(ctx, versioning.TagRequest{
			DocumentID:   args[0],
			VersionLabel: args[1],
			Name:         args[2],
			Message:      tagMessage,
			Author:       a.author,
		})
		if err != nil {
			return err
		}
		if parseOutputFormat(rootFormat) == OutputJSON {
			return outputJSON(cmd.OutOrStdout(), tag)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Tagged %s as %s\n", tag.VersionLabel, tag.Name)
		return nil
	})
}

func runTagList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		tags, err := a.manager.ListTags(args[0], tagPattern)
		if err != nil {
			return err
		}
		return outputTags(cmd.OutOrStdout(), tags, parseOutputFormat(rootFormat))
	})
}

// =============================================================================
// Branches
// =============================================================================

func runBranchCreate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		branch, err := a.manager.CreateBranch(ctx, versioning.BranchRequest{
			DocumentID:   args[0],
			Name:         args[1],
			VersionLabel: branchFrom,
			BaseBranch:   branchBase,
			Author:       a.author,
		})
		if err != nil {
			return err
		}
		if parseOutputFormat(rootFormat) == OutputJSON {
			return outputJSON(cmd.OutOrStdout(), branch)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created branch %s at %s\n", branch.Name, branch.VersionLabel)
		return nil
	})
}

func runBranchList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		branches, err := a.manager.ListBranches(args[0], branchPattern, branchAll)
		if err != nil {
			return err
		}
		return outputBranches(cmd.OutOrStdout(), branches, parseOutputFormat(rootFormat))
	})
}

func runBranchDelete(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		branch, err := a.manager.DeleteBranch(ctx, args[0], args[1], a.author)
		if err != nil {
			return err
		}
		if parseOutputFormat(rootFormat) == OutputJSON {
			return outputJSON(cmd.OutOrStdout(), branch)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted branch %s (was %s)\n", branch.Name, branch.VersionLabel)
		return nil
	})
}
