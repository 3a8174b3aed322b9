package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/adalundhe/skillvcs/core/skills"
	"github.com/adalundhe/skillvcs/core/versioning"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Agent tool definitions",
	Long: `Expose versioning operations as tools an agent can call. "list" prints the
tool definitions; "invoke" runs one tool with JSON input.`,
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print tool definitions",
	Args:  cobra.NoArgs,
	RunE:  runToolsList,
}

var toolsInvokeCmd = &cobra.Command{
	Use:   "invoke <tool> [json-input]",
	Short: "Invoke a tool",
	Long: `Invoke a tool with a JSON object as input. Input is read from stdin when
the argument is "-" or missing.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runToolsInvoke,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsInvokeCmd)
}

func newToolRegistry(a *app) (*skills.Registry, error) {
	registry := skills.NewRegistry()
	if err := versioning.NewVersioningSkills(a.manager, a.author).RegisterSkills(registry); err != nil {
		return nil, err
	}
	return registry, nil
}

func runToolsList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		registry, err := newToolRegistry(a)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if parseOutputFormat(rootFormat) == OutputJSON {
			return outputJSON(out, registry.ToolDefinitions())
		}
		tw := newTable(out, "TOOL", "DESCRIPTION")
		for _, s := range registry.GetAll() {
			fmt.Fprintf(tw, "%s\t%s\n", s.Name, truncateString(s.Description, 70))
		}
		return tw.Flush()
	})
}

func runToolsInvoke(cmd *cobra.Command, args []string) error {
	var input []byte
	if len(args) == 2 && args[1] != "-" {
		input = []byte(args[1])
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		input = data
	}
	if len(input) > 0 && !json.Valid(input) {
		return fmt.Errorf("tool input is not valid JSON")
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		registry, err := newToolRegistry(a)
		if err != nil {
			return err
		}
		result := registry.Invoke(ctx, args[0], input)
		if err := outputJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("tool %s failed: %s", args[0], result.Error)
		}
		return nil
	})
}
