package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/adalundhe/skillvcs/core/config"
	"github.com/adalundhe/skillvcs/core/storage"
)

var initBackend string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a repository in the project directory",
	Long: `Create the .skillvcs directory and a default config.yaml.
Running init on an existing repository leaves its config untouched.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initBackend, "backend", "", "Blob backend to record in the config (sqlite, fs, memory)")
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	project := projectDirs(cfg)
	existed := project.Exists()

	if err := project.EnsureProject(); err != nil {
		return fmt.Errorf("create repository: %w", err)
	}
	if err := writeDefaultConfig(project); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if existed {
		fmt.Fprintf(out, "Reinitialized existing repository in %s\n", project.Root)
	} else {
		fmt.Fprintf(out, "Initialized empty repository in %s\n", project.Root)
	}
	return nil
}

func writeDefaultConfig(project *storage.ProjectDirs) error {
	if _, err := os.Stat(project.Config); err == nil {
		return nil
	}

	cfg := config.DefaultConfig()
	if initBackend != "" {
		cfg.Repository.Backend = initBackend
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(project.Config, data, 0644)
}
