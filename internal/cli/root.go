// Package cli implements the playground command line.
package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
)

// SetVersionInfo sets the version and commit for display.
func SetVersionInfo(version, commit string) {
	appVersion = version
	appCommit = commit
}

type rootOptions struct {
	configPath string
	envFile    string
	verbose    bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "playground",
		Short:         "Call OpenAI, Claude and Gemini endpoints and watch the deltas stream",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       appVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(opts.envFile)
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("playground %s (commit: %s)\n", appVersion, appCommit))

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path (default $PLAYGROUND_CONFIG)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to .env file, loaded when present")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newCallCmd(opts))
	root.AddCommand(newVersionCmd())

	return root
}

// Execute runs the root command.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), errorStyle.Render("error: ")+err.Error())
		return err
	}
	return nil
}

// loadEnvFile loads path into the process environment without
// overriding variables that are already set. A missing file is fine.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading env file: %w", err)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "playground %s (commit: %s)\n", appVersion, appCommit)
		},
	}
}
