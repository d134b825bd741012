// Package cli implements the autoreply command tree.
package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nhle/mail-autoreply/internal/model"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
	envFile    string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "autoreply",
		Short: "Mailbox auto-reply dashboard",
		Long: `autoreply watches a mailbox for unread mail, summarizes each message,
pushes the summary to LINE and answers the sender with a canned reply.

Quick Start:
  autoreply credential set groq-api-key      # store a secret from stdin
  autoreply run                              # open the dashboard
  autoreply run --headless                   # poll without a terminal UI
  autoreply history --status error           # list archived failures`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(opts.envFile)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/autoreply/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(
		newRunCmd(opts),
		newNotifyTestCmd(opts),
		newHistoryCmd(opts),
		newCredentialCmd(),
		newConfigCmd(opts),
	)

	return cmd
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

func (o *options) resolvedConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	return model.DefaultConfigPath()
}

func (o *options) loadConfig() (*model.AppConfig, error) {
	return model.LoadConfig(o.resolvedConfigPath())
}
