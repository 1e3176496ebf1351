package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agusx1211/agentmail/internal/buildinfo"
	"github.com/agusx1211/agentmail/internal/config"
	"github.com/agusx1211/agentmail/internal/debug"
	"github.com/agusx1211/agentmail/internal/theme"
)

var rootCmd = &cobra.Command{
	Use:   "agentmail",
	Short: "File-backed mailboxes for a master agent and its workers",
	Long: `agentmail coordinates a master LLM agent with worker agents that run as
separate processes. Every agent owns a mailbox directory:

  <base>/<agentId>/inbox.jsonl    messages sent to the agent
  <base>/<agentId>/outbox.jsonl   messages the agent emits
  <base>/<agentId>/status.json    lifecycle status and counters

The master learns about worker progress by polling outboxes and statuses.

Getting Started:
  agentmail init                         Create the mailbox base
  agentmail spawn --type code "fix the failing tests"
  agentmail agents                       List registered agents
  agentmail wait                         Block until a worker reports
  agentmail chat                         Talk to a master agent`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.PersistentFlags().Bool("debug", false, "Enable verbose debug logging to ~/.agentmail/debug/")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.agentmail/config.json; .yaml and .toml accepted)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		debugFlag, _ := cmd.Flags().GetBool("debug")
		if !debugFlag && !debug.ShouldEnableFromEnv() {
			return nil
		}
		logPath, err := debug.Init()
		if err != nil {
			return fmt.Errorf("initializing debug logger: %w", err)
		}
		if cmd.Name() != workerCmd.Name() {
			fmt.Fprintf(os.Stderr, "%s logging to %s\n", theme.Dim.Render("[debug]"), logPath)
		}
		bi := buildinfo.Current()
		debug.LogKV("cli", "agentmail starting",
			"version", bi.Version,
			"commit", bi.CommitHash,
			"build_date", bi.BuildDate,
			"pid", os.Getpid(),
			"command", cmd.Name(),
			"args", args,
		)
		return nil
	}
}

// Execute runs the root command.
func Execute() {
	defer debug.Close()
	if err := rootCmd.Execute(); err != nil {
		debug.Logf("cli", "exit with error: %v", err)
		fmt.Fprintln(os.Stderr, theme.Error.Render("Error: "+err.Error()))
		debug.Close()
		os.Exit(exitCode(err))
	}
	debug.Log("cli", "exit success")
}

// loadConfig reads the config named by --config, if the command has one.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	debug.LogKV("cli", "config loaded", "base", cfg.Base, "provider", cfg.Engine.Provider)
	return cfg, nil
}
