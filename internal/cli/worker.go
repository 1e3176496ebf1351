package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/agusx1211/agentmail/internal/engine"
	"github.com/agusx1211/agentmail/internal/worker"
)

// workerCmd is what the supervisor execs for each spawned worker.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run a worker agent (started by spawn)",
	Hidden: true,
	RunE:   runWorker,
}

func init() {
	workerCmd.Flags().String("id", "", "Worker agent id")
	workerCmd.Flags().String("mailbox", "", "Mailbox base directory")
	workerCmd.Flags().String("task", "", "Task text")
	workerCmd.Flags().String("type", "general", "Worker type")
	_ = workerCmd.MarkFlagRequired("id")
	_ = workerCmd.MarkFlagRequired("task")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	id, _ := cmd.Flags().GetString("id")
	base, _ := cmd.Flags().GetString("mailbox")
	if base == "" {
		base = cfg.Base
	}
	task, _ := cmd.Flags().GetString("task")
	typ, _ := cmd.Flags().GetString("type")
	workDir, _ := os.Getwd()

	ctx, stop := interruptContext(cmd)
	defer stop()

	return worker.Run(ctx, worker.Options{
		ID:   id,
		Base: base,
		Task: task,
		Type: typ,
		Engine: engine.Config{
			Provider: cfg.Engine.Provider,
			Model:    cfg.Engine.Model,
			APIKey:   cfg.APIKey(),
			WorkDir:  workDir,
			Command:  cfg.Engine.Command,
			Args:     cfg.Engine.Args,
		},
	}, nil)
}
