package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agusx1211/agentmail/internal/config"
	"github.com/agusx1211/agentmail/internal/supervisor"
)

var spawnCmd = &cobra.Command{
	Use:   "spawn <task...>",
	Short: "Start a worker agent on a task",
	Long: `Start a worker process on a task and print its agent id.

Without --wait the worker is left running detached; its status document is
the only record of how it ends. With --wait the command stays attached,
streams the worker's output and finalizes its status if it dies without
reporting.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSpawn,
}

func init() {
	spawnCmd.Flags().String("type", supervisor.TypeGeneral, "Worker type: general or code")
	spawnCmd.Flags().String("workspace", "", "Working directory for the worker")
	spawnCmd.Flags().String("parent", "", "Parent agent id recorded in the registry")
	spawnCmd.Flags().Bool("wait", false, "Wait for the worker to exit")
	rootCmd.AddCommand(spawnCmd)
}

// newSupervisor forwards --config so workers load the same settings.
func newSupervisor(cmd *cobra.Command, cfg *config.Config, verbose bool) *supervisor.Supervisor {
	opts := supervisor.Options{Base: cfg.Base, Executable: cfg.Worker.Executable}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		opts.Args = []string{"--config", path}
	}
	if verbose {
		opts.Output = os.Stderr
	}
	return supervisor.New(opts)
}

func runSpawn(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	typ, _ := cmd.Flags().GetString("type")
	workspace, _ := cmd.Flags().GetString("workspace")
	parent, _ := cmd.Flags().GetString("parent")
	wait, _ := cmd.Flags().GetBool("wait")

	ctx, stop := interruptContext(cmd)
	defer stop()

	sup := newSupervisor(cmd, cfg, wait)
	w, err := sup.Spawn(ctx, supervisor.Request{
		Task:      strings.Join(args, " "),
		Type:      typ,
		Parent:    parent,
		Workspace: workspace,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, w.ID)
	if !wait {
		return nil
	}

	code, err := sup.Wait(ctx, w.ID)
	if err != nil {
		if stopErr := sup.StopAll(cmd.Context()); stopErr != nil {
			return stopErr
		}
		return err
	}
	if code != 0 {
		return fmt.Errorf("worker %s exited with code %d", w.ID, code)
	}
	return nil
}
