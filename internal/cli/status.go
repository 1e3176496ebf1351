package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agusx1211/agentmail/internal/mailbox"
)

var statusCmd = &cobra.Command{
	Use:   "status <agent-id>",
	Short: "Show an agent's status document",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().Bool("json", false, "Print the raw status document")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	id := args[0]
	if err := mailbox.ValidateID(id); err != nil {
		return err
	}
	st, ok := mailbox.New(cfg.Base).GetStatus(id)
	if !ok {
		return fmt.Errorf("no status for %s", id)
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(out, st.Fields)
	}

	printHeader(out, id)
	printField(out, "Status", statusBadge(out, string(st.Status)))
	if st.Type != "" {
		printField(out, "Type", st.Type)
	}
	if st.Task != "" {
		printField(out, "Task", truncate(st.Task, 100))
	}
	if st.PID > 0 {
		printField(out, "PID", strconv.Itoa(st.PID))
	}
	printField(out, "Started", formatMillis(st.StartedAt))
	printField(out, "Last activity", formatMillis(st.LastActivity))
	printField(out, "Turns", strconv.Itoa(st.Turns))
	printField(out, "Tool calls", strconv.Itoa(st.ToolCalls))
	if st.LastToolName != "" {
		printField(out, "Last tool", st.LastToolName)
	}
	if st.ExitCode != nil {
		printField(out, "Exit code", strconv.Itoa(*st.ExitCode))
	}
	if st.Result != "" {
		printField(out, "Result", truncate(st.Result, 100))
	}
	printField(out, "Updated", formatMillis(st.UpdatedAt))
	return nil
}
