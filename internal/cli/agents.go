package cli

import (
	"github.com/spf13/cobra"

	"github.com/agusx1211/agentmail/internal/registry"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List registered agents",
	RunE:  runAgents,
}

func init() {
	agentsCmd.Flags().String("workspace", "", "Only agents in this workspace")
	agentsCmd.Flags().String("parent", "", "Only agents spawned by this parent")
	agentsCmd.Flags().Bool("json", false, "Print the registry snapshot as JSON")
	rootCmd.AddCommand(agentsCmd)
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	workspace, _ := cmd.Flags().GetString("workspace")
	parent, _ := cmd.Flags().GetString("parent")
	reg := registry.New(cfg.Base)

	keep := map[string]bool{}
	filtered := workspace != "" || parent != ""
	if workspace != "" {
		for _, id := range reg.FindByWorkspace(workspace) {
			keep[id] = true
		}
	}
	if parent != "" {
		for _, id := range reg.FindByParent(parent) {
			keep[id] = true
		}
	}

	var entries []registry.Entry
	for _, e := range reg.Entries() {
		if !filtered || keep[e.AgentID] {
			entries = append(entries, e)
		}
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if entries == nil {
			entries = []registry.Entry{}
		}
		return printJSON(out, entries)
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		status := e.Status
		if status == "" {
			status = "unknown"
		}
		parent := e.ParentAgent
		if parent == "" {
			parent = "-"
		}
		rows = append(rows, []string{
			e.AgentID,
			e.Type,
			statusBadge(out, status),
			parent,
			formatMillis(e.RegisteredAt),
			truncate(e.Task, 60),
		})
	}
	printTable(out, []string{"AGENT", "TYPE", "STATUS", "PARENT", "REGISTERED", "TASK"}, rows)
	return nil
}
