package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agusx1211/agentmail/internal/mailbox"
)

var inboxCmd = &cobra.Command{
	Use:   "inbox <agent-id>",
	Short: "Show messages sent to an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReadLog(cmd, args[0], (*mailbox.Store).ReadInbox)
	},
}

var outboxCmd = &cobra.Command{
	Use:   "outbox <agent-id>",
	Short: "Show messages an agent has emitted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReadLog(cmd, args[0], (*mailbox.Store).ReadOutbox)
	},
}

func init() {
	for _, c := range []*cobra.Command{inboxCmd, outboxCmd} {
		c.Flags().Int("after", 0, "Skip the first N lines")
		c.Flags().Bool("json", false, "Print messages as JSON")
		rootCmd.AddCommand(c)
	}
}

func runReadLog(cmd *cobra.Command, id string, read func(*mailbox.Store, string, int) mailbox.ReadResult) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := mailbox.ValidateID(id); err != nil {
		return err
	}
	after, _ := cmd.Flags().GetInt("after")
	asJSON, _ := cmd.Flags().GetBool("json")

	res := read(mailbox.New(cfg.Base), id, after)
	out := cmd.OutOrStdout()
	if asJSON {
		return printJSON(out, res)
	}
	printMessages(out, res, after)
	return nil
}

func printMessages(w io.Writer, res mailbox.ReadResult, after int) {
	rows := make([][]string, 0, len(res.Messages))
	for i, m := range res.Messages {
		from := m.From
		if from == "" {
			from = "-"
		}
		rows = append(rows, []string{
			strconv.Itoa(after + i + 1),
			formatMillis(m.Timestamp),
			from,
			string(m.Content.Kind),
			truncate(m.Content.String(), 80),
		})
	}
	printTable(w, []string{"#", "TIME", "FROM", "KIND", "CONTENT"}, rows)
	if styled(w) {
		fmt.Fprintf(w, "  %d of %d lines\n", len(res.Messages), res.TotalLines)
	}
}
