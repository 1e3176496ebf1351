package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agusx1211/agentmail/internal/mailbox"
)

var sendCmd = &cobra.Command{
	Use:   "send <agent-id> <message...>",
	Short: "Append a message to an agent's inbox",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().String("from", "", "Sender agent id")
	sendCmd.Flags().Bool("json", false, "Send the message as a structured result payload")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	from, _ := cmd.Flags().GetString("from")
	asJSON, _ := cmd.Flags().GetBool("json")

	text := strings.Join(args[1:], " ")
	content := mailbox.Text(text)
	if asJSON {
		if !json.Valid([]byte(text)) {
			return fmt.Errorf("--json payload is not valid JSON: %s", text)
		}
		content = mailbox.Content{Kind: mailbox.KindResult, Data: json.RawMessage(text)}
	}

	msg, err := mailbox.New(cfg.Base).SendMessageFrom(args[0], from, content)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg.ID)
	return nil
}
