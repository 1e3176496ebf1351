package cli

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// interruptContext is cancelled on SIGINT or SIGTERM.
func interruptContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return ossignal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
