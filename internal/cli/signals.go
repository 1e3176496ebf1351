package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agusx1211/agentmail/internal/config"
	"github.com/agusx1211/agentmail/internal/cursor"
	"github.com/agusx1211/agentmail/internal/mailbox"
	"github.com/agusx1211/agentmail/internal/registry"
	"github.com/agusx1211/agentmail/internal/signal"
	"github.com/agusx1211/agentmail/internal/tools"
)

var errWaitTimeout = errors.New("no signals")

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Collect new worker messages and exits once",
	Long: `Read every registered agent's outbox past the persisted cursor and report
new messages and exits. Delivered messages advance the cursors and exited
agents are unregistered, so each signal is reported once. Use --peek to look
without consuming anything.`,
	RunE: runPoll,
}

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Block until a worker sends a message or exits",
	RunE:  runWait,
}

func init() {
	pollCmd.Flags().Bool("peek", false, "Do not advance cursors or unregister exited agents")
	waitCmd.Flags().Bool("peek", false, "Do not advance cursors or unregister exited agents")
	waitCmd.Flags().Duration("timeout", 0, "Give up after this long (default from config)")
	waitCmd.Flags().Duration("interval", 0, "Poll interval (default from config)")
	waitCmd.Flags().Bool("watch", false, "Wake early on filesystem changes")
	rootCmd.AddCommand(pollCmd, waitCmd)
}

// signalDesk bundles the stores poll and wait operate on. It settles
// through the same path the master's tools use.
type signalDesk struct {
	master *tools.Master
	peek   bool
}

func newSignalDesk(cmd *cobra.Command, cfg *config.Config, watch bool) *signalDesk {
	mail := mailbox.New(cfg.Base)
	reg := registry.New(cfg.Base)
	peek, _ := cmd.Flags().GetBool("peek")
	return &signalDesk{
		master: &tools.Master{
			Mail:     mail,
			Registry: reg,
			Cursors:  cursor.New(cfg.Base),
			Poller:   signal.NewPoller(mail, reg, signal.Options{Watch: watch}),
		},
		peek: peek,
	}
}

func (d *signalDesk) report(cmd *cobra.Command, cursors cursor.Map, sigs []signal.Signal) error {
	if !d.peek {
		if err := d.master.Settle(cursors, sigs); err != nil {
			return err
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(signal.Describe(sigs), "\n"))
	return nil
}

func runPoll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	d := newSignalDesk(cmd, cfg, false)
	cursors := d.master.Cursors.Load()
	return d.report(cmd, cursors, d.master.Poller.Poll(cursors))
}

func runWait(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	watch, _ := cmd.Flags().GetBool("watch")
	d := newSignalDesk(cmd, cfg, watch || cfg.Watch)

	opts := signal.WaitOptions{
		PollInterval: cfg.PollInterval.D(),
		Timeout:      cfg.WaitTimeout.D(),
	}
	if v, _ := cmd.Flags().GetDuration("timeout"); v > 0 {
		opts.Timeout = v
	}
	if v, _ := cmd.Flags().GetDuration("interval"); v > 0 {
		opts.PollInterval = v
	}

	ctx, stop := interruptContext(cmd)
	defer stop()

	cursors := d.master.Cursors.Load()
	sigs, err := d.master.Poller.Wait(ctx, cursors, opts)
	if err != nil {
		return err
	}
	if len(sigs) == 1 && sigs[0].Kind == signal.KindTimeout {
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(signal.Describe(sigs), "\n"))
		return fmt.Errorf("%w after %s", errWaitTimeout, opts.Timeout)
	}
	return d.report(cmd, cursors, sigs)
}
