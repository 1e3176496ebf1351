package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agusx1211/agentmail/internal/agentid"
	"github.com/agusx1211/agentmail/internal/config"
	"github.com/agusx1211/agentmail/internal/cursor"
	"github.com/agusx1211/agentmail/internal/debug"
	"github.com/agusx1211/agentmail/internal/engine"
	"github.com/agusx1211/agentmail/internal/mailbox"
	"github.com/agusx1211/agentmail/internal/prompt"
	"github.com/agusx1211/agentmail/internal/registry"
	"github.com/agusx1211/agentmail/internal/session"
	"github.com/agusx1211/agentmail/internal/signal"
	"github.com/agusx1211/agentmail/internal/theme"
	"github.com/agusx1211/agentmail/internal/tools"
)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt...]",
	Short: "Talk to a master agent that delegates to workers",
	Long: `Bind a master agent to a session and read prompts from stdin, one per line.
With a prompt argument, run that single prompt and exit.

REPL commands:
  /agents   list registered agents
  /status   show the master's counters
  /quit     leave (workers are stopped unless --keep-workers)`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().String("session", "", "Session id (default: a new UUID)")
	chatCmd.Flags().String("agent-id", "", "Reuse a persisted master agent")
	chatCmd.Flags().String("provider", "", "Engine provider (default from config)")
	chatCmd.Flags().String("model", "", "Model name (default from config)")
	chatCmd.Flags().String("workdir", "", "Default workspace for spawned workers")
	chatCmd.Flags().Bool("keep-workers", false, "Leave workers running on exit")
	rootCmd.AddCommand(chatCmd)
}

// chatRunner is the state of one chat invocation.
type chatRunner struct {
	reg    *registry.Registry
	sess   *session.Session
	out    io.Writer
	errOut io.Writer
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	provider, _ := cmd.Flags().GetString("provider")
	if provider == "" {
		provider = cfg.Engine.Provider
	}
	model, _ := cmd.Flags().GetString("model")
	if model == "" {
		model = cfg.Engine.Model
	}
	sessionID, _ := cmd.Flags().GetString("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	agentID, _ := cmd.Flags().GetString("agent-id")
	if agentID == "" {
		agentID = agentid.NewReadable(time.Now())
	}
	workDir, _ := cmd.Flags().GetString("workdir")
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	keepWorkers, _ := cmd.Flags().GetBool("keep-workers")

	ctx, stop := interruptContext(cmd)
	defer stop()

	mail := mailbox.New(cfg.Base)
	reg := registry.New(cfg.Base)
	sup := newSupervisor(cmd, cfg, debug.Enabled())
	poller := signal.NewPoller(mail, reg, signal.Options{Watch: cfg.Watch})

	manager := session.NewManager(session.Options{
		Base:          cfg.Base,
		TTL:           cfg.SessionTTL.D(),
		SweepInterval: cfg.SweepInterval.D(),
		Tools: func(id string) []engine.Tool {
			m := &tools.Master{
				AgentID:    id,
				Mail:       mail,
				Registry:   reg,
				Cursors:    cursor.New(cfg.Base),
				Poller:     poller,
				Supervisor: sup,
				Wait: signal.WaitOptions{
					PollInterval: cfg.PollInterval.D(),
					Timeout:      cfg.WaitTimeout.D(),
				},
			}
			return m.Tools()
		},
	})
	manager.Start()
	defer manager.Stop()
	defer func() {
		if keepWorkers {
			return
		}
		// ctx may already be cancelled; give workers a fresh grace window.
		if err := sup.StopAll(context.Background()); err != nil {
			debug.LogKV("cli", "stopping workers failed", "error", err)
		}
	}()

	sess, err := manager.GetOrCreate(ctx, sessionID, session.Config{
		Provider: provider,
		Model:    model,
		APIKey:   cfg.APIKey(),
		AgentID:  agentID,
		WorkDir:  workDir,
		SystemPrompt: prompt.Master(prompt.MasterOpts{
			AgentID: agentID,
			WorkDir: workDir,
			Agents:  registry.FormatSnapshot(reg.Snapshot()),
			Extra:   cfg.SystemPrompt,
		}),
		Command: cfg.Engine.Command,
		Args:    cfg.Engine.Args,
	})
	if err != nil {
		if errors.Is(err, session.ErrNoCredential) {
			return fmt.Errorf("%w: set %s or engine.api_key_env in the config", err, config.EnvAPIKey)
		}
		return err
	}

	r := &chatRunner{
		reg:    reg,
		sess:   sess,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	}
	unsubscribe := sess.Agent.Engine().Subscribe(r.onEvent)
	defer unsubscribe()

	if len(args) > 0 {
		return r.turn(ctx, strings.Join(args, " "))
	}
	return r.repl(ctx, cmd.InOrStdin())
}

func (r *chatRunner) onEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventToolExecutionStart:
		fmt.Fprintf(r.errOut, "%s %s\n", theme.Dim.Render("->"), ev.ToolName)
	case engine.EventToolExecutionEnd:
		if ev.IsError {
			fmt.Fprintf(r.errOut, "%s %s: %s\n", theme.Error.Render("!!"), ev.ToolName, truncate(ev.Result, 120))
		}
	}
}

func (r *chatRunner) turn(ctx context.Context, text string) error {
	reply, err := r.sess.Agent.Run(ctx, text)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, reply)
	return nil
}

func (r *chatRunner) repl(ctx context.Context, in io.Reader) error {
	printHeader(r.out, fmt.Sprintf("agentmail chat (%s, session %s)", r.sess.AgentID, r.sess.ID))

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(r.out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return fmt.Errorf("%w: %w", signal.ErrCancelled, ctx.Err())
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/agents":
			fmt.Fprintln(r.out, registry.FormatSnapshot(r.reg.Snapshot()))
			continue
		case "/status":
			st := r.sess.Agent.Stats()
			printField(r.out, "Agent", r.sess.AgentID)
			printField(r.out, "Turns", fmt.Sprint(st.Turns))
			printField(r.out, "Tool calls", fmt.Sprint(st.ToolCalls))
			if st.LastToolName != "" {
				printField(r.out, "Last tool", st.LastToolName)
			}
			continue
		}

		if err := r.turn(ctx, line); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", signal.ErrCancelled, ctx.Err())
			}
			fmt.Fprintln(r.errOut, theme.Error.Render("Error: "+err.Error()))
		}
	}
}
