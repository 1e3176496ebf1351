package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/agusx1211/agentmail/internal/debug"
)

// Command runs an external agent CLI once per prompt. The system prompt and
// the prompt are piped to stdin and captured stdout is the reply. Tools are
// listed in the system prompt for the CLI's benefit but never dispatched.
type Command struct {
	hub

	cfg Config

	mu     sync.Mutex
	system string
	tools  []Tool
}

// NewCommand returns a Command engine. cfg.Command is required.
func NewCommand(cfg Config) (*Command, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("command engine: no command configured")
	}
	return &Command{cfg: cfg}, nil
}

func (c *Command) SetSystemPrompt(prompt string) {
	c.mu.Lock()
	c.system = prompt
	c.mu.Unlock()
}

func (c *Command) SetTools(tools []Tool) {
	c.mu.Lock()
	c.tools = append([]Tool(nil), tools...)
	c.mu.Unlock()
}

func (c *Command) Prompt(ctx context.Context, text string) (string, error) {
	c.emit(Event{Type: EventAgentStart})
	c.emit(Event{Type: EventTurnStart})
	defer c.emit(Event{Type: EventAgentEnd})

	args := append([]string(nil), c.cfg.Args...)
	if m := strings.TrimSpace(c.cfg.Model); m != "" {
		args = append(args, "--model", m)
	}

	cmd := exec.CommandContext(ctx, c.cfg.Command, args...)
	cmd.Dir = c.cfg.WorkDir
	cmd.Env = os.Environ()
	for k, v := range c.cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if c.cfg.APIKey != "" {
		cmd.Env = append(cmd.Env, "AGENTMAIL_API_KEY="+c.cfg.APIKey)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return nil
	}
	cmd.Stdin = strings.NewReader(c.input(text))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	debug.LogKV("engine.command", "process starting",
		"binary", c.cfg.Command,
		"args", strings.Join(args, " "),
		"workdir", c.cfg.WorkDir,
		"prompt_len", len(text),
	)
	start := time.Now()
	err := cmd.Run()
	exitCode, runErr := exitCodeOf(err)
	debug.LogKV("engine.command", "process finished",
		"binary", c.cfg.Command,
		"exit_code", exitCode,
		"duration", time.Since(start),
		"output_len", stdout.Len(),
	)
	if runErr != nil {
		return "", fmt.Errorf("command engine: running %s: %w", c.cfg.Command, runErr)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	reply := strings.TrimSpace(stdout.String())
	if exitCode != 0 {
		c.emit(Event{Type: EventMessageEnd, Message: reply, IsError: true})
		return reply, fmt.Errorf("command engine: %s exited with code %d: %s",
			c.cfg.Command, exitCode, lastLine(stderr.String()))
	}
	c.emit(Event{Type: EventMessageEnd, Message: reply})
	return reply, nil
}

func (c *Command) input(text string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	if c.system != "" {
		b.WriteString(c.system)
		b.WriteString("\n\n")
	}
	if len(c.tools) > 0 {
		b.WriteString("Available tools:\n")
		for _, t := range c.tools {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString(text)
	return b.String()
}

// exitCodeOf returns (0, nil) for a clean exit, (code, nil) for an
// ExitError and (0, err) for anything else.
func exitCodeOf(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 0, err
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
