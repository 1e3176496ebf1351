// Package worker is the body of the hidden `worker` subcommand: it runs one
// task to completion and reports through its mailbox.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/agusx1211/agentmail/internal/agent"
	"github.com/agusx1211/agentmail/internal/debug"
	"github.com/agusx1211/agentmail/internal/engine"
	"github.com/agusx1211/agentmail/internal/mailbox"
	"github.com/agusx1211/agentmail/internal/prompt"
	"github.com/agusx1211/agentmail/internal/tools"
)

// ErrReportedFailure is returned when the worker itself reported an error
// result through report_result.
var ErrReportedFailure = errors.New("worker reported failure")

// Options identify the worker and its task.
type Options struct {
	ID     string
	Base   string
	Task   string
	Type   string
	Engine engine.Config
}

// Run writes the running status, runs the task and records the outcome as a
// completion message plus a terminal status. A non-nil error means the
// process should exit non-zero.
func Run(ctx context.Context, opts Options, factory engine.Factory) error {
	if err := mailbox.ValidateID(opts.ID); err != nil {
		return err
	}
	if opts.Task == "" {
		return errors.New("worker: task is required")
	}
	if factory == nil {
		factory = engine.New
	}

	mail := mailbox.New(opts.Base)
	if _, err := mail.CreateMailbox(opts.ID); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	if _, err := mail.UpdateStatus(opts.ID, mailbox.Patch{
		Status:    mailbox.Ptr(mailbox.StateRunning),
		PID:       mailbox.Ptr(os.Getpid()),
		StartedAt: mailbox.Ptr(time.Now().UnixMilli()),
		Task:      mailbox.Ptr(opts.Task),
		Type:      mailbox.Ptr(opts.Type),
	}); err != nil {
		return fmt.Errorf("worker: writing status: %w", err)
	}
	debug.LogKV("worker", "started", "agent_id", opts.ID, "type", opts.Type, "task_len", len(opts.Task))

	eng, err := factory(opts.Engine)
	if err != nil {
		return fail(mail, opts.ID, fmt.Errorf("creating engine: %w", err))
	}

	wt := &tools.Worker{AgentID: opts.ID, Mail: mail}
	eng.SetSystemPrompt(prompt.Worker(prompt.WorkerOpts{AgentID: opts.ID, Type: opts.Type}))
	eng.SetTools(wt.Tools())

	a := agent.New(opts.ID, mail, eng)
	defer a.Close()

	reply, runErr := a.Run(ctx, opts.Task)

	if c, ok := wt.Reported(); ok {
		debug.LogKV("worker", "result reported by agent", "agent_id", opts.ID, "status", c.Status)
		if c.Status == mailbox.StateError {
			return fmt.Errorf("%w: %s", ErrReportedFailure, c.Result)
		}
		return nil
	}
	if runErr != nil {
		return fail(mail, opts.ID, runErr)
	}

	if err := tools.Finish(mail, opts.ID, mailbox.Completion{
		Status: mailbox.StateComplete,
		Result: reply,
	}); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	debug.LogKV("worker", "completed", "agent_id", opts.ID, "result_len", len(reply))
	return nil
}

func fail(mail *mailbox.Store, id string, cause error) error {
	debug.LogKV("worker", "failed", "agent_id", id, "error", cause)
	if err := tools.Finish(mail, id, mailbox.Completion{
		Status:   mailbox.StateError,
		Result:   cause.Error(),
		ExitCode: 1,
	}); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
