// Package supervisor launches worker processes and records how they end.
//
// Each worker runs detached in its own session as
//
//	<executable> [args...] worker --id <id> --mailbox <base> --task <task> --type <type>
//
// Its stdout and stderr are streamed line by line into the debug log and an
// optional writer. When the process exits, a status still reading running is
// finalized from the exit code, so a worker that dies without reporting still
// ends up complete or error.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agusx1211/agentmail/internal/agentid"
	"github.com/agusx1211/agentmail/internal/debug"
	"github.com/agusx1211/agentmail/internal/mailbox"
	"github.com/agusx1211/agentmail/internal/registry"
)

const (
	TypeGeneral = "general"
	TypeCode    = "code"

	DefaultStopGrace = 5 * time.Second
)

var (
	ErrInvalidType   = errors.New("invalid worker type")
	ErrUnknownWorker = errors.New("unknown worker")
)

// NormalizeType maps "" to general and rejects anything but general or code.
func NormalizeType(t string) (string, error) {
	switch v := strings.ToLower(strings.TrimSpace(t)); v {
	case "", TypeGeneral:
		return TypeGeneral, nil
	case TypeCode:
		return TypeCode, nil
	default:
		return "", fmt.Errorf("%w: %q (want general or code)", ErrInvalidType, t)
	}
}

// Options configure a Supervisor.
type Options struct {
	Base string
	// Executable defaults to the running binary.
	Executable string
	// Args are placed before the worker subcommand.
	Args []string
	// Env defaults to the current environment. Debug settings are overlaid.
	Env []string
	// Output, when set, receives every child output line prefixed with the
	// worker id.
	Output io.Writer
	// StopGrace is how long StopAll waits after SIGTERM before SIGKILL.
	StopGrace time.Duration
}

// Request describes a worker to spawn.
type Request struct {
	Task      string
	Type      string
	Parent    string
	Workspace string
}

// Worker is a spawned child process.
type Worker struct {
	ID        string
	PID       int
	Task      string
	Type      string
	StartedAt time.Time

	done     chan struct{}
	exitCode int
}

// Done is closed once the process has exited and its status is final.
func (w *Worker) Done() <-chan struct{} { return w.done }

// ExitCode is valid after Done is closed. A signalled process reports -1.
func (w *Worker) ExitCode() int {
	<-w.done
	return w.exitCode
}

// Supervisor owns the worker processes spawned by this process.
type Supervisor struct {
	opts Options
	mail *mailbox.Store
	reg  *registry.Registry
	now  func() time.Time

	outMu sync.Mutex

	mu      sync.Mutex
	workers map[string]*Worker
}

// New returns a Supervisor writing under opts.Base. A relative base is
// resolved against the working directory, since workers inherit it as a flag.
func New(opts Options) *Supervisor {
	if abs, err := filepath.Abs(opts.Base); err == nil {
		opts.Base = abs
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = DefaultStopGrace
	}
	return &Supervisor{
		opts:    opts,
		mail:    mailbox.New(opts.Base),
		reg:     registry.New(opts.Base),
		now:     time.Now,
		workers: make(map[string]*Worker),
	}
}

// Spawn creates a worker mailbox, registers it and starts the process. The
// returned error covers validation, storage and process start; once started
// the worker's fate is reported through its status document.
func (s *Supervisor) Spawn(ctx context.Context, req Request) (*Worker, error) {
	typ, err := NormalizeType(req.Type)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Task) == "" {
		return nil, errors.New("spawn: task is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	exe := s.opts.Executable
	if exe == "" {
		if exe, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("finding executable: %w", err)
		}
	}

	now := s.now()
	id := agentid.NewWorker(now)
	if _, err := s.mail.CreateMailbox(id); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", id, err)
	}
	if _, err := s.mail.UpdateStatus(id, mailbox.Patch{
		Status:    mailbox.Ptr(mailbox.StateRunning),
		Task:      mailbox.Ptr(req.Task),
		Type:      mailbox.Ptr(typ),
		StartedAt: mailbox.Ptr(now.UnixMilli()),
	}); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", id, err)
	}
	if _, err := s.reg.Register(id, registry.Info{
		Task:        req.Task,
		Type:        typ,
		Workspace:   req.Workspace,
		ParentAgent: req.Parent,
		Status:      string(mailbox.StateRunning),
	}); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", id, err)
	}

	args := append(append([]string(nil), s.opts.Args...),
		"worker", "--id", id, "--mailbox", s.opts.Base, "--task", req.Task, "--type", typ)
	cmd := exec.Command(exe, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if req.Workspace != "" {
		cmd.Dir = req.Workspace
	}
	env := s.opts.Env
	if env == nil {
		env = os.Environ()
	}
	cmd.Env = debug.PropagatedEnv(env, "worker:"+id)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, s.spawnFailed(id, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, s.spawnFailed(id, err)
	}

	debug.LogKV("supervisor", "starting worker", "agent_id", id, "binary", exe, "type", typ, "task_len", len(req.Task))
	if err := cmd.Start(); err != nil {
		return nil, s.spawnFailed(id, err)
	}

	w := &Worker{
		ID:        id,
		PID:       cmd.Process.Pid,
		Task:      req.Task,
		Type:      typ,
		StartedAt: now,
		done:      make(chan struct{}),
	}
	s.mu.Lock()
	s.workers[id] = w
	s.mu.Unlock()

	if _, err := s.mail.UpdateStatus(id, mailbox.Patch{PID: mailbox.Ptr(w.PID)}); err != nil {
		debug.LogKV("supervisor", "recording pid failed", "agent_id", id, "error", err)
	}
	debug.LogKV("supervisor", "worker started", "agent_id", id, "pid", w.PID)

	go s.supervise(w, cmd, stdout, stderr)
	return w, nil
}

func (s *Supervisor) spawnFailed(id string, cause error) error {
	msg := "spawn failed: " + cause.Error()
	debug.LogKV("supervisor", "spawn failed", "agent_id", id, "error", cause)
	if _, err := s.mail.UpdateStatus(id, mailbox.Patch{
		Status: mailbox.Ptr(mailbox.StateError),
		Result: mailbox.Ptr(msg),
	}); err != nil {
		debug.LogKV("supervisor", "recording spawn failure failed", "agent_id", id, "error", err)
	}
	if err := s.reg.SetStatus(id, string(mailbox.StateError)); err != nil {
		debug.LogKV("supervisor", "mirroring status failed", "agent_id", id, "error", err)
	}
	return fmt.Errorf("spawn %s: %w", id, cause)
}

func (s *Supervisor) supervise(w *Worker, cmd *exec.Cmd, stdout, stderr io.Reader) {
	var g errgroup.Group
	g.Go(func() error { return s.pump(w.ID, "stdout", stdout) })
	g.Go(func() error { return s.pump(w.ID, "stderr", stderr) })
	if err := g.Wait(); err != nil {
		debug.LogKV("supervisor", "output pump failed", "agent_id", w.ID, "error", err)
	}

	code, err := exitCodeOf(cmd.Wait())
	if err != nil {
		debug.LogKV("supervisor", "wait failed", "agent_id", w.ID, "error", err)
		code = -1
	}
	w.exitCode = code
	s.HandleExit(w.ID, code)
	close(w.done)
}

func (s *Supervisor) pump(id, stream string, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		debug.LogKV("supervisor", "worker output", "agent_id", id, "stream", stream, "line", line)
		if s.opts.Output != nil {
			s.outMu.Lock()
			fmt.Fprintf(s.opts.Output, "[%s] %s\n", id, line)
			s.outMu.Unlock()
		}
	}
	return sc.Err()
}

// HandleExit finalizes a worker that exited with code. A status still
// reading running becomes complete on 0 and error otherwise; a status the
// worker already finalized is kept. The registry entry mirrors the result.
func (s *Supervisor) HandleExit(id string, code int) {
	st, ok := s.mail.GetStatus(id)
	final := st.Status
	if !ok || st.Status == mailbox.StateRunning {
		final = mailbox.StateComplete
		if code != 0 {
			final = mailbox.StateError
		}
		patch := mailbox.Patch{Status: mailbox.Ptr(final), ExitCode: mailbox.Ptr(code)}
		if code != 0 && st.Result == "" {
			patch.Result = mailbox.Ptr(fmt.Sprintf("worker exited with code %d without reporting", code))
		}
		if _, err := s.mail.UpdateStatus(id, patch); err != nil {
			debug.LogKV("supervisor", "finalizing status failed", "agent_id", id, "error", err)
		}
	}
	if err := s.reg.SetStatus(id, string(final)); err != nil {
		debug.LogKV("supervisor", "mirroring status failed", "agent_id", id, "error", err)
	}
	debug.LogKV("supervisor", "worker exited", "agent_id", id, "exit_code", code, "status", final)
}

// Wait blocks until the worker exits and returns its exit code.
func (s *Supervisor) Wait(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	w, ok := s.workers[id]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownWorker, id)
	}
	select {
	case <-w.done:
		return w.exitCode, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Running lists the ids of workers that have not exited, sorted.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, w := range s.workers {
		select {
		case <-w.done:
		default:
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// StopAll sends SIGTERM to every running worker's process group, then
// SIGKILL to those still alive after the grace period.
func (s *Supervisor) StopAll(ctx context.Context) error {
	s.mu.Lock()
	var live []*Worker
	for _, w := range s.workers {
		select {
		case <-w.done:
		default:
			live = append(live, w)
		}
	}
	s.mu.Unlock()

	var errs error
	for _, w := range live {
		if err := signalGroup(w.PID, syscall.SIGTERM); err != nil {
			errs = errors.Join(errs, fmt.Errorf("terminating %s: %w", w.ID, err))
		}
	}

	grace, cancel := context.WithTimeout(ctx, s.opts.StopGrace)
	defer cancel()
	for _, w := range live {
		select {
		case <-w.done:
			continue
		case <-grace.Done():
		}
		debug.LogKV("supervisor", "worker ignored SIGTERM, killing", "agent_id", w.ID, "pid", w.PID)
		if err := signalGroup(w.PID, syscall.SIGKILL); err != nil {
			errs = errors.Join(errs, fmt.Errorf("killing %s: %w", w.ID, err))
		}
		select {
		case <-w.done:
		case <-ctx.Done():
			return errors.Join(errs, ctx.Err())
		}
	}
	return errs
}

func signalGroup(pid int, sig syscall.Signal) error {
	// Workers run with Setsid, so the group id equals the pid.
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

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
