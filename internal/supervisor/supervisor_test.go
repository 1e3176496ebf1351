package supervisor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/agusx1211/agentmail/internal/mailbox"
	"github.com/agusx1211/agentmail/internal/registry"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func fakeWorker(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script helper not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-worker")
	if err := os.WriteFile(path, []byte("#!/usr/bin/env sh\n"+body), 0755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "", want: TypeGeneral},
		{in: "general", want: TypeGeneral},
		{in: " Code ", want: TypeCode},
		{in: "master", err: true},
	}
	for _, tt := range tests {
		got, err := NormalizeType(tt.in)
		if tt.err {
			if !errors.Is(err, ErrInvalidType) {
				t.Fatalf("NormalizeType(%q) error = %v, want ErrInvalidType", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("NormalizeType(%q) = %q, %v, want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestNewResolvesRelativeBase(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	s := New(Options{Base: "mail"})
	if !filepath.IsAbs(s.opts.Base) || filepath.Base(s.opts.Base) != "mail" {
		t.Fatalf("base = %q, want absolute path ending in mail", s.opts.Base)
	}
}

func TestSpawnRejectsInvalidType(t *testing.T) {
	s := New(Options{Base: t.TempDir(), Executable: "true"})
	if _, err := s.Spawn(context.Background(), Request{Task: "x", Type: "robot"}); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("Spawn() error = %v, want ErrInvalidType", err)
	}
}

func TestSpawnSuccessfulExitCompletes(t *testing.T) {
	defer goleak.VerifyNone(t)

	base := t.TempDir()
	out := &syncBuffer{}
	exe := fakeWorker(t, `echo "args: $*"
echo "warming up" >&2
exit 0
`)
	s := New(Options{Base: base, Executable: exe, Output: out})

	w, err := s.Spawn(context.Background(), Request{Task: "count files", Type: "code", Parent: "m1", Workspace: base})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if !strings.HasPrefix(w.ID, "worker-") {
		t.Fatalf("worker id = %q, want worker- prefix", w.ID)
	}
	code, err := s.Wait(waitCtx(t), w.ID)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	st, ok := mailbox.New(base).GetStatus(w.ID)
	if !ok {
		t.Fatal("status missing")
	}
	if st.Status != mailbox.StateComplete {
		t.Fatalf("status = %q, want complete", st.Status)
	}
	if st.ExitCode == nil || *st.ExitCode != 0 {
		t.Fatalf("exitCode = %v, want 0", st.ExitCode)
	}
	if st.PID != w.PID || st.Task != "count files" || st.Type != "code" || st.StartedAt == 0 {
		t.Fatalf("status = %+v, want pid/task/type/startedAt recorded", st)
	}

	entry, ok := registry.New(base).Get(w.ID)
	if !ok {
		t.Fatal("registry entry missing")
	}
	if entry.Status != "complete" || entry.ParentAgent != "m1" || entry.Type != "code" {
		t.Fatalf("registry entry = %+v", entry)
	}

	wantArgs := "args: worker --id " + w.ID + " --mailbox " + base + " --task count files --type code"
	if !strings.Contains(out.String(), "["+w.ID+"] "+wantArgs) {
		t.Fatalf("output missing %q:\n%s", wantArgs, out.String())
	}
	if !strings.Contains(out.String(), "warming up") {
		t.Fatalf("stderr line not streamed:\n%s", out.String())
	}
	if len(s.Running()) != 0 {
		t.Fatalf("Running() = %v, want empty", s.Running())
	}
}

func TestSpawnNonZeroExitWithoutReportIsError(t *testing.T) {
	base := t.TempDir()
	s := New(Options{Base: base, Executable: fakeWorker(t, "exit 1\n")})

	w, err := s.Spawn(context.Background(), Request{Task: "fail"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if code, _ := s.Wait(waitCtx(t), w.ID); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	st, _ := mailbox.New(base).GetStatus(w.ID)
	if st.Status != mailbox.StateError {
		t.Fatalf("status = %q, want error", st.Status)
	}
	if st.ExitCode == nil || *st.ExitCode != 1 {
		t.Fatalf("exitCode = %v, want 1", st.ExitCode)
	}
	if !strings.Contains(st.Result, "code 1") {
		t.Fatalf("result = %q, want exit description", st.Result)
	}
}

func TestHandleExitKeepsReportedStatus(t *testing.T) {
	base := t.TempDir()
	s := New(Options{Base: base})
	mail := mailbox.New(base)
	mail.CreateMailbox("w1")
	if _, err := mail.UpdateStatus("w1", mailbox.Patch{
		Status: mailbox.Ptr(mailbox.StateComplete),
		Result: mailbox.Ptr("42 files"),
	}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	s.HandleExit("w1", 1)

	st, _ := mail.GetStatus("w1")
	if st.Status != mailbox.StateComplete || st.Result != "42 files" {
		t.Fatalf("status = %q result = %q, want reported completion kept", st.Status, st.Result)
	}
	if st.ExitCode != nil {
		t.Fatalf("exitCode = %v, want untouched", *st.ExitCode)
	}
}

func TestHandleExitRunningNonZero(t *testing.T) {
	base := t.TempDir()
	s := New(Options{Base: base})
	mail := mailbox.New(base)
	mail.CreateMailbox("w1")
	mail.UpdateStatus("w1", mailbox.StatusPatch(mailbox.StateRunning))
	registry.New(base).Register("w1", registry.Info{Status: "running"})

	s.HandleExit("w1", 1)

	st, _ := mail.GetStatus("w1")
	if st.Status != mailbox.StateError || st.ExitCode == nil || *st.ExitCode != 1 {
		t.Fatalf("status = %+v, want error with exit code 1", st)
	}
	if e, _ := registry.New(base).Get("w1"); e.Status != "error" {
		t.Fatalf("registry status = %q, want error", e.Status)
	}
}

func TestSpawnStartFailureIsReported(t *testing.T) {
	base := t.TempDir()
	s := New(Options{Base: base, Executable: filepath.Join(base, "does-not-exist")})

	_, err := s.Spawn(context.Background(), Request{Task: "x"})
	if err == nil {
		t.Fatal("Spawn() error = nil, want start failure")
	}
	ids, _ := mailbox.New(base).List()
	if len(ids) != 1 {
		t.Fatalf("mailboxes = %v, want the failed worker's", ids)
	}
	st, _ := mailbox.New(base).GetStatus(ids[0])
	if st.Status != mailbox.StateError || !strings.HasPrefix(st.Result, "spawn failed") {
		t.Fatalf("status = %q result = %q, want spawn failure", st.Status, st.Result)
	}
}

func TestStopAllTerminatesWorkers(t *testing.T) {
	defer goleak.VerifyNone(t)

	base := t.TempDir()
	s := New(Options{
		Base:       base,
		Executable: fakeWorker(t, "exec sleep 30\n"),
		StopGrace:  2 * time.Second,
	})
	w, err := s.Spawn(context.Background(), Request{Task: "sleep"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if got := s.Running(); len(got) != 1 || got[0] != w.ID {
		t.Fatalf("Running() = %v, want [%s]", got, w.ID)
	}

	if err := s.StopAll(waitCtx(t)); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker still running after StopAll")
	}
	st, _ := mailbox.New(base).GetStatus(w.ID)
	if st.Status != mailbox.StateError {
		t.Fatalf("status = %q, want error for a terminated worker", st.Status)
	}
}

func TestWaitUnknownWorker(t *testing.T) {
	s := New(Options{Base: t.TempDir()})
	if _, err := s.Wait(context.Background(), "nope"); !errors.Is(err, ErrUnknownWorker) {
		t.Fatalf("Wait() error = %v, want ErrUnknownWorker", err)
	}
}
