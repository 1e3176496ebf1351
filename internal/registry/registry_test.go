package registry

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(t.TempDir())
	tick := time.UnixMilli(1_700_000_000_000)
	r.now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}
	return r
}

func TestFindByWorkspace(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Register("a1", Info{Workspace: "X"}); err != nil {
		t.Fatalf("Register a1: %v", err)
	}
	if _, err := r.Register("a2", Info{Workspace: "Y"}); err != nil {
		t.Fatalf("Register a2: %v", err)
	}
	if got := r.FindByWorkspace("X"); !reflect.DeepEqual(got, []string{"a1"}) {
		t.Fatalf("FindByWorkspace(X) = %v, want [a1]", got)
	}
	if got := r.FindByWorkspace("Z"); len(got) != 0 {
		t.Fatalf("FindByWorkspace(Z) = %v, want empty", got)
	}
}

func TestFindByParent(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("master", Info{Type: "master"})
	r.Register("w1", Info{ParentAgent: "master"})
	r.Register("w2", Info{ParentAgent: "other"})
	r.Register("w3", Info{ParentAgent: "master"})

	if got := r.FindByParent("master"); !reflect.DeepEqual(got, []string{"w1", "w3"}) {
		t.Fatalf("FindByParent(master) = %v, want [w1 w3]", got)
	}
}

func TestRegisterDefaultsAndKeepsRegisteredAt(t *testing.T) {
	r := newTestRegistry(t)
	first, _ := r.Register("a1", Info{Task: "t1"})
	if first.Type != "general" {
		t.Fatalf("Type = %q, want general default", first.Type)
	}
	second, _ := r.Register("a1", Info{Task: "t2", Type: "code"})
	if second.RegisteredAt != first.RegisteredAt {
		t.Fatalf("RegisteredAt changed on re-register: %d -> %d", first.RegisteredAt, second.RegisteredAt)
	}
	got, ok := r.Get("a1")
	if !ok || got.Task != "t2" || got.Type != "code" {
		t.Fatalf("Get(a1) = %+v, %v", got, ok)
	}
}

func TestUnregister(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("a1", Info{})
	r.Register("a2", Info{})
	if err := r.Unregister("a1"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if err := r.Unregister("missing"); err != nil {
		t.Fatalf("Unregister(missing): %v", err)
	}
	if got := r.IDs(); !reflect.DeepEqual(got, []string{"a2"}) {
		t.Fatalf("IDs() = %v, want [a2]", got)
	}
}

func TestLoadCorruptIsEmpty(t *testing.T) {
	r := newTestRegistry(t)
	if err := os.WriteFile(r.Path(), []byte("not json"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	doc := r.Load()
	if doc.Agents == nil || len(doc.Agents) != 0 {
		t.Fatalf("Load() = %+v, want empty agents map", doc)
	}
	if _, err := r.Register("a1", Info{}); err != nil {
		t.Fatalf("Register over corrupt doc: %v", err)
	}
	if len(r.Load().Agents) != 1 {
		t.Fatal("register did not recover corrupt registry")
	}
}

func TestSetStatusOnlyTouchesRegistered(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("a1", Info{Status: "running"})
	r.SetStatus("a1", "complete")
	r.SetStatus("ghost", "complete")

	if e, _ := r.Get("a1"); e.Status != "complete" {
		t.Fatalf("status = %q, want complete", e.Status)
	}
	if _, ok := r.Get("ghost"); ok {
		t.Fatal("SetStatus registered an unknown agent")
	}
}

func TestSnapshotIsCompactAndBounded(t *testing.T) {
	r := newTestRegistry(t)
	long := strings.Repeat("word ", 100)
	r.Register("a1", Info{Task: long, Type: "code", Workspace: "X", Status: "running"})
	r.Register("a2", Info{Task: "short"})

	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].AgentID != "a1" || snap[1].AgentID != "a2" {
		t.Fatalf("Snapshot order = %+v", snap)
	}
	if n := len([]rune(snap[0].Task)); n != maxSnapshotTask {
		t.Fatalf("task length = %d, want %d", n, maxSnapshotTask)
	}

	text := FormatSnapshot(snap)
	if !strings.Contains(text, "- a1 [code, running] ws=X: word word") {
		t.Fatalf("FormatSnapshot missing a1 line:\n%s", text)
	}
	if !strings.Contains(text, "- a2 [general, unknown]: short") {
		t.Fatalf("FormatSnapshot missing a2 line:\n%s", text)
	}
}

func TestFormatSnapshotCapsRows(t *testing.T) {
	entries := make([]SnapshotEntry, maxSnapshotRows+5)
	for i := range entries {
		entries[i] = SnapshotEntry{AgentID: "a", Type: "general"}
	}
	text := FormatSnapshot(entries)
	if !strings.Contains(text, "... and 5 more") {
		t.Fatalf("expected overflow marker:\n%s", text)
	}
	if FormatSnapshot(nil) != "No agents registered." {
		t.Fatal("empty snapshot text mismatch")
	}
}
