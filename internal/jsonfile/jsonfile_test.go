package jsonfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteAtomicRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	in := map[string]int{"a": 1, "b": 2}
	if err := WriteAtomic(path, in); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	var out map[string]int
	if err := Read(path, &out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out["a"] != 1 || out["b"] != 2 {
		t.Fatalf("Read() = %v, want %v", out, in)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestReadMissing(t *testing.T) {
	var v map[string]any
	err := Read(filepath.Join(t.TempDir(), "nope.json"), &v)
	if !IsMissing(err) {
		t.Fatalf("Read() err = %v, want missing", err)
	}
}

func TestTouchNeverTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inbox.jsonl")
	if err := os.WriteFile(path, []byte("{\"id\":\"1\"}\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := Touch(path); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "{\"id\":\"1\"}\n" {
		t.Fatalf("content = %q after Touch", data)
	}
}

func TestAppendAndReadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox.jsonl")
	for i := 0; i < 3; i++ {
		if err := AppendLine(path, map[string]int{"n": i}); err != nil {
			t.Fatalf("AppendLine: %v", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	f.WriteString("\n   \n{\"n\":")
	f.Close()

	lines, err := ReadLines(path)
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3 (unterminated tail excluded)", len(lines))
	}
	if string(lines[0]) != `{"n":0}` {
		t.Fatalf("lines[0] = %q", lines[0])
	}

	f, err = os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	f.WriteString("3}\n")
	f.Close()

	lines, err = ReadLines(path)
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if len(lines) != 4 || string(lines[3]) != `{"n":3}` {
		t.Fatalf("lines = %q, want the completed tail as line 4", lines)
	}
}

func shrinkMaxLine(t *testing.T, n int) {
	t.Helper()
	old := maxLine
	maxLine = n
	t.Cleanup(func() { maxLine = old })
}

func TestReadLinesCountsOversizedLines(t *testing.T) {
	shrinkMaxLine(t, 32)
	path := filepath.Join(t.TempDir(), "outbox.jsonl")
	long := `{"text":"` + strings.Repeat("x", 200*1024) + `"}`
	data := "{\"n\":1}\n" + long + "\n{\"n\":2}\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	lines, err := ReadLines(path)
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	if lines[1] != nil {
		t.Fatalf("oversized line = %q, want nil", lines[1])
	}
	if string(lines[2]) != `{"n":2}` {
		t.Fatalf("lines[2] = %q, want the line after the oversized one", lines[2])
	}
}

func TestAppendLineRejectsOversized(t *testing.T) {
	shrinkMaxLine(t, 32)
	path := filepath.Join(t.TempDir(), "outbox.jsonl")
	err := AppendLine(path, map[string]string{"text": strings.Repeat("y", 64)})
	if !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("AppendLine() error = %v, want ErrLineTooLong", err)
	}
	if err := AppendLine(path, map[string]int{"n": 1}); err != nil {
		t.Fatalf("AppendLine(small): %v", err)
	}
	lines, _ := ReadLines(path)
	if len(lines) != 1 {
		t.Fatalf("len(lines) = %d, want 1", len(lines))
	}
}

func TestReadLinesMissingFile(t *testing.T) {
	lines, err := ReadLines(filepath.Join(t.TempDir(), "absent.jsonl"))
	if err != nil || lines != nil {
		t.Fatalf("ReadLines() = %v, %v; want nil, nil", lines, err)
	}
}
