package cursor

import (
	"os"
	"testing"
)

func TestLoadMissingAndCorrupt(t *testing.T) {
	s := New(t.TempDir())
	if m := s.Load(); len(m) != 0 {
		t.Fatalf("Load(missing) = %v, want empty", m)
	}
	os.WriteFile(s.Path(), []byte("[1,2"), 0644)
	if m := s.Load(); len(m) != 0 {
		t.Fatalf("Load(corrupt) = %v, want empty", m)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Save(Map{"w1": 3, "w2": 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	m := s.Load()
	if m.Get("w1") != 3 || m.Get("w2") != 1 || m.Get("w3") != 0 {
		t.Fatalf("Load() = %v", m)
	}
}

func TestSaveNeverMovesBackward(t *testing.T) {
	s := New(t.TempDir())
	s.Save(Map{"w1": 5})

	stale := Map{"w1": 2, "w2": 4}
	if err := s.Save(stale); err != nil {
		t.Fatalf("Save: %v", err)
	}
	m := s.Load()
	if m.Get("w1") != 5 {
		t.Fatalf("w1 = %d, want 5 (stale writer rewound cursor)", m.Get("w1"))
	}
	if m.Get("w2") != 4 {
		t.Fatalf("w2 = %d, want 4", m.Get("w2"))
	}
}

func TestAdvanceIsMonotonic(t *testing.T) {
	m := Map{}
	m.Advance("a", 3)
	m.Advance("a", 1)
	if m["a"] != 3 {
		t.Fatalf("a = %d, want 3", m["a"])
	}
	c := m.Clone()
	c.Advance("a", 9)
	if m["a"] != 3 {
		t.Fatal("Clone shares storage with original")
	}
}

func TestForget(t *testing.T) {
	s := New(t.TempDir())
	s.Save(Map{"w1": 2, "w2": 3})
	if err := s.Forget("w1"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	m := s.Load()
	if _, ok := m["w1"]; ok || m.Get("w2") != 3 {
		t.Fatalf("Load() after Forget = %v", m)
	}
}
