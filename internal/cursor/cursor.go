// Package cursor persists how many outbox lines a poller has consumed per
// agent, in <base>/cursors.json.
//
// Cursors only move forward. Save merges with the document already on disk,
// keeping the larger value per agent, so a stale map can never rewind a
// cursor and cause a message to be skipped or re-delivered indefinitely.
package cursor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/agusx1211/agentmail/internal/debug"
	"github.com/agusx1211/agentmail/internal/jsonfile"
)

// FileName is the cursor document name inside the base directory.
const FileName = "cursors.json"

// Map is agent id -> consumed outbox line count.
type Map map[string]int

// Get returns the cursor of id, zero when unset.
func (m Map) Get(id string) int {
	return m[id]
}

// Advance moves the cursor of id to n if n is ahead of it.
func (m Map) Advance(id string, n int) {
	if n > m[id] {
		m[id] = n
	}
}

// Clone returns an independent copy.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store reads and writes one cursor document.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns the cursor store under base.
func New(base string) *Store {
	return &Store{path: filepath.Join(base, FileName)}
}

// Path returns the document path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the cursors. Missing or corrupt documents load as empty and
// negative values are dropped.
func (s *Store) Load() Map {
	var raw map[string]int
	if err := jsonfile.Read(s.path, &raw); err != nil {
		if !jsonfile.IsMissing(err) {
			debug.LogKV("cursor", "unreadable cursor document, treating as empty", "path", s.path, "error", err)
		}
		return Map{}
	}
	m := make(Map, len(raw))
	for id, n := range raw {
		if n > 0 {
			m[id] = n
		}
	}
	return m
}

// Save writes m, merged forward-only with the document on disk.
func (s *Store) Save(m Map) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.Load()
	for id, n := range m {
		merged.Advance(id, n)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating cursor dir: %w", err)
	}
	return jsonfile.WriteAtomic(s.path, merged)
}

// Forget drops the cursor of id, for agents that left the registry.
func (s *Store) Forget(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.Load()
	if _, ok := m[id]; !ok {
		return nil
	}
	delete(m, id)
	return jsonfile.WriteAtomic(s.path, m)
}
