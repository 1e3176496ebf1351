// Package registry keeps the shared directory of known agents in
// <base>/registry.json.
//
// The registry is advisory. Each agent's own status document is the
// authority on its state; the registry only makes agents discoverable
// without scanning every mailbox. Writes are whole-document
// read-modify-write. A process-local mutex orders writers inside one process,
// but writers in different processes can still lose each other's updates
// (last write wins).
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agusx1211/agentmail/internal/debug"
	"github.com/agusx1211/agentmail/internal/jsonfile"
)

// FileName is the registry document name inside the base directory.
const FileName = "registry.json"

const (
	maxSnapshotTask = 120
	maxSnapshotRows = 50
)

// Entry describes one agent.
type Entry struct {
	AgentID      string `json:"agentId"`
	Task         string `json:"task,omitempty"`
	Type         string `json:"type"`
	Workspace    string `json:"workspace,omitempty"`
	ParentAgent  string `json:"parentAgent,omitempty"`
	Status       string `json:"status,omitempty"`
	RegisteredAt int64  `json:"registeredAt"`
}

// Info is the caller-supplied part of an Entry.
type Info struct {
	Task        string
	Type        string
	Workspace   string
	ParentAgent string
	Status      string
}

// Document is the on-disk registry.
type Document struct {
	Agents map[string]Entry `json:"agents"`
}

// SnapshotEntry is the compact projection handed to an LLM.
type SnapshotEntry struct {
	AgentID   string `json:"agentId"`
	Type      string `json:"type"`
	Workspace string `json:"workspace,omitempty"`
	Status    string `json:"status,omitempty"`
	Task      string `json:"task,omitempty"`
}

// Registry reads and writes one registry document.
type Registry struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// New returns the registry stored under base.
func New(base string) *Registry {
	return &Registry{path: filepath.Join(base, FileName), now: time.Now}
}

// Path returns the document path.
func (r *Registry) Path() string {
	return r.path
}

// Load reads the registry. A missing or corrupt document loads as empty.
func (r *Registry) Load() Document {
	var doc Document
	if err := jsonfile.Read(r.path, &doc); err != nil {
		if !jsonfile.IsMissing(err) {
			debug.LogKV("registry", "unreadable registry, treating as empty", "path", r.path, "error", err)
		}
		doc = Document{}
	}
	if doc.Agents == nil {
		doc.Agents = make(map[string]Entry)
	}
	return doc
}

// Save replaces the registry document.
func (r *Registry) Save(doc Document) error {
	if doc.Agents == nil {
		doc.Agents = make(map[string]Entry)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("creating registry dir: %w", err)
	}
	return jsonfile.WriteAtomic(r.path, doc)
}

func (r *Registry) update(fn func(doc *Document)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc := r.Load()
	fn(&doc)
	return r.Save(doc)
}

// Register adds or replaces the entry for id. RegisteredAt is kept when the
// agent was already registered.
func (r *Registry) Register(id string, info Info) (Entry, error) {
	if strings.TrimSpace(id) == "" {
		return Entry{}, fmt.Errorf("registry: empty agent id")
	}
	var entry Entry
	err := r.update(func(doc *Document) {
		entry = Entry{
			AgentID:      id,
			Task:         info.Task,
			Type:         info.Type,
			Workspace:    info.Workspace,
			ParentAgent:  info.ParentAgent,
			Status:       info.Status,
			RegisteredAt: r.now().UnixMilli(),
		}
		if entry.Type == "" {
			entry.Type = "general"
		}
		if prev, ok := doc.Agents[id]; ok && prev.RegisteredAt != 0 {
			entry.RegisteredAt = prev.RegisteredAt
		}
		doc.Agents[id] = entry
	})
	if err != nil {
		return Entry{}, err
	}
	debug.LogKV("registry", "agent registered", "agent_id", id, "type", entry.Type, "parent", entry.ParentAgent)
	return entry, nil
}

// Unregister removes id. Removing an unknown id is not an error.
func (r *Registry) Unregister(id string) error {
	err := r.update(func(doc *Document) {
		delete(doc.Agents, id)
	})
	if err == nil {
		debug.LogKV("registry", "agent unregistered", "agent_id", id)
	}
	return err
}

// SetStatus mirrors a status into the entry for id, if registered.
func (r *Registry) SetStatus(id, status string) error {
	return r.update(func(doc *Document) {
		if e, ok := doc.Agents[id]; ok {
			e.Status = status
			doc.Agents[id] = e
		}
	})
}

// Get returns the entry for id.
func (r *Registry) Get(id string) (Entry, bool) {
	e, ok := r.Load().Agents[id]
	return e, ok
}

// Entries returns every entry ordered by registration time, then id.
func (r *Registry) Entries() []Entry {
	doc := r.Load()
	out := make([]Entry, 0, len(doc.Agents))
	for id, e := range doc.Agents {
		if e.AgentID == "" {
			e.AgentID = id
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RegisteredAt != out[j].RegisteredAt {
			return out[i].RegisteredAt < out[j].RegisteredAt
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out
}

// IDs returns the registered ids, sorted.
func (r *Registry) IDs() []string {
	doc := r.Load()
	ids := make([]string, 0, len(doc.Agents))
	for id := range doc.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FindByWorkspace returns the ids registered with workspace ws.
func (r *Registry) FindByWorkspace(ws string) []string {
	return r.filter(func(e Entry) bool { return e.Workspace == ws })
}

// FindByParent returns the ids whose parent is parentID.
func (r *Registry) FindByParent(parentID string) []string {
	return r.filter(func(e Entry) bool { return e.ParentAgent == parentID })
}

func (r *Registry) filter(keep func(Entry) bool) []string {
	var ids []string
	for _, e := range r.Entries() {
		if keep(e) {
			ids = append(ids, e.AgentID)
		}
	}
	return ids
}

// Snapshot returns the compact projection of every entry.
func (r *Registry) Snapshot() []SnapshotEntry {
	entries := r.Entries()
	out := make([]SnapshotEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, SnapshotEntry{
			AgentID:   e.AgentID,
			Type:      e.Type,
			Workspace: e.Workspace,
			Status:    e.Status,
			Task:      truncate(e.Task, maxSnapshotTask),
		})
	}
	return out
}

// FormatSnapshot renders a snapshot as bounded plain text, one agent per line.
func FormatSnapshot(entries []SnapshotEntry) string {
	if len(entries) == 0 {
		return "No agents registered."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Registered agents (%d):\n", len(entries))
	for i, e := range entries {
		if i == maxSnapshotRows {
			fmt.Fprintf(&b, "... and %d more\n", len(entries)-maxSnapshotRows)
			break
		}
		status := e.Status
		if status == "" {
			status = "unknown"
		}
		fmt.Fprintf(&b, "- %s [%s, %s]", e.AgentID, e.Type, status)
		if e.Workspace != "" {
			fmt.Fprintf(&b, " ws=%s", e.Workspace)
		}
		if e.Task != "" {
			fmt.Fprintf(&b, ": %s", e.Task)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
