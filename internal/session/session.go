// Package session keeps master-side agent bindings alive across calls.
//
// A Manager maps session keys to agents. Reusing a key with the same
// provider, model and credential returns the same binding; changing any of
// them replaces it. Idle sessions are evicted by a sweep that runs between
// Start and Stop.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/agusx1211/agentmail/internal/agent"
	"github.com/agusx1211/agentmail/internal/agentid"
	"github.com/agusx1211/agentmail/internal/debug"
	"github.com/agusx1211/agentmail/internal/engine"
	"github.com/agusx1211/agentmail/internal/mailbox"
	"github.com/agusx1211/agentmail/internal/registry"
)

const (
	DefaultTTL           = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute

	// TypeMaster is the registry type of session-bound agents.
	TypeMaster = "master"
)

// ErrNoCredential is returned when the provider needs an API key and none
// was configured.
var ErrNoCredential = errors.New("no credential configured")

// Config describes the binding a caller wants.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	// AgentID reuses a persisted agent. Empty mints a new readable id.
	AgentID      string
	WorkDir      string
	SystemPrompt string

	// Command and Args configure the command provider.
	Command string
	Args    []string
}

func (c Config) fingerprint() string {
	h := sha256.New()
	for _, part := range []string{c.Provider, c.Model, c.APIKey} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c Config) engineConfig() engine.Config {
	return engine.Config{
		Provider: c.Provider,
		Model:    c.Model,
		APIKey:   c.APIKey,
		WorkDir:  c.WorkDir,
		Command:  c.Command,
		Args:     c.Args,
	}
}

// Options configure a Manager.
type Options struct {
	Base string
	// Factory defaults to engine.New.
	Factory       engine.Factory
	TTL           time.Duration
	SweepInterval time.Duration
	Clock         clock.Clock
	// Tools, when set, supplies the tool set for a newly bound agent.
	Tools func(agentID string) []engine.Tool
}

// Session is one live binding.
type Session struct {
	ID        string
	AgentID   string
	Provider  string
	Model     string
	Agent     *agent.Agent
	CreatedAt time.Time

	fingerprint string
	lastAccess  time.Time
}

// Info is a point-in-time copy of a session for listings.
type Info struct {
	ID         string
	AgentID    string
	Provider   string
	Model      string
	CreatedAt  time.Time
	LastAccess time.Time
}

// Manager owns the sessions of one process.
type Manager struct {
	opts  Options
	mail  *mailbox.Store
	reg   *registry.Registry
	clock clock.Clock

	mu       sync.Mutex
	sessions map[string]*Session

	loopMu sync.Mutex
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewManager returns a Manager. The sweep does not run until Start.
func NewManager(opts Options) *Manager {
	if opts.Factory == nil {
		opts.Factory = engine.New
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Manager{
		opts:     opts,
		mail:     mailbox.New(opts.Base),
		reg:      registry.New(opts.Base),
		clock:    opts.Clock,
		sessions: make(map[string]*Session),
	}
}

// Start launches the idle sweep. Calling Start twice is a no-op.
func (m *Manager) Start() {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.stop != nil {
		return
	}
	m.stop = make(chan struct{})
	ticker := m.clock.Ticker(m.opts.SweepInterval)
	m.wg.Add(1)
	go m.sweep(ticker, m.stop)
}

func (m *Manager) sweep(ticker *clock.Ticker, stop <-chan struct{}) {
	defer m.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := m.Cleanup(); n > 0 {
				debug.LogKV("session", "evicted idle sessions", "count", n)
			}
		}
	}
}

// Stop halts the sweep and destroys every remaining session.
func (m *Manager) Stop() {
	m.loopMu.Lock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	m.loopMu.Unlock()
	m.wg.Wait()

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Destroy(id)
	}
}

// GetOrCreate returns the session for id, creating or replacing it as
// needed. The bound agent's status is set to running.
func (m *Manager) GetOrCreate(ctx context.Context, id string, cfg Config) (*Session, error) {
	if cfg.APIKey == "" && engine.RequiresCredential(cfg.Provider) {
		return nil, fmt.Errorf("%w for provider %q", ErrNoCredential, cfg.Provider)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fp := cfg.fingerprint()
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		if s.fingerprint == fp {
			s.lastAccess = now
			return s, nil
		}
		debug.LogKV("session", "config changed, recreating", "session_id", id, "agent_id", s.AgentID)
		m.destroyLocked(id)
	}

	agentID := cfg.AgentID
	if agentID == "" {
		agentID = agentid.NewReadable(now)
	}
	if err := mailbox.ValidateID(agentID); err != nil {
		return nil, err
	}
	if !m.mail.Exists(agentID) {
		if _, err := m.mail.CreateMailbox(agentID); err != nil {
			return nil, fmt.Errorf("session %s: %w", id, err)
		}
	}

	eng, err := m.opts.Factory(cfg.engineConfig())
	if err != nil {
		return nil, fmt.Errorf("session %s: creating engine: %w", id, err)
	}
	eng.SetSystemPrompt(cfg.SystemPrompt)
	if m.opts.Tools != nil {
		eng.SetTools(m.opts.Tools(agentID))
	}

	if _, err := m.reg.Register(agentID, registry.Info{
		Type:      TypeMaster,
		Workspace: cfg.WorkDir,
		Status:    string(mailbox.StateRunning),
	}); err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	if _, err := m.mail.UpdateStatus(agentID, mailbox.Patch{
		Status:    mailbox.Ptr(mailbox.StateRunning),
		Type:      mailbox.Ptr(TypeMaster),
		PID:       mailbox.Ptr(os.Getpid()),
		StartedAt: mailbox.Ptr(now.UnixMilli()),
		Reopen:    true,
	}); err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}

	s := &Session{
		ID:          id,
		AgentID:     agentID,
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		Agent:       agent.New(agentID, m.mail, eng),
		CreatedAt:   now,
		fingerprint: fp,
		lastAccess:  now,
	}
	m.sessions[id] = s
	debug.LogKV("session", "created", "session_id", id, "agent_id", agentID, "provider", cfg.Provider, "model", cfg.Model)
	return s, nil
}

// Destroy removes the session and marks its agent stopped. The agent's
// directory is kept. It reports whether a session existed.
func (m *Manager) Destroy(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyLocked(id)
}

func (m *Manager) destroyLocked(id string) bool {
	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	delete(m.sessions, id)
	s.Agent.Close()

	if _, err := m.mail.UpdateStatus(s.AgentID, mailbox.StatusPatch(mailbox.StateStopped)); err != nil {
		debug.LogKV("session", "writing stopped status failed", "agent_id", s.AgentID, "error", err)
	}
	if err := m.reg.SetStatus(s.AgentID, string(mailbox.StateStopped)); err != nil {
		debug.LogKV("session", "mirroring stopped status failed", "agent_id", s.AgentID, "error", err)
	}
	debug.LogKV("session", "destroyed", "session_id", id, "agent_id", s.AgentID)
	return true
}

// Cleanup destroys sessions idle for longer than the TTL and returns how
// many it removed.
func (m *Manager) Cleanup() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if now.Sub(s.lastAccess) > m.opts.TTL {
			m.destroyLocked(id)
			n++
		}
	}
	return n
}

// Get returns the session for id without touching its access time.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List returns the live sessions sorted by id.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, Info{
			ID:         s.ID,
			AgentID:    s.AgentID,
			Provider:   s.Provider,
			Model:      s.Model,
			CreatedAt:  s.CreatedAt,
			LastAccess: s.lastAccess,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
