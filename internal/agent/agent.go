// Package agent binds an engine to a mailbox: engine activity is mirrored
// into the agent's status document.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/agusx1211/agentmail/internal/debug"
	"github.com/agusx1211/agentmail/internal/engine"
	"github.com/agusx1211/agentmail/internal/mailbox"
)

// Stats are the activity counters kept in status.json.
type Stats struct {
	ToolCalls    int
	Turns        int
	LastToolName string
	LastActivity time.Time
}

// Agent is an engine bound to a mailbox id.
type Agent struct {
	id     string
	mail   *mailbox.Store
	engine engine.Engine
	now    func() time.Time
	unsub  func()

	mu    sync.Mutex
	stats Stats
}

// New subscribes to eng and starts counting from whatever the status
// document already records, so a rebound agent keeps its totals.
func New(id string, mail *mailbox.Store, eng engine.Engine) *Agent {
	a := &Agent{id: id, mail: mail, engine: eng, now: time.Now}
	if st, ok := mail.GetStatus(id); ok {
		a.stats.ToolCalls = st.ToolCalls
		a.stats.Turns = st.Turns
		a.stats.LastToolName = st.LastToolName
		if st.LastActivity > 0 {
			a.stats.LastActivity = time.UnixMilli(st.LastActivity)
		}
	}
	a.unsub = eng.Subscribe(a.observe)
	return a
}

func (a *Agent) ID() string { return a.id }

func (a *Agent) Engine() engine.Engine { return a.engine }

// Stats returns a copy of the counters.
func (a *Agent) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Run sends prompt to the engine and returns its reply.
func (a *Agent) Run(ctx context.Context, prompt string) (string, error) {
	debug.LogKV("agent", "prompt", "agent_id", a.id, "prompt_len", len(prompt))
	reply, err := a.engine.Prompt(ctx, prompt)
	if err != nil {
		debug.LogKV("agent", "prompt failed", "agent_id", a.id, "error", err)
	}
	return reply, err
}

// Close stops mirroring engine events.
func (a *Agent) Close() {
	if a.unsub != nil {
		a.unsub()
	}
}

func (a *Agent) observe(ev engine.Event) {
	now := a.now()

	a.mu.Lock()
	patch := mailbox.Patch{LastActivity: mailbox.Ptr(now.UnixMilli())}
	a.stats.LastActivity = now
	switch ev.Type {
	case engine.EventTurnStart:
		a.stats.Turns++
		patch.Turns = mailbox.Ptr(a.stats.Turns)
	case engine.EventToolExecutionStart:
		a.stats.ToolCalls++
		a.stats.LastToolName = ev.ToolName
		patch.ToolCalls = mailbox.Ptr(a.stats.ToolCalls)
		patch.LastToolName = mailbox.Ptr(ev.ToolName)
	case engine.EventToolExecutionEnd:
		if ev.IsError {
			debug.LogKV("agent", "tool failed", "agent_id", a.id, "tool", ev.ToolName, "error", ev.Result)
		}
	}
	a.mu.Unlock()

	if _, err := a.mail.UpdateStatus(a.id, patch); err != nil {
		debug.LogKV("agent", "status update failed", "agent_id", a.id, "event", ev.Type, "error", err)
	}
}
