package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/agusx1211/agentmail/internal/cursor"
	"github.com/agusx1211/agentmail/internal/debug"
	"github.com/agusx1211/agentmail/internal/engine"
	"github.com/agusx1211/agentmail/internal/mailbox"
	"github.com/agusx1211/agentmail/internal/registry"
	"github.com/agusx1211/agentmail/internal/signal"
	"github.com/agusx1211/agentmail/internal/supervisor"
)

// Master holds what the master's tools operate on.
type Master struct {
	AgentID    string
	Mail       *mailbox.Store
	Registry   *registry.Registry
	Cursors    *cursor.Store
	Poller     *signal.Poller
	Supervisor *supervisor.Supervisor
	Wait       signal.WaitOptions

	mu sync.Mutex
}

// Tools returns spawn_worker, send_message, check_messages,
// wait_for_messages, list_agents and agent_status.
func (m *Master) Tools() []engine.Tool {
	return []engine.Tool{
		{
			Name:        "spawn_worker",
			Description: "Start a worker agent on a task. Returns the worker id.",
			Parameters: schema(`{"type":"object","properties":{
				"task":{"type":"string","description":"What the worker should do"},
				"type":{"type":"string","enum":["general","code"]},
				"workspace":{"type":"string","description":"Working directory for the worker"}},
				"required":["task"]}`),
			Execute: m.spawnWorker,
		},
		{
			Name:        "send_message",
			Description: "Append a text message to an agent's inbox.",
			Parameters: schema(`{"type":"object","properties":{
				"agentId":{"type":"string"},
				"message":{"type":"string"}},
				"required":["agentId","message"]}`),
			Execute: m.sendMessage,
		},
		{
			Name:        "check_messages",
			Description: "Return new worker messages and exits without waiting.",
			Parameters:  schema(`{"type":"object","properties":{}}`),
			Execute:     m.checkMessages,
		},
		{
			Name:        "wait_for_messages",
			Description: "Block until a worker sends a message or exits, or the timeout passes.",
			Parameters: schema(`{"type":"object","properties":{
				"timeoutSeconds":{"type":"number","description":"Defaults to 60"}}}`),
			Execute: m.waitForMessages,
		},
		{
			Name:        "list_agents",
			Description: "List registered agents with their type, status and task.",
			Parameters:  schema(`{"type":"object","properties":{}}`),
			Execute:     m.listAgents,
		},
		{
			Name:        "agent_status",
			Description: "Show an agent's status document.",
			Parameters: schema(`{"type":"object","properties":{
				"agentId":{"type":"string"}},"required":["agentId"]}`),
			Execute: m.agentStatus,
		},
	}
}

func (m *Master) spawnWorker(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Task      string `json:"task"`
		Type      string `json:"type"`
		Workspace string `json:"workspace"`
	}
	if err := decode(raw, &args); err != nil {
		return "", err
	}
	if err := required("task", args.Task); err != nil {
		return "", err
	}
	w, err := m.Supervisor.Spawn(ctx, supervisor.Request{
		Task:      args.Task,
		Type:      args.Type,
		Parent:    m.AgentID,
		Workspace: args.Workspace,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Spawned %s worker %s (pid %d).", w.Type, w.ID, w.PID), nil
}

func (m *Master) sendMessage(_ context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		AgentID string `json:"agentId"`
		Message string `json:"message"`
	}
	if err := decode(raw, &args); err != nil {
		return "", err
	}
	if err := required("agentId", args.AgentID); err != nil {
		return "", err
	}
	if err := required("message", args.Message); err != nil {
		return "", err
	}
	msg, err := m.Mail.SendMessageFrom(args.AgentID, m.AgentID, mailbox.Text(args.Message))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Sent message %s to %s.", msg.ID, args.AgentID), nil
}

func (m *Master) checkMessages(_ context.Context, _ json.RawMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cursors := m.Cursors.Load()
	sigs := m.Poller.Poll(cursors)
	if err := m.Settle(cursors, sigs); err != nil {
		return "", err
	}
	return signal.Describe(sigs), nil
}

func (m *Master) waitForMessages(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		TimeoutSeconds float64 `json:"timeoutSeconds"`
	}
	if err := decode(raw, &args); err != nil {
		return "", err
	}
	opts := m.Wait
	if args.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(args.TimeoutSeconds * float64(time.Second))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cursors := m.Cursors.Load()
	sigs, err := m.Poller.Wait(ctx, cursors, opts)
	if err != nil {
		return "", err
	}
	if err := m.Settle(cursors, sigs); err != nil {
		return "", err
	}
	return signal.Describe(sigs), nil
}

// Settle persists cursors for delivered messages, then unregisters exited
// agents and drops their cursors so each exit reaches the master once.
func (m *Master) Settle(cursors cursor.Map, sigs []signal.Signal) error {
	signal.Advance(cursors, sigs)
	if err := m.Cursors.Save(cursors); err != nil {
		return fmt.Errorf("saving cursors: %w", err)
	}
	for _, s := range sigs {
		if s.Kind != signal.KindExit {
			continue
		}
		if err := m.Registry.Unregister(s.AgentID); err != nil {
			return fmt.Errorf("unregistering %s: %w", s.AgentID, err)
		}
		if err := m.Cursors.Forget(s.AgentID); err != nil {
			return fmt.Errorf("forgetting cursor of %s: %w", s.AgentID, err)
		}
		debug.LogKV("tools", "exit delivered", "agent_id", s.AgentID, "status", s.Status)
	}
	return nil
}

func (m *Master) listAgents(_ context.Context, _ json.RawMessage) (string, error) {
	return registry.FormatSnapshot(m.Registry.Snapshot()), nil
}

func (m *Master) agentStatus(_ context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		AgentID string `json:"agentId"`
	}
	if err := decode(raw, &args); err != nil {
		return "", err
	}
	if err := required("agentId", args.AgentID); err != nil {
		return "", err
	}
	st, ok := m.Mail.GetStatus(args.AgentID)
	if !ok {
		return fmt.Sprintf("No status for %s.", args.AgentID), nil
	}
	data, err := json.MarshalIndent(st.Fields, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
