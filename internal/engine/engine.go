// Package engine defines the LLM agent engine that sessions and workers drive,
// plus the built-in implementations.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// EventType identifies an engine lifecycle event.
type EventType string

const (
	EventAgentStart         EventType = "agent_start"
	EventTurnStart          EventType = "turn_start"
	EventToolExecutionStart EventType = "tool_execution_start"
	EventToolExecutionEnd   EventType = "tool_execution_end"
	EventMessageEnd         EventType = "message_end"
	EventAgentEnd           EventType = "agent_end"
)

// Event is emitted to subscribers while a prompt runs.
type Event struct {
	Type     EventType
	ToolName string
	Args     json.RawMessage
	Result   string
	IsError  bool
	Message  string
}

// Tool is a function the model may call.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON schema object.
	Parameters json.RawMessage
	Execute    func(ctx context.Context, args json.RawMessage) (string, error)
}

// Engine runs prompts against a model.
type Engine interface {
	SetSystemPrompt(prompt string)
	SetTools(tools []Tool)
	// Prompt runs one prompt to completion and returns the final reply.
	Prompt(ctx context.Context, text string) (string, error)
	// Subscribe registers fn for every event and returns a function that
	// removes it.
	Subscribe(fn func(Event)) (unsubscribe func())
}

// Config selects and configures an engine.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	WorkDir  string

	// Command and Args launch an external agent CLI (provider "command").
	Command string
	Args    []string
	Env     map[string]string
}

// Factory builds an engine from a config.
type Factory func(Config) (Engine, error)

// ErrUnknownProvider is returned by New for an unregistered provider.
var ErrUnknownProvider = errors.New("unknown engine provider")

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{
		"command": func(cfg Config) (Engine, error) { return NewCommand(cfg) },
		"echo":    func(Config) (Engine, error) { return NewEcho(), nil },
	}
	// keyless providers authenticate on their own or need no model access.
	keyless = map[string]bool{"command": true, "echo": true}
)

// Register adds or replaces the factory for a provider that needs an API key.
func Register(provider string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[normalize(provider)] = f
	delete(keyless, normalize(provider))
}

// RequiresCredential reports whether provider needs Config.APIKey.
func RequiresCredential(provider string) bool {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	return !keyless[normalize(provider)]
}

// Providers lists registered provider names.
func Providers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New builds an engine for cfg.Provider. It satisfies Factory.
func New(cfg Config) (Engine, error) {
	factoriesMu.RLock()
	f, ok := factories[normalize(cfg.Provider)]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	return f(cfg)
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

// hub fans events out to subscribers.
type hub struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

func (h *hub) Subscribe(fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]func(Event))
	}
	id := h.next
	h.next++
	h.subs[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *hub) emit(ev Event) {
	h.mu.Lock()
	ids := make([]int, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.subs[id])
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
