package mailbox

import (
	"encoding/json"
	"fmt"
	"strings"
)

// State is an agent lifecycle status.
type State string

const (
	StateStarting State = "starting"
	StateCreated  State = "created"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateError    State = "error"
	StateStopped  State = "stopped"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateStarting, StateCreated, StateRunning, StateComplete, StateError, StateStopped:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether a process that reached s will never leave it.
// Only complete and error qualify; a stopped agent may be rebound later.
func IsTerminal(s State) bool {
	switch State(strings.ToLower(strings.TrimSpace(string(s)))) {
	case StateComplete, StateError:
		return true
	default:
		return false
	}
}

// Status mirrors status.json. Timestamps are unix milliseconds.
type Status struct {
	AgentID      string `json:"agentId"`
	Status       State  `json:"status"`
	PID          int    `json:"pid,omitempty"`
	Task         string `json:"task,omitempty"`
	Type         string `json:"type,omitempty"`
	StartedAt    int64  `json:"startedAt,omitempty"`
	LastActivity int64  `json:"lastActivity,omitempty"`
	ToolCalls    int    `json:"toolCalls"`
	Turns        int    `json:"turns"`
	LastToolName string `json:"lastToolName,omitempty"`
	Result       string `json:"result,omitempty"`
	ExitCode     *int   `json:"exitCode,omitempty"`
	UpdatedAt    int64  `json:"updatedAt"`

	// Fields holds every top-level key of the document, including ones this
	// program does not model.
	Fields map[string]json.RawMessage `json:"-"`
}

// Patch is a merge-patch for a status document. Nil fields are left as they
// are on disk.
type Patch struct {
	Status       *State  `json:"status,omitempty"`
	PID          *int    `json:"pid,omitempty"`
	Task         *string `json:"task,omitempty"`
	Type         *string `json:"type,omitempty"`
	StartedAt    *int64  `json:"startedAt,omitempty"`
	LastActivity *int64  `json:"lastActivity,omitempty"`
	ToolCalls    *int    `json:"toolCalls,omitempty"`
	Turns        *int    `json:"turns,omitempty"`
	LastToolName *string `json:"lastToolName,omitempty"`
	Result       *string `json:"result,omitempty"`
	ExitCode     *int    `json:"exitCode,omitempty"`

	// Fields merges arbitrary extra keys.
	Fields map[string]any `json:"-"`

	// Reopen allows the patch to move the status out of a terminal state.
	// Only used when a new session is bound to a persisted agent.
	Reopen bool `json:"-"`
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// StatusPatch is shorthand for a patch that only sets the status.
func StatusPatch(s State) Patch {
	return Patch{Status: &s}
}

func (p Patch) fields() (map[string]json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	out := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	for k, v := range p.Fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding field %q: %w", k, err)
		}
		out[k] = raw
	}
	return out, nil
}

func decodeStatus(doc map[string]json.RawMessage) Status {
	var st Status
	if data, err := json.Marshal(doc); err == nil {
		_ = json.Unmarshal(data, &st)
	}
	st.Fields = doc
	return st
}

// Field decodes an arbitrary top-level key into v.
func (s Status) Field(key string, v any) bool {
	raw, ok := s.Fields[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}
