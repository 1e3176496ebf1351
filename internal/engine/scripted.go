package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ToolCall is a tool invocation made by a Scripted engine.
type ToolCall struct {
	Name string
	Args json.RawMessage
}

// Step is one scripted response: tool calls run in order, then Reply is the
// final message.
type Step struct {
	ToolCalls []ToolCall
	Reply     string
	Err       error
}

// Scripted replays fixed steps, one per Prompt. When steps run out it replies
// with Fallback, or echoes the prompt if Fallback is nil.
type Scripted struct {
	hub

	mu       sync.Mutex
	steps    []Step
	system   string
	tools    map[string]Tool
	prompts  []string
	Fallback func(prompt string) string
}

// NewScripted returns an engine that plays steps in order.
func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps, tools: map[string]Tool{}}
}

// NewEcho returns a Scripted engine that answers every prompt with itself.
func NewEcho() *Scripted {
	return NewScripted()
}

func (s *Scripted) SetSystemPrompt(prompt string) {
	s.mu.Lock()
	s.system = prompt
	s.mu.Unlock()
}

func (s *Scripted) SetTools(tools []Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools = make(map[string]Tool, len(tools))
	for _, t := range tools {
		s.tools[t.Name] = t
	}
}

// SystemPrompt returns the last system prompt set.
func (s *Scripted) SystemPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.system
}

// Prompts returns every prompt received so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// ToolNames returns the names of the tools currently set.
func (s *Scripted) ToolNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	return names
}

func (s *Scripted) Prompt(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, text)
	var step Step
	if len(s.steps) > 0 {
		step = s.steps[0]
		s.steps = s.steps[1:]
	} else if s.Fallback != nil {
		step = Step{Reply: s.Fallback(text)}
	} else {
		step = Step{Reply: text}
	}
	s.mu.Unlock()

	s.emit(Event{Type: EventAgentStart})
	defer s.emit(Event{Type: EventAgentEnd})
	s.emit(Event{Type: EventTurnStart})

	for _, call := range step.ToolCalls {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		s.emit(Event{Type: EventToolExecutionStart, ToolName: call.Name, Args: call.Args})
		result, err := s.call(ctx, call)
		ev := Event{Type: EventToolExecutionEnd, ToolName: call.Name, Args: call.Args, Result: result}
		if err != nil {
			ev.IsError = true
			ev.Result = err.Error()
		}
		s.emit(ev)
		s.emit(Event{Type: EventTurnStart})
	}

	if step.Err != nil {
		s.emit(Event{Type: EventMessageEnd, Message: step.Reply, IsError: true})
		return step.Reply, step.Err
	}
	s.emit(Event{Type: EventMessageEnd, Message: step.Reply})
	return step.Reply, nil
}

func (s *Scripted) call(ctx context.Context, call ToolCall) (string, error) {
	s.mu.Lock()
	t, ok := s.tools[call.Name]
	s.mu.Unlock()
	if !ok || t.Execute == nil {
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
	args := call.Args
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return t.Execute(ctx, args)
}

// Args marshals v for a ToolCall, panicking on failure. Test helper.
func Args(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
