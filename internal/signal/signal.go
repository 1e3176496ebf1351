// Package signal turns mailbox state into discrete signals: new outbox
// messages, agent exits and wait timeouts.
//
// Poll is a single non-blocking pass. Wait repeats Poll on an interval until
// something is found, the deadline passes or the context is cancelled. All
// waiting goes through an injected clock so tests can drive it without
// sleeping.
package signal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"

	"github.com/agusx1211/agentmail/internal/cursor"
	"github.com/agusx1211/agentmail/internal/debug"
	"github.com/agusx1211/agentmail/internal/eventq"
	"github.com/agusx1211/agentmail/internal/mailbox"
	"github.com/agusx1211/agentmail/internal/registry"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultTimeout      = 60 * time.Second
)

// ErrCancelled is returned by Wait when its context ends before any signal
// or the deadline. It also matches the context's own error.
var ErrCancelled = errors.New("wait cancelled")

// Kind identifies a signal.
type Kind string

const (
	KindMessage Kind = "agent_message"
	KindExit    Kind = "agent_exit"
	KindTimeout Kind = "timeout"
)

// Signal is one observation.
//
// For KindMessage, Messages holds the new outbox lines and Cursor the line
// count to persist once they are handled. For KindExit, Status, Result and
// ExitCode come from the agent's status document.
type Signal struct {
	Kind     Kind
	AgentID  string
	Messages []mailbox.Message
	Cursor   int
	Status   mailbox.State
	Result   string
	ExitCode *int
}

// Options configure a Poller.
type Options struct {
	// Clock defaults to the wall clock.
	Clock clock.Clock
	// Watch wakes waits early on filesystem changes under the base directory.
	// Polling still runs; the watch only shortens latency.
	Watch bool
}

// WaitOptions bound a single Wait. Zero values take the defaults.
type WaitOptions struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// Poller reads mailboxes of registered agents.
type Poller struct {
	mail  *mailbox.Store
	reg   *registry.Registry
	clock clock.Clock
	watch bool
}

// NewPoller returns a Poller over the given stores.
func NewPoller(mail *mailbox.Store, reg *registry.Registry, opts Options) *Poller {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Poller{mail: mail, reg: reg, clock: clk, watch: opts.Watch}
}

// Poll makes one pass over every registered agent, in id order. Exit signals
// are level-triggered: an agent in a terminal status produces one on every
// poll until the caller stops tracking it (usually by unregistering it).
func (p *Poller) Poll(cursors cursor.Map) []Signal {
	var out []Signal
	for _, id := range p.reg.IDs() {
		if st, ok := p.mail.GetStatus(id); ok && mailbox.IsTerminal(st.Status) {
			out = append(out, Signal{
				Kind:     KindExit,
				AgentID:  id,
				Status:   st.Status,
				Result:   st.Result,
				ExitCode: st.ExitCode,
			})
		}

		res := p.mail.ReadOutbox(id, cursors.Get(id))
		if len(res.Messages) > 0 {
			out = append(out, Signal{
				Kind:     KindMessage,
				AgentID:  id,
				Messages: res.Messages,
				Cursor:   res.TotalLines,
			})
		}
	}
	return out
}

// Wait polls until signals appear, the timeout elapses or ctx ends. A timeout
// is not an error: it returns a single KindTimeout signal. Cancellation
// returns an error wrapping ErrCancelled.
func (p *Poller) Wait(ctx context.Context, cursors cursor.Map, opts WaitOptions) ([]Signal, error) {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var wake <-chan struct{}
	if p.watch {
		w, ch := p.startWatch()
		if w != nil {
			defer w.Close()
			wake = ch
		}
	}

	deadline := p.clock.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		if sigs := p.Poll(cursors); len(sigs) > 0 {
			return sigs, nil
		}

		remaining := deadline.Sub(p.clock.Now())
		if remaining <= 0 {
			debug.LogKV("signal", "wait timed out", "timeout", timeout)
			return []Signal{{Kind: KindTimeout}}, nil
		}
		step := interval
		if remaining < step {
			step = remaining
		}

		timer := p.clock.Timer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		case <-timer.C:
		case <-wake:
			timer.Stop()
		}
	}
}

// startWatch watches the base directory and every registered agent's
// directory. Failure to watch is logged and waiting falls back to polling.
func (p *Poller) startWatch() (*fsnotify.Watcher, <-chan struct{}) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		debug.LogKV("signal", "fsnotify unavailable, polling only", "error", err)
		return nil, nil
	}
	if err := w.Add(p.mail.Base()); err != nil {
		debug.LogKV("signal", "cannot watch base dir", "base", p.mail.Base(), "error", err)
	}
	for _, id := range p.reg.IDs() {
		if err := w.Add(p.mail.PathsFor(id).Dir); err != nil {
			debug.LogKV("signal", "cannot watch agent dir", "agent_id", id, "error", err)
		}
	}

	ch := eventq.NewWake()
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				eventq.Wake(ch)
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return w, ch
}

// Advance records the cursors carried by message signals.
func Advance(cursors cursor.Map, sigs []Signal) {
	for _, s := range sigs {
		if s.Kind == KindMessage {
			cursors.Advance(s.AgentID, s.Cursor)
		}
	}
}

// Describe renders signals as plain text for an LLM or a terminal.
func Describe(sigs []Signal) string {
	if len(sigs) == 0 {
		return "No new signals."
	}
	var b strings.Builder
	for _, s := range sigs {
		switch s.Kind {
		case KindTimeout:
			b.WriteString("Timed out waiting for agents.\n")
		case KindExit:
			code := "?"
			if s.ExitCode != nil {
				code = strconv.Itoa(*s.ExitCode)
			}
			fmt.Fprintf(&b, "Agent %s exited: status=%s exit_code=%s", s.AgentID, s.Status, code)
			if s.Result != "" {
				b.WriteString(" result=" + s.Result)
			}
			b.WriteByte('\n')
		case KindMessage:
			for _, m := range s.Messages {
				fmt.Fprintf(&b, "Message from %s: %s\n", s.AgentID, m.Content.String())
			}
		}
	}
	return b.String()
}
