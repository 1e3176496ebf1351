package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/agusx1211/agentmail/internal/engine"
	"github.com/agusx1211/agentmail/internal/mailbox"
)

// Worker holds what a worker's tools operate on. The inbox cursor lives in
// memory for the life of the process.
type Worker struct {
	AgentID string
	Mail    *mailbox.Store

	mu       sync.Mutex
	cursor   int
	reported *mailbox.Completion
}

// Tools returns check_inbox, send_update and report_result.
func (w *Worker) Tools() []engine.Tool {
	return []engine.Tool{
		{
			Name:        "check_inbox",
			Description: "Read messages sent to you since the last check.",
			Parameters:  schema(`{"type":"object","properties":{}}`),
			Execute:     w.checkInbox,
		},
		{
			Name:        "send_update",
			Description: "Send a progress update to the master.",
			Parameters: schema(`{"type":"object","properties":{
				"message":{"type":"string"}},"required":["message"]}`),
			Execute: w.sendUpdate,
		},
		{
			Name:        "report_result",
			Description: "Report the final result of your task. Call once when done.",
			Parameters: schema(`{"type":"object","properties":{
				"result":{"type":"string"},
				"success":{"type":"boolean","description":"Defaults to true"}},
				"required":["result"]}`),
			Execute: w.reportResult,
		},
	}
}

// Reported returns the completion recorded by report_result, if any.
func (w *Worker) Reported() (mailbox.Completion, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reported == nil {
		return mailbox.Completion{}, false
	}
	return *w.reported, true
}

func (w *Worker) checkInbox(_ context.Context, _ json.RawMessage) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	res := w.Mail.ReadInbox(w.AgentID, w.cursor)
	w.cursor = res.TotalLines
	if len(res.Messages) == 0 {
		return "No new messages.", nil
	}
	var b strings.Builder
	for _, m := range res.Messages {
		from := m.From
		if from == "" {
			from = "unknown"
		}
		fmt.Fprintf(&b, "From %s: %s\n", from, m.Content.String())
	}
	return b.String(), nil
}

func (w *Worker) sendUpdate(_ context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Message string `json:"message"`
	}
	if err := decode(raw, &args); err != nil {
		return "", err
	}
	if err := required("message", args.Message); err != nil {
		return "", err
	}
	if _, err := w.Mail.WriteText(w.AgentID, args.Message); err != nil {
		return "", err
	}
	return "Update sent.", nil
}

func (w *Worker) reportResult(_ context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Result  string `json:"result"`
		Success *bool  `json:"success"`
	}
	if err := decode(raw, &args); err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reported != nil {
		return "Result already reported.", nil
	}

	c := mailbox.Completion{Status: mailbox.StateComplete, Result: args.Result}
	if args.Success != nil && !*args.Success {
		c.Status = mailbox.StateError
		c.ExitCode = 1
	}
	if err := Finish(w.Mail, w.AgentID, c); err != nil {
		return "", err
	}
	w.reported = &c
	return "Result reported.", nil
}

// Finish writes a completion message to id's outbox and moves its status to
// the completion's terminal state.
func Finish(mail *mailbox.Store, id string, c mailbox.Completion) error {
	if _, err := mail.WriteOutbox(id, mailbox.CompletionReport(c)); err != nil {
		return fmt.Errorf("writing completion: %w", err)
	}
	if _, err := mail.UpdateStatus(id, mailbox.Patch{
		Status:   mailbox.Ptr(c.Status),
		Result:   mailbox.Ptr(c.Result),
		ExitCode: mailbox.Ptr(c.ExitCode),
	}); err != nil {
		return fmt.Errorf("writing status: %w", err)
	}
	return nil
}
