// Package mailbox stores the per-agent inbox, outbox and status documents.
//
// Layout under the base directory:
//
//	<base>/<agentId>/inbox.jsonl   messages sent to the agent (any sender appends)
//	<base>/<agentId>/outbox.jsonl  messages the agent emits (only the agent appends)
//	<base>/<agentId>/status.json   mutable status document
//
// Inbox and outbox are append-only. Reads are best effort: missing files read
// as empty and undecodable lines are skipped.
package mailbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agusx1211/agentmail/internal/debug"
	"github.com/agusx1211/agentmail/internal/hexid"
	"github.com/agusx1211/agentmail/internal/jsonfile"
)

const (
	InboxFile  = "inbox.jsonl"
	OutboxFile = "outbox.jsonl"
	StatusFile = "status.json"
)

var (
	// ErrInvalidID is returned for ids that cannot name a directory.
	ErrInvalidID = errors.New("invalid agent id")
	// ErrNoMailbox is returned when sending to an agent that has no mailbox.
	ErrNoMailbox = errors.New("mailbox does not exist")
)

// Message is one line of an inbox or outbox.
type Message struct {
	ID        string  `json:"id"`
	Content   Content `json:"content"`
	Timestamp int64   `json:"timestamp"`
	From      string  `json:"from,omitempty"`
}

// Time returns the message timestamp.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// ReadResult is the slice of a log after a cursor plus the full line count.
type ReadResult struct {
	Messages   []Message
	TotalLines int
}

// Paths are the canonical files of one mailbox.
type Paths struct {
	Dir    string
	Inbox  string
	Outbox string
	Status string
}

// Store manages the mailboxes under one base directory.
type Store struct {
	base string
	now  func() time.Time

	// mu serializes status read-modify-write within this process. Writers in
	// other processes can still interleave.
	mu sync.Mutex
}

// New returns a Store rooted at base. Nothing is created until a mailbox is.
func New(base string) *Store {
	return &Store{base: base, now: time.Now}
}

// Base returns the base directory.
func (s *Store) Base() string {
	return s.base
}

// ValidateID rejects ids that are empty or would escape the base directory.
func ValidateID(id string) error {
	switch {
	case strings.TrimSpace(id) == "", id == ".", id == "..":
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	case strings.ContainsAny(id, `/\`+"\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// PathsFor returns the canonical paths for id without touching the disk.
func (s *Store) PathsFor(id string) Paths {
	dir := filepath.Join(s.base, id)
	return Paths{
		Dir:    dir,
		Inbox:  filepath.Join(dir, InboxFile),
		Outbox: filepath.Join(dir, OutboxFile),
		Status: filepath.Join(dir, StatusFile),
	}
}

// CreateMailbox creates the directory and the three files of id if absent.
// Existing content is never truncated, so calling it again is harmless.
func (s *Store) CreateMailbox(id string) (Paths, error) {
	if err := ValidateID(id); err != nil {
		return Paths{}, err
	}
	p := s.PathsFor(id)
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return Paths{}, fmt.Errorf("creating mailbox dir %s: %w", p.Dir, err)
	}
	for _, f := range []string{p.Inbox, p.Outbox} {
		if err := jsonfile.Touch(f); err != nil {
			return Paths{}, fmt.Errorf("creating %s: %w", f, err)
		}
	}
	if err := s.createStatus(id, p.Status); err != nil {
		return Paths{}, err
	}
	return p, nil
}

func (s *Store) createStatus(id, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return fmt.Errorf("creating %s: %w", path, err)
	}
	initial := Status{
		AgentID:   id,
		Status:    StateCreated,
		UpdatedAt: s.now().UnixMilli(),
	}
	data, err := json.MarshalIndent(initial, "", "  ")
	if err == nil {
		_, err = f.Write(append(data, '\n'))
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Exists reports whether id has a mailbox directory.
func (s *Store) Exists(id string) bool {
	if ValidateID(id) != nil {
		return false
	}
	info, err := os.Stat(s.PathsFor(id).Dir)
	return err == nil && info.IsDir()
}

// List returns the ids of every mailbox under base, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.base, e.Name(), StatusFile)); err != nil {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) newMessage(content Content, from string) Message {
	now := s.now()
	return Message{
		ID:        fmt.Sprintf("%d-%s", now.UnixMilli(), hexid.New()),
		Content:   content,
		Timestamp: now.UnixMilli(),
		From:      from,
	}
}

// SendMessage appends a message to the inbox of id.
func (s *Store) SendMessage(id string, content Content) (Message, error) {
	return s.SendMessageFrom(id, "", content)
}

// SendMessageFrom is SendMessage with the sender recorded in From.
func (s *Store) SendMessageFrom(id, from string, content Content) (Message, error) {
	if err := s.requireMailbox(id); err != nil {
		return Message{}, err
	}
	msg := s.newMessage(content, from)
	if err := jsonfile.AppendLine(s.PathsFor(id).Inbox, msg); err != nil {
		return Message{}, fmt.Errorf("appending to inbox of %s: %w", id, err)
	}
	debug.LogKV("mailbox", "inbox append", "agent_id", id, "msg_id", msg.ID, "kind", content.Kind)
	return msg, nil
}

// SendText is SendMessage with a text payload.
func (s *Store) SendText(id, text string) (Message, error) {
	return s.SendMessage(id, Text(text))
}

// WriteOutbox appends a message from id to its own outbox.
func (s *Store) WriteOutbox(id string, content Content) (Message, error) {
	if err := s.requireMailbox(id); err != nil {
		return Message{}, err
	}
	msg := s.newMessage(content, id)
	if err := jsonfile.AppendLine(s.PathsFor(id).Outbox, msg); err != nil {
		return Message{}, fmt.Errorf("appending to outbox of %s: %w", id, err)
	}
	debug.LogKV("mailbox", "outbox append", "agent_id", id, "msg_id", msg.ID, "kind", content.Kind)
	return msg, nil
}

// WriteText is WriteOutbox with a text payload.
func (s *Store) WriteText(id, text string) (Message, error) {
	return s.WriteOutbox(id, Text(text))
}

func (s *Store) requireMailbox(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if !s.Exists(id) {
		return fmt.Errorf("%w: %s", ErrNoMailbox, id)
	}
	return nil
}

// ReadInbox returns the inbox messages after the first afterLine lines.
func (s *Store) ReadInbox(id string, afterLine int) ReadResult {
	return s.readLog(id, InboxFile, afterLine)
}

// ReadOutbox returns the outbox messages after the first afterLine lines.
func (s *Store) ReadOutbox(id string, afterLine int) ReadResult {
	return s.readLog(id, OutboxFile, afterLine)
}

// readLog counts every non-blank line, decodable or not, so that a cursor
// derived from TotalLines stays aligned with the file.
func (s *Store) readLog(id, name string, afterLine int) ReadResult {
	if ValidateID(id) != nil {
		return ReadResult{}
	}
	path := filepath.Join(s.base, id, name)
	lines, err := jsonfile.ReadLines(path)
	if err != nil {
		debug.LogKV("mailbox", "read failed", "path", path, "error", err)
	}
	if afterLine < 0 {
		afterLine = 0
	}

	res := ReadResult{TotalLines: len(lines)}
	for i := afterLine; i < len(lines); i++ {
		var msg Message
		if err := json.Unmarshal(lines[i], &msg); err != nil {
			debug.LogKV("mailbox", "skipping corrupt line", "path", path, "line", i+1, "error", err)
			continue
		}
		res.Messages = append(res.Messages, msg)
	}
	return res
}

// GetStatus returns the status of id. ok is false when there is no readable
// status document.
func (s *Store) GetStatus(id string) (st Status, ok bool) {
	doc, ok := s.readStatusDoc(id)
	if !ok {
		return Status{}, false
	}
	return decodeStatus(doc), true
}

func (s *Store) readStatusDoc(id string) (map[string]json.RawMessage, bool) {
	if ValidateID(id) != nil {
		return nil, false
	}
	var doc map[string]json.RawMessage
	if err := jsonfile.Read(s.PathsFor(id).Status, &doc); err != nil || doc == nil {
		return nil, false
	}
	return doc, true
}

// UpdateStatus merges patch into the status of id, stamps updatedAt and
// writes the whole document back. A missing or corrupt document is treated
// as empty. A terminal status is kept unless the patch sets Reopen.
func (s *Store) UpdateStatus(id string, patch Patch) (Status, error) {
	if err := ValidateID(id); err != nil {
		return Status{}, err
	}
	fields, err := patch.fields()
	if err != nil {
		return Status{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.readStatusDoc(id)
	if !ok {
		doc = map[string]json.RawMessage{}
	}
	current := decodeStatus(doc)
	if patch.Status != nil && IsTerminal(current.Status) && *patch.Status != current.Status && !patch.Reopen {
		debug.LogKV("mailbox", "ignoring transition out of terminal status",
			"agent_id", id, "current", current.Status, "requested", *patch.Status)
		delete(fields, "status")
	}

	for k, v := range fields {
		doc[k] = v
	}
	if _, ok := doc["agentId"]; !ok {
		doc["agentId"], _ = json.Marshal(id)
	}
	doc["updatedAt"], _ = json.Marshal(s.now().UnixMilli())

	p := s.PathsFor(id)
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return Status{}, fmt.Errorf("creating mailbox dir %s: %w", p.Dir, err)
	}
	if err := jsonfile.WriteAtomic(p.Status, doc); err != nil {
		return Status{}, fmt.Errorf("writing status of %s: %w", id, err)
	}
	return decodeStatus(doc), nil
}
