// Package agentid mints and parses agent identifiers.
//
// Two schemes exist. Master agents get a readable id built from the creation
// time and a random adjective-noun pair (2026-01-02-15-04-05-brave-otter).
// Workers spawned by the supervisor get worker-<epoch_ms>-<hex4>. Both are
// plain strings on disk; ids are never rewritten once minted.
package agentid

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/agusx1211/agentmail/internal/hexid"
)

const (
	readableLayout = "2006-01-02-15-04-05"
	workerPrefix   = "worker-"
)

var adjectives = []string{
	"amber", "bold", "brave", "bright", "calm", "clever", "cosmic", "crisp",
	"daring", "eager", "fierce", "gentle", "golden", "happy", "keen", "lively",
	"lucky", "mellow", "nimble", "proud", "quick", "quiet", "rapid", "shiny",
	"silent", "steady", "swift", "tidy", "vivid", "wise", "witty", "zesty",
}

var nouns = []string{
	"badger", "beacon", "comet", "coral", "falcon", "fern", "fox", "glacier",
	"harbor", "heron", "lantern", "lynx", "maple", "meadow", "otter", "owl",
	"panda", "pebble", "pine", "quartz", "raven", "river", "sparrow", "summit",
	"tiger", "tulip", "walrus", "willow", "wolf", "wren", "yak", "zephyr",
}

// Parsed is the decoded form of a readable id.
type Parsed struct {
	Timestamp   time.Time
	Adjective   string
	Noun        string
	DisplayName string
}

// NewReadable mints a readable id for the given time.
func NewReadable(now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", now.UTC().Format(readableLayout), pick(adjectives), pick(nouns))
}

// NewWorker mints a supervisor worker id for the given time.
func NewWorker(now time.Time) string {
	return fmt.Sprintf("%s%d-%s", workerPrefix, now.UnixMilli(), hexid.Short())
}

// Parse decodes a readable id. Anything malformed, including worker ids,
// reports ok=false.
func Parse(id string) (Parsed, bool) {
	parts := strings.Split(id, "-")
	if len(parts) != 8 {
		return Parsed{}, false
	}
	ts, err := time.Parse(readableLayout, strings.Join(parts[:6], "-"))
	if err != nil {
		return Parsed{}, false
	}
	adj, noun := parts[6], parts[7]
	if !isWord(adj) || !isWord(noun) {
		return Parsed{}, false
	}
	return Parsed{
		Timestamp:   ts,
		Adjective:   adj,
		Noun:        noun,
		DisplayName: title(adj) + " " + title(noun),
	}, true
}

// ParseWorker returns the spawn time encoded in a worker id.
func ParseWorker(id string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(id, workerPrefix)
	if !ok {
		return time.Time{}, false
	}
	msPart, suffix, ok := strings.Cut(rest, "-")
	if !ok || suffix == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(msPart, 10, 64)
	if err != nil || ms < 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// IsWorker reports whether id was minted by NewWorker.
func IsWorker(id string) bool {
	_, ok := ParseWorker(id)
	return ok
}

// DisplayName returns a short label for any id: the adjective-noun pair for
// readable ids, the id itself otherwise.
func DisplayName(id string) string {
	if p, ok := Parse(id); ok {
		return p.DisplayName
	}
	return id
}

func pick(words []string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		return words[0]
	}
	return words[n.Int64()]
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func title(s string) string {
	return strings.ToUpper(s[:1]) + s[1:]
}
