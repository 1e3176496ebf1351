package agentid

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReadableRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	id := NewReadable(now)
	require.True(t, strings.HasPrefix(id, "2026-03-14-09-26-53-"), "id = %q", id)

	p, ok := Parse(id)
	require.True(t, ok, "Parse(%q) failed", id)
	assert.True(t, p.Timestamp.Equal(now))
	assert.Contains(t, adjectives, p.Adjective)
	assert.Contains(t, nouns, p.Noun)
	assert.Equal(t, strings.ToUpper(p.Adjective[:1])+p.Adjective[1:]+" "+strings.ToUpper(p.Noun[:1])+p.Noun[1:], p.DisplayName)
}

func TestParseKnownID(t *testing.T) {
	p, ok := Parse("2025-12-31-23-59-59-brave-otter")
	require.True(t, ok)
	assert.Equal(t, "brave", p.Adjective)
	assert.Equal(t, "otter", p.Noun)
	assert.Equal(t, "Brave Otter", p.DisplayName)
	assert.Equal(t, time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC), p.Timestamp)
}

func TestParseMalformed(t *testing.T) {
	for _, id := range []string{
		"",
		"brave-otter",
		"2025-12-31-23-59-59-brave",
		"2025-13-31-23-59-59-brave-otter",
		"2025-12-31-23-59-59-Brave-otter",
		"2025-12-31-23-59-59-brave-otter-extra",
		"worker-1700000000000-ab12",
	} {
		if _, ok := Parse(id); ok {
			t.Errorf("Parse(%q) ok = true, want false", id)
		}
	}
}

func TestNewWorker(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	id := NewWorker(now)
	require.Regexp(t, regexp.MustCompile(`^worker-1700000000123-[0-9a-f]{4}$`), id)

	ts, ok := ParseWorker(id)
	require.True(t, ok)
	assert.Equal(t, now.UnixMilli(), ts.UnixMilli())
	assert.True(t, IsWorker(id))
	assert.False(t, IsWorker("2025-12-31-23-59-59-brave-otter"))
	assert.False(t, IsWorker("worker-abc-1234"))
	assert.False(t, IsWorker("worker-123"))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Swift Heron", DisplayName("2025-01-01-00-00-00-swift-heron"))
	assert.Equal(t, "worker-1-abcd", DisplayName("worker-1-abcd"))
}
