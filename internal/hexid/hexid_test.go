package hexid

import (
	"regexp"
	"testing"
)

func TestLengths(t *testing.T) {
	tests := []struct {
		name string
		fn   func() string
		re   string
	}{
		{"New", New, `^[0-9a-f]{8}$`},
		{"Short", Short, `^[0-9a-f]{4}$`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := tt.fn()
			if !regexp.MustCompile(tt.re).MatchString(id) {
				t.Fatalf("%s() = %q, want match %s", tt.name, id, tt.re)
			}
		})
	}
}

func TestNewUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := New()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate ID after %d iterations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}
