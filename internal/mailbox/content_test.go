package mailbox

import (
	"encoding/json"
	"testing"
)

func TestContentWireForms(t *testing.T) {
	res, err := Result(map[string]int{"passed": 3})
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	tests := []struct {
		name string
		in   Content
		want string
	}{
		{"text is a bare string", Text("hi"), `"hi"`},
		{"result is tagged", res, `{"type":"result","data":{"passed":3}}`},
		{"completion is tagged", CompletionReport(Completion{Status: StateError, Result: "boom", ExitCode: 2}),
			`{"type":"completion","status":"error","result":"boom","exitCode":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.in)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("Marshal = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestContentDecodesForeignPayloads(t *testing.T) {
	tests := []struct {
		raw      string
		wantKind Kind
		wantStr  string
	}{
		{`"plain"`, KindText, "plain"},
		{`{"type":"text","text":"tagged"}`, KindText, "tagged"},
		{`{"summary":"untagged"}`, KindResult, `{"summary":"untagged"}`},
		{`42`, KindResult, `42`},
		{`{"type":"completion","status":"complete","exitCode":0}`, KindCompletion, "[complete exit=0]"},
	}
	for _, tt := range tests {
		var c Content
		if err := json.Unmarshal([]byte(tt.raw), &c); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tt.raw, err)
		}
		if c.Kind != tt.wantKind || c.String() != tt.wantStr {
			t.Errorf("Unmarshal(%s) = kind %q %q, want %q %q", tt.raw, c.Kind, c.String(), tt.wantKind, tt.wantStr)
		}
	}
}
