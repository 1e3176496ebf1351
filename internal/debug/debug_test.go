package debug

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestShouldEnableFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		enabled string
		path    string
		want    bool
	}{
		{name: "disabled by default", want: false},
		{name: "enabled explicit", enabled: "true", want: true},
		{name: "enabled via path", path: "/tmp/agentmail.log", want: true},
		{name: "explicit off wins", enabled: "off", path: "/tmp/agentmail.log", want: false},
		{name: "unknown toggle without path", enabled: "maybe", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvEnabled, tt.enabled)
			t.Setenv(EnvLogPath, tt.path)
			if got := ShouldEnableFromEnv(); got != tt.want {
				t.Fatalf("ShouldEnableFromEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoggingIsNoopWhenDisabled(t *testing.T) {
	Close()
	if Enabled() {
		t.Fatal("Enabled() = true before Init")
	}
	LogKV("test", "dropped", "k", "v")
	if Path() != "" {
		t.Fatalf("Path() = %q, want empty", Path())
	}
}

func TestInitAttachesToInheritedLog(t *testing.T) {
	defer Close()

	logPath := filepath.Join(t.TempDir(), "tree.log")
	if err := os.WriteFile(logPath, []byte("master line\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv(EnvLogPath, logPath)
	t.Setenv(EnvProcess, "worker:worker-1-abcd")

	got, err := Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got != logPath {
		t.Fatalf("Init() = %q, want %q", got, logPath)
	}

	LogKV("worker", "status written", "agent_id", "worker-1-abcd")
	Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	s := string(data)
	if !strings.HasPrefix(s, "master line\n") {
		t.Fatalf("existing content was not preserved: %q", s)
	}
	for _, want := range []string{
		"event=attach",
		"proc=worker:worker-1-abcd",
		"comp=worker",
		`msg="status written" agent_id=worker-1-abcd`,
		"event=close",
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("log missing %q:\n%s", want, s)
		}
	}
}

func TestPropagatedEnv(t *testing.T) {
	t.Run("disabled leaves env alone", func(t *testing.T) {
		defer Close()
		in := []string{"FOO=bar"}
		if out := PropagatedEnv(in, "worker:x"); !reflect.DeepEqual(out, in) {
			t.Fatalf("PropagatedEnv() = %v, want %v", out, in)
		}
	})

	t.Run("overlays debug vars", func(t *testing.T) {
		defer Close()
		logPath := filepath.Join(t.TempDir(), "shared.log")
		t.Setenv(EnvLogPath, logPath)
		if _, err := Init(); err != nil {
			t.Fatalf("Init: %v", err)
		}

		out := PropagatedEnv([]string{"FOO=bar", EnvEnabled + "=0"}, "worker:w1")
		m := envMap(out)
		if m["FOO"] != "bar" {
			t.Fatalf("FOO = %q, want bar", m["FOO"])
		}
		if m[EnvEnabled] != "1" {
			t.Fatalf("%s = %q, want 1", EnvEnabled, m[EnvEnabled])
		}
		if m[EnvLogPath] != logPath {
			t.Fatalf("%s = %q, want %q", EnvLogPath, m[EnvLogPath], logPath)
		}
		if m[EnvProcess] != "worker:w1" {
			t.Fatalf("%s = %q, want worker:w1", EnvProcess, m[EnvProcess])
		}
	})
}

func TestPairQuotesWhenNeeded(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"plain", " k=plain"},
		{"", ` k=""`},
		{"two words", ` k="two words"`},
		{`say "hi"`, ` k="say \"hi\""`},
		{"a=b", ` k="a=b"`},
	}
	for _, tt := range tests {
		var b strings.Builder
		pair(&b, "k", tt.value)
		if got := b.String(); got != tt.want {
			t.Fatalf("pair(%q) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestLogKVRecordsCaller(t *testing.T) {
	defer Close()
	logPath := filepath.Join(t.TempDir(), "caller.log")
	t.Setenv(EnvLogPath, logPath)
	t.Setenv(EnvProcess, "")
	if _, err := Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	LogKV("test", "hello", "odd")
	Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, "at=debug/debug_test.go:") {
		t.Fatalf("log missing caller:\n%s", s)
	}
	if !strings.Contains(s, "msg=hello extra=odd") {
		t.Fatalf("log missing odd trailing value:\n%s", s)
	}
}

func envMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			m[k] = v
		}
	}
	return m
}
