// Package debug is the opt-in diagnostic log shared by a master and the
// workers it spawns.
//
// Nothing is written until Init runs (--debug, or AGENTMAIL_DEBUG_ENABLED
// inherited from a parent). Records are logfmt lines appended to one file
// under ~/.agentmail/debug/; children receive the path through PropagatedEnv
// and append to the same file, so one log covers the whole process tree.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agusx1211/agentmail/internal/hexid"
)

const (
	// EnvEnabled toggles logging in child processes.
	EnvEnabled = "AGENTMAIL_DEBUG_ENABLED"
	// EnvLogPath points children at the parent's log file.
	EnvLogPath = "AGENTMAIL_DEBUG_LOG_PATH"
	// EnvProcess labels the process in every record.
	EnvProcess = "AGENTMAIL_DEBUG_PROCESS"
)

// Logger appends logfmt records to a file.
type Logger struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	opened  time.Time
	pid     int
	process string
}

var (
	active atomic.Pointer[Logger]
	initMu sync.Mutex
)

// Init opens the process-wide log and returns its path. Later calls return
// the path of the log already open.
func Init() (string, error) {
	initMu.Lock()
	defer initMu.Unlock()
	if l := active.Load(); l != nil {
		return l.path, nil
	}

	path, inherited, err := logPath()
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("debug: open log %s: %w", path, err)
	}
	l := &Logger{
		file:    f,
		path:    path,
		opened:  time.Now(),
		pid:     os.Getpid(),
		process: processLabel(),
	}
	event := "open"
	if inherited {
		event = "attach"
	}
	l.emit("debug", "", "log "+event, "event", event, "args", strings.Join(os.Args[1:], " "))
	active.Store(l)
	return path, nil
}

// Close writes a closing record and closes the file. It is a no-op when the
// log is not open.
func Close() {
	initMu.Lock()
	l := active.Swap(nil)
	initMu.Unlock()
	if l == nil {
		return
	}
	l.emit("debug", "", "log close", "event", "close",
		"elapsed", time.Since(l.opened).Truncate(time.Millisecond))
	l.mu.Lock()
	l.file.Close()
	l.mu.Unlock()
}

// Enabled reports whether the log is open.
func Enabled() bool {
	return active.Load() != nil
}

// Path returns the open log's path, or "".
func Path() string {
	if l := active.Load(); l != nil {
		return l.path
	}
	return ""
}

// ShouldEnableFromEnv reports whether inherited variables ask for logging.
// An explicit toggle wins; otherwise an inherited path enables it.
func ShouldEnableFromEnv() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvEnabled))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return strings.TrimSpace(os.Getenv(EnvLogPath)) != ""
}

// PropagatedEnv returns env with the debug variables set so a child appends
// to this process's log under the given label. env is returned as is when
// logging is off.
func PropagatedEnv(env []string, process string) []string {
	l := active.Load()
	if l == nil {
		return env
	}
	vars := map[string]string{EnvEnabled: "1", EnvLogPath: l.path}
	if p := strings.TrimSpace(process); p != "" {
		vars[EnvProcess] = p
	}
	out := make([]string, 0, len(env)+len(vars))
	for _, kv := range env {
		k, _, _ := strings.Cut(kv, "=")
		if _, overridden := vars[k]; !overridden {
			out = append(out, kv)
		}
	}
	for _, k := range []string{EnvEnabled, EnvLogPath, EnvProcess} {
		if v, ok := vars[k]; ok {
			out = append(out, k+"="+v)
		}
	}
	return out
}

// Log writes msg for component.
func Log(component, msg string) {
	if l := active.Load(); l != nil {
		l.emit(component, caller(), msg)
	}
}

// Logf writes a formatted message.
func Logf(component, format string, args ...any) {
	if l := active.Load(); l != nil {
		l.emit(component, caller(), fmt.Sprintf(format, args...))
	}
}

// LogKV writes msg followed by key/value pairs.
//
//	debug.LogKV("supervisor", "worker exited", "agent_id", id, "exit_code", 1)
func LogKV(component, msg string, kvs ...any) {
	if l := active.Load(); l != nil {
		l.emit(component, caller(), msg, kvs...)
	}
}

// emit renders one record:
//
//	ts=... pid=... proc=... comp=... at=file:line msg="..." k=v
func (l *Logger) emit(component, at, msg string, kvs ...any) {
	var b strings.Builder
	now := time.Now()
	b.WriteString("ts=" + now.Format("2006-01-02T15:04:05.000000Z07:00"))
	b.WriteString(" up=" + now.Sub(l.opened).Truncate(time.Microsecond).String())
	b.WriteString(" pid=" + strconv.Itoa(l.pid))
	pair(&b, "proc", l.process)
	pair(&b, "comp", component)
	if at != "" {
		pair(&b, "at", at)
	}
	pair(&b, "msg", msg)
	for i := 0; i+1 < len(kvs); i += 2 {
		pair(&b, fmt.Sprint(kvs[i]), fmt.Sprint(kvs[i+1]))
	}
	if len(kvs)%2 == 1 {
		pair(&b, "extra", fmt.Sprint(kvs[len(kvs)-1]))
	}
	b.WriteByte('\n')

	l.mu.Lock()
	l.file.WriteString(b.String())
	l.mu.Unlock()
}

func pair(b *strings.Builder, key, value string) {
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	if value == "" || strings.ContainsAny(value, " \t\n\"=") {
		b.WriteString(strconv.Quote(value))
		return
	}
	b.WriteString(value)
}

// caller names the function that called Log, Logf or LogKV as a path
// relative to the module.
func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "?"
	}
	for _, marker := range []string{"/internal/", "/cmd/"} {
		if idx := strings.LastIndex(file, marker); idx >= 0 {
			file = file[idx+len(marker):]
			break
		}
	}
	return file + ":" + strconv.Itoa(line)
}

func logPath() (path string, inherited bool, err error) {
	if p := strings.TrimSpace(os.Getenv(EnvLogPath)); p != "" {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return "", true, fmt.Errorf("debug: create dir for %s: %w", p, err)
		}
		return p, true, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("debug: user home dir: %w", err)
	}
	dir := filepath.Join(home, ".agentmail", "debug")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", false, fmt.Errorf("debug: create dir %s: %w", dir, err)
	}
	name := time.Now().Format("20060102T150405") + "_" + hexid.New() + ".log"
	return filepath.Join(dir, name), false, nil
}

// processLabel is EnvProcess, or the binary name plus its first
// non-flag argument.
func processLabel() string {
	if p := strings.TrimSpace(os.Getenv(EnvProcess)); p != "" {
		return p
	}
	name := filepath.Base(os.Args[0])
	for _, arg := range os.Args[1:] {
		if arg = strings.TrimSpace(arg); arg != "" && !strings.HasPrefix(arg, "-") {
			return name + ":" + arg
		}
	}
	return name
}
