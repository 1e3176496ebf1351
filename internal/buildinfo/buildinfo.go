// Package buildinfo reports the version of the running binary.
package buildinfo

import (
	"runtime/debug"
	"strings"
	"time"
)

// Set with -ldflags "-X github.com/agusx1211/agentmail/internal/buildinfo.Version=...".
var (
	Version    = ""
	CommitHash = ""
	BuildDate  = ""
)

const unknown = "unknown"

// Info is build metadata ready for display.
type Info struct {
	Version    string
	CommitHash string
	BuildDate  string
}

// String renders "v1.2.3 (abc1234, 2026-01-02 03:04:05 UTC)".
func (i Info) String() string {
	return i.Version + " (" + i.ShortCommit() + ", " + i.BuildDate + ")"
}

// ShortCommit is the first 12 characters of the commit, keeping a -dirty
// suffix.
func (i Info) ShortCommit() string {
	hash, dirty := strings.CutSuffix(i.CommitHash, "-dirty")
	if len(hash) > 12 {
		hash = hash[:12]
	}
	if dirty {
		hash += "-dirty"
	}
	return hash
}

// vcs is what the go command stamps into the binary.
type vcs struct {
	module   string
	revision string
	time     string
	modified bool
}

func readVCS() vcs {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return vcs{}
	}
	v := parseSettings(bi.Settings)
	if mv := bi.Main.Version; mv != "" && mv != "(devel)" {
		v.module = mv
	}
	return v
}

func parseSettings(settings []debug.BuildSetting) vcs {
	var v vcs
	for _, s := range settings {
		val := strings.TrimSpace(s.Value)
		switch s.Key {
		case "vcs.revision":
			v.revision = val
		case "vcs.time":
			v.time = val
		case "vcs.modified":
			v.modified = strings.EqualFold(val, "true")
		}
	}
	return v
}

// Current prefers linker overrides and falls back to stamped VCS data.
func Current() Info {
	return resolve(readVCS())
}

func resolve(v vcs) Info {
	info := Info{
		Version:    firstNonEmpty(Version, v.module, "dev"),
		CommitHash: strings.TrimSpace(CommitHash),
		BuildDate:  firstNonEmpty(BuildDate, v.time),
	}
	if info.CommitHash == "" && v.revision != "" {
		info.CommitHash = v.revision
		if v.modified {
			info.CommitHash += "-dirty"
		}
	}
	if t, err := time.Parse(time.RFC3339, info.BuildDate); err == nil {
		info.BuildDate = t.UTC().Format("2006-01-02 15:04:05 UTC")
	}
	if info.CommitHash == "" {
		info.CommitHash = unknown
	}
	if info.BuildDate == "" {
		info.BuildDate = unknown
	}
	return info
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
