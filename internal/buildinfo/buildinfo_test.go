package buildinfo

import (
	"runtime/debug"
	"testing"
)

func withOverrides(t *testing.T, version, commit, date string) {
	t.Helper()
	oldVersion, oldCommit, oldDate := Version, CommitHash, BuildDate
	t.Cleanup(func() {
		Version, CommitHash, BuildDate = oldVersion, oldCommit, oldDate
	})
	Version, CommitHash, BuildDate = version, commit, date
}

func TestResolvePrefersOverrides(t *testing.T) {
	withOverrides(t, "v1.2.3", "abc1234", "2026-02-12T10:11:12Z")

	info := resolve(vcs{module: "v0.0.1", revision: "ffff", time: "2020-01-01T00:00:00Z"})
	if info.Version != "v1.2.3" {
		t.Fatalf("version = %q, want %q", info.Version, "v1.2.3")
	}
	if info.CommitHash != "abc1234" {
		t.Fatalf("commit hash = %q, want %q", info.CommitHash, "abc1234")
	}
	if info.BuildDate != "2026-02-12 10:11:12 UTC" {
		t.Fatalf("build date = %q, want %q", info.BuildDate, "2026-02-12 10:11:12 UTC")
	}
}

func TestResolveFallsBackToVCS(t *testing.T) {
	withOverrides(t, "", "", "")

	v := parseSettings([]debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.time", Value: "2026-03-01T08:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
	})
	info := resolve(v)
	if info.Version != "dev" {
		t.Fatalf("version = %q, want %q", info.Version, "dev")
	}
	if info.CommitHash != "0123456789abcdef0123-dirty" {
		t.Fatalf("commit hash = %q", info.CommitHash)
	}
	if got := info.ShortCommit(); got != "0123456789ab-dirty" {
		t.Fatalf("ShortCommit() = %q, want %q", got, "0123456789ab-dirty")
	}
	if got := info.String(); got != "dev (0123456789ab-dirty, 2026-03-01 08:00:00 UTC)" {
		t.Fatalf("String() = %q", got)
	}
}

func TestResolvePopulatesUnknowns(t *testing.T) {
	withOverrides(t, "", "", "")

	info := resolve(vcs{})
	if info.CommitHash != unknown || info.BuildDate != unknown {
		t.Fatalf("info = %+v, want unknown commit and date", info)
	}
	if info.Version == "" {
		t.Fatal("version should not be empty")
	}
}
