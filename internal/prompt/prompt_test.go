package prompt

import (
	"strings"
	"testing"
)

func TestMasterIncludesAgentsAndExtra(t *testing.T) {
	got := Master(MasterOpts{
		AgentID: "2025-01-15-14-30-00-swift-falcon",
		WorkDir: "/repo",
		Agents:  "Registered agents (1):\n- w1 [code, running]: fix tests\n",
		Extra:   "Be terse.",
	})
	for _, want := range []string{
		"master agent `2025-01-15-14-30-00-swift-falcon`",
		"`wait_for_messages`",
		"Default working directory: `/repo`",
		"- w1 [code, running]: fix tests",
		"Be terse.",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("Master() missing %q:\n%s", want, got)
		}
	}
}

func TestMasterOmitsEmptySections(t *testing.T) {
	got := Master(MasterOpts{AgentID: "m1"})
	for _, unwanted := range []string{"## Workspace", "## Current Agents"} {
		if strings.Contains(got, unwanted) {
			t.Fatalf("Master() contains %q:\n%s", unwanted, got)
		}
	}
}

func TestWorkerRoleByType(t *testing.T) {
	tests := []struct {
		typ  string
		want string
	}{
		{typ: "code", want: "# Your Role: DEVELOPER"},
		{typ: "general", want: "# Your Role: WORKER"},
		{typ: "", want: "# Your Role: WORKER"},
	}
	for _, tt := range tests {
		got := Worker(WorkerOpts{AgentID: "w1", Type: tt.typ})
		if !strings.HasPrefix(got, tt.want) {
			t.Fatalf("Worker(%q) = %q, want prefix %q", tt.typ, got, tt.want)
		}
		if !strings.Contains(got, "`report_result`") {
			t.Fatalf("Worker(%q) does not mention report_result", tt.typ)
		}
	}
}
