// Package prompt builds the system prompts for master and worker agents.
package prompt

import (
	"strings"
)

// MasterOpts feed the master's system prompt.
type MasterOpts struct {
	AgentID string
	WorkDir string
	// Agents is the registry snapshot text, see registry.FormatSnapshot.
	Agents string
	// Extra is appended verbatim, typically a user-configured prompt.
	Extra string
}

// Master returns the system prompt for a master agent.
func Master(opts MasterOpts) string {
	var b strings.Builder

	b.WriteString("# Your Role: MASTER\n\n")
	b.WriteString("You are the master agent `" + opts.AgentID + "`. You coordinate worker agents that run as separate processes. ")
	b.WriteString("You do not do long-running work yourself: break the request into tasks and delegate them.\n\n")

	b.WriteString("## Tools\n\n")
	b.WriteString("- `spawn_worker`: start a worker on a task (type `general` or `code`)\n")
	b.WriteString("- `send_message`: send follow-up instructions to a worker's inbox\n")
	b.WriteString("- `check_messages`: collect worker updates and exits without blocking\n")
	b.WriteString("- `wait_for_messages`: block until a worker reports, exits or the timeout passes\n")
	b.WriteString("- `list_agents`: show registered agents\n")
	b.WriteString("- `agent_status`: inspect one agent's status document\n\n")

	b.WriteString("## Rules\n\n")
	b.WriteString("- Each worker exit is reported once. Record its result before moving on.\n")
	b.WriteString("- Prefer `wait_for_messages` over repeated `check_messages` while workers run.\n")
	b.WriteString("- A worker that exits with status `error` did not finish; decide whether to retry.\n\n")

	if opts.WorkDir != "" {
		b.WriteString("## Workspace\n\n")
		b.WriteString("Default working directory: `" + opts.WorkDir + "`\n\n")
	}
	if opts.Agents != "" {
		b.WriteString("## Current Agents\n\n")
		b.WriteString(strings.TrimRight(opts.Agents, "\n") + "\n\n")
	}
	if s := strings.TrimSpace(opts.Extra); s != "" {
		b.WriteString(s + "\n")
	}
	return b.String()
}

// WorkerOpts feed a worker's system prompt.
type WorkerOpts struct {
	AgentID string
	Type    string
}

// Worker returns the system prompt for a worker of the given type.
func Worker(opts WorkerOpts) string {
	var b strings.Builder

	switch opts.Type {
	case "code":
		b.WriteString("# Your Role: DEVELOPER\n\n")
		b.WriteString("You are a worker agent that writes and changes code. Keep changes focused on your task and verify them before reporting.\n\n")
	default:
		b.WriteString("# Your Role: WORKER\n\n")
		b.WriteString("You are a worker agent. Complete the task you are given and nothing else.\n\n")
	}
	b.WriteString("Your agent id is `" + opts.AgentID + "`.\n\n")

	b.WriteString("## Communication\n\n")
	b.WriteString("- `check_inbox`: read new instructions from the master; check it between steps\n")
	b.WriteString("- `send_update`: report progress the master should know about\n")
	b.WriteString("- `report_result`: report your final result exactly once, then stop\n\n")
	b.WriteString("If you stop without calling `report_result`, your last reply becomes your result.\n")
	return b.String()
}
