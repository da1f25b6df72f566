// Package models holds the records exchanged between the squad bridge
// components and its API.
package models

import (
	"strings"
	"time"
)

// AgentType is the agent program a squad session runs.
type AgentType string

const (
	AgentClaude  AgentType = "claude" // code agent
	AgentCodex   AgentType = "codex"  // code generation
	AgentGemini  AgentType = "gemini" // generic model
	AgentAider   AgentType = "aider"  // pair programmer
	AgentAuto    AgentType = "auto"   // let the squad tool choose
	AgentUnknown AgentType = "unknown"
)

// DefaultAgentType is assumed when the squad tool does not report an agent.
const DefaultAgentType = AgentClaude

// KnownAgentTypes lists the agent types the squad tool accepts on create.
var KnownAgentTypes = []AgentType{AgentClaude, AgentCodex, AgentGemini, AgentAider, AgentAuto}

// ParseAgentType maps text reported by the squad tool onto an AgentType.
// Empty input yields DefaultAgentType; anything unrecognized yields AgentUnknown.
func ParseAgentType(s string) AgentType {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultAgentType
	}
	for _, known := range KnownAgentTypes {
		if string(known) == s {
			return known
		}
	}
	return AgentUnknown
}

// Valid reports whether a can be passed to the squad create subcommand.
func (a AgentType) Valid() bool {
	for _, known := range KnownAgentTypes {
		if a == known {
			return true
		}
	}
	return false
}

// Session statuses the bridge itself assigns. Anything else is passed through
// verbatim from the squad tool.
const (
	StatusActive  = "active"
	StatusUnknown = "unknown"
)

// Session is one squad session as last observed by the bridge. Timestamps are
// kept as the squad tool printed them.
type Session struct {
	ID           string    `json:"session_id" db:"id"`
	AgentType    AgentType `json:"agent_type" db:"agent_type"`
	ProjectPath  string    `json:"project_path" db:"project_path"`
	BranchName   string    `json:"branch_name" db:"branch_name"`
	Status       string    `json:"status" db:"status"`
	CreatedAt    string    `json:"created_at" db:"created_at"`
	LastActivity string    `json:"last_activity" db:"last_activity"`
	TmuxSession  string    `json:"tmux_session,omitempty" db:"tmux_session"`
}

// InstallationReport describes whether the squad command and its auxiliary
// tools are usable on this host.
type InstallationReport struct {
	Installed   bool      `json:"installed"`
	CommandPath string    `json:"command_path,omitempty"`
	Version     string    `json:"version,omitempty"`
	Tmux        bool      `json:"tmux_available"`
	Git         bool      `json:"git_available"`
	GH          bool      `json:"gh_available"`
	Errors      []string  `json:"errors"`
	CheckedAt   time.Time `json:"checked_at"`
	Cached      bool      `json:"cached"`
}

// Clone returns a deep copy of r.
func (r *InstallationReport) Clone() *InstallationReport {
	if r == nil {
		return nil
	}
	c := *r
	c.Errors = append([]string(nil), r.Errors...)
	return &c
}

// InstallResult is the outcome of running the installer.
type InstallResult struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Stdout  string              `json:"stdout,omitempty"`
	Stderr  string              `json:"stderr,omitempty"`
	Report  *InstallationReport `json:"installation,omitempty"`
}

// ExecResult is the outcome of running a command inside a session.
// ExitCode is -1 when the command timed out or could not be launched.
type ExecResult struct {
	Success  bool          `json:"success"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// CommandRun is one recorded Execute call.
type CommandRun struct {
	ID         string    `json:"id" db:"id"`
	SessionID  string    `json:"session_id" db:"session_id"`
	Command    string    `json:"command" db:"command"`
	Success    bool      `json:"success" db:"success"`
	ExitCode   int       `json:"exit_code" db:"exit_code"`
	Stdout     string    `json:"stdout" db:"stdout"`
	Stderr     string    `json:"stderr" db:"stderr"`
	Error      string    `json:"error,omitempty" db:"error"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	DurationMS int64     `json:"duration_ms" db:"duration_ms"`
}
