// Package events provides event types and utilities for the squad bridge event system.
package events

// Event types for squad sessions
const (
	SessionCreated    = "squad.session.created"
	SessionSynced     = "squad.session.synced"
	SessionTerminated = "squad.session.terminated"
)

// Event types for commands run inside sessions
const (
	CommandExecuted = "squad.command.executed"
)

// Event types for installation checks
const (
	InstallationChecked   = "squad.installation.checked"
	InstallationCompleted = "squad.installation.completed"
)

// AllSquadEvents matches every subject above.
const AllSquadEvents = "squad.>"
