// Package api provides HTTP handlers for the squad bridge API.
package api

import (
	"github.com/kandev/squad-bridge/internal/squad/history"
	"github.com/kandev/squad-bridge/internal/squad/models"
)

// CreateSessionRequest for starting a squad session
type CreateSessionRequest struct {
	ProjectPath string `json:"project_path" binding:"required"`
	AgentType   string `json:"agent_type,omitempty"`
	SessionName string `json:"session_name,omitempty"`
	AutoAccept  bool   `json:"auto_accept,omitempty"`
}

// ExecCommandRequest for running a command inside a session
type ExecCommandRequest struct {
	Command        string `json:"command" binding:"required"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// SessionsResponse lists sessions
type SessionsResponse struct {
	Sessions []*models.Session `json:"sessions"`
	Total    int               `json:"total"`
}

// StatusResponse carries the squad status fields of one session
type StatusResponse struct {
	SessionID string            `json:"session_id"`
	Status    map[string]string `json:"status"`
}

// TerminateResponse reports a terminated session
type TerminateResponse struct {
	SessionID  string `json:"session_id"`
	Terminated bool   `json:"terminated"`
}

// StatusesResponse carries the status of every known session, keyed by ID
type StatusesResponse struct {
	Statuses map[string]map[string]string `json:"statuses"`
}

// RunsResponse lists recorded command runs
type RunsResponse struct {
	SessionID string               `json:"session_id"`
	Runs      []*models.CommandRun `json:"runs"`
}

// SessionHistoryResponse lists journalled sessions
type SessionHistoryResponse struct {
	Sessions []*history.SessionRecord `json:"sessions"`
	Total    int                      `json:"total"`
}
