// Package parser turns the line-oriented "Label: value" output of the squad
// CLI into structured values. The parsers never fail: unrecognized lines are
// skipped and missing fields stay empty.
package parser

import (
	"strings"

	"github.com/kandev/squad-bridge/internal/common/stringutil"
	"github.com/kandev/squad-bridge/internal/squad/models"
)

// Keys produced by ParseCreate.
const (
	KeyID          = "id"
	KeyBranch      = "branch"
	KeyTmuxSession = "tmux_session"
	KeyCreated     = "created"
)

var createLabels = []struct {
	label string
	key   string
}{
	{"Session ID:", KeyID},
	{"Branch:", KeyBranch},
	{"Tmux Session:", KeyTmuxSession},
	{"Created:", KeyCreated},
}

// ParseCreate extracts the session metadata printed by `create`. Only labels
// that appear in out are present in the result.
func ParseCreate(out string) map[string]string {
	result := make(map[string]string)
	for _, line := range lines(out) {
		for _, l := range createLabels {
			if !strings.Contains(line, l.label) {
				continue
			}
			if _, value, ok := strings.Cut(line, ":"); ok {
				result[l.key] = strings.TrimSpace(value)
			}
		}
	}
	return result
}

// ParseStatus maps every "key: value" line of `status` output to an entry,
// with keys snake-cased ("Last Activity" becomes "last_activity").
func ParseStatus(out string) map[string]string {
	result := make(map[string]string)
	for _, line := range lines(out) {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = stringutil.SnakeKey(key)
		if key == "" {
			continue
		}
		result[key] = strings.TrimSpace(value)
	}
	return result
}

// field aliases accepted in `list` blocks, keyed by snake-cased label.
var listAliases = map[string]string{
	"id":            "id",
	"session":       "id",
	"session_id":    "id",
	"agent":         "agent",
	"agent_type":    "agent",
	"program":       "agent",
	"status":        "status",
	"state":         "status",
	"project":       "project",
	"path":          "project",
	"project_path":  "project",
	"branch":        "branch",
	"branch_name":   "branch",
	"created":       "created",
	"created_at":    "created",
	"updated":       "last_activity",
	"updated_at":    "last_activity",
	"last_activity": "last_activity",
	"tmux":          "tmux",
	"tmux_session":  "tmux",
}

// ParseList splits `list` output into blocks separated by blank lines or
// lines starting with "-" and converts each block into a Session, in input
// order. Blocks without an id are dropped.
func ParseList(out string) []*models.Session {
	var sessions []*models.Session
	current := map[string]string{}

	flush := func() {
		if len(current) == 0 {
			return
		}
		if s := sessionFromBlock(current); s != nil {
			sessions = append(sessions, s)
		}
		current = map[string]string{}
	}

	for _, line := range lines(out) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "-") {
			flush()
			continue
		}
		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		field, known := listAliases[stringutil.SnakeKey(key)]
		if !known {
			continue
		}
		current[field] = strings.TrimSpace(value)
	}
	flush()

	return sessions
}

func sessionFromBlock(block map[string]string) *models.Session {
	id := block["id"]
	if id == "" {
		return nil
	}
	status := block["status"]
	if status == "" {
		status = models.StatusUnknown
	}
	return &models.Session{
		ID:           id,
		AgentType:    models.ParseAgentType(block["agent"]),
		ProjectPath:  block["project"],
		BranchName:   block["branch"],
		Status:       status,
		CreatedAt:    block["created"],
		LastActivity: block["last_activity"],
		TmuxSession:  block["tmux"],
	}
}

// lines splits out on newlines with no length limit, dropping the empty
// element a trailing newline leaves and any carriage returns.
func lines(out string) []string {
	out = strings.TrimSuffix(out, "\n")
	if out == "" {
		return nil
	}
	result := strings.Split(out, "\n")
	for i, line := range result {
		result[i] = strings.TrimRight(line, "\r")
	}
	return result
}
