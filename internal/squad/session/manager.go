// Package session drives squad sessions through the squad command and keeps
// the in-process table of sessions the bridge has observed.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kandev/squad-bridge/internal/common/constants"
	apperrors "github.com/kandev/squad-bridge/internal/common/errors"
	"github.com/kandev/squad-bridge/internal/common/logger"
	"github.com/kandev/squad-bridge/internal/common/stringutil"
	"github.com/kandev/squad-bridge/internal/events"
	"github.com/kandev/squad-bridge/internal/squad/models"
	"github.com/kandev/squad-bridge/internal/squad/parser"
	"github.com/kandev/squad-bridge/internal/squad/runner"
)

const commandName = "claude-squad"

// Locator yields the resolved squad command, or "" when absent.
type Locator interface {
	Path() string
}

// Recorder journals what the manager observes. Failures are logged only.
type Recorder interface {
	RecordSession(ctx context.Context, s *models.Session) error
	MarkTerminated(ctx context.Context, id string, at time.Time) error
	RecordRun(ctx context.Context, run *models.CommandRun) error
}

// CreateRequest holds the arguments of Create.
type CreateRequest struct {
	ProjectPath string           `json:"project_path"`
	AgentType   models.AgentType `json:"agent_type"`
	Name        string           `json:"session_name,omitempty"`
	AutoAccept  bool             `json:"auto_accept,omitempty"`
}

// Config holds the manager's tunables.
type Config struct {
	// ProjectsDir roots relative project paths.
	ProjectsDir string
	// ExecTimeout applies when Execute is called with a non-positive timeout.
	ExecTimeout time.Duration
}

// Manager runs the create, list, exec, terminate and status subcommands.
// No lock is held while a subprocess runs, so concurrent Create and List
// calls race on table writes and the last writer wins.
type Manager struct {
	locator   Locator
	runner    runner.Runner
	table     *Table
	cfg       Config
	publisher *events.Publisher
	recorder  Recorder
	logger    *logger.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithPublisher emits session and command events.
func WithPublisher(p *events.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithRecorder journals sessions and command runs.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// NewManager creates a Manager.
func NewManager(loc Locator, r runner.Runner, cfg Config, log *logger.Logger, opts ...Option) *Manager {
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = constants.DefaultExecTimeout
	}
	m := &Manager{
		locator: loc,
		runner:  r,
		table:   NewTable(),
		cfg:     cfg,
		logger:  log.WithComponent("session-manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Table exposes the session table.
func (m *Manager) Table() *Table {
	return m.table
}

// Create starts a new squad session and adds it to the table. It fails with
// INSTALLATION_MISSING when no squad command is located, VALIDATION_ERROR for
// bad input, and SESSION_ERROR when the squad command fails.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*models.Session, error) {
	cmd := m.locator.Path()
	if cmd == "" {
		return nil, apperrors.InstallationMissing(commandName)
	}

	agent := req.AgentType
	if agent == "" {
		agent = models.DefaultAgentType
	}
	if !agent.Valid() {
		return nil, apperrors.ValidationError("agent_type", fmt.Sprintf("unsupported agent type %q", agent))
	}
	if strings.TrimSpace(req.ProjectPath) == "" {
		return nil, apperrors.ValidationError("project_path", "project path is required")
	}

	projectPath, err := m.resolveProjectPath(req.ProjectPath)
	if err != nil {
		return nil, apperrors.SessionError("failed to prepare project directory", err)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = fmt.Sprintf("%s-session-%d", agent, m.table.Len()+1)
	}

	args := []string{"create", "--agent", string(agent), "--project", projectPath, "--name", name}
	if req.AutoAccept {
		args = append(args, "--auto-accept")
	}

	log := m.logger.WithFields(zap.String("session_name", name), zap.String("agent_type", string(agent)))
	res, err := m.runner.Run(ctx, runner.Spec{Name: cmd, Args: args, Dir: projectPath})
	if err != nil {
		log.Error("create session failed", zap.Error(err))
		return nil, apperrors.SessionError("failed to create session", err)
	}
	if !res.Success() {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("%s create exited with status %d", commandName, res.ExitCode)
		}
		log.Warn("create session rejected", zap.Int("exit_code", res.ExitCode), zap.String("stderr", truncate(msg)))
		return nil, apperrors.SessionError(msg, nil)
	}

	info := parser.ParseCreate(res.Stdout)
	now := time.Now().UTC().Format(time.RFC3339)
	created := stringutil.FirstNonEmpty(info[parser.KeyCreated], now)
	s := &models.Session{
		ID:           stringutil.FirstNonEmpty(info[parser.KeyID], name),
		AgentType:    agent,
		ProjectPath:  projectPath,
		BranchName:   stringutil.FirstNonEmpty(info[parser.KeyBranch], "squad/"+name),
		Status:       models.StatusActive,
		CreatedAt:    created,
		LastActivity: created,
		TmuxSession:  info[parser.KeyTmuxSession],
	}
	m.table.Put(s)

	log.Info("session created", zap.String("session_id", s.ID), zap.String("project_path", projectPath))
	m.publisher.Publish(ctx, events.SessionCreated, sessionData(s))
	m.record(ctx, s)
	return s, nil
}

// List asks the squad command for its sessions and replaces the matching
// table entries. It returns an empty slice when no command is located or the
// command fails.
func (m *Manager) List(ctx context.Context) []*models.Session {
	cmd := m.locator.Path()
	if cmd == "" {
		return []*models.Session{}
	}

	res, err := m.runner.Run(ctx, runner.Spec{Name: cmd, Args: []string{"list"}})
	if err != nil {
		m.logger.Error("list sessions failed", zap.Error(err))
		return []*models.Session{}
	}
	if !res.Success() {
		m.logger.Warn("list sessions rejected",
			zap.Int("exit_code", res.ExitCode),
			zap.String("stderr", truncate(res.Stderr)))
		return []*models.Session{}
	}

	sessions := parser.ParseList(res.Stdout)
	for _, s := range sessions {
		m.table.Put(s)
		m.record(ctx, s)
	}
	m.logger.Debug("sessions synced", zap.Int("count", len(sessions)))
	m.publisher.Publish(ctx, events.SessionSynced, map[string]interface{}{"count": len(sessions)})
	return sessions
}

// Execute runs command inside session id. Only an id missing from the table
// is an error (NOT_FOUND); timeouts and failures are described by the result.
// A non-positive timeout uses the configured default.
func (m *Manager) Execute(ctx context.Context, id, command string, timeout time.Duration) (*models.ExecResult, error) {
	if !m.table.Has(id) {
		return nil, apperrors.NotFound("session", id)
	}
	if timeout <= 0 {
		timeout = m.cfg.ExecTimeout
	}

	started := time.Now().UTC()
	result := &models.ExecResult{ExitCode: -1}
	log := m.logger.WithSessionID(id)

	cmd := m.locator.Path()
	if cmd == "" {
		result.Error = apperrors.InstallationMissing(commandName).Message
	} else {
		res, err := m.runner.Run(ctx, runner.Spec{
			Name:    cmd,
			Args:    []string{"exec", "--session", id, "--", command},
			Timeout: timeout,
		})
		if res != nil {
			result.Stdout = res.Stdout
			result.Stderr = res.Stderr
			result.ExitCode = res.ExitCode
		}
		switch {
		case errors.Is(err, runner.ErrTimeout):
			result.ExitCode = -1
			result.Error = fmt.Sprintf("command timed out after %s", timeout)
		case err != nil:
			result.ExitCode = -1
			result.Error = err.Error()
		default:
			result.Success = res.Success()
		}
	}
	result.Duration = time.Since(started)

	log.Info("command executed",
		zap.String("command", truncate(command)),
		zap.Bool("success", result.Success),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration))
	m.publisher.Publish(ctx, events.CommandExecuted, map[string]interface{}{
		"session_id": id,
		"command":    command,
		"success":    result.Success,
		"exit_code":  result.ExitCode,
	})
	if m.recorder != nil {
		run := &models.CommandRun{
			ID:         uuid.New().String(),
			SessionID:  id,
			Command:    command,
			Success:    result.Success,
			ExitCode:   result.ExitCode,
			Stdout:     result.Stdout,
			Stderr:     result.Stderr,
			Error:      result.Error,
			StartedAt:  started,
			DurationMS: result.Duration.Milliseconds(),
		}
		if err := m.recorder.RecordRun(ctx, run); err != nil {
			log.Warn("failed to record command run", zap.Error(err))
		}
	}
	return result, nil
}

// Terminate stops session id. It returns true and drops the table entry when
// the squad command accepts; false otherwise.
func (m *Manager) Terminate(ctx context.Context, id string) bool {
	cmd := m.locator.Path()
	if cmd == "" {
		return false
	}

	log := m.logger.WithSessionID(id)
	res, err := m.runner.Run(ctx, runner.Spec{Name: cmd, Args: []string{"terminate", id}})
	if err != nil {
		log.Error("terminate session failed", zap.Error(err))
		return false
	}
	if !res.Success() {
		log.Warn("terminate session rejected",
			zap.Int("exit_code", res.ExitCode),
			zap.String("stderr", truncate(res.Stderr)))
		return false
	}

	m.table.Delete(id)
	log.Info("session terminated")
	m.publisher.Publish(ctx, events.SessionTerminated, map[string]interface{}{"session_id": id})
	if m.recorder != nil {
		if err := m.recorder.MarkTerminated(ctx, id, time.Now().UTC()); err != nil {
			log.Warn("failed to record termination", zap.Error(err))
		}
	}
	return true
}

// Status returns the squad command's status fields for id. ok is false only
// when no command is located; failures yield a map with a single "error" key.
func (m *Manager) Status(ctx context.Context, id string) (status map[string]string, ok bool) {
	cmd := m.locator.Path()
	if cmd == "" {
		return nil, false
	}

	res, err := m.runner.Run(ctx, runner.Spec{Name: cmd, Args: []string{"status", id}})
	if err != nil {
		return map[string]string{"error": err.Error()}, true
	}
	if !res.Success() {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("%s status exited with status %d", commandName, res.ExitCode)
		}
		return map[string]string{"error": msg}, true
	}
	return parser.ParseStatus(res.Stdout), true
}

func (m *Manager) resolveProjectPath(p string) (string, error) {
	p = filepath.Clean(p)
	if !filepath.IsAbs(p) {
		p = filepath.Join(m.cfg.ProjectsDir, p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func (m *Manager) record(ctx context.Context, s *models.Session) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.RecordSession(ctx, s); err != nil {
		m.logger.Warn("failed to record session", zap.String("session_id", s.ID), zap.Error(err))
	}
}

func sessionData(s *models.Session) map[string]interface{} {
	return map[string]interface{}{
		"session_id":   s.ID,
		"agent_type":   string(s.AgentType),
		"project_path": s.ProjectPath,
		"branch_name":  s.BranchName,
		"status":       s.Status,
	}
}

func truncate(s string) string {
	return stringutil.TruncateStringWithEllipsis(s, constants.MaxLoggedOutput)
}
