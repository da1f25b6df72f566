// Package history journals the sessions the bridge observed and the commands
// it ran. The journal is write-mostly: it is never used to repopulate the
// in-process session table.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kandev/squad-bridge/internal/common/config"
	"github.com/kandev/squad-bridge/internal/db"
	"github.com/kandev/squad-bridge/internal/db/dialect"
	"github.com/kandev/squad-bridge/internal/squad/models"
)

// ErrNotFound is returned when a journalled session does not exist.
var ErrNotFound = errors.New("not found")

const defaultRunLimit = 50

// SessionRecord is the last-known snapshot of a session.
type SessionRecord struct {
	models.Session
	FirstSeenAt  time.Time  `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt   time.Time  `json:"last_seen_at" db:"last_seen_at"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty" db:"terminated_at"`
}

// Store is the SQL-backed journal.
type Store struct {
	db     *sqlx.DB // writer
	ro     *sqlx.DB // reader
	driver string
	pool   *db.Pool
}

// Open connects according to cfg. It returns (nil, nil) when history is
// disabled.
func Open(cfg config.HistoryConfig) (*Store, error) {
	if cfg.Driver == "" {
		return nil, nil
	}
	pool, err := db.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	store, err := NewStore(pool)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps pool and creates the schema if needed.
func NewStore(pool *db.Pool) (*Store, error) {
	s := &Store{db: pool.Writer(), ro: pool.Reader(), driver: pool.Driver(), pool: pool}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) initSchema() error {
	ts := dialect.TimestampType(s.driver)
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS squad_sessions (
		id TEXT PRIMARY KEY,
		agent_type TEXT NOT NULL,
		project_path TEXT NOT NULL DEFAULT '',
		branch_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT '',
		last_activity TEXT NOT NULL DEFAULT '',
		tmux_session TEXT NOT NULL DEFAULT '',
		first_seen_at %[1]s NOT NULL,
		last_seen_at %[1]s NOT NULL,
		terminated_at %[1]s
	);

	CREATE TABLE IF NOT EXISTS squad_command_runs (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		command TEXT NOT NULL,
		success INTEGER NOT NULL DEFAULT 0,
		exit_code INTEGER NOT NULL,
		stdout TEXT NOT NULL DEFAULT '',
		stderr TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		started_at %[1]s NOT NULL,
		duration_ms BIGINT NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_squad_command_runs_session
		ON squad_command_runs (session_id, started_at);
	`, ts)
	_, err := s.db.Exec(schema)
	return err
}

// RecordSession upserts the snapshot of sess. A session seen again after
// termination is live again, so terminated_at is cleared.
func (s *Store) RecordSession(ctx context.Context, sess *models.Session) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO squad_sessions (id, agent_type, project_path, branch_name, status,
			created_at, last_activity, tmux_session, first_seen_at, last_seen_at, terminated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT (id) DO UPDATE SET
			agent_type = excluded.agent_type,
			project_path = excluded.project_path,
			branch_name = excluded.branch_name,
			status = excluded.status,
			created_at = excluded.created_at,
			last_activity = excluded.last_activity,
			tmux_session = excluded.tmux_session,
			last_seen_at = excluded.last_seen_at,
			terminated_at = NULL
	`), sess.ID, string(sess.AgentType), sess.ProjectPath, sess.BranchName, sess.Status,
		sess.CreatedAt, sess.LastActivity, sess.TmuxSession, now, now)
	if err != nil {
		return fmt.Errorf("record session %s: %w", sess.ID, err)
	}
	return nil
}

// MarkTerminated stamps terminated_at on a journalled session. Unknown ids
// are ignored.
func (s *Store) MarkTerminated(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE squad_sessions SET terminated_at = ?, last_seen_at = ? WHERE id = ?
	`), at.UTC(), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark session %s terminated: %w", id, err)
	}
	return nil
}

// RecordRun appends one command run.
func (s *Store) RecordRun(ctx context.Context, run *models.CommandRun) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO squad_command_runs (id, session_id, command, success, exit_code,
			stdout, stderr, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), run.ID, run.SessionID, run.Command, dialect.BoolToInt(run.Success), run.ExitCode,
		run.Stdout, run.Stderr, run.Error, run.StartedAt.UTC(), run.DurationMS)
	if err != nil {
		return fmt.Errorf("record command run for %s: %w", run.SessionID, err)
	}
	return nil
}

// GetSession returns the journalled snapshot of id.
func (s *Store) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	var rec SessionRecord
	err := s.ro.GetContext(ctx, &rec, s.ro.Rebind(`
		SELECT id, agent_type, project_path, branch_name, status, created_at, last_activity,
			tmux_session, first_seen_at, last_seen_at, terminated_at
		FROM squad_sessions WHERE id = ?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return &rec, nil
}

// ListSessions returns every journalled session, most recently seen first.
func (s *Store) ListSessions(ctx context.Context) ([]*SessionRecord, error) {
	var recs []*SessionRecord
	err := s.ro.SelectContext(ctx, &recs, `
		SELECT id, agent_type, project_path, branch_name, status, created_at, last_activity,
			tmux_session, first_seen_at, last_seen_at, terminated_at
		FROM squad_sessions ORDER BY last_seen_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return recs, nil
}

// ListRuns returns the newest runs of sessionID, at most limit (50 when
// limit is not positive).
func (s *Store) ListRuns(ctx context.Context, sessionID string, limit int) ([]*models.CommandRun, error) {
	if limit <= 0 {
		limit = defaultRunLimit
	}
	runs := []*models.CommandRun{}
	err := s.ro.SelectContext(ctx, &runs, s.ro.Rebind(`
		SELECT id, session_id, command, success, exit_code, stdout, stderr, error,
			started_at, duration_ms
		FROM squad_command_runs
		WHERE session_id = ?
		ORDER BY started_at DESC, id
		LIMIT ?
	`), sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs for %s: %w", sessionID, err)
	}
	return runs, nil
}
