// Package squad is the bridge between callers and the claude-squad command:
// it wires the locator, probe, installer, session manager and history store
// into one explicitly constructed Bridge.
package squad

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kandev/squad-bridge/internal/common/config"
	apperrors "github.com/kandev/squad-bridge/internal/common/errors"
	"github.com/kandev/squad-bridge/internal/common/logger"
	"github.com/kandev/squad-bridge/internal/events"
	"github.com/kandev/squad-bridge/internal/events/bus"
	"github.com/kandev/squad-bridge/internal/squad/history"
	"github.com/kandev/squad-bridge/internal/squad/installer"
	"github.com/kandev/squad-bridge/internal/squad/locator"
	"github.com/kandev/squad-bridge/internal/squad/models"
	"github.com/kandev/squad-bridge/internal/squad/probe"
	"github.com/kandev/squad-bridge/internal/squad/runner"
	"github.com/kandev/squad-bridge/internal/squad/session"
)

const defaultStatusConcurrency = 4

// Options carries the optional collaborators of a Bridge. Zero values pick
// the production defaults, except EventBus and History which stay disabled.
type Options struct {
	Runner   runner.Runner
	LookPath runner.LookPath
	EventBus bus.EventBus
	History  *history.Store
}

// Bridge is one independent squad bridge instance. Its session table lives
// as long as the Bridge.
type Bridge struct {
	cfg       config.SquadConfig
	locator   *locator.Locator
	prober    *probe.Prober
	installer *installer.Installer
	sessions  *session.Manager
	history   *history.Store
	logger    *logger.Logger
}

// New builds a Bridge from cfg.
func New(cfg config.SquadConfig, log *logger.Logger, opts Options) *Bridge {
	if opts.Runner == nil {
		opts.Runner = runner.NewExecRunner(log)
	}
	if opts.LookPath == nil {
		opts.LookPath = runner.DefaultLookPath
	}
	candidates := cfg.CommandCandidates
	if len(candidates) == 0 {
		candidates = config.DefaultCommandCandidates
	}
	auxTools := cfg.AuxiliaryTools
	if len(auxTools) == 0 {
		auxTools = config.DefaultAuxiliaryTools
	}

	install := cfg.Install
	if install.ScriptURL == "" {
		install.ScriptURL = config.DefaultInstallScriptURL
	}
	if install.Fetcher == "" {
		install.Fetcher = "curl"
	}
	if install.Interpreter == "" {
		install.Interpreter = "bash"
	}

	publisher := func(source string) *events.Publisher {
		if opts.EventBus == nil {
			return nil
		}
		return events.NewPublisher(opts.EventBus, source, log)
	}

	loc := locator.NewWithLookPath(candidates, opts.LookPath, log)
	prober := probe.New(loc, opts.Runner, log,
		probe.WithLookPath(opts.LookPath),
		probe.WithAuxiliaryTools(auxTools),
		probe.WithPublisher(publisher("squad.probe")))

	inst := installer.NewFromConfig(install, opts.Runner, loc, prober, publisher("squad.installer"), log)

	sessionOpts := []session.Option{session.WithPublisher(publisher("squad.sessions"))}
	if opts.History != nil {
		sessionOpts = append(sessionOpts, session.WithRecorder(opts.History))
	}
	sessions := session.NewManager(loc, opts.Runner, session.Config{
		ProjectsDir: cfg.ResolvedProjectsDir(),
		ExecTimeout: cfg.ExecTimeout(),
	}, log, sessionOpts...)

	return &Bridge{
		cfg:       cfg,
		locator:   loc,
		prober:    prober,
		installer: inst,
		sessions:  sessions,
		history:   opts.History,
		logger:    log.WithComponent("squad-bridge"),
	}
}

// CommandPath returns the located squad command, or "".
func (b *Bridge) CommandPath() string {
	return b.locator.Path()
}

// CheckInstallation returns the (possibly cached) readiness report.
func (b *Bridge) CheckInstallation(ctx context.Context) *models.InstallationReport {
	return b.prober.Check(ctx)
}

// Install installs the squad command and returns a fresh readiness report on success.
func (b *Bridge) Install(ctx context.Context) *models.InstallResult {
	return b.installer.Install(ctx)
}

// Refresh re-resolves the squad command and drops the cached readiness report.
func (b *Bridge) Refresh() string {
	path := b.locator.Refresh()
	b.prober.Invalidate()
	return path
}

// CreateSession starts a session. See session.Manager.Create for the errors.
func (b *Bridge) CreateSession(ctx context.Context, req session.CreateRequest) (*models.Session, error) {
	return b.sessions.Create(ctx, req)
}

// ListSessions re-syncs the table from the squad command. It never fails.
func (b *Bridge) ListSessions(ctx context.Context) []*models.Session {
	return b.sessions.List(ctx)
}

// ExecuteCommand runs command inside session id.
func (b *Bridge) ExecuteCommand(ctx context.Context, id, command string, timeout time.Duration) (*models.ExecResult, error) {
	return b.sessions.Execute(ctx, id, command, timeout)
}

// TerminateSession stops session id and reports whether the squad command accepted.
func (b *Bridge) TerminateSession(ctx context.Context, id string) bool {
	return b.sessions.Terminate(ctx, id)
}

// GetSessionStatus returns the status fields of id; ok is false without a squad command.
func (b *Bridge) GetSessionStatus(ctx context.Context, id string) (map[string]string, bool) {
	return b.sessions.Status(ctx, id)
}

// Sessions returns the table snapshot sorted by ID, without invoking the squad command.
func (b *Bridge) Sessions() []*models.Session {
	return b.sessions.Table().Snapshot()
}

// Session returns the table entry for id.
func (b *Bridge) Session(id string) (*models.Session, bool) {
	return b.sessions.Table().Get(id)
}

// RefreshStatuses fetches the status of every session in the table, running
// at most squad.statusConcurrency status calls at once. Sessions are keyed
// by ID. The result is empty when no squad command is located.
func (b *Bridge) RefreshStatuses(ctx context.Context) map[string]map[string]string {
	result := make(map[string]map[string]string)
	if b.locator.Path() == "" {
		return result
	}

	limit := b.cfg.StatusConcurrency
	if limit <= 0 {
		limit = defaultStatusConcurrency
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(limit)
	for _, s := range b.Sessions() {
		id := s.ID
		g.Go(func() error {
			status, ok := b.sessions.Status(ctx, id)
			if !ok {
				return nil
			}
			mu.Lock()
			result[id] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	b.logger.Debug("session statuses refreshed", zap.Int("count", len(result)))
	return result
}

// HistoryEnabled reports whether a history store is attached.
func (b *Bridge) HistoryEnabled() bool {
	return b.history != nil
}

// CommandRuns returns the newest recorded runs of session id. It returns an
// empty list when history is disabled.
func (b *Bridge) CommandRuns(ctx context.Context, id string, limit int) ([]*models.CommandRun, error) {
	if b.history == nil {
		return []*models.CommandRun{}, nil
	}
	return b.history.ListRuns(ctx, id, limit)
}

// SessionHistory returns every journalled session, most recently seen first,
// including terminated ones. It returns an empty list when history is disabled.
func (b *Bridge) SessionHistory(ctx context.Context) ([]*history.SessionRecord, error) {
	if b.history == nil {
		return []*history.SessionRecord{}, nil
	}
	recs, err := b.history.ListSessions(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read session history")
	}
	if recs == nil {
		recs = []*history.SessionRecord{}
	}
	return recs, nil
}

// SessionRecord returns the journalled snapshot of id. It fails with
// NOT_FOUND when the journal never saw id or history is disabled.
func (b *Bridge) SessionRecord(ctx context.Context, id string) (*history.SessionRecord, error) {
	if b.history == nil {
		return nil, apperrors.NotFound("session history", id)
	}
	rec, err := b.history.GetSession(ctx, id)
	if errors.Is(err, history.ErrNotFound) {
		return nil, apperrors.NotFound("session history", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read session history")
	}
	return rec, nil
}

// Close releases the history store.
func (b *Bridge) Close() error {
	if b.history == nil {
		return nil
	}
	return b.history.Close()
}
