// Package probe reports whether the squad command and the tools it shells
// out to are usable on this host.
package probe

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kandev/squad-bridge/internal/common/constants"
	"github.com/kandev/squad-bridge/internal/common/logger"
	"github.com/kandev/squad-bridge/internal/common/stringutil"
	"github.com/kandev/squad-bridge/internal/events"
	"github.com/kandev/squad-bridge/internal/squad/models"
	"github.com/kandev/squad-bridge/internal/squad/runner"
)

// CommandLocator yields the resolved squad command, or "" when absent.
type CommandLocator interface {
	Path() string
}

// Prober runs the installation check and caches its report until Invalidate.
type Prober struct {
	locator   CommandLocator
	runner    runner.Runner
	lookPath  runner.LookPath
	auxTools  []string
	timeout   time.Duration
	publisher *events.Publisher
	logger    *logger.Logger

	group singleflight.Group

	mu         sync.Mutex
	cached     *models.InstallationReport
	generation uint64
}

// Option configures a Prober.
type Option func(*Prober)

// WithLookPath overrides the PATH lookup used for auxiliary tools.
func WithLookPath(fn runner.LookPath) Option {
	return func(p *Prober) { p.lookPath = fn }
}

// WithAuxiliaryTools replaces the tool names checked on PATH.
func WithAuxiliaryTools(tools []string) Option {
	return func(p *Prober) { p.auxTools = append([]string(nil), tools...) }
}

// WithPublisher emits squad.installation.checked after each real probe.
func WithPublisher(pub *events.Publisher) Option {
	return func(p *Prober) { p.publisher = pub }
}

// WithTimeout bounds the version probe.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) { p.timeout = d }
}

// New creates a Prober.
func New(loc CommandLocator, r runner.Runner, log *logger.Logger, opts ...Option) *Prober {
	p := &Prober{
		locator:  loc,
		runner:   r,
		lookPath: runner.DefaultLookPath,
		auxTools: []string{"tmux", "git", "gh"},
		timeout:  constants.VersionProbeTimeout,
		logger:   log.WithComponent("installation-probe"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check returns the installation report. The first call probes the host;
// later calls return the cached report with Cached set until Invalidate.
// Concurrent first callers share one probe. The probe is detached from the
// caller's cancellation and bounded by the probe timeout, so a caller that
// gives up early gets an uncached report naming its context error while the
// probe still completes and fills the cache. Check never fails: problems are
// listed in the report's Errors.
func (p *Prober) Check(ctx context.Context) *models.InstallationReport {
	p.mu.Lock()
	if p.cached != nil {
		report := p.cached.Clone()
		p.mu.Unlock()
		report.Cached = true
		return report
	}
	gen := p.generation
	p.mu.Unlock()

	probeCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan(fmt.Sprintf("check-%d", gen), func() (interface{}, error) {
		p.mu.Lock()
		if p.cached != nil && p.generation == gen {
			report := p.cached
			p.mu.Unlock()
			return report, nil
		}
		p.mu.Unlock()

		report := p.probe(probeCtx)
		p.mu.Lock()
		if p.generation == gen {
			p.cached = report
		}
		p.mu.Unlock()
		return report, nil
	})

	select {
	case res := <-ch:
		return res.Val.(*models.InstallationReport).Clone()
	case <-ctx.Done():
		return &models.InstallationReport{
			CommandPath: p.locator.Path(),
			Errors:      []string{fmt.Sprintf("installation check abandoned: %v", ctx.Err())},
			CheckedAt:   time.Now().UTC(),
		}
	}
}

// Invalidate drops the cached report so the next Check probes again.
func (p *Prober) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.generation++
	p.mu.Unlock()
}

func (p *Prober) probe(ctx context.Context) *models.InstallationReport {
	report := &models.InstallationReport{
		CommandPath: p.locator.Path(),
		Errors:      []string{},
		CheckedAt:   time.Now().UTC(),
	}

	if report.CommandPath == "" {
		report.Errors = append(report.Errors, "claude-squad command not found; run the installer or add it to PATH")
		p.finish(ctx, report)
		return report
	}

	p.probeVersion(ctx, report)

	for _, tool := range p.auxTools {
		_, err := p.lookPath(tool)
		available := err == nil
		switch tool {
		case "tmux":
			report.Tmux = available
		case "git":
			report.Git = available
		case "gh":
			report.GH = available
		}
		if !available {
			report.Errors = append(report.Errors, fmt.Sprintf("%s not found on PATH", tool))
		}
	}

	p.finish(ctx, report)
	return report
}

func (p *Prober) probeVersion(ctx context.Context, report *models.InstallationReport) {
	res, err := p.runner.Run(ctx, runner.Spec{
		Name:    report.CommandPath,
		Args:    []string{"--version"},
		Timeout: p.timeout,
	})
	switch {
	case err != nil:
		report.Errors = append(report.Errors, fmt.Sprintf("version check failed: %v", err))
	case res.Success():
		report.Installed = true
		report.Version = strings.TrimSpace(res.Stdout)
	default:
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", res.ExitCode)
		}
		report.Errors = append(report.Errors, "version check failed: "+msg)
	}
}

func (p *Prober) finish(ctx context.Context, report *models.InstallationReport) {
	p.logger.Info("installation checked",
		zap.Bool("installed", report.Installed),
		zap.String("command_path", report.CommandPath),
		zap.String("version", stringutil.TruncateStringWithEllipsis(report.Version, constants.MaxLoggedOutput)),
		zap.Strings("errors", report.Errors))
	p.publisher.Publish(ctx, events.InstallationChecked, map[string]interface{}{
		"installed":    report.Installed,
		"command_path": report.CommandPath,
		"version":      report.Version,
		"errors":       report.Errors,
	})
}
