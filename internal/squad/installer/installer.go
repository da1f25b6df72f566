// Package installer installs the squad command on the host and re-checks
// readiness afterwards.
package installer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kandev/squad-bridge/internal/common/config"
	"github.com/kandev/squad-bridge/internal/common/constants"
	"github.com/kandev/squad-bridge/internal/common/logger"
	"github.com/kandev/squad-bridge/internal/common/stringutil"
	"github.com/kandev/squad-bridge/internal/events"
	"github.com/kandev/squad-bridge/internal/squad/models"
	"github.com/kandev/squad-bridge/internal/squad/runner"
)

// Locator is re-resolved after a successful install.
type Locator interface {
	Refresh() string
}

// Prober produces the readiness report bundled into a successful result.
type Prober interface {
	Invalidate()
	Check(ctx context.Context) *models.InstallationReport
}

// Installer runs a Strategy and refreshes locator and probe state on success.
type Installer struct {
	strategy  Strategy
	locator   Locator
	prober    Prober
	publisher *events.Publisher
	logger    *logger.Logger
}

// New creates an Installer. publisher may be nil.
func New(strategy Strategy, loc Locator, prober Prober, publisher *events.Publisher, log *logger.Logger) *Installer {
	return &Installer{
		strategy:  strategy,
		locator:   loc,
		prober:    prober,
		publisher: publisher,
		logger:    log.WithComponent("installer"),
	}
}

// NewFromConfig builds an Installer using the remote script strategy.
func NewFromConfig(cfg config.InstallConfig, r runner.Runner, loc Locator, prober Prober, publisher *events.Publisher, log *logger.Logger) *Installer {
	strategy := NewRemoteScriptStrategy(cfg.ScriptURL, cfg.Fetcher, cfg.Interpreter, r)
	return New(strategy, loc, prober, publisher, log)
}

// Install runs the strategy. It never fails: every outcome is described by
// the returned result.
func (i *Installer) Install(ctx context.Context) *models.InstallResult {
	i.logger.Info("installing squad command", zap.String("strategy", i.strategy.Name()))

	res, err := i.strategy.Install(ctx)
	result := &models.InstallResult{}
	if res != nil {
		result.Stdout = res.Stdout
		result.Stderr = res.Stderr
	}

	switch {
	case errors.Is(err, ErrPrerequisiteMissing):
		result.Message = err.Error()
	case err != nil:
		result.Message = fmt.Sprintf("install failed: %v", err)
	case !res.Success():
		result.Message = fmt.Sprintf("install script exited with status %d", res.ExitCode)
		if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
			result.Message += ": " + stringutil.TruncateStringWithEllipsis(stderr, constants.MaxLoggedOutput)
		}
	default:
		path := i.locator.Refresh()
		i.prober.Invalidate()
		result.Report = i.prober.Check(ctx)
		result.Success = true
		result.Message = "claude-squad installed"
		if path != "" {
			result.Message += " at " + path
		}
	}

	if result.Success {
		i.logger.Info("squad command installed", zap.Bool("ready", result.Report.Installed))
	} else {
		i.logger.Warn("squad install failed",
			zap.String("message", result.Message),
			zap.String("stderr", stringutil.TruncateStringWithEllipsis(result.Stderr, constants.MaxLoggedOutput)))
	}
	i.publisher.Publish(ctx, events.InstallationCompleted, map[string]interface{}{
		"success": result.Success,
		"message": result.Message,
	})
	return result
}
