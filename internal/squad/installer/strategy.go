package installer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kandev/squad-bridge/internal/common/constants"
	"github.com/kandev/squad-bridge/internal/squad/runner"
)

// ErrPrerequisiteMissing is returned when a tool the strategy needs is not on PATH.
var ErrPrerequisiteMissing = errors.New("install prerequisite missing")

// Strategy is the abstraction for different install methods.
type Strategy interface {
	// Install runs the installation and blocks until done. A non-zero exit is
	// reported through the result, not the error.
	Install(ctx context.Context) (*runner.Result, error)
	// Name returns a human-readable name for logging.
	Name() string
}

// RemoteScriptStrategy pipes a remote install script into a shell:
// sh -c "<fetcher> -fsSL '<url>' | <interpreter>".
type RemoteScriptStrategy struct {
	ScriptURL   string
	Fetcher     string
	Interpreter string
	Timeout     time.Duration

	runner   runner.Runner
	lookPath runner.LookPath
}

// NewRemoteScriptStrategy creates the default curl | bash strategy.
func NewRemoteScriptStrategy(scriptURL, fetcher, interpreter string, r runner.Runner) *RemoteScriptStrategy {
	return &RemoteScriptStrategy{
		ScriptURL:   scriptURL,
		Fetcher:     fetcher,
		Interpreter: interpreter,
		Timeout:     constants.InstallTimeout,
		runner:      r,
		lookPath:    runner.DefaultLookPath,
	}
}

// Name implements Strategy.
func (s *RemoteScriptStrategy) Name() string {
	return fmt.Sprintf("%s | %s", s.Fetcher, s.Interpreter)
}

// Install implements Strategy.
func (s *RemoteScriptStrategy) Install(ctx context.Context) (*runner.Result, error) {
	if _, err := s.lookPath(s.Fetcher); err != nil {
		return nil, fmt.Errorf("%w: %s is required to download the install script", ErrPrerequisiteMissing, s.Fetcher)
	}
	pipeline := fmt.Sprintf("%s -fsSL %s | %s", s.Fetcher, shellQuote(s.ScriptURL), s.Interpreter)
	return s.runner.Run(ctx, runner.Spec{
		Name:    "sh",
		Args:    []string{"-c", pipeline},
		Timeout: s.Timeout,
	})
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
