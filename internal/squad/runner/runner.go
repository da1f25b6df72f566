// Package runner executes external commands for the squad bridge, capturing
// stdout and stderr separately and enforcing deadlines by killing the whole
// process group.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/squad-bridge/internal/common/constants"
	"github.com/kandev/squad-bridge/internal/common/logger"
	"github.com/kandev/squad-bridge/internal/common/stringutil"
	"github.com/kandev/squad-bridge/internal/tracing"
)

// ErrTimeout is returned (wrapped) when a command outlives its timeout.
var ErrTimeout = errors.New("command timed out")

// Spec describes one command invocation.
type Spec struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string      // appended to the inherited environment
	Timeout time.Duration // zero means only ctx bounds the run
}

// Result is what a command produced. ExitCode is -1 when the process was
// killed for a timeout or never started.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Success reports a zero exit status.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Runner runs external commands. A non-zero exit is not an error: callers
// inspect Result.ExitCode. Errors mean the command could not be run to
// completion (launch failure, timeout, cancellation); a Result is still
// returned with whatever output was captured.
type Runner interface {
	Run(ctx context.Context, spec Spec) (*Result, error)
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct {
	logger    *logger.Logger
	waitDelay time.Duration
}

// NewExecRunner creates a Runner that launches real processes.
func NewExecRunner(log *logger.Logger) *ExecRunner {
	return &ExecRunner{
		logger:    log.WithComponent("runner"),
		waitDelay: constants.ProcessWaitDelay,
	}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, spec Spec) (*Result, error) {
	parent := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	subcommand := ""
	if len(spec.Args) > 0 {
		subcommand = spec.Args[0]
	}
	ctx, span := tracing.TraceCommand(ctx, filepath.Base(spec.Name), subcommand, spec.Dir)
	defer span.End()

	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(cmd.Environ(), spec.Env...)
	}
	setProcGroup(cmd)
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return killProcessGroup(cmd.Process.Pid)
	}
	cmd.WaitDelay = r.waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	err := classify(parent, ctx, runErr, spec, result)
	tracing.TraceCommandResult(span, result.ExitCode, err)

	fields := []zap.Field{
		zap.String("command", filepath.Base(spec.Name)),
		zap.Strings("args", spec.Args),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration),
	}
	if err != nil {
		r.logger.WithContext(ctx).Debug("command did not complete", append(fields, zap.Error(err))...)
	} else if result.ExitCode != 0 {
		r.logger.WithContext(ctx).Debug("command exited non-zero",
			append(fields, zap.String("stderr", stringutil.TruncateStringWithEllipsis(result.Stderr, constants.MaxLoggedOutput)))...)
	} else {
		r.logger.WithContext(ctx).Debug("command completed", fields...)
	}

	return result, err
}

// classify sets result.ExitCode from runErr and returns the error callers
// should see, nil for any exit status the process reported itself. parent is
// the caller's context and ctx the one bounded by spec.Timeout. ErrTimeout is
// only reported when spec.Timeout fired; a caller deadline or cancellation
// that came first is returned as the caller's own error.
func classify(parent, ctx context.Context, runErr error, spec Spec, result *Result) error {
	if runErr == nil {
		result.ExitCode = 0
		return nil
	}
	if err := parent.Err(); err != nil {
		result.ExitCode = -1
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.ExitCode = -1
		return fmt.Errorf("%w after %v", ErrTimeout, spec.Timeout)
	}
	if ctx.Err() != nil {
		result.ExitCode = -1
		return ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) && exitErr.ExitCode() >= 0 {
		result.ExitCode = exitErr.ExitCode()
		return nil
	}
	result.ExitCode = -1
	return fmt.Errorf("run %s: %w", filepath.Base(spec.Name), runErr)
}

// LookPath resolves a bare command name on PATH. It exists so components can
// swap it out in tests.
type LookPath func(file string) (string, error)

// DefaultLookPath is exec.LookPath.
var DefaultLookPath LookPath = exec.LookPath
