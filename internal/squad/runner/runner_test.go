package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/squad-bridge/internal/common/logger"
)

func testLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.LoggingConfig{
		Level:  "error",
		Format: "console",
	})
	return log
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a unix shell")
	}
	path := filepath.Join(t.TempDir(), "fake-tool")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestExecRunnerCapturesStreams(t *testing.T) {
	script := writeScript(t, `echo "out $1"; echo "err $2" >&2; exit 3`)

	res, err := NewExecRunner(testLogger()).Run(context.Background(), Spec{
		Name: script,
		Args: []string{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "out a\n", res.Stdout)
	assert.Equal(t, "err b\n", res.Stderr)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Success())
}

func TestExecRunnerHonoursDirAndEnv(t *testing.T) {
	script := writeScript(t, `pwd; echo "$SQUAD_TEST_VALUE"`)
	dir := t.TempDir()

	res, err := NewExecRunner(testLogger()).Run(context.Background(), Spec{
		Name: script,
		Dir:  dir,
		Env:  []string{"SQUAD_TEST_VALUE=hello"},
	})
	require.NoError(t, err)
	require.True(t, res.Success())

	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	require.Len(t, lines, 2)
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	gotDir, err := filepath.EvalSymlinks(lines[0])
	require.NoError(t, err)
	assert.Equal(t, resolved, gotDir)
	assert.Equal(t, "hello", lines[1])
}

func TestExecRunnerTimeout(t *testing.T) {
	script := writeScript(t, `echo started; sleep 30; echo finished`)

	start := time.Now()
	res, err := NewExecRunner(testLogger()).Run(context.Background(), Spec{
		Name:    script,
		Timeout: 200 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, -1, res.ExitCode)
	assert.NotContains(t, res.Stdout, "finished")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestExecRunnerCancelledContext(t *testing.T) {
	script := writeScript(t, `sleep 30`)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	res, err := NewExecRunner(testLogger()).Run(ctx, Spec{Name: script})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, -1, res.ExitCode)
}

func TestExecRunnerCallerDeadlineIsNotTimeout(t *testing.T) {
	script := writeScript(t, `sleep 30`)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := NewExecRunner(testLogger()).Run(ctx, Spec{
		Name:    script,
		Timeout: 15 * time.Second,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.NotContains(t, err.Error(), "15s")
	assert.Equal(t, -1, res.ExitCode)
}

func TestExecRunnerMissingBinary(t *testing.T) {
	res, err := NewExecRunner(testLogger()).Run(context.Background(), Spec{
		Name: filepath.Join(t.TempDir(), "does-not-exist"),
	})
	require.Error(t, err)
	assert.Equal(t, -1, res.ExitCode)
}
