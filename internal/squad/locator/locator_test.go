package locator

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/squad-bridge/internal/common/logger"
)

func testLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json"})
	return log
}

func notFound(string) (string, error) { return "", errors.New("not found") }

func writeExecutable(t *testing.T, dir, name string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), mode))
	return path
}

func TestLocatorPrefersFirstResolvableCandidate(t *testing.T) {
	dir := t.TempDir()
	second := writeExecutable(t, dir, "second", 0o755)
	third := writeExecutable(t, dir, "third", 0o755)

	lookups := []string{}
	lookPath := func(name string) (string, error) {
		lookups = append(lookups, name)
		return "", errors.New("not found")
	}

	l := NewWithLookPath([]string{"claude-squad", second, third}, lookPath, testLogger())
	assert.Equal(t, second, l.Path())
	assert.True(t, l.Found())
	assert.Equal(t, []string{"claude-squad"}, lookups)
}

func TestLocatorPathLookupForBareNames(t *testing.T) {
	lookPath := func(name string) (string, error) {
		if name == "cs" {
			return "/usr/bin/cs", nil
		}
		return "", errors.New("not found")
	}
	l := NewWithLookPath([]string{"claude-squad", "cs"}, lookPath, testLogger())
	assert.Equal(t, "/usr/bin/cs", l.Path())
	assert.Equal(t, "claude-squad", l.Name())
}

func TestLocatorSkipsNonExecutablesAndDirectories(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}
	dir := t.TempDir()
	plain := writeExecutable(t, dir, "plain", 0o644)

	l := NewWithLookPath([]string{plain, dir, "", "  "}, notFound, testLogger())
	assert.Equal(t, "", l.Path())
	assert.False(t, l.Found())
}

func TestLocatorExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	binDir := filepath.Join(home, ".local", "bin")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	want := writeExecutable(t, binDir, "claude-squad", 0o755)

	l := NewWithLookPath([]string{"~/.local/bin/claude-squad"}, notFound, testLogger())
	assert.Equal(t, want, l.Path())
}

func TestLocatorRefreshPicksUpNewInstall(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "claude-squad")

	l := NewWithLookPath([]string{target}, notFound, testLogger())
	require.False(t, l.Found())

	writeExecutable(t, dir, "claude-squad", 0o755)
	assert.Equal(t, "", l.Path(), "path is only re-resolved on Refresh")
	assert.Equal(t, target, l.Refresh())
	assert.Equal(t, target, l.Path())
}
