// Package locator finds the squad executable on the host.
package locator

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/squad-bridge/internal/common/config"
	"github.com/kandev/squad-bridge/internal/common/logger"
	"github.com/kandev/squad-bridge/internal/squad/runner"
)

// Locator resolves the first usable entry of an ordered candidate list.
// Bare names are looked up on PATH; anything containing a path separator or
// starting with ~ must be an executable regular file.
type Locator struct {
	candidates []string
	lookPath   runner.LookPath
	logger     *logger.Logger

	mu   sync.RWMutex
	path string
}

// New creates a Locator and resolves it immediately.
func New(candidates []string, log *logger.Logger) *Locator {
	return NewWithLookPath(candidates, runner.DefaultLookPath, log)
}

// NewWithLookPath is New with a custom PATH lookup.
func NewWithLookPath(candidates []string, lookPath runner.LookPath, log *logger.Logger) *Locator {
	l := &Locator{
		candidates: append([]string(nil), candidates...),
		lookPath:   lookPath,
		logger:     log.WithComponent("locator"),
	}
	l.Refresh()
	return l
}

// Path returns the resolved executable, or "" when none of the candidates resolved.
func (l *Locator) Path() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.path
}

// Found reports whether a command was located.
func (l *Locator) Found() bool {
	return l.Path() != ""
}

// Name returns the preferred command name, used in messages.
func (l *Locator) Name() string {
	if len(l.candidates) == 0 {
		return "squad command"
	}
	return filepath.Base(l.candidates[0])
}

// Refresh re-scans the candidates and returns the new path.
func (l *Locator) Refresh() string {
	path := l.resolve()
	l.mu.Lock()
	l.path = path
	l.mu.Unlock()
	if path == "" {
		l.logger.Debug("squad command not found", zap.Strings("candidates", l.candidates))
	} else {
		l.logger.Debug("squad command located", zap.String("path", path))
	}
	return path
}

func (l *Locator) resolve() string {
	for _, candidate := range l.candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if isPathLike(candidate) {
			expanded := filepath.Clean(config.ExpandHome(candidate))
			if isExecutableFile(expanded) {
				return expanded
			}
			continue
		}
		if p, err := l.lookPath(candidate); err == nil {
			return p
		}
	}
	return ""
}

func isPathLike(candidate string) bool {
	return strings.HasPrefix(candidate, "~") || strings.ContainsRune(candidate, '/') ||
		strings.ContainsRune(candidate, filepath.Separator)
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
