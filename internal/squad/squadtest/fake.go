// Package squadtest writes fake squad executables for tests.
package squadtest

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
)

// Response is how the fake answers one subcommand. Script is raw shell run
// before the output is printed; $FAKE_DIR points at the fake's directory.
type Response struct {
	Stdout string
	Stderr string
	Exit   int
	Script string
}

// Fake is a shell script standing in for the squad command. Every invocation
// appends its arguments to CallsLog.
type Fake struct {
	Dir      string
	Path     string
	CallsLog string
}

// New writes a fake named claude-squad into a fresh temp dir. Subcommands
// without a response exit 64.
func New(t testing.TB, responses map[string]Response) *Fake {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake squad command needs a POSIX shell")
	}
	dir := t.TempDir()
	f := &Fake{
		Dir:      dir,
		Path:     filepath.Join(dir, "claude-squad"),
		CallsLog: filepath.Join(dir, "calls.log"),
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "FAKE_DIR=%s\n", quote(dir))
	b.WriteString("echo \"$*\" >> \"$FAKE_DIR/calls.log\"\n")
	b.WriteString("case \"$1\" in\n")

	subcommands := make([]string, 0, len(responses))
	for sub := range responses {
		subcommands = append(subcommands, sub)
	}
	sort.Strings(subcommands)
	for _, sub := range subcommands {
		r := responses[sub]
		fmt.Fprintf(&b, "  %s)\n", quote(sub))
		if r.Script != "" {
			b.WriteString(r.Script + "\n")
		}
		if r.Stdout != "" {
			fmt.Fprintf(&b, "    printf '%%s' %s\n", quote(r.Stdout))
		}
		if r.Stderr != "" {
			fmt.Fprintf(&b, "    printf '%%s' %s >&2\n", quote(r.Stderr))
		}
		fmt.Fprintf(&b, "    exit %d\n    ;;\n", r.Exit)
	}
	b.WriteString("  *)\n    echo \"unknown subcommand: $1\" >&2\n    exit 64\n    ;;\nesac\n")

	if err := os.WriteFile(f.Path, []byte(b.String()), 0o755); err != nil {
		t.Fatalf("write fake squad command: %v", err)
	}
	return f
}

// Calls returns the argument lines of every invocation so far.
func (f *Fake) Calls(t testing.TB) []string {
	t.Helper()
	data, err := os.ReadFile(f.CallsLog)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read calls log: %v", err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// CountCalls returns how many invocations started with subcommand.
func (f *Fake) CountCalls(t testing.TB, subcommand string) int {
	t.Helper()
	n := 0
	for _, line := range f.Calls(t) {
		if line == subcommand || strings.HasPrefix(line, subcommand+" ") {
			n++
		}
	}
	return n
}

// Tool writes an executable that exits 0 into dir, for PATH lookups.
func Tool(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write tool %s: %v", name, err)
	}
	return path
}

// Locator always reports the same path.
type Locator string

// Path returns the fixed path.
func (l Locator) Path() string { return string(l) }

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
