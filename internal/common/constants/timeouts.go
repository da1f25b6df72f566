// Package constants provides application-wide constants and timeouts.
package constants

import "time"

// Timeouts for various operations.
const (
	// VersionProbeTimeout bounds the `--version` probe of the squad command.
	VersionProbeTimeout = 15 * time.Second

	// InstallTimeout bounds the remote install script pipeline.
	InstallTimeout = 10 * time.Minute

	// DefaultExecTimeout is used when a caller passes a non-positive exec timeout.
	DefaultExecTimeout = 30 * time.Second

	// ProcessWaitDelay is how long Wait keeps draining output pipes after the
	// process has been killed.
	ProcessWaitDelay = 2 * time.Second

	// ShutdownTimeout is the maximum time to wait for the HTTP server to drain.
	ShutdownTimeout = 30 * time.Second
)

// MaxLoggedOutput is the number of bytes of subprocess output included in log lines.
const MaxLoggedOutput = 512
