package host

import (
	"fmt"
)

// Runner executes commands and touches files on a target host.
// Implementations exist for SSH reachable hosts and for the local machine;
// everything else in this package is written against this interface.
type Runner interface {
	// Run executes a command and returns its standard output. A non-zero
	// exit results in a RunError carrying the exit code and stderr.
	Run(name string, args ...string) (string, error)

	// ReadFile returns the contents of a file on the host.
	ReadFile(path string) (string, error)

	// WriteFile replaces the contents of a file on the host.
	WriteFile(path string, contents string) error
}

// RunError is the error from an Runner command that exited non-zero.
type RunError struct {
	cmd      string
	exitCode int
	stderr   string
}

func (e *RunError) Error() string {
	return fmt.Sprintf("Failed to run: %s: exit status %d (%s)", e.cmd, e.exitCode, e.stderr)
}

// NewRunError returns a RunError for the given command.
func NewRunError(cmd string, exitCode int, stderr string) *RunError {
	return &RunError{cmd: cmd, exitCode: exitCode, stderr: stderr}
}
