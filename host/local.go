package host

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"
)

// LocalRunner executes commands on the local machine. It allows the device
// reconciliation logic to run directly on the host being reconciled.
type LocalRunner struct{}

// Run executes a command locally and returns its standard output.
func (r LocalRunner) Run(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), NewRunError(shellquote.Join(append([]string{name}, args...)...), exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}

		return stdout.String(), fmt.Errorf("Failed to run %q: %w", name, err)
	}

	return stdout.String(), nil
}

// ReadFile returns the contents of a local file.
func (r LocalRunner) ReadFile(path string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return string(contents), nil
}

// WriteFile replaces the contents of a local file.
func (r LocalRunner) WriteFile(path string, contents string) error {
	return os.WriteFile(path, []byte(contents), 0644)
}
