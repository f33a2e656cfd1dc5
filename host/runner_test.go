package host

import (
	"strings"
)

// fakeRunner is a canned Runner for tests. Command output is keyed by the
// space-joined command line; an unconfigured command fails with a RunError
// the way an absent tool or empty probe does on a real host.
type fakeRunner struct {
	outputs  map[string]string
	files    map[string]string
	failures map[string]error

	commands []string
	writes   map[string]string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outputs:  map[string]string{},
		files:    map[string]string{},
		failures: map[string]error{},
		writes:   map[string]string{},
	}
}

func (f *fakeRunner) Run(name string, args ...string) (string, error) {
	cmd := strings.Join(append([]string{name}, args...), " ")
	f.commands = append(f.commands, cmd)

	err, failed := f.failures[cmd]
	if failed {
		return "", err
	}

	output, configured := f.outputs[cmd]
	if !configured {
		return "", NewRunError(cmd, 1, "")
	}

	return output, nil
}

func (f *fakeRunner) ReadFile(path string) (string, error) {
	err, failed := f.failures[path]
	if failed {
		return "", err
	}

	contents, configured := f.files[path]
	if !configured {
		return "", NewRunError("cat "+path, 1, "No such file or directory")
	}

	return contents, nil
}

func (f *fakeRunner) WriteFile(path string, contents string) error {
	err, failed := f.failures[path]
	if failed {
		return err
	}

	f.files[path] = contents
	f.writes[path] = contents

	return nil
}
