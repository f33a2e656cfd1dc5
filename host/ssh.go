package host

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/kballard/go-shellquote"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/scstools/compellent/shared"
	"github.com/scstools/compellent/shared/logger"
)

// SSHConfig holds the parameters needed to reach a host over SSH.
type SSHConfig struct {
	Host     string
	Port     int
	User     string
	Password string

	// CheckHostKey verifies the host key against the user's known_hosts.
	CheckHostKey bool
}

// SSHRunner executes commands on a remote host over an SSH connection.
// It must be closed with Close() which tears the connection down at most once.
type SSHRunner struct {
	config SSHConfig
	client *ssh.Client

	closeOnce sync.Once
}

// ConnectSSH opens an SSH connection to the configured host. Agent held keys
// are tried before the configured password.
func ConnectSSH(config SSHConfig) (*SSHRunner, error) {
	if config.Port == 0 {
		config.Port = 22
	}

	if config.User == "" {
		config.User = "root"
	}

	var methods []ssh.AuthMethod

	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket != "" {
		conn, err := net.Dial("unix", socket)
		if err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if config.Password != "" {
		methods = append(methods, ssh.Password(config.Password))
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if config.CheckHostKey {
		knownHosts := os.ExpandEnv("$HOME/.ssh/known_hosts")
		if !shared.PathExists(knownHosts) {
			return nil, fmt.Errorf("Cannot check host keys: %q does not exist", knownHosts)
		}

		var err error
		hostKeyCallback, err = knownhosts.New(knownHosts)
		if err != nil {
			return nil, fmt.Errorf("Failed to load known hosts: %w", err)
		}
	}

	client, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", config.Host, config.Port), &ssh.ClientConfig{
		User:            config.User,
		Auth:            methods,
		HostKeyCallback: hostKeyCallback,
	})
	if err != nil {
		return nil, fmt.Errorf("Unable to connect as %s@%s using SSH: %w", config.User, config.Host, err)
	}

	return &SSHRunner{config: config, client: client}, nil
}

// Close tears down the SSH connection. Errors are swallowed since the
// connection is being discarded regardless.
func (r *SSHRunner) Close() {
	r.closeOnce.Do(func() {
		err := r.client.Close()
		if err != nil {
			logger.Debug("Failed to close SSH connection", logger.Ctx{"host": r.config.Host, "err": err})
		}
	})
}

// Run executes a command on the remote host and returns its standard output.
func (r *SSHRunner) Run(name string, args ...string) (string, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("Failed to open SSH session to %q: %w", r.config.Host, err)
	}

	defer func() { _ = session.Close() }()

	cmd := shellquote.Join(append([]string{name}, args...)...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	logger.Debug("Running remote command", logger.Ctx{"host": r.config.Host, "cmd": cmd})

	err = session.Run(cmd)
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), NewRunError(cmd, exitErr.ExitStatus(), strings.TrimSpace(stderr.String()))
		}

		return stdout.String(), fmt.Errorf("Failed to run %q on %q: %w", cmd, r.config.Host, err)
	}

	return stdout.String(), nil
}

// ReadFile returns the contents of a file on the remote host.
func (r *SSHRunner) ReadFile(path string) (string, error) {
	return r.Run("cat", path)
}

// WriteFile replaces the contents of a file on the remote host.
func (r *SSHRunner) WriteFile(path string, contents string) error {
	session, err := r.client.NewSession()
	if err != nil {
		return fmt.Errorf("Failed to open SSH session to %q: %w", r.config.Host, err)
	}

	defer func() { _ = session.Close() }()

	var stderr bytes.Buffer
	session.Stdin = strings.NewReader(contents)
	session.Stderr = &stderr

	cmd := shellquote.Join("tee", path)
	err = session.Run(cmd + " > /dev/null")
	if err != nil {
		return fmt.Errorf("Failed to write %q on %q: %s: %w", path, r.config.Host, strings.TrimSpace(stderr.String()), err)
	}

	return nil
}
