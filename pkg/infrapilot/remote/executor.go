// Package remote implements command execution on operator-selected SSH
// targets. One connection, one session, one command per call; failures are
// reported, never retried, since remote commands are not assumed
// idempotent.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/jholhewres/infrapilot/pkg/infrapilot/store"
)

// Config holds executor configuration. Credential material is provisioned
// out of band; only paths travel through configuration.
type Config struct {
	// KeyPath is the PEM private key used for all targets.
	KeyPath string `yaml:"key_path"`

	// KnownHostsPath verifies host keys. Empty skips verification, which
	// is only acceptable on closed management networks.
	KnownHostsPath string `yaml:"known_hosts_path"`

	// ConnectTimeout bounds the TCP dial and SSH handshake. Zero means 15s.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// CommandTimeout bounds a single remote command. Zero means 120s.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// ExecutionError describes a remote command that connected but failed, or a
// connection that could not be established. The orchestrator feeds its text
// back through the engine instead of surfacing it raw.
type ExecutionError struct {
	Host    string
	Command string
	Stderr  string
	Err     error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("executing %q on %s: %v", e.Command, e.Host, e.Err)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Executor resolves a chat's selected target and runs commands on it.
type Executor struct {
	cfg      Config
	registry *store.ConfigStore
	logger   *slog.Logger
}

// New creates an executor backed by the given server registry.
func New(cfg Config, registry *store.ConfigStore, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 120 * time.Second
	}
	return &Executor{
		cfg:      cfg,
		registry: registry,
		logger:   logger.With("component", "remote"),
	}
}

// Execute runs one command on the chat's selected target and returns its
// standard output. Resolution failures propagate the registry's sentinel
// errors unchanged so callers can map them to remediation messages.
func (e *Executor) Execute(ctx context.Context, chatID, command string) (string, error) {
	target, err := e.registry.ResolveSelected(chatID)
	if err != nil {
		return "", err
	}
	return e.run(ctx, target, command)
}

func (e *Executor) run(ctx context.Context, target store.Target, command string) (string, error) {
	addr := address(target)
	start := time.Now()

	client, err := e.dial(ctx, target, addr)
	if err != nil {
		return "", &ExecutionError{Host: addr, Command: command, Err: err}
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", &ExecutionError{Host: addr, Command: command, Err: fmt.Errorf("opening session: %w", err)}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	cmdCtx, cancel := context.WithTimeout(ctx, e.cfg.CommandTimeout)
	defer cancel()

	select {
	case err = <-done:
	case <-cmdCtx.Done():
		session.Close()
		return "", &ExecutionError{Host: addr, Command: command, Err: fmt.Errorf("command timed out after %s", e.cfg.CommandTimeout)}
	}

	if err != nil {
		return "", &ExecutionError{Host: addr, Command: command, Stderr: stderr.String(), Err: err}
	}

	e.logger.Info("command executed",
		"host", addr,
		"user", target.User,
		"duration_ms", time.Since(start).Milliseconds(),
		"output_bytes", stdout.Len(),
	)
	return stdout.String(), nil
}

// dial opens the TCP connection and completes the SSH handshake, both
// bounded by ConnectTimeout.
func (e *Executor) dial(ctx context.Context, target store.Target, addr string) (*ssh.Client, error) {
	clientCfg, err := e.clientConfig(target.User)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, e.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	if deadline, ok := dialCtx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake: %w", err)
	}
	conn.SetDeadline(time.Time{})
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (e *Executor) clientConfig(user string) (*ssh.ClientConfig, error) {
	keyData, err := os.ReadFile(e.cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if e.cfg.KnownHostsPath != "" {
		hostKeyCallback, err = knownhosts.New(e.cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         e.cfg.ConnectTimeout,
	}, nil
}

// address formats host:port, defaulting the port to 22.
func address(t store.Target) string {
	port := t.Port
	if port <= 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, fmt.Sprintf("%d", port))
}
