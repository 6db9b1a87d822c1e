package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/opsailor/opsail/pkg/modules"
	"github.com/opsailor/opsail/pkg/telemetry"
)

// Client is an SSH connection to one managed host. It satisfies the
// modules.Conn contract: command failures surface as exit codes, errors are
// reserved for transport problems.
type Client struct {
	cfg *Config
	log *telemetry.Logger

	mu          sync.RWMutex
	client      *ssh.Client
	connectedAt time.Time
}

// NewClient creates a client for the given configuration. No connection is
// made until Connect.
func NewClient(cfg *Config, log *telemetry.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &TransportError{Op: "config", Err: err}
	}
	return &Client{cfg: cfg, log: log}, nil
}

// Connect dials the host and completes the SSH handshake. Connecting an
// already connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	clientConfig, err := c.cfg.buildClientConfig()
	if err != nil {
		return &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}

	address := c.cfg.Address()
	c.log.WithField("address", address).WithField("user", c.cfg.User).Debug("establishing SSH connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)
	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	select {
	case <-ctx.Done():
		return &TransportError{Op: "connect", Err: ctx.Err(), IsTemporary: true}
	case err := <-errChan:
		return &TransportError{
			Op:          "connect",
			Err:         err,
			IsAuthError: strings.Contains(err.Error(), "unable to authenticate"),
			IsTemporary: true,
		}
	case client := <-connChan:
		c.client = client
		c.connectedAt = time.Now()
		c.log.WithField("address", address).Debug("SSH connection established")
		return nil
	}
}

// Close shuts the connection down. Closing a disconnected client is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	if err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// IsConnected reports whether the client holds an open connection.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil
}

// Run executes a command on the remote host as the login user.
func (c *Client) Run(cmd string) (*modules.Output, error) {
	return c.runSession(cmd)
}

// RunPrivileged executes a command through sudo, optionally as another user.
// The sudo password, when configured, is piped in via sudo -S.
func (c *Client) RunPrivileged(cmd, user string) (*modules.Output, error) {
	sudo := "sudo"
	if c.cfg.SudoPassword != "" {
		sudo = fmt.Sprintf("echo %s | sudo -S", shellQuote(c.cfg.SudoPassword))
	}
	if user != "" && user != "root" {
		sudo += " -u " + shellQuote(user)
	}
	return c.runSession(fmt.Sprintf("%s sh -c %s", sudo, shellQuote(cmd)))
}

func (c *Client) runSession(cmd string) (*modules.Output, error) {
	client, err := c.getClient()
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, &TransportError{Op: "session", Err: err, IsTemporary: true}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	out := &modules.Output{}
	if err := session.Run(cmd); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitStatus()
		} else {
			return nil, &TransportError{Op: "execute", Err: err, IsTemporary: true}
		}
	}
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()
	return out, nil
}

func (c *Client) getClient() (*ssh.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, &TransportError{Op: "session", Err: fmt.Errorf("not connected")}
	}
	return c.client, nil
}

// shellQuote wraps s in single quotes, escaping embedded quotes so the
// remote shell treats the whole string as one literal word.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// tempRemotePath returns a unique staging path under /tmp for privileged
// file writes.
func tempRemotePath() string {
	return path.Join("/tmp", "opsail_temp_"+uuid.NewString())
}
