// Package ssh connects to managed hosts over SSH and executes module
// commands there. It implements the modules.Conn contract, so every module
// runs identically against remote and local targets.
package ssh

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/opsailor/opsail/pkg/inventory"
)

// Config holds the connection settings for one managed host.
type Config struct {
	// Host is the address to dial, usually ansible_host from inventory.
	Host string

	// Port is the SSH port.
	Port int

	// User is the login user.
	User string

	// Password enables password authentication when set.
	Password string

	// PrivateKeyPath points at a PEM private key file.
	PrivateKeyPath string

	// SudoPassword feeds sudo -S during privilege escalation.
	SudoPassword string

	// ConnectTimeout bounds the TCP dial plus the SSH handshake.
	ConnectTimeout time.Duration
}

// DefaultConnectTimeout is used when Config.ConnectTimeout is zero.
const DefaultConnectTimeout = 30 * time.Second

// ConfigFromHost derives connection settings from an inventory host and its
// resolved variables. The login user falls back to the current OS user when
// the inventory names none.
func ConfigFromHost(h *inventory.Host) *Config {
	user, ok := h.SSHUser()
	if !ok {
		user = os.Getenv("USER")
	}
	password, _ := h.SSHPassword()
	keyPath, _ := h.PrivateKey()
	sudoPassword, _ := h.SudoPassword()

	return &Config{
		Host:           h.Hostname,
		Port:           h.Port,
		User:           user,
		Password:       password,
		PrivateKeyPath: keyPath,
		SudoPassword:   sudoPassword,
		ConnectTimeout: DefaultConnectTimeout,
	}
}

// Validate checks that the configuration can produce a connection attempt.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	return nil
}

// Address returns the host:port dial target.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// buildClientConfig assembles the ssh.ClientConfig. Authentication methods
// are tried in order: password, the configured key file, the default
// ~/.ssh/id_rsa key, and finally the SSH agent.
func (c *Config) buildClientConfig() (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod

	if c.Password != "" {
		methods = append(methods, ssh.Password(c.Password))
	}

	keyPath := c.PrivateKeyPath
	if keyPath == "" {
		keyPath = filepath.Join(os.Getenv("HOME"), ".ssh", "id_rsa")
	}
	if signer, err := loadPrivateKey(keyPath); err == nil {
		methods = append(methods, ssh.PublicKeys(signer))
	} else if c.PrivateKeyPath != "" {
		// An explicitly configured key that fails to load is an error;
		// a missing default key is not.
		return nil, err
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no usable authentication method for %s@%s", c.User, c.Host)
	}

	timeout := c.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}, nil
}

func loadPrivateKey(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading private key %s: %w", path, err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parsing private key %s: %w", path, err)
	}
	return signer, nil
}
