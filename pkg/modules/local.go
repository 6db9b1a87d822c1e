package modules

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalConn runs modules on the control machine itself. Plays that target
// localhost or 127.0.0.1 use it instead of opening an SSH session.
type LocalConn struct {
	// SudoPassword feeds sudo -S when privilege escalation needs one.
	SudoPassword string
}

// NewLocalConn creates a local connection.
func NewLocalConn(sudoPassword string) *LocalConn {
	return &LocalConn{SudoPassword: sudoPassword}
}

// Run executes a command through the local shell.
func (c *LocalConn) Run(cmd string) (*Output, error) {
	return runLocal(exec.Command("sh", "-c", cmd), "")
}

// RunPrivileged executes a command through sudo, optionally as another user.
func (c *LocalConn) RunPrivileged(cmd, user string) (*Output, error) {
	args := []string{"-S"}
	if user != "" && user != "root" {
		args = append(args, "-u", user)
	}
	args = append(args, "sh", "-c", cmd)
	return runLocal(exec.Command("sudo", args...), c.SudoPassword)
}

// WriteFile writes content locally. Privileged writes stage through a temp
// file and move it into place with sudo.
func (c *LocalConn) WriteFile(path string, content []byte, privileged bool) error {
	if !privileged {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		return os.WriteFile(path, content, 0644)
	}

	tmp := filepath.Join(os.TempDir(), "opsail_temp_"+uuid.NewString())
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return err
	}
	defer os.Remove(tmp)

	out, err := c.RunPrivileged(fmt.Sprintf("mv %s %s", shQuote(tmp), shQuote(path)), "root")
	if err != nil {
		return err
	}
	if !out.Success() {
		return fmt.Errorf("privileged write to %s failed: %s", path, firstNonEmpty(out.Stderr, out.Stdout))
	}
	return nil
}

func runLocal(command *exec.Cmd, sudoPassword string) (*Output, error) {
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if sudoPassword != "" {
		command.Stdin = strings.NewReader(sudoPassword + "\n")
	}

	err := command.Run()
	out := &Output{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return nil, err
	}
	return out, nil
}
