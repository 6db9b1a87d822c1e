package ssh

import (
	"fmt"
	"path"
	"strings"

	"github.com/pkg/sftp"
)

// WriteFile places content at the given remote path. Unprivileged writes go
// straight through SFTP. Privileged writes stage through a unique file under
// /tmp and move it into place with sudo, preserving the mode and ownership
// of a pre-existing destination.
func (c *Client) WriteFile(remotePath string, content []byte, privileged bool) error {
	if !privileged {
		return c.sftpWrite(remotePath, content)
	}

	// Capture mode and ownership before the destination is replaced.
	stat, _ := c.RunPrivileged(fmt.Sprintf("stat -c '%%a %%u:%%g' %s 2>/dev/null", shellQuote(remotePath)), "root")

	staging := tempRemotePath()
	if err := c.sftpWrite(staging, content); err != nil {
		return err
	}

	out, err := c.RunPrivileged(fmt.Sprintf("mv %s %s", shellQuote(staging), shellQuote(remotePath)), "root")
	if err != nil {
		return err
	}
	if !out.Success() {
		return &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("moving %s into place: %s", remotePath, strings.TrimSpace(out.Stderr)),
		}
	}

	if stat != nil && stat.Success() {
		fields := strings.Fields(stat.Stdout)
		if len(fields) == 2 {
			restore := fmt.Sprintf("chmod %s %s && chown %s %s",
				fields[0], shellQuote(remotePath), fields[1], shellQuote(remotePath))
			if out, err := c.RunPrivileged(restore, "root"); err == nil && !out.Success() {
				c.log.WithField("path", remotePath).
					WithField("stderr", strings.TrimSpace(out.Stderr)).
					Warn("could not restore file attributes")
			}
		}
	}
	return nil
}

func (c *Client) sftpWrite(remotePath string, content []byte) error {
	client, err := c.getClient()
	if err != nil {
		return err
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return &TransportError{Op: "sftp", Err: err, IsTemporary: true}
	}
	defer sftpClient.Close()

	if dir := path.Dir(remotePath); dir != "" && dir != "." && dir != "/" {
		_ = sftpClient.MkdirAll(dir)
	}

	f, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("creating %s: %w", remotePath, err)}
	}
	defer f.Close()

	if _, err := f.Write(content); err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("writing %s: %w", remotePath, err)}
	}
	return nil
}
