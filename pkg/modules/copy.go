package modules

import (
	"crypto/md5"
	"fmt"
	"os"
	"strings"
	"time"
)

// CopyModule places a local file or inline content on the target.
type CopyModule struct{}

type copyArgs struct {
	Src     string  `yaml:"src"`
	Content *string `yaml:"content"`
	Dest    string  `yaml:"dest" validate:"required"`
	Mode    string  `yaml:"mode"`
	Owner   string  `yaml:"owner"`
	Group   string  `yaml:"group"`
	Backup  bool    `yaml:"backup"`
}

func (m *CopyModule) Name() string { return "copy" }

func (m *CopyModule) Execute(ec *ExecContext, args map[string]any) (*Result, error) {
	var a copyArgs
	if err := DecodeArgs(args, &a); err != nil {
		return failf("copy: %v", err), nil
	}

	var content []byte
	switch {
	case a.Content != nil:
		content = []byte(*a.Content)
	case a.Src != "":
		data, err := os.ReadFile(a.Src)
		if err != nil {
			return failf("copy: failed to read source %s: %v", a.Src, err), nil
		}
		content = data
	default:
		return failf("copy module requires src or content"), nil
	}

	changed, err := contentDiffers(ec, a.Dest, content)
	if err != nil {
		return nil, err
	}

	if changed {
		if a.Backup {
			if err := backupRemote(ec, a.Dest); err != nil {
				return nil, err
			}
		}
		if err := ec.WriteFile(a.Dest, content); err != nil {
			return failf("copy: failed to write %s: %v", a.Dest, err), nil
		}
	}

	if res, err := applyFileAttrs(ec, a.Dest, a.Mode, a.Owner, a.Group); err != nil || res != nil {
		return res, err
	}

	if changed {
		return okf(true, "%s copied", a.Dest), nil
	}
	return okf(false, "%s unchanged", a.Dest), nil
}

// contentDiffers compares the md5 of the desired content with the remote
// file. A missing remote file counts as different.
func contentDiffers(ec *ExecContext, dest string, content []byte) (bool, error) {
	out, err := ec.Run("md5sum " + shQuote(dest) + " 2>/dev/null")
	if err != nil {
		return false, err
	}
	if !out.Success() {
		return true, nil
	}
	fields := strings.Fields(out.Stdout)
	if len(fields) == 0 {
		return true, nil
	}
	local := fmt.Sprintf("%x", md5.Sum(content))
	return fields[0] != local, nil
}

func backupRemote(ec *ExecContext, dest string) error {
	stamp := time.Now().Format("20060102-150405")
	cmd := fmt.Sprintf("test -e %s && cp -p %s %s.%s.bak || true",
		shQuote(dest), shQuote(dest), shQuote(dest), stamp)
	_, err := ec.Run(cmd)
	return err
}

// applyFileAttrs runs chmod/chown for any attributes given. It returns a
// failed Result when a command exits non-zero, nil otherwise.
func applyFileAttrs(ec *ExecContext, path, mode, owner, group string) (*Result, error) {
	if mode != "" {
		// An unrendered template in mode falls back to a safe default.
		if strings.Contains(mode, "{{") {
			mode = "0644"
		}
		out, err := ec.Run("chmod " + mode + " " + shQuote(path))
		if err != nil {
			return nil, err
		}
		if !out.Success() {
			return failf("chmod %s failed: %s", path, out.Stderr), nil
		}
	}
	ownership := owner
	if group != "" {
		ownership = owner + ":" + group
	}
	if ownership != "" {
		out, err := ec.Run("chown " + ownership + " " + shQuote(path))
		if err != nil {
			return nil, err
		}
		if !out.Success() {
			return failf("chown %s failed: %s", path, out.Stderr), nil
		}
	}
	return nil, nil
}
