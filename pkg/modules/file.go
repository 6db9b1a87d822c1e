package modules

import "strings"

// FileModule manages files, directories, and symlinks.
type FileModule struct{}

type fileArgs struct {
	Path  string `yaml:"path"`
	Dest  string `yaml:"dest"`
	Src   string `yaml:"src"`
	State string `yaml:"state"`
	Mode  string `yaml:"mode"`
	Owner string `yaml:"owner"`
	Group string `yaml:"group"`
}

func (m *FileModule) Name() string { return "file" }

func (m *FileModule) Execute(ec *ExecContext, args map[string]any) (*Result, error) {
	var a fileArgs
	if err := DecodeArgs(args, &a); err != nil {
		return failf("file: %v", err), nil
	}
	path := a.Path
	if path == "" {
		path = a.Dest
	}
	if path == "" {
		return failf("file module requires path"), nil
	}
	state := a.State
	if state == "" {
		state = "file"
	}

	exists, err := remoteExists(ec, path)
	if err != nil {
		return nil, err
	}

	changed := false
	switch state {
	case "absent":
		if !exists {
			return okf(false, "%s already absent", path), nil
		}
		out, err := ec.Run("rm -rf " + shQuote(path))
		if err != nil {
			return nil, err
		}
		if !out.Success() {
			return failf("failed to remove %s: %s", path, out.Stderr), nil
		}
		return okf(true, "%s removed", path), nil

	case "touch":
		out, err := ec.Run("touch " + shQuote(path))
		if err != nil {
			return nil, err
		}
		if !out.Success() {
			return failf("failed to touch %s: %s", path, out.Stderr), nil
		}
		changed = true

	case "directory":
		if !exists {
			out, err := ec.Run("mkdir -p " + shQuote(path))
			if err != nil {
				return nil, err
			}
			if !out.Success() {
				return failf("failed to create directory %s: %s", path, out.Stderr), nil
			}
			changed = true
		}

	case "link":
		if a.Src == "" {
			return failf("file state=link requires src"), nil
		}
		current, err := ec.Run("readlink " + shQuote(path))
		if err != nil {
			return nil, err
		}
		if !current.Success() || strings.TrimSpace(current.Stdout) != a.Src {
			out, err := ec.Run("ln -sfn " + shQuote(a.Src) + " " + shQuote(path))
			if err != nil {
				return nil, err
			}
			if !out.Success() {
				return failf("failed to link %s -> %s: %s", path, a.Src, out.Stderr), nil
			}
			changed = true
		}

	case "file":
		if !exists {
			return failf("%s does not exist and state=file does not create it", path), nil
		}

	default:
		return failf("file: unsupported state %q", state), nil
	}

	if res, err := applyFileAttrs(ec, path, a.Mode, a.Owner, a.Group); err != nil || res != nil {
		return res, err
	}

	if changed {
		return okf(true, "%s %s", path, state), nil
	}
	return okf(false, "%s already %s", path, state), nil
}

func remoteExists(ec *ExecContext, path string) (bool, error) {
	out, err := ec.Run("test -e " + shQuote(path))
	if err != nil {
		return false, err
	}
	return out.Success(), nil
}
