package modules

import "strings"

// CommandModule implements both command and shell. Both run through the
// remote shell; the distinction is kept for playbook compatibility.
type CommandModule struct {
	shell bool
}

func (m *CommandModule) Name() string {
	if m.shell {
		return "shell"
	}
	return "command"
}

func (m *CommandModule) Execute(ec *ExecContext, args map[string]any) (*Result, error) {
	cmd, ok := stringArg(args, "_raw_params")
	if !ok {
		cmd, ok = stringArg(args, "cmd")
	}
	if !ok || strings.TrimSpace(cmd) == "" {
		return failf("%s module requires a command", m.Name()), nil
	}

	out, err := ec.Run(cmd)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Stdout:  strings.TrimRight(out.Stdout, "\n"),
		Stderr:  strings.TrimRight(out.Stderr, "\n"),
		Changed: out.Success(),
		Failed:  !out.Success(),
	}
	if res.Failed {
		res.Msg = firstNonEmpty(res.Stderr, res.Stdout, "command failed")
	} else {
		res.Msg = res.Stdout
	}
	return res, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
