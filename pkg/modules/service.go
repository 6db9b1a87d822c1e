package modules

import (
	"fmt"
	"strings"
)

// ServiceModule manages services through systemd when present, falling back
// to classic service/chkconfig invocations.
type ServiceModule struct{}

type serviceArgs struct {
	Name    string `yaml:"name" validate:"required"`
	State   string `yaml:"state"`
	Enabled *bool  `yaml:"enabled"`
}

func (m *ServiceModule) Name() string { return "service" }

func (m *ServiceModule) Execute(ec *ExecContext, args map[string]any) (*Result, error) {
	var a serviceArgs
	if err := DecodeArgs(args, &a); err != nil {
		return failf("service: %v", err), nil
	}
	if a.State == "" && a.Enabled == nil {
		return failf("service module requires state or enabled"), nil
	}

	systemd, err := hasSystemd(ec)
	if err != nil {
		return nil, err
	}

	changed := false
	if a.State != "" {
		verb, ok := map[string]string{
			"started":   "start",
			"stopped":   "stop",
			"restarted": "restart",
			"reloaded":  "reload",
		}[a.State]
		if !ok {
			return failf("service: unsupported state %q", a.State), nil
		}

		active, err := serviceActive(ec, systemd, a.Name)
		if err != nil {
			return nil, err
		}
		needed := true
		if verb == "start" && active {
			needed = false
		}
		if verb == "stop" && !active {
			needed = false
		}

		if needed {
			var cmd string
			if systemd {
				cmd = fmt.Sprintf("systemctl %s %s", verb, a.Name)
			} else {
				cmd = fmt.Sprintf("service %s %s", a.Name, verb)
			}
			out, err := ec.Run(cmd)
			if err != nil {
				return nil, err
			}
			if !out.Success() {
				return failf("service %s %s failed: %s", a.Name, verb, firstNonEmpty(out.Stderr, out.Stdout)), nil
			}
			changed = true
		}
	}

	if a.Enabled != nil {
		var cmd string
		if systemd {
			if *a.Enabled {
				cmd = "systemctl enable " + a.Name
			} else {
				cmd = "systemctl disable " + a.Name
			}
		} else {
			if *a.Enabled {
				cmd = "chkconfig " + a.Name + " on"
			} else {
				cmd = "chkconfig " + a.Name + " off"
			}
		}
		out, err := ec.Run(cmd)
		if err != nil {
			return nil, err
		}
		if !out.Success() {
			return failf("failed to toggle %s enablement: %s", a.Name, firstNonEmpty(out.Stderr, out.Stdout)), nil
		}
		changed = true
	}

	if changed {
		return okf(true, "service %s updated", a.Name), nil
	}
	return okf(false, "service %s already in desired state", a.Name), nil
}

func hasSystemd(ec *ExecContext) (bool, error) {
	out, err := ec.Run("which systemctl 2>/dev/null")
	if err != nil {
		return false, err
	}
	return out.Success() && strings.TrimSpace(out.Stdout) != "", nil
}

func serviceActive(ec *ExecContext, systemd bool, name string) (bool, error) {
	var cmd string
	if systemd {
		cmd = "systemctl is-active --quiet " + name
	} else {
		cmd = "service " + name + " status >/dev/null 2>&1"
	}
	out, err := ec.Run(cmd)
	if err != nil {
		return false, err
	}
	return out.Success(), nil
}
