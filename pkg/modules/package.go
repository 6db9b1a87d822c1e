package modules

import (
	"fmt"
	"strings"
)

// PackageModule installs and removes packages with whatever manager the
// target has. Detection probes the usual suspects in order.
type PackageModule struct{}

type packageArgs struct {
	Name        any    `yaml:"name" validate:"required"`
	State       string `yaml:"state"`
	UpdateCache bool   `yaml:"update_cache"`
}

// packageManager describes the command shapes of one package manager.
type packageManager struct {
	name        string
	install     string
	remove      string
	update      string
	installedCk string
}

var packageManagers = []packageManager{
	{
		name:        "apt-get",
		install:     "DEBIAN_FRONTEND=noninteractive apt-get install -y %s",
		remove:      "DEBIAN_FRONTEND=noninteractive apt-get remove -y %s",
		update:      "apt-get update",
		installedCk: "dpkg-query -W -f='${Status}' %s 2>/dev/null | grep -q 'install ok installed'",
	},
	{
		name:        "dnf",
		install:     "dnf install -y %s",
		remove:      "dnf remove -y %s",
		update:      "dnf makecache",
		installedCk: "rpm -q %s",
	},
	{
		name:        "yum",
		install:     "yum install -y %s",
		remove:      "yum remove -y %s",
		update:      "yum makecache",
		installedCk: "rpm -q %s",
	},
	{
		name:        "zypper",
		install:     "zypper --non-interactive install %s",
		remove:      "zypper --non-interactive remove %s",
		update:      "zypper refresh",
		installedCk: "rpm -q %s",
	},
	{
		name:        "pacman",
		install:     "pacman -S --noconfirm %s",
		remove:      "pacman -R --noconfirm %s",
		update:      "pacman -Sy",
		installedCk: "pacman -Q %s",
	},
}

func (m *PackageModule) Name() string { return "package" }

func (m *PackageModule) Execute(ec *ExecContext, args map[string]any) (*Result, error) {
	var a packageArgs
	if err := DecodeArgs(args, &a); err != nil {
		return failf("package: %v", err), nil
	}
	names := packageNames(a.Name)
	if names == "" {
		return failf("package module requires name"), nil
	}
	state := a.State
	if state == "" {
		state = "present"
	}

	mgr, err := detectPackageManager(ec)
	if err != nil {
		return nil, err
	}
	if mgr == nil {
		return failf("no supported package manager found"), nil
	}

	if a.UpdateCache {
		out, err := ec.Run(mgr.update)
		if err != nil {
			return nil, err
		}
		if !out.Success() {
			return failf("%s cache update failed: %s", mgr.name, out.Stderr), nil
		}
	}

	installed, err := allInstalled(ec, mgr, names)
	if err != nil {
		return nil, err
	}

	switch state {
	case "present":
		if installed {
			return okf(false, "%s already present", names), nil
		}
		return m.run(ec, fmt.Sprintf(mgr.install, names), names, "installed")
	case "latest":
		// Install is an upgrade when the package already exists.
		return m.run(ec, fmt.Sprintf(mgr.install, names), names, "updated")
	case "absent":
		if !installed {
			return okf(false, "%s already absent", names), nil
		}
		return m.run(ec, fmt.Sprintf(mgr.remove, names), names, "removed")
	default:
		return failf("package: unsupported state %q", state), nil
	}
}

func (m *PackageModule) run(ec *ExecContext, cmd, names, verb string) (*Result, error) {
	out, err := ec.Run(cmd)
	if err != nil {
		return nil, err
	}
	if !out.Success() {
		return failf("failed to manage %s: %s", names, firstNonEmpty(out.Stderr, out.Stdout)), nil
	}
	return okf(true, "%s %s", names, verb), nil
}

func detectPackageManager(ec *ExecContext) (*packageManager, error) {
	for i := range packageManagers {
		out, err := ec.Run("which " + packageManagers[i].name + " 2>/dev/null")
		if err != nil {
			return nil, err
		}
		if out.Success() && strings.TrimSpace(out.Stdout) != "" {
			return &packageManagers[i], nil
		}
	}
	return nil, nil
}

func allInstalled(ec *ExecContext, mgr *packageManager, names string) (bool, error) {
	for _, name := range strings.Fields(names) {
		out, err := ec.Run(fmt.Sprintf(mgr.installedCk, name))
		if err != nil {
			return false, err
		}
		if !out.Success() {
			return false, nil
		}
	}
	return true, nil
}

// packageNames accepts a string or a list of names and joins them for the
// manager command line.
func packageNames(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []any:
		var parts []string
		for _, item := range val {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, " ")
	default:
		if v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	}
}
