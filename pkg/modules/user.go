package modules

import (
	"fmt"
	"strings"
)

// UserModule manages system accounts with useradd/usermod/userdel.
type UserModule struct{}

type userArgs struct {
	Name       string `yaml:"name" validate:"required"`
	State      string `yaml:"state"`
	UID        string `yaml:"uid"`
	GID        string `yaml:"gid"`
	Groups     string `yaml:"groups"`
	Append     bool   `yaml:"append"`
	Home       string `yaml:"home"`
	Shell      string `yaml:"shell"`
	Comment    string `yaml:"comment"`
	Password   string `yaml:"password"`
	CreateHome *bool  `yaml:"create_home"`
	System     bool   `yaml:"system"`
	Remove     bool   `yaml:"remove"`
}

func (m *UserModule) Name() string { return "user" }

func (m *UserModule) Execute(ec *ExecContext, args map[string]any) (*Result, error) {
	var a userArgs
	if err := DecodeArgs(args, &a); err != nil {
		return failf("user: %v", err), nil
	}
	state := a.State
	if state == "" {
		state = "present"
	}

	exists, err := userExists(ec, a.Name)
	if err != nil {
		return nil, err
	}

	if state == "absent" {
		if !exists {
			return okf(false, "user %s already absent", a.Name), nil
		}
		cmd := "userdel"
		if a.Remove {
			cmd += " -r"
		}
		out, err := ec.Run(cmd + " " + shQuote(a.Name))
		if err != nil {
			return nil, err
		}
		if !out.Success() {
			return failf("failed to remove user %s: %s", a.Name, firstNonEmpty(out.Stderr, out.Stdout)), nil
		}
		return okf(true, "user %s removed", a.Name), nil
	}
	if state != "present" {
		return failf("user: unsupported state %q", state), nil
	}

	var flags []string
	if a.UID != "" {
		flags = append(flags, "-u", a.UID)
	}
	if a.GID != "" {
		flags = append(flags, "-g", a.GID)
	}
	if a.Groups != "" {
		if a.Append && exists {
			flags = append(flags, "-a")
		}
		flags = append(flags, "-G", a.Groups)
	}
	if a.Home != "" {
		flags = append(flags, "-d", shQuote(a.Home))
	}
	if a.Shell != "" {
		flags = append(flags, "-s", shQuote(a.Shell))
	}
	if a.Comment != "" {
		flags = append(flags, "-c", shQuote(a.Comment))
	}
	if a.Password != "" {
		// Password must arrive pre-hashed (see the password_hash filter).
		flags = append(flags, "-p", shQuote(a.Password))
	}

	var cmd string
	if exists {
		if len(flags) == 0 {
			return okf(false, "user %s already present", a.Name), nil
		}
		cmd = "usermod " + strings.Join(flags, " ") + " " + shQuote(a.Name)
	} else {
		createFlags := flags
		if a.System {
			createFlags = append(createFlags, "-r")
		}
		if a.CreateHome == nil || *a.CreateHome {
			createFlags = append(createFlags, "-m")
		} else {
			createFlags = append(createFlags, "-M")
		}
		cmd = "useradd " + strings.Join(createFlags, " ") + " " + shQuote(a.Name)
	}

	out, err := ec.Run(cmd)
	if err != nil {
		return nil, err
	}
	if !out.Success() {
		return failf("failed to manage user %s: %s", a.Name, firstNonEmpty(out.Stderr, out.Stdout)), nil
	}
	verb := "updated"
	if !exists {
		verb = "created"
	}
	return okf(true, "user %s %s", a.Name, verb), nil
}

func userExists(ec *ExecContext, name string) (bool, error) {
	out, err := ec.Run(fmt.Sprintf("id -u %s >/dev/null 2>&1", shQuote(name)))
	if err != nil {
		return false, err
	}
	return out.Success(), nil
}
