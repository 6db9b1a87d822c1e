// Package inventory provides hosts, groups, variable inheritance, and the
// INI-style inventory file loader.
package inventory

import (
	"strconv"
	"strings"
)

// Host is a managed machine with its connection settings and variables.
// Explicit variables come from the host line itself; inherited variables are
// filled in from group membership and never shadow explicit ones.
type Host struct {
	Name      string
	Hostname  string
	Port      int
	Variables map[string]string
	Inherited map[string]string
}

// NewHost creates a host. Anything after the first space in the name is
// dropped so a raw inventory line can be passed through.
func NewHost(name string) *Host {
	if i := strings.IndexByte(name, ' '); i >= 0 {
		name = name[:i]
	}
	return &Host{
		Name:      name,
		Hostname:  name,
		Port:      22,
		Variables: map[string]string{},
		Inherited: map[string]string{},
	}
}

// SetVariable stores an explicit variable. The ansible_host and ansible_port
// aliases also update the connection address and port.
func (h *Host) SetVariable(key, value string) {
	switch key {
	case "ansible_host", "ansible_ssh_host":
		h.Hostname = value
	case "ansible_port", "ansible_ssh_port":
		if port, err := strconv.Atoi(value); err == nil {
			h.Port = port
		}
	}
	h.Variables[key] = value
}

// AddInherited records an inherited variable unless an explicit variable of
// the same name exists. It reports whether the value was stored.
func (h *Host) AddInherited(key, value string) bool {
	if _, ok := h.Variables[key]; ok {
		return false
	}
	h.Inherited[key] = value
	return true
}

// Variable returns an explicit variable, falling back to inherited values.
func (h *Host) Variable(key string) (string, bool) {
	if v, ok := h.Variables[key]; ok {
		return v, true
	}
	v, ok := h.Inherited[key]
	return v, ok
}

// SSHUser returns the configured SSH login user, if any.
func (h *Host) SSHUser() (string, bool) {
	if v, ok := h.Variable("ansible_user"); ok {
		return v, true
	}
	return h.Variable("ansible_ssh_user")
}

// SSHPassword returns the configured SSH password, if any.
func (h *Host) SSHPassword() (string, bool) {
	if v, ok := h.Variable("ansible_password"); ok {
		return v, true
	}
	return h.Variable("ansible_ssh_pass")
}

// SudoPassword returns the configured privilege escalation password, if any.
func (h *Host) SudoPassword() (string, bool) {
	if v, ok := h.Variable("ansible_sudo_pass"); ok {
		return v, true
	}
	return h.Variable("ansible_ssh_sudo_pass")
}

// PrivateKey returns the configured private key path, if any.
func (h *Host) PrivateKey() (string, bool) {
	return h.Variable("ansible_ssh_private_key_file")
}

// clone returns a deep copy so filtered views never alias the source maps.
func (h *Host) clone() *Host {
	c := &Host{
		Name:      h.Name,
		Hostname:  h.Hostname,
		Port:      h.Port,
		Variables: make(map[string]string, len(h.Variables)),
		Inherited: make(map[string]string, len(h.Inherited)),
	}
	for k, v := range h.Variables {
		c.Variables[k] = v
	}
	for k, v := range h.Inherited {
		c.Inherited[k] = v
	}
	return c
}

// Group is a named set of hosts with group-level variables and an optional
// parent/children relationship built from [group:children] sections.
type Group struct {
	Name      string
	Hosts     map[string]struct{}
	Variables map[string]string
	Parent    string
	Children  map[string]struct{}
}

// NewGroup creates an empty group.
func NewGroup(name string) *Group {
	return &Group{
		Name:      name,
		Hosts:     map[string]struct{}{},
		Variables: map[string]string{},
		Children:  map[string]struct{}{},
	}
}

// AddHost adds a member host. It reports whether the host was new.
func (g *Group) AddHost(name string) bool {
	if _, ok := g.Hosts[name]; ok {
		return false
	}
	g.Hosts[name] = struct{}{}
	return true
}

// AddChild records a child group. It reports whether the child was new.
func (g *Group) AddChild(name string) bool {
	if _, ok := g.Children[name]; ok {
		return false
	}
	g.Children[name] = struct{}{}
	return true
}

// SetVariable stores a group variable.
func (g *Group) SetVariable(key, value string) {
	g.Variables[key] = value
}

// HasHost reports direct membership.
func (g *Group) HasHost(name string) bool {
	_, ok := g.Hosts[name]
	return ok
}

func (g *Group) clone() *Group {
	c := &Group{
		Name:      g.Name,
		Hosts:     make(map[string]struct{}, len(g.Hosts)),
		Variables: make(map[string]string, len(g.Variables)),
		Parent:    g.Parent,
		Children:  make(map[string]struct{}, len(g.Children)),
	}
	for k := range g.Hosts {
		c.Hosts[k] = struct{}{}
	}
	for k, v := range g.Variables {
		c.Variables[k] = v
	}
	for k := range g.Children {
		c.Children[k] = struct{}{}
	}
	return c
}
