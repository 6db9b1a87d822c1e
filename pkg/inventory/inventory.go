package inventory

import "sort"

// Inventory holds all hosts and groups. Host insertion order is preserved so
// execution and recap output stay stable across runs.
type Inventory struct {
	Hosts  map[string]*Host
	Groups map[string]*Group

	order []string
}

// New creates an inventory seeded with the implicit "all" and "ungrouped"
// groups.
func New() *Inventory {
	inv := &Inventory{
		Hosts:  map[string]*Host{},
		Groups: map[string]*Group{},
	}
	inv.AddGroup(NewGroup("all"))
	inv.AddGroup(NewGroup("ungrouped"))
	return inv
}

// AddHost registers a host. An existing host of the same name is kept.
func (inv *Inventory) AddHost(h *Host) {
	if _, ok := inv.Hosts[h.Name]; ok {
		return
	}
	inv.Hosts[h.Name] = h
	inv.order = append(inv.order, h.Name)
}

// AddGroup registers a group. An existing group of the same name is kept.
func (inv *Inventory) AddGroup(g *Group) {
	if _, ok := inv.Groups[g.Name]; ok {
		return
	}
	inv.Groups[g.Name] = g
}

// Group returns a group by name.
func (inv *Inventory) Group(name string) (*Group, bool) {
	g, ok := inv.Groups[name]
	return g, ok
}

// Host returns a host by name.
func (inv *Inventory) Host(name string) (*Host, bool) {
	h, ok := inv.Hosts[name]
	return h, ok
}

// HostNames returns host names in insertion order.
func (inv *Inventory) HostNames() []string {
	out := make([]string, len(inv.order))
	copy(out, inv.order)
	return out
}

// GroupNames returns group names sorted for stable iteration.
func (inv *Inventory) GroupNames() []string {
	names := make([]string, 0, len(inv.Groups))
	for name := range inv.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GroupsForHost returns the names of all groups a host belongs to, sorted.
func (inv *Inventory) GroupsForHost(host string) []string {
	var names []string
	for _, name := range inv.GroupNames() {
		if inv.Groups[name].HasHost(host) {
			names = append(names, name)
		}
	}
	return names
}

// ApplyInheritance propagates group variables to hosts in three ordered
// passes: "all" group vars first, then every named group's vars to its
// members, then one non-recursive parent-to-child pass that gap-fills each
// child group's vars from its parent and re-propagates to member hosts.
// Explicit host variables are never overwritten, so the call is idempotent.
// A grandparent's vars do not reach a grandchild group within a single call.
func (inv *Inventory) ApplyInheritance() {
	if all, ok := inv.Groups["all"]; ok {
		for _, host := range inv.Hosts {
			for k, v := range all.Variables {
				host.AddInherited(k, v)
			}
		}
	}

	for _, name := range inv.GroupNames() {
		if name == "all" {
			continue
		}
		inv.applyGroupVars(inv.Groups[name])
	}

	for _, name := range inv.GroupNames() {
		child := inv.Groups[name]
		if child.Parent == "" {
			continue
		}
		parent, ok := inv.Groups[child.Parent]
		if !ok {
			continue
		}
		for k, v := range parent.Variables {
			if _, exists := child.Variables[k]; !exists {
				child.Variables[k] = v
			}
		}
		inv.applyGroupVars(child)
	}
}

func (inv *Inventory) applyGroupVars(g *Group) {
	for member := range g.Hosts {
		host, ok := inv.Hosts[member]
		if !ok {
			continue
		}
		for k, v := range g.Variables {
			host.AddInherited(k, v)
		}
	}
}

// FilterHosts resolves a pattern against the inventory. A group name matches
// the group's direct hosts plus the hosts of all descendant groups; a host
// name matches that single host; anything else yields an empty result rather
// than an error. The returned hosts are deep copies from a filtered snapshot
// with inheritance re-applied, in inventory insertion order.
func (inv *Inventory) FilterHosts(pattern string) []*Host {
	var selected map[string]struct{}

	if group, ok := inv.Groups[pattern]; ok {
		selected = map[string]struct{}{}
		inv.collectGroupHosts(group, selected, map[string]struct{}{})
	} else if _, ok := inv.Hosts[pattern]; ok {
		selected = map[string]struct{}{pattern: {}}
	} else {
		return nil
	}

	sub := inv.snapshot(selected)
	sub.ApplyInheritance()

	hosts := make([]*Host, 0, len(selected))
	for _, name := range sub.order {
		hosts = append(hosts, sub.Hosts[name])
	}
	return hosts
}

func (inv *Inventory) collectGroupHosts(g *Group, out map[string]struct{}, seen map[string]struct{}) {
	if _, ok := seen[g.Name]; ok {
		return
	}
	seen[g.Name] = struct{}{}
	for host := range g.Hosts {
		out[host] = struct{}{}
	}
	for child := range g.Children {
		if childGroup, ok := inv.Groups[child]; ok {
			inv.collectGroupHosts(childGroup, out, seen)
		}
	}
}

// snapshot builds a sub-inventory containing only the selected hosts. Groups
// keep their variables and hierarchy with membership intersected against the
// selection.
func (inv *Inventory) snapshot(selected map[string]struct{}) *Inventory {
	sub := &Inventory{
		Hosts:  map[string]*Host{},
		Groups: map[string]*Group{},
	}
	for _, name := range inv.order {
		if _, ok := selected[name]; !ok {
			continue
		}
		sub.Hosts[name] = inv.Hosts[name].clone()
		sub.order = append(sub.order, name)
	}
	for name, group := range inv.Groups {
		g := group.clone()
		for member := range g.Hosts {
			if _, ok := selected[member]; !ok {
				delete(g.Hosts, member)
			}
		}
		sub.Groups[name] = g
	}
	return sub
}
