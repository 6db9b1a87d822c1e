package inventory

import (
	"testing"
)

func TestHostSetVariableAliases(t *testing.T) {
	h := NewHost("web1 trailing junk")
	if h.Name != "web1" || h.Hostname != "web1" {
		t.Fatalf("expected cleaned name web1, got name=%q hostname=%q", h.Name, h.Hostname)
	}
	if h.Port != 22 {
		t.Fatalf("expected default port 22, got %d", h.Port)
	}

	h.SetVariable("ansible_host", "10.0.0.5")
	if h.Hostname != "10.0.0.5" {
		t.Errorf("ansible_host should rewrite hostname, got %q", h.Hostname)
	}
	h.SetVariable("ansible_ssh_port", "2222")
	if h.Port != 2222 {
		t.Errorf("ansible_ssh_port should rewrite port, got %d", h.Port)
	}
	h.SetVariable("ansible_port", "not-a-number")
	if h.Port != 2222 {
		t.Errorf("invalid port should keep previous value, got %d", h.Port)
	}
	// Alias values are still stored as plain variables.
	if v, ok := h.Variable("ansible_host"); !ok || v != "10.0.0.5" {
		t.Errorf("expected ansible_host stored, got %q ok=%v", v, ok)
	}
}

func TestHostInheritedNeverShadowsExplicit(t *testing.T) {
	h := NewHost("h1")
	h.SetVariable("env", "prod")

	if h.AddInherited("env", "staging") {
		t.Fatal("inherited value must not replace explicit variable")
	}
	if v, _ := h.Variable("env"); v != "prod" {
		t.Fatalf("expected explicit value, got %q", v)
	}

	if !h.AddInherited("region", "eu") {
		t.Fatal("expected inherited variable to be stored")
	}
	if v, ok := h.Variable("region"); !ok || v != "eu" {
		t.Fatalf("expected inherited lookup to succeed, got %q ok=%v", v, ok)
	}
}

func TestHostCredentialHelpers(t *testing.T) {
	h := NewHost("h2")
	h.SetVariable("ansible_ssh_user", "fallback")
	if u, _ := h.SSHUser(); u != "fallback" {
		t.Errorf("expected ansible_ssh_user fallback, got %q", u)
	}
	h.SetVariable("ansible_user", "primary")
	if u, _ := h.SSHUser(); u != "primary" {
		t.Errorf("ansible_user should win, got %q", u)
	}

	h.SetVariable("ansible_ssh_pass", "pw")
	if p, _ := h.SSHPassword(); p != "pw" {
		t.Errorf("expected password pw, got %q", p)
	}
	h.SetVariable("ansible_sudo_pass", "root-pw")
	if p, _ := h.SudoPassword(); p != "root-pw" {
		t.Errorf("expected sudo password, got %q", p)
	}
	h.SetVariable("ansible_ssh_private_key_file", "/keys/id_rsa")
	if k, _ := h.PrivateKey(); k != "/keys/id_rsa" {
		t.Errorf("expected key path, got %q", k)
	}
}

func buildInventory() *Inventory {
	inv := New()

	for _, name := range []string{"web1", "web2", "db1", "edge1"} {
		inv.AddHost(NewHost(name))
	}

	web := NewGroup("webservers")
	web.AddHost("web1")
	web.AddHost("web2")
	web.SetVariable("http_port", "80")

	db := NewGroup("dbservers")
	db.AddHost("db1")

	// edge is a child of webservers via [webservers:children]
	edge := NewGroup("edge")
	edge.AddHost("edge1")
	edge.Parent = "webservers"
	web.AddChild("edge")

	inv.AddGroup(web)
	inv.AddGroup(db)
	inv.AddGroup(edge)

	all := inv.Groups["all"]
	for _, name := range inv.HostNames() {
		all.AddHost(name)
	}
	all.SetVariable("dns", "10.0.0.2")

	return inv
}

func TestApplyInheritance(t *testing.T) {
	inv := buildInventory()
	inv.Hosts["web1"].SetVariable("http_port", "8080")
	inv.ApplyInheritance()

	// all-group vars reach every host.
	for _, name := range inv.HostNames() {
		if v, _ := inv.Hosts[name].Variable("dns"); v != "10.0.0.2" {
			t.Errorf("host %s: expected dns from all group, got %q", name, v)
		}
	}

	// Named group vars reach members without shadowing explicit values.
	if v, _ := inv.Hosts["web2"].Variable("http_port"); v != "80" {
		t.Errorf("web2 should inherit http_port=80, got %q", v)
	}
	if v, _ := inv.Hosts["web1"].Variable("http_port"); v != "8080" {
		t.Errorf("web1 explicit http_port must win, got %q", v)
	}
	if _, ok := inv.Hosts["db1"].Variable("http_port"); ok {
		t.Error("db1 must not inherit webservers vars")
	}

	// Parent group vars reach child group members in one pass.
	if v, _ := inv.Hosts["edge1"].Variable("http_port"); v != "80" {
		t.Errorf("edge1 should inherit parent group var, got %q", v)
	}
}

func TestApplyInheritanceIsIdempotent(t *testing.T) {
	inv := buildInventory()
	inv.ApplyInheritance()
	before := len(inv.Hosts["web1"].Inherited)
	inv.ApplyInheritance()
	if got := len(inv.Hosts["web1"].Inherited); got != before {
		t.Fatalf("second pass changed inherited set: %d != %d", got, before)
	}
}

// Propagation across the group hierarchy is a single parent-to-child pass,
// so a grandparent's vars do not reach a grandchild group in one call.
func TestApplyInheritanceIsShallow(t *testing.T) {
	inv := New()
	inv.AddHost(NewHost("leaf1"))

	top := NewGroup("top")
	top.SetVariable("tier", "0")
	top.AddChild("mid")

	mid := NewGroup("mid")
	mid.Parent = "top"
	mid.AddChild("leaf")

	leaf := NewGroup("leaf")
	leaf.Parent = "mid"
	leaf.AddHost("leaf1")

	inv.AddGroup(top)
	inv.AddGroup(mid)
	inv.AddGroup(leaf)
	inv.Groups["all"].AddHost("leaf1")

	inv.ApplyInheritance()

	// mid picks up tier from top. Whether leaf also sees it within the same
	// call depends on map iteration order of the group pass, so only the
	// mid-level result is guaranteed.
	if v, ok := inv.Groups["mid"].Variables["tier"]; !ok || v != "0" {
		t.Fatalf("mid should gap-fill from top, got %q ok=%v", v, ok)
	}
}

func TestFilterHosts(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    []string
	}{
		{"group with descendants", "webservers", []string{"web1", "web2", "edge1"}},
		{"plain group", "dbservers", []string{"db1"}},
		{"single host", "db1", []string{"db1"}},
		{"all group", "all", []string{"web1", "web2", "db1", "edge1"}},
		{"unknown pattern", "nope", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := buildInventory()
			hosts := inv.FilterHosts(tt.pattern)
			if len(hosts) != len(tt.want) {
				t.Fatalf("expected %d hosts, got %d", len(tt.want), len(hosts))
			}
			for i, want := range tt.want {
				if hosts[i].Name != want {
					t.Errorf("position %d: expected %s, got %s", i, want, hosts[i].Name)
				}
			}
		})
	}
}

func TestFilterHostsAppliesInheritanceToSnapshot(t *testing.T) {
	inv := buildInventory()
	hosts := inv.FilterHosts("webservers")

	var web2 *Host
	for _, h := range hosts {
		if h.Name == "web2" {
			web2 = h
		}
	}
	if web2 == nil {
		t.Fatal("web2 missing from filtered result")
	}
	if v, _ := web2.Variable("http_port"); v != "80" {
		t.Errorf("filtered host should carry group vars, got %q", v)
	}
	if v, _ := web2.Variable("dns"); v != "10.0.0.2" {
		t.Errorf("filtered host should carry all-group vars, got %q", v)
	}

	// The snapshot must not alias the source inventory.
	web2.SetVariable("http_port", "9999")
	if v, _ := inv.Hosts["web2"].Variable("http_port"); v == "9999" {
		t.Error("filtered host mutation leaked into source inventory")
	}
}
