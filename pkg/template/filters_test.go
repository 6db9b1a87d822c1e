package template

import (
	"strings"
	"testing"

	"github.com/flosch/pongo2/v6"
)

func TestPasswordHashFilterSha512(t *testing.T) {
	out, perr := filterPasswordHash(pongo2.AsValue("testpassword"), pongo2.AsValue("sha512"))
	if perr != nil {
		t.Fatalf("filter failed: %v", perr)
	}
	hash := out.String()
	if !strings.HasPrefix(hash, "$6$") {
		t.Errorf("expected $6$ prefix, got %q", hash)
	}
	if len(hash) < 50 {
		t.Errorf("hash suspiciously short: %q", hash)
	}
}

func TestPasswordHashFilterSha256(t *testing.T) {
	out, perr := filterPasswordHash(pongo2.AsValue("testpassword"), pongo2.AsValue("sha256"))
	if perr != nil {
		t.Fatalf("filter failed: %v", perr)
	}
	if !strings.HasPrefix(out.String(), "$5$") {
		t.Errorf("expected $5$ prefix, got %q", out.String())
	}
}

func TestPasswordHashFilterDefaults(t *testing.T) {
	// No parameter defaults to sha512.
	out, perr := filterPasswordHash(pongo2.AsValue("testpassword"), pongo2.AsValue(nil))
	if perr != nil {
		t.Fatalf("filter failed: %v", perr)
	}
	if !strings.HasPrefix(out.String(), "$6$") {
		t.Errorf("expected default sha512, got %q", out.String())
	}

	// Unknown hash types fall back to sha512 as well.
	out, perr = filterPasswordHash(pongo2.AsValue("testpassword"), pongo2.AsValue("scrypt"))
	if perr != nil {
		t.Fatalf("filter failed: %v", perr)
	}
	if !strings.HasPrefix(out.String(), "$6$") {
		t.Errorf("expected fallback sha512, got %q", out.String())
	}
}

func TestPasswordHashFilterSalted(t *testing.T) {
	a, _ := filterPasswordHash(pongo2.AsValue("same"), pongo2.AsValue("sha512"))
	b, _ := filterPasswordHash(pongo2.AsValue("same"), pongo2.AsValue("sha512"))
	if a.String() == b.String() {
		t.Error("two hashes of the same password should differ by salt")
	}
}

func TestSelectAttrFilter(t *testing.T) {
	services := []any{
		map[string]any{"name": "nginx", "state": "running"},
		map[string]any{"name": "redis", "state": "stopped"},
		map[string]any{"name": "postgres", "state": "running"},
	}

	out, perr := filterSelectAttr(pongo2.AsValue(services), pongo2.AsValue("state=running"))
	if perr != nil {
		t.Fatalf("filter failed: %v", perr)
	}
	list, ok := out.Interface().([]any)
	if !ok {
		t.Fatalf("expected list result, got %T", out.Interface())
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(list))
	}
	first := list[0].(map[string]any)
	if first["name"] != "nginx" {
		t.Errorf("expected nginx first, got %#v", first["name"])
	}
}

func TestSelectAttrFilterPassthrough(t *testing.T) {
	// Non-list input and malformed params pass through unchanged.
	out, perr := filterSelectAttr(pongo2.AsValue("not-a-list"), pongo2.AsValue("state=running"))
	if perr != nil {
		t.Fatalf("filter failed: %v", perr)
	}
	if out.String() != "not-a-list" {
		t.Errorf("expected passthrough, got %q", out.String())
	}

	services := []any{map[string]any{"state": "running"}}
	out, perr = filterSelectAttr(pongo2.AsValue(services), pongo2.AsValue("no-equals-sign"))
	if perr != nil {
		t.Fatalf("filter failed: %v", perr)
	}
	if list, ok := out.Interface().([]any); !ok || len(list) != 1 {
		t.Errorf("expected unchanged list, got %#v", out.Interface())
	}
}

func TestMapAttributeFilter(t *testing.T) {
	users := []any{
		map[string]any{"name": "alice", "uid": 1000},
		map[string]any{"name": "bob", "uid": 1001},
		map[string]any{"uid": 1002},
	}

	out, perr := filterMapAttribute(pongo2.AsValue(users), pongo2.AsValue("name"))
	if perr != nil {
		t.Fatalf("filter failed: %v", perr)
	}
	list, ok := out.Interface().([]any)
	if !ok {
		t.Fatalf("expected list result, got %T", out.Interface())
	}
	if len(list) != 2 {
		t.Fatalf("items without the attribute should drop, got %d", len(list))
	}
	if list[0] != "alice" || list[1] != "bob" {
		t.Errorf("expected projected names, got %#v", list)
	}
}

func TestFiltersAvailableInTemplates(t *testing.T) {
	r := testRenderer(t)
	ctx := map[string]any{
		"users": []any{
			map[string]any{"name": "alice"},
			map[string]any{"name": "bob"},
		},
	}

	got, err := r.RenderString(`{{ users|map:"name"|join:", " }}`, ctx)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if got != "alice, bob" {
		t.Errorf("expected joined projection, got %q", got)
	}
}

func TestRandomSalt(t *testing.T) {
	a, err := randomSalt(16)
	if err != nil {
		t.Fatalf("randomSalt failed: %v", err)
	}
	b, err := randomSalt(16)
	if err != nil {
		t.Fatalf("randomSalt failed: %v", err)
	}
	if len(a) != 16 || len(b) != 16 {
		t.Fatalf("expected length 16, got %d and %d", len(a), len(b))
	}
	if a == b {
		t.Error("salts should differ")
	}
}
