package modules

import (
	"reflect"
	"strings"
	"testing"

	"github.com/opsailor/opsail/pkg/telemetry"
)

// fakeConn scripts command responses by substring match and records every
// command and file write.
type fakeConn struct {
	responses map[string]*Output
	commands  []string
	files     map[string][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		responses: map[string]*Output{},
		files:     map[string][]byte{},
	}
}

func (c *fakeConn) respond(substr string, out *Output) {
	c.responses[substr] = out
}

func (c *fakeConn) Run(cmd string) (*Output, error) {
	c.commands = append(c.commands, cmd)
	for substr, out := range c.responses {
		if strings.Contains(cmd, substr) {
			return out, nil
		}
	}
	return &Output{}, nil
}

func (c *fakeConn) RunPrivileged(cmd, user string) (*Output, error) {
	return c.Run("sudo[" + user + "] " + cmd)
}

func (c *fakeConn) WriteFile(path string, content []byte, privileged bool) error {
	c.files[path] = content
	return nil
}

func (c *fakeConn) ran(substr string) bool {
	for _, cmd := range c.commands {
		if strings.Contains(cmd, substr) {
			return true
		}
	}
	return false
}

func testExecContext(t *testing.T, conn Conn) *ExecContext {
	t.Helper()
	log, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Output: "stderr"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return &ExecContext{Conn: conn, Log: log}
}

func TestRegistryLookup(t *testing.T) {
	log, _ := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Output: "stderr"})
	r := NewRegistry(log)

	for _, name := range []string{"command", "shell", "debug", "copy", "file", "template", "lineinfile", "package", "service", "user"} {
		if _, err := r.Get(name); err != nil {
			t.Errorf("expected builtin module %s: %v", name, err)
		}
	}
	if _, err := r.Get("bogus"); err == nil {
		t.Error("expected error for unknown module")
	}
}

func TestCommandModule(t *testing.T) {
	conn := newFakeConn()
	conn.respond("uptime", &Output{Stdout: "up 3 days\n"})
	conn.respond("explode", &Output{Stderr: "boom\n", ExitCode: 2})
	ec := testExecContext(t, conn)

	m := &CommandModule{}
	res, err := m.Execute(ec, map[string]any{"_raw_params": "uptime"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !res.Changed || res.Failed {
		t.Errorf("successful command should be changed: %+v", res)
	}
	if res.Stdout != "up 3 days" {
		t.Errorf("expected trimmed stdout, got %q", res.Stdout)
	}

	res, err = m.Execute(ec, map[string]any{"_raw_params": "explode"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !res.Failed || res.Changed {
		t.Errorf("failing command should fail: %+v", res)
	}
	if res.Msg != "boom" {
		t.Errorf("expected stderr as msg, got %q", res.Msg)
	}

	res, _ = m.Execute(ec, map[string]any{})
	if !res.Failed {
		t.Error("missing command should fail")
	}
}

func TestCommandModuleBecome(t *testing.T) {
	conn := newFakeConn()
	ec := testExecContext(t, conn)
	ec.Become = true
	ec.BecomeUser = "postgres"

	m := &CommandModule{shell: true}
	if m.Name() != "shell" {
		t.Fatalf("expected shell alias, got %q", m.Name())
	}
	if _, err := m.Execute(ec, map[string]any{"cmd": "whoami"}); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !conn.ran("sudo[postgres] whoami") {
		t.Errorf("become should route through RunPrivileged, got %v", conn.commands)
	}
}

func TestDebugModule(t *testing.T) {
	ec := testExecContext(t, newFakeConn())
	m := &DebugModule{}

	res, _ := m.Execute(ec, map[string]any{"msg": "hello"})
	if res.Msg != "hello" || res.Changed {
		t.Errorf("unexpected debug result: %+v", res)
	}

	res, _ = m.Execute(ec, map[string]any{})
	if res.Msg != "Hello world!" {
		t.Errorf("expected default msg, got %q", res.Msg)
	}

	res, _ = m.Execute(ec, map[string]any{
		"var":        "result",
		"_var_value": map[string]any{"changed": true},
	})
	if !strings.Contains(res.Msg, "result:") || !strings.Contains(res.Msg, "changed: true") {
		t.Errorf("expected formatted variable, got %q", res.Msg)
	}

	res, _ = m.Execute(ec, map[string]any{"var": "missing"})
	if !strings.Contains(res.Msg, "VARIABLE IS NOT DEFINED!") {
		t.Errorf("expected undefined marker, got %q", res.Msg)
	}
}

func TestCopyModuleWritesWhenContentDiffers(t *testing.T) {
	conn := newFakeConn()
	// md5sum reports a different checksum than the content hash.
	conn.respond("md5sum", &Output{Stdout: "deadbeef  /etc/motd\n"})
	ec := testExecContext(t, conn)

	m := &CopyModule{}
	res, err := m.Execute(ec, map[string]any{
		"content": "welcome\n",
		"dest":    "/etc/motd",
		"mode":    "0644",
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !res.Changed {
		t.Errorf("expected changed, got %+v", res)
	}
	if string(conn.files["/etc/motd"]) != "welcome\n" {
		t.Errorf("expected file written, got %q", conn.files["/etc/motd"])
	}
	if !conn.ran("chmod 0644") {
		t.Error("expected chmod to run")
	}
}

func TestCopyModuleSkipsWhenContentMatches(t *testing.T) {
	conn := newFakeConn()
	// 0bb3c30dc72e63881db5005f1aa19ac3 is md5("welcome\n"); scripted via
	// substring so the checksum check hits it.
	conn.respond("md5sum", &Output{Stdout: "0bb3c30dc72e63881db5005f1aa19ac3  /etc/motd\n"})
	ec := testExecContext(t, conn)

	m := &CopyModule{}
	res, err := m.Execute(ec, map[string]any{"content": "welcome\n", "dest": "/etc/motd"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if res.Changed {
		t.Errorf("matching content should not change: %+v", res)
	}
	if _, written := conn.files["/etc/motd"]; written {
		t.Error("file should not be rewritten")
	}
}

func TestCopyModuleRequiresSource(t *testing.T) {
	ec := testExecContext(t, newFakeConn())
	m := &CopyModule{}
	res, _ := m.Execute(ec, map[string]any{"dest": "/tmp/x"})
	if !res.Failed {
		t.Error("copy without src or content should fail")
	}
	res, _ = m.Execute(ec, map[string]any{"content": "x"})
	if !res.Failed {
		t.Error("copy without dest should fail validation")
	}
}

func TestFileModuleStates(t *testing.T) {
	t.Run("absent removes existing", func(t *testing.T) {
		conn := newFakeConn()
		conn.respond("test -e", &Output{})
		ec := testExecContext(t, conn)
		res, err := (&FileModule{}).Execute(ec, map[string]any{"path": "/tmp/x", "state": "absent"})
		if err != nil {
			t.Fatalf("execute failed: %v", err)
		}
		if !res.Changed || !conn.ran("rm -rf") {
			t.Errorf("expected removal, got %+v commands=%v", res, conn.commands)
		}
	})

	t.Run("absent on missing path", func(t *testing.T) {
		conn := newFakeConn()
		conn.respond("test -e", &Output{ExitCode: 1})
		ec := testExecContext(t, conn)
		res, _ := (&FileModule{}).Execute(ec, map[string]any{"path": "/tmp/x", "state": "absent"})
		if res.Changed || res.Failed {
			t.Errorf("missing path already absent: %+v", res)
		}
	})

	t.Run("directory creates when missing", func(t *testing.T) {
		conn := newFakeConn()
		conn.respond("test -e", &Output{ExitCode: 1})
		ec := testExecContext(t, conn)
		res, _ := (&FileModule{}).Execute(ec, map[string]any{"path": "/srv/app", "state": "directory", "mode": "0755"})
		if !res.Changed || !conn.ran("mkdir -p") || !conn.ran("chmod 0755") {
			t.Errorf("expected mkdir+chmod, got %+v commands=%v", res, conn.commands)
		}
	})

	t.Run("touch always changes", func(t *testing.T) {
		conn := newFakeConn()
		ec := testExecContext(t, conn)
		res, _ := (&FileModule{}).Execute(ec, map[string]any{"path": "/tmp/t", "state": "touch"})
		if !res.Changed || !conn.ran("touch") {
			t.Errorf("expected touch, got %+v", res)
		}
	})

	t.Run("state file requires existing path", func(t *testing.T) {
		conn := newFakeConn()
		conn.respond("test -e", &Output{ExitCode: 1})
		ec := testExecContext(t, conn)
		res, _ := (&FileModule{}).Execute(ec, map[string]any{"path": "/tmp/missing"})
		if !res.Failed {
			t.Errorf("state=file on missing path should fail: %+v", res)
		}
	})

	t.Run("link updates when target differs", func(t *testing.T) {
		conn := newFakeConn()
		conn.respond("readlink", &Output{Stdout: "/old/target\n"})
		ec := testExecContext(t, conn)
		res, _ := (&FileModule{}).Execute(ec, map[string]any{
			"path": "/etc/alt", "src": "/new/target", "state": "link",
		})
		if !res.Changed || !conn.ran("ln -sfn") {
			t.Errorf("expected relink, got %+v commands=%v", res, conn.commands)
		}
	})
}

func TestServiceModule(t *testing.T) {
	conn := newFakeConn()
	conn.respond("which systemctl", &Output{Stdout: "/usr/bin/systemctl\n"})
	conn.respond("is-active", &Output{ExitCode: 3})
	ec := testExecContext(t, conn)

	res, err := (&ServiceModule{}).Execute(ec, map[string]any{"name": "nginx", "state": "started"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !res.Changed || !conn.ran("systemctl start nginx") {
		t.Errorf("expected start, got %+v commands=%v", res, conn.commands)
	}
}

func TestServiceModuleAlreadyRunning(t *testing.T) {
	conn := newFakeConn()
	conn.respond("which systemctl", &Output{Stdout: "/usr/bin/systemctl\n"})
	conn.respond("is-active", &Output{})
	ec := testExecContext(t, conn)

	res, _ := (&ServiceModule{}).Execute(ec, map[string]any{"name": "nginx", "state": "started"})
	if res.Changed || conn.ran("systemctl start") {
		t.Errorf("running service should not restart: %+v commands=%v", res, conn.commands)
	}
}

func TestPackageModule(t *testing.T) {
	conn := newFakeConn()
	conn.respond("which apt-get", &Output{Stdout: "/usr/bin/apt-get\n"})
	conn.respond("dpkg-query", &Output{ExitCode: 1})
	ec := testExecContext(t, conn)

	res, err := (&PackageModule{}).Execute(ec, map[string]any{"name": "nginx", "state": "present"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !res.Changed || !conn.ran("apt-get install -y nginx") {
		t.Errorf("expected install, got %+v commands=%v", res, conn.commands)
	}
}

func TestPackageModuleAlreadyInstalled(t *testing.T) {
	conn := newFakeConn()
	conn.respond("which apt-get", &Output{Stdout: "/usr/bin/apt-get\n"})
	conn.respond("dpkg-query", &Output{})
	ec := testExecContext(t, conn)

	res, _ := (&PackageModule{}).Execute(ec, map[string]any{"name": "nginx"})
	if res.Changed || conn.ran("install -y") {
		t.Errorf("installed package should be a no-op: %+v commands=%v", res, conn.commands)
	}
}

func TestUserModuleCreate(t *testing.T) {
	conn := newFakeConn()
	conn.respond("id -u", &Output{ExitCode: 1})
	ec := testExecContext(t, conn)

	res, err := (&UserModule{}).Execute(ec, map[string]any{
		"name":  "deploy",
		"shell": "/bin/bash",
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !res.Changed || !conn.ran("useradd") || !conn.ran("-m") {
		t.Errorf("expected useradd -m, got %+v commands=%v", res, conn.commands)
	}
}

func TestUserModuleAbsent(t *testing.T) {
	conn := newFakeConn()
	conn.respond("id -u", &Output{})
	ec := testExecContext(t, conn)

	res, _ := (&UserModule{}).Execute(ec, map[string]any{
		"name": "olduser", "state": "absent", "remove": true,
	})
	if !res.Changed || !conn.ran("userdel -r") {
		t.Errorf("expected userdel -r, got %+v commands=%v", res, conn.commands)
	}
}

func TestShQuote(t *testing.T) {
	if got := shQuote("plain"); got != "'plain'" {
		t.Errorf("unexpected quoting: %q", got)
	}
	if got := shQuote("it's"); got != `'it'\''s'` {
		t.Errorf("unexpected escape: %q", got)
	}
}

func TestParseAdhocArgs(t *testing.T) {
	got := ParseAdhocArgs(`name=nginx state=present count=3 ratio=0.5 force=true label='web server'`)
	want := map[string]any{
		"name":  "nginx",
		"state": "present",
		"count": 3,
		"ratio": 0.5,
		"force": true,
		"label": "web server",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %#v, got %#v", want, got)
	}
}

func TestParseAdhocArgsBareWords(t *testing.T) {
	got := ParseAdhocArgs("uptime -a")
	if got["_raw_params"] != "uptime -a" {
		t.Errorf("bare words should join into _raw_params, got %#v", got)
	}
}
