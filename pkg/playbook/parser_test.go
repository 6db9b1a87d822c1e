package playbook

import (
	"strings"
	"testing"
)

func TestParseBasicPlaybook(t *testing.T) {
	pb, err := Parse([]byte(`
- name: Configure webservers
  hosts: webservers
  vars:
    http_port: 80
  tasks:
    - name: Install nginx
      package:
        name: nginx
        state: present
    - name: Say hello
      debug: Hello from {{ inventory_hostname }}
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(pb.Plays) != 1 {
		t.Fatalf("expected 1 play, got %d", len(pb.Plays))
	}

	play := pb.Plays[0]
	if play.Name != "Configure webservers" || play.Hosts != "webservers" {
		t.Errorf("unexpected play header: %+v", play)
	}
	if play.Vars["http_port"] != 80 {
		t.Errorf("expected typed play var, got %#v", play.Vars["http_port"])
	}
	if len(play.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(play.Tasks))
	}

	install := play.Tasks[0]
	if install.Module != "package" {
		t.Errorf("expected module package, got %q", install.Module)
	}
	if install.Args["name"] != "nginx" || install.Args["state"] != "present" {
		t.Errorf("expected verbatim args, got %#v", install.Args)
	}

	hello := play.Tasks[1]
	if hello.Module != "debug" {
		t.Errorf("expected module debug, got %q", hello.Module)
	}
	if hello.Args["msg"] != "Hello from {{ inventory_hostname }}" {
		t.Errorf("debug string value should become msg, got %#v", hello.Args)
	}
}

func TestParseModuleDetectionIsOrderSensitive(t *testing.T) {
	// Reserved keys before and after the module key must not confuse
	// detection; the first non-reserved key wins.
	pb, err := Parse([]byte(`
- name: p
  hosts: all
  tasks:
    - name: run it
      become: true
      register: out
      shell: uptime
      when: "true"
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	task := pb.Plays[0].Tasks[0]
	if task.Module != "shell" {
		t.Errorf("expected shell, got %q", task.Module)
	}
	if task.Args["_raw_params"] != "uptime" {
		t.Errorf("string value should become _raw_params, got %#v", task.Args)
	}
	if !task.Become || task.Register != "out" || task.When != `true` {
		t.Errorf("reserved keys mishandled: %+v", task)
	}
	if task.BecomeUser != "root" {
		t.Errorf("become should default become_user to root, got %q", task.BecomeUser)
	}
}

func TestParseIgnoreErrorsCoercion(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"True", true},
		{"yes", true},
		{"YES", true},
		{"false", false},
		{"no", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			pb, err := Parse([]byte(`
- name: p
  hosts: all
  tasks:
    - name: t
      command: /bin/true
      ignore_errors: "` + tt.value + `"
`))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if got := pb.Plays[0].Tasks[0].IgnoreErrors; got != tt.want {
				t.Errorf("ignore_errors %q = %v, want %v", tt.value, got, tt.want)
			}
		})
	}

	if _, err := Parse([]byte(`
- name: p
  hosts: all
  tasks:
    - name: t
      command: /bin/true
      ignore_errors: "sometimes"
`)); err == nil {
		t.Error("expected error for unparseable ignore_errors")
	}
}

func TestParseNotifyAndTags(t *testing.T) {
	pb, err := Parse([]byte(`
- name: p
  hosts: all
  tasks:
    - name: single notify
      command: /bin/true
      notify: restart nginx
      tags: web
    - name: list notify
      command: /bin/true
      notify:
        - restart nginx
        - reload firewall
      tags: [web, setup]
  handlers:
    - name: restart nginx
      service:
        name: nginx
        state: restarted
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	play := pb.Plays[0]

	first := play.Tasks[0]
	if len(first.Notify) != 1 || first.Notify[0] != "restart nginx" {
		t.Errorf("string notify should wrap into list, got %#v", first.Notify)
	}
	if len(first.Tags) != 1 || first.Tags[0] != "web" {
		t.Errorf("string tag should wrap into list, got %#v", first.Tags)
	}

	second := play.Tasks[1]
	if len(second.Notify) != 2 || len(second.Tags) != 2 {
		t.Errorf("list forms mishandled: notify=%#v tags=%#v", second.Notify, second.Tags)
	}

	if len(play.Handlers) != 1 || play.Handlers[0].Module != "service" {
		t.Errorf("handlers should parse with task rules, got %#v", play.Handlers)
	}
}

func TestParseLoops(t *testing.T) {
	pb, err := Parse([]byte(`
- name: p
  hosts: all
  tasks:
    - name: literal with_items
      package:
        name: "{{ item }}"
      with_items:
        - curl
        - vim
    - name: templated loop
      debug:
        msg: "{{ pkg }}"
      loop: "{{ packages }}"
      loop_control:
        loop_var: pkg
        index_var: idx
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	tasks := pb.Plays[0].Tasks

	first := tasks[0]
	list, ok := first.Loop.([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("with_items should keep the literal list, got %#v", first.Loop)
	}
	if first.LoopVar != "item" {
		t.Errorf("loop_var should default to item, got %q", first.LoopVar)
	}

	second := tasks[1]
	if second.Loop != "{{ packages }}" {
		t.Errorf("loop template string should be preserved, got %#v", second.Loop)
	}
	if second.LoopVar != "pkg" || second.IndexVar != "idx" {
		t.Errorf("loop_control mishandled: %+v", second)
	}
}

func TestParsePlayBecomeDefaults(t *testing.T) {
	pb, err := Parse([]byte(`
- name: p
  hosts: all
  become: yes
  become_user: deploy
  tags: [provision]
  tasks:
    - name: inherits play default
      command: whoami
    - name: opts out
      become: false
      command: whoami
    - name: own user
      become: true
      become_user: postgres
      command: whoami
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	play := pb.Plays[0]
	if !play.Become || play.BecomeUser != "deploy" {
		t.Errorf("play become header mishandled: %+v", play)
	}
	if len(play.Tags) != 1 || play.Tags[0] != "provision" {
		t.Errorf("play tags mishandled: %#v", play.Tags)
	}

	if become, user := play.Tasks[0].EffectiveBecome(play); !become || user != "deploy" {
		t.Errorf("task without become should inherit play default, got %v %q", become, user)
	}
	if become, _ := play.Tasks[1].EffectiveBecome(play); become {
		t.Error("explicit become: false should override the play default")
	}
	if become, user := play.Tasks[2].EffectiveBecome(play); !become || user != "postgres" {
		t.Errorf("task become_user should win over play default, got %v %q", become, user)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantSub string
	}{
		{
			"not a sequence",
			`name: not-a-list`,
			"must be a list",
		},
		{
			"play missing name",
			"- hosts: all\n  tasks: []",
			"missing required field 'name'",
		},
		{
			"play missing hosts",
			"- name: p\n  tasks: []",
			"missing required field 'hosts'",
		},
		{
			"task missing name",
			"- name: p\n  hosts: all\n  tasks:\n    - command: /bin/true",
			"missing required field 'name'",
		},
		{
			"task missing module",
			"- name: p\n  hosts: all\n  tasks:\n    - name: empty task",
			"has no module",
		},
		{
			"module args of wrong kind",
			"- name: p\n  hosts: all\n  tasks:\n    - name: t\n      command:\n        - a\n        - b",
			"unsupported argument form",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected parse error")
			}
			if !IsParseError(err) {
				t.Errorf("expected parse error kind, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("expected %q in error, got %q", tt.wantSub, err.Error())
			}
		})
	}
}

func TestResultRegisterValue(t *testing.T) {
	res := &Result{
		Changed: true,
		Msg:     "done",
		Values:  map[string]any{"stdout": "ok", "item_0.port": 80},
	}
	reg := res.RegisterValue()
	if reg["changed"] != true || reg["failed"] != false || reg["skipped"] != false {
		t.Errorf("flags mishandled: %#v", reg)
	}
	if reg["msg"] != "done" || reg["stdout"] != "ok" {
		t.Errorf("values not flattened: %#v", reg)
	}
	if reg["item_0.port"] != 80 {
		t.Errorf("iteration values should flatten alongside: %#v", reg)
	}
}
