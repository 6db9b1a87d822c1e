package playbook

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// reservedTaskKeys are task keywords. The first mapping key outside this set
// is the module id.
var reservedTaskKeys = map[string]struct{}{
	"name":          {},
	"become":        {},
	"become_user":   {},
	"register":      {},
	"when":          {},
	"tags":          {},
	"notify":        {},
	"ignore_errors": {},
	"vars":          {},
	"with_items":    {},
	"loop":          {},
	"loop_control":  {},
}

// Load reads and parses a playbook file.
func Load(path string) (*Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewParseError(fmt.Sprintf("failed to read playbook %s", path), err)
	}
	pb, err := Parse(data)
	if err != nil {
		return nil, err
	}
	pb.Path = path
	return pb, nil
}

// Parse parses playbook YAML. Mapping key order is preserved through the
// yaml.Node tree so module detection stays order-sensitive.
func Parse(data []byte) (*Playbook, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, NewParseError("invalid playbook YAML", err)
	}
	pb := &Playbook{}
	if len(doc.Content) == 0 {
		return pb, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.SequenceNode {
		return nil, NewParseError("playbook must be a list of plays", nil)
	}
	for i, playNode := range root.Content {
		play, err := parsePlay(playNode, i)
		if err != nil {
			return nil, err
		}
		pb.Plays = append(pb.Plays, play)
	}
	return pb, nil
}

func parsePlay(node *yaml.Node, index int) (*Play, error) {
	if node.Kind != yaml.MappingNode {
		return nil, NewParseError(fmt.Sprintf("play %d is not a mapping", index), nil)
	}

	play := &Play{Vars: map[string]any{}}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]
		switch key {
		case "name":
			play.Name = val.Value
		case "hosts":
			play.Hosts = val.Value
		case "vars":
			if err := val.Decode(&play.Vars); err != nil {
				return nil, NewParseError(fmt.Sprintf("play %d has invalid vars", index), err)
			}
		case "become":
			b, err := parseFlag(val)
			if err != nil {
				return nil, NewParseError(fmt.Sprintf("play %d has invalid become value", index), err)
			}
			play.Become = b
		case "become_user":
			play.BecomeUser = val.Value
		case "tags":
			list, err := parseStringOrList(val)
			if err != nil {
				return nil, NewParseError(fmt.Sprintf("play %d has invalid tags value", index), err)
			}
			play.Tags = list
		case "tasks":
			tasks, err := parseTaskList(val, index, "task")
			if err != nil {
				return nil, err
			}
			play.Tasks = tasks
		case "handlers":
			handlers, err := parseTaskList(val, index, "handler")
			if err != nil {
				return nil, err
			}
			play.Handlers = handlers
		}
	}

	if play.Name == "" {
		return nil, NewParseError(fmt.Sprintf("play %d is missing required field 'name'", index), nil)
	}
	if play.Hosts == "" {
		return nil, NewParseError(fmt.Sprintf("play %d (%s) is missing required field 'hosts'", index, play.Name), nil)
	}
	return play, nil
}

func parseTaskList(node *yaml.Node, playIndex int, role string) ([]*Task, error) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, NewParseError(fmt.Sprintf("play %d: %ss must be a list", playIndex, role), nil)
	}
	var tasks []*Task
	for i, taskNode := range node.Content {
		task, err := parseTask(taskNode, i, playIndex, role)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func parseTask(node *yaml.Node, index, playIndex int, role string) (*Task, error) {
	if node.Kind != yaml.MappingNode {
		return nil, NewParseError(fmt.Sprintf("play %d: %s %d is not a mapping", playIndex, role, index), nil)
	}

	task := &Task{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]

		if _, reserved := reservedTaskKeys[key]; !reserved {
			if task.Module == "" {
				if err := parseModule(task, key, val, index, playIndex, role); err != nil {
					return nil, err
				}
			}
			continue
		}

		switch key {
		case "name":
			task.Name = val.Value
		case "become":
			b, err := parseFlag(val)
			if err != nil {
				return nil, NewParseError(fmt.Sprintf("play %d: %s %d has invalid become value", playIndex, role, index), err)
			}
			task.Become = b
			task.becomeSet = true
		case "become_user":
			task.BecomeUser = val.Value
		case "register":
			task.Register = val.Value
		case "when":
			task.When = val.Value
		case "notify":
			list, err := parseStringOrList(val)
			if err != nil {
				return nil, NewParseError(fmt.Sprintf("play %d: %s %d has invalid notify value", playIndex, role, index), err)
			}
			task.Notify = list
		case "tags":
			list, err := parseStringOrList(val)
			if err != nil {
				return nil, NewParseError(fmt.Sprintf("play %d: %s %d has invalid tags value", playIndex, role, index), err)
			}
			task.Tags = list
		case "ignore_errors":
			b, err := parseFlag(val)
			if err != nil {
				return nil, NewParseError(fmt.Sprintf("play %d: %s %d has invalid ignore_errors value", playIndex, role, index), err)
			}
			task.IgnoreErrors = b
		case "vars":
			if err := val.Decode(&task.Vars); err != nil {
				return nil, NewParseError(fmt.Sprintf("play %d: %s %d has invalid vars", playIndex, role, index), err)
			}
		case "with_items", "loop":
			var loop any
			if err := val.Decode(&loop); err != nil {
				return nil, NewParseError(fmt.Sprintf("play %d: %s %d has invalid loop value", playIndex, role, index), err)
			}
			task.Loop = loop
		case "loop_control":
			var lc struct {
				LoopVar  string `yaml:"loop_var"`
				IndexVar string `yaml:"index_var"`
			}
			if err := val.Decode(&lc); err != nil {
				return nil, NewParseError(fmt.Sprintf("play %d: %s %d has invalid loop_control", playIndex, role, index), err)
			}
			task.LoopVar = lc.LoopVar
			task.IndexVar = lc.IndexVar
		}
	}

	if task.Name == "" {
		return nil, NewParseError(fmt.Sprintf("play %d: %s %d is missing required field 'name'", playIndex, role, index), nil)
	}
	if task.Module == "" {
		return nil, NewParseError(fmt.Sprintf("play %d: %s %d (%s) has no module", playIndex, role, index, task.Name), nil)
	}

	if task.HasLoop() && task.LoopVar == "" {
		task.LoopVar = "item"
	}
	if task.Become && task.BecomeUser == "" {
		task.BecomeUser = "root"
	}
	return task, nil
}

// parseModule interprets the first non-reserved key. A scalar value becomes
// the message for debug or the raw parameter string for everything else; a
// mapping is taken verbatim as the argument map.
func parseModule(task *Task, key string, val *yaml.Node, index, playIndex int, role string) error {
	task.Module = key
	switch val.Kind {
	case yaml.ScalarNode:
		if val.Tag == "!!null" {
			task.Args = map[string]any{}
			return nil
		}
		if key == "debug" {
			task.Args = map[string]any{"msg": val.Value}
		} else {
			task.Args = map[string]any{"_raw_params": val.Value}
		}
	case yaml.MappingNode:
		args := map[string]any{}
		if err := val.Decode(&args); err != nil {
			return NewParseError(fmt.Sprintf("play %d: %s %d has invalid arguments for module %s", playIndex, role, index, key), err)
		}
		task.Args = args
	default:
		return NewParseError(fmt.Sprintf("play %d: %s %d has unsupported argument form for module %s", playIndex, role, index, key), nil)
	}
	return nil
}

// parseFlag accepts YAML booleans plus the strings "yes" and "true" in any
// case, which older playbooks use freely.
func parseFlag(val *yaml.Node) (bool, error) {
	var b bool
	if err := val.Decode(&b); err == nil {
		return b, nil
	}
	switch strings.ToLower(strings.TrimSpace(val.Value)) {
	case "yes", "true":
		return true, nil
	case "no", "false", "":
		return false, nil
	default:
		return false, fmt.Errorf("cannot interpret %q as a boolean", val.Value)
	}
}

func parseStringOrList(val *yaml.Node) ([]string, error) {
	switch val.Kind {
	case yaml.ScalarNode:
		if val.Tag == "!!null" {
			return nil, nil
		}
		return []string{val.Value}, nil
	case yaml.SequenceNode:
		var list []string
		if err := val.Decode(&list); err != nil {
			return nil, err
		}
		return list, nil
	default:
		return nil, fmt.Errorf("expected a string or list of strings")
	}
}
