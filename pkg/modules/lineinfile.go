package modules

import (
	"regexp"
	"strings"
)

// LineInFileModule ensures a line is present in or absent from a file. The
// file is read over the connection, edited here, and written back only when
// the content actually changes.
type LineInFileModule struct{}

type lineInFileArgs struct {
	Path         string `yaml:"path" validate:"required"`
	Line         string `yaml:"line"`
	Regexp       string `yaml:"regexp"`
	State        string `yaml:"state"`
	Create       bool   `yaml:"create"`
	Backup       bool   `yaml:"backup"`
	InsertAfter  string `yaml:"insertafter"`
	InsertBefore string `yaml:"insertbefore"`
	Mode         string `yaml:"mode"`
	Owner        string `yaml:"owner"`
	Group        string `yaml:"group"`
}

func (m *LineInFileModule) Name() string { return "lineinfile" }

func (m *LineInFileModule) Execute(ec *ExecContext, args map[string]any) (*Result, error) {
	var a lineInFileArgs
	if err := DecodeArgs(args, &a); err != nil {
		return failf("lineinfile: %v", err), nil
	}
	state := a.State
	if state == "" {
		state = "present"
	}
	if state == "present" && a.Line == "" {
		return failf("lineinfile state=present requires line"), nil
	}

	var re *regexp.Regexp
	if a.Regexp != "" {
		compiled, err := regexp.Compile(a.Regexp)
		if err != nil {
			return failf("lineinfile: invalid regexp %q: %v", a.Regexp, err), nil
		}
		re = compiled
	}

	exists, err := remoteExists(ec, a.Path)
	if err != nil {
		return nil, err
	}
	if !exists {
		if state == "absent" {
			return okf(false, "%s does not exist", a.Path), nil
		}
		if !a.Create {
			return failf("%s does not exist and create=false", a.Path), nil
		}
	}

	var original string
	if exists {
		out, err := ec.Run("cat " + shQuote(a.Path))
		if err != nil {
			return nil, err
		}
		if !out.Success() {
			return failf("failed to read %s: %s", a.Path, out.Stderr), nil
		}
		original = out.Stdout
	}

	updated, changed := editLines(original, a.Line, re, state, a.InsertAfter, a.InsertBefore)
	if changed {
		if a.Backup && exists {
			if err := backupRemote(ec, a.Path); err != nil {
				return nil, err
			}
		}
		if err := ec.WriteFile(a.Path, []byte(updated)); err != nil {
			return failf("failed to write %s: %v", a.Path, err), nil
		}
	}

	if res, err := applyFileAttrs(ec, a.Path, a.Mode, a.Owner, a.Group); err != nil || res != nil {
		return res, err
	}

	if changed {
		return okf(true, "%s updated", a.Path), nil
	}
	return okf(false, "%s unchanged", a.Path), nil
}

// editLines applies the line edit and reports whether anything changed.
func editLines(content, line string, re *regexp.Regexp, state, insertAfter, insertBefore string) (string, bool) {
	trailingNewline := strings.HasSuffix(content, "\n")
	var lines []string
	if content != "" {
		lines = strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	}

	matches := func(l string) bool {
		if re != nil {
			return re.MatchString(l)
		}
		return l == line
	}

	if state == "absent" {
		var kept []string
		removed := false
		for _, l := range lines {
			if matches(l) {
				removed = true
				continue
			}
			kept = append(kept, l)
		}
		if !removed {
			return content, false
		}
		return joinLines(kept, trailingNewline), true
	}

	// present: replace the last regexp match, or append/insert.
	if re != nil {
		last := -1
		for i, l := range lines {
			if re.MatchString(l) {
				last = i
			}
		}
		if last >= 0 {
			if lines[last] == line {
				return content, false
			}
			lines[last] = line
			return joinLines(lines, true), true
		}
	} else {
		for _, l := range lines {
			if l == line {
				return content, false
			}
		}
	}

	insertAt := len(lines)
	switch {
	case insertBefore != "":
		if beforeRe, err := regexp.Compile(insertBefore); err == nil {
			for i, l := range lines {
				if beforeRe.MatchString(l) {
					insertAt = i
					break
				}
			}
		}
	case insertAfter != "" && insertAfter != "EOF":
		if afterRe, err := regexp.Compile(insertAfter); err == nil {
			for i, l := range lines {
				if afterRe.MatchString(l) {
					insertAt = i + 1
				}
			}
		}
	}

	lines = append(lines[:insertAt], append([]string{line}, lines[insertAt:]...)...)
	return joinLines(lines, true), true
}

func joinLines(lines []string, trailingNewline bool) string {
	out := strings.Join(lines, "\n")
	if trailingNewline || out != "" {
		out += "\n"
	}
	return out
}
