package inventory

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/opsailor/opsail/pkg/telemetry"
)

var (
	groupVarsRe     = regexp.MustCompile(`^\[([\w.]+):vars\]$`)
	groupChildrenRe = regexp.MustCompile(`^\[([\w.]+):children\]$`)
	groupRe         = regexp.MustCompile(`^\[([\w.]+)\]$`)
	hostPortRe      = regexp.MustCompile(`^(.+):(\d+)$`)
	varLineRe       = regexp.MustCompile(`^(\w+)=(.+)$`)
)

// Loader reads INI-style inventory files.
type Loader struct {
	log *telemetry.Logger
}

// NewLoader creates an inventory loader.
func NewLoader(log *telemetry.Logger) *Loader {
	return &Loader{log: log.NewComponentLogger("inventory")}
}

// sectionKind tracks what the current [section] header selects.
type sectionKind int

const (
	sectionNone sectionKind = iota
	sectionHosts
	sectionVars
	sectionChildren
)

// ParseFile loads an inventory file. Hosts outside any section land in
// "ungrouped", every host is added to "all" at the end, and group variable
// inheritance is applied before returning.
func (l *Loader) ParseFile(path string) (*Inventory, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("inventory file not found: %s: %w", path, err)
	}
	defer file.Close()

	inv := New()
	current := ""
	kind := sectionNone

	l.log.Infof("parsing inventory file: %s", path)

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if m := groupVarsRe.FindStringSubmatch(line); m != nil {
			current = m[1]
			kind = sectionVars
			l.ensureGroup(inv, current)
			continue
		}
		if m := groupChildrenRe.FindStringSubmatch(line); m != nil {
			current = m[1]
			kind = sectionChildren
			l.ensureGroup(inv, current)
			continue
		}
		if m := groupRe.FindStringSubmatch(line); m != nil {
			current = m[1]
			kind = sectionHosts
			l.ensureGroup(inv, current)
			continue
		}

		switch kind {
		case sectionVars:
			if m := varLineRe.FindStringSubmatch(line); m != nil {
				name, value := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
				l.log.Debugf("group %s var: %s=%s", current, name, value)
				inv.Groups[current].SetVariable(name, stripQuotes(value))
			}
		case sectionChildren:
			child := line
			if existing, ok := inv.Groups[child]; ok {
				existing.Parent = current
			} else {
				g := NewGroup(child)
				g.Parent = current
				inv.AddGroup(g)
			}
			inv.Groups[current].AddChild(child)
			l.log.Debugf("group %s child: %s", current, child)
		default:
			l.parseHostLine(inv, line, current)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read line %d of %s: %w", lineNum, path, err)
	}

	// Every host belongs to "all".
	all := inv.Groups["all"]
	for _, name := range inv.HostNames() {
		all.AddHost(name)
	}

	l.log.Infof("inventory parsed: %d hosts, %d groups", len(inv.Hosts), len(inv.Groups))

	inv.ApplyInheritance()
	return inv, nil
}

func (l *Loader) ensureGroup(inv *Inventory, name string) {
	if _, ok := inv.Groups[name]; !ok {
		inv.AddGroup(NewGroup(name))
	}
}

// parseHostLine handles a "host[:port] [key=value ...]" entry.
func (l *Loader) parseHostLine(inv *Inventory, line, group string) {
	hostPart := line
	varsPart := ""
	if i := strings.IndexByte(line, ' '); i >= 0 {
		hostPart = line[:i]
		varsPart = strings.TrimSpace(line[i+1:])
	}

	name := hostPart
	port := 22
	if m := hostPortRe.FindStringSubmatch(hostPart); m != nil {
		name = strings.TrimSpace(m[1])
		if p, err := strconv.Atoi(m[2]); err == nil {
			port = p
		}
	}

	host, ok := inv.Hosts[name]
	if !ok {
		host = NewHost(name)
		host.Port = port
		inv.AddHost(host)
		l.log.Debugf("added host %s (port %d)", name, port)
	}

	if group != "" {
		inv.Groups[group].AddHost(name)
	} else {
		inv.Groups["ungrouped"].AddHost(name)
	}

	for _, pair := range splitVarPairs(varsPart) {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		host.SetVariable(strings.TrimSpace(key), stripQuotes(strings.TrimSpace(value)))
	}
}

// splitVarPairs splits "a=1 b='x y' c=3" on spaces outside quotes.
func splitVarPairs(s string) []string {
	if s == "" {
		return nil
	}
	var (
		pairs   []string
		current strings.Builder
		inQuote bool
		quote   byte
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote:
			current.WriteByte(c)
			if c == quote {
				inQuote = false
			}
		case c == '\'' || c == '"':
			current.WriteByte(c)
			inQuote = true
			quote = c
		case c == ' ':
			if current.Len() > 0 {
				pairs = append(pairs, current.String())
				current.Reset()
			}
		default:
			current.WriteByte(c)
		}
	}
	if current.Len() > 0 {
		pairs = append(pairs, current.String())
	}
	return pairs
}

// stripQuotes removes one matching pair of surrounding quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
