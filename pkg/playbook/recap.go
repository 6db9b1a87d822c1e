package playbook

import (
	"fmt"
	"io"
)

// RecapLine holds the per-host counters shown in the play recap.
type RecapLine struct {
	OK          int
	Changed     int
	Unreachable int
	Failed      int
	Skipped     int
}

// RunSummary aggregates the outcome of a playbook run across all plays.
type RunSummary struct {
	// Hosts lists recap hosts in the order they were first matched.
	Hosts []string

	// Recap maps host name to its counters.
	Recap map[string]*RecapLine
}

func newRunSummary() *RunSummary {
	return &RunSummary{Recap: map[string]*RecapLine{}}
}

func (s *RunSummary) line(host string) *RecapLine {
	if l, ok := s.Recap[host]; ok {
		return l
	}
	l := &RecapLine{}
	s.Recap[host] = l
	s.Hosts = append(s.Hosts, host)
	return l
}

// HasFailures reports whether any host failed or was unreachable.
func (s *RunSummary) HasFailures() bool {
	for _, l := range s.Recap {
		if l.Failed > 0 || l.Unreachable > 0 {
			return true
		}
	}
	return false
}

// Totals sums the counters across all hosts.
func (s *RunSummary) Totals() RecapLine {
	var t RecapLine
	for _, l := range s.Recap {
		t.OK += l.OK
		t.Changed += l.Changed
		t.Unreachable += l.Unreachable
		t.Failed += l.Failed
		t.Skipped += l.Skipped
	}
	return t
}

// Print writes the recap block in matched-host order.
func (s *RunSummary) Print(w io.Writer) {
	fmt.Fprintf(w, "\nPLAY RECAP *********************************************************************\n")
	for _, host := range s.Hosts {
		l := s.Recap[host]
		fmt.Fprintf(w, "%-26s : ok=%-4d changed=%-4d unreachable=%-4d failed=%-4d skipped=%-4d\n",
			host, l.OK, l.Changed, l.Unreachable, l.Failed, l.Skipped)
	}
}
