package modules

import "strings"

// shQuote single-quotes a string for safe interpolation into a shell
// command. Embedded single quotes close, escape, and reopen the quoting.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
