package modules

import (
	"strconv"
	"strings"
)

// ParseAdhocArgs parses the -a argument string of an ad-hoc invocation.
// Pairs split on spaces outside quotes; values coerce to bool, int, or
// float when they look like one.
func ParseAdhocArgs(s string) map[string]any {
	args := map[string]any{}
	for _, token := range splitAdhocTokens(strings.TrimSpace(s)) {
		key, value, found := strings.Cut(token, "=")
		if !found {
			// A bare word is the raw parameter string.
			raw, _ := stringArg(args, "_raw_params")
			if raw != "" {
				raw += " "
			}
			args["_raw_params"] = raw + token
			continue
		}
		args[strings.TrimSpace(key)] = coerceAdhocValue(stripArgQuotes(strings.TrimSpace(value)))
	}
	return args
}

func splitAdhocTokens(s string) []string {
	var (
		tokens  []string
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
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteByte(c)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func stripArgQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func coerceAdhocValue(s string) any {
	switch s {
	case "true", "True", "yes":
		return true
	case "false", "False", "no":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
