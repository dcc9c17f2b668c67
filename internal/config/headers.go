package config

import "strings"

const (
	headerDelimiter   = "\n"
	headerKVDelimiter = ":"
)

// headerLines splits a header block on newlines, dropping trailing blank lines
// and the carriage return of CRLF input.
func headerLines(s string) []string {
	lines := strings.Split(s, headerDelimiter)
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// splitHeader splits on the first colon. ok is false when the line does not
// yield exactly a non-empty name and a value.
func splitHeader(line string) (string, string, bool) {
	kv := strings.SplitN(line, headerKVDelimiter, 2)
	if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" {
		return "", "", false
	}
	return kv[0], kv[1], true
}

// ParseHeaders parses newline-separated key:value pairs. Keys and values are kept
// verbatim; malformed lines are skipped.
func ParseHeaders(s string) map[string]string {
	out := map[string]string{}
	if s == "" {
		return out
	}
	for _, line := range headerLines(s) {
		if k, v, ok := splitHeader(line); ok {
			out[k] = v
		}
	}
	return out
}

// malformedHeaderLines returns each line that does not parse.
func malformedHeaderLines(s string) []string {
	var bad []string
	if s == "" {
		return bad
	}
	for _, line := range headerLines(s) {
		if _, _, ok := splitHeader(line); !ok {
			bad = append(bad, line)
		}
	}
	return bad
}
