package syslog

import "strings"

// Result pairs a raw line with its parse outcome.
type Result struct {
	Line     string
	Fields   *Fields
	Relevant bool
}

// Lines splits a text body into its non-blank lines. Invalid UTF-8 is
// replaced with U+FFFD.
func Lines(body string) []string {
	body = Clean(body)
	raw := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, ln := range raw {
		if strings.TrimSpace(ln) != "" {
			lines = append(lines, ln)
		}
	}
	return lines
}

// Clean replaces invalid UTF-8 sequences with U+FFFD.
func Clean(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// ParseBatch cleans and parses each line in order.
func ParseBatch(lines []string) []Result {
	results := make([]Result, 0, len(lines))
	for _, ln := range lines {
		ln = Clean(ln)
		fields, ok := Parse(ln)
		results = append(results, Result{Line: ln, Fields: fields, Relevant: ok})
	}
	return results
}
