// Package syslog extracts web-filter fields from unstructured firewall syslog
// lines (SonicWall CFS and similar). Extraction is best effort: a relevant line
// always yields a result, possibly with every field empty.
package syslog

import (
	"regexp"
	"strings"
)

// relevanceKeywords gate which lines are treated as web-filter traffic.
var relevanceKeywords = []string{"url", "http", "https", "web", "category", "content filter", "cfs"}

// value matches either a double-quoted string or a bare token.
const value = `("[^"]*"|[^\s"]+)`

var (
	priPrefix     = regexp.MustCompile(`^<\d{1,3}>`)
	rfc3164       = regexp.MustCompile(`^([A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\s+(\S+)\s+(.*)$`)
	keyValue      = regexp.MustCompile(`([A-Za-z0-9_\-.]+)=` + value)
	urlPattern    = regexp.MustCompile(`(?i)(?:\burl=|\buri=|requested url:\s*)"?(https?://[^\s"]+)`)
	domainPattern = regexp.MustCompile(`(?i)(?:\bdstname=|\bdomain=|\bhost:\s*)"?([a-z0-9](?:[a-z0-9\-]*[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?)+)`)
	ipPattern     = regexp.MustCompile(`(?i)(?:\bsrc=|\bsrcip=|source ip:\s*)"?(\d{1,3}(?:\.\d{1,3}){3})`)
	userPattern   = regexp.MustCompile(`(?i)(?:\buser=|\busr=|\buser:\s*)` + value)
	catPattern    = regexp.MustCompile(`(?i)(?:\bcat=|\bcategory=|\bcategory:\s*)` + value)
	wordPattern   = regexp.MustCompile(`[a-z]+`)
)

// actionPatterns are tried in order; msg= often carries a sentence, so it is last.
var actionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\baction=` + value),
	regexp.MustCompile(`(?i)\bresult:\s*` + value),
	regexp.MustCompile(`(?i)\bmsg=` + value),
}

var blockedTokens = map[string]bool{
	"deny":    true,
	"denied":  true,
	"drop":    true,
	"dropped": true,
}

var passThroughTokens = map[string]bool{
	"blocked":   true,
	"allowed":   true,
	"allow":     true,
	"permitted": true,
	"pass":      true,
	"observed":  true,
}

// Fields is the partial canonical record extracted from one line.
// Empty strings mean the field was not found.
type Fields struct {
	URL      string `json:"url,omitempty"`
	Domain   string `json:"domain,omitempty"`
	IP       string `json:"ip,omitempty"`
	User     string `json:"user,omitempty"`
	Category string `json:"category,omitempty"`
	Action   string `json:"action,omitempty"`

	// Host and Timestamp come from an RFC3164 prefix when one is present.
	Host      string `json:"host,omitempty"`
	Timestamp string `json:"syslog_ts,omitempty"`

	// Pairs holds every key=value pair found in the message body.
	Pairs map[string]string `json:"pairs,omitempty"`
}

// Relevant reports whether the line mentions web-filter traffic at all.
func Relevant(line string) bool {
	scan := strings.ToLower(strings.TrimSpace(line))
	if scan == "" {
		return false
	}
	for _, kw := range relevanceKeywords {
		if strings.Contains(scan, kw) {
			return true
		}
	}
	return false
}

// Parse extracts web-filter fields from line. The boolean is false when the
// line is not relevant; otherwise a non-nil Fields is always returned.
func Parse(line string) (*Fields, bool) {
	line = Clean(line)
	if !Relevant(line) {
		return nil, false
	}

	f := &Fields{}
	rest := priPrefix.ReplaceAllString(strings.TrimSpace(line), "")
	if m := rfc3164.FindStringSubmatch(rest); m != nil {
		f.Timestamp = m[1]
		f.Host = m[2]
		rest = m[3]
	}

	f.URL = firstMatch(urlPattern, rest)
	f.Domain = strings.ToLower(firstMatch(domainPattern, rest))
	f.IP = firstMatch(ipPattern, rest)
	f.User = firstMatch(userPattern, rest)
	f.Category = firstMatch(catPattern, rest)
	f.Action = extractAction(rest)

	for _, m := range keyValue.FindAllStringSubmatch(rest, -1) {
		if f.Pairs == nil {
			f.Pairs = make(map[string]string)
		}
		f.Pairs[m[1]] = unquote(m[2])
	}

	return f, true
}

// NormalizeAction maps a raw action token onto the canonical vocabulary.
// Deny-style tokens become "blocked"; other known tokens pass through
// lower-cased; anything else returns "".
func NormalizeAction(token string) string {
	t := strings.ToLower(strings.TrimSpace(token))
	if blockedTokens[t] {
		return "blocked"
	}
	if passThroughTokens[t] {
		return t
	}
	return ""
}

func extractAction(s string) string {
	for _, re := range actionPatterns {
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			for _, word := range wordPattern.FindAllString(strings.ToLower(unquote(m[1])), -1) {
				if action := NormalizeAction(word); action != "" {
					return action
				}
			}
		}
	}
	return ""
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(unquote(m[1]))
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	return v
}
