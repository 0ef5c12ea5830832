// Package security masks Kite Connect credentials before they reach logs,
// API responses or printed configuration.
package security

import (
	"regexp"
	"strings"
)

// sensitivePatterns match key=value or key: value pairs carrying secrets.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(api[_-]?key|api[_-]?secret|access[_-]?token|request[_-]?token|refresh[_-]?token|checksum|password)(["']?\s*[=:]\s*["']?)([^\s"'&,}]+)`),
	regexp.MustCompile(`(?i)\b(token)(\s+)([A-Za-z0-9]{16,}:[A-Za-z0-9]{16,})`),
}

// MaskCredential keeps the first and last four characters of long values
// and hides the rest.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// MaskSensitive masks credential values embedded in free text such as
// error messages and URLs.
func MaskSensitive(input string) string {
	for _, p := range sensitivePatterns {
		input = p.ReplaceAllStringFunc(input, func(match string) string {
			m := p.FindStringSubmatch(match)
			return m[1] + m[2] + MaskCredential(m[3])
		})
	}
	return input
}

// ContainsSensitive reports whether MaskSensitive would change input.
func ContainsSensitive(input string) bool {
	for _, p := range sensitivePatterns {
		if p.MatchString(input) {
			return true
		}
	}
	return false
}
