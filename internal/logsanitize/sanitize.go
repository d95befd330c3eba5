// Package logsanitize cleans untrusted request values (usernames, form
// fields, session cookies) before they reach the log.
package logsanitize

import "strings"

// MaxLen is the longest value Sanitize keeps. Longer values are cut and
// suffixed with "...".
const MaxLen = 128

// Sanitize replaces control characters with '_' and truncates the result to
// MaxLen runes, so a client cannot forge log lines or flood the log through a
// login form.
//
// Replaced ranges:
//   - C0 controls 0x00-0x1F (except horizontal tab 0x09)
//   - DEL 0x7F and C1 controls 0x80-0x9F
func Sanitize(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' {
			return '_'
		}
		if r >= 0x7f && r <= 0x9f {
			return '_'
		}
		return r
	}, s)
	return truncate(cleaned, MaxLen)
}

// ShortID returns the first eight characters of a session id, enough to
// correlate log lines without writing a usable token to the log.
func ShortID(id string) string {
	if len(id) <= 8 {
		return Sanitize(id)
	}
	return Sanitize(id[:8]) + "..."
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
