package domain

import (
	"path/filepath"
	"strings"
)

// SanitizeSegment reduces a client-supplied case id or filename to a safe
// path segment. Anything outside [A-Za-z0-9._-] becomes an underscore; path
// separators and parent references cannot survive.
func SanitizeSegment(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "." || base == ".." || strings.Trim(base, "._-") == "" {
		return ""
	}
	return base
}
