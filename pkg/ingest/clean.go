package ingest

import (
	"strings"
	"unicode"
)

// Clean prepares raw message text for the model: every non-ASCII rune is
// dropped, then trailing whitespace is removed.
func Clean(text string) string {
	text = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, text)
	return strings.TrimRightFunc(text, unicode.IsSpace)
}

// ignored reports whether cleaned text starts with one of prefixes.
func ignored(text string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(text, p) {
			return true
		}
	}
	return false
}
