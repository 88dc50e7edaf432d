package logger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxPathLength caps logged URL paths; anything longer is truncated.
const MaxPathLength = 500

// SanitizePath makes a request path safe to log: invalid UTF-8 and
// control characters are stripped so a crafted path cannot inject log
// lines, and the result is length-capped.
func SanitizePath(path string) string {
	if path == "" {
		return ""
	}

	if !utf8.ValidString(path) {
		path = strings.ToValidUTF8(path, "")
	}

	var b strings.Builder
	b.Grow(len(path))
	for _, r := range path {
		if unicode.IsPrint(r) || r == ' ' || r == '\t' {
			b.WriteRune(r)
		}
	}
	path = b.String()

	if len(path) > MaxPathLength {
		path = path[:MaxPathLength] + "..."
	}
	return path
}
