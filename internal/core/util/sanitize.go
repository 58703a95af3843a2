package util

import (
	"regexp"
	"strings"
)

var ansiRe = regexp.MustCompile(`\x1B(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)

// StripANSI removes terminal color/control codes from tool output so speed
// and ETA strings render cleanly in the UI.
func StripANSI(s string) string {
	if s == "" {
		return ""
	}
	return ansiRe.ReplaceAllString(s, "")
}

// SanitizeTitle makes a media title safe for use as a directory name:
// characters outside alnum, space, hyphen and underscore become underscores,
// and surrounding whitespace is trimmed.
func SanitizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, c := range title {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == ' ', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	return strings.TrimSpace(b.String())
}
