// Package textproc prepares chat messages for speech synthesis.
//
// Messages are truncated, stripped of URLs and control characters, and have
// runaway character repetition collapsed so the synthesizer is not fed
// "aaaaaaaaaaaa" verbatim.
package textproc

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength is applied before any other cleaning rule.
const MaxMessageLength = 2000

// maxRepeat is the longest run of a single character left intact.
const maxRepeat = 6

var urlPattern = regexp.MustCompile(`https?://\S*`)

// IsExcluded reports whether a message should never be spoken.
// Literal blocks (triple-backtick fences) are treated as paste dumps.
func IsExcluded(message string) bool {
	return strings.HasPrefix(message, "```")
}

// Clean normalizes a chat message into speakable text.
func Clean(message string) string {
	message = Truncate(message, MaxMessageLength)
	message = StripURLs(message)
	message = StripNewlines(message)
	message = CollapseRepeats(message)
	return strings.TrimSpace(message)
}

// Truncate caps a message at limit bytes. The cut backs up to the nearest
// rune boundary so a multi-byte character is never split.
func Truncate(message string, limit int) string {
	if limit <= 0 || len(message) <= limit {
		return message
	}
	for limit > 0 && !utf8.RuneStart(message[limit]) {
		limit--
	}
	return message[:limit]
}

// StripURLs removes http(s) URLs entirely.
func StripURLs(message string) string {
	return urlPattern.ReplaceAllString(message, "")
}

// StripNewlines replaces line breaks with spaces.
func StripNewlines(message string) string {
	message = strings.ReplaceAll(message, "\r", " ")
	return strings.ReplaceAll(message, "\n", " ")
}

// CollapseRepeats shortens runs of the same rune longer than maxRepeat
// down to maxRepeat occurrences.
func CollapseRepeats(message string) string {
	var b strings.Builder
	b.Grow(len(message))

	var last rune = -1
	run := 0
	for _, r := range message {
		if r == last {
			run++
		} else {
			last = r
			run = 1
		}
		if run <= maxRepeat {
			b.WriteRune(r)
		}
	}
	return b.String()
}
