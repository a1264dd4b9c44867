package reminders

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Group is a user's named set of phrases. It fires only when every phrase
// appears in a message.
type Group struct {
	UserID int64
	Name   string
	Texts  []string
}

// Sanitize folds s for comparison: lowercase, no diacritics, no control or
// format runes, single spaces, trimmed. Sanitize is idempotent.
func Sanitize(s string) string {
	s = strings.ToLower(s)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)

	return strings.Join(strings.Fields(s), " ")
}

// Match returns, per user, the names of the groups whose texts all occur in
// message. Groups with no texts, or with a text that sanitizes to nothing,
// never match.
func Match(message string, groups []Group) map[int64][]string {
	haystack := Sanitize(message)
	matches := make(map[int64][]string)
	if haystack == "" {
		return matches
	}

	for _, g := range groups {
		if groupMatches(haystack, g.Texts) {
			matches[g.UserID] = append(matches[g.UserID], g.Name)
		}
	}
	return matches
}

func groupMatches(haystack string, texts []string) bool {
	if len(texts) == 0 {
		return false
	}
	for _, t := range texts {
		needle := Sanitize(t)
		if needle == "" || !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

// SplitList splits a comma separated list, trimming entries and dropping
// empty ones.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FormatList renders names as a markdown bullet list.
func FormatList(names []string) string {
	lines := make([]string, len(names))
	for i, n := range names {
		lines[i] = "- " + n
	}
	return strings.Join(lines, "\n")
}
