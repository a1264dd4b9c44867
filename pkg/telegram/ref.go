package telegram

import (
	"fmt"
	"regexp"
	"strings"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{3,31}$`)

var linkPrefixes = []string{
	"https://",
	"http://",
	"www.",
	"t.me/",
	"telegram.me/",
	"telegram.dog/",
}

// ParseReference extracts a public channel username from "@name", "name",
// "t.me/name" or a full https link. Message links such as t.me/name/42 yield
// the channel name.
func ParseReference(ref string) (string, error) {
	s := strings.TrimSpace(ref)
	for _, p := range linkPrefixes {
		if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
			s = s[len(p):]
		}
	}
	s = strings.TrimPrefix(s, "@")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}

	if !usernamePattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	return s, nil
}

// ChannelURL is the public link of a channel username.
func ChannelURL(username string) string {
	return "https://t.me/" + username
}
