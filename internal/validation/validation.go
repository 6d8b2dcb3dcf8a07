package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var clientIDRe = regexp.MustCompile(`^[a-zA-Z0-9_\-:.]{1,64}$`)

const (
	DefaultMaxBodyLength = 4000
	MaxGroupNameLength   = 100
	MaxDescriptionLength = 255
)

// TrimAndLimit trims surrounding whitespace and cuts s to at most max runes.
func TrimAndLimit(s string, max int) string {
	s = strings.TrimSpace(s)
	if max > 0 && utf8.RuneCountInString(s) > max {
		return string([]rune(s)[:max])
	}
	return s
}

// NormalizeBody trims body and reports whether it is non-empty and within
// max runes.
func NormalizeBody(body string, max int) (string, bool) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", false
	}
	if max <= 0 {
		max = DefaultMaxBodyLength
	}
	if utf8.RuneCountInString(body) > max {
		return body, false
	}
	return body, true
}

func ValidateClientID(id string) bool {
	return clientIDRe.MatchString(id)
}

func NormalizeGroupName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

func ValidateGroupName(name string) bool {
	name = NormalizeGroupName(name)
	n := utf8.RuneCountInString(name)
	return n >= 1 && n <= MaxGroupNameLength
}
