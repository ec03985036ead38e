package policy

import (
	"regexp"
	"strings"
)

// Matches reports whether actionType satisfies pattern. The pattern
// language is literal text with '*' wildcard segments, each matching any
// run of characters including the empty run; '*' alone is the catch-all.
// It is not a general glob or regexp surface: every other character is
// matched literally.
func Matches(pattern, actionType string) bool {
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	segments := strings.Split(pattern, "*")
	for i, segment := range segments {
		segments[i] = regexp.QuoteMeta(segment)
	}
	expression := "^" + strings.Join(segments, ".*") + "$"
	matched, err := regexp.MatchString(expression, actionType)
	if err != nil {
		return false
	}
	return matched
}
