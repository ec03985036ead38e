package policy

import "strings"

// NormalizeHandle lowercases, trims and strips a policy handle down to the
// charset [a-z0-9:_.-].
func NormalizeHandle(value string) string {
	return normalizeToken(value, false)
}

// NormalizeActionPattern lowercases, trims and strips an action pattern
// down to the charset [a-z0-9:*_.-]; '*' is the wildcard segment.
func NormalizeActionPattern(value string) string {
	return normalizeToken(value, true)
}

// NormalizeActionType normalizes an action type the same way as an action
// pattern so that matching compares like with like.
func NormalizeActionType(value string) string {
	return normalizeToken(value, true)
}

func normalizeToken(value string, allowWildcard bool) string {
	lowered := strings.ToLower(strings.TrimSpace(value))
	var builder strings.Builder
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9',
			r == ':', r == '_', r == '.', r == '-':
			builder.WriteRune(r)
		case r == '*' && allowWildcard:
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
