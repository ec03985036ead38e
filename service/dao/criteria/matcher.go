// Package criteria evaluates dao list parameters against entity field
// values. Matching is by exact string comparison; a parameter whose name the
// entity does not expose is ignored rather than rejected.
package criteria

import (
	"github.com/viant/warden/service/dao"
)

// Matches reports whether the supplied field values satisfy every
// applicable parameter. The reserved limit parameter is skipped.
func Matches(fields map[string]string, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name == dao.LimitParameter {
			continue
		}
		value, ok := fields[parameter.Name]
		if !ok {
			continue
		}
		switch actual := parameter.Value.(type) {
		case string:
			if value != actual {
				return false
			}
		case []string:
			matched := false
			for _, candidate := range actual {
				if value == candidate {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		}
	}
	return true
}

// Limit extracts the page size from parameters, or 0 when unbounded.
func Limit(parameters []*dao.Parameter) int {
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name != dao.LimitParameter {
			continue
		}
		if limit, ok := parameter.Value.(int); ok && limit > 0 {
			return limit
		}
	}
	return 0
}
