package dao

// LimitParameter is the reserved parameter name carrying a page size limit.
const LimitParameter = "_limit"

type Parameter struct {
	Name  string
	Value interface{}
}

func NewParameter(name string, values ...string) *Parameter {
	if len(values) == 1 {
		return &Parameter{Name: name, Value: values[0]}
	}
	return &Parameter{Name: name, Value: values}
}

// NewLimit builds a page size parameter. Store adapters apply it after
// filtering and ordering; a non-positive limit means unbounded.
func NewLimit(limit int) *Parameter {
	return &Parameter{Name: LimitParameter, Value: limit}
}
