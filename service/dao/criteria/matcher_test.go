package criteria

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/viant/warden/service/dao"
)

func TestMatches(t *testing.T) {
	fields := map[string]string{
		"status":     "pending",
		"actionType": "content.publish.entry",
	}

	testCases := []struct {
		name       string
		parameters []*dao.Parameter
		expect     bool
	}{
		{
			name:   "no parameters",
			expect: true,
		},
		{
			name:       "single match",
			parameters: []*dao.Parameter{dao.NewParameter("status", "pending")},
			expect:     true,
		},
		{
			name:       "single mismatch",
			parameters: []*dao.Parameter{dao.NewParameter("status", "approved")},
			expect:     false,
		},
		{
			name:       "value set match",
			parameters: []*dao.Parameter{dao.NewParameter("status", "approved", "pending")},
			expect:     true,
		},
		{
			name:       "value set mismatch",
			parameters: []*dao.Parameter{dao.NewParameter("status", "approved", "rejected")},
			expect:     false,
		},
		{
			name: "combined filters",
			parameters: []*dao.Parameter{
				dao.NewParameter("status", "pending"),
				dao.NewParameter("actionType", "content.publish.entry"),
			},
			expect: true,
		},
		{
			name:       "unknown field ignored",
			parameters: []*dao.Parameter{dao.NewParameter("unknown", "x")},
			expect:     true,
		},
		{
			name:       "limit parameter ignored",
			parameters: []*dao.Parameter{dao.NewLimit(5), dao.NewParameter("status", "pending")},
			expect:     true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, Matches(fields, tc.parameters))
		})
	}
}

func TestLimit(t *testing.T) {
	assert.Equal(t, 0, Limit(nil))
	assert.Equal(t, 0, Limit([]*dao.Parameter{dao.NewParameter("status", "pending")}))
	assert.Equal(t, 25, Limit([]*dao.Parameter{dao.NewLimit(25)}))
	assert.Equal(t, 0, Limit([]*dao.Parameter{dao.NewLimit(-1)}))
}
