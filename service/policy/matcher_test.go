package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	testCases := []struct {
		name       string
		pattern    string
		actionType string
		expect     bool
	}{
		{name: "catch all", pattern: "*", actionType: "content.publish.entry", expect: true},
		{name: "catch all empty input", pattern: "*", actionType: "", expect: true},
		{name: "trailing wildcard", pattern: "content.publish.*", actionType: "content.publish.entry", expect: true},
		{name: "wildcard matches empty run", pattern: "content.publish.*", actionType: "content.publish.", expect: true},
		{name: "prefix mismatch", pattern: "content.publish.*", actionType: "content.delete.entry", expect: false},
		{name: "exact literal", pattern: "content.publish.entry", actionType: "content.publish.entry", expect: true},
		{name: "literal mismatch", pattern: "content.publish.entry", actionType: "content.publish.asset", expect: false},
		{name: "inner wildcard", pattern: "content.*.entry", actionType: "content.publish.entry", expect: true},
		{name: "multiple wildcards", pattern: "*.publish.*", actionType: "content.publish.entry", expect: true},
		{name: "dot is literal not regex", pattern: "content.publish.entry", actionType: "contentXpublishXentry", expect: false},
		{name: "empty pattern", pattern: "", actionType: "anything", expect: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, Matches(tc.pattern, tc.actionType))
		})
	}
}

func TestNormalizeToken(t *testing.T) {
	assert.Equal(t, "publish-content", NormalizeHandle("  Publish-Content "))
	assert.Equal(t, "publishcontent", NormalizeHandle("Publish Content!"))
	assert.Equal(t, "content.publish.*", NormalizeActionPattern("Content.Publish.*"))
	// wildcard is stripped from handles
	assert.Equal(t, "a", NormalizeHandle("a*"))
	assert.Equal(t, "content.publish.entry", NormalizeActionType("CONTENT.publish.ENTRY"))
}

func TestNormalizeRiskLevel(t *testing.T) {
	assert.Equal(t, RiskHigh, NormalizeRiskLevel("High"))
	assert.Equal(t, RiskCritical, NormalizeRiskLevel(" critical "))
	assert.Equal(t, RiskMedium, NormalizeRiskLevel("severe"))
	assert.Equal(t, RiskMedium, NormalizeRiskLevel(""))
}
