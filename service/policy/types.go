package policy

import (
	"strings"
	"time"

	"github.com/viant/warden/model/data"
)

// RiskLevel classifies the blast radius of an action class.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// NormalizeRiskLevel maps arbitrary input onto the closed risk set;
// anything unrecognised becomes medium.
func NormalizeRiskLevel(value string) RiskLevel {
	switch RiskLevel(strings.ToLower(strings.TrimSpace(value))) {
	case RiskLow:
		return RiskLow
	case RiskMedium:
		return RiskMedium
	case RiskHigh:
		return RiskHigh
	case RiskCritical:
		return RiskCritical
	}
	return RiskMedium
}

// ConfigRequiredScope is the config key carrying the scope an executor
// must hold for actions governed by the policy.
const ConfigRequiredScope = "requiredScope"

// DefaultRequiredScope is the scope demanded by the built-in fail-safe
// policy.
const DefaultRequiredScope = "control:actions:execute"

// DefaultHandle names the built-in fail-safe policy returned when no
// configured policy matches an action type.
const DefaultHandle = "default"

// Policy maps an action-type pattern to a risk level and approval
// requirement. Policies are never hard-deleted; disabling is the soft
// removal path.
type Policy struct {
	ID               string    `json:"id"`
	Handle           string    `json:"handle"`
	DisplayName      string    `json:"displayName,omitempty"`
	ActionPattern    string    `json:"actionPattern"`
	RequiresApproval bool      `json:"requiresApproval"`
	Enabled          bool      `json:"enabled"`
	RiskLevel        RiskLevel `json:"riskLevel"`
	Config           data.Map  `json:"config,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// RequiredScope returns the scope configured on the policy, falling back
// to the built-in default.
func (p *Policy) RequiredScope() string {
	if scope := p.Config.String(ConfigRequiredScope); scope != "" {
		return scope
	}
	return DefaultRequiredScope
}

// Default returns the built-in fail-safe policy: unknown actions stay
// behind approval at high risk.
func Default() *Policy {
	return &Policy{
		Handle:           DefaultHandle,
		DisplayName:      "Default action policy",
		ActionPattern:    "*",
		RequiresApproval: true,
		Enabled:          true,
		RiskLevel:        RiskHigh,
		Config:           data.Map{ConfigRequiredScope: DefaultRequiredScope},
	}
}
