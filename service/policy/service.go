// Package policy holds configured action policies and resolves the best
// matching policy for a given action type. Policies are upserted by handle
// and matched by longest action pattern; an action with no configured match
// falls back to the built-in fail-safe default.
package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/warden/faults"
	"github.com/viant/warden/internal/clock"
	"github.com/viant/warden/internal/idgen"
	"github.com/viant/warden/model/data"
	"github.com/viant/warden/service/actor"
	"github.com/viant/warden/service/audit"
	"github.com/viant/warden/service/dao"
)

// MaxLimit caps one page of listed policies.
const MaxLimit = 200

// Schema describes the policies collection for the store adapters.
func Schema() dao.Schema[Policy] {
	return dao.Schema[Policy]{
		Name: "policies",
		Key:  func(p *Policy) string { return p.ID },
		Uniques: map[string]func(*Policy) string{
			"handle": func(p *Policy) string { return p.Handle },
		},
		Fields: func(p *Policy) map[string]string {
			return map[string]string{
				"handle":    p.Handle,
				"riskLevel": string(p.RiskLevel),
				"enabled":   fmt.Sprintf("%t", p.Enabled),
			}
		},
		FilterFields: []string{"handle", "riskLevel", "enabled"},
		CreatedAt:    func(p *Policy) time.Time { return p.CreatedAt },
	}
}

// UpsertInput carries one policy definition. RequiresApproval and Enabled
// accept any scalar and are coerced permissively (numeric 1 and the strings
// "1", "true", "yes", "on" are true); Config accepts any decoded map shape.
type UpsertInput struct {
	Handle           string      `json:"handle" yaml:"handle"`
	DisplayName      string      `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	ActionPattern    string      `json:"actionPattern" yaml:"actionPattern"`
	RequiresApproval interface{} `json:"requiresApproval,omitempty" yaml:"requiresApproval,omitempty"`
	Enabled          interface{} `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	RiskLevel        string      `json:"riskLevel,omitempty" yaml:"riskLevel,omitempty"`
	Config           interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

// Service resolves and maintains action policies.
type Service struct {
	policies dao.Keyed[Policy]
	auditor  *audit.Service
}

// New creates a policy service backed by the supplied store.
func New(policies dao.Keyed[Policy], auditor *audit.Service) *Service {
	return &Service{policies: policies, auditor: auditor}
}

// Upsert creates or updates (by normalized handle) one policy and emits a
// single audit event. Invalid risk levels fall back to medium and malformed
// config input becomes an empty map; only an empty handle or action pattern
// is an error.
func (s *Service) Upsert(ctx context.Context, input *UpsertInput) (*Policy, error) {
	if input == nil {
		return nil, faults.NewValidation("input", "is required")
	}
	if s.policies == nil {
		return nil, faults.ErrStorageUnavailable
	}
	handle := NormalizeHandle(input.Handle)
	if handle == "" {
		return nil, faults.NewValidation("handle", "normalizes to empty")
	}
	pattern := NormalizeActionPattern(input.ActionPattern)
	if pattern == "" {
		return nil, faults.NewValidation("actionPattern", "normalizes to empty")
	}

	now := clock.Now()
	requiresApproval := data.AsFlag(input.RequiresApproval)
	enabled := true
	if input.Enabled != nil {
		enabled = data.AsFlag(input.Enabled)
	}

	action := "create"
	existing, err := s.policies.LoadBy(ctx, "handle", handle)
	if err != nil {
		return nil, err
	}
	var saved *Policy
	if existing != nil {
		action = "upsert"
		updated := *existing
		updated.DisplayName = input.DisplayName
		updated.ActionPattern = pattern
		updated.RequiresApproval = requiresApproval
		updated.Enabled = enabled
		updated.RiskLevel = NormalizeRiskLevel(input.RiskLevel)
		updated.Config = data.Coerce(input.Config)
		updated.UpdatedAt = now
		if err := s.policies.Save(ctx, &updated); err != nil {
			return nil, err
		}
		saved = &updated
	} else {
		candidate := &Policy{
			ID:               idgen.New(),
			Handle:           handle,
			DisplayName:      input.DisplayName,
			ActionPattern:    pattern,
			RequiresApproval: requiresApproval,
			Enabled:          enabled,
			RiskLevel:        NormalizeRiskLevel(input.RiskLevel),
			Config:           data.Coerce(input.Config),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		winner, created, err := s.policies.Insert(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if !created {
			// lost an upsert race on the handle; update the winner in place
			action = "upsert"
			updated := *winner
			updated.DisplayName = input.DisplayName
			updated.ActionPattern = pattern
			updated.RequiresApproval = requiresApproval
			updated.Enabled = enabled
			updated.RiskLevel = NormalizeRiskLevel(input.RiskLevel)
			updated.Config = data.Coerce(input.Config)
			updated.UpdatedAt = now
			if err := s.policies.Save(ctx, &updated); err != nil {
				return nil, err
			}
			winner = &updated
		}
		saved = winner
	}

	caller := actor.FromContext(ctx)
	if _, err := s.auditor.Append(ctx, &audit.Event{
		Category:   "control.policy",
		Action:     action,
		Outcome:    audit.OutcomeSuccess,
		ActorType:  caller.Type,
		ActorID:    caller.ID,
		RequestID:  caller.RequestID,
		IPAddress:  caller.IPAddress,
		EntityType: "policy",
		EntityID:   saved.ID,
		Summary:    summaryFor(action, saved),
		Metadata: data.Map{
			"handle":           saved.Handle,
			"actionPattern":    saved.ActionPattern,
			"riskLevel":        string(saved.RiskLevel),
			"requiresApproval": saved.RequiresApproval,
		},
	}); err != nil {
		return nil, err
	}
	return saved, nil
}

func summaryFor(action string, saved *Policy) string {
	verb := "created"
	if action == "upsert" {
		verb = "updated"
	}
	return fmt.Sprintf("Policy %v %v for pattern %v", saved.Handle, verb, saved.ActionPattern)
}

// Resolve returns the policy governing actionType: among configured
// policies whose pattern matches the normalized action type, the one with
// the longest pattern string wins, ties broken by ascending handle. When
// nothing matches the built-in fail-safe default is returned.
func (s *Service) Resolve(ctx context.Context, actionType string) (*Policy, error) {
	if s.policies == nil {
		return Default(), nil
	}
	normalized := NormalizeActionType(actionType)
	policies, err := s.policies.List(ctx)
	if err != nil {
		return nil, err
	}
	var best *Policy
	for _, candidate := range policies {
		if !Matches(candidate.ActionPattern, normalized) {
			continue
		}
		if best == nil {
			best = candidate
			continue
		}
		switch {
		case len(candidate.ActionPattern) > len(best.ActionPattern):
			best = candidate
		case len(candidate.ActionPattern) == len(best.ActionPattern) && candidate.Handle < best.Handle:
			best = candidate
		}
	}
	if best == nil {
		return Default(), nil
	}
	return best, nil
}

// ListInput filters and pages policies.
type ListInput struct {
	Handle    string
	RiskLevel string
	Enabled   string // "true" | "false", empty for both
	Limit     int
}

// List returns policies ordered by creation time descending; reads degrade
// to empty results when the store is not provisioned.
func (s *Service) List(ctx context.Context, input ListInput) ([]*Policy, error) {
	if s.policies == nil {
		return []*Policy{}, nil
	}
	limit := input.Limit
	if limit <= 0 || limit > MaxLimit {
		limit = MaxLimit
	}
	parameters := []*dao.Parameter{dao.NewLimit(limit)}
	if input.Handle != "" {
		parameters = append(parameters, dao.NewParameter("handle", NormalizeHandle(input.Handle)))
	}
	if input.RiskLevel != "" {
		parameters = append(parameters, dao.NewParameter("riskLevel", string(NormalizeRiskLevel(input.RiskLevel))))
	}
	if input.Enabled != "" {
		parameters = append(parameters, dao.NewParameter("enabled", input.Enabled))
	}
	return s.policies.List(ctx, parameters...)
}

// Count returns the number of configured policies.
func (s *Service) Count(ctx context.Context) (int, error) {
	if s.policies == nil {
		return 0, nil
	}
	return s.policies.Count(ctx)
}

// Seed upserts the supplied policy definitions, typically loaded from a
// bootstrap file at engine start. Definitions are applied in order and the
// first failure aborts.
func (s *Service) Seed(ctx context.Context, definitions []*UpsertInput) error {
	for i, definition := range definitions {
		if _, err := s.Upsert(ctx, definition); err != nil {
			return fmt.Errorf("seeding policy %d: %w", i, err)
		}
	}
	return nil
}
