// Package ledger implements the execution ledger: one immutable row per
// attempted action, decided synchronously against the resolved policy and,
// when required, a linked approval. At-most-once recording per idempotency
// key is guaranteed by the store's atomic insert primitive.
package ledger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/viant/warden/faults"
	"github.com/viant/warden/internal/clock"
	"github.com/viant/warden/internal/idgen"
	"github.com/viant/warden/model/data"
	"github.com/viant/warden/service/actor"
	"github.com/viant/warden/service/approval"
	"github.com/viant/warden/service/audit"
	"github.com/viant/warden/service/dao"
	"github.com/viant/warden/service/messaging"
	"github.com/viant/warden/service/policy"
)

// MaxLimit caps one page of listed executions.
const MaxLimit = 200

// Schema describes the executions collection for the store adapters.
func Schema() dao.Schema[Execution] {
	return dao.Schema[Execution]{
		Name: "executions",
		Key:  func(e *Execution) string { return e.ID },
		Uniques: map[string]func(*Execution) string{
			"idempotency_key": func(e *Execution) string { return e.IdempotencyKey },
		},
		Fields: func(e *Execution) map[string]string {
			return map[string]string{
				"status":     string(e.Status),
				"actionType": e.ActionType,
			}
		},
		FilterFields: []string{"status", "actionType"},
		CreatedAt:    func(e *Execution) time.Time { return e.CreatedAt },
	}
}

// ExecuteInput carries one action execution request. IdempotencyKey is
// required; there is no fallback generation.
type ExecuteInput struct {
	ActionType     string      `json:"actionType"`
	ActionRef      string      `json:"actionRef,omitempty"`
	ApprovalID     string      `json:"approvalId,omitempty"`
	IdempotencyKey string      `json:"idempotencyKey"`
	RequestPayload interface{} `json:"requestPayload,omitempty"`
	Metadata       interface{} `json:"metadata,omitempty"`
}

// Service records and lists action executions.
type Service struct {
	executions dao.Keyed[Execution]
	policies   *policy.Service
	approvals  *approval.Service
	auditor    *audit.Service
	queue      messaging.Queue[Event]
}

// Option customises the ledger service.
type Option func(*Service)

// WithQueue attaches a fan-out queue; every newly recorded execution is
// published to it on a best-effort basis.
func WithQueue(queue messaging.Queue[Event]) Option {
	return func(s *Service) { s.queue = queue }
}

// New creates a ledger service backed by the supplied store and
// collaborating policy and approval services.
func New(executions dao.Keyed[Execution], policies *policy.Service, approvals *approval.Service, auditor *audit.Service, options ...Option) *Service {
	ret := &Service{executions: executions, policies: policies, approvals: approvals, auditor: auditor}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Execute records one action execution. The idempotency key is checked
// first: an existing row for the key is returned verbatim with
// IdempotentReplay set, with no policy re-evaluation and no audit event.
// Otherwise the governing policy is resolved and the outcome decided in
// order: disabled policy blocks, a required approval must exist, be
// approved and match the action type; anything else succeeds. The row is
// inserted atomically on the key and a losing concurrent writer receives
// the winner's row as a replay.
func (s *Service) Execute(ctx context.Context, input *ExecuteInput) (*Execution, error) {
	if input == nil {
		return nil, faults.NewValidation("input", "is required")
	}
	if s.executions == nil {
		return nil, faults.ErrStorageUnavailable
	}
	actionType := policy.NormalizeActionType(input.ActionType)
	if actionType == "" {
		return nil, faults.NewValidation("actionType", "normalizes to empty")
	}
	key := approval.NormalizeIdempotencyKey(input.IdempotencyKey)
	if key == "" {
		return nil, faults.NewValidation("idempotencyKey", "normalizes to empty")
	}
	existing, err := s.executions.LoadBy(ctx, "idempotency_key", key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return replayOf(existing), nil
	}

	matched, err := s.resolvePolicy(ctx, actionType)
	if err != nil {
		return nil, err
	}
	status, message, err := s.evaluate(ctx, matched, actionType, input.ApprovalID)
	if err != nil {
		return nil, err
	}

	now := clock.Now()
	caller := actor.FromContext(ctx)
	requestPayload := data.Coerce(input.RequestPayload)
	if metadata := data.Coerce(input.Metadata); len(metadata) > 0 {
		requestPayload["metadata"] = metadata
	}
	candidate := &Execution{
		ID:             idgen.New(),
		ActionType:     actionType,
		ActionRef:      input.ActionRef,
		Status:         status,
		RequestedBy:    caller.ID,
		RequiredScope:  matched.RequiredScope(),
		ApprovalID:     input.ApprovalID,
		IdempotencyKey: key,
		RequestPayload: requestPayload,
		ResultPayload: data.Map{
			"executionMode":          ExecutionMode,
			"policyHandle":           matched.Handle,
			"policyRiskLevel":        string(matched.RiskLevel),
			"policyRequiresApproval": matched.RequiresApproval,
			"message":                message,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == StatusBlocked {
		candidate.ErrorMessage = message
	} else {
		candidate.ExecutedAt = &now
	}

	recorded, inserted, err := s.executions.Insert(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// a concurrent writer won the race for the same key
		return replayOf(recorded), nil
	}

	outcome := audit.OutcomeWarning
	if status == StatusSucceeded {
		outcome = audit.OutcomeSuccess
	}
	if _, err := s.auditor.Append(ctx, &audit.Event{
		Category:   "control.execution",
		Action:     "record",
		Outcome:    outcome,
		ActorType:  caller.Type,
		ActorID:    caller.ID,
		RequestID:  caller.RequestID,
		IPAddress:  caller.IPAddress,
		EntityType: "execution",
		EntityID:   recorded.ID,
		Summary:    fmt.Sprintf("Execution %v for %v", status, actionType),
		Metadata: data.Map{
			"actionType":   actionType,
			"status":       string(status),
			"policyHandle": matched.Handle,
		},
	}); err != nil {
		return nil, err
	}
	if s.queue != nil {
		if err := s.queue.Publish(ctx, &Event{Topic: TopicExecutionRecorded, Execution: recorded}); err != nil {
			log.Printf("[WARN] ledger: publishing execution %v: %v", recorded.ID, err)
		}
	}
	return recorded, nil
}

func (s *Service) resolvePolicy(ctx context.Context, actionType string) (*policy.Policy, error) {
	if s.policies == nil {
		return policy.Default(), nil
	}
	return s.policies.Resolve(ctx, actionType)
}

// evaluate decides the execution outcome against the matched policy and
// the optionally linked approval.
func (s *Service) evaluate(ctx context.Context, matched *policy.Policy, actionType, approvalID string) (Status, string, error) {
	if !matched.Enabled {
		return StatusBlocked, msgPolicyDisabled, nil
	}
	if !matched.RequiresApproval {
		return StatusSucceeded, msgRecorded, nil
	}
	linked, err := s.linkedApproval(ctx, approvalID)
	if err != nil {
		return "", "", err
	}
	switch {
	case linked == nil:
		return StatusBlocked, msgApprovalRequired, nil
	case linked.Status != approval.StatusApproved:
		return StatusBlocked, msgApprovalNotOK, nil
	case linked.ActionType != actionType:
		return StatusBlocked, msgApprovalMismatch, nil
	}
	return StatusSucceeded, msgRecorded, nil
}

func (s *Service) linkedApproval(ctx context.Context, approvalID string) (*approval.Approval, error) {
	if s.approvals == nil || approvalID == "" {
		return nil, nil
	}
	return s.approvals.Get(ctx, approvalID)
}

// Get returns an execution by id, nil when absent or when the store is not
// provisioned.
func (s *Service) Get(ctx context.Context, id string) (*Execution, error) {
	if s.executions == nil || id == "" {
		return nil, nil
	}
	return s.executions.Load(ctx, id)
}

// ListInput filters and pages executions.
type ListInput struct {
	Status     string
	ActionType string
	Limit      int
}

// List returns executions ordered by creation time descending; reads
// degrade to empty results when the store is not provisioned.
func (s *Service) List(ctx context.Context, input ListInput) ([]*Execution, error) {
	if s.executions == nil {
		return []*Execution{}, nil
	}
	limit := input.Limit
	if limit <= 0 || limit > MaxLimit {
		limit = MaxLimit
	}
	parameters := []*dao.Parameter{dao.NewLimit(limit)}
	if input.Status != "" {
		parameters = append(parameters, dao.NewParameter("status", input.Status))
	}
	if input.ActionType != "" {
		parameters = append(parameters, dao.NewParameter("actionType", policy.NormalizeActionType(input.ActionType)))
	}
	return s.executions.List(ctx, parameters...)
}

// CountByStatus returns the number of executions recorded with the given
// status, zero when the store is not provisioned.
func (s *Service) CountByStatus(ctx context.Context, status Status) (int, error) {
	if s.executions == nil {
		return 0, nil
	}
	return s.executions.Count(ctx, dao.NewParameter("status", string(status)))
}

func replayOf(existing *Execution) *Execution {
	ret := *existing
	ret.IdempotentReplay = true
	return &ret
}
