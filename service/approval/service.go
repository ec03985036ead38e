// Package approval implements the approval workflow: agents request
// approval for an action, humans decide it, and the decision is final.
// Request submission is idempotent on an optional caller-supplied key.
package approval

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
	"github.com/viant/warden/service/audit"
	"github.com/viant/warden/service/dao"
	"github.com/viant/warden/service/messaging"
	"github.com/viant/warden/service/policy"
)

// MaxLimit caps one page of listed approvals.
const MaxLimit = 200

// Schema describes the approvals collection for the store adapters.
func Schema() dao.Schema[Approval] {
	return dao.Schema[Approval]{
		Name: "approvals",
		Key:  func(a *Approval) string { return a.ID },
		Uniques: map[string]func(*Approval) string{
			"idempotency_key": func(a *Approval) string { return a.IdempotencyKey },
		},
		Fields: func(a *Approval) map[string]string {
			return map[string]string{
				"status":     string(a.Status),
				"actionType": a.ActionType,
			}
		},
		FilterFields: []string{"status", "actionType"},
		CreatedAt:    func(a *Approval) time.Time { return a.CreatedAt },
	}
}

// RequestInput carries one approval request.
type RequestInput struct {
	ActionType     string      `json:"actionType"`
	ActionRef      string      `json:"actionRef,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	IdempotencyKey string      `json:"idempotencyKey,omitempty"`
	RequestPayload interface{} `json:"requestPayload,omitempty"`
	Metadata       interface{} `json:"metadata,omitempty"`
}

// Service creates and decides approval requests.
type Service struct {
	approvals dao.Keyed[Approval]
	auditor   *audit.Service
	queue     messaging.Queue[Event]
}

// Option customises the approval service.
type Option func(*Service)

// WithQueue attaches a fan-out queue; lifecycle events are published to it
// on a best-effort basis.
func WithQueue(queue messaging.Queue[Event]) Option {
	return func(s *Service) { s.queue = queue }
}

// New creates an approval service backed by the supplied store.
func New(approvals dao.Keyed[Approval], auditor *audit.Service, options ...Option) *Service {
	ret := &Service{approvals: approvals, auditor: auditor}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Request creates a pending approval. When the input carries an
// idempotency key already held by an existing approval, that record is
// returned with IdempotentReplay set and nothing else happens - no new
// row, no audit event.
func (s *Service) Request(ctx context.Context, input *RequestInput) (*Approval, error) {
	if input == nil {
		return nil, faults.NewValidation("input", "is required")
	}
	if s.approvals == nil {
		return nil, faults.ErrStorageUnavailable
	}
	actionType := policy.NormalizeActionType(input.ActionType)
	if actionType == "" {
		return nil, faults.NewValidation("actionType", "normalizes to empty")
	}
	key := NormalizeIdempotencyKey(input.IdempotencyKey)
	if key != "" {
		existing, err := s.approvals.LoadBy(ctx, "idempotency_key", key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return replayOf(existing), nil
		}
	}

	now := clock.Now()
	caller := actor.FromContext(ctx)
	candidate := &Approval{
		ID:             idgen.New(),
		ActionType:     actionType,
		ActionRef:      input.ActionRef,
		Status:         StatusPending,
		RequestedBy:    caller.ID,
		Reason:         input.Reason,
		IdempotencyKey: key,
		RequestPayload: data.Coerce(input.RequestPayload),
		Metadata:       data.Coerce(input.Metadata),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, inserted, err := s.approvals.Insert(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// a concurrent request won the race for the same key
		return replayOf(created), nil
	}

	if _, err := s.auditor.Append(ctx, &audit.Event{
		Category:   "control.approval",
		Action:     "request",
		Outcome:    audit.OutcomeInfo,
		ActorType:  caller.Type,
		ActorID:    caller.ID,
		RequestID:  caller.RequestID,
		IPAddress:  caller.IPAddress,
		EntityType: "approval",
		EntityID:   created.ID,
		Summary:    fmt.Sprintf("Approval requested for %v", created.ActionType),
		Metadata: data.Map{
			"actionType": created.ActionType,
			"actionRef":  created.ActionRef,
		},
	}); err != nil {
		return nil, err
	}
	s.publish(ctx, TopicRequestCreated, created)
	return created, nil
}

// Decide transitions a pending approval to approved or rejected. The
// decision accepts approve(d)/reject(ed) case-insensitively. An unknown id
// yields a nil approval; an already-decided approval is returned unchanged
// with no audit event - decisions are final.
func (s *Service) Decide(ctx context.Context, id, decision, decisionReason string) (*Approval, error) {
	status := NormalizeDecision(decision)
	if status == "" {
		return nil, faults.NewValidation("decision", fmt.Sprintf("%q is not approve or reject", decision))
	}
	if s.approvals == nil {
		return nil, faults.ErrStorageUnavailable
	}
	existing, err := s.approvals.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	if existing.Decided() {
		return existing, nil
	}

	now := clock.Now()
	caller := actor.FromContext(ctx)
	decided := *existing
	decided.Status = status
	decided.DecidedBy = caller.ID
	decided.DecisionReason = decisionReason
	decided.DecidedAt = &now
	decided.UpdatedAt = now
	if err := s.approvals.Save(ctx, &decided); err != nil {
		return nil, err
	}

	outcome := audit.OutcomeSuccess
	if status == StatusRejected {
		outcome = audit.OutcomeWarning
	}
	if _, err := s.auditor.Append(ctx, &audit.Event{
		Category:   "control.approval",
		Action:     "decide",
		Outcome:    outcome,
		ActorType:  caller.Type,
		ActorID:    caller.ID,
		RequestID:  caller.RequestID,
		IPAddress:  caller.IPAddress,
		EntityType: "approval",
		EntityID:   decided.ID,
		Summary:    fmt.Sprintf("Approval %v for %v", status, decided.ActionType),
		Metadata: data.Map{
			"actionType": decided.ActionType,
			"status":     string(status),
		},
	}); err != nil {
		return nil, err
	}
	s.publish(ctx, TopicDecisionCreated, &decided)
	return &decided, nil
}

// Get returns an approval by id, nil when absent or when the store is not
// provisioned.
func (s *Service) Get(ctx context.Context, id string) (*Approval, error) {
	if s.approvals == nil || id == "" {
		return nil, nil
	}
	return s.approvals.Load(ctx, id)
}

// ListInput filters and pages approvals.
type ListInput struct {
	Status     string
	ActionType string
	Limit      int
}

// List returns approvals ordered by creation time descending; reads
// degrade to empty results when the store is not provisioned.
func (s *Service) List(ctx context.Context, input ListInput) ([]*Approval, error) {
	if s.approvals == nil {
		return []*Approval{}, nil
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
	return s.approvals.List(ctx, parameters...)
}

// PendingCount returns the number of approvals still awaiting a decision.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	if s.approvals == nil {
		return 0, nil
	}
	return s.approvals.Count(ctx, dao.NewParameter("status", string(StatusPending)))
}

func (s *Service) publish(ctx context.Context, topic string, approval *Approval) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Publish(ctx, &Event{Topic: topic, Approval: approval}); err != nil {
		log.Printf("[WARN] approval: publishing %v for %v: %v", topic, approval.ID, err)
	}
}

func replayOf(existing *Approval) *Approval {
	ret := *existing
	ret.IdempotentReplay = true
	return &ret
}
