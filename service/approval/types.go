package approval

import (
	"strings"
	"time"

	"github.com/viant/warden/model/data"
)

// Status is the approval lifecycle state. The only legal transition is
// pending to approved or rejected, exactly once.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Queue topics published for approval lifecycle events.
const (
	TopicRequestCreated  = "approval.request.created"
	TopicDecisionCreated = "approval.decision.created"
)

// MaxIdempotencyKey caps the normalized idempotency key length.
const MaxIdempotencyKey = 128

// Event is the envelope published on the approval queue.
type Event struct {
	Topic    string    `json:"topic"`
	Approval *Approval `json:"approval"`
}

// Approval is a human decision record gating a class of actions. Once
// decided the record is immutable; repeated decide calls are no-ops.
type Approval struct {
	ID             string     `json:"id"`
	ActionType     string     `json:"actionType"`
	ActionRef      string     `json:"actionRef,omitempty"`
	Status         Status     `json:"status"`
	RequestedBy    string     `json:"requestedBy"`
	DecidedBy      string     `json:"decidedBy,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	DecisionReason string     `json:"decisionReason,omitempty"`
	IdempotencyKey string     `json:"idempotencyKey,omitempty"`
	RequestPayload data.Map   `json:"requestPayload,omitempty"`
	Metadata       data.Map   `json:"metadata,omitempty"`
	DecidedAt      *time.Time `json:"decidedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`

	// IdempotentReplay marks a response that returned a pre-existing
	// record for a repeated idempotency key. It is a response marker,
	// never persisted as true.
	IdempotentReplay bool `json:"idempotentReplay,omitempty"`
}

// Decided reports whether the approval has left the pending state.
func (a *Approval) Decided() bool {
	return a.Status != StatusPending
}

// NormalizeIdempotencyKey trims the key to its allowed charset
// [A-Za-z0-9._:-] and caps it at MaxIdempotencyKey characters.
func NormalizeIdempotencyKey(value string) string {
	value = strings.TrimSpace(value)
	var builder strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '.', r == '_', r == ':', r == '-':
			builder.WriteRune(r)
		}
	}
	ret := builder.String()
	if len(ret) > MaxIdempotencyKey {
		ret = ret[:MaxIdempotencyKey]
	}
	return ret
}

// NormalizeDecision maps a decision input onto the terminal status set.
// It accepts approve/approved and reject/rejected case-insensitively and
// returns an empty status for anything else.
func NormalizeDecision(value string) Status {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "approve", "approved":
		return StatusApproved
	case "reject", "rejected":
		return StatusRejected
	}
	return ""
}
