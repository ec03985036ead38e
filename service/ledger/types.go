package ledger

import (
	"time"

	"github.com/viant/warden/model/data"
)

// Status is the execution outcome recorded in the ledger. An execution is
// decided synchronously at creation time and never mutated afterwards;
// pending exists only in memory before the decision and failed is reserved
// for downstream adapters reporting side-effect errors.
type Status string

const (
	StatusPending   Status = "pending"
	StatusBlocked   Status = "blocked"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ExecutionMode recorded in every result payload: this ledger records
// intent and outcome only, downstream adapters perform the side effect.
const ExecutionMode = "record_only"

// TopicExecutionRecorded is published on the ledger queue for every newly
// recorded execution.
const TopicExecutionRecorded = "execution.recorded"

// Blocked execution messages.
const (
	msgPolicyDisabled   = "Matched policy is disabled for execution."
	msgApprovalRequired = "Approval is required before execution."
	msgApprovalNotOK    = "Linked approval is not approved."
	msgApprovalMismatch = "Linked approval action type mismatch."
	msgRecorded         = "Action recorded for downstream execution."
)

// Event is the envelope published on the ledger queue.
type Event struct {
	Topic     string     `json:"topic"`
	Execution *Execution `json:"execution"`
}

// Execution is one immutable ledger row recording an attempted action and
// its policy-evaluated outcome. ApprovalID is a weak reference: the linked
// approval is consulted once at creation time and may be removed later.
type Execution struct {
	ID             string     `json:"id"`
	ActionType     string     `json:"actionType"`
	ActionRef      string     `json:"actionRef,omitempty"`
	Status         Status     `json:"status"`
	RequestedBy    string     `json:"requestedBy"`
	RequiredScope  string     `json:"requiredScope"`
	ApprovalID     string     `json:"approvalId,omitempty"`
	IdempotencyKey string     `json:"idempotencyKey"`
	RequestPayload data.Map   `json:"requestPayload,omitempty"`
	ResultPayload  data.Map   `json:"resultPayload,omitempty"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
	ExecutedAt     *time.Time `json:"executedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`

	// IdempotentReplay marks a response that returned a pre-existing row
	// for a repeated idempotency key. Never persisted as true.
	IdempotentReplay bool `json:"idempotentReplay,omitempty"`
}
