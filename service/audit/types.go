package audit

import (
	"time"

	"github.com/viant/warden/model/data"
)

// Outcome classifies the result of the operation an event records.
type Outcome string

const (
	OutcomeInfo    Outcome = "info"
	OutcomeSuccess Outcome = "success"
	OutcomeWarning Outcome = "warning"
	OutcomeError   Outcome = "error"
)

// Fallbacks applied when an event arrives with blank classification fields.
const (
	DefaultCategory = "control"
	DefaultAction   = "event"
)

// TopicEventAppended is published on the audit queue for every appended event.
const TopicEventAppended = "audit.event.appended"

// Event is one append-only audit record. Events are never updated or
// deleted after Append.
type Event struct {
	ID         string    `json:"id"`
	Category   string    `json:"category"`
	Action     string    `json:"action"`
	Outcome    Outcome   `json:"outcome"`
	ActorType  string    `json:"actorType"`
	ActorID    string    `json:"actorId"`
	RequestID  string    `json:"requestId,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	EntityType string    `json:"entityType,omitempty"`
	EntityID   string    `json:"entityId,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	Metadata   data.Map  `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"dateCreated"`
}

// ClampOutcome maps arbitrary input onto the closed outcome set; anything
// unrecognised becomes info.
func ClampOutcome(value Outcome) Outcome {
	switch value {
	case OutcomeInfo, OutcomeSuccess, OutcomeWarning, OutcomeError:
		return value
	}
	return OutcomeInfo
}
