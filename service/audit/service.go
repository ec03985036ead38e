// Package audit implements the append-only audit log. Every policy,
// approval and execution mutation emits exactly one event here; idempotent
// replays and no-op decisions emit none.
package audit

import (
	"context"
	"log"
	"time"
	"unicode/utf8"

	"github.com/viant/warden/internal/clock"
	"github.com/viant/warden/internal/idgen"
	"github.com/viant/warden/service/actor"
	"github.com/viant/warden/service/dao"
	"github.com/viant/warden/service/messaging"
)

// Column budgets: oversize values are truncated rather than rejected so
// that auditing never blocks the mutation it records.
const (
	maxCategory = 64
	maxAction   = 64
	maxActor    = 128
	maxEntity   = 128
	maxRequest  = 128
	maxIP       = 64
	maxSummary  = 512
)

// List page sizing.
const (
	DefaultLimit = 100
	MaxLimit     = 200
)

// Schema describes the audit_log collection for the store adapters.
func Schema() dao.Schema[Event] {
	return dao.Schema[Event]{
		Name: "audit_log",
		Key:  func(e *Event) string { return e.ID },
		Fields: func(e *Event) map[string]string {
			return map[string]string{
				"category":   e.Category,
				"action":     e.Action,
				"outcome":    string(e.Outcome),
				"actorId":    e.ActorID,
				"entityType": e.EntityType,
			}
		},
		FilterFields: []string{"category", "action", "outcome", "actorId", "entityType"},
		CreatedAt:    func(e *Event) time.Time { return e.CreatedAt },
	}
}

// Service appends and lists audit events.
type Service struct {
	events dao.Keyed[Event]
	queue  messaging.Queue[Event]
}

// Option customises the audit service.
type Option func(*Service)

// WithQueue attaches a fan-out queue; every appended event is published to
// it on a best-effort basis.
func WithQueue(queue messaging.Queue[Event]) Option {
	return func(s *Service) { s.queue = queue }
}

// New creates an audit service backed by the supplied store. A nil store is
// permitted: appends become no-ops and reads degrade to empty results.
func New(events dao.Keyed[Event], options ...Option) *Service {
	ret := &Service{events: events}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Append records one audit event and returns its id. Blank classification
// fields receive generic fallbacks, the outcome is clamped to the valid set
// and oversize strings are truncated. When the backing store is not
// provisioned Append returns an empty id without error.
func (s *Service) Append(ctx context.Context, event *Event) (string, error) {
	if event == nil {
		return "", dao.ErrNilEntity
	}
	if s == nil || s.events == nil {
		return "", nil
	}
	record := *event
	if record.ID == "" {
		record.ID = idgen.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = clock.Now()
	}
	if record.Category == "" {
		record.Category = DefaultCategory
	}
	if record.Action == "" {
		record.Action = DefaultAction
	}
	if record.ActorType == "" {
		record.ActorType = actor.DefaultType
	}
	if record.ActorID == "" {
		record.ActorID = actor.DefaultID
	}
	record.Outcome = ClampOutcome(record.Outcome)
	record.Category = truncate(record.Category, maxCategory)
	record.Action = truncate(record.Action, maxAction)
	record.ActorType = truncate(record.ActorType, maxActor)
	record.ActorID = truncate(record.ActorID, maxActor)
	record.RequestID = truncate(record.RequestID, maxRequest)
	record.IPAddress = truncate(record.IPAddress, maxIP)
	record.EntityType = truncate(record.EntityType, maxEntity)
	record.EntityID = truncate(record.EntityID, maxEntity)
	record.Summary = truncate(record.Summary, maxSummary)

	stored, _, err := s.events.Insert(ctx, &record)
	if err != nil {
		return "", err
	}
	if s.queue != nil {
		if err := s.queue.Publish(ctx, stored); err != nil {
			log.Printf("[WARN] audit: publishing event %v: %v", stored.ID, err)
		}
	}
	return stored.ID, nil
}

// ListInput filters and pages the audit trail.
type ListInput struct {
	Category   string
	Action     string
	Outcome    string
	ActorID    string
	EntityType string
	Limit      int
}

// List returns audit events ordered by creation time descending. The limit
// defaults to DefaultLimit and is capped at MaxLimit. An unprovisioned
// store yields an empty result.
func (s *Service) List(ctx context.Context, input ListInput) ([]*Event, error) {
	if s == nil || s.events == nil {
		return []*Event{}, nil
	}
	parameters := []*dao.Parameter{dao.NewLimit(clampLimit(input.Limit))}
	if input.Category != "" {
		parameters = append(parameters, dao.NewParameter("category", input.Category))
	}
	if input.Action != "" {
		parameters = append(parameters, dao.NewParameter("action", input.Action))
	}
	if input.Outcome != "" {
		parameters = append(parameters, dao.NewParameter("outcome", input.Outcome))
	}
	if input.ActorID != "" {
		parameters = append(parameters, dao.NewParameter("actorId", input.ActorID))
	}
	if input.EntityType != "" {
		parameters = append(parameters, dao.NewParameter("entityType", input.EntityType))
	}
	return s.events.List(ctx, parameters...)
}

// Count returns the total number of audit events, zero when the store is
// not provisioned.
func (s *Service) Count(ctx context.Context) (int, error) {
	if s == nil || s.events == nil {
		return 0, nil
	}
	return s.events.Count(ctx)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// truncate caps value at max bytes, backing off to the nearest rune
// boundary so the stored text stays valid UTF-8.
func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
