// Package actor carries caller identity metadata through context. The
// control plane never authenticates callers itself - it trusts and records
// whatever the upstream authentication layer attached to the request.
package actor

import "context"

// Default identity recorded when no actor has been attached to the context.
const (
	DefaultType = "system"
	DefaultID   = "system"
)

// Actor identifies the caller of a mutating operation.
type Actor struct {
	Type      string `json:"actorType,omitempty" yaml:"actorType,omitempty"`
	ID        string `json:"actorId,omitempty" yaml:"actorId,omitempty"`
	RequestID string `json:"requestId,omitempty" yaml:"requestId,omitempty"`
	IPAddress string `json:"ipAddress,omitempty" yaml:"ipAddress,omitempty"`
}

type ctxKeyT struct{}

var ctxKey ctxKeyT

// WithActor embeds the actor in ctx.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey, a)
}

// FromContext extracts the actor from ctx. It never returns nil: when no
// actor was attached, or fields are blank, system defaults are filled in.
func FromContext(ctx context.Context) *Actor {
	ret := &Actor{}
	if ctx != nil {
		if value, ok := ctx.Value(ctxKey).(*Actor); ok && value != nil {
			copied := *value
			ret = &copied
		}
	}
	if ret.Type == "" {
		ret.Type = DefaultType
	}
	if ret.ID == "" {
		ret.ID = DefaultID
	}
	return ret
}
