// Package warden is a governance control plane for agent-requested
// actions. It resolves configured policies against requested action types,
// runs the human approval workflow gating risky actions, records every
// attempted execution in an immutable ledger and appends one audit event
// per mutation.
//
// The ledger is record-only: it decides whether an action may run and
// records the outcome, while downstream adapters perform the side effect.
package warden
