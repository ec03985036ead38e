package warden

import (
	"github.com/viant/warden/service/approval"
	"github.com/viant/warden/service/audit"
	"github.com/viant/warden/service/dao"
	"github.com/viant/warden/service/ledger"
	"github.com/viant/warden/service/messaging"
	"github.com/viant/warden/service/policy"
)

// Option customises the control plane service.
type Option func(s *Service)

// WithConfig sets the configuration; nil keeps DefaultConfig.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithPolicyStore sets the policies store adapter.
func WithPolicyStore(store dao.Keyed[policy.Policy]) Option {
	return func(s *Service) { s.policyStore = store }
}

// WithApprovalStore sets the approvals store adapter.
func WithApprovalStore(store dao.Keyed[approval.Approval]) Option {
	return func(s *Service) { s.approvalStore = store }
}

// WithExecutionStore sets the executions store adapter.
func WithExecutionStore(store dao.Keyed[ledger.Execution]) Option {
	return func(s *Service) { s.executionStore = store }
}

// WithAuditStore sets the audit log store adapter.
func WithAuditStore(store dao.Keyed[audit.Event]) Option {
	return func(s *Service) { s.auditStore = store }
}

// WithAuditQueue sets the queue audit events fan out to.
func WithAuditQueue(queue messaging.Queue[audit.Event]) Option {
	return func(s *Service) { s.auditQueue = queue }
}

// WithApprovalQueue sets the queue approval lifecycle events fan out to.
func WithApprovalQueue(queue messaging.Queue[approval.Event]) Option {
	return func(s *Service) { s.approvalQueue = queue }
}

// WithLedgerQueue sets the queue recorded executions fan out to.
func WithLedgerQueue(queue messaging.Queue[ledger.Event]) Option {
	return func(s *Service) { s.ledgerQueue = queue }
}
