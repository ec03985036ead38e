package warden

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"gopkg.in/yaml.v3"

	"github.com/viant/warden/service/approval"
	"github.com/viant/warden/service/audit"
	"github.com/viant/warden/service/dao"
	fsstore "github.com/viant/warden/service/dao/fs"
	sqlitestore "github.com/viant/warden/service/dao/sqlite"
	"github.com/viant/warden/service/dao/store"
	"github.com/viant/warden/service/ledger"
	"github.com/viant/warden/service/messaging"
	fsqueue "github.com/viant/warden/service/messaging/fs"
	mmemory "github.com/viant/warden/service/messaging/memory"
	"github.com/viant/warden/service/policy"
	"github.com/viant/warden/tracing"
)

// Service is the control plane facade: policy resolution, the approval
// workflow, the execution ledger and the audit log behind one API. Every
// public operation opens a tracing span and delegates to the owning
// component service.
type Service struct {
	config *Config

	policyStore    dao.Keyed[policy.Policy]
	approvalStore  dao.Keyed[approval.Approval]
	executionStore dao.Keyed[ledger.Execution]
	auditStore     dao.Keyed[audit.Event]

	auditQueue    messaging.Queue[audit.Event]
	approvalQueue messaging.Queue[approval.Event]
	ledgerQueue   messaging.Queue[ledger.Event]

	auditor    *audit.Service
	policies   *policy.Service
	approvals  *approval.Service
	executions *ledger.Service

	db *sql.DB
}

// New creates a control plane service. Unset stores and queues default to
// in-memory implementations.
func New(options ...Option) *Service {
	ret := &Service{config: DefaultConfig()}
	ret.init(options)
	return ret
}

// NewFromConfig creates a control plane service with store adapters
// selected by the supplied configuration and, when configured, seeds the
// policy collection from Config.PolicySeedURL.
func NewFromConfig(ctx context.Context, config *Config, options ...Option) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ret := &Service{config: config}
	if err := ret.provisionStores(config); err != nil {
		return nil, err
	}
	if err := ret.provisionQueues(config); err != nil {
		return nil, err
	}
	ret.init(options)
	if config.PolicySeedURL != "" {
		if err := ret.seedPolicies(ctx, config.PolicySeedURL); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

func (s *Service) init(options []Option) {
	for _, option := range options {
		option(s)
	}
	s.ensureBaseSetup()
	s.auditor = audit.New(s.auditStore, audit.WithQueue(s.auditQueue))
	s.policies = policy.New(s.policyStore, s.auditor)
	s.approvals = approval.New(s.approvalStore, s.auditor, approval.WithQueue(s.approvalQueue))
	s.executions = ledger.New(s.executionStore, s.policies, s.approvals, s.auditor, ledger.WithQueue(s.ledgerQueue))
}

func (s *Service) ensureBaseSetup() {
	if s.policyStore == nil {
		s.policyStore = store.NewMemoryStore(policy.Schema())
	}
	if s.approvalStore == nil {
		s.approvalStore = store.NewMemoryStore(approval.Schema())
	}
	if s.executionStore == nil {
		s.executionStore = store.NewMemoryStore(ledger.Schema())
	}
	if s.auditStore == nil {
		s.auditStore = store.NewMemoryStore(audit.Schema())
	}
	queueConfig := s.queueConfig()
	if s.auditQueue == nil {
		s.auditQueue = mmemory.NewQueue[audit.Event](queueConfig)
	}
	if s.approvalQueue == nil {
		s.approvalQueue = mmemory.NewQueue[approval.Event](queueConfig)
	}
	if s.ledgerQueue == nil {
		s.ledgerQueue = mmemory.NewQueue[ledger.Event](queueConfig)
	}
}

func (s *Service) queueConfig() mmemory.Config {
	ret := mmemory.DefaultConfig()
	if s.config == nil {
		return ret
	}
	if s.config.Queue.Buffer > 0 {
		ret.QueueBuffer = s.config.Queue.Buffer
	}
	if s.config.Queue.MaxRetries > 0 {
		ret.MaxRetries = s.config.Queue.MaxRetries
	}
	if s.config.Queue.RetryDelayMs > 0 {
		ret.RetryDelay = s.config.Queue.RetryDelay()
	}
	return ret
}

func (s *Service) provisionQueues(config *Config) error {
	if config.Queue.Vendor != QueueFS {
		return nil
	}
	fsService := afs.New()
	queueConfig := func(name string) fsqueue.Config {
		ret := fsqueue.DefaultConfig(url.Join(config.Queue.BaseURL, name))
		if config.Queue.MaxRetries > 0 {
			ret.MaxRetries = config.Queue.MaxRetries
		}
		return ret
	}
	var err error
	if s.auditQueue, err = fsqueue.NewQueue[audit.Event](fsService, queueConfig("audit")); err != nil {
		return err
	}
	if s.approvalQueue, err = fsqueue.NewQueue[approval.Event](fsService, queueConfig("approval")); err != nil {
		return err
	}
	if s.ledgerQueue, err = fsqueue.NewQueue[ledger.Event](fsService, queueConfig("ledger")); err != nil {
		return err
	}
	return nil
}

func (s *Service) provisionStores(config *Config) error {
	switch config.Store.Vendor {
	case "", StoreMemory:
		return nil
	case StoreFS:
		return s.provisionFsStores(config.Store.BaseURL)
	case StoreSQLite:
		return s.provisionSqliteStores(config.Store.DSN)
	}
	return fmt.Errorf("unknown store.vendor %q", config.Store.Vendor)
}

func (s *Service) provisionFsStores(baseURL string) error {
	var err error
	if s.policyStore, err = fsstore.New(baseURL, policy.Schema()); err != nil {
		return err
	}
	if s.approvalStore, err = fsstore.New(baseURL, approval.Schema()); err != nil {
		return err
	}
	if s.executionStore, err = fsstore.New(baseURL, ledger.Schema()); err != nil {
		return err
	}
	if s.auditStore, err = fsstore.New(baseURL, audit.Schema()); err != nil {
		return err
	}
	return nil
}

func (s *Service) provisionSqliteStores(dsn string) error {
	db, err := sqlitestore.Open(dsn)
	if err != nil {
		return err
	}
	s.db = db
	if s.policyStore, err = sqlitestore.New(db, policy.Schema()); err != nil {
		return err
	}
	if s.approvalStore, err = sqlitestore.New(db, approval.Schema()); err != nil {
		return err
	}
	if s.executionStore, err = sqlitestore.New(db, ledger.Schema()); err != nil {
		return err
	}
	if s.auditStore, err = sqlitestore.New(db, audit.Schema()); err != nil {
		return err
	}
	return nil
}

func (s *Service) seedPolicies(ctx context.Context, URL string) error {
	data, err := afs.New().DownloadWithURL(ctx, URL)
	if err != nil {
		return fmt.Errorf("loading policy seed from %v: %w", URL, err)
	}
	var definitions []*policy.UpsertInput
	if err := yaml.Unmarshal(data, &definitions); err != nil {
		return fmt.Errorf("decoding policy seed from %v: %w", URL, err)
	}
	return s.policies.Seed(ctx, definitions)
}

// AuditQueue exposes the queue appended audit events fan out to, for
// consumers such as notification bridges.
func (s *Service) AuditQueue() messaging.Queue[audit.Event] {
	return s.auditQueue
}

// ApprovalQueue exposes the queue approval lifecycle events fan out to.
func (s *Service) ApprovalQueue() messaging.Queue[approval.Event] {
	return s.approvalQueue
}

// LedgerQueue exposes the queue recorded executions fan out to.
func (s *Service) LedgerQueue() messaging.Queue[ledger.Event] {
	return s.ledgerQueue
}

// Close releases resources held by store adapters.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// UpsertPolicy creates or updates a policy by handle.
func (s *Service) UpsertPolicy(ctx context.Context, input *policy.UpsertInput) (*policy.Policy, error) {
	ctx, span := tracing.StartSpan(ctx, "control.policy.upsert")
	ret, err := s.policies.Upsert(ctx, input)
	tracing.EndSpan(span, err)
	return ret, err
}

// Policies lists configured policies.
func (s *Service) Policies(ctx context.Context, input policy.ListInput) ([]*policy.Policy, error) {
	ctx, span := tracing.StartSpan(ctx, "control.policy.list")
	ret, err := s.policies.List(ctx, input)
	tracing.EndSpan(span, err)
	return ret, err
}

// ResolvePolicyForAction resolves the policy governing an action type,
// falling back to the built-in fail-safe default.
func (s *Service) ResolvePolicyForAction(ctx context.Context, actionType string) (*policy.Policy, error) {
	ctx, span := tracing.StartSpan(ctx, "control.policy.resolve")
	ret, err := s.policies.Resolve(ctx, actionType)
	tracing.EndSpan(span, err)
	return ret, err
}

// RequestApproval creates a pending approval, idempotent on the optional
// idempotency key.
func (s *Service) RequestApproval(ctx context.Context, input *approval.RequestInput) (*approval.Approval, error) {
	ctx, span := tracing.StartSpan(ctx, "control.approval.request")
	ret, err := s.approvals.Request(ctx, input)
	tracing.EndSpan(span, err)
	return ret, err
}

// DecideApproval transitions a pending approval to approved or rejected;
// repeated decisions are no-ops.
func (s *Service) DecideApproval(ctx context.Context, id, decision, decisionReason string) (*approval.Approval, error) {
	ctx, span := tracing.StartSpan(ctx, "control.approval.decide")
	ret, err := s.approvals.Decide(ctx, id, decision, decisionReason)
	tracing.EndSpan(span, err)
	return ret, err
}

// Approvals lists approvals.
func (s *Service) Approvals(ctx context.Context, input approval.ListInput) ([]*approval.Approval, error) {
	ctx, span := tracing.StartSpan(ctx, "control.approval.list")
	ret, err := s.approvals.List(ctx, input)
	tracing.EndSpan(span, err)
	return ret, err
}

// ExecuteAction records one action execution, at most once per idempotency
// key.
func (s *Service) ExecuteAction(ctx context.Context, input *ledger.ExecuteInput) (*ledger.Execution, error) {
	ctx, span := tracing.StartSpan(ctx, "control.execution.record")
	ret, err := s.executions.Execute(ctx, input)
	tracing.EndSpan(span, err)
	return ret, err
}

// Executions lists recorded executions.
func (s *Service) Executions(ctx context.Context, input ledger.ListInput) ([]*ledger.Execution, error) {
	ctx, span := tracing.StartSpan(ctx, "control.execution.list")
	ret, err := s.executions.List(ctx, input)
	tracing.EndSpan(span, err)
	return ret, err
}

// AuditEvents lists the audit trail.
func (s *Service) AuditEvents(ctx context.Context, input audit.ListInput) ([]*audit.Event, error) {
	ctx, span := tracing.StartSpan(ctx, "control.audit.list")
	ret, err := s.auditor.List(ctx, input)
	tracing.EndSpan(span, err)
	return ret, err
}

// Summary aggregates control plane counters.
type Summary struct {
	TotalPolicies       int `json:"totalPolicies"`
	PendingApprovals    int `json:"pendingApprovals"`
	BlockedExecutions   int `json:"blockedExecutions"`
	SucceededExecutions int `json:"succeededExecutions"`
	TotalAuditEvents    int `json:"totalAuditEvents"`
}

// Snapshot combines the summary with the first page of each collection.
type Snapshot struct {
	Summary    *Summary            `json:"summary"`
	Policies   []*policy.Policy    `json:"policies"`
	Approvals  []*approval.Approval `json:"approvals"`
	Executions []*ledger.Execution `json:"executions"`
	Audit      []*audit.Event      `json:"audit"`
}

// GetSummary returns the control plane counters.
func (s *Service) GetSummary(ctx context.Context) (*Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "control.summary")
	ret, err := s.summary(ctx)
	tracing.EndSpan(span, err)
	return ret, err
}

func (s *Service) summary(ctx context.Context) (*Summary, error) {
	ret := &Summary{}
	var err error
	if ret.TotalPolicies, err = s.policies.Count(ctx); err != nil {
		return nil, err
	}
	if ret.PendingApprovals, err = s.approvals.PendingCount(ctx); err != nil {
		return nil, err
	}
	if ret.BlockedExecutions, err = s.executions.CountByStatus(ctx, ledger.StatusBlocked); err != nil {
		return nil, err
	}
	if ret.SucceededExecutions, err = s.executions.CountByStatus(ctx, ledger.StatusSucceeded); err != nil {
		return nil, err
	}
	if ret.TotalAuditEvents, err = s.auditor.Count(ctx); err != nil {
		return nil, err
	}
	return ret, nil
}

// GetSnapshot returns the summary plus the first page of policies,
// approvals, executions and audit events.
func (s *Service) GetSnapshot(ctx context.Context) (*Snapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "control.snapshot")
	ret, err := s.snapshot(ctx)
	tracing.EndSpan(span, err)
	return ret, err
}

func (s *Service) snapshot(ctx context.Context) (*Snapshot, error) {
	summary, err := s.summary(ctx)
	if err != nil {
		return nil, err
	}
	ret := &Snapshot{Summary: summary}
	if ret.Policies, err = s.policies.List(ctx, policy.ListInput{}); err != nil {
		return nil, err
	}
	if ret.Approvals, err = s.approvals.List(ctx, approval.ListInput{}); err != nil {
		return nil, err
	}
	if ret.Executions, err = s.executions.List(ctx, ledger.ListInput{}); err != nil {
		return nil, err
	}
	if ret.Audit, err = s.auditor.List(ctx, audit.ListInput{}); err != nil {
		return nil, err
	}
	return ret, nil
}
