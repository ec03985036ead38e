package warden

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/afs"
	"github.com/viant/warden/service/actor"
	"github.com/viant/warden/service/approval"
	"github.com/viant/warden/service/audit"
	"github.com/viant/warden/service/ledger"
	"github.com/viant/warden/service/policy"
)

func TestService_EndToEnd(t *testing.T) {
	service := New()
	ctx := actor.WithActor(context.Background(), &actor.Actor{Type: "agent", ID: "agent-1", RequestID: "r-42"})

	// a policy guarding publishes
	upserted, err := service.UpsertPolicy(ctx, &policy.UpsertInput{
		Handle:           "publish-content",
		ActionPattern:    "content.publish.*",
		RequiresApproval: true,
		RiskLevel:        "high",
	})
	assert.Nil(t, err)
	assert.Equal(t, "publish-content", upserted.Handle)

	resolved, err := service.ResolvePolicyForAction(ctx, "content.publish.entry")
	assert.Nil(t, err)
	assert.Equal(t, "publish-content", resolved.Handle)

	// request and replay an approval
	requested, err := service.RequestApproval(ctx, &approval.RequestInput{
		ActionType:     "content.publish.entry",
		IdempotencyKey: "req-123",
	})
	assert.Nil(t, err)
	assert.Equal(t, approval.StatusPending, requested.Status)

	replayed, err := service.RequestApproval(ctx, &approval.RequestInput{
		ActionType:     "content.publish.entry",
		IdempotencyKey: "req-123",
	})
	assert.Nil(t, err)
	assert.Equal(t, requested.ID, replayed.ID)
	assert.True(t, replayed.IdempotentReplay)

	// decide, then verify finality
	decided, err := service.DecideApproval(ctx, requested.ID, "approved", "looks good")
	assert.Nil(t, err)
	assert.Equal(t, approval.StatusApproved, decided.Status)
	again, err := service.DecideApproval(ctx, requested.ID, "rejected", "no")
	assert.Nil(t, err)
	assert.Equal(t, approval.StatusApproved, again.Status)

	// an approved execution succeeds
	recorded, err := service.ExecuteAction(ctx, &ledger.ExecuteInput{
		ActionType:     "content.publish.entry",
		IdempotencyKey: "exec-1",
		ApprovalID:     requested.ID,
	})
	assert.Nil(t, err)
	assert.Equal(t, ledger.StatusSucceeded, recorded.Status)

	// without an approval the same action class is blocked
	blocked, err := service.ExecuteAction(ctx, &ledger.ExecuteInput{
		ActionType:     "content.publish.entry",
		IdempotencyKey: "exec-2",
	})
	assert.Nil(t, err)
	assert.Equal(t, ledger.StatusBlocked, blocked.Status)
	assert.Equal(t, "Approval is required before execution.", blocked.ErrorMessage)

	// replaying the succeeded execution returns the same row
	replayedExec, err := service.ExecuteAction(ctx, &ledger.ExecuteInput{
		ActionType:     "content.publish.entry",
		IdempotencyKey: "exec-1",
		ApprovalID:     requested.ID,
	})
	assert.Nil(t, err)
	assert.Equal(t, recorded.ID, replayedExec.ID)
	assert.True(t, replayedExec.IdempotentReplay)

	summary, err := service.GetSummary(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 1, summary.TotalPolicies)
	assert.Equal(t, 0, summary.PendingApprovals)
	assert.Equal(t, 1, summary.BlockedExecutions)
	assert.Equal(t, 1, summary.SucceededExecutions)
	// policy upsert, approval request + decision, two recorded executions
	assert.Equal(t, 5, summary.TotalAuditEvents)

	snapshot, err := service.GetSnapshot(ctx)
	assert.Nil(t, err)
	assert.Equal(t, summary, snapshot.Summary)
	assert.Equal(t, 1, len(snapshot.Policies))
	assert.Equal(t, 1, len(snapshot.Approvals))
	assert.Equal(t, 2, len(snapshot.Executions))
	assert.Equal(t, 5, len(snapshot.Audit))

	events, err := service.AuditEvents(ctx, audit.ListInput{ActorID: "agent-1"})
	assert.Nil(t, err)
	assert.Equal(t, 5, len(events))
}

func TestNewFromConfig_FsVendor(t *testing.T) {
	ctx := context.Background()
	baseURL := fmt.Sprintf("mem://localhost/warden/e2e/%v", time.Now().UnixNano())

	service, err := NewFromConfig(ctx, &Config{
		Store: StoreConfig{Vendor: StoreFS, BaseURL: baseURL},
	})
	assert.Nil(t, err)
	defer service.Close()

	_, err = service.UpsertPolicy(ctx, &policy.UpsertInput{
		Handle:        "read-only",
		ActionPattern: "catalog.*",
		RiskLevel:     "low",
	})
	assert.Nil(t, err)

	recorded, err := service.ExecuteAction(ctx, &ledger.ExecuteInput{
		ActionType:     "catalog.list.entries",
		IdempotencyKey: "exec-fs-1",
	})
	assert.Nil(t, err)
	assert.Equal(t, ledger.StatusSucceeded, recorded.Status)

	// a fresh service over the same location sees the persisted state
	reopened, err := NewFromConfig(ctx, &Config{
		Store: StoreConfig{Vendor: StoreFS, BaseURL: baseURL},
	})
	assert.Nil(t, err)
	summary, err := reopened.GetSummary(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 1, summary.TotalPolicies)
	assert.Equal(t, 1, summary.SucceededExecutions)
}

func TestNewFromConfig_SqliteVendorConcurrentExecute(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "warden.db")

	service, err := NewFromConfig(ctx, &Config{
		Store: StoreConfig{Vendor: StoreSQLite, DSN: dsn},
	})
	assert.Nil(t, err)
	defer service.Close()

	_, err = service.UpsertPolicy(ctx, &policy.UpsertInput{
		Handle:        "read-only",
		ActionPattern: "catalog.*",
		RiskLevel:     "low",
	})
	assert.Nil(t, err)

	// concurrent writers on one idempotency key settle on a single row
	const writers = 12
	var created int32
	var group sync.WaitGroup
	for i := 0; i < writers; i++ {
		group.Add(1)
		go func() {
			defer group.Done()
			recorded, err := service.ExecuteAction(ctx, &ledger.ExecuteInput{
				ActionType:     "catalog.list.entries",
				IdempotencyKey: "exec-race",
			})
			assert.Nil(t, err)
			if recorded == nil {
				return
			}
			assert.Equal(t, ledger.StatusSucceeded, recorded.Status)
			if !recorded.IdempotentReplay {
				atomic.AddInt32(&created, 1)
			}
		}()
	}
	group.Wait()
	assert.Equal(t, int32(1), created)

	summary, err := service.GetSummary(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 1, summary.SucceededExecutions)
}

func TestNewFromConfig_PolicySeed(t *testing.T) {
	ctx := context.Background()
	seedURL := fmt.Sprintf("mem://localhost/warden/seed/%v.yaml", time.Now().UnixNano())
	seed := `- handle: publish-content
  actionPattern: content.publish.*
  requiresApproval: true
  riskLevel: high
- handle: read-only
  actionPattern: catalog.*
  riskLevel: low
`
	err := afs.New().Upload(ctx, seedURL, 0644, strings.NewReader(seed))
	assert.Nil(t, err)

	service, err := NewFromConfig(ctx, &Config{PolicySeedURL: seedURL})
	assert.Nil(t, err)

	resolved, err := service.ResolvePolicyForAction(ctx, "content.publish.entry")
	assert.Nil(t, err)
	assert.Equal(t, "publish-content", resolved.Handle)
	assert.True(t, resolved.RequiresApproval)

	summary, err := service.GetSummary(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 2, summary.TotalPolicies)
}

func TestConfig_Validate(t *testing.T) {
	assert.Nil(t, DefaultConfig().Validate())
	assert.Nil(t, (&Config{}).Validate())

	invalid := &Config{Store: StoreConfig{Vendor: "postgres"}}
	assert.NotNil(t, invalid.Validate())

	fsMissing := &Config{Store: StoreConfig{Vendor: StoreFS}}
	assert.NotNil(t, fsMissing.Validate())

	sqliteMissing := &Config{Store: StoreConfig{Vendor: StoreSQLite}}
	assert.NotNil(t, sqliteMissing.Validate())
}
