package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/warden/faults"
	"github.com/viant/warden/service/audit"
	"github.com/viant/warden/service/dao/store"
)

func newTestService() (*Service, *audit.Service) {
	auditor := audit.New(store.NewMemoryStore(audit.Schema()))
	return New(store.NewMemoryStore(Schema()), auditor), auditor
}

func TestService_Upsert(t *testing.T) {
	service, auditor := newTestService()
	ctx := context.Background()

	created, err := service.Upsert(ctx, &UpsertInput{
		Handle:           " Content-Publish ",
		DisplayName:      "Publish content",
		ActionPattern:    "content.publish.*",
		RequiresApproval: "yes",
		RiskLevel:        "HIGH",
		Config:           map[string]interface{}{"requiredScope": "content:publish", "retries": 3},
	})
	assert.Nil(t, err)
	assert.Equal(t, "content-publish", created.Handle)
	assert.Equal(t, "content.publish.*", created.ActionPattern)
	assert.True(t, created.RequiresApproval)
	assert.True(t, created.Enabled, "enabled defaults to true when omitted")
	assert.Equal(t, RiskHigh, created.RiskLevel)
	assert.Equal(t, "content:publish", created.RequiredScope())
	assert.EqualValues(t, 3.0, created.Config["retries"])

	// same handle updates in place and keeps the identity
	updated, err := service.Upsert(ctx, &UpsertInput{
		Handle:           "content-publish",
		ActionPattern:    "content.*",
		RequiresApproval: 0,
		Enabled:          "false",
		RiskLevel:        "low",
	})
	assert.Nil(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "content.*", updated.ActionPattern)
	assert.False(t, updated.RequiresApproval)
	assert.False(t, updated.Enabled)
	assert.Equal(t, RiskLow, updated.RiskLevel)
	assert.Equal(t, DefaultRequiredScope, updated.RequiredScope())

	count, err := service.Count(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 1, count)

	events, err := auditor.List(ctx, audit.ListInput{Category: "control.policy"})
	assert.Nil(t, err)
	if assert.Equal(t, 2, len(events)) {
		assert.Equal(t, "upsert", events[0].Action)
		assert.Equal(t, "create", events[1].Action)
	}
}

func TestService_UpsertValidation(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()

	_, err := service.Upsert(ctx, nil)
	assert.True(t, faults.IsValidation(err))

	_, err = service.Upsert(ctx, &UpsertInput{Handle: "!!!", ActionPattern: "*"})
	assert.True(t, faults.IsValidation(err))

	_, err = service.Upsert(ctx, &UpsertInput{Handle: "ok", ActionPattern: "   "})
	assert.True(t, faults.IsValidation(err))

	unprovisioned := New(nil, nil)
	_, err = unprovisioned.Upsert(ctx, &UpsertInput{Handle: "ok", ActionPattern: "*"})
	assert.True(t, errors.Is(err, faults.ErrStorageUnavailable))
}

func TestService_Resolve(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()

	seed := []*UpsertInput{
		{Handle: "catch-all", ActionPattern: "*", RiskLevel: "low"},
		{Handle: "publish", ActionPattern: "content.publish.*", RiskLevel: "high", RequiresApproval: true},
		{Handle: "publish-entry", ActionPattern: "content.publish.entry", RiskLevel: "critical"},
	}
	assert.Nil(t, service.Seed(ctx, seed))

	// longest matching pattern wins
	resolved, err := service.Resolve(ctx, "content.publish.entry")
	assert.Nil(t, err)
	assert.Equal(t, "publish-entry", resolved.Handle)

	resolved, err = service.Resolve(ctx, "content.publish.asset")
	assert.Nil(t, err)
	assert.Equal(t, "publish", resolved.Handle)

	resolved, err = service.Resolve(ctx, "billing.refund")
	assert.Nil(t, err)
	assert.Equal(t, "catch-all", resolved.Handle)
}

func TestService_ResolveTieBreak(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()

	assert.Nil(t, service.Seed(ctx, []*UpsertInput{
		{Handle: "zeta", ActionPattern: "content.*.entry"},
		{Handle: "alpha", ActionPattern: "content.publish.*"},
	}))

	// equal pattern length: ascending handle wins
	resolved, err := service.Resolve(ctx, "content.publish.entry")
	assert.Nil(t, err)
	assert.Equal(t, "alpha", resolved.Handle)
}

func TestService_ResolveDefault(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()

	resolved, err := service.Resolve(ctx, "anything.at.all")
	assert.Nil(t, err)
	assert.Equal(t, DefaultHandle, resolved.Handle)
	assert.True(t, resolved.RequiresApproval)
	assert.True(t, resolved.Enabled)
	assert.Equal(t, RiskHigh, resolved.RiskLevel)
	assert.Equal(t, DefaultRequiredScope, resolved.RequiredScope())

	// nil store resolves fail-safe too
	unprovisioned := New(nil, nil)
	resolved, err = unprovisioned.Resolve(ctx, "anything")
	assert.Nil(t, err)
	assert.Equal(t, DefaultHandle, resolved.Handle)
}

func TestService_List(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()

	assert.Nil(t, service.Seed(ctx, []*UpsertInput{
		{Handle: "a", ActionPattern: "a.*", RiskLevel: "low"},
		{Handle: "b", ActionPattern: "b.*", RiskLevel: "high", Enabled: false},
		{Handle: "c", ActionPattern: "c.*", RiskLevel: "high"},
	}))

	all, err := service.List(ctx, ListInput{})
	assert.Nil(t, err)
	assert.Equal(t, 3, len(all))

	high, err := service.List(ctx, ListInput{RiskLevel: "high"})
	assert.Nil(t, err)
	assert.Equal(t, 2, len(high))

	disabled, err := service.List(ctx, ListInput{Enabled: "false"})
	assert.Nil(t, err)
	if assert.Equal(t, 1, len(disabled)) {
		assert.Equal(t, "b", disabled[0].Handle)
	}

	limited, err := service.List(ctx, ListInput{Limit: 2})
	assert.Nil(t, err)
	assert.Equal(t, 2, len(limited))
}
