package audit

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/warden/internal/clock"
	"github.com/viant/warden/service/dao/store"
	qmem "github.com/viant/warden/service/messaging/memory"
)

func newTestService(options ...Option) *Service {
	return New(store.NewMemoryStore[Event](Schema()), options...)
}

func TestService_AppendDefaultsAndClamping(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name   string
		event  Event
		verify func(t *testing.T, stored *Event)
	}{
		{
			name:  "blank fields get fallbacks",
			event: Event{Summary: "policy created"},
			verify: func(t *testing.T, stored *Event) {
				assert.Equal(t, "control", stored.Category)
				assert.Equal(t, "event", stored.Action)
				assert.Equal(t, OutcomeInfo, stored.Outcome)
				assert.Equal(t, "system", stored.ActorType)
				assert.Equal(t, "system", stored.ActorID)
				assert.NotEmpty(t, stored.ID)
				assert.False(t, stored.CreatedAt.IsZero())
			},
		},
		{
			name:  "invalid outcome clamps to info",
			event: Event{Category: "control.policy", Action: "upsert", Outcome: Outcome("catastrophic")},
			verify: func(t *testing.T, stored *Event) {
				assert.Equal(t, OutcomeInfo, stored.Outcome)
			},
		},
		{
			name: "oversize strings truncate",
			event: Event{
				Category: strings.Repeat("c", 200),
				Summary:  strings.Repeat("s", 1000),
				ActorID:  strings.Repeat("a", 300),
			},
			verify: func(t *testing.T, stored *Event) {
				assert.Len(t, stored.Category, 64)
				assert.Len(t, stored.Summary, 512)
				assert.Len(t, stored.ActorID, 128)
			},
		},
		{
			name: "truncation keeps valid utf8",
			event: Event{
				Summary: strings.Repeat("s", 510) + "héllo",
			},
			verify: func(t *testing.T, stored *Event) {
				assert.True(t, utf8.ValidString(stored.Summary))
				assert.Equal(t, strings.Repeat("s", 510)+"h", stored.Summary)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			service := newTestService()
			id, err := service.Append(ctx, &tc.event)
			require.NoError(t, err)
			require.NotEmpty(t, id)

			listed, err := service.List(ctx, ListInput{})
			require.NoError(t, err)
			require.Len(t, listed, 1)
			tc.verify(t, listed[0])
		})
	}
}

func TestService_AppendUnprovisioned(t *testing.T) {
	ctx := context.Background()
	service := New(nil)

	id, err := service.Append(ctx, &Event{Category: "control.policy"})
	require.NoError(t, err)
	assert.Empty(t, id)

	listed, err := service.List(ctx, ListInput{})
	require.NoError(t, err)
	assert.Empty(t, listed)

	count, err := service.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestService_AppendPublishes(t *testing.T) {
	ctx := context.Background()
	queue := qmem.NewQueue[Event](qmem.DefaultConfig())
	service := newTestService(WithQueue(queue))

	_, err := service.Append(ctx, &Event{Category: "control.approval", Action: "request"})
	require.NoError(t, err)
	require.Equal(t, 1, queue.Size())

	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "control.approval", message.T().Category)
}

func TestService_ListFiltersAndLimit(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	frozen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock.NowFunc = func() time.Time { frozen = frozen.Add(time.Second); return frozen }
	defer func() { clock.NowFunc = func() time.Time { return time.Now().UTC() } }()

	categories := []string{"control.policy", "control.approval", "control.execution"}
	for i := 0; i < 9; i++ {
		_, err := service.Append(ctx, &Event{
			Category: categories[i%3],
			Action:   "record",
			Outcome:  OutcomeSuccess,
			ActorID:  "agent-7",
		})
		require.NoError(t, err)
	}

	byCategory, err := service.List(ctx, ListInput{Category: "control.policy"})
	require.NoError(t, err)
	assert.Len(t, byCategory, 3)

	limited, err := service.List(ctx, ListInput{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	// newest first
	assert.True(t, limited[0].CreatedAt.After(limited[1].CreatedAt))

	capped, err := service.List(ctx, ListInput{Limit: 100000})
	require.NoError(t, err)
	assert.Len(t, capped, 9)

	count, err := service.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, count)
}
