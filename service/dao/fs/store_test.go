package fs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/warden/service/dao"
)

type record struct {
	ID        string    `json:"id"`
	Key       string    `json:"key,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func recordSchema() dao.Schema[record] {
	return dao.Schema[record]{
		Name: "records",
		Key:  func(r *record) string { return r.ID },
		Uniques: map[string]func(*record) string{
			"key": func(r *record) string { return r.Key },
		},
		Fields: func(r *record) map[string]string {
			return map[string]string{"status": r.Status}
		},
		CreatedAt: func(r *record) time.Time { return r.CreatedAt },
	}
}

func newTestStore(t *testing.T) *Store[record] {
	t.Helper()
	base := fmt.Sprintf("mem://localhost/warden/%v", time.Now().UnixNano())
	store, err := New[record](base, recordSchema())
	require.NoError(t, err)
	return store
}

func TestStore_InsertAndReplay(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := &record{ID: "1", Key: "idem-1", Status: "succeeded", CreatedAt: time.Now().UTC()}
	stored, created, err := store.Insert(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "1", stored.ID)

	duplicate := &record{ID: "2", Key: "idem-1", Status: "succeeded", CreatedAt: time.Now().UTC()}
	stored, created, err = store.Insert(ctx, duplicate)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "1", stored.ID)

	byKey, err := store.LoadBy(ctx, "key", "idem-1")
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, "1", byKey.ID)
}

func TestStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Save(ctx, &record{ID: "1", Status: "pending", CreatedAt: time.Now().UTC()}))
	loaded, err := store.Load(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "pending", loaded.Status)

	loaded.Status = "approved"
	require.NoError(t, store.Save(ctx, loaded))
	reloaded, err := store.Load(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "approved", reloaded.Status)

	require.NoError(t, store.Delete(ctx, "1"))
	assert.ErrorIs(t, store.Delete(ctx, "1"), dao.ErrNotFound)
	gone, err := store.Load(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestStore_ListOrdering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		row := &record{
			ID:        fmt.Sprintf("id-%d", i),
			Key:       fmt.Sprintf("k-%d", i),
			Status:    "pending",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		_, created, err := store.Insert(ctx, row)
		require.NoError(t, err)
		require.True(t, created)
	}

	listed, err := store.List(ctx, dao.NewLimit(3))
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "id-3", listed[0].ID)
	assert.Equal(t, "id-1", listed[2].ID)

	count, err := store.Count(ctx, dao.NewParameter("status", "pending"))
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
