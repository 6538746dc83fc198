package snapshot_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alebrije/pos/internal/domain"
	"github.com/alebrije/pos/internal/draft"
	"github.com/alebrije/pos/internal/metrics"
	"github.com/alebrije/pos/internal/service/snapshot"
	"github.com/alebrije/pos/internal/storage/memory"
)

func TestWriter_PersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKeyValueStore()
	writer := snapshot.NewWriter(kv)
	store := draft.NewStore(draft.WithObserver(writer))

	first, err := store.Create(nil)
	require.NoError(t, err)
	second, err := store.Create(nil)
	require.NoError(t, err)

	price := decimal.RequireFromString("12.50")
	_, err = store.AddItem(second.ID, domain.LineItem{ProductID: 4, SizeID: 1, ColorID: 2, Quantity: 2, UnitPrice: &price})
	require.NoError(t, err)
	require.NoError(t, store.Discard(first.ID))

	writer.Flush(ctx)

	entries, err := kv.List(ctx, snapshot.DraftKeyPrefix)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Contains(t, entries, snapshot.DraftKey(second.ID))
	active, err := kv.Get(ctx, snapshot.ActiveDraftKey)
	require.NoError(t, err)
	require.Equal(t, second.ID, string(active))

	restored := draft.NewStore()
	n, err := snapshot.Restore(ctx, kv, restored, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, ok := restored.Active()
	require.True(t, ok)
	require.Equal(t, second.ID, got.ID)
	require.Equal(t, second.OrderNumber, got.OrderNumber)
	require.True(t, got.Total.Equal(decimal.NewFromInt(25)))
	require.Len(t, got.Items, 1)
}

func TestWriter_ClearingActiveDeletesKey(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKeyValueStore()
	writer := snapshot.NewWriter(kv)
	store := draft.NewStore(draft.WithObserver(writer))

	d, err := store.Create(nil)
	require.NoError(t, err)
	writer.Flush(ctx)

	_, err = kv.Get(ctx, snapshot.ActiveDraftKey)
	require.NoError(t, err)

	store.DiscardAll()
	writer.Flush(ctx)

	_, err = kv.Get(ctx, snapshot.ActiveDraftKey)
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
	_, err = kv.Get(ctx, snapshot.DraftKey(d.ID))
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestWriter_FullQueueDropsWithoutBlocking(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewPOSMetricsWithRegisterer(reg)
	writer := snapshot.NewWriter(memory.NewKeyValueStore(), snapshot.WithQueueSize(1), snapshot.WithMetrics(m))
	store := draft.NewStore(draft.WithObserver(writer), draft.WithMaxDrafts(0))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_, _ = store.Create(nil)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("draft mutations blocked on snapshot queue")
	}
	require.Equal(t, 10, store.Count())
}

type failingKV struct {
	domain.KeyValueStore
}

func (failingKV) Set(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestWriter_WriteErrorsAreSwallowed(t *testing.T) {
	writer := snapshot.NewWriter(failingKV{KeyValueStore: memory.NewKeyValueStore()})
	store := draft.NewStore(draft.WithObserver(writer))

	_, err := store.Create(nil)
	require.NoError(t, err)
	writer.Flush(context.Background())
}

func TestWriter_RunDrainsOnCancel(t *testing.T) {
	kv := memory.NewKeyValueStore()
	writer := snapshot.NewWriter(kv)
	store := draft.NewStore(draft.WithObserver(writer))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		writer.Run(ctx)
		close(done)
	}()

	d, err := store.Create(nil)
	require.NoError(t, err)
	cancel()
	<-done

	_, err = kv.Get(context.Background(), snapshot.DraftKey(d.ID))
	require.NoError(t, err)
}

func TestWriter_RunCancelledBeforeStartStillPersists(t *testing.T) {
	kv := memory.NewKeyValueStore()
	writer := snapshot.NewWriter(kv)
	store := draft.NewStore(draft.WithObserver(writer), draft.WithMaxDrafts(0))

	ids := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		d, err := store.Create(nil)
		require.NoError(t, err)
		ids = append(ids, d.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	writer.Run(ctx)

	entries, err := kv.List(context.Background(), snapshot.DraftKeyPrefix)
	require.NoError(t, err)
	require.Len(t, entries, len(ids))
	for _, id := range ids {
		require.Contains(t, entries, snapshot.DraftKey(id))
	}
	active, err := kv.Get(context.Background(), snapshot.ActiveDraftKey)
	require.NoError(t, err)
	require.Equal(t, ids[len(ids)-1], string(active))
}

// gateKV задерживает первую запись, пока тест не откроет release.
type gateKV struct {
	domain.KeyValueStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gateKV) Set(ctx context.Context, key string, value []byte) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.KeyValueStore.Set(ctx, key, value)
}

func TestWriter_CancelDuringWriteKeepsWrite(t *testing.T) {
	kv := &gateKV{KeyValueStore: memory.NewKeyValueStore(), entered: make(chan struct{}), release: make(chan struct{})}
	writer := snapshot.NewWriter(kv)
	store := draft.NewStore(draft.WithObserver(writer))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		writer.Run(ctx)
		close(done)
	}()

	d, err := store.Create(nil)
	require.NoError(t, err)

	<-kv.entered
	cancel()
	close(kv.release)
	<-done

	_, err = kv.Get(context.Background(), snapshot.DraftKey(d.ID))
	require.NoError(t, err)
	active, err := kv.Get(context.Background(), snapshot.ActiveDraftKey)
	require.NoError(t, err)
	require.Equal(t, d.ID, string(active))
}

func TestRestore_DraftNamedLikeActivePointer(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKeyValueStore()
	require.NoError(t, kv.Set(ctx, snapshot.DraftKey("active"), []byte(`{"id":"active","orderNumber":"ORD-7","status":"in_progress","productos":[]}`)))
	require.NoError(t, kv.Set(ctx, snapshot.ActiveDraftKey, []byte("active")))

	store := draft.NewStore()
	n, err := snapshot.Restore(ctx, kv, store, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, ok := store.Active()
	require.True(t, ok)
	require.Equal(t, "active", got.ID)
	require.Equal(t, "ORD-7", got.OrderNumber)
}

func TestRestore_DeletesSnapshotsOverLimit(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKeyValueStore()
	require.NoError(t, kv.Set(ctx, snapshot.DraftKey("old"), []byte(`{"id":"old","orderNumber":"ORD-1","status":"in_progress","productos":[],"createdAt":"2026-01-01T10:00:00Z"}`)))
	require.NoError(t, kv.Set(ctx, snapshot.DraftKey("new"), []byte(`{"id":"new","orderNumber":"ORD-2","status":"in_progress","productos":[],"createdAt":"2026-01-02T10:00:00Z"}`)))

	store := draft.NewStore(draft.WithMaxDrafts(1))
	n, err := snapshot.Restore(ctx, kv, store, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = store.Get("new")
	require.NoError(t, err)

	_, err = kv.Get(ctx, snapshot.DraftKey("old"))
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
	_, err = kv.Get(ctx, snapshot.DraftKey("new"))
	require.NoError(t, err)

	again := draft.NewStore(draft.WithMaxDrafts(1))
	n, err = snapshot.Restore(ctx, kv, again, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRestore_SkipsCorruptSnapshots(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKeyValueStore()
	require.NoError(t, kv.Set(ctx, snapshot.DraftKey("bad"), []byte("{not json")))
	require.NoError(t, kv.Set(ctx, snapshot.DraftKey("good"), []byte(`{"id":"good","orderNumber":"ORD-1","status":"in_progress","productos":[]}`)))
	require.NoError(t, kv.Set(ctx, snapshot.ActiveDraftKey, []byte("bad")))

	store := draft.NewStore()
	n, err := snapshot.Restore(ctx, kv, store, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, ok := store.Active()
	require.False(t, ok)
	_, err = store.Get("good")
	require.NoError(t, err)

	_, err = kv.Get(ctx, snapshot.DraftKey("bad"))
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
}
