package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom/aggregate/snapshot"
	"loom/eventing"
	"loom/processing"
)

type accountOpened struct {
	Owner string `json:"owner"`
}

type moneyDeposited struct {
	Amount int64 `json:"amount"`
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestRegistry(t *testing.T) *eventing.PayloadRegistry {
	t.Helper()
	registry := eventing.NewPayloadRegistry()
	require.NoError(t, eventing.RegisterPayload[accountOpened](registry, "account.opened"))
	require.NoError(t, eventing.RegisterPayload[moneyDeposited](registry, "account.deposited"))
	return registry
}

func newTestEventStore(t *testing.T) *EventStore {
	t.Helper()
	s, err := NewEventStore(newTestDB(t), newTestRegistry(t))
	require.NoError(t, err)
	return s
}

func TestEventStoreSaveAndLoadRoundTrip(t *testing.T) {
	s := newTestEventStore(t)
	ctx := context.Background()

	events := []eventing.Event{
		eventing.NewEvent("acc-1", 1, accountOpened{Owner: "alice"}, "corr-1", "cmd-1"),
		eventing.NewEvent("acc-1", 2, moneyDeposited{Amount: 50}, "corr-1", "cmd-2"),
	}
	require.NoError(t, s.SaveEvents(ctx, events, 0))

	loaded, err := s.LoadEvents(ctx, "acc-1", 0)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, events[0].ID, loaded[0].ID)
	assert.Equal(t, accountOpened{Owner: "alice"}, loaded[0].Payload)
	assert.Equal(t, moneyDeposited{Amount: 50}, loaded[1].Payload)
	assert.Equal(t, "corr-1", loaded[1].CorrelationID)
	assert.Equal(t, "cmd-2", loaded[1].CausationID)
	assert.WithinDuration(t, events[0].Timestamp, loaded[0].Timestamp, time.Microsecond)
}

func TestEventStoreLoadAfterVersion(t *testing.T) {
	s := newTestEventStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveEvents(ctx, []eventing.Event{
		eventing.NewEvent("acc-1", 1, accountOpened{Owner: "alice"}, "", ""),
		eventing.NewEvent("acc-1", 2, moneyDeposited{Amount: 10}, "", ""),
		eventing.NewEvent("acc-1", 3, moneyDeposited{Amount: 20}, "", ""),
	}, 0))

	loaded, err := s.LoadEvents(ctx, "acc-1", 1)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, int64(2), loaded[0].SequenceNumber)
	assert.Equal(t, int64(3), loaded[1].SequenceNumber)
}

func TestEventStoreConcurrencyConflict(t *testing.T) {
	s := newTestEventStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveEvents(ctx, []eventing.Event{
		eventing.NewEvent("acc-1", 1, accountOpened{Owner: "alice"}, "", ""),
	}, 0))

	// Stale writer still believes the stream is empty.
	err := s.SaveEvents(ctx, []eventing.Event{
		eventing.NewEvent("acc-1", 1, moneyDeposited{Amount: 10}, "", ""),
	}, 0)
	require.Error(t, err)
	require.True(t, eventing.IsConcurrencyError(err))

	var conflict *eventing.ConcurrencyError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "acc-1", conflict.AggregateID)
	assert.Equal(t, int64(0), conflict.ExpectedVersion)
	assert.Equal(t, int64(1), conflict.ActualVersion)

	// The conflicting batch must not have been written.
	loaded, err := s.LoadEvents(ctx, "acc-1", 0)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestEventStoreLoadAllKeepsGlobalOrder(t *testing.T) {
	s := newTestEventStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveEvents(ctx, []eventing.Event{
		eventing.NewEvent("acc-1", 1, accountOpened{Owner: "alice"}, "", ""),
	}, 0))
	require.NoError(t, s.SaveEvents(ctx, []eventing.Event{
		eventing.NewEvent("acc-2", 1, accountOpened{Owner: "bob"}, "", ""),
	}, 0))
	require.NoError(t, s.SaveEvents(ctx, []eventing.Event{
		eventing.NewEvent("acc-1", 2, moneyDeposited{Amount: 10}, "", ""),
	}, 1))

	all, err := s.LoadAllEvents(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "acc-1", all[0].AggregateID)
	assert.Equal(t, "acc-2", all[1].AggregateID)
	assert.Equal(t, "acc-1", all[2].AggregateID)
	assert.Equal(t, int64(2), all[2].SequenceNumber)
}

func TestEventStoreRewritePreservesIdentity(t *testing.T) {
	s := newTestEventStore(t)
	ctx := context.Background()

	original := eventing.NewEvent("acc-1", 1, moneyDeposited{Amount: 10}, "corr-1", "cmd-1")
	require.NoError(t, s.SaveEvents(ctx, []eventing.Event{original}, 0))

	rewritten := original
	rewritten.Payload = moneyDeposited{Amount: 99}
	require.NoError(t, s.RewriteEvents(ctx, []eventing.Event{rewritten}))

	loaded, err := s.LoadEvents(ctx, "acc-1", 0)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, original.ID, loaded[0].ID)
	assert.Equal(t, int64(1), loaded[0].SequenceNumber)
	assert.Equal(t, moneyDeposited{Amount: 99}, loaded[0].Payload)
}

func TestEventStoreRewriteUnknownEventFails(t *testing.T) {
	s := newTestEventStore(t)
	ctx := context.Background()

	err := s.RewriteEvents(ctx, []eventing.Event{
		eventing.NewEvent("acc-1", 1, moneyDeposited{Amount: 10}, "", ""),
	})
	require.Error(t, err)
}

func TestEventStoreEmptyBatchIsNoop(t *testing.T) {
	s := newTestEventStore(t)
	require.NoError(t, s.SaveEvents(context.Background(), nil, 0))
}

func testSnapshot(id string, version int64) snapshot.Snapshot {
	return snapshot.Snapshot{
		AggregateID:   id,
		AggregateType: "account",
		Version:       version,
		TakenAt:       time.Now().UTC(),
		State:         []byte(`{"balance":10}`),
	}
}

func TestSnapshotStoreSingleModeKeepsLatestOnly(t *testing.T) {
	s, err := NewSnapshotStore(newTestDB(t), snapshot.ModeSingle)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testSnapshot("acc-1", 5)))
	require.NoError(t, s.Save(ctx, testSnapshot("acc-1", 10)))

	got, err := s.Load(ctx, "acc-1", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Version)

	// The older version is gone in single mode.
	_, err = s.Load(ctx, "acc-1", 5)
	require.ErrorIs(t, err, snapshot.ErrSnapshotNotFound)
}

func TestSnapshotStoreVersionedModeLoadsByMaxVersion(t *testing.T) {
	s, err := NewSnapshotStore(newTestDB(t), snapshot.ModeVersioned)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testSnapshot("acc-1", 5)))
	require.NoError(t, s.Save(ctx, testSnapshot("acc-1", 10)))
	require.NoError(t, s.Save(ctx, testSnapshot("acc-1", 15)))

	got, err := s.Load(ctx, "acc-1", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(15), got.Version)

	got, err = s.Load(ctx, "acc-1", 12)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Version)

	_, err = s.Load(ctx, "acc-1", 4)
	require.ErrorIs(t, err, snapshot.ErrSnapshotNotFound)
}

func TestSnapshotStoreListAggregateIDs(t *testing.T) {
	s, err := NewSnapshotStore(newTestDB(t), snapshot.ModeVersioned)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testSnapshot("acc-2", 1)))
	require.NoError(t, s.Save(ctx, testSnapshot("acc-1", 1)))
	require.NoError(t, s.Save(ctx, testSnapshot("acc-1", 2)))

	other := testSnapshot("ord-1", 1)
	other.AggregateType = "order"
	require.NoError(t, s.Save(ctx, other))

	ids, err := s.ListAggregateIDs(ctx, "account")
	require.NoError(t, err)
	assert.Equal(t, []string{"acc-1", "acc-2"}, ids)
}

func TestSnapshotStoreDelete(t *testing.T) {
	s, err := NewSnapshotStore(newTestDB(t), snapshot.ModeVersioned)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testSnapshot("acc-1", 1)))
	require.NoError(t, s.Save(ctx, testSnapshot("acc-1", 2)))
	require.NoError(t, s.Delete(ctx, "acc-1"))

	_, err = s.Load(ctx, "acc-1", 0)
	require.ErrorIs(t, err, snapshot.ErrSnapshotNotFound)
}

func TestCheckpointStoreRoundTrip(t *testing.T) {
	s, err := NewCheckpointStore(newTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	_, found, err := s.Load(ctx, "balances")
	require.NoError(t, err)
	assert.False(t, found)

	cp := processing.NewCheckpoint("balances")
	cp.MarkProcessed("acc-1", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), 4)
	cp.MarkProcessed("acc-2", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), 2)
	require.NoError(t, s.Save(ctx, cp))

	got, found, err := s.Load(ctx, "balances")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "balances", got.ProcessorName)
	assert.True(t, got.Processed("acc-1"))
	assert.True(t, got.Processed("acc-2"))
	assert.False(t, got.Processed("acc-3"))
	assert.Equal(t, int64(6), got.EventsProcessed)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), got.MaxTimestamp)
}

func TestCheckpointStoreSaveOverwrites(t *testing.T) {
	s, err := NewCheckpointStore(newTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	cp := processing.NewCheckpoint("balances")
	cp.MarkProcessed("acc-1", time.Now().UTC(), 1)
	require.NoError(t, s.Save(ctx, cp))

	cp.MarkProcessed("acc-2", time.Now().UTC(), 3)
	require.NoError(t, s.Save(ctx, cp))

	got, found, err := s.Load(ctx, "balances")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(4), got.EventsProcessed)
	assert.Len(t, got.ProcessedAggregateIDs, 2)
}

func TestIdempotencyStoreSeenAfterRecord(t *testing.T) {
	s, err := NewIdempotencyStore(newTestDB(t), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := s.Seen(ctx, "key-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.Record(ctx, "key-1"))

	seen, err = s.Seen(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = s.Seen(ctx, "key-2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotencyStoreExpiredKeyNotSeen(t *testing.T) {
	s, err := NewIdempotencyStore(newTestDB(t), 10*time.Millisecond)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, "key-1"))
	time.Sleep(30 * time.Millisecond)

	seen, err := s.Seen(ctx, "key-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestStoresRequireDB(t *testing.T) {
	_, err := NewEventStore(nil, newTestRegistry(t))
	require.Error(t, err)
	_, err = NewSnapshotStore(nil, snapshot.ModeSingle)
	require.Error(t, err)
	_, err = NewCheckpointStore(nil)
	require.Error(t, err)
	_, err = NewIdempotencyStore(nil, 0)
	require.Error(t, err)
	_, err = NewEventStore(newTestDB(t), nil)
	require.Error(t, err)
}
