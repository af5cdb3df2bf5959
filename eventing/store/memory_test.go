package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"loom/eventing"
)

type accountOpened struct {
	Owner string
}

type moneyDeposited struct {
	Amount int
}

func makeEvents(aggregateID string, fromVersion int64, payloads ...any) []eventing.Event {
	events := make([]eventing.Event, 0, len(payloads))
	for i, p := range payloads {
		events = append(events, eventing.NewEvent(aggregateID, fromVersion+int64(i)+1, p, "corr-1", "cause-1"))
	}
	return events
}

func TestSaveAndLoadEvents(t *testing.T) {
	s := NewMemoryEventStore()
	ctx := context.Background()

	events := makeEvents("acc-1", 0, accountOpened{Owner: "alice"}, moneyDeposited{Amount: 10})
	require.NoError(t, s.SaveEvents(ctx, events, 0))

	loaded, err := s.LoadEvents(ctx, "acc-1", 0)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, int64(1), loaded[0].SequenceNumber)
	require.Equal(t, accountOpened{Owner: "alice"}, loaded[0].Payload)
}

func TestSaveEmptyBatchIsNoop(t *testing.T) {
	s := NewMemoryEventStore()
	require.NoError(t, s.SaveEvents(context.Background(), nil, 0))

	all, err := s.LoadAllEvents(context.Background())
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestOptimisticConcurrency(t *testing.T) {
	s := NewMemoryEventStore()
	ctx := context.Background()

	require.NoError(t, s.SaveEvents(ctx, makeEvents("acc-1", 0, accountOpened{}), 0))

	// 两个写者基于版本 1 各自追加，后者冲突
	first := makeEvents("acc-1", 1, moneyDeposited{Amount: 1})
	second := makeEvents("acc-1", 1, moneyDeposited{Amount: 2})
	require.NoError(t, s.SaveEvents(ctx, first, 1))

	err := s.SaveEvents(ctx, second, 1)
	require.True(t, eventing.IsConcurrencyError(err))

	var ce *eventing.ConcurrencyError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "acc-1", ce.AggregateID)
	require.Equal(t, int64(1), ce.ExpectedVersion)
	require.Equal(t, int64(2), ce.ActualVersion)
}

func TestLoadEventsAfterVersion(t *testing.T) {
	s := NewMemoryEventStore()
	ctx := context.Background()

	require.NoError(t, s.SaveEvents(ctx, makeEvents("acc-1", 0,
		accountOpened{}, moneyDeposited{Amount: 1}, moneyDeposited{Amount: 2}), 0))

	loaded, err := s.LoadEvents(ctx, "acc-1", 2)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, int64(3), loaded[0].SequenceNumber)
}

func TestLoadUnknownAggregateReturnsEmpty(t *testing.T) {
	s := NewMemoryEventStore()
	loaded, err := s.LoadEvents(context.Background(), "missing", 0)
	require.NoError(t, err)
	require.Empty(t, loaded)
}

func TestSequenceGapRejected(t *testing.T) {
	s := NewMemoryEventStore()
	events := makeEvents("acc-1", 1, moneyDeposited{Amount: 1}) // 序号 2，但期望版本 0
	err := s.SaveEvents(context.Background(), events, 0)
	require.Error(t, err)
}

func TestMixedAggregateBatchRejected(t *testing.T) {
	s := NewMemoryEventStore()
	batch := []eventing.Event{
		eventing.NewEvent("acc-1", 1, accountOpened{}, "", ""),
		eventing.NewEvent("acc-2", 2, accountOpened{}, "", ""),
	}
	err := s.SaveEvents(context.Background(), batch, 0)
	require.Error(t, err)
}

func TestLoadAllEventsGlobalOrder(t *testing.T) {
	s := NewMemoryEventStore()
	ctx := context.Background()

	require.NoError(t, s.SaveEvents(ctx, makeEvents("acc-1", 0, accountOpened{}), 0))
	require.NoError(t, s.SaveEvents(ctx, makeEvents("acc-2", 0, accountOpened{}), 0))
	require.NoError(t, s.SaveEvents(ctx, makeEvents("acc-1", 1, moneyDeposited{Amount: 5}), 1))

	all, err := s.LoadAllEvents(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "acc-1", all[0].AggregateID)
	require.Equal(t, "acc-2", all[1].AggregateID)
	require.Equal(t, "acc-1", all[2].AggregateID)
}

func TestRewriteEvents(t *testing.T) {
	s := NewMemoryEventStore()
	ctx := context.Background()

	events := makeEvents("acc-1", 0, moneyDeposited{Amount: 1})
	require.NoError(t, s.SaveEvents(ctx, events, 0))

	rewritten := events[0].WithPayload(moneyDeposited{Amount: 100})
	require.NoError(t, s.RewriteEvents(ctx, []eventing.Event{rewritten}))

	loaded, err := s.LoadEvents(ctx, "acc-1", 0)
	require.NoError(t, err)
	require.Equal(t, moneyDeposited{Amount: 100}, loaded[0].Payload)
	require.Equal(t, events[0].ID, loaded[0].ID)
}

func TestRewriteRejectsIdentityChange(t *testing.T) {
	s := NewMemoryEventStore()
	ctx := context.Background()

	events := makeEvents("acc-1", 0, moneyDeposited{Amount: 1})
	require.NoError(t, s.SaveEvents(ctx, events, 0))

	impostor := eventing.NewEvent("acc-1", 1, moneyDeposited{Amount: 9}, "", "")
	require.Error(t, s.RewriteEvents(ctx, []eventing.Event{impostor}))

	missing := events[0]
	missing.SequenceNumber = 99
	require.Error(t, s.RewriteEvents(ctx, []eventing.Event{missing}))
}
