package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"loom/eventing"
	"loom/eventing/store"
	"loom/eventing/transport/memory"
	"loom/eventing/upcasting"
	"loom/logging"
)

type balanceChangedV1 struct {
	Delta int
}

type balanceChangedV2 struct {
	DeltaCents int
}

type recordingHandler struct {
	name   string
	events []eventing.Event
	fail   error
}

func (h *recordingHandler) Name() string { return h.name }

func (h *recordingHandler) Handle(ctx context.Context, e eventing.Event) error {
	if h.fail != nil {
		return h.fail
	}
	h.events = append(h.events, e)
	return nil
}

func upcastV1toV2() *upcasting.Pipeline {
	return upcasting.MustNewPipeline(upcasting.New(
		func(ctx context.Context, old balanceChangedV1) (balanceChangedV2, error) {
			return balanceChangedV2{DeltaCents: old.Delta * 100}, nil
		}))
}

func newBus(s store.IEventStore, strategy upcasting.IStrategy, delivery eventing.IDeliveryStrategy) *EventBus {
	return NewEventBus(Config{
		Store:    s,
		Strategy: strategy,
		Delivery: delivery,
		Logger:   logging.NewNoopLogger(),
	})
}

func TestPublishSavesAndDelivers(t *testing.T) {
	s := store.NewMemoryEventStore()
	tr := memory.NewTransport(nil)
	defer tr.Close()

	b := newBus(s, nil, eventing.NewSynchronousDelivery(tr, logging.NewNoopLogger()))
	handler := &recordingHandler{name: "proj"}
	b.RegisterHandler(handler)

	events := []eventing.Event{eventing.NewEvent("acc-1", 1, balanceChangedV2{DeltaCents: 100}, "", "")}
	require.NoError(t, b.Publish(context.Background(), events, 0))

	require.Len(t, handler.events, 1)

	saved, err := s.LoadEvents(context.Background(), "acc-1", 0)
	require.NoError(t, err)
	require.Len(t, saved, 1)
}

func TestPublishEmptyIsNoop(t *testing.T) {
	b := newBus(store.NewMemoryEventStore(), nil, nil)
	require.NoError(t, b.Publish(context.Background(), nil, 0))
}

func TestPublishUpcastsOnWrite(t *testing.T) {
	s := store.NewMemoryEventStore()
	b := newBus(s, upcasting.NewLazyStrategy(upcastV1toV2()), nil)

	events := []eventing.Event{eventing.NewEvent("acc-1", 1, balanceChangedV1{Delta: 3}, "", "")}
	require.NoError(t, b.Publish(context.Background(), events, 0))

	saved, err := s.LoadEvents(context.Background(), "acc-1", 0)
	require.NoError(t, err)
	require.Equal(t, balanceChangedV2{DeltaCents: 300}, saved[0].Payload)
}

func TestSyncDeliveryFailureSurfacesAfterSave(t *testing.T) {
	s := store.NewMemoryEventStore()
	tr := memory.NewTransport(nil)
	defer tr.Close()

	b := newBus(s, nil, eventing.NewSynchronousDelivery(tr, logging.NewNoopLogger()))
	boom := errors.New("projection down")
	b.RegisterHandler(&recordingHandler{name: "bad", fail: boom})

	events := []eventing.Event{eventing.NewEvent("acc-1", 1, balanceChangedV2{DeltaCents: 1}, "", "")}
	err := b.Publish(context.Background(), events, 0)
	require.ErrorIs(t, err, boom)

	// 投递失败不回滚持久化
	saved, loadErr := s.LoadEvents(context.Background(), "acc-1", 0)
	require.NoError(t, loadErr)
	require.Len(t, saved, 1)
}

func TestLoadLazyKeepsStoreUntouched(t *testing.T) {
	s := store.NewMemoryEventStore()
	writeBus := newBus(s, nil, nil)
	old := []eventing.Event{eventing.NewEvent("acc-1", 1, balanceChangedV1{Delta: 5}, "", "")}
	require.NoError(t, writeBus.Publish(context.Background(), old, 0))

	b := newBus(s, upcasting.NewLazyStrategy(upcastV1toV2()), nil)
	loaded, err := b.Load(context.Background(), "acc-1", 0)
	require.NoError(t, err)
	require.Equal(t, balanceChangedV2{DeltaCents: 500}, loaded[0].Payload)

	// 惰性策略不改写存储
	raw, err := s.LoadEvents(context.Background(), "acc-1", 0)
	require.NoError(t, err)
	require.Equal(t, balanceChangedV1{Delta: 5}, raw[0].Payload)
}

func TestLoadEagerRewritesStore(t *testing.T) {
	s := store.NewMemoryEventStore()
	writeBus := newBus(s, nil, nil)
	old := []eventing.Event{eventing.NewEvent("acc-1", 1, balanceChangedV1{Delta: 5}, "", "")}
	require.NoError(t, writeBus.Publish(context.Background(), old, 0))

	b := newBus(s, upcasting.NewEagerStrategy(upcastV1toV2()), nil)
	loaded, err := b.Load(context.Background(), "acc-1", 0)
	require.NoError(t, err)
	require.Equal(t, balanceChangedV2{DeltaCents: 500}, loaded[0].Payload)

	raw, err := s.LoadEvents(context.Background(), "acc-1", 0)
	require.NoError(t, err)
	require.Equal(t, balanceChangedV2{DeltaCents: 500}, raw[0].Payload)
	require.Equal(t, old[0].ID, raw[0].ID)
}

func TestPublishConcurrencyConflictPropagates(t *testing.T) {
	s := store.NewMemoryEventStore()
	b := newBus(s, nil, nil)

	first := []eventing.Event{eventing.NewEvent("acc-1", 1, balanceChangedV2{DeltaCents: 1}, "", "")}
	require.NoError(t, b.Publish(context.Background(), first, 0))

	conflicting := []eventing.Event{eventing.NewEvent("acc-1", 1, balanceChangedV2{DeltaCents: 2}, "", "")}
	err := b.Publish(context.Background(), conflicting, 0)
	require.True(t, eventing.IsConcurrencyError(err))
}
