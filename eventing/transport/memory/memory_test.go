package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"loom/eventing"
)

type orderPlaced struct {
	Total int
}

type orderShipped struct{}

func publish(t *testing.T, tr *Transport, aggregateID string, seq int64, payload any) eventing.Event {
	t.Helper()
	e := eventing.NewEvent(aggregateID, seq, payload, "corr", "cause")
	require.NoError(t, tr.Publish(context.Background(), []eventing.Event{e}))
	return e
}

func TestPublishAndConsume(t *testing.T) {
	tr := NewTransport(nil)
	defer tr.Close()

	sub, err := tr.Subscribe(eventing.StreamSelector{})
	require.NoError(t, err)

	sent := publish(t, tr, "ord-1", 1, orderPlaced{Total: 10})
	require.Equal(t, 1, sub.Depth())

	got, err := sub.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, sent.ID, got.ID)
	require.Equal(t, 0, sub.Depth())
}

func TestSubscribeReplaysHistory(t *testing.T) {
	tr := NewTransport(nil)
	defer tr.Close()

	first := publish(t, tr, "ord-1", 1, orderPlaced{Total: 1})

	sub, err := tr.Subscribe(eventing.StreamSelector{})
	require.NoError(t, err)
	require.Equal(t, 1, sub.Depth())

	got, err := sub.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
}

func TestAggregateIDFilter(t *testing.T) {
	tr := NewTransport(nil)
	defer tr.Close()

	sub, err := tr.Subscribe(eventing.StreamSelector{AggregateID: "ord-2"})
	require.NoError(t, err)

	publish(t, tr, "ord-1", 1, orderPlaced{})
	want := publish(t, tr, "ord-2", 1, orderPlaced{})

	require.Equal(t, 1, sub.Depth())
	got, err := sub.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, want.ID, got.ID)
}

func TestPayloadNameFilterWithRegistry(t *testing.T) {
	registry := eventing.NewPayloadRegistry()
	registry.MustRegister("order.placed", orderPlaced{})
	registry.MustRegister("order.shipped", orderShipped{})

	tr := NewTransport(registry)
	defer tr.Close()

	sub, err := tr.Subscribe(eventing.StreamSelector{PayloadNames: []string{"order.shipped"}})
	require.NoError(t, err)

	publish(t, tr, "ord-1", 1, orderPlaced{})
	want := publish(t, tr, "ord-1", 2, orderShipped{})

	require.Equal(t, 1, sub.Depth())
	got, err := sub.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, want.ID, got.ID)
}

func TestNextBlocksUntilPublish(t *testing.T) {
	tr := NewTransport(nil)
	defer tr.Close()

	sub, err := tr.Subscribe(eventing.StreamSelector{})
	require.NoError(t, err)

	done := make(chan eventing.Event, 1)
	go func() {
		e, err := sub.Next(context.Background())
		if err == nil {
			done <- e
		}
	}()

	time.Sleep(10 * time.Millisecond)
	want := publish(t, tr, "ord-1", 1, orderPlaced{})

	select {
	case got := <-done:
		require.Equal(t, want.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("Next 未被唤醒")
	}
}

func TestNextHonorsContextCancel(t *testing.T) {
	tr := NewTransport(nil)
	defer tr.Close()

	sub, err := tr.Subscribe(eventing.StreamSelector{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = sub.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseDrainsThenEndOfStream(t *testing.T) {
	tr := NewTransport(nil)

	sub, err := tr.Subscribe(eventing.StreamSelector{})
	require.NoError(t, err)

	publish(t, tr, "ord-1", 1, orderPlaced{})
	require.NoError(t, tr.Close())

	// 关闭后仍可排空队列中的事件
	_, err = sub.Next(context.Background())
	require.NoError(t, err)

	_, err = sub.Next(context.Background())
	require.ErrorIs(t, err, eventing.ErrEndOfStream)

	// 关闭后的发布与订阅被拒绝
	require.Error(t, tr.Publish(context.Background(), []eventing.Event{eventing.NewEvent("x", 1, orderPlaced{}, "", "")}))
	_, err = tr.Subscribe(eventing.StreamSelector{})
	require.Error(t, err)
}
