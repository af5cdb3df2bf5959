package upcasting

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"loom/errors"
	"loom/eventing"
)

type priceChangedV1 struct {
	Price int // 单位：元
}

type priceChangedV2 struct {
	PriceCents int
}

type priceChangedV3 struct {
	PriceCents int
	Currency   string
}

func v1tov2() IUpcaster {
	return New(func(ctx context.Context, old priceChangedV1) (priceChangedV2, error) {
		return priceChangedV2{PriceCents: old.Price * 100}, nil
	})
}

func v2tov3() IUpcaster {
	return New(func(ctx context.Context, old priceChangedV2) (priceChangedV3, error) {
		return priceChangedV3{PriceCents: old.PriceCents, Currency: "CNY"}, nil
	})
}

func TestUpcastSingleStep(t *testing.T) {
	p := MustNewPipeline(v1tov2())

	result, changed, err := p.UpcastPayload(context.Background(), priceChangedV1{Price: 3})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, priceChangedV2{PriceCents: 300}, result)
}

func TestUpcastChainsToLatest(t *testing.T) {
	p := MustNewPipeline(v1tov2(), v2tov3())

	result, changed, err := p.UpcastPayload(context.Background(), priceChangedV1{Price: 2})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, priceChangedV3{PriceCents: 200, Currency: "CNY"}, result)
}

func TestUpcastLatestVersionUntouched(t *testing.T) {
	p := MustNewPipeline(v1tov2(), v2tov3())

	payload := priceChangedV3{PriceCents: 100, Currency: "CNY"}
	result, changed, err := p.UpcastPayload(context.Background(), payload)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, payload, result)
}

func TestUpcastEventPreservesIdentity(t *testing.T) {
	p := MustNewPipeline(v1tov2())
	event := eventing.NewEvent("prod-1", 4, priceChangedV1{Price: 1}, "corr", "cause")

	upcasted, changed, err := p.UpcastEvent(context.Background(), event)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, event.ID, upcasted.ID)
	require.Equal(t, event.AggregateID, upcasted.AggregateID)
	require.Equal(t, event.SequenceNumber, upcasted.SequenceNumber)
	require.Equal(t, event.Timestamp, upcasted.Timestamp)
	require.Equal(t, priceChangedV2{PriceCents: 100}, upcasted.Payload)
}

func TestUpcastCycleDetected(t *testing.T) {
	aToB := New(func(ctx context.Context, old priceChangedV1) (priceChangedV2, error) {
		return priceChangedV2{}, nil
	})
	bToA := New(func(ctx context.Context, old priceChangedV2) (priceChangedV1, error) {
		return priceChangedV1{}, nil
	})
	p := MustNewPipeline(aToB, bToA)

	_, _, err := p.UpcastPayload(context.Background(), priceChangedV1{})
	var tooLong *ChainTooLongError
	require.ErrorAs(t, err, &tooLong)
	require.Equal(t, DefaultMaxChain, tooLong.MaxChain)
	require.Equal(t, reflect.TypeOf(priceChangedV1{}), tooLong.StartType)
	require.True(t, errors.IsErrorCode(err, errors.ErrCodeUpcast))
}

func TestDuplicateSourceRejected(t *testing.T) {
	_, err := NewPipeline(v1tov2(), New(func(ctx context.Context, old priceChangedV1) (priceChangedV3, error) {
		return priceChangedV3{}, nil
	}))
	require.Error(t, err)
}

func TestUpcastAllMarksChanged(t *testing.T) {
	p := MustNewPipeline(v1tov2())
	events := []eventing.Event{
		eventing.NewEvent("prod-1", 1, priceChangedV1{Price: 1}, "", ""),
		eventing.NewEvent("prod-1", 2, priceChangedV2{PriceCents: 5}, "", ""),
	}

	result, changed, err := p.UpcastAll(context.Background(), events)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, priceChangedV2{PriceCents: 100}, result[0].Payload)
	require.Equal(t, priceChangedV2{PriceCents: 5}, result[1].Payload)
}

func TestStrategies(t *testing.T) {
	p := MustNewPipeline(v1tov2())
	lazy := NewLazyStrategy(p)
	eager := NewEagerStrategy(p)

	require.False(t, lazy.RewriteOnRead())
	require.True(t, eager.RewriteOnRead())

	events := []eventing.Event{eventing.NewEvent("prod-1", 1, priceChangedV1{Price: 7}, "", "")}
	written, err := lazy.UpcastOnWrite(context.Background(), events)
	require.NoError(t, err)
	require.Equal(t, priceChangedV2{PriceCents: 700}, written[0].Payload)

	read, changed, err := eager.UpcastOnRead(context.Background(), events)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, priceChangedV2{PriceCents: 700}, read[0].Payload)
}
