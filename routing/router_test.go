package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "loom/errors"
)

type depositRequested struct {
	Amount int
}

type withdrawRequested struct {
	Amount int
}

func TestDispatchExactType(t *testing.T) {
	table := NewTable("commands", MissError)
	var got int
	err := table.Register(TypeOf[depositRequested](), func(ctx context.Context, msg any) (any, error) {
		got = msg.(depositRequested).Amount
		return nil, nil
	}, false)
	require.NoError(t, err)

	_, err = table.Dispatch(context.Background(), depositRequested{Amount: 42}, nil)
	require.NoError(t, err)
	require.Equal(t, 42, got)
}

func TestDispatchMissError(t *testing.T) {
	table := NewTable("commands", MissError)
	_, err := table.Dispatch(context.Background(), withdrawRequested{Amount: 1}, nil)

	var noHandler *NoHandlerError
	require.ErrorAs(t, err, &noHandler)
	require.Equal(t, "commands", noHandler.Table)
	require.Equal(t, TypeOf[withdrawRequested](), noHandler.MessageType)
}

func TestDispatchMissIgnore(t *testing.T) {
	table := NewTable("appliers", MissIgnore)
	result, err := table.Dispatch(context.Background(), withdrawRequested{}, nil)
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestDuplicateRegistration(t *testing.T) {
	table := NewTable("commands", MissError)
	noop := func(ctx context.Context, msg any) (any, error) { return nil, nil }

	require.NoError(t, table.Register(TypeOf[depositRequested](), noop, false))
	err := table.Register(TypeOf[depositRequested](), noop, false)

	var dup *DuplicateHandlerError
	require.ErrorAs(t, err, &dup)

	require.Panics(t, func() {
		table.MustRegister(TypeOf[depositRequested](), noop, false)
	})
}

func TestWantsEnvelope(t *testing.T) {
	type envelope struct {
		Payload any
		Seq     int64
	}
	table := NewTable("processors", MissIgnore)
	var seenSeq int64
	table.MustRegister(TypeOf[depositRequested](), func(ctx context.Context, msg any) (any, error) {
		seenSeq = msg.(envelope).Seq
		return nil, nil
	}, true)

	env := envelope{Payload: depositRequested{Amount: 5}, Seq: 7}
	_, err := table.Dispatch(context.Background(), depositRequested{Amount: 5}, env)
	require.NoError(t, err)
	require.Equal(t, int64(7), seenSeq)
}

func TestHandlerErrorPropagates(t *testing.T) {
	table := NewTable("commands", MissError)
	boom := errors.New("boom")
	table.MustRegister(TypeOf[depositRequested](), func(ctx context.Context, msg any) (any, error) {
		return nil, boom
	}, false)

	_, err := table.Dispatch(context.Background(), depositRequested{}, nil)
	require.ErrorIs(t, err, boom)
}

func TestRoutingErrorsCarryCodes(t *testing.T) {
	table := NewTable("commands", MissError)
	noop := func(ctx context.Context, msg any) (any, error) { return nil, nil }

	_, err := table.Dispatch(context.Background(), depositRequested{}, nil)
	require.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeNoHandler))

	require.NoError(t, table.Register(TypeOf[depositRequested](), noop, false))
	err = table.Register(TypeOf[depositRequested](), noop, false)
	require.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeDuplicate))
}

func TestTypesSorted(t *testing.T) {
	table := NewTable("commands", MissError)
	noop := func(ctx context.Context, msg any) (any, error) { return nil, nil }
	table.MustRegister(TypeOf[withdrawRequested](), noop, false)
	table.MustRegister(TypeOf[depositRequested](), noop, false)

	types := table.Types()
	require.Len(t, types, 2)
	require.True(t, table.Has(TypeOf[depositRequested]()))
	require.False(t, table.Has(TypeOf[int]()))
}
