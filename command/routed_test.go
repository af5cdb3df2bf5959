package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"loom/errors"
)

func TestRoutedMiddlewareInterceptsRegisteredType(t *testing.T) {
	var trace []string
	m := NewRoutedMiddleware("audit")
	Intercepts(m, func(ctx context.Context, cmd depositMoney, next HandlerFunc) error {
		trace = append(trace, "intercepted")
		return next(ctx, cmd)
	})

	root := func(ctx context.Context, cmd ICommand) error {
		trace = append(trace, "root")
		return nil
	}
	b, err := NewBus(root, m)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Dispatch(ctx, depositMoney{Command: NewCommand("acc-1"), Amount: 10}))
	require.Equal(t, []string{"intercepted", "root"}, trace)
}

func TestRoutedMiddlewarePassesThroughUnregisteredType(t *testing.T) {
	var trace []string
	m := NewRoutedMiddleware("audit")
	Intercepts(m, func(ctx context.Context, cmd depositMoney, next HandlerFunc) error {
		trace = append(trace, "intercepted")
		return next(ctx, cmd)
	})

	root := func(ctx context.Context, cmd ICommand) error {
		trace = append(trace, "root")
		return nil
	}
	b, err := NewBus(root, m)
	require.NoError(t, err)

	require.NoError(t, b.Dispatch(context.Background(), openAccount{Command: NewCommand("acc-1")}))
	require.Equal(t, []string{"root"}, trace)
}

func TestRoutedMiddlewareShortCircuits(t *testing.T) {
	rootCalled := false
	m := NewRoutedMiddleware("guard")
	Intercepts(m, func(ctx context.Context, cmd depositMoney, next HandlerFunc) error {
		if cmd.Amount <= 0 {
			return errors.NewError(errors.ErrCodeInvalidInput, "deposit must be positive")
		}
		return next(ctx, cmd)
	})

	root := func(ctx context.Context, cmd ICommand) error {
		rootCalled = true
		return nil
	}
	b, err := NewBus(root, m)
	require.NoError(t, err)

	err = b.Dispatch(context.Background(), depositMoney{Command: NewCommand("acc-1"), Amount: -5})
	require.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))
	require.False(t, rootCalled)
}

func TestRoutedMiddlewareDuplicateInterceptorPanics(t *testing.T) {
	m := NewRoutedMiddleware("audit")
	fn := func(ctx context.Context, cmd depositMoney, next HandlerFunc) error {
		return next(ctx, cmd)
	}
	Intercepts(m, fn)
	require.Panics(t, func() { Intercepts(m, fn) })
}
