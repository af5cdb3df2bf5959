package command

import (
	"context"

	"loom/errors"
)

// HandlerFunc 命令处理函数
type HandlerFunc func(ctx context.Context, cmd ICommand) error

// IMiddleware 命令中间件
//
// 中间件可在调用 next 前后观察或改写行为，也可不调用 next 直接
// 短路（如幂等去重）。
type IMiddleware interface {
	Intercept(ctx context.Context, cmd ICommand, next HandlerFunc) error
}

// Bus 命令总线
//
// 中间件按注册顺序包裹根处理器：先注册的在最外层。
type Bus struct {
	handler HandlerFunc
}

// NewBus 创建命令总线
func NewBus(root HandlerFunc, middlewares ...IMiddleware) (*Bus, error) {
	if root == nil {
		return nil, errors.NewError(errors.ErrCodeConfiguration, "command bus root handler is nil")
	}
	handler := root
	for i := len(middlewares) - 1; i >= 0; i-- {
		mw := middlewares[i]
		next := handler
		handler = func(ctx context.Context, cmd ICommand) error {
			return mw.Intercept(ctx, cmd, next)
		}
	}
	return &Bus{handler: handler}, nil
}

// Dispatch 派发命令
func (b *Bus) Dispatch(ctx context.Context, cmd ICommand) error {
	if cmd == nil {
		return errors.NewError(errors.ErrCodeInvalidInput, "command is nil")
	}
	return b.handler(ctx, cmd)
}
