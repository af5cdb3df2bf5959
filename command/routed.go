package command

import (
	"context"
	"reflect"

	"loom/routing"
)

// routedCall 路由中间件分发给拦截函数的调用信息
type routedCall struct {
	cmd  ICommand
	next HandlerFunc
}

// RoutedMiddleware 按命令类型路由的中间件基础实现
//
// 拦截函数按命令具体类型注册，只有注册过的类型被拦截，其余命令
// 直接放行给 next。拦截函数自行决定是否调用 next。
type RoutedMiddleware struct {
	table *routing.Table
}

// NewRoutedMiddleware 创建路由中间件
//
// 参数:
//   - name: 中间件名，用于错误与日志
func NewRoutedMiddleware(name string) *RoutedMiddleware {
	return &RoutedMiddleware{
		table: routing.NewTable("middleware."+name, routing.MissIgnore),
	}
}

var _ IMiddleware = (*RoutedMiddleware)(nil)

// Intercept 命中注册类型时交给拦截函数，未命中直接放行
func (m *RoutedMiddleware) Intercept(ctx context.Context, cmd ICommand, next HandlerFunc) error {
	if !m.table.Has(reflect.TypeOf(cmd)) {
		return next(ctx, cmd)
	}
	_, err := m.table.Dispatch(ctx, cmd, routedCall{cmd: cmd, next: next})
	return err
}

// Intercepts 注册类型化拦截函数，重复注册即 panic（构建期装配）
func Intercepts[C ICommand](m *RoutedMiddleware, fn func(ctx context.Context, cmd C, next HandlerFunc) error) {
	m.table.MustRegister(routing.TypeOf[C](), func(ctx context.Context, msg any) (any, error) {
		call := msg.(routedCall)
		return nil, fn(ctx, call.cmd.(C), call.next)
	}, true)
}
