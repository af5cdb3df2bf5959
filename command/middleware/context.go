// Package middleware 提供命令总线的标准中间件
package middleware

import (
	"context"

	"loom/command"
	"loom/execctx"
)

// ContextMiddleware 执行上下文传播中间件
//
// 命令未携带关联标识时新建流程，未携带因果标识时指向关联标识。
// 上下文写入派生 context，命令处理结束即随之失效。
type ContextMiddleware struct{}

// NewContextMiddleware 创建上下文中间件
func NewContextMiddleware() *ContextMiddleware {
	return &ContextMiddleware{}
}

func (m *ContextMiddleware) Intercept(ctx context.Context, cmd command.ICommand, next command.HandlerFunc) error {
	ec := execctx.ForCommand(cmd.GetCorrelationID(), cmd.GetCausationID(), cmd.GetCommandID())
	return next(execctx.With(ctx, ec), cmd)
}

var _ command.IMiddleware = (*ContextMiddleware)(nil)
