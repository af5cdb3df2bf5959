// Package execctx 提供执行上下文：关联、因果与命令标识三元组
//
// 执行上下文随 context.Context 传递，派生的 context 结束即失效，
// 因此不同任务之间不会互相泄漏。
package execctx

import (
	"context"

	"loom/ident"
)

// Context 执行上下文，创建后不可变
//
// CorrelationID 标识一次业务流程中的全部消息；
// CausationID 标识直接触发当前处理的消息；
// CommandID 为当前正在处理的命令标识，事件处理期间为空。
type Context struct {
	CorrelationID string
	CausationID   string
	CommandID     string
}

type ctxKey struct{}

// New 创建新的执行上下文
//
// 新流程的首条消息即自身的起因，因此因果标识指向关联标识。
func New() Context {
	correlation := ident.New()
	return Context{
		CorrelationID: correlation,
		CausationID:   correlation,
	}
}

// ForCommand 基于命令构造执行上下文
//
// correlationID 为空时新建流程；causationID 为空时指向关联标识。
func ForCommand(correlationID, causationID, commandID string) Context {
	if correlationID == "" {
		correlationID = ident.New()
	}
	if causationID == "" {
		causationID = correlationID
	}
	return Context{
		CorrelationID: correlationID,
		CausationID:   causationID,
		CommandID:     commandID,
	}
}

// ForEvent 基于事件构造执行上下文
//
// 事件处理期间命令标识清空：事件处理器发出的命令自成新的命令链。
func ForEvent(correlationID, eventID string) Context {
	if correlationID == "" {
		correlationID = ident.New()
	}
	return Context{
		CorrelationID: correlationID,
		CausationID:   eventID,
	}
}

// With 将执行上下文写入 context.Context
func With(ctx context.Context, ec Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, ec)
}

// FromContext 读取当前执行上下文
func FromContext(ctx context.Context) (Context, bool) {
	ec, ok := ctx.Value(ctxKey{}).(Context)
	return ec, ok
}

// GetOrCreate 读取当前执行上下文，不存在时新建并写入
func GetOrCreate(ctx context.Context) (context.Context, Context) {
	if ec, ok := FromContext(ctx); ok {
		return ctx, ec
	}
	ec := New()
	return With(ctx, ec), ec
}

// Clear 返回去除执行上下文的 context.Context
func Clear(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, nil)
}
