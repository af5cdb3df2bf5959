// Package command 提供命令模型与带中间件的命令总线
package command

import "loom/ident"

// ICommand 命令接口
//
// 命令总是指向一个目标聚合；关联/因果标识可为空，由上下文
// 中间件补全。
type ICommand interface {
	GetCommandID() string
	GetAggregateID() string
	GetCorrelationID() string
	GetCausationID() string
}

// HasIdempotencyKey 携带幂等键的命令
//
// 返回空串视为未携带。
type HasIdempotencyKey interface {
	IdempotencyKey() string
}

// Command 命令基础字段，内嵌进具体命令类型
type Command struct {
	ID            string
	AggregateID   string
	CorrelationID string
	CausationID   string
}

// NewCommand 创建命令基础字段，自动生成命令标识
func NewCommand(aggregateID string) Command {
	return Command{
		ID:          ident.New(),
		AggregateID: aggregateID,
	}
}

// NewCommandIn 创建归属既有流程的命令基础字段
func NewCommandIn(aggregateID, correlationID, causationID string) Command {
	return Command{
		ID:            ident.New(),
		AggregateID:   aggregateID,
		CorrelationID: correlationID,
		CausationID:   causationID,
	}
}

func (c Command) GetCommandID() string     { return c.ID }
func (c Command) GetAggregateID() string   { return c.AggregateID }
func (c Command) GetCorrelationID() string { return c.CorrelationID }
func (c Command) GetCausationID() string   { return c.CausationID }
