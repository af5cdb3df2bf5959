// Package aggregate 提供事件溯源聚合基类与仓储
package aggregate

import (
	"context"
	"time"

	"loom/errors"
	"loom/eventing"
	"loom/execctx"
	"loom/routing"
)

// IAggregate 事件溯源聚合
type IAggregate interface {
	AggregateID() string
	Version() int64
	LastEventAt() time.Time
	UncommittedEvents() []eventing.Event
	ClearUncommitted()
	Changed() bool
	Replay(ctx context.Context, events []eventing.Event) error
	HandleCommand(ctx context.Context, command any) error
}

// ISnapshottable 支持快照的聚合
//
// 状态序列化格式由聚合自行决定（通常为 JSON）。
type ISnapshottable interface {
	SnapshotState() ([]byte, error)
	RestoreSnapshot(version int64, takenAt time.Time, state []byte) error
}

// Base 聚合基类
//
// 命令处理器与事件应用器按具体类型注册在实例上：命令未命中报错，
// 事件未命中静默忽略（聚合可以只关心部分历史事件）。
type Base struct {
	id          string
	version     int64
	lastEventAt time.Time
	uncommitted []eventing.Event

	commands *routing.Table
	appliers *routing.Table
}

// NewBase 创建聚合基类
func NewBase(id string) *Base {
	return &Base{
		id:       id,
		commands: routing.NewTable("aggregate.commands", routing.MissError),
		appliers: routing.NewTable("aggregate.appliers", routing.MissIgnore),
	}
}

func (b *Base) AggregateID() string { return b.id }

func (b *Base) Version() int64 { return b.version }

func (b *Base) LastEventAt() time.Time { return b.lastEventAt }

func (b *Base) UncommittedEvents() []eventing.Event {
	return b.uncommitted
}

func (b *Base) ClearUncommitted() {
	b.uncommitted = nil
}

// Changed 自上次提交以来是否产生了新事件
func (b *Base) Changed() bool {
	return len(b.uncommitted) > 0
}

// Emit 产生新事件：递增版本、打上下文标识、应用到状态
//
// 事件的关联标识取自执行上下文，因果标识指向当前命令。
func (b *Base) Emit(ctx context.Context, payload any) error {
	ec, _ := execctx.FromContext(ctx)
	event := eventing.NewEvent(b.id, b.version+1, payload, ec.CorrelationID, ec.CommandID)
	if err := b.apply(ctx, event); err != nil {
		return err
	}
	b.uncommitted = append(b.uncommitted, event)
	return nil
}

// Replay 重放历史事件重建状态，不产生未提交事件
func (b *Base) Replay(ctx context.Context, events []eventing.Event) error {
	for _, e := range events {
		if e.SequenceNumber != b.version+1 {
			return errors.NewErrorf(errors.ErrCodeInvalidInput,
				"replay out of order on %s: got sequence %d at version %d",
				b.id, e.SequenceNumber, b.version)
		}
		if err := b.apply(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *Base) apply(ctx context.Context, e eventing.Event) error {
	if _, err := b.appliers.Dispatch(ctx, e.Payload, e); err != nil {
		return err
	}
	b.version = e.SequenceNumber
	b.lastEventAt = e.Timestamp
	return nil
}

// HandleCommand 将命令分发给注册的处理器
func (b *Base) HandleCommand(ctx context.Context, command any) error {
	_, err := b.commands.Dispatch(ctx, command, nil)
	return err
}

// RestoreVersion 快照恢复后重置版本信息
//
// 仅应在 ISnapshottable.RestoreSnapshot 中调用。
func (b *Base) RestoreVersion(version int64, lastEventAt time.Time) {
	b.version = version
	b.lastEventAt = lastEventAt
}

// CommandTable 命令分发表（装配期读取注册的命令类型）
func (b *Base) CommandTable() *routing.Table {
	return b.commands
}

// HandlesCommand 注册命令处理器，重复注册即 panic
func HandlesCommand[C any](b *Base, fn func(ctx context.Context, cmd C) error) {
	b.commands.MustRegister(routing.TypeOf[C](), func(ctx context.Context, msg any) (any, error) {
		return nil, fn(ctx, msg.(C))
	}, false)
}

// AppliesEvent 注册事件应用器，重复注册即 panic
//
// 应用器只做状态变更，不得失败、不得产生副作用。
func AppliesEvent[E any](b *Base, fn func(e E)) {
	b.appliers.MustRegister(routing.TypeOf[E](), func(ctx context.Context, msg any) (any, error) {
		fn(msg.(E))
		return nil, nil
	}, false)
}
