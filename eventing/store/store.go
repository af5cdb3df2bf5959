// Package store 定义事件存储接口与内存实现
package store

import (
	"context"

	"loom/eventing"
)

// IEventStore 事件存储
//
// 以 (聚合标识, 序号) 唯一定位事件，通过期望版本实现乐观并发控制。
type IEventStore interface {
	// SaveEvents 原子追加一次提交产生的事件
	//
	// expectedVersion 为提交前的聚合版本，新聚合为 0；
	// 与实际版本不符返回 *eventing.ConcurrencyError。
	// 空事件列表为无操作。
	SaveEvents(ctx context.Context, events []eventing.Event, expectedVersion int64) error

	// LoadEvents 按序号升序加载聚合事件
	//
	// 仅返回序号大于 afterVersion 的事件；聚合不存在返回空列表。
	LoadEvents(ctx context.Context, aggregateID string, afterVersion int64) ([]eventing.Event, error)

	// LoadAllEvents 按全局写入顺序加载全部事件（用于重放型追赶）
	LoadAllEvents(ctx context.Context) ([]eventing.Event, error)

	// RewriteEvents 原地替换已存在的事件（积极升级迁移）
	//
	// 仅允许替换载荷，身份字段必须与存储中的记录一致。
	RewriteEvents(ctx context.Context, events []eventing.Event) error
}
