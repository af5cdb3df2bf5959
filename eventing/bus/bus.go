// Package bus 将事件存储、升级策略与投递策略组合为事件总线
package bus

import (
	"context"

	"loom/eventing"
	"loom/eventing/store"
	"loom/eventing/upcasting"
	"loom/logging"
)

// EventBus 事件总线
//
// 写路径：写侧升级 → 乐观锁保存 → 投递；
// 读路径：加载 → 读侧升级 → 积极策略且有变化时写回。
type EventBus struct {
	store    store.IEventStore
	strategy upcasting.IStrategy
	delivery eventing.IDeliveryStrategy
	handlers []eventing.IEventHandler
	logger   logging.Logger
}

// Config 事件总线配置
type Config struct {
	Store    store.IEventStore
	Strategy upcasting.IStrategy
	Delivery eventing.IDeliveryStrategy
	Logger   logging.Logger
}

// NewEventBus 创建事件总线
func NewEventBus(cfg Config) *EventBus {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.ComponentLogger("eventbus")
	}
	return &EventBus{
		store:    cfg.Store,
		strategy: cfg.Strategy,
		delivery: cfg.Delivery,
		logger:   logger,
	}
}

// RegisterHandler 注册同步投递目标
func (b *EventBus) RegisterHandler(handler eventing.IEventHandler) {
	b.handlers = append(b.handlers, handler)
}

// Publish 持久化并投递一次提交产生的事件
//
// 保存成功后投递失败时错误原样返回：事件已持久化，由调用方
// 决定如何处置（同步读模型未就绪）。
func (b *EventBus) Publish(ctx context.Context, events []eventing.Event, expectedVersion int64) error {
	if len(events) == 0 {
		return nil
	}

	var err error
	if b.strategy != nil {
		events, err = b.strategy.UpcastOnWrite(ctx, events)
		if err != nil {
			return err
		}
	}

	if err = b.store.SaveEvents(ctx, events, expectedVersion); err != nil {
		return err
	}

	if b.delivery == nil {
		return nil
	}
	return b.delivery.Deliver(ctx, events, b.handlers)
}

// Load 加载聚合事件并按策略升级
func (b *EventBus) Load(ctx context.Context, aggregateID string, afterVersion int64) ([]eventing.Event, error) {
	events, err := b.store.LoadEvents(ctx, aggregateID, afterVersion)
	if err != nil {
		return nil, err
	}
	if b.strategy == nil || len(events) == 0 {
		return events, nil
	}

	upcasted, changed, err := b.strategy.UpcastOnRead(ctx, events)
	if err != nil {
		return nil, err
	}
	if changed && b.strategy.RewriteOnRead() {
		if err := b.store.RewriteEvents(ctx, upcasted); err != nil {
			// 迁移写回失败不阻塞读取，下次加载会重试
			b.logger.Warn(ctx, "eager upcast rewrite failed",
				logging.String("aggregate_id", aggregateID),
				logging.Error(err))
		}
	}
	return upcasted, nil
}
