package eventing

import (
	"context"

	"loom/logging"
)

// IDeliveryStrategy 事件投递策略
//
// Deliver 在事件已持久化之后调用。
type IDeliveryStrategy interface {
	Deliver(ctx context.Context, events []Event, handlers []IEventHandler) error
}

// SynchronousDelivery 同步投递
//
// 先发布到传输，再在调用方协程内依次调用各处理器。任一处理器
// 失败即返回错误：事件已持久化，发布方据此得知读模型未就绪。
type SynchronousDelivery struct {
	transport ITransport
	logger    logging.Logger
}

// NewSynchronousDelivery 创建同步投递策略
func NewSynchronousDelivery(transport ITransport, logger logging.Logger) *SynchronousDelivery {
	if logger == nil {
		logger = logging.ComponentLogger("delivery.sync")
	}
	return &SynchronousDelivery{transport: transport, logger: logger}
}

func (d *SynchronousDelivery) Deliver(ctx context.Context, events []Event, handlers []IEventHandler) error {
	if err := d.transport.Publish(ctx, events); err != nil {
		return err
	}
	for _, event := range events {
		for _, handler := range handlers {
			if err := handler.Handle(ctx, event); err != nil {
				d.logger.Error(ctx, "synchronous handler failed",
					logging.String("handler", handler.Name()),
					logging.String("event_id", event.ID),
					logging.Error(err))
				return err
			}
		}
	}
	return nil
}

// AsynchronousDelivery 异步投递
//
// 仅发布到传输，处理器由各自的执行器消费。
type AsynchronousDelivery struct {
	transport ITransport
}

// NewAsynchronousDelivery 创建异步投递策略
func NewAsynchronousDelivery(transport ITransport) *AsynchronousDelivery {
	return &AsynchronousDelivery{transport: transport}
}

func (d *AsynchronousDelivery) Deliver(ctx context.Context, events []Event, handlers []IEventHandler) error {
	return d.transport.Publish(ctx, events)
}

var _ IDeliveryStrategy = (*SynchronousDelivery)(nil)
var _ IDeliveryStrategy = (*AsynchronousDelivery)(nil)
