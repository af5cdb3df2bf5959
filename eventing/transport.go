package eventing

import "context"

// StreamSelector 订阅的事件流选择器
//
// 零值订阅全部事件；AggregateID 与 PayloadNames 可组合过滤。
type StreamSelector struct {
	AggregateID  string
	PayloadNames []string
}

// Matches 判断事件是否落入该流
func (s StreamSelector) Matches(e Event, nameOf func(any) (string, bool)) bool {
	if s.AggregateID != "" && s.AggregateID != e.AggregateID {
		return false
	}
	if len(s.PayloadNames) > 0 {
		name, ok := nameOf(e.Payload)
		if !ok {
			return false
		}
		found := false
		for _, candidate := range s.PayloadNames {
			if candidate == name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ISubscription 事件订阅
type ISubscription interface {
	// Next 阻塞等待下一条事件
	//
	// 流关闭且排空后返回 ErrEndOfStream；ctx 取消返回 ctx.Err()。
	Next(ctx context.Context) (Event, error)

	// Depth 当前未消费事件数
	Depth() int

	// Close 关闭订阅
	Close() error
}

// ITransport 事件传输
//
// Publish 将事件追加到流尾部并对订阅可见；同一传输内事件有全序。
type ITransport interface {
	Publish(ctx context.Context, events []Event) error
	Subscribe(selector StreamSelector) (ISubscription, error)
	Close() error
}

// IEventHandler 事件处理器（处理器、投影、Saga 的公共面）
type IEventHandler interface {
	Name() string
	Handle(ctx context.Context, event Event) error
}
