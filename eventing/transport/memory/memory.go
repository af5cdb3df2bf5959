// Package memory 提供内存事件传输
//
// 全部事件进入同一条有序日志；订阅按流选择器过滤，并从日志起点
// 开始投递（先历史后实时）。适用于测试与单进程部署。
package memory

import (
	"context"
	"reflect"
	"sync"

	"loom/eventing"
)

// Transport 内存事件传输
type Transport struct {
	mu       sync.Mutex
	registry *eventing.PayloadRegistry
	log      []eventing.Event
	subs     []*Subscription
	closed   bool
}

// NewTransport 创建内存传输
//
// registry 可为 nil，此时流选择器按 Go 类型名匹配载荷。
func NewTransport(registry *eventing.PayloadRegistry) *Transport {
	return &Transport{registry: registry}
}

var _ eventing.ITransport = (*Transport)(nil)

func (t *Transport) nameOf(payload any) (string, bool) {
	if t.registry != nil {
		if name, ok := t.registry.NameOf(payload); ok {
			return name, true
		}
		return "", false
	}
	typ := reflect.TypeOf(payload)
	if typ == nil {
		return "", false
	}
	return typ.String(), true
}

// Publish 追加事件到共享日志并投递给匹配的订阅
func (t *Transport) Publish(ctx context.Context, events []eventing.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return eventing.ErrEndOfStream
	}
	for _, e := range events {
		t.log = append(t.log, e)
		for _, sub := range t.subs {
			if sub.selector.Matches(e, t.nameOf) {
				sub.push(e)
			}
		}
	}
	return nil
}

// Subscribe 创建订阅，先回放日志中匹配的历史事件
func (t *Transport) Subscribe(selector eventing.StreamSelector) (eventing.ISubscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, eventing.ErrEndOfStream
	}
	sub := newSubscription(selector)
	for _, e := range t.log {
		if selector.Matches(e, t.nameOf) {
			sub.push(e)
		}
	}
	t.subs = append(t.subs, sub)
	return sub, nil
}

// Close 关闭传输；各订阅排空队列后收到流结束
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for _, sub := range t.subs {
		sub.end()
	}
	return nil
}

// Subscription 内存订阅，队列无上界
type Subscription struct {
	selector eventing.StreamSelector

	mu     sync.Mutex
	queue  []eventing.Event
	notify chan struct{}
	ended  bool
}

func newSubscription(selector eventing.StreamSelector) *Subscription {
	return &Subscription{
		selector: selector,
		notify:   make(chan struct{}, 1),
	}
}

var _ eventing.ISubscription = (*Subscription)(nil)

func (s *Subscription) push(e eventing.Event) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) Next(ctx context.Context) (eventing.Event, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			e := s.queue[0]
			s.queue = s.queue[1:]
			remaining := len(s.queue)
			s.mu.Unlock()
			if remaining > 0 {
				s.signal()
			}
			return e, nil
		}
		if s.ended {
			s.mu.Unlock()
			return eventing.Event{}, eventing.ErrEndOfStream
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return eventing.Event{}, ctx.Err()
		case <-s.notify:
		}
	}
}

func (s *Subscription) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscription) Close() error {
	s.end()
	return nil
}
