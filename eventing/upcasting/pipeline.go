package upcasting

import (
	"context"
	"fmt"
	"reflect"

	"loom/errors"
	"loom/eventing"
)

// DefaultMaxChain 单个载荷允许的最大升级步数
const DefaultMaxChain = 10

// ChainTooLongError 升级链超出步数上限（通常意味着升级器成环）
type ChainTooLongError struct {
	StartType reflect.Type
	MaxChain  int
}

func (e *ChainTooLongError) Error() string {
	return fmt.Sprintf("upcast chain from %v exceeded %d steps, upcaster cycle suspected", e.StartType, e.MaxChain)
}

func (e *ChainTooLongError) Code() errors.ErrorCode { return errors.ErrCodeUpcast }

// Pipeline 升级管道
//
// 每个源类型至多一个升级器。注册完成后只读，并发安全。
type Pipeline struct {
	bySource map[reflect.Type]IUpcaster
	maxChain int
}

// NewPipeline 创建升级管道
func NewPipeline(upcasters ...IUpcaster) (*Pipeline, error) {
	p := &Pipeline{
		bySource: make(map[reflect.Type]IUpcaster, len(upcasters)),
		maxChain: DefaultMaxChain,
	}
	for _, u := range upcasters {
		if existing, ok := p.bySource[u.SourceType()]; ok {
			return nil, fmt.Errorf("upcaster for source %v already registered (target %v)",
				u.SourceType(), existing.TargetType())
		}
		p.bySource[u.SourceType()] = u
	}
	return p, nil
}

// MustNewPipeline 创建升级管道，失败即 panic（用于构建期装配）
func MustNewPipeline(upcasters ...IUpcaster) *Pipeline {
	p, err := NewPipeline(upcasters...)
	if err != nil {
		panic(err)
	}
	return p
}

// Empty 管道是否没有任何升级器
func (p *Pipeline) Empty() bool {
	return len(p.bySource) == 0
}

// UpcastPayload 将载荷升级到最新版本
//
// 返回值 changed 标记是否发生过升级。
func (p *Pipeline) UpcastPayload(ctx context.Context, payload any) (result any, changed bool, err error) {
	start := reflect.TypeOf(payload)
	current := payload
	for step := 0; ; step++ {
		upcaster, ok := p.bySource[reflect.TypeOf(current)]
		if !ok {
			return current, step > 0, nil
		}
		if step >= p.maxChain {
			return nil, false, &ChainTooLongError{StartType: start, MaxChain: p.maxChain}
		}
		current, err = upcaster.Upcast(ctx, current)
		if err != nil {
			return nil, false, err
		}
	}
}

// UpcastEvent 升级单个事件，身份字段保持不变
func (p *Pipeline) UpcastEvent(ctx context.Context, event eventing.Event) (eventing.Event, bool, error) {
	payload, changed, err := p.UpcastPayload(ctx, event.Payload)
	if err != nil {
		return eventing.Event{}, false, err
	}
	if !changed {
		return event, false, nil
	}
	return event.WithPayload(payload), true, nil
}

// UpcastAll 升级事件列表
//
// 任一事件升级即 changed 为 true；未升级的事件原样保留。
func (p *Pipeline) UpcastAll(ctx context.Context, events []eventing.Event) ([]eventing.Event, bool, error) {
	if p.Empty() || len(events) == 0 {
		return events, false, nil
	}
	result := make([]eventing.Event, len(events))
	anyChanged := false
	for i, e := range events {
		upcasted, changed, err := p.UpcastEvent(ctx, e)
		if err != nil {
			return nil, false, err
		}
		result[i] = upcasted
		anyChanged = anyChanged || changed
	}
	return result, anyChanged, nil
}
