package upcasting

import (
	"context"

	"loom/eventing"
)

// IStrategy 升级策略：决定读写两侧如何使用升级管道
//
// 写侧升级两种策略一致：新写入的事件总是最新版本。
// 区别在读侧：惰性策略只在内存中升级，积极策略会把升级结果
// 写回事件存储。
type IStrategy interface {
	// UpcastOnWrite 持久化前升级
	UpcastOnWrite(ctx context.Context, events []eventing.Event) ([]eventing.Event, error)

	// UpcastOnRead 加载后升级，changed 标记是否有事件被升级
	UpcastOnRead(ctx context.Context, events []eventing.Event) ([]eventing.Event, bool, error)

	// RewriteOnRead 读侧升级结果是否需要写回存储
	RewriteOnRead() bool
}

// LazyStrategy 惰性升级：读侧只在内存中升级，存储保持旧版本
type LazyStrategy struct {
	pipeline *Pipeline
}

// NewLazyStrategy 创建惰性升级策略
func NewLazyStrategy(pipeline *Pipeline) *LazyStrategy {
	return &LazyStrategy{pipeline: pipeline}
}

func (s *LazyStrategy) UpcastOnWrite(ctx context.Context, events []eventing.Event) ([]eventing.Event, error) {
	result, _, err := s.pipeline.UpcastAll(ctx, events)
	return result, err
}

func (s *LazyStrategy) UpcastOnRead(ctx context.Context, events []eventing.Event) ([]eventing.Event, bool, error) {
	return s.pipeline.UpcastAll(ctx, events)
}

func (s *LazyStrategy) RewriteOnRead() bool { return false }

// EagerStrategy 积极升级：读到旧版本即升级并写回，完成滚动迁移
type EagerStrategy struct {
	pipeline *Pipeline
}

// NewEagerStrategy 创建积极升级策略
func NewEagerStrategy(pipeline *Pipeline) *EagerStrategy {
	return &EagerStrategy{pipeline: pipeline}
}

func (s *EagerStrategy) UpcastOnWrite(ctx context.Context, events []eventing.Event) ([]eventing.Event, error) {
	result, _, err := s.pipeline.UpcastAll(ctx, events)
	return result, err
}

func (s *EagerStrategy) UpcastOnRead(ctx context.Context, events []eventing.Event) ([]eventing.Event, bool, error) {
	return s.pipeline.UpcastAll(ctx, events)
}

func (s *EagerStrategy) RewriteOnRead() bool { return true }

var _ IStrategy = (*LazyStrategy)(nil)
var _ IStrategy = (*EagerStrategy)(nil)
