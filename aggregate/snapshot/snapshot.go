// Package snapshot 定义聚合快照记录、存储与触发策略
package snapshot

import (
	"context"
	stderrors "errors"
	"time"
)

// ErrSnapshotNotFound 快照不存在
var ErrSnapshotNotFound = stderrors.New("snapshot: not found")

// Snapshot 聚合状态快照
type Snapshot struct {
	AggregateID   string
	AggregateType string
	Version       int64
	TakenAt       time.Time
	State         []byte
}

// Mode 快照保存模式
type Mode int

const (
	// ModeSingle 单快照：每个聚合只保留最新一份
	ModeSingle Mode = iota

	// ModeVersioned 多版本：追加保存，可按版本回溯
	ModeVersioned
)

// IStore 快照存储
type IStore interface {
	// Save 保存快照；单快照模式下覆盖旧快照
	Save(ctx context.Context, snap Snapshot) error

	// Load 加载快照
	//
	// maxVersion > 0 时返回版本不超过 maxVersion 的最新快照，
	// 否则返回最新快照。不存在返回 ErrSnapshotNotFound。
	Load(ctx context.Context, aggregateID string, maxVersion int64) (Snapshot, error)

	// ListAggregateIDs 列出某聚合类型下有快照的聚合标识
	ListAggregateIDs(ctx context.Context, aggregateType string) ([]string, error)

	// Delete 删除聚合的全部快照
	Delete(ctx context.Context, aggregateID string) error
}

// IStrategy 快照触发策略
type IStrategy interface {
	// ShouldSnapshot 在一次成功提交后判断是否拍快照
	//
	// 参数:
	//   - version: 提交后的聚合版本
	//   - eventsSinceSnapshot: 距上次快照的事件数
	//   - sinceSnapshot: 距上次快照的时长
	ShouldSnapshot(version int64, eventsSinceSnapshot int64, sinceSnapshot time.Duration) bool
}

// NeverStrategy 永不拍快照
type NeverStrategy struct{}

func (NeverStrategy) ShouldSnapshot(int64, int64, time.Duration) bool { return false }

// EventCountStrategy 每 N 个事件拍一次快照
type EventCountStrategy struct {
	Frequency int64
}

func (s EventCountStrategy) ShouldSnapshot(version int64, eventsSinceSnapshot int64, _ time.Duration) bool {
	return s.Frequency > 0 && eventsSinceSnapshot >= s.Frequency
}

// TimeIntervalStrategy 距上次快照超过时间间隔即拍快照
type TimeIntervalStrategy struct {
	Interval time.Duration
}

func (s TimeIntervalStrategy) ShouldSnapshot(_ int64, eventsSinceSnapshot int64, sinceSnapshot time.Duration) bool {
	return s.Interval > 0 && eventsSinceSnapshot > 0 && sinceSnapshot >= s.Interval
}

var _ IStrategy = NeverStrategy{}
var _ IStrategy = EventCountStrategy{}
var _ IStrategy = TimeIntervalStrategy{}
