package processing

import (
	"context"
	"sync"
	"time"
)

// Checkpoint 快照式追赶的可恢复进度
type Checkpoint struct {
	// ProcessorName 所属处理器
	ProcessorName string

	// ProcessedAggregateIDs 已投影完成的聚合标识集合
	ProcessedAggregateIDs map[string]struct{}

	// MaxTimestamp 已纳入投影的事件的最大时间戳
	MaxTimestamp time.Time

	// EventsProcessed 累计投影事件数
	EventsProcessed int64
}

// NewCheckpoint 创建空检查点
func NewCheckpoint(processorName string) Checkpoint {
	return Checkpoint{
		ProcessorName:         processorName,
		ProcessedAggregateIDs: make(map[string]struct{}),
	}
}

// Processed 查询聚合是否已投影
func (c Checkpoint) Processed(aggregateID string) bool {
	_, ok := c.ProcessedAggregateIDs[aggregateID]
	return ok
}

// MarkProcessed 记录聚合投影完成
func (c *Checkpoint) MarkProcessed(aggregateID string, lastEventAt time.Time, eventCount int64) {
	if c.ProcessedAggregateIDs == nil {
		c.ProcessedAggregateIDs = make(map[string]struct{})
	}
	c.ProcessedAggregateIDs[aggregateID] = struct{}{}
	c.EventsProcessed += eventCount
	if lastEventAt.After(c.MaxTimestamp) {
		c.MaxTimestamp = lastEventAt
	}
}

func (c Checkpoint) clone() Checkpoint {
	ids := make(map[string]struct{}, len(c.ProcessedAggregateIDs))
	for id := range c.ProcessedAggregateIDs {
		ids[id] = struct{}{}
	}
	c.ProcessedAggregateIDs = ids
	return c
}

// ICheckpointBackend 检查点持久化后端
type ICheckpointBackend interface {
	// Load 读取处理器的检查点，不存在时 found 为 false
	Load(ctx context.Context, processorName string) (cp Checkpoint, found bool, err error)

	// Save 保存检查点（整体覆盖）
	Save(ctx context.Context, cp Checkpoint) error
}

// MemoryCheckpointBackend 内存检查点后端
type MemoryCheckpointBackend struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
}

// NewMemoryCheckpointBackend 创建内存检查点后端
func NewMemoryCheckpointBackend() *MemoryCheckpointBackend {
	return &MemoryCheckpointBackend{checkpoints: make(map[string]Checkpoint)}
}

var _ ICheckpointBackend = (*MemoryCheckpointBackend)(nil)

func (b *MemoryCheckpointBackend) Load(ctx context.Context, processorName string) (Checkpoint, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cp, ok := b.checkpoints[processorName]
	if !ok {
		return Checkpoint{}, false, nil
	}
	return cp.clone(), true, nil
}

func (b *MemoryCheckpointBackend) Save(ctx context.Context, cp Checkpoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkpoints[cp.ProcessorName] = cp.clone()
	return nil
}
