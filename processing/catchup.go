package processing

import (
	"context"
	"time"

	"loom/aggregate"
	"loom/errors"
	"loom/eventing"
	"loom/eventing/store"
	"loom/logging"
)

// CatchupResult 追赶结果
//
// SkipBefore 非零时构成跳过窗口：时间戳不晚于该时刻的事件已在
// 追赶中纳入，执行器不再派发。
type CatchupResult struct {
	SkipBefore time.Time
}

// ShouldSkip 判断事件是否落在跳过窗口内
func (r CatchupResult) ShouldSkip(e eventing.Event) bool {
	if r.SkipBefore.IsZero() {
		return false
	}
	return !e.Timestamp.After(r.SkipBefore)
}

// ICatchupStrategy 追赶策略
type ICatchupStrategy interface {
	Catchup(ctx context.Context, p IProcessor) (CatchupResult, error)
}

// NoCatchup 不追赶，立即返回空结果
type NoCatchup struct{}

func (NoCatchup) Catchup(context.Context, IProcessor) (CatchupResult, error) {
	return CatchupResult{}, nil
}

var _ ICatchupStrategy = NoCatchup{}

// ReplayAllEvents 全量重放追赶：把事件存储的完整历史按全局顺序
// 喂给处理器。阻塞直到重放完成，不产生跳过窗口。
type ReplayAllEvents struct {
	Store store.IEventStore
}

func (s ReplayAllEvents) Catchup(ctx context.Context, p IProcessor) (CatchupResult, error) {
	if s.Store == nil {
		return CatchupResult{}, errors.NewError(errors.ErrCodeConfiguration, "replay catchup store is nil")
	}
	events, err := s.Store.LoadAllEvents(ctx)
	if err != nil {
		return CatchupResult{}, err
	}
	for _, e := range events {
		if err := p.Handle(ctx, e); err != nil {
			return CatchupResult{}, err
		}
	}
	return CatchupResult{}, nil
}

var _ ICatchupStrategy = ReplayAllEvents{}

// IProjector 把聚合状态翻译为处理器状态
type IProjector interface {
	Project(ctx context.Context, agg aggregate.IAggregate, p IProcessor) error
}

// ProjectorFunc 函数形式的投影器
type ProjectorFunc func(ctx context.Context, agg aggregate.IAggregate, p IProcessor) error

func (f ProjectorFunc) Project(ctx context.Context, agg aggregate.IAggregate, p IProcessor) error {
	return f(ctx, agg, p)
}

// 每处理多少个聚合持久化一次检查点
const checkpointPersistEvery = 100

// FromAggregateSnapshot 快照式追赶：从快照存储列出某聚合类型的
// 全部标识，逐个获取聚合（快照加增量事件）并交投影器翻译成处理
// 器状态。进度记入检查点，中断后可跳过已完成的聚合续跑；返回的
// 跳过窗口覆盖已纳入的最大事件时间戳。
type FromAggregateSnapshot struct {
	repo      *aggregate.Repository
	projector IProjector
	backend   ICheckpointBackend
	logger    logging.Logger
}

// NewFromAggregateSnapshot 创建快照式追赶策略
func NewFromAggregateSnapshot(repo *aggregate.Repository, projector IProjector, backend ICheckpointBackend, logger logging.Logger) (*FromAggregateSnapshot, error) {
	if repo == nil {
		return nil, errors.NewError(errors.ErrCodeConfiguration, "snapshot catchup repository is nil")
	}
	if repo.SnapshotStore() == nil {
		return nil, errors.NewError(errors.ErrCodeConfiguration, "snapshot catchup repository has no snapshot store")
	}
	if projector == nil {
		return nil, errors.NewError(errors.ErrCodeConfiguration, "snapshot catchup projector is nil")
	}
	if backend == nil {
		return nil, errors.NewError(errors.ErrCodeConfiguration, "snapshot catchup checkpoint backend is nil")
	}
	if logger == nil {
		logger = logging.ComponentLogger("catchup." + repo.AggregateType())
	}
	return &FromAggregateSnapshot{repo: repo, projector: projector, backend: backend, logger: logger}, nil
}

var _ ICatchupStrategy = (*FromAggregateSnapshot)(nil)

func (s *FromAggregateSnapshot) Catchup(ctx context.Context, p IProcessor) (CatchupResult, error) {
	cp, found, err := s.backend.Load(ctx, p.Name())
	if err != nil {
		return CatchupResult{}, errors.WrapError(err, errors.ErrCodeStorage, "load catchup checkpoint failed")
	}
	if !found {
		cp = NewCheckpoint(p.Name())
	}

	ids, err := s.repo.SnapshotStore().ListAggregateIDs(ctx, s.repo.AggregateType())
	if err != nil {
		return CatchupResult{}, errors.WrapError(err, errors.ErrCodeStorage, "list aggregate ids failed")
	}

	projected := 0
	for _, id := range ids {
		if cp.Processed(id) {
			continue
		}
		scope, err := s.repo.Acquire(ctx, id)
		if err != nil {
			return CatchupResult{}, err
		}
		agg := scope.Aggregate()
		projectErr := s.projector.Project(ctx, agg, p)
		scope.Discard()
		if projectErr != nil {
			return CatchupResult{}, projectErr
		}

		cp.MarkProcessed(id, agg.LastEventAt(), agg.Version())
		projected++
		if projected%checkpointPersistEvery == 0 {
			if err := s.backend.Save(ctx, cp); err != nil {
				return CatchupResult{}, errors.WrapError(err, errors.ErrCodeStorage, "save catchup checkpoint failed")
			}
		}
	}

	if err := s.backend.Save(ctx, cp); err != nil {
		return CatchupResult{}, errors.WrapError(err, errors.ErrCodeStorage, "save catchup checkpoint failed")
	}
	s.logger.Info(ctx, "snapshot catchup finished",
		logging.String("processor", p.Name()),
		logging.Int("aggregates", projected),
		logging.Int64("events_processed", cp.EventsProcessed))
	return CatchupResult{SkipBefore: cp.MaxTimestamp}, nil
}
