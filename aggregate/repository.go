package aggregate

import (
	"context"
	stderrors "errors"
	"time"

	"loom/aggregate/snapshot"
	"loom/errors"
	"loom/eventing"
	"loom/eventing/bus"
	"loom/logging"
)

// Factory 构造空聚合实例
type Factory func(id string) IAggregate

// Config 仓储配置
type Config struct {
	// AggregateType 聚合类型名（快照与追赶用）
	AggregateType string

	// Factory 聚合工厂
	Factory Factory

	// Bus 事件总线
	Bus *bus.EventBus

	// Cache 聚合缓存，nil 表示不缓存
	Cache ICache

	// Snapshots 快照存储，nil 表示不用快照
	Snapshots snapshot.IStore

	// SnapshotStrategy 快照触发策略，nil 表示永不
	SnapshotStrategy snapshot.IStrategy

	Logger logging.Logger
}

// Repository 事件溯源聚合仓储
//
// 获取流程：缓存 → 快照 → 快照之后的事件回放。
// 提交流程：以命令前版本为期望版本发布未提交事件，成功后清空、
// 更新缓存、按策略拍快照；失败则丢弃且不产生副作用。
type Repository struct {
	aggregateType string
	factory       Factory
	bus           *bus.EventBus
	cache         ICache
	snapshots     snapshot.IStore
	strategy      snapshot.IStrategy
	logger        logging.Logger
}

// NewRepository 创建仓储
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.AggregateType == "" {
		return nil, errors.NewError(errors.ErrCodeConfiguration, "repository aggregate type is empty")
	}
	if cfg.Factory == nil {
		return nil, errors.NewError(errors.ErrCodeConfiguration, "repository factory is nil")
	}
	if cfg.Bus == nil {
		return nil, errors.NewError(errors.ErrCodeConfiguration, "repository event bus is nil")
	}
	if cfg.Cache == nil {
		cfg.Cache = NullCache{}
	}
	if cfg.SnapshotStrategy == nil {
		cfg.SnapshotStrategy = snapshot.NeverStrategy{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("repository." + cfg.AggregateType)
	}
	return &Repository{
		aggregateType: cfg.AggregateType,
		factory:       cfg.Factory,
		bus:           cfg.Bus,
		cache:         cfg.Cache,
		snapshots:     cfg.Snapshots,
		strategy:      cfg.SnapshotStrategy,
		logger:        cfg.Logger,
	}, nil
}

// AggregateType 聚合类型名
func (r *Repository) AggregateType() string {
	return r.aggregateType
}

// NewInstance 构造空聚合（装配期探测命令类型用）
func (r *Repository) NewInstance(id string) IAggregate {
	return r.factory(id)
}

// SnapshotStore 快照存储，未配置时为 nil
func (r *Repository) SnapshotStore() snapshot.IStore {
	return r.snapshots
}

// Scope 一次聚合操作的作用域
//
// Commit 与 Discard 恰好调用其一；重复调用是编程错误。
type Scope struct {
	repo *Repository
	agg  IAggregate

	snapshotVersion int64
	snapshotAt      time.Time
	finished        bool
}

// Aggregate 作用域内的聚合实例
func (s *Scope) Aggregate() IAggregate {
	return s.agg
}

// Acquire 获取聚合作用域
//
// 聚合不存在时返回版本为 0 的新实例，由创建型命令产生首个事件。
func (r *Repository) Acquire(ctx context.Context, id string) (*Scope, error) {
	if id == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "aggregate id is empty")
	}

	if cached, ok := r.cache.Get(id); ok {
		return &Scope{repo: r, agg: cached, snapshotVersion: cached.Version()}, nil
	}

	agg := r.factory(id)
	scope := &Scope{repo: r, agg: agg}

	afterVersion := int64(0)
	if r.snapshots != nil {
		if ss, ok := agg.(ISnapshottable); ok {
			snap, err := r.snapshots.Load(ctx, id, 0)
			switch {
			case err == nil:
				if err := ss.RestoreSnapshot(snap.Version, snap.TakenAt, snap.State); err != nil {
					return nil, err
				}
				afterVersion = snap.Version
				scope.snapshotVersion = snap.Version
				scope.snapshotAt = snap.TakenAt
			case stderrors.Is(err, snapshot.ErrSnapshotNotFound):
				// 无快照，完整回放
			default:
				return nil, err
			}
		}
	}

	events, err := r.bus.Load(ctx, id, afterVersion)
	if err != nil {
		return nil, err
	}
	if err := agg.Replay(ctx, events); err != nil {
		return nil, err
	}
	return scope, nil
}

// Commit 发布未提交事件并更新缓存与快照
func (s *Scope) Commit(ctx context.Context) error {
	if s.finished {
		return errors.NewError(errors.ErrCodeConflict, "scope already finished")
	}
	s.finished = true

	r := s.repo
	agg := s.agg
	events := agg.UncommittedEvents()
	if len(events) == 0 {
		r.cache.Put(agg.AggregateID(), agg)
		return nil
	}

	expectedVersion := agg.Version() - int64(len(events))
	if err := r.bus.Publish(ctx, events, expectedVersion); err != nil {
		agg.ClearUncommitted()
		r.cache.Remove(agg.AggregateID())
		if eventing.IsConcurrencyError(err) {
			r.logger.Debug(ctx, "commit hit concurrency conflict",
				logging.String("aggregate_id", agg.AggregateID()),
				logging.Int64("expected_version", expectedVersion))
		}
		return err
	}

	agg.ClearUncommitted()
	r.cache.Put(agg.AggregateID(), agg)
	r.maybeSnapshot(ctx, s)
	return nil
}

// Discard 丢弃未提交事件并使缓存失效
func (s *Scope) Discard() {
	if s.finished {
		return
	}
	s.finished = true
	s.agg.ClearUncommitted()
	s.repo.cache.Remove(s.agg.AggregateID())
}

func (r *Repository) maybeSnapshot(ctx context.Context, s *Scope) {
	if r.snapshots == nil {
		return
	}
	ss, ok := s.agg.(ISnapshottable)
	if !ok {
		return
	}

	version := s.agg.Version()
	eventsSince := version - s.snapshotVersion
	sinceLast := time.Duration(0)
	if !s.snapshotAt.IsZero() {
		sinceLast = time.Since(s.snapshotAt)
	}
	if !r.strategy.ShouldSnapshot(version, eventsSince, sinceLast) {
		return
	}

	state, err := ss.SnapshotState()
	if err != nil {
		r.logger.Warn(ctx, "snapshot state serialization failed",
			logging.String("aggregate_id", s.agg.AggregateID()), logging.Error(err))
		return
	}
	snap := snapshot.Snapshot{
		AggregateID:   s.agg.AggregateID(),
		AggregateType: r.aggregateType,
		Version:       version,
		TakenAt:       time.Now().UTC(),
		State:         state,
	}
	// 快照失败不影响提交结果，下次满足策略时重试
	if err := r.snapshots.Save(ctx, snap); err != nil {
		r.logger.Warn(ctx, "snapshot save failed",
			logging.String("aggregate_id", s.agg.AggregateID()), logging.Error(err))
	}
}

// With 以保证提交或丢弃的方式操作聚合
//
// fn 返回错误时作用域被丢弃，否则提交。
func (r *Repository) With(ctx context.Context, id string, fn func(agg IAggregate) error) error {
	scope, err := r.Acquire(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(scope.Aggregate()); err != nil {
		scope.Discard()
		return err
	}
	return scope.Commit(ctx)
}
