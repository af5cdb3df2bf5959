// Package app 把各组件装配为可运行的应用
//
// 构建器收集聚合、中间件、处理器、升级器与传输等注册项，填充默
// 认值（内存存储、内存传输、惰性升级），经依赖注入容器解析出完
// 整对象图，产出对外只暴露 Dispatch/Query/RunEventProcessors 的
// 应用实例。
package app

import (
	"context"
	"reflect"

	"loom/aggregate"
	"loom/aggregate/snapshot"
	"loom/command"
	"loom/di"
	"loom/errors"
	"loom/eventing"
	"loom/eventing/bus"
	"loom/eventing/store"
	transportmem "loom/eventing/transport/memory"
	"loom/eventing/upcasting"
	"loom/logging"
	"loom/processing"
	"loom/query"
	"loom/routing"
)

// DeliveryMode 事件投递模式
type DeliveryMode int

const (
	// DeliverSync 同步投递：发布内联调用全部处理器
	DeliverSync DeliveryMode = iota

	// DeliverAsync 异步投递：处理器由执行器经订阅消费
	DeliverAsync
)

// RepositoryOptions 聚合类型级仓储配置
type RepositoryOptions struct {
	Cache            aggregate.ICache
	Snapshots        snapshot.IStore
	SnapshotStrategy snapshot.IStrategy
}

// ProcessorOptions 处理器级执行配置（异步投递模式）
type ProcessorOptions struct {
	BatchSize int
	Condition processing.ICatchupCondition
	Strategy  processing.ICatchupStrategy

	// Selector 处理器的订阅范围，零值表示全部事件
	Selector eventing.StreamSelector
}

type aggregateRegistration struct {
	aggregateType string
	factory       aggregate.Factory
	opts          RepositoryOptions
}

type processorRegistration struct {
	processor processing.IProcessor
	opts      ProcessorOptions
}

// Builder 应用构建器
type Builder struct {
	store       store.IEventStore
	transport   eventing.ITransport
	registry    *eventing.PayloadRegistry
	mode        DeliveryMode
	eager       bool
	upcasters   []upcasting.IUpcaster
	middlewares []command.IMiddleware
	queryMws    []query.IMiddleware
	aggregates  []aggregateRegistration
	processors  []processorRegistration
	projections []*processing.Projection
	logger      logging.Logger
}

// NewBuilder 创建构建器
func NewBuilder() *Builder {
	return &Builder{mode: DeliverSync}
}

// WithEventStore 指定事件存储，默认内存实现
func (b *Builder) WithEventStore(s store.IEventStore) *Builder {
	b.store = s
	return b
}

// WithTransport 指定事件传输，默认内存实现
func (b *Builder) WithTransport(t eventing.ITransport) *Builder {
	b.transport = t
	return b
}

// WithRegistry 指定载荷注册表（持久化传输与流选择器需要）
func (b *Builder) WithRegistry(r *eventing.PayloadRegistry) *Builder {
	b.registry = r
	return b
}

// WithDeliveryMode 指定事件投递模式，默认同步
func (b *Builder) WithDeliveryMode(mode DeliveryMode) *Builder {
	b.mode = mode
	return b
}

// WithUpcasters 追加事件升级器
func (b *Builder) WithUpcasters(upcasters ...upcasting.IUpcaster) *Builder {
	b.upcasters = append(b.upcasters, upcasters...)
	return b
}

// WithEagerUpcasting 读到旧版事件时写回存储，默认惰性
func (b *Builder) WithEagerUpcasting() *Builder {
	b.eager = true
	return b
}

// WithMiddlewares 追加命令中间件，注册顺序即由外向内的包裹顺序
func (b *Builder) WithMiddlewares(middlewares ...command.IMiddleware) *Builder {
	b.middlewares = append(b.middlewares, middlewares...)
	return b
}

// WithQueryMiddlewares 追加查询中间件，包裹顺序与命令中间件一致
func (b *Builder) WithQueryMiddlewares(middlewares ...query.IMiddleware) *Builder {
	b.queryMws = append(b.queryMws, middlewares...)
	return b
}

// WithLogger 指定根日志器
func (b *Builder) WithLogger(logger logging.Logger) *Builder {
	b.logger = logger
	return b
}

// RegisterAggregate 注册聚合类型
func (b *Builder) RegisterAggregate(aggregateType string, factory aggregate.Factory, opts ...RepositoryOptions) *Builder {
	reg := aggregateRegistration{aggregateType: aggregateType, factory: factory}
	if len(opts) > 0 {
		reg.opts = opts[0]
	}
	b.aggregates = append(b.aggregates, reg)
	return b
}

// RegisterProcessor 注册事件处理器
func (b *Builder) RegisterProcessor(p processing.IProcessor, opts ...ProcessorOptions) *Builder {
	reg := processorRegistration{processor: p}
	if len(opts) > 0 {
		reg.opts = opts[0]
	}
	b.processors = append(b.processors, reg)
	return b
}

// RegisterProjection 注册投影：事件侧作为处理器，查询侧并入查询总线
func (b *Builder) RegisterProjection(p *processing.Projection, opts ...ProcessorOptions) *Builder {
	b.projections = append(b.projections, p)
	return b.RegisterProcessor(p, opts...)
}

// Build 装配应用
func (b *Builder) Build() (*Application, error) {
	logger := b.logger
	if logger == nil {
		logger = logging.ComponentLogger("app")
	}

	container := di.New()
	if err := b.registerCore(container, logger); err != nil {
		return nil, err
	}
	if err := container.ResolveAll(); err != nil {
		return nil, err
	}

	var eventBus *bus.EventBus
	if err := container.ResolveTo("*bus.EventBus", &eventBus); err != nil {
		return nil, err
	}
	var transport eventing.ITransport
	if err := container.ResolveTo("ITransport", &transport); err != nil {
		return nil, err
	}

	repositories := make(map[string]*aggregate.Repository, len(b.aggregates))
	delegate := command.NewDelegateToAggregate()
	for _, reg := range b.aggregates {
		repo, err := aggregate.NewRepository(aggregate.Config{
			AggregateType:    reg.aggregateType,
			Factory:          reg.factory,
			Bus:              eventBus,
			Cache:            reg.opts.Cache,
			Snapshots:        reg.opts.Snapshots,
			SnapshotStrategy: reg.opts.SnapshotStrategy,
		})
		if err != nil {
			return nil, err
		}
		if _, exists := repositories[reg.aggregateType]; exists {
			return nil, errors.NewErrorf(errors.ErrCodeConflict,
				"aggregate type %s registered twice", reg.aggregateType)
		}
		repositories[reg.aggregateType] = repo
		if err := delegate.RegisterAggregate(repo); err != nil {
			return nil, err
		}
	}

	commandBus, err := command.NewBus(delegate.Handle, b.middlewares...)
	if err != nil {
		return nil, err
	}

	queryBus, err := query.NewBus(b.queryRoot(), b.queryMws...)
	if err != nil {
		return nil, err
	}

	executors := make([]executorEntry, 0, len(b.processors))
	for _, reg := range b.processors {
		if b.mode == DeliverSync {
			eventBus.RegisterHandler(reg.processor)
			continue
		}
		x, err := processing.NewExecutor(processing.ExecutorConfig{
			Processor: reg.processor,
			BatchSize: reg.opts.BatchSize,
			Condition: reg.opts.Condition,
			Strategy:  reg.opts.Strategy,
		})
		if err != nil {
			return nil, err
		}
		executors = append(executors, executorEntry{executor: x, selector: reg.opts.Selector})
	}

	return &Application{
		commands:     commandBus,
		queries:      queryBus,
		transport:    transport,
		repositories: repositories,
		executors:    executors,
		logger:       logger,
	}, nil
}

// registerCore 把基础组件放进容器，存储与传输未指定时注册内存默认值
func (b *Builder) registerCore(container *di.Container, logger logging.Logger) error {
	eventStore := b.store
	if eventStore == nil {
		eventStore = store.NewMemoryEventStore()
	}
	if err := container.RegisterInstance("IEventStore", eventStore); err != nil {
		return err
	}

	transport := b.transport
	if transport == nil {
		transport = transportmem.NewTransport(b.registry)
	}
	if err := container.RegisterInstance("ITransport", transport); err != nil {
		return err
	}

	if err := container.RegisterFactory("IStrategy", func() (upcasting.IStrategy, error) {
		pipeline, err := upcasting.NewPipeline(b.upcasters...)
		if err != nil {
			return nil, err
		}
		if b.eager {
			return upcasting.NewEagerStrategy(pipeline), nil
		}
		return upcasting.NewLazyStrategy(pipeline), nil
	}); err != nil {
		return err
	}

	if err := container.RegisterFactory("IDeliveryStrategy", func(t eventing.ITransport) eventing.IDeliveryStrategy {
		if b.mode == DeliverSync {
			return eventing.NewSynchronousDelivery(t, logger)
		}
		return eventing.NewAsynchronousDelivery(t)
	}); err != nil {
		return err
	}

	return container.RegisterFactory("*bus.EventBus",
		func(s store.IEventStore, strategy upcasting.IStrategy, delivery eventing.IDeliveryStrategy) *bus.EventBus {
			return bus.NewEventBus(bus.Config{
				Store:    s,
				Strategy: strategy,
				Delivery: delivery,
				Logger:   logger,
			})
		})
}

// queryRoot 跨投影的查询根处理器：派发给声明了该查询类型的投影
func (b *Builder) queryRoot() query.HandlerFunc {
	projections := b.projections
	return func(ctx context.Context, q query.IQuery) (any, error) {
		for _, p := range projections {
			if p.QueryRouter().Handles(q) {
				return p.QueryRouter().Handle(ctx, q)
			}
		}
		return nil, &routing.NoHandlerError{Table: "app.queries", MessageType: reflect.TypeOf(q)}
	}
}
