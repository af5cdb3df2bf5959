// Package processing 提供事件处理器、投影与长驻执行器
//
// 处理器订阅全部事件、只对注册过的载荷类型作出反应；投影在此之上
// 维护内存读模型并对外提供查询处理器。
package processing

import (
	"context"

	"loom/eventing"
	"loom/query"
	"loom/routing"
)

// IProcessor 事件处理器接口
type IProcessor interface {
	// Name 处理器名，用于日志与追赶检查点
	Name() string

	// Handle 处理单个事件，未注册的载荷类型静默忽略
	Handle(ctx context.Context, e eventing.Event) error
}

// Processor 事件处理器基础实现，内嵌进具体处理器类型
type Processor struct {
	name  string
	table *routing.Table
}

// NewProcessor 创建处理器基础实现
func NewProcessor(name string) *Processor {
	return &Processor{
		name:  name,
		table: routing.NewTable("processor."+name, routing.MissIgnore),
	}
}

func (p *Processor) Name() string { return p.name }

// Handle 按载荷具体类型分发到注册的处理函数
func (p *Processor) Handle(ctx context.Context, e eventing.Event) error {
	_, err := p.table.Dispatch(ctx, e.Payload, e)
	return err
}

var _ IProcessor = (*Processor)(nil)
var _ eventing.IEventHandler = (*Processor)(nil)

// HandlesEvent 注册载荷处理函数，重复注册即 panic（构建期装配）
func HandlesEvent[E any](p *Processor, fn func(ctx context.Context, payload E) error) {
	p.table.MustRegister(routing.TypeOf[E](), func(ctx context.Context, msg any) (any, error) {
		return nil, fn(ctx, msg.(E))
	}, false)
}

// HandlesEnvelope 注册需要完整事件信封的处理函数
//
// 分发键仍是载荷类型 E，处理函数收到携带标识、序号与因果链的
// 完整事件。
func HandlesEnvelope[E any](p *Processor, fn func(ctx context.Context, e eventing.Event) error) {
	p.table.MustRegister(routing.TypeOf[E](), func(ctx context.Context, msg any) (any, error) {
		return nil, fn(ctx, msg.(eventing.Event))
	}, true)
}

// Projection 投影：事件处理器加查询处理器
//
// 事件处理函数维护内存读模型，查询从同一状态同步应答。
type Projection struct {
	*Processor
	queries *query.Router
}

// NewProjection 创建投影基础实现
func NewProjection(name string) *Projection {
	return &Projection{
		Processor: NewProcessor(name),
		queries:   query.NewRouter(),
	}
}

// QueryRouter 投影的查询路由器，装配进查询总线使用
func (p *Projection) QueryRouter() *query.Router {
	return p.queries
}

// HandlesQuery 注册投影查询处理函数，重复注册即 panic
func HandlesQuery[Q query.IQuery](p *Projection, fn func(ctx context.Context, q Q) (any, error)) {
	query.MustRegisterHandler(p.queries, fn)
}
