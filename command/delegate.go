package command

import (
	"context"
	"reflect"

	"loom/aggregate"
	"loom/errors"
	"loom/routing"
)

// commandTabler 暴露命令分发表的聚合（由 aggregate.Base 提供）
type commandTabler interface {
	CommandTable() *routing.Table
}

// DelegateToAggregate 根处理器：把命令转交给目标聚合
//
// 命令类型到仓储的映射在装配期通过探测聚合实例的命令表建立。
// 处理流程：按命令类型找到仓储 → 获取聚合作用域 → 聚合处理命令
// → 提交或丢弃。
type DelegateToAggregate struct {
	routes map[reflect.Type]*aggregate.Repository
}

// NewDelegateToAggregate 创建聚合委派处理器
func NewDelegateToAggregate() *DelegateToAggregate {
	return &DelegateToAggregate{
		routes: make(map[reflect.Type]*aggregate.Repository),
	}
}

// RegisterAggregate 注册聚合仓储，命令类型取自聚合的命令表
func (d *DelegateToAggregate) RegisterAggregate(repo *aggregate.Repository) error {
	probe := repo.NewInstance("probe")
	tabler, ok := probe.(commandTabler)
	if !ok {
		return errors.NewErrorf(errors.ErrCodeConfiguration,
			"aggregate %s does not expose a command table", repo.AggregateType())
	}
	types := tabler.CommandTable().Types()
	if len(types) == 0 {
		return errors.NewErrorf(errors.ErrCodeConfiguration,
			"aggregate %s registers no command handlers", repo.AggregateType())
	}
	for _, typ := range types {
		if existing, exists := d.routes[typ]; exists {
			return errors.NewErrorf(errors.ErrCodeDuplicate,
				"command %v already routed to aggregate %s", typ, existing.AggregateType())
		}
		d.routes[typ] = repo
	}
	return nil
}

// Handle 处理命令
func (d *DelegateToAggregate) Handle(ctx context.Context, cmd ICommand) error {
	repo, ok := d.routes[reflect.TypeOf(cmd)]
	if !ok {
		return &routing.NoHandlerError{Table: "command.delegate", MessageType: reflect.TypeOf(cmd)}
	}
	return repo.With(ctx, cmd.GetAggregateID(), func(agg aggregate.IAggregate) error {
		return agg.HandleCommand(ctx, cmd)
	})
}
