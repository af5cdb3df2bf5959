package app

import (
	"context"
	stderrors "errors"
	"sync"

	"loom/aggregate"
	"loom/command"
	"loom/errors"
	"loom/eventing"
	"loom/logging"
	"loom/processing"
	"loom/query"
)

type executorEntry struct {
	executor *processing.Executor
	selector eventing.StreamSelector
}

// Application 装配完成的应用
type Application struct {
	commands     *command.Bus
	queries      *query.Bus
	transport    eventing.ITransport
	repositories map[string]*aggregate.Repository
	executors    []executorEntry
	logger       logging.Logger

	closeOnce sync.Once
}

// Dispatch 派发命令
func (a *Application) Dispatch(ctx context.Context, cmd command.ICommand) error {
	return a.commands.Dispatch(ctx, cmd)
}

// Query 派发查询
func (a *Application) Query(ctx context.Context, q query.IQuery) (any, error) {
	return a.queries.Dispatch(ctx, q)
}

// Repository 按聚合类型名取仓储（追赶策略等扩展装配用）
func (a *Application) Repository(aggregateType string) (*aggregate.Repository, bool) {
	repo, ok := a.repositories[aggregateType]
	return repo, ok
}

// RunEventProcessors 运行全部处理器执行器直到出错或 ctx 取消
//
// 同步投递模式下没有执行器，立即返回。取消导致的退出不算错误。
func (a *Application) RunEventProcessors(ctx context.Context) error {
	if len(a.executors) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(a.executors))
	for _, entry := range a.executors {
		sub, err := a.transport.Subscribe(entry.selector)
		if err != nil {
			return errors.WrapError(err, errors.ErrCodeTransport, "subscribe for processor failed")
		}
		wg.Add(1)
		go func(entry executorEntry, sub eventing.ISubscription) {
			defer wg.Done()
			defer sub.Close()
			if err := entry.executor.Run(ctx, sub); err != nil && !stderrors.Is(err, context.Canceled) {
				errCh <- err
			}
		}(entry, sub)
	}

	wg.Wait()
	close(errCh)
	return <-errCh
}

// Close 关闭事件传输，令所有订阅走到流尾
func (a *Application) Close() error {
	var err error
	a.closeOnce.Do(func() {
		err = a.transport.Close()
	})
	return err
}
