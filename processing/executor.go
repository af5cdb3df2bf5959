package processing

import (
	"context"
	stderrors "errors"
	"time"

	"loom/errors"
	"loom/eventing"
	"loom/execctx"
	"loom/logging"
)

// ExecutorConfig 执行器配置
type ExecutorConfig struct {
	// Processor 被驱动的处理器
	Processor IProcessor

	// BatchSize 单批最多拉取的事件数，必须大于 0
	BatchSize int

	// Condition 追赶触发条件，nil 表示永不
	Condition ICatchupCondition

	// Strategy 追赶策略，nil 表示不追赶
	Strategy ICatchupStrategy

	Logger logging.Logger
}

// DefaultBatchSize 默认单批事件数
const DefaultBatchSize = 64

// Executor 处理器执行器
//
// 长驻循环：启动先执行一次追赶，然后反复拉批、逐事件恢复因果
// 上下文并派发，按批计算积压度量，满足条件时再次追赶。追赶返回
// 的跳过窗口只对紧随其后的第一批生效。
type Executor struct {
	processor IProcessor
	batchSize int
	condition ICatchupCondition
	strategy  ICatchupStrategy
	logger    logging.Logger
}

// NewExecutor 创建执行器
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Processor == nil {
		return nil, errors.NewError(errors.ErrCodeConfiguration, "executor processor is nil")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Condition == nil {
		cfg.Condition = NeverCondition{}
	}
	if cfg.Strategy == nil {
		cfg.Strategy = NoCatchup{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("executor." + cfg.Processor.Name())
	}
	return &Executor{
		processor: cfg.Processor,
		batchSize: cfg.BatchSize,
		condition: cfg.Condition,
		strategy:  cfg.Strategy,
		logger:    cfg.Logger,
	}, nil
}

// Run 驱动处理器消费订阅直到流结束、处理出错或 ctx 取消
//
// 返回 nil 表示订阅正常走到流尾。
func (x *Executor) Run(ctx context.Context, sub eventing.ISubscription) error {
	if sub == nil {
		return errors.NewError(errors.ErrCodeInvalidInput, "subscription is nil")
	}

	skip, err := x.strategy.Catchup(ctx, x.processor)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeInternal, "initial catchup failed")
	}

	for {
		batch, err := x.pullBatch(ctx, sub)
		if err != nil {
			if stderrors.Is(err, eventing.ErrEndOfStream) {
				x.logger.Debug(ctx, "subscription reached end of stream",
					logging.String("processor", x.processor.Name()))
				return nil
			}
			return err
		}

		totalAge := time.Duration(0)
		dispatched := 0
		for _, e := range batch {
			totalAge += time.Since(e.Timestamp)
			if skip.ShouldSkip(e) {
				continue
			}
			if err := x.dispatch(ctx, e); err != nil {
				return err
			}
			dispatched++
		}

		meanAge := time.Duration(0)
		if dispatched > 0 {
			meanAge = totalAge / time.Duration(dispatched)
		}
		lag := Lag{Unprocessed: sub.Depth(), AverageEventAge: meanAge}

		// 跳过窗口一次性生效
		skip = CatchupResult{}

		if x.condition.ShouldCatchup(lag) {
			x.logger.Info(ctx, "catchup triggered",
				logging.String("processor", x.processor.Name()),
				logging.Int("unprocessed", lag.Unprocessed),
				logging.Duration("average_event_age", lag.AverageEventAge))
			skip, err = x.strategy.Catchup(ctx, x.processor)
			if err != nil {
				return errors.WrapError(err, errors.ErrCodeInternal, "catchup failed")
			}
		}
	}
}

// pullBatch 拉取一批事件：首个事件阻塞等待，其余只要订阅仍有
// 积压就继续取，最多 batchSize 个
func (x *Executor) pullBatch(ctx context.Context, sub eventing.ISubscription) ([]eventing.Event, error) {
	first, err := sub.Next(ctx)
	if err != nil {
		return nil, err
	}
	batch := make([]eventing.Event, 1, x.batchSize)
	batch[0] = first

	for len(batch) < x.batchSize && sub.Depth() > 0 {
		e, err := sub.Next(ctx)
		if err != nil {
			if stderrors.Is(err, eventing.ErrEndOfStream) {
				break
			}
			return nil, err
		}
		batch = append(batch, e)
	}
	return batch, nil
}

// dispatch 派发单个事件，带因果上下文时在处理期间恢复
func (x *Executor) dispatch(ctx context.Context, e eventing.Event) error {
	hctx := ctx
	if e.CorrelationID != "" {
		hctx = execctx.With(ctx, execctx.ForEvent(e.CorrelationID, e.ID))
	}
	if err := x.processor.Handle(hctx, e); err != nil {
		x.logger.Error(ctx, "event handler failed",
			logging.String("processor", x.processor.Name()),
			logging.String("event_id", e.ID),
			logging.String("aggregate_id", e.AggregateID),
			logging.Error(err))
		return err
	}
	return nil
}
