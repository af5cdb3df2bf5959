// Package saga 提供带状态与步骤幂等的流程处理器
//
// 长事务拆成命名步骤，每个步骤在状态存储中记录完成标记；事件重投
// 时已完成的步骤被跳过，保证每个（流程、步骤）至多执行一次。
package saga

import (
	"context"

	"loom/errors"
	"loom/eventing"
	"loom/logging"
	"loom/processing"
)

// IStateStore 流程状态存储
type IStateStore interface {
	// Load 读取流程状态，不存在时 found 为 false
	Load(ctx context.Context, sagaID string) (state []byte, found bool, err error)

	// Save 保存流程状态（整体覆盖）
	Save(ctx context.Context, sagaID string, state []byte) error

	// Delete 删除流程状态与全部步骤标记
	Delete(ctx context.Context, sagaID string) error

	// MarkStepComplete 标记步骤完成，首次标记返回 true
	MarkStepComplete(ctx context.Context, sagaID, stepName string) (bool, error)

	// IsStepComplete 查询步骤是否已完成
	IsStepComplete(ctx context.Context, sagaID, stepName string) (bool, error)
}

// HasSagaID 载荷携带流程标识时实现此接口（默认提取方式）
type HasSagaID interface {
	SagaID() string
}

// IDExtractor 从事件中提取流程标识
type IDExtractor func(e eventing.Event) string

// Saga 流程处理器基础实现，内嵌进具体流程类型
type Saga struct {
	*processing.Processor
	store  IStateStore
	logger logging.Logger
}

// New 创建流程处理器
func New(name string, store IStateStore, logger logging.Logger) (*Saga, error) {
	if store == nil {
		return nil, errors.NewError(errors.ErrCodeConfiguration, "saga state store is nil")
	}
	if logger == nil {
		logger = logging.ComponentLogger("saga." + name)
	}
	return &Saga{
		Processor: processing.NewProcessor(name),
		store:     store,
		logger:    logger,
	}, nil
}

// StateStore 流程状态存储
func (s *Saga) StateStore() IStateStore {
	return s.store
}

// Step 把事件处理函数包装成幂等步骤并注册
//
// extractor 为 nil 时要求载荷实现 HasSagaID；两者都取不到流程
// 标识时返回错误而非静默跳过。处理成功才标记完成，失败可重投。
func Step[E any](s *Saga, stepName string, extractor IDExtractor, fn func(ctx context.Context, sagaID string, e eventing.Event) error) {
	processing.HandlesEnvelope[E](s.Processor, func(ctx context.Context, e eventing.Event) error {
		sagaID := extractSagaID(e, extractor)
		if sagaID == "" {
			return errors.NewErrorf(errors.ErrCodeInvalidInput,
				"saga %s step %s: no saga id on event %s", s.Name(), stepName, e.ID)
		}

		complete, err := s.store.IsStepComplete(ctx, sagaID, stepName)
		if err != nil {
			return errors.WrapError(err, errors.ErrCodeStorage, "saga step completion check failed")
		}
		if complete {
			s.logger.Info(ctx, "saga step already complete, skipping",
				logging.String("saga_id", sagaID),
				logging.String("step", stepName),
				logging.String("event_id", e.ID))
			return nil
		}

		if err := fn(ctx, sagaID, e); err != nil {
			return err
		}

		if _, err := s.store.MarkStepComplete(ctx, sagaID, stepName); err != nil {
			return errors.WrapError(err, errors.ErrCodeStorage, "saga step completion mark failed")
		}
		return nil
	})
}

func extractSagaID(e eventing.Event, extractor IDExtractor) string {
	if extractor != nil {
		return extractor(e)
	}
	if keyed, ok := e.Payload.(HasSagaID); ok {
		return keyed.SagaID()
	}
	return ""
}
