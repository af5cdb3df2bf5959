package middleware

import (
	"context"
	"time"

	"loom/command"
	"loom/errors"
	"loom/eventing"
	"loom/logging"
)

// RetryConfig 并发冲突重试配置
type RetryConfig struct {
	// MaxAttempts 总尝试次数（含首次），必须大于 0
	MaxAttempts int

	// RetryDelay 两次尝试之间的等待，必须不小于 0
	RetryDelay time.Duration
}

// DefaultRetryConfig 默认重试配置
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, RetryDelay: 50 * time.Millisecond}
}

// ConcurrencyRetryMiddleware 并发冲突重试中间件
//
// 只重试乐观并发冲突，其余错误立即上抛。最后一次尝试之后不再
// 等待；重试耗尽时包装最后一次冲突错误返回。
type ConcurrencyRetryMiddleware struct {
	cfg    RetryConfig
	logger logging.Logger
}

// NewConcurrencyRetryMiddleware 创建重试中间件
func NewConcurrencyRetryMiddleware(cfg RetryConfig, logger logging.Logger) (*ConcurrencyRetryMiddleware, error) {
	if cfg.MaxAttempts <= 0 {
		return nil, errors.NewErrorf(errors.ErrCodeConfiguration,
			"retry max attempts %d must be positive", cfg.MaxAttempts)
	}
	if cfg.RetryDelay < 0 {
		return nil, errors.NewErrorf(errors.ErrCodeConfiguration,
			"retry delay %v must not be negative", cfg.RetryDelay)
	}
	if logger == nil {
		logger = logging.ComponentLogger("command.retry")
	}
	return &ConcurrencyRetryMiddleware{cfg: cfg, logger: logger}, nil
}

func (m *ConcurrencyRetryMiddleware) Intercept(ctx context.Context, cmd command.ICommand, next command.HandlerFunc) error {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		err := next(ctx, cmd)
		if err == nil {
			return nil
		}
		if !eventing.IsConcurrencyError(err) {
			return err
		}
		lastErr = err
		m.logger.Warn(ctx, "concurrency conflict, will retry",
			logging.String("aggregate_id", cmd.GetAggregateID()),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", m.cfg.MaxAttempts))

		if attempt < m.cfg.MaxAttempts && m.cfg.RetryDelay > 0 {
			timer := time.NewTimer(m.cfg.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return errors.WrapError(lastErr, errors.ErrCodeConcurrency, "retry attempts exhausted")
}

var _ command.IMiddleware = (*ConcurrencyRetryMiddleware)(nil)
