package middleware

import (
	"context"
	"sync"
	"time"

	"loom/command"
	"loom/errors"
	"loom/logging"
)

// IIdempotencyStore 幂等键存储
type IIdempotencyStore interface {
	// Seen 查询幂等键是否已记录
	Seen(ctx context.Context, key string) (bool, error)

	// Record 记录幂等键
	Record(ctx context.Context, key string) error
}

// IdempotencyMiddleware 幂等中间件
//
// 携带已见幂等键的命令被静默跳过（返回成功、无副作用）；
// 键只在命令成功后记录，失败的命令可以原样重发。
type IdempotencyMiddleware struct {
	store  IIdempotencyStore
	logger logging.Logger
}

// NewIdempotencyMiddleware 创建幂等中间件
func NewIdempotencyMiddleware(store IIdempotencyStore, logger logging.Logger) (*IdempotencyMiddleware, error) {
	if store == nil {
		return nil, errors.NewError(errors.ErrCodeConfiguration, "idempotency store is nil")
	}
	if logger == nil {
		logger = logging.ComponentLogger("command.idempotency")
	}
	return &IdempotencyMiddleware{store: store, logger: logger}, nil
}

func (m *IdempotencyMiddleware) Intercept(ctx context.Context, cmd command.ICommand, next command.HandlerFunc) error {
	key := ""
	if keyed, ok := cmd.(command.HasIdempotencyKey); ok {
		key = keyed.IdempotencyKey()
	}
	if key == "" {
		return next(ctx, cmd)
	}

	seen, err := m.store.Seen(ctx, key)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeStorage, "idempotency check failed")
	}
	if seen {
		m.logger.Info(ctx, "duplicate command skipped",
			logging.String("idempotency_key", key),
			logging.String("aggregate_id", cmd.GetAggregateID()))
		return nil
	}

	if err := next(ctx, cmd); err != nil {
		return err
	}

	// 记录失败只告警：命令已成功，重复执行由调用方容忍
	if err := m.store.Record(ctx, key); err != nil {
		m.logger.Warn(ctx, "idempotency record failed",
			logging.String("idempotency_key", key), logging.Error(err))
	}
	return nil
}

var _ command.IMiddleware = (*IdempotencyMiddleware)(nil)

// MemoryIdempotencyStore 内存幂等键存储，带 TTL 清理
type MemoryIdempotencyStore struct {
	ttl time.Duration

	mu   sync.Mutex
	keys map[string]time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryIdempotencyStore 创建内存幂等存储
//
// ttl 为键的保留时长，0 表示永不过期（仅建议测试使用）。
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	s := &MemoryIdempotencyStore{
		ttl:  ttl,
		keys: make(map[string]time.Time),
		stop: make(chan struct{}),
	}
	if ttl > 0 {
		go s.cleanupLoop()
	}
	return s
}

var _ IIdempotencyStore = (*MemoryIdempotencyStore)(nil)

func (s *MemoryIdempotencyStore) Seen(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recordedAt, ok := s.keys[key]
	if !ok {
		return false, nil
	}
	if s.ttl > 0 && time.Since(recordedAt) >= s.ttl {
		delete(s.keys, key)
		return false, nil
	}
	return true, nil
}

func (s *MemoryIdempotencyStore) Record(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = time.Now()
	return nil
}

// Close 停止后台清理
func (s *MemoryIdempotencyStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryIdempotencyStore) cleanupLoop() {
	interval := s.ttl
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			now := time.Now()
			for key, recordedAt := range s.keys {
				if now.Sub(recordedAt) >= s.ttl {
					delete(s.keys, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
