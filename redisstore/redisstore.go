// Package redisstore provides Redis-backed idempotency and saga state
// stores for multi-process deployments where the in-memory backends do
// not suffice.
package redisstore

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"loom/command/middleware"
	"loom/errors"
	"loom/logging"
	"loom/saga"
)

var _ middleware.IIdempotencyStore = (*IdempotencyStore)(nil)
var _ saga.IStateStore = (*SagaStateStore)(nil)

// client captures the subset of go-redis commands we rely on (for easier testing).
type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SIsMember(ctx context.Context, key string, member interface{}) *redis.BoolCmd
	Close() error
}

// Config describes how the stores connect to Redis.
type Config struct {
	// Client takes precedence over Addr when set.
	Client redis.UniversalClient

	Addr     string
	Username string
	Password string
	DB       int

	// KeyPrefix namespaces every key, default "loom:".
	KeyPrefix string

	Logger logging.Logger
}

func (cfg *Config) applyDefaults() {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "loom:"
	}
}

func (cfg *Config) connect() (client, bool, error) {
	if cfg.Client != nil {
		return cfg.Client, false, nil
	}
	if cfg.Addr == "" {
		return nil, false, errors.NewError(errors.ErrCodeConfiguration, "redis client or addr required")
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), true, nil
}

// IdempotencyStore keeps command idempotency keys in Redis.
type IdempotencyStore struct {
	client    client
	ownClient bool
	prefix    string
	ttl       time.Duration
	logger    logging.Logger
}

// NewIdempotencyStore constructs a Redis idempotency backend.
//
// ttl bounds how long keys are retained; 0 keeps them forever.
func NewIdempotencyStore(cfg Config, ttl time.Duration) (*IdempotencyStore, error) {
	cfg.applyDefaults()
	cl, own, err := cfg.connect()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.ComponentLogger("redisstore.idempotency")
	}
	return &IdempotencyStore{
		client:    cl,
		ownClient: own,
		prefix:    cfg.KeyPrefix + "idem:",
		ttl:       ttl,
		logger:    logger,
	}, nil
}

func (s *IdempotencyStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, errors.WrapError(err, errors.ErrCodeStorage, "idempotency key lookup failed")
	}
	return n > 0, nil
}

func (s *IdempotencyStore) Record(ctx context.Context, key string) error {
	// SETNX keeps the first record's TTL under concurrent recording
	if err := s.client.SetNX(ctx, s.prefix+key, "1", s.ttl).Err(); err != nil {
		return errors.WrapError(err, errors.ErrCodeStorage, "idempotency key record failed")
	}
	return nil
}

// Close releases the connection when the store owns it.
func (s *IdempotencyStore) Close() error {
	if !s.ownClient {
		return nil
	}
	return s.client.Close()
}

// SagaStateStore keeps saga state blobs and completed-step sets in Redis.
//
// Layout: <prefix>saga:<id>:state holds the serialized state,
// <prefix>saga:<id>:steps is a set of completed step names.
type SagaStateStore struct {
	client    client
	ownClient bool
	prefix    string
	logger    logging.Logger
}

// NewSagaStateStore constructs a Redis saga state backend.
func NewSagaStateStore(cfg Config) (*SagaStateStore, error) {
	cfg.applyDefaults()
	cl, own, err := cfg.connect()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.ComponentLogger("redisstore.saga")
	}
	return &SagaStateStore{
		client:    cl,
		ownClient: own,
		prefix:    cfg.KeyPrefix + "saga:",
		logger:    logger,
	}, nil
}

func (s *SagaStateStore) stateKey(sagaID string) string { return s.prefix + sagaID + ":state" }
func (s *SagaStateStore) stepsKey(sagaID string) string { return s.prefix + sagaID + ":steps" }

func (s *SagaStateStore) Load(ctx context.Context, sagaID string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, s.stateKey(sagaID)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.WrapError(err, errors.ErrCodeStorage, "saga state load failed")
	}
	return raw, true, nil
}

func (s *SagaStateStore) Save(ctx context.Context, sagaID string, state []byte) error {
	if err := s.client.Set(ctx, s.stateKey(sagaID), state, 0).Err(); err != nil {
		return errors.WrapError(err, errors.ErrCodeStorage, "saga state save failed")
	}
	return nil
}

func (s *SagaStateStore) Delete(ctx context.Context, sagaID string) error {
	if err := s.client.Del(ctx, s.stateKey(sagaID), s.stepsKey(sagaID)).Err(); err != nil {
		return errors.WrapError(err, errors.ErrCodeStorage, "saga state delete failed")
	}
	return nil
}

func (s *SagaStateStore) MarkStepComplete(ctx context.Context, sagaID, stepName string) (bool, error) {
	added, err := s.client.SAdd(ctx, s.stepsKey(sagaID), stepName).Result()
	if err != nil {
		return false, errors.WrapError(err, errors.ErrCodeStorage, "saga step mark failed")
	}
	return added > 0, nil
}

func (s *SagaStateStore) IsStepComplete(ctx context.Context, sagaID, stepName string) (bool, error) {
	done, err := s.client.SIsMember(ctx, s.stepsKey(sagaID), stepName).Result()
	if err != nil {
		return false, errors.WrapError(err, errors.ErrCodeStorage, "saga step lookup failed")
	}
	return done, nil
}

// Close releases the connection when the store owns it.
func (s *SagaStateStore) Close() error {
	if !s.ownClient {
		return nil
	}
	return s.client.Close()
}
