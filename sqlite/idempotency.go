package sqlite

import (
	"context"
	"time"

	"loom/command/middleware"
	"loom/errors"
)

const idempotencyDDL = `
CREATE TABLE IF NOT EXISTS idempotency_keys (
	key            TEXT PRIMARY KEY,
	recorded_at_ns INTEGER NOT NULL
);
`

// IdempotencyStore persists command idempotency keys. Expired keys are
// filtered on read and purged opportunistically on record.
type IdempotencyStore struct {
	db  *DB
	ttl time.Duration
}

// NewIdempotencyStore creates the schema if needed.
//
// ttl bounds how long keys are retained; 0 keeps them forever.
func NewIdempotencyStore(db *DB, ttl time.Duration) (*IdempotencyStore, error) {
	if db == nil {
		return nil, errors.NewError(errors.ErrCodeConfiguration, "sqlite db is nil")
	}
	if err := db.migrate(idempotencyDDL); err != nil {
		return nil, err
	}
	return &IdempotencyStore{db: db, ttl: ttl}, nil
}

var _ middleware.IIdempotencyStore = (*IdempotencyStore)(nil)

func (s *IdempotencyStore) Seen(ctx context.Context, key string) (bool, error) {
	var count int
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM idempotency_keys WHERE key = ? AND recorded_at_ns > ?`,
		key, s.cutoffNS()).Scan(&count)
	if err != nil {
		return false, errors.WrapError(err, errors.ErrCodeStorage, "idempotency key lookup")
	}
	return count > 0, nil
}

func (s *IdempotencyStore) Record(ctx context.Context, key string) error {
	if _, err := s.db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO idempotency_keys (key, recorded_at_ns) VALUES (?, ?)`,
		key, time.Now().UnixNano()); err != nil {
		return errors.WrapError(err, errors.ErrCodeStorage, "idempotency key record")
	}
	if s.ttl > 0 {
		if _, err := s.db.conn.ExecContext(ctx,
			`DELETE FROM idempotency_keys WHERE recorded_at_ns <= ?`, s.cutoffNS()); err != nil {
			return errors.WrapError(err, errors.ErrCodeStorage, "idempotency key cleanup")
		}
	}
	return nil
}

func (s *IdempotencyStore) cutoffNS() int64 {
	if s.ttl <= 0 {
		return 0
	}
	return time.Now().Add(-s.ttl).UnixNano()
}
