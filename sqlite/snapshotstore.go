package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"loom/aggregate/snapshot"
	"loom/errors"
)

const snapshotsDDL = `
CREATE TABLE IF NOT EXISTS snapshots (
	aggregate_id   TEXT    NOT NULL,
	aggregate_type TEXT    NOT NULL,
	version        INTEGER NOT NULL,
	taken_at_ns    INTEGER NOT NULL,
	state          BLOB    NOT NULL,
	PRIMARY KEY (aggregate_id, version)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_type ON snapshots (aggregate_type);
`

// SnapshotStore persists aggregate snapshots. In single mode each save
// replaces the aggregate's previous snapshot; in versioned mode every
// version is kept.
type SnapshotStore struct {
	db   *DB
	mode snapshot.Mode
}

// NewSnapshotStore creates the schema if needed.
func NewSnapshotStore(db *DB, mode snapshot.Mode) (*SnapshotStore, error) {
	if db == nil {
		return nil, errors.NewError(errors.ErrCodeConfiguration, "sqlite db is nil")
	}
	if err := db.migrate(snapshotsDDL); err != nil {
		return nil, err
	}
	return &SnapshotStore{db: db, mode: mode}, nil
}

var _ snapshot.IStore = (*SnapshotStore)(nil)

func (s *SnapshotStore) Save(ctx context.Context, snap snapshot.Snapshot) error {
	if snap.AggregateID == "" || snap.Version < 1 {
		return errors.NewError(errors.ErrCodeInvalidInput, "snapshot aggregate id or version invalid")
	}
	if s.mode == snapshot.ModeSingle {
		if _, err := s.db.conn.ExecContext(ctx,
			`DELETE FROM snapshots WHERE aggregate_id = ?`, snap.AggregateID); err != nil {
			return errors.WrapError(err, errors.ErrCodeStorage, "replace snapshot")
		}
	}
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (aggregate_id, aggregate_type, version, taken_at_ns, state)
		 VALUES (?, ?, ?, ?, ?)`,
		snap.AggregateID, snap.AggregateType, snap.Version, snap.TakenAt.UnixNano(), snap.State)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeStorage, "save snapshot")
	}
	return nil
}

func (s *SnapshotStore) Load(ctx context.Context, aggregateID string, maxVersion int64) (snapshot.Snapshot, error) {
	query := `SELECT aggregate_id, aggregate_type, version, taken_at_ns, state
		 FROM snapshots WHERE aggregate_id = ?`
	args := []any{aggregateID}
	if maxVersion > 0 {
		query += ` AND version <= ?`
		args = append(args, maxVersion)
	}
	query += ` ORDER BY version DESC LIMIT 1`

	var (
		snap      snapshot.Snapshot
		takenAtNS int64
	)
	err := s.db.conn.QueryRowContext(ctx, query, args...).Scan(
		&snap.AggregateID, &snap.AggregateType, &snap.Version, &takenAtNS, &snap.State)
	if stderrors.Is(err, sql.ErrNoRows) {
		return snapshot.Snapshot{}, snapshot.ErrSnapshotNotFound
	}
	if err != nil {
		return snapshot.Snapshot{}, errors.WrapError(err, errors.ErrCodeStorage, "load snapshot")
	}
	snap.TakenAt = time.Unix(0, takenAtNS).UTC()
	return snap, nil
}

func (s *SnapshotStore) ListAggregateIDs(ctx context.Context, aggregateType string) ([]string, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT DISTINCT aggregate_id FROM snapshots WHERE aggregate_type = ? ORDER BY aggregate_id`,
		aggregateType)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeStorage, "list snapshot aggregate ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeStorage, "scan snapshot aggregate id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeStorage, "list snapshot aggregate ids")
	}
	return ids, nil
}

func (s *SnapshotStore) Delete(ctx context.Context, aggregateID string) error {
	if _, err := s.db.conn.ExecContext(ctx,
		`DELETE FROM snapshots WHERE aggregate_id = ?`, aggregateID); err != nil {
		return errors.WrapError(err, errors.ErrCodeStorage, "delete snapshots")
	}
	return nil
}
