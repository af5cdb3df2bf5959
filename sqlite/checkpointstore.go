package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"loom/errors"
	"loom/processing"
)

const checkpointsDDL = `
CREATE TABLE IF NOT EXISTS checkpoints (
	processor_name   TEXT PRIMARY KEY,
	processed_ids    TEXT    NOT NULL,
	max_timestamp_ns INTEGER NOT NULL,
	events_processed INTEGER NOT NULL
);
`

// CheckpointStore persists catchup checkpoints. The processed
// aggregate-id set is stored as a JSON array.
type CheckpointStore struct {
	db *DB
}

// NewCheckpointStore creates the schema if needed.
func NewCheckpointStore(db *DB) (*CheckpointStore, error) {
	if db == nil {
		return nil, errors.NewError(errors.ErrCodeConfiguration, "sqlite db is nil")
	}
	if err := db.migrate(checkpointsDDL); err != nil {
		return nil, err
	}
	return &CheckpointStore{db: db}, nil
}

var _ processing.ICheckpointBackend = (*CheckpointStore)(nil)

func (s *CheckpointStore) Load(ctx context.Context, processorName string) (processing.Checkpoint, bool, error) {
	var (
		idsJSON        string
		maxTimestampNS int64
		cp             = processing.NewCheckpoint(processorName)
	)
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT processed_ids, max_timestamp_ns, events_processed
		 FROM checkpoints WHERE processor_name = ?`,
		processorName).Scan(&idsJSON, &maxTimestampNS, &cp.EventsProcessed)
	if stderrors.Is(err, sql.ErrNoRows) {
		return processing.Checkpoint{}, false, nil
	}
	if err != nil {
		return processing.Checkpoint{}, false, errors.WrapError(err, errors.ErrCodeStorage, "load checkpoint")
	}

	var ids []string
	if err := json.Unmarshal([]byte(idsJSON), &ids); err != nil {
		return processing.Checkpoint{}, false, errors.WrapError(err, errors.ErrCodeSerialization, "decode checkpoint ids")
	}
	for _, id := range ids {
		cp.ProcessedAggregateIDs[id] = struct{}{}
	}
	if maxTimestampNS > 0 {
		cp.MaxTimestamp = time.Unix(0, maxTimestampNS).UTC()
	}
	return cp, true, nil
}

func (s *CheckpointStore) Save(ctx context.Context, cp processing.Checkpoint) error {
	ids := make([]string, 0, len(cp.ProcessedAggregateIDs))
	for id := range cp.ProcessedAggregateIDs {
		ids = append(ids, id)
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeSerialization, "encode checkpoint ids")
	}

	maxTimestampNS := int64(0)
	if !cp.MaxTimestamp.IsZero() {
		maxTimestampNS = cp.MaxTimestamp.UnixNano()
	}
	_, err = s.db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO checkpoints (processor_name, processed_ids, max_timestamp_ns, events_processed)
		 VALUES (?, ?, ?, ?)`,
		cp.ProcessorName, string(idsJSON), maxTimestampNS, cp.EventsProcessed)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeStorage, "save checkpoint")
	}
	return nil
}
