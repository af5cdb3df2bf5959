package sqlite

import (
	"context"
	"database/sql"
	"time"

	"loom/errors"
	"loom/eventing"
	"loom/eventing/store"
)

const eventsDDL = `
CREATE TABLE IF NOT EXISTS events (
	global_seq      INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id        TEXT    NOT NULL UNIQUE,
	aggregate_id    TEXT    NOT NULL,
	sequence_number INTEGER NOT NULL,
	timestamp_ns    INTEGER NOT NULL,
	payload_type    TEXT    NOT NULL,
	payload         BLOB    NOT NULL,
	correlation_id  TEXT    NOT NULL DEFAULT '',
	causation_id    TEXT    NOT NULL DEFAULT '',
	UNIQUE (aggregate_id, sequence_number)
);
CREATE INDEX IF NOT EXISTS idx_events_aggregate ON events (aggregate_id, sequence_number);
`

// EventStore persists events in SQLite with the optimistic lock held
// inside a single transaction. Payloads go through the registry as
// (type name, JSON).
type EventStore struct {
	db       *DB
	registry *eventing.PayloadRegistry
}

// NewEventStore creates the schema if needed.
func NewEventStore(db *DB, registry *eventing.PayloadRegistry) (*EventStore, error) {
	if db == nil {
		return nil, errors.NewError(errors.ErrCodeConfiguration, "sqlite db is nil")
	}
	if registry == nil {
		return nil, errors.NewError(errors.ErrCodeConfiguration, "payload registry is nil")
	}
	if err := db.migrate(eventsDDL); err != nil {
		return nil, err
	}
	return &EventStore{db: db, registry: registry}, nil
}

var _ store.IEventStore = (*EventStore)(nil)

func (s *EventStore) SaveEvents(ctx context.Context, events []eventing.Event, expectedVersion int64) error {
	if len(events) == 0 {
		return nil
	}
	if err := store.ValidateBatch(events, expectedVersion); err != nil {
		return err
	}
	aggregateID := events[0].AggregateID

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return &eventing.StoreError{Op: "save", Cause: err}
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM events WHERE aggregate_id = ?`,
		aggregateID).Scan(&current)
	if err != nil {
		return &eventing.StoreError{Op: "save", Cause: err}
	}
	if current != expectedVersion {
		return &eventing.ConcurrencyError{
			AggregateID:     aggregateID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   current,
		}
	}

	for _, e := range events {
		name, payload, err := s.registry.Marshal(e.Payload)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO events (event_id, aggregate_id, sequence_number, timestamp_ns,
				payload_type, payload, correlation_id, causation_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.AggregateID, e.SequenceNumber, e.Timestamp.UnixNano(),
			name, payload, e.CorrelationID, e.CausationID)
		if err != nil {
			return &eventing.StoreError{Op: "save", Cause: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &eventing.StoreError{Op: "save", Cause: err}
	}
	return nil
}

func (s *EventStore) LoadEvents(ctx context.Context, aggregateID string, afterVersion int64) ([]eventing.Event, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT event_id, aggregate_id, sequence_number, timestamp_ns,
			payload_type, payload, correlation_id, causation_id
		 FROM events WHERE aggregate_id = ? AND sequence_number > ?
		 ORDER BY sequence_number`,
		aggregateID, afterVersion)
	if err != nil {
		return nil, &eventing.StoreError{Op: "load", Cause: err}
	}
	defer rows.Close()
	return s.scanEvents(rows)
}

func (s *EventStore) LoadAllEvents(ctx context.Context) ([]eventing.Event, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT event_id, aggregate_id, sequence_number, timestamp_ns,
			payload_type, payload, correlation_id, causation_id
		 FROM events ORDER BY global_seq`)
	if err != nil {
		return nil, &eventing.StoreError{Op: "load-all", Cause: err}
	}
	defer rows.Close()
	return s.scanEvents(rows)
}

func (s *EventStore) RewriteEvents(ctx context.Context, events []eventing.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return &eventing.StoreError{Op: "rewrite", Cause: err}
	}
	defer tx.Rollback()

	for _, e := range events {
		name, payload, err := s.registry.Marshal(e.Payload)
		if err != nil {
			return err
		}
		// Identity columns in the predicate: only the payload may change
		result, err := tx.ExecContext(ctx,
			`UPDATE events SET payload_type = ?, payload = ?
			 WHERE event_id = ? AND aggregate_id = ? AND sequence_number = ?`,
			name, payload, e.ID, e.AggregateID, e.SequenceNumber)
		if err != nil {
			return &eventing.StoreError{Op: "rewrite", Cause: err}
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return &eventing.StoreError{Op: "rewrite", Cause: err}
		}
		if affected != 1 {
			return errors.NewErrorf(errors.ErrCodeStorage,
				"rewrite of event %s does not match a stored event", e.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return &eventing.StoreError{Op: "rewrite", Cause: err}
	}
	return nil
}

func (s *EventStore) scanEvents(rows *sql.Rows) ([]eventing.Event, error) {
	var events []eventing.Event
	for rows.Next() {
		var (
			e           eventing.Event
			timestampNS int64
			payloadType string
			payload     []byte
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.SequenceNumber, &timestampNS,
			&payloadType, &payload, &e.CorrelationID, &e.CausationID); err != nil {
			return nil, &eventing.StoreError{Op: "scan", Cause: err}
		}
		e.Timestamp = time.Unix(0, timestampNS).UTC()
		decoded, err := s.registry.Unmarshal(payloadType, payload)
		if err != nil {
			return nil, err
		}
		e.Payload = decoded
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &eventing.StoreError{Op: "scan", Cause: err}
	}
	return events, nil
}
