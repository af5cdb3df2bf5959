package store

import (
	"context"
	"sync"

	"loom/errors"
	"loom/eventing"
)

// MemoryEventStore 内存事件存储（测试与单机默认实现）
type MemoryEventStore struct {
	mu      sync.RWMutex
	streams map[string][]eventing.Event
	log     []eventKey
}

type eventKey struct {
	aggregateID string
	sequence    int64
}

// NewMemoryEventStore 创建内存事件存储
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		streams: make(map[string][]eventing.Event),
	}
}

var _ IEventStore = (*MemoryEventStore)(nil)

func (s *MemoryEventStore) SaveEvents(ctx context.Context, events []eventing.Event, expectedVersion int64) error {
	if len(events) == 0 {
		return nil
	}
	if err := ValidateBatch(events, expectedVersion); err != nil {
		return err
	}

	aggregateID := events[0].AggregateID

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[aggregateID]
	currentVersion := int64(0)
	if len(stream) > 0 {
		currentVersion = stream[len(stream)-1].SequenceNumber
	}
	if currentVersion != expectedVersion {
		return &eventing.ConcurrencyError{
			AggregateID:     aggregateID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   currentVersion,
		}
	}

	s.streams[aggregateID] = append(stream, events...)
	for _, e := range events {
		s.log = append(s.log, eventKey{aggregateID: aggregateID, sequence: e.SequenceNumber})
	}
	return nil
}

func (s *MemoryEventStore) LoadEvents(ctx context.Context, aggregateID string, afterVersion int64) ([]eventing.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[aggregateID]
	result := make([]eventing.Event, 0, len(stream))
	for _, e := range stream {
		if e.SequenceNumber > afterVersion {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryEventStore) LoadAllEvents(ctx context.Context) ([]eventing.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]eventing.Event, 0, len(s.log))
	for _, key := range s.log {
		for _, e := range s.streams[key.aggregateID] {
			if e.SequenceNumber == key.sequence {
				result = append(result, e)
				break
			}
		}
	}
	return result, nil
}

func (s *MemoryEventStore) RewriteEvents(ctx context.Context, events []eventing.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		stream, ok := s.streams[e.AggregateID]
		if !ok {
			return errors.NewErrorf(errors.ErrCodeNotFound, "rewrite: aggregate %s has no events", e.AggregateID)
		}
		replaced := false
		for i := range stream {
			if stream[i].SequenceNumber == e.SequenceNumber {
				if stream[i].ID != e.ID {
					return errors.NewErrorf(errors.ErrCodeInvalidInput,
						"rewrite: event identity mismatch for %s/%d", e.AggregateID, e.SequenceNumber)
				}
				stream[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			return errors.NewErrorf(errors.ErrCodeNotFound,
				"rewrite: event %s/%d not found", e.AggregateID, e.SequenceNumber)
		}
	}
	return nil
}

// ValidateBatch 校验一次提交的事件批次
//
// 全部事件须属于同一聚合，序号自 expectedVersion+1 起连续。
func ValidateBatch(events []eventing.Event, expectedVersion int64) error {
	if len(events) == 0 {
		return nil
	}
	if expectedVersion < 0 {
		return errors.NewErrorf(errors.ErrCodeInvalidInput, "expected version %d is negative", expectedVersion)
	}
	aggregateID := events[0].AggregateID
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return err
		}
		if e.AggregateID != aggregateID {
			return errors.NewErrorf(errors.ErrCodeInvalidInput,
				"batch mixes aggregates %s and %s", aggregateID, e.AggregateID)
		}
		want := expectedVersion + int64(i) + 1
		if e.SequenceNumber != want {
			return errors.NewErrorf(errors.ErrCodeInvalidInput,
				"event sequence %d out of order, want %d", e.SequenceNumber, want)
		}
	}
	return nil
}
