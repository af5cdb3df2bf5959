package snapshot

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore 内存快照存储，支持单快照与多版本两种模式
type MemoryStore struct {
	mode Mode

	mu    sync.RWMutex
	snaps map[string][]Snapshot // 按版本升序
}

// NewMemoryStore 创建内存快照存储
func NewMemoryStore(mode Mode) *MemoryStore {
	return &MemoryStore{
		mode:  mode,
		snaps: make(map[string][]Snapshot),
	}
}

var _ IStore = (*MemoryStore)(nil)

func (s *MemoryStore) Save(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == ModeSingle {
		s.snaps[snap.AggregateID] = []Snapshot{snap}
		return nil
	}

	versions := s.snaps[snap.AggregateID]
	// 同版本覆盖，否则插入保持升序
	for i, existing := range versions {
		if existing.Version == snap.Version {
			versions[i] = snap
			return nil
		}
	}
	versions = append(versions, snap)
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	s.snaps[snap.AggregateID] = versions
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, aggregateID string, maxVersion int64) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.snaps[aggregateID]
	for i := len(versions) - 1; i >= 0; i-- {
		if maxVersion <= 0 || versions[i].Version <= maxVersion {
			return versions[i], nil
		}
	}
	return Snapshot{}, ErrSnapshotNotFound
}

func (s *MemoryStore) ListAggregateIDs(ctx context.Context, aggregateType string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.snaps))
	for id, versions := range s.snaps {
		if len(versions) == 0 {
			continue
		}
		if aggregateType == "" || versions[len(versions)-1].AggregateType == aggregateType {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Delete(ctx context.Context, aggregateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, aggregateID)
	return nil
}
