package saga

import (
	"context"
	"sync"
)

// MemoryStateStore 内存流程状态存储
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string][]byte
	steps  map[string]map[string]struct{}
}

// NewMemoryStateStore 创建内存流程状态存储
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states: make(map[string][]byte),
		steps:  make(map[string]map[string]struct{}),
	}
}

var _ IStateStore = (*MemoryStateStore)(nil)

func (s *MemoryStateStore) Load(ctx context.Context, sagaID string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[sagaID]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), state...), true, nil
}

func (s *MemoryStateStore) Save(ctx context.Context, sagaID string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[sagaID] = append([]byte(nil), state...)
	return nil
}

func (s *MemoryStateStore) Delete(ctx context.Context, sagaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sagaID)
	delete(s.steps, sagaID)
	return nil
}

func (s *MemoryStateStore) MarkStepComplete(ctx context.Context, sagaID, stepName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	completed, ok := s.steps[sagaID]
	if !ok {
		completed = make(map[string]struct{})
		s.steps[sagaID] = completed
	}
	if _, done := completed[stepName]; done {
		return false, nil
	}
	completed[stepName] = struct{}{}
	return true, nil
}

func (s *MemoryStateStore) IsStepComplete(ctx context.Context, sagaID, stepName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, done := s.steps[sagaID][stepName]
	return done, nil
}
