package assignments

import (
	"context"
	"sync"
)

// memoryStore 内存实现，供测试和无 Redis 的本地开发使用
type memoryStore struct {
	mu   sync.RWMutex
	data map[string][]string
}

// NewMemoryStore 创建内存派单方案存储
func NewMemoryStore() Store {
	return &memoryStore{data: make(map[string][]string)}
}

func (s *memoryStore) Get(ctx context.Context, riderID, date string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orderIDs := s.data[assignmentKey(riderID, date)]
	out := make([]string, len(orderIDs))
	copy(out, orderIDs)
	return out, nil
}

func (s *memoryStore) Save(ctx context.Context, riderID, date string, orderIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[assignmentKey(riderID, date)] = dedupe(orderIDs)
	return nil
}

func (s *memoryStore) Clear(ctx context.Context, riderID, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, assignmentKey(riderID, date))
	return nil
}
