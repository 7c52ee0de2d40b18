package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

// InMemoryStore 是基于进程内 map 的历史存储，
// 用于本地开发、测试与单实例部署。
type InMemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]types.Message
	closed   bool
	logger   *zap.Logger
}

// NewInMemoryStore 创建内存历史存储。
func NewInMemoryStore(logger *zap.Logger) *InMemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryStore{
		messages: make(map[string][]types.Message),
		logger:   logger.With(zap.String("component", "memory_store_inmemory")),
	}
}

func (s *InMemoryStore) Append(ctx context.Context, sessionID string, msgs ...types.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.messages[sessionID] = append(s.messages[sessionID], msgs...)
	return nil
}

func (s *InMemoryStore) History(ctx context.Context, sessionID string) ([]types.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	msgs := s.messages[sessionID]
	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *InMemoryStore) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.messages, sessionID)
	return nil
}

func (s *InMemoryStore) Sessions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	ids := make([]string, 0, len(s.messages))
	for id := range s.messages {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.messages = make(map[string][]types.Message)
	return nil
}
