package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/alebrije/pos/internal/domain"
)

// kvStoreInMemory: key-value хранилище терминала в памяти процесса.
type kvStoreInMemory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewKeyValueStore возвращает in-memory хранилище для локальной разработки и тестов.
func NewKeyValueStore() domain.KeyValueStore {
	return &kvStoreInMemory{items: make(map[string][]byte)}
}

// Get возвращает копию значения или ErrKeyNotFound.
func (s *kvStoreInMemory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.items[key]
	if !ok {
		return nil, domain.ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

// Set перезаписывает значение ключа.
func (s *kvStoreInMemory) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = append([]byte(nil), value...)
	return nil
}

// Delete удаляет ключ; отсутствие ключа ошибкой не считается.
func (s *kvStoreInMemory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

// List возвращает копии всех пар с заданным префиксом.
func (s *kvStoreInMemory) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string][]byte)
	for key, value := range s.items {
		if strings.HasPrefix(key, prefix) {
			result[key] = append([]byte(nil), value...)
		}
	}
	return result, nil
}

var _ domain.KeyValueStore = (*kvStoreInMemory)(nil)
