// Package store provides the durable key/value backing for the metric cache.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

const maxKeyLength = 127

// ErrInvalidKey is returned for empty or over-long keys.
var ErrInvalidKey = errors.New("invalid store key")

// Store is a durable key to value map. Values are opaque bytes; a Set for an
// existing key replaces the previous value atomically.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Len(ctx context.Context) (int, error)
	Close() error
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	if len(key) > maxKeyLength {
		return fmt.Errorf("%w: key too long: %d bytes (max %d)", ErrInvalidKey, len(key), maxKeyLength)
	}
	return nil
}

// MemoryStore is a non-durable Store used by tests and ephemeral runs.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Len(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data), nil
}

func (*MemoryStore) Close() error { return nil }
