package localcart

import (
	"context"
	"sync"
)

// Backend persists the encoded local cart as a single opaque blob.
// Load returns (nil, nil) when nothing has been stored yet.
//
// Update is an atomic read-modify-write: fn receives the current blob and
// returns the replacement, or nil to leave the blob untouched. Every Backend
// over the same storage location serializes its Updates, so separate Stores
// sharing a file or Redis key never lose each other's writes. fn may be
// called more than once.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error
	Delete(ctx context.Context) error
}

// locationLocks hands out one mutex per storage location. Backends built
// independently for the same file path or Redis key share the mutex.
type locationLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var storageLocks = &locationLocks{locks: make(map[string]*sync.Mutex)}

func (l *locationLocks) get(location string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[location]
	if !ok {
		m = &sync.Mutex{}
		l.locks[location] = m
	}
	return m
}

// MemoryBackend keeps the blob in process memory. Used in tests and when
// durability is disabled by configuration.
type MemoryBackend struct {
	mu   sync.Mutex
	data []byte

	// LoadErr and SaveErr force failures for tests.
	LoadErr error
	SaveErr error
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Load(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return m.copyData(), nil
}

func (m *MemoryBackend) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return m.LoadErr
	}
	next, err := fn(m.copyData())
	if err != nil || next == nil {
		return err
	}
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.data = append(m.data[:0:0], next...)
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}

func (m *MemoryBackend) copyData() []byte {
	if m.data == nil {
		return nil
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}
