package sessiondock

import (
	"sync"
	"time"
)

// MemoryStore holds blobs in a map. It backs the memory:// DSN and most of
// the test suite.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]StoredBlob
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock fixes the timestamp source, so tests can pin
// LastModified values.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		blobs: map[string]StoredBlob{},
		now:   now,
	}
}

func (s *MemoryStore) Save(identifier string, data []byte) error {
	if identifier == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[identifier] = StoredBlob{
		Identifier:   identifier,
		Bytes:        append([]byte(nil), data...),
		LastModified: s.now(),
	}
	return nil
}

func (s *MemoryStore) List() ([]StoredBlob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blobs := make([]StoredBlob, 0, len(s.blobs))
	for _, blob := range s.blobs {
		blobs = append(blobs, copyBlob(blob))
	}
	return blobs, nil
}

func (s *MemoryStore) Get(identifier string) (StoredBlob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[identifier]
	if !ok {
		return StoredBlob{}, ErrNotFound
	}
	return copyBlob(blob), nil
}

func (s *MemoryStore) Exists(identifier string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[identifier]
	return ok, nil
}

func (s *MemoryStore) Rename(oldIdentifier, newIdentifier string) error {
	if newIdentifier == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobs[oldIdentifier]
	if !ok {
		return ErrNotFound
	}
	if _, taken := s.blobs[newIdentifier]; taken {
		return ErrConflict
	}
	delete(s.blobs, oldIdentifier)
	blob.Identifier = newIdentifier
	s.blobs[newIdentifier] = blob
	return nil
}

func (s *MemoryStore) UpdateBytes(identifier string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobs[identifier]
	if !ok {
		return ErrNotFound
	}
	blob.Bytes = append([]byte(nil), data...)
	blob.LastModified = s.now()
	s.blobs[identifier] = blob
	return nil
}

func (s *MemoryStore) Delete(identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[identifier]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, identifier)
	return nil
}

func copyBlob(blob StoredBlob) StoredBlob {
	blob.Bytes = append([]byte(nil), blob.Bytes...)
	return blob
}
