package cache

import (
	"strings"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is a process-local Store. It backs the volatile cache and tests.
// Expiry is decided by Cache from the stored entry, so items never expire here.
type MemoryStore struct {
	items *gocache.Cache
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: gocache.New(gocache.NoExpiration, 0)}
}

func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	obj, found := s.items.Get(key)
	if !found {
		return nil, false, nil
	}
	val := obj.([]byte)
	cp := make([]byte, len(val))
	copy(cp, val)
	return cp, true, nil
}

func (s *MemoryStore) Set(key string, val []byte) error {
	cp := make([]byte, len(val))
	copy(cp, val)
	s.items.Set(key, cp, gocache.NoExpiration)
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.items.Delete(key)
	return nil
}

func (s *MemoryStore) DeletePrefix(prefix string) error {
	for key := range s.items.Items() {
		if strings.HasPrefix(key, prefix) {
			s.items.Delete(key)
		}
	}
	return nil
}

func (s *MemoryStore) DeleteAll() error {
	s.items.Flush()
	return nil
}

// Len returns the number of stored keys, expired or not.
func (s *MemoryStore) Len() int {
	return s.items.ItemCount()
}
