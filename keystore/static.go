package keystore

import (
	"context"
	"fmt"
	"sync"
)

// Static is an in-memory key service keyed by address exactly as given.
type Static struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

// NewStatic returns a Static holding a copy of keys.
func NewStatic(keys map[string][]byte) *Static {
	s := &Static{keys: make(map[string][]byte, len(keys))}
	for addr, k := range keys {
		s.keys[addr] = append([]byte(nil), k...)
	}
	return s
}

// Set stores key for address.
func (s *Static) Set(address string, key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[address] = append([]byte(nil), key...)
}

// FetchPrivateKey returns the key for address or ErrKeyNotFound.
func (s *Static) FetchPrivateKey(_ context.Context, address string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, address)
	}
	return append([]byte(nil), k...), nil
}
