package storage

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/uuid"
)

var _ InboundEmailStore = (*MemoryInboundEmailStore)(nil)

type MemoryInboundEmailStore struct {
	mu         sync.RWMutex
	emails     map[string]InboundEmail
	byChecksum map[string]string
	order      []string
}

func NewMemoryInboundEmailStore() *MemoryInboundEmailStore {
	return &MemoryInboundEmailStore{
		emails:     make(map[string]InboundEmail),
		byChecksum: make(map[string]string),
	}
}

func (s *MemoryInboundEmailStore) CreateInboundEmail(_ context.Context, e InboundEmail) (string, error) {
	if e.Checksum == "" {
		e.Checksum = Checksum(e.Raw)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byChecksum[e.Checksum]; ok {
		return id, nil
	}

	id := uuid.NewString()
	e.Raw = bytes.Clone(e.Raw)
	s.emails[id] = e
	s.byChecksum[e.Checksum] = id
	s.order = append(s.order, id)
	return id, nil
}

func (s *MemoryInboundEmailStore) Get(_ context.Context, id string) (InboundEmail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.emails[id]
	if !ok {
		return InboundEmail{}, ErrNotFound
	}
	e.Raw = bytes.Clone(e.Raw)
	return e, nil
}

// IDs returns stored ids in insertion order.
func (s *MemoryInboundEmailStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}
