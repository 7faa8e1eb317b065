package core

import (
	"context"
	"os"
	"sync"
)

// MemoryStore holds the usage document in process memory. It backs
// tests and the degraded mode used when no remote store credentials are
// configured; data does not survive a restart.
type MemoryStore struct {
	mu       sync.Mutex
	document []byte
	exists   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) ([]UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists {
		return nil, ErrDocumentNotFound
	}
	return DecodeDocument(s.document)
}

func (s *MemoryStore) Publish(_ context.Context, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.document = content
	s.exists = true
	s.mu.Unlock()
	return nil
}

// Seed sets the stored document directly, for tests and tooling.
func (s *MemoryStore) Seed(document []byte) {
	s.mu.Lock()
	s.document = document
	s.exists = true
	s.mu.Unlock()
}
