package configstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is an in-memory config store for demo/development mode.
type MemoryStore struct {
	docs map[string]*Document
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory config store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*Document)}
}

func (m *MemoryStore) Get(_ context.Context, walletAddress string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[walletAddress]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *doc
	cp.Config = append(json.RawMessage(nil), doc.Config...)
	return &cp, nil
}

func (m *MemoryStore) Put(_ context.Context, walletAddress string, config json.RawMessage) (*Document, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	doc := &Document{
		WalletAddress: walletAddress,
		Config:        append(json.RawMessage(nil), config...),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if prev, ok := m.docs[walletAddress]; ok {
		doc.Version = prev.Version + 1
		doc.CreatedAt = prev.CreatedAt
	}
	m.docs[walletAddress] = doc

	cp := *doc
	cp.Config = append(json.RawMessage(nil), doc.Config...)
	return &cp, nil
}

func (m *MemoryStore) Delete(_ context.Context, walletAddress string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[walletAddress]; !ok {
		return ErrNotFound
	}
	delete(m.docs, walletAddress)
	return nil
}
