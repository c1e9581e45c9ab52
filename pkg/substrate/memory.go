package substrate

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-node setups. The
// Tx handle is ignored; callers that need batch rollback take a Snapshot
// before applying and invoke the returned restore func on failure.
type MemoryStore struct {
	mu           sync.RWMutex
	blocks       map[string]*Block
	contextItems map[string]*ContextItem
	rawDumps     map[string]*RawDump
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blocks:       make(map[string]*Block),
		contextItems: make(map[string]*ContextItem),
		rawDumps:     make(map[string]*RawDump),
	}
}

// RunInTx runs fn with snapshot/restore semantics: if fn fails, every
// mutation it made through this store is rolled back.
func (s *MemoryStore) RunInTx(_ context.Context, fn func(tx Tx) error) error {
	restore := s.Snapshot()
	if err := fn(nil); err != nil {
		restore()
		return err
	}
	return nil
}

// Snapshot captures the current state and returns a func restoring it.
func (s *MemoryStore) Snapshot() func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	blocks := make(map[string]*Block, len(s.blocks))
	for k, v := range s.blocks {
		copied := *v
		blocks[k] = &copied
	}
	items := make(map[string]*ContextItem, len(s.contextItems))
	for k, v := range s.contextItems {
		copied := *v
		items[k] = &copied
	}
	dumps := make(map[string]*RawDump, len(s.rawDumps))
	for k, v := range s.rawDumps {
		copied := *v
		dumps[k] = &copied
	}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.blocks = blocks
		s.contextItems = items
		s.rawDumps = dumps
	}
}

func (s *MemoryStore) CreateBlock(_ context.Context, _ Tx, b *Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	if b.State == "" {
		b.State = "PROPOSED"
	}
	copied := *b
	s.blocks[b.ID] = &copied
	return nil
}

func (s *MemoryStore) ReviseBlock(_ context.Context, _ Tx, id, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[id]
	if !ok {
		return ErrBlockNotFound
	}
	b.Body = body
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ArchiveBlock(_ context.Context, _ Tx, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[id]
	if !ok {
		return ErrBlockNotFound
	}
	b.State = "ARCHIVED"
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CreateContextItem(_ context.Context, _ Tx, item *ContextItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now
	copied := *item
	s.contextItems[item.ID] = &copied
	return nil
}

func (s *MemoryStore) EditContextItem(_ context.Context, _ Tx, id, label, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.contextItems[id]
	if !ok {
		return ErrContextItemNotFound
	}
	item.Label = label
	item.Content = content
	item.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CreateRawDump(_ context.Context, _ Tx, dump *RawDump) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dump.CreatedAt = time.Now().UTC()
	copied := *dump
	s.rawDumps[dump.ID] = &copied
	return nil
}

// GetBlock returns a copy of a stored block, for tests.
func (s *MemoryStore) GetBlock(id string) (*Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[id]
	if !ok {
		return nil, false
	}
	copied := *b
	return &copied, true
}

// Counts returns the number of stored blocks, context items, and raw dumps.
func (s *MemoryStore) Counts() (blocks, items, dumps int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks), len(s.contextItems), len(s.rawDumps)
}
