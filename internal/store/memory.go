package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/jmerrifield20/qldb/internal/ledger"
)

// MemoryStore is an in-memory, thread-safe Store. Its content is lost when
// the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	records []ledger.Record
	blocks  []ledger.Block
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// AppendRecord implements Store.
func (s *MemoryStore) AppendRecord(_ context.Context, rec ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tail := tailOf(s.records); rec.PrevHash != tail {
		return fmt.Errorf("%w: prevhash %q, tail %q", ErrStaleTail, rec.PrevHash, tail)
	}
	s.records = append(s.records, rec)
	return nil
}

// Records implements Store.
func (s *MemoryStore) Records(_ context.Context) ([]ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records), nil
}

// Tail implements Store.
func (s *MemoryStore) Tail(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tailOf(s.records), nil
}

// AppendBlock implements Store.
func (s *MemoryStore) AppendBlock(_ context.Context, blk ledger.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	blk.Entries = slices.Clone(blk.Entries)
	s.blocks = append(s.blocks, blk)
	return nil
}

// Blocks implements Store.
func (s *MemoryStore) Blocks(_ context.Context) ([]ledger.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Block, len(s.blocks))
	for i, b := range s.blocks {
		b.Entries = slices.Clone(b.Entries)
		out[i] = b
	}
	return out, nil
}

// Replace implements Store.
func (s *MemoryStore) Replace(_ context.Context, records []ledger.Record, blocks []ledger.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = slices.Clone(records)
	s.blocks = make([]ledger.Block, len(blocks))
	for i, b := range blocks {
		b.Entries = slices.Clone(b.Entries)
		s.blocks[i] = b
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
