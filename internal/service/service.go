// Package service implements the ledger's command surface on top of a
// store.Store: appending records, querying history, sealing blocks,
// verification, inclusion proofs and snapshot export/import.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmerrifield20/qldb/internal/ledger"
	"github.com/jmerrifield20/qldb/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when no record, block or leaf matches a query.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientRecords is returned by SealBlock when fewer than a
	// block's worth of unsealed records exist.
	ErrInsufficientRecords = errors.New("not enough unsealed records to seal a block")
	// ErrInvalidInput is returned for a missing id or malformed data.
	ErrInvalidInput = errors.New("invalid input")
)

// Options configures a Service.
type Options struct {
	BlockSize int  // defaults to ledger.DefaultBlockSize
	AutoSeal  bool // seal as soon as BlockSize unsealed records exist
}

// Service is the ledger API used by the CLI and the HTTP handlers.
// Writers are serialised by the service; readers work on store snapshots.
type Service struct {
	store     store.Store
	blockSize int
	autoSeal  bool
	now       func() time.Time
	mu        sync.Mutex
	logger    *zap.Logger
}

// New creates a Service over st.
func New(st store.Store, opts Options, logger *zap.Logger) *Service {
	if opts.BlockSize <= 0 {
		opts.BlockSize = ledger.DefaultBlockSize
	}
	return &Service{
		store:     st,
		blockSize: opts.BlockSize,
		autoSeal:  opts.AutoSeal,
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock replaces the time source used to stamp records and blocks.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// BlockSize returns the configured number of records per block.
func (s *Service) BlockSize() int { return s.blockSize }

// Add appends a record for id carrying data, linked to the current tail.
// When auto-sealing is enabled and a full window of unsealed records is
// available afterwards, a block is sealed as well.
func (s *Service) Add(ctx context.Context, id string, data json.RawMessage) (ledger.Record, error) {
	if strings.TrimSpace(id) == "" {
		return ledger.Record{}, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if _, err := ledger.CanonicalJSON(data); err != nil {
		return ledger.Record{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var rec ledger.Record
	// A second attempt covers another process appending between Tail and
	// AppendRecord on a shared store.
	for attempt := 0; ; attempt++ {
		tail, err := s.store.Tail(ctx)
		if err != nil {
			return ledger.Record{}, fmt.Errorf("read tail: %w", err)
		}
		rec, err = ledger.NewRecordAt(id, data, tail, s.now().Unix())
		if err != nil {
			return ledger.Record{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		err = s.store.AppendRecord(ctx, rec)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrStaleTail) && attempt == 0 {
			s.logger.Warn("chain tail moved during append, retrying", zap.String("id", id))
			continue
		}
		return ledger.Record{}, fmt.Errorf("append record: %w", err)
	}

	recordsAppended.Inc()
	s.logger.Info("record appended",
		zap.String("id", rec.ID),
		zap.String("hash", rec.Hash),
		zap.String("prevhash", rec.PrevHash),
	)

	if s.autoSeal {
		blk, err := s.sealLocked(ctx)
		switch {
		case err == nil:
			s.logger.Info("block auto-sealed", zap.String("merkle_root", blk.MerkleRoot))
		case errors.Is(err, ErrInsufficientRecords):
		default:
			// The record is durable; a failed seal is retried on the next append.
			s.logger.Error("auto-seal failed", zap.Error(err))
		}
	}
	return rec, nil
}

// Get returns the most recent record appended for id.
func (s *Service) Get(ctx context.Context, id string) (ledger.Record, error) {
	records, err := s.store.Records(ctx)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("read records: %w", err)
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].ID == id {
			return records[i], nil
		}
	}
	return ledger.Record{}, fmt.Errorf("record %q: %w", id, ErrNotFound)
}

// History returns every record appended for id, oldest first.
func (s *Service) History(ctx context.Context, id string) ([]ledger.Record, error) {
	records, err := s.store.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}

	var history []ledger.Record
	for _, r := range records {
		if r.ID == id {
			history = append(history, r)
		}
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("history of %q: %w", id, ErrNotFound)
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp < history[j].Timestamp
	})
	return history, nil
}

// List returns every record in append order.
func (s *Service) List(ctx context.Context) ([]ledger.Record, error) {
	records, err := s.store.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return records, nil
}

// Overview summarises the ledger.
type Overview struct {
	Records   int    `json:"records"`
	Blocks    int    `json:"blocks"`
	Unsealed  int    `json:"unsealed"`
	Tail      string `json:"tail"`
	BlockSize int    `json:"block_size"`
}

// Overview returns record and block counts and the chain tail.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	records, err := s.store.Records(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("read records: %w", err)
	}
	blocks, err := s.store.Blocks(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("read blocks: %w", err)
	}
	return Overview{
		Records:   len(records),
		Blocks:    len(blocks),
		Unsealed:  len(records) - sealedCount(blocks),
		Tail:      tailHash(records),
		BlockSize: s.blockSize,
	}, nil
}

func tailHash(records []ledger.Record) string {
	if len(records) == 0 {
		return ledger.GenesisPrevHash
	}
	return records[len(records)-1].Hash
}

func sealedCount(blocks []ledger.Block) int {
	n := 0
	for _, b := range blocks {
		n += len(b.Entries)
	}
	return n
}
