package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jmerrifield20/qldb/internal/ledger"
	"go.uber.org/zap"
)

// ErrInvalidSnapshot is returned by Import when the snapshot fails
// verification. Nothing is written in that case.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Snapshot is the export format: the full record sequence and every sealed
// block.
type Snapshot struct {
	Records []ledger.Record `json:"records"`
	Blocks  []ledger.Block  `json:"blocks"`
}

// ImportSummary describes an accepted import.
type ImportSummary struct {
	Records int    `json:"records"`
	Blocks  int    `json:"blocks"`
	Tail    string `json:"tail"`
}

// Export writes a JSON snapshot of the ledger to w.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	records, err := s.store.Records(ctx)
	if err != nil {
		return fmt.Errorf("read records: %w", err)
	}
	blocks, err := s.store.Blocks(ctx)
	if err != nil {
		return fmt.Errorf("read blocks: %w", err)
	}
	if records == nil {
		records = []ledger.Record{}
	}
	if blocks == nil {
		blocks = []ledger.Block{}
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Snapshot{Records: records, Blocks: blocks}); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// Import replaces the ledger with the snapshot read from r. The snapshot
// must be a valid chain starting at the genesis sentinel, every block must
// verify, and the blocks must seal consecutive windows of the records.
func (s *Service) Import(ctx context.Context, r io.Reader) (ImportSummary, error) {
	var snap Snapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&snap); err != nil {
		return ImportSummary{}, fmt.Errorf("%w: decode: %v", ErrInvalidSnapshot, err)
	}
	if err := s.validateSnapshot(snap); err != nil {
		return ImportSummary{}, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Replace(ctx, snap.Records, snap.Blocks); err != nil {
		return ImportSummary{}, fmt.Errorf("replace ledger: %w", err)
	}

	sum := ImportSummary{
		Records: len(snap.Records),
		Blocks:  len(snap.Blocks),
		Tail:    tailHash(snap.Records),
	}
	s.logger.Info("ledger imported",
		zap.Int("records", sum.Records),
		zap.Int("blocks", sum.Blocks),
		zap.String("tail", sum.Tail),
	)
	return sum, nil
}

func (s *Service) validateSnapshot(snap Snapshot) error {
	if len(snap.Records) > 0 && snap.Records[0].PrevHash != ledger.GenesisPrevHash {
		return fmt.Errorf("first record has prevhash %q, want %q",
			snap.Records[0].PrevHash, ledger.GenesisPrevHash)
	}
	if err := ledger.VerifyChain(snap.Records); err != nil {
		return err
	}
	if err := ledger.VerifyBlocks(snap.Blocks, s.blockSize); err != nil {
		return err
	}

	offset := 0
	for i, b := range snap.Blocks {
		for j, e := range b.Entries {
			if offset+j >= len(snap.Records) || snap.Records[offset+j].Hash != e.Hash {
				return fmt.Errorf("block %d entry %d does not match record %d", i, j, offset+j)
			}
		}
		offset += len(b.Entries)
	}
	return nil
}
