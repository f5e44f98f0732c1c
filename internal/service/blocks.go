package service

import (
	"context"
	"fmt"

	"github.com/jmerrifield20/qldb/internal/ledger"
	"go.uber.org/zap"
)

// SealBlock seals the next window of unsealed records, in append order,
// into a block. Windows never overlap: the first block holds records
// [0, B), the second [B, 2B), and so on.
func (s *Service) SealBlock(ctx context.Context) (ledger.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blk, err := s.sealLocked(ctx)
	if err != nil {
		return ledger.Block{}, err
	}
	s.logger.Info("block sealed",
		zap.String("merkle_root", blk.MerkleRoot),
		zap.Int("entries", len(blk.Entries)),
	)
	return blk, nil
}

// sealLocked requires s.mu.
func (s *Service) sealLocked(ctx context.Context) (ledger.Block, error) {
	records, err := s.store.Records(ctx)
	if err != nil {
		return ledger.Block{}, fmt.Errorf("read records: %w", err)
	}
	blocks, err := s.store.Blocks(ctx)
	if err != nil {
		return ledger.Block{}, fmt.Errorf("read blocks: %w", err)
	}

	start := sealedCount(blocks)
	if len(records)-start < s.blockSize {
		return ledger.Block{}, fmt.Errorf("%w: %d unsealed, need %d",
			ErrInsufficientRecords, len(records)-start, s.blockSize)
	}

	blk, err := ledger.BuildBlockAt(records[start:start+s.blockSize], s.blockSize, s.now().Unix())
	if err != nil {
		return ledger.Block{}, err
	}
	if err := s.store.AppendBlock(ctx, blk); err != nil {
		return ledger.Block{}, fmt.Errorf("append block: %w", err)
	}
	blocksSealed.Inc()
	return blk, nil
}

// Blocks returns every sealed block.
func (s *Service) Blocks(ctx context.Context) ([]ledger.Block, error) {
	blocks, err := s.store.Blocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("read blocks: %w", err)
	}
	return blocks, nil
}

// Block returns the block at zero-based position n.
func (s *Service) Block(ctx context.Context, n int) (ledger.Block, error) {
	blocks, err := s.Blocks(ctx)
	if err != nil {
		return ledger.Block{}, err
	}
	if n < 0 || n >= len(blocks) {
		return ledger.Block{}, fmt.Errorf("block %d: %w", n, ErrNotFound)
	}
	return blocks[n], nil
}

// ProofResult is an inclusion proof together with the block it was derived
// from.
type ProofResult struct {
	Block int                `json:"block"`
	Root  string             `json:"merkle_root"`
	Proof ledger.MerkleProof `json:"proof"`
}

// Prove builds the inclusion proof of the record hashed recordHash within
// block n. A hash that is not a leaf of the block yields ErrNotFound.
func (s *Service) Prove(ctx context.Context, n int, recordHash string) (*ProofResult, error) {
	blk, err := s.Block(ctx, n)
	if err != nil {
		proofsTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}

	proof, ok := blk.Proof(recordHash)
	if !ok {
		proofsTotal.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("record %s in block %d: %w", recordHash, n, ErrNotFound)
	}
	proofsTotal.WithLabelValues("generated").Inc()
	return &ProofResult{Block: n, Root: blk.MerkleRoot, Proof: proof}, nil
}

// VerifyProof checks proof against root.
func (s *Service) VerifyProof(proof ledger.MerkleProof, root string) bool {
	ok := ledger.VerifyProof(proof, root)
	if ok {
		proofsTotal.WithLabelValues("valid").Inc()
	} else {
		proofsTotal.WithLabelValues("invalid").Inc()
	}
	return ok
}
