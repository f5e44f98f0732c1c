package ledger

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// DefaultBlockSize is the number of records sealed into one block. Sealing
// and verification must agree on it.
const DefaultBlockSize = 5

// ErrBatchSize is returned when a block is built from a batch of the wrong size.
var ErrBatchSize = errors.New("batch size mismatch")

// Block is a fixed-size window of records sealed with a Merkle root.
// Blocks are independent: a block does not reference its predecessor.
type Block struct {
	Entries    []Record `json:"entries"`
	MerkleRoot string   `json:"merkle_root"`
	Timestamp  int64    `json:"timestamp"`
}

// BuildBlock seals records into a block stamped with the current time.
// len(records) must equal size.
func BuildBlock(records []Record, size int) (Block, error) {
	return BuildBlockAt(records, size, time.Now().Unix())
}

// BuildBlockAt is BuildBlock with an explicit sealing timestamp.
func BuildBlockAt(records []Record, size int, timestamp int64) (Block, error) {
	if size <= 0 || len(records) != size {
		return Block{}, fmt.Errorf("%w: got %d records, want %d", ErrBatchSize, len(records), size)
	}

	entries := slices.Clone(records)
	return Block{
		Entries:    entries,
		MerkleRoot: ComputeMerkleRoot(entries),
		Timestamp:  timestamp,
	}, nil
}

// LeafHashes returns the stored hashes of the block's entries in order.
func (b Block) LeafHashes() []string {
	return leafHashes(b.Entries)
}

// Proof generates an inclusion proof for the entry whose hash is target.
func (b Block) Proof(target string) (MerkleProof, bool) {
	return GenerateProof(b.LeafHashes(), target)
}
