package ledger

import (
	"errors"
	"fmt"
)

// ErrIntegrity matches every chain break and block mismatch via errors.Is.
var ErrIntegrity = errors.New("integrity violation")

// BreakReason says which check a chain or block failed.
type BreakReason string

const (
	// ReasonLinkage: a record's prevhash is not its predecessor's hash.
	ReasonLinkage BreakReason = "linkage"
	// ReasonContent: a stored hash no longer matches the hashed fields.
	ReasonContent BreakReason = "content"
	// ReasonRoot: a block's stored Merkle root does not match its entries.
	ReasonRoot BreakReason = "root"
	// ReasonSize: a block does not hold exactly the configured batch size.
	ReasonSize BreakReason = "size"
)

// ChainBreakError reports the first place where a record sequence stops
// being a valid hash chain.
type ChainBreakError struct {
	Index  int     // position of Curr in the sequence
	Prev   *Record // nil when Index is 0
	Curr   Record
	Reason BreakReason
	// Computed is the recomputed hash for ReasonContent breaks.
	Computed string
}

func (e *ChainBreakError) Error() string {
	if e.Reason == ReasonLinkage {
		return fmt.Sprintf("hash chain broken at index %d: record %q has prevhash %q, previous record %q has hash %q",
			e.Index, e.Curr.ID, e.Curr.PrevHash, e.Prev.ID, e.Prev.Hash)
	}
	return fmt.Sprintf("record %d (%q) has invalid hash: stored %q, computed %q",
		e.Index, e.Curr.ID, e.Curr.Hash, e.Computed)
}

// Is reports whether target is ErrIntegrity.
func (e *ChainBreakError) Is(target error) bool { return target == ErrIntegrity }

// BlockMismatchError reports the first block whose seal does not match its
// stored entries.
type BlockMismatchError struct {
	Index    int
	Block    Block
	Computed string // recomputed root; empty for ReasonSize
	Reason   BreakReason
	Size     int // expected batch size for ReasonSize
}

func (e *BlockMismatchError) Error() string {
	if e.Reason == ReasonSize {
		return fmt.Sprintf("block %d has %d entries, want %d", e.Index, len(e.Block.Entries), e.Size)
	}
	return fmt.Sprintf("block %d merkle root mismatch: stored %q, computed %q",
		e.Index, e.Block.MerkleRoot, e.Computed)
}

// Is reports whether target is ErrIntegrity.
func (e *BlockMismatchError) Is(target error) bool { return target == ErrIntegrity }

// VerifyChain walks records in append order and returns nil when every
// record's prevhash equals its predecessor's hash and every stored hash
// matches its recomputed value. Otherwise it returns a *ChainBreakError for
// the first violation. Empty and single-record sequences have no links to
// break.
func VerifyChain(records []Record) error {
	for i := range records {
		curr := records[i]
		if i > 0 {
			prev := records[i-1]
			if prev.Hash != curr.PrevHash {
				return &ChainBreakError{Index: i, Prev: &prev, Curr: curr, Reason: ReasonLinkage}
			}
		}

		computed, err := curr.ComputeHash()
		if err != nil || computed != curr.Hash {
			brk := &ChainBreakError{Index: i, Curr: curr, Reason: ReasonContent, Computed: computed}
			if i > 0 {
				prev := records[i-1]
				brk.Prev = &prev
			}
			return brk
		}
	}
	return nil
}

// VerifyBlocks recomputes every block's Merkle root from the content of its
// entries and returns a *BlockMismatchError for the first block whose stored
// root differs. When size is positive, a block holding a different number of
// entries is also reported. An empty block list is intact.
//
// Leaves are recomputed from each entry's fields rather than taken from the
// stored entry hashes, so editing an entry's data inside a sealed block is
// detected even when the entry hash is left untouched.
func VerifyBlocks(blocks []Block, size int) error {
	for i, b := range blocks {
		if size > 0 && len(b.Entries) != size {
			return &BlockMismatchError{Index: i, Block: b, Reason: ReasonSize, Size: size}
		}

		leaves := make([]string, len(b.Entries))
		for j, e := range b.Entries {
			h, err := e.ComputeHash()
			if err != nil {
				// An unhashable entry can never reproduce the stored root.
				h = "invalid:" + err.Error()
			}
			leaves[j] = h
		}

		computed := BuildRoot(leaves)
		if computed != b.MerkleRoot {
			return &BlockMismatchError{Index: i, Block: b, Computed: computed, Reason: ReasonRoot}
		}
	}
	return nil
}
