// Package ledger implements the integrity core of the append-only ledger:
// record hashing, hash-chain linkage, Merkle roots over fixed-size blocks of
// records, and Merkle inclusion proofs.
//
// Every record embeds the hash of the record appended before it (or
// GenesisPrevHash for the first one), so rewriting history breaks the chain.
// Blocks seal a window of records under a Merkle root computed by BuildRoot;
// GenerateProof and VerifyProof prove a single record belongs to a block
// without replaying the whole block.
//
// The package performs no I/O and holds no state. All functions are safe to
// call concurrently as long as each caller owns its input snapshot.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
)

// sha256Hex returns the lowercase hex-encoded SHA-256 digest of data.
func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
