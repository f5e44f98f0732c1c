package ledger

// EmptyRoot is the Merkle root of a batch with no leaves. It is a sentinel,
// not a digest, and never equals a computed root.
const EmptyRoot = "Empty"

// BuildRoot folds an ordered list of leaf hashes into a Merkle root.
//
// Each level is padded by duplicating its last node when it has an odd number
// of nodes; consecutive pairs are then hashed as SHA-256(left || right) over
// their hex strings. Leaf order determines the tree shape, so permuting leaves
// generally changes the root.
func BuildRoot(leaves []string) string {
	if len(leaves) == 0 {
		return EmptyRoot
	}

	level := append([]string(nil), leaves...)
	for len(level) > 1 {
		level = pairUp(padLevel(level))
	}
	return level[0]
}

// ComputeMerkleRoot returns the Merkle root over the stored hashes of records,
// in order.
func ComputeMerkleRoot(records []Record) string {
	return BuildRoot(leafHashes(records))
}

// padLevel duplicates the last node of an odd-length level. level must be
// owned by the caller; it may be appended to in place.
func padLevel(level []string) []string {
	if len(level)%2 != 0 {
		level = append(level, level[len(level)-1])
	}
	return level
}

// pairUp hashes consecutive pairs of an even-length level into a new level.
func pairUp(level []string) []string {
	parents := make([]string, 0, len(level)/2)
	for i := 0; i < len(level); i += 2 {
		parents = append(parents, hashPair(level[i], level[i+1]))
	}
	return parents
}

func hashPair(left, right string) string {
	return sha256Hex([]byte(left + right))
}

func leafHashes(records []Record) []string {
	hashes := make([]string, len(records))
	for i, r := range records {
		hashes[i] = r.Hash
	}
	return hashes
}
