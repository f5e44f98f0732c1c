package ledger

import (
	"encoding/json"
	"fmt"
	"slices"
)

// ProofStep is one sibling on the path from a leaf to the root.
// It serializes as the 2-tuple [sibling_hash, sibling_is_left].
type ProofStep struct {
	Sibling       string
	SiblingIsLeft bool
}

// MarshalJSON implements json.Marshaler.
func (s ProofStep) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{s.Sibling, s.SiblingIsLeft})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ProofStep) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("proof step: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("proof step: want 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &s.Sibling); err != nil {
		return fmt.Errorf("proof step sibling: %w", err)
	}
	if err := json.Unmarshal(raw[1], &s.SiblingIsLeft); err != nil {
		return fmt.Errorf("proof step side: %w", err)
	}
	return nil
}

// MerkleProof claims that LeafHash is a leaf of the tree whose root is
// reproduced by replaying Path, leaf level first.
type MerkleProof struct {
	LeafHash string      `json:"leaf_hash"`
	Path     []ProofStep `json:"path"`
}

// GenerateProof builds the inclusion proof for the first leaf equal to
// target. It returns false when target is not among leaves.
//
// The tree is rebuilt exactly as BuildRoot builds it, so a duplicated
// padding node shows up in the path whenever it is the sibling.
func GenerateProof(leaves []string, target string) (MerkleProof, bool) {
	index := slices.Index(leaves, target)
	if index < 0 {
		return MerkleProof{}, false
	}

	proof := MerkleProof{LeafHash: target, Path: []ProofStep{}}
	level := slices.Clone(leaves)
	for len(level) > 1 {
		level = padLevel(level)
		if index%2 == 0 {
			proof.Path = append(proof.Path, ProofStep{Sibling: level[index+1], SiblingIsLeft: false})
		} else {
			proof.Path = append(proof.Path, ProofStep{Sibling: level[index-1], SiblingIsLeft: true})
		}
		level = pairUp(level)
		index /= 2
	}
	return proof, true
}

// VerifyProof replays proof.Path over proof.LeafHash and reports whether the
// result equals root exactly. No proof verifies against EmptyRoot.
func VerifyProof(proof MerkleProof, root string) bool {
	if root == EmptyRoot {
		return false
	}

	h := proof.LeafHash
	for _, step := range proof.Path {
		if step.SiblingIsLeft {
			h = hashPair(step.Sibling, h)
		} else {
			h = hashPair(h, step.Sibling)
		}
	}
	return h == root
}
