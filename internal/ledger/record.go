package ledger

import (
	"encoding/json"
	"fmt"
	"time"
)

// GenesisPrevHash is the prevhash of the first record in a ledger.
const GenesisPrevHash = "0"

// Record is one immutable, hash-linked ledger entry.
// Several records may share an ID; together they form that ID's history.
type Record struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // seconds since epoch
	PrevHash  string          `json:"prevhash"`
	Hash      string          `json:"hash"`
}

// hashInput fixes the byte layout of the hash pre-image. Field order is part
// of the on-disk format: keys appear in lexical order, which is how existing
// ledgers were hashed. Do not reorder.
type hashInput struct {
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
	PrevHash  string          `json:"prevhash"`
	Timestamp int64           `json:"timestamp"`
}

// ComputeHash returns the SHA-256 content hash of a record's logical fields,
// rendered as lowercase hex. It fails only when data is not a JSON document.
func ComputeHash(id string, data json.RawMessage, timestamp int64, prevHash string) (string, error) {
	canon, err := CanonicalJSON(data)
	if err != nil {
		return "", err
	}
	payload, err := encodeCompact(hashInput{
		Data:      canon,
		ID:        id,
		PrevHash:  prevHash,
		Timestamp: timestamp,
	})
	if err != nil {
		return "", fmt.Errorf("encode hash input: %w", err)
	}
	return sha256Hex(payload), nil
}

// ComputeHash recomputes the record's hash from its ID, Data, Timestamp and
// PrevHash. The stored Hash field is ignored.
func (r Record) ComputeHash() (string, error) {
	return ComputeHash(r.ID, r.Data, r.Timestamp, r.PrevHash)
}

// NewRecord creates a record stamped with the current time and linked to
// prevHash, the hash of the current chain tail (GenesisPrevHash when the
// ledger is empty).
func NewRecord(id string, data json.RawMessage, prevHash string) (Record, error) {
	return NewRecordAt(id, data, prevHash, time.Now().Unix())
}

// NewRecordAt is NewRecord with an explicit timestamp.
func NewRecordAt(id string, data json.RawMessage, prevHash string, timestamp int64) (Record, error) {
	canon, err := CanonicalJSON(data)
	if err != nil {
		return Record{}, err
	}

	r := Record{
		ID:        id,
		Data:      canon,
		Timestamp: timestamp,
		PrevHash:  prevHash,
	}
	r.Hash, err = r.ComputeHash()
	if err != nil {
		return Record{}, err
	}
	return r, nil
}
