// Package store persists the ledger's records and sealed blocks.
//
// A Store owns the durable sequences; callers receive copies and hand them
// to the ledger package for hashing and verification. Three backends are
// provided:
//   - FileStore: JSON-lines files on local disk.
//   - MemoryStore: in-process, for tests and throwaway ledgers.
//   - PostgresStore: durable, shared between processes.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/qldb/internal/ledger"
	"go.uber.org/zap"
)

// ErrStaleTail is returned by AppendRecord when the record does not link to
// the current chain tail, i.e. another writer appended first.
var ErrStaleTail = errors.New("record does not extend the current chain tail")

// Store is the persistence contract of the ledger.
type Store interface {
	// AppendRecord appends rec if rec.PrevHash equals the current tail hash,
	// and fails with ErrStaleTail otherwise.
	AppendRecord(ctx context.Context, rec ledger.Record) error

	// Records returns every record in append order.
	Records(ctx context.Context) ([]ledger.Record, error)

	// Tail returns the hash of the last record, or ledger.GenesisPrevHash
	// when the ledger is empty.
	Tail(ctx context.Context) (string, error)

	// AppendBlock appends a sealed block.
	AppendBlock(ctx context.Context, blk ledger.Block) error

	// Blocks returns every sealed block in sealing order.
	Blocks(ctx context.Context) ([]ledger.Block, error)

	// Replace discards the stored content and writes records and blocks in
	// its place. Callers validate the replacement first.
	Replace(ctx context.Context, records []ledger.Record, blocks []ledger.Block) error

	// Close releases resources held by the store.
	Close() error
}

// Driver names a Store backend.
type Driver string

const (
	DriverFile     Driver = "file"
	DriverMemory   Driver = "memory"
	DriverPostgres Driver = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Driver      Driver
	Dir         string // DriverFile
	DatabaseURL string // DriverPostgres
}

// Open creates the Store described by cfg.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case DriverFile, "":
		return NewFileStore(cfg.Dir, logger)
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")
		s := NewPostgresStore(pool, logger)
		s.ownsPool = true
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func tailOf(records []ledger.Record) string {
	if len(records) == 0 {
		return ledger.GenesisPrevHash
	}
	return records[len(records)-1].Hash
}
