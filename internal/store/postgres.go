package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/qldb/internal/ledger"
	"go.uber.org/zap"
)

// advisoryLockKey serialises writers across every process sharing the
// database. The value is arbitrary but must not change.
const advisoryLockKey = int64(7_310_551_209)

// PostgresStore persists the ledger in the ledger_records and ledger_blocks
// tables (see migrations/). It implements Store.
type PostgresStore struct {
	pool     *pgxpool.Pool
	ownsPool bool
	logger   *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given pool. The
// caller keeps ownership of the pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// AppendRecord implements Store.
// It takes the advisory lock, reads the chain tail and inserts rec, all
// inside one transaction, so the tail check and the insert are atomic.
func (s *PostgresStore) AppendRecord(ctx context.Context, rec ledger.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	tail, err := readTail(ctx, tx)
	if err != nil {
		return err
	}
	if rec.PrevHash != tail {
		return fmt.Errorf("%w: prevhash %q, tail %q", ErrStaleTail, rec.PrevHash, tail)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_records (id, data, timestamp, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, string(rec.Data), rec.Timestamp, rec.PrevHash, rec.Hash,
	); err != nil {
		return fmt.Errorf("insert ledger record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}

	s.logger.Debug("ledger record appended",
		zap.String("id", rec.ID),
		zap.String("hash", rec.Hash),
	)
	return nil
}

// Records implements Store.
func (s *PostgresStore) Records(ctx context.Context) ([]ledger.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, data, timestamp, prev_hash, hash
		 FROM ledger_records ORDER BY seq ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger records: %w", err)
	}
	defer rows.Close()

	var out []ledger.Record
	for rows.Next() {
		var (
			rec  ledger.Record
			data string
		)
		if err := rows.Scan(&rec.ID, &data, &rec.Timestamp, &rec.PrevHash, &rec.Hash); err != nil {
			return nil, fmt.Errorf("scan ledger record: %w", err)
		}
		rec.Data = json.RawMessage(data)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Tail implements Store.
func (s *PostgresStore) Tail(ctx context.Context) (string, error) {
	return readTail(ctx, s.pool)
}

// AppendBlock implements Store.
func (s *PostgresStore) AppendBlock(ctx context.Context, blk ledger.Block) error {
	entries, err := json.Marshal(blk.Entries)
	if err != nil {
		return fmt.Errorf("marshal block entries: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_blocks (merkle_root, timestamp, entries) VALUES ($1, $2, $3)`,
		blk.MerkleRoot, blk.Timestamp, string(entries),
	); err != nil {
		return fmt.Errorf("insert ledger block: %w", err)
	}

	s.logger.Debug("ledger block appended", zap.String("merkle_root", blk.MerkleRoot))
	return nil
}

// Blocks implements Store.
func (s *PostgresStore) Blocks(ctx context.Context) ([]ledger.Block, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT merkle_root, timestamp, entries FROM ledger_blocks ORDER BY seq ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger blocks: %w", err)
	}
	defer rows.Close()

	var out []ledger.Block
	for rows.Next() {
		var (
			blk     ledger.Block
			entries string
		)
		if err := rows.Scan(&blk.MerkleRoot, &blk.Timestamp, &entries); err != nil {
			return nil, fmt.Errorf("scan ledger block: %w", err)
		}
		if err := json.Unmarshal([]byte(entries), &blk.Entries); err != nil {
			return nil, fmt.Errorf("decode entries of block %s: %w", blk.MerkleRoot, err)
		}
		out = append(out, blk)
	}
	return out, rows.Err()
}

// Replace implements Store. Both tables are truncated and reloaded with COPY
// inside a single transaction holding the writer lock.
func (s *PostgresStore) Replace(ctx context.Context, records []ledger.Record, blocks []ledger.Block) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}
	if _, err := tx.Exec(ctx, "TRUNCATE ledger_records, ledger_blocks RESTART IDENTITY"); err != nil {
		return fmt.Errorf("truncate ledger: %w", err)
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"ledger_records"},
		[]string{"id", "data", "timestamp", "prev_hash", "hash"},
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			r := records[i]
			return []any{r.ID, string(r.Data), r.Timestamp, r.PrevHash, r.Hash}, nil
		}),
	); err != nil {
		return fmt.Errorf("copy ledger records: %w", err)
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"ledger_blocks"},
		[]string{"merkle_root", "timestamp", "entries"},
		pgx.CopyFromSlice(len(blocks), func(i int) ([]any, error) {
			entries, err := json.Marshal(blocks[i].Entries)
			if err != nil {
				return nil, err
			}
			return []any{blocks[i].MerkleRoot, blocks[i].Timestamp, string(entries)}, nil
		}),
	); err != nil {
		return fmt.Errorf("copy ledger blocks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}

	s.logger.Info("postgres store replaced",
		zap.Int("records", len(records)),
		zap.Int("blocks", len(blocks)),
	)
	return nil
}

// Close implements Store. The pool is closed only when Open created it.
func (s *PostgresStore) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func readTail(ctx context.Context, q queryRower) (string, error) {
	var hash string
	err := q.QueryRow(ctx,
		"SELECT hash FROM ledger_records ORDER BY seq DESC LIMIT 1",
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.GenesisPrevHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("read ledger tail: %w", err)
	}
	return hash, nil
}
