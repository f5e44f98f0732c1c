package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmerrifield20/qldb/internal/ledger"
	"go.uber.org/zap"
)

const (
	// RecordsFile holds one JSON-encoded record per line.
	RecordsFile = "ledger.jsonl"
	// BlocksFile holds one JSON-encoded block per line.
	BlocksFile = "blocks.jsonl"

	maxLineSize = 16 << 20
)

// FileStore keeps the ledger in two append-only JSON-lines files inside a
// data directory. A single FileStore serializes its own writers; running two
// processes against the same directory is not supported.
type FileStore struct {
	mu          sync.Mutex
	dir         string
	recordsPath string
	blocksPath  string
	tail        string
	logger      *zap.Logger
}

// NewFileStore opens (creating if needed) a FileStore rooted at dir and
// loads the current chain tail.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &FileStore{
		dir:         dir,
		recordsPath: filepath.Join(dir, RecordsFile),
		blocksPath:  filepath.Join(dir, BlocksFile),
		logger:      logger,
	}

	records, err := readLines[ledger.Record](s.recordsPath)
	if err != nil {
		return nil, err
	}
	s.tail = tailOf(records)

	logger.Debug("file store opened",
		zap.String("dir", dir),
		zap.Int("records", len(records)),
		zap.String("tail", s.tail),
	)
	return s, nil
}

// AppendRecord implements Store.
func (s *FileStore) AppendRecord(_ context.Context, rec ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.PrevHash != s.tail {
		return fmt.Errorf("%w: prevhash %q, tail %q", ErrStaleTail, rec.PrevHash, s.tail)
	}
	if err := appendLine(s.recordsPath, rec); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	s.tail = rec.Hash
	return nil
}

// Records implements Store.
func (s *FileStore) Records(_ context.Context) ([]ledger.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readLines[ledger.Record](s.recordsPath)
}

// Tail implements Store.
func (s *FileStore) Tail(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tail, nil
}

// AppendBlock implements Store.
func (s *FileStore) AppendBlock(_ context.Context, blk ledger.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := appendLine(s.blocksPath, blk); err != nil {
		return fmt.Errorf("append block: %w", err)
	}
	return nil
}

// Blocks implements Store.
func (s *FileStore) Blocks(_ context.Context) ([]ledger.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readLines[ledger.Block](s.blocksPath)
}

// Replace implements Store. Each file is rewritten to a temporary sibling
// and renamed into place.
func (s *FileStore) Replace(_ context.Context, records []ledger.Record, blocks []ledger.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := rewriteLines(s.recordsPath, records); err != nil {
		return fmt.Errorf("rewrite records: %w", err)
	}
	if err := rewriteLines(s.blocksPath, blocks); err != nil {
		return fmt.Errorf("rewrite blocks: %w", err)
	}
	s.tail = tailOf(records)

	s.logger.Info("file store replaced",
		zap.Int("records", len(records)),
		zap.Int("blocks", len(blocks)),
	)
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

// readLines decodes every non-empty line of path as a T. A missing file
// reads as empty.
func readLines[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	var out []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("decode %s line %d: %w", filepath.Base(path), line, err)
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

func appendLine(path string, v any) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return f.Sync()
}

func rewriteLines[T any](path string, items []T) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
