package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/jmerrifield20/qldb/internal/ledger"
	"github.com/jmerrifield20/qldb/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var ctx = context.Background()

func records(t *testing.T, n int) []ledger.Record {
	t.Helper()
	prev := ledger.GenesisPrevHash
	out := make([]ledger.Record, 0, n)
	for i := 0; i < n; i++ {
		r, err := ledger.NewRecordAt(fmt.Sprintf("id-%d", i%3),
			json.RawMessage(fmt.Sprintf(`{"i":%d,"html":"<b>&</b>"}`, i)), prev, int64(1000+i))
		require.NoError(t, err)
		out = append(out, r)
		prev = r.Hash
	}
	return out
}

// testStore runs the Store contract against a fresh backend from open.
func testStore(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("empty", func(t *testing.T) {
		s := open(t)
		tail, err := s.Tail(ctx)
		require.NoError(t, err)
		assert.Equal(t, ledger.GenesisPrevHash, tail)

		recs, err := s.Records(ctx)
		require.NoError(t, err)
		assert.Empty(t, recs)

		blocks, err := s.Blocks(ctx)
		require.NoError(t, err)
		assert.Empty(t, blocks)
	})

	t.Run("append and read back", func(t *testing.T) {
		s := open(t)
		recs := records(t, 7)
		for _, r := range recs {
			require.NoError(t, s.AppendRecord(ctx, r))
		}

		tail, err := s.Tail(ctx)
		require.NoError(t, err)
		assert.Equal(t, recs[6].Hash, tail)

		got, err := s.Records(ctx)
		require.NoError(t, err)
		require.Len(t, got, 7)
		for i := range recs {
			assert.Equal(t, recs[i].Hash, got[i].Hash)
			assert.JSONEq(t, string(recs[i].Data), string(got[i].Data))
		}
		assert.NoError(t, ledger.VerifyChain(got), "round trip must preserve hashes")
	})

	t.Run("stale tail rejected", func(t *testing.T) {
		s := open(t)
		recs := records(t, 2)
		require.NoError(t, s.AppendRecord(ctx, recs[0]))
		require.NoError(t, s.AppendRecord(ctx, recs[1]))

		err := s.AppendRecord(ctx, recs[1])
		assert.ErrorIs(t, err, store.ErrStaleTail)

		got, err := s.Records(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("blocks", func(t *testing.T) {
		s := open(t)
		recs := records(t, 10)
		b1, err := ledger.BuildBlockAt(recs[:5], 5, 1)
		require.NoError(t, err)
		b2, err := ledger.BuildBlockAt(recs[5:], 5, 2)
		require.NoError(t, err)
		require.NoError(t, s.AppendBlock(ctx, b1))
		require.NoError(t, s.AppendBlock(ctx, b2))

		got, err := s.Blocks(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, b1.MerkleRoot, got[0].MerkleRoot)
		assert.Equal(t, int64(2), got[1].Timestamp)
		assert.NoError(t, ledger.VerifyBlocks(got, 5))
	})

	t.Run("replace", func(t *testing.T) {
		s := open(t)
		old := records(t, 3)
		for _, r := range old {
			require.NoError(t, s.AppendRecord(ctx, r))
		}

		fresh := records(t, 5)
		blk, err := ledger.BuildBlockAt(fresh, 5, 9)
		require.NoError(t, err)
		require.NoError(t, s.Replace(ctx, fresh, []ledger.Block{blk}))

		got, err := s.Records(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 5)

		tail, err := s.Tail(ctx)
		require.NoError(t, err)
		assert.Equal(t, fresh[4].Hash, tail)

		blocks, err := s.Blocks(ctx)
		require.NoError(t, err)
		assert.Len(t, blocks, 1)

		require.NoError(t, s.Replace(ctx, nil, nil))
		tail, err = s.Tail(ctx)
		require.NoError(t, err)
		assert.Equal(t, ledger.GenesisPrevHash, tail)
	})
}

func TestMemoryStore(t *testing.T) {
	testStore(t, func(t *testing.T) store.Store {
		return store.NewMemoryStore()
	})
}

func TestFileStore(t *testing.T) {
	testStore(t, func(t *testing.T) store.Store {
		s, err := store.NewFileStore(t.TempDir(), zap.NewNop())
		require.NoError(t, err)
		return s
	})
}

func TestMemoryStore_returnsCopies(t *testing.T) {
	s := store.NewMemoryStore()
	recs := records(t, 1)
	require.NoError(t, s.AppendRecord(ctx, recs[0]))

	got, err := s.Records(ctx)
	require.NoError(t, err)
	got[0].ID = "mutated"

	again, err := s.Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, recs[0].ID, again[0].ID)
}

func TestOpen_drivers(t *testing.T) {
	s, err := store.Open(ctx, store.Config{Driver: store.DriverMemory}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, s)

	s, err = store.Open(ctx, store.Config{Driver: store.DriverFile, Dir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &store.FileStore{}, s)

	_, err = store.Open(ctx, store.Config{Driver: "sqlite"}, zap.NewNop())
	assert.Error(t, err)
}
