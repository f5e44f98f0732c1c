package client_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/qldb/internal/config"
	"github.com/jmerrifield20/qldb/internal/handler"
	"github.com/jmerrifield20/qldb/internal/service"
	"github.com/jmerrifield20/qldb/internal/store"
	"github.com/jmerrifield20/qldb/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "client-test-secret"

// newServer runs the real HTTP API over an in-memory ledger.
func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc := service.New(store.NewMemoryStore(), service.Options{}, zap.NewNop())
	router := handler.NewRouter(ctx, svc, config.ServerConfig{AdminSecret: secret}, zap.NewNop())
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func addN(t *testing.T, c *client.Client, n int) []client.Record {
	t.Helper()
	var out []client.Record
	for i := 0; i < n; i++ {
		rec, err := c.Add(context.Background(), fmt.Sprintf("id-%d", i), json.RawMessage(fmt.Sprintf(`{"i":%d}`, i)))
		require.NoError(t, err)
		out = append(out, *rec)
	}
	return out
}

func TestNew_invalidURL(t *testing.T) {
	_, err := client.New("not a url")
	assert.Error(t, err)
	assert.Panics(t, func() { client.MustNew("::") })
}

func TestClient_writesNeedSecret(t *testing.T) {
	srv := newServer(t)
	c := client.MustNew(srv.URL)

	_, err := c.Add(context.Background(), "a", json.RawMessage(`{}`))
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	bad := client.MustNew(srv.URL, client.WithAdminSecret("wrong"))
	_, err = bad.Add(context.Background(), "a", json.RawMessage(`{}`))
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestClient_recordsAndBlocks(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	c := client.MustNew(srv.URL, client.WithAdminSecret(secret))

	recs := addN(t, c, 6)
	assert.Equal(t, recs[0].Hash, recs[1].PrevHash)

	got, err := c.Get(ctx, "id-3")
	require.NoError(t, err)
	assert.Equal(t, recs[3].Hash, got.Hash)

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, client.ErrNotFound)

	hist, err := c.History(ctx, "id-0")
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	all, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	blk, err := c.SealBlock(ctx)
	require.NoError(t, err)
	assert.Len(t, blk.Entries, 5)

	_, err = c.SealBlock(ctx)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	blocks, err := c.Blocks(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	b0, err := c.Block(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, blk.MerkleRoot, b0.MerkleRoot)

	ov, err := c.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, ov.Records)
	assert.Equal(t, 1, ov.Unsealed)
	assert.Equal(t, recs[5].Hash, ov.Tail)

	res, err := c.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestClient_proofs(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	c := client.MustNew(srv.URL, client.WithAdminSecret(secret))

	recs := addN(t, c, 5)
	blk, err := c.SealBlock(ctx)
	require.NoError(t, err)

	for _, r := range recs {
		res, err := c.Prove(ctx, 0, r.Hash)
		require.NoError(t, err)
		assert.Equal(t, blk.MerkleRoot, res.Root)
		assert.True(t, client.VerifyProofLocal(res.Proof, blk.MerkleRoot))

		ok, err := c.VerifyProof(ctx, res.Proof, blk.MerkleRoot)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	_, err = c.Prove(ctx, 0, "feed")
	assert.ErrorIs(t, err, client.ErrNotFound)
	_, err = c.Prove(ctx, 9, recs[0].Hash)
	assert.ErrorIs(t, err, client.ErrNotFound)
}

func TestClient_ledgerConstants(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	c := client.MustNew(srv.URL, client.WithAdminSecret(secret))

	ov, err := c.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, client.GenesisPrevHash, ov.Tail)
	assert.Equal(t, client.DefaultBlockSize, ov.BlockSize)

	recs := addN(t, c, client.DefaultBlockSize)
	assert.Equal(t, client.GenesisPrevHash, recs[0].PrevHash)

	blk, err := c.SealBlock(ctx)
	require.NoError(t, err)
	res, err := c.Prove(ctx, 0, recs[0].Hash)
	require.NoError(t, err)

	var steps []client.ProofStep = res.Proof.Path
	assert.NotEmpty(t, steps)
	assert.True(t, client.VerifyProofLocal(res.Proof, blk.MerkleRoot))
	assert.False(t, client.VerifyProofLocal(res.Proof, client.EmptyRoot))
}

func TestClient_exportImport(t *testing.T) {
	ctx := context.Background()
	src := client.MustNew(newServer(t).URL, client.WithAdminSecret(secret))
	recs := addN(t, src, 5)
	_, err := src.SealBlock(ctx)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, src.Export(ctx, &buf))

	dst := client.MustNew(newServer(t).URL, client.WithAdminSecret(secret))
	sum, err := dst.Import(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Records)
	assert.Equal(t, 1, sum.Blocks)
	assert.Equal(t, recs[4].Hash, sum.Tail)

	_, err = dst.Import(ctx, bytes.NewReader([]byte(`{"records":[{"id":"x"}],"blocks":[]}`)))
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.False(t, errors.Is(err, client.ErrNotFound))
}

func TestClient_bearerToken(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)

	tok, err := client.MustNew(srv.URL, client.WithAdminSecret(secret)).FetchToken(ctx)
	require.NoError(t, err)

	c := client.MustNew(srv.URL, client.WithBearerToken(tok))
	_, err = c.Add(ctx, "a", json.RawMessage(`{"k":1}`))
	assert.NoError(t, err)
}
