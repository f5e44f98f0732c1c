package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/qldb/internal/ledger"
	"github.com/jmerrifield20/qldb/internal/service"
	"go.uber.org/zap"
)

// ledgerSvc is the subset of service.Service used by the handler.
type ledgerSvc interface {
	Add(ctx context.Context, id string, data json.RawMessage) (ledger.Record, error)
	Get(ctx context.Context, id string) (ledger.Record, error)
	History(ctx context.Context, id string) ([]ledger.Record, error)
	List(ctx context.Context) ([]ledger.Record, error)
	Overview(ctx context.Context) (service.Overview, error)
	SealBlock(ctx context.Context) (ledger.Block, error)
	Blocks(ctx context.Context) ([]ledger.Block, error)
	Block(ctx context.Context, n int) (ledger.Block, error)
	Prove(ctx context.Context, n int, recordHash string) (*service.ProofResult, error)
	VerifyProof(proof ledger.MerkleProof, root string) bool
	VerifyChain(ctx context.Context) (service.Report, error)
	VerifyBlocks(ctx context.Context) (service.Report, error)
	Export(ctx context.Context, w io.Writer) error
	Import(ctx context.Context, r io.Reader) (service.ImportSummary, error)
}

// LedgerHandler exposes the ledger over HTTP.
type LedgerHandler struct {
	svc    ledgerSvc
	admin  gin.HandlerFunc
	logger *zap.Logger
}

// NewLedgerHandler creates a LedgerHandler. Write routes are open until
// SetAdminTokens is called.
func NewLedgerHandler(svc ledgerSvc, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{svc: svc, admin: func(c *gin.Context) { c.Next() }, logger: logger}
}

// SetAdminTokens requires an admin Bearer token on every write route.
func (h *LedgerHandler) SetAdminTokens(tokens *AdminTokens) {
	h.admin = RequireAdmin(tokens)
}

// Register mounts the ledger routes on the given router group.
//
// Route security:
//   - GET routes are public.
//   - POST /ledger/records, POST /ledger/blocks and POST /ledger/import
//     require an admin token when one is configured.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/export", h.Export)
		l.POST("/import", h.admin, h.Import)

		l.GET("/records", h.ListRecords)
		l.POST("/records", h.admin, h.AddRecord)
		l.GET("/records/:id", h.GetRecord)
		l.GET("/records/:id/history", h.History)

		l.GET("/blocks", h.ListBlocks)
		l.POST("/blocks", h.admin, h.SealBlock)
		l.GET("/blocks/:n", h.GetBlock)
		l.GET("/blocks/:n/proof/:hash", h.Proof)

		l.POST("/proofs/verify", h.VerifyProof)
	}
}

// Overview handles GET /ledger with record/block counts and the chain tail.
func (h *LedgerHandler) Overview(c *gin.Context) {
	ov, err := h.svc.Overview(c.Request.Context())
	if err != nil {
		h.internalError(c, "ledger overview", err)
		return
	}
	c.JSON(http.StatusOK, ov)
}

type addRecordRequest struct {
	ID   string          `json:"id" binding:"required"`
	Data json.RawMessage `json:"data" binding:"required"`
}

// AddRecord handles POST /ledger/records.
func (h *LedgerHandler) AddRecord(c *gin.Context) {
	var req addRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.svc.Add(c.Request.Context(), req.ID, req.Data)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.internalError(c, "append record", err)
		return
	}
	RecordLedgerAppend()
	c.JSON(http.StatusCreated, rec)
}

// ListRecords handles GET /ledger/records.
func (h *LedgerHandler) ListRecords(c *gin.Context) {
	recs, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.internalError(c, "list records", err)
		return
	}
	if recs == nil {
		recs = []ledger.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

// GetRecord handles GET /ledger/records/:id and returns the latest record for id.
func (h *LedgerHandler) GetRecord(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.lookupError(c, "get record", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// History handles GET /ledger/records/:id/history.
func (h *LedgerHandler) History(c *gin.Context) {
	recs, err := h.svc.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.lookupError(c, "record history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "records": recs})
}

// SealBlock handles POST /ledger/blocks.
func (h *LedgerHandler) SealBlock(c *gin.Context) {
	blk, err := h.svc.SealBlock(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrInsufficientRecords) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.internalError(c, "seal block", err)
		return
	}
	c.JSON(http.StatusCreated, blk)
}

// ListBlocks handles GET /ledger/blocks.
func (h *LedgerHandler) ListBlocks(c *gin.Context) {
	blocks, err := h.svc.Blocks(c.Request.Context())
	if err != nil {
		h.internalError(c, "list blocks", err)
		return
	}
	if blocks == nil {
		blocks = []ledger.Block{}
	}
	c.JSON(http.StatusOK, gin.H{"blocks": blocks})
}

// GetBlock handles GET /ledger/blocks/:n.
func (h *LedgerHandler) GetBlock(c *gin.Context) {
	n, ok := blockIndex(c)
	if !ok {
		return
	}
	blk, err := h.svc.Block(c.Request.Context(), n)
	if err != nil {
		h.lookupError(c, "get block", err)
		return
	}
	c.JSON(http.StatusOK, blk)
}

// Proof handles GET /ledger/blocks/:n/proof/:hash.
func (h *LedgerHandler) Proof(c *gin.Context) {
	n, ok := blockIndex(c)
	if !ok {
		return
	}
	res, err := h.svc.Prove(c.Request.Context(), n, c.Param("hash"))
	if err != nil {
		h.lookupError(c, "generate proof", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type verifyProofRequest struct {
	Proof ledger.MerkleProof `json:"proof"`
	Root  string             `json:"root" binding:"required"`
}

// VerifyProof handles POST /ledger/proofs/verify.
func (h *LedgerHandler) VerifyProof(c *gin.Context) {
	var req verifyProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": h.svc.VerifyProof(req.Proof, req.Root)})
}

// Verify handles GET /ledger/verify by walking the chain and every block.
// Integrity violations are reported in the body with status 200.
func (h *LedgerHandler) Verify(c *gin.Context) {
	ctx := c.Request.Context()

	chain, err := h.svc.VerifyChain(ctx)
	if err != nil {
		h.internalError(c, "verify chain", err)
		return
	}
	blocks, err := h.svc.VerifyBlocks(ctx)
	if err != nil {
		h.internalError(c, "verify blocks", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":  chain.Valid && blocks.Valid,
		"chain":  chain,
		"blocks": blocks,
	})
}

// Export handles GET /ledger/export.
func (h *LedgerHandler) Export(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", `attachment; filename="ledger-export.json"`)
	c.Status(http.StatusOK)
	if err := h.svc.Export(c.Request.Context(), c.Writer); err != nil {
		h.logger.Error("export ledger", zap.Error(err))
	}
}

// Import handles POST /ledger/import.
func (h *LedgerHandler) Import(c *gin.Context) {
	sum, err := h.svc.Import(c.Request.Context(), c.Request.Body)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSnapshot) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		h.internalError(c, "import ledger", err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func blockIndex(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "block index must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

func (h *LedgerHandler) lookupError(c *gin.Context, op string, err error) {
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.internalError(c, op, err)
}

func (h *LedgerHandler) internalError(c *gin.Context, op string, err error) {
	h.logger.Error(op, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + op})
}
