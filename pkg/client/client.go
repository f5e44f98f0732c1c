package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/jmerrifield20/qldb/internal/ledger"
	"github.com/jmerrifield20/qldb/internal/service"
)

// Wire types shared with the server.
type (
	Record        = ledger.Record
	Block         = ledger.Block
	MerkleProof   = ledger.MerkleProof
	ProofStep     = ledger.ProofStep
	ProofResult   = service.ProofResult
	Overview      = service.Overview
	Report        = service.Report
	ImportSummary = service.ImportSummary
)

// Ledger format constants.
const (
	// GenesisPrevHash is the prevhash of a ledger's first record, and the
	// tail an empty ledger reports.
	GenesisPrevHash = ledger.GenesisPrevHash
	// EmptyRoot is the Merkle root of zero leaves. No proof verifies against it.
	EmptyRoot = ledger.EmptyRoot
	// DefaultBlockSize is the number of records a server seals per block
	// unless configured otherwise.
	DefaultBlockSize = ledger.DefaultBlockSize
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("qldb server error %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// VerifyResult is the server's answer to a full integrity check.
type VerifyResult struct {
	Valid  bool   `json:"valid"`
	Chain  Report `json:"chain"`
	Blocks Report `json:"blocks"`
}

// Client talks to one qldb server.
type Client struct {
	base        string
	httpClient  *http.Client
	adminSecret string

	// token state, guarded by mu
	mu          sync.Mutex
	bearerToken string
	tokenExpiry time.Time // zero = token was set manually (no auto-refresh)
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithAdminSecret lets the client obtain admin tokens for write routes.
func WithAdminSecret(secret string) Option {
	return func(c *Client) error {
		c.adminSecret = secret
		return nil
	}
}

// WithBearerToken attaches a pre-obtained admin token to write requests.
// The token is never refreshed.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		c.tokenExpiry = time.Time{}
		return nil
	}
}

// New creates a Client for the server at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", base)
	}
	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// ── Records ──────────────────────────────────────────────────────────────

// Overview returns record and block counts and the chain tail.
func (c *Client) Overview(ctx context.Context) (*Overview, error) {
	var out Overview
	if err := c.call(ctx, http.MethodGet, "/ledger", nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Add appends a record.
func (c *Client) Add(ctx context.Context, id string, data json.RawMessage) (*Record, error) {
	body := map[string]any{"id": id, "data": data}
	var out Record
	if err := c.call(ctx, http.MethodPost, "/ledger/records", body, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns the latest record for id.
func (c *Client) Get(ctx context.Context, id string) (*Record, error) {
	var out Record
	if err := c.call(ctx, http.MethodGet, "/ledger/records/"+url.PathEscape(id), nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns every version of id, oldest first.
func (c *Client) History(ctx context.Context, id string) ([]Record, error) {
	var out struct {
		Records []Record `json:"records"`
	}
	if err := c.call(ctx, http.MethodGet, "/ledger/records/"+url.PathEscape(id)+"/history", nil, &out, false); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// List returns every record in append order.
func (c *Client) List(ctx context.Context) ([]Record, error) {
	var out struct {
		Records []Record `json:"records"`
	}
	if err := c.call(ctx, http.MethodGet, "/ledger/records", nil, &out, false); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// ── Blocks and proofs ────────────────────────────────────────────────────

// SealBlock asks the server to seal the next window of records.
func (c *Client) SealBlock(ctx context.Context) (*Block, error) {
	var out Block
	if err := c.call(ctx, http.MethodPost, "/ledger/blocks", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Blocks returns every sealed block.
func (c *Client) Blocks(ctx context.Context) ([]Block, error) {
	var out struct {
		Blocks []Block `json:"blocks"`
	}
	if err := c.call(ctx, http.MethodGet, "/ledger/blocks", nil, &out, false); err != nil {
		return nil, err
	}
	return out.Blocks, nil
}

// Block returns block n.
func (c *Client) Block(ctx context.Context, n int) (*Block, error) {
	var out Block
	if err := c.call(ctx, http.MethodGet, "/ledger/blocks/"+strconv.Itoa(n), nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Prove returns the inclusion proof of recordHash in block n.
func (c *Client) Prove(ctx context.Context, n int, recordHash string) (*ProofResult, error) {
	path := "/ledger/blocks/" + strconv.Itoa(n) + "/proof/" + url.PathEscape(recordHash)
	var out ProofResult
	if err := c.call(ctx, http.MethodGet, path, nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyProof asks the server to check proof against root.
func (c *Client) VerifyProof(ctx context.Context, proof MerkleProof, root string) (bool, error) {
	body := map[string]any{"proof": proof, "root": root}
	var out struct {
		Valid bool `json:"valid"`
	}
	if err := c.call(ctx, http.MethodPost, "/ledger/proofs/verify", body, &out, false); err != nil {
		return false, err
	}
	return out.Valid, nil
}

// VerifyProofLocal checks proof against root without contacting a server.
func VerifyProofLocal(proof MerkleProof, root string) bool {
	return ledger.VerifyProof(proof, root)
}

// Verify runs the server's chain and block verification.
func (c *Client) Verify(ctx context.Context) (*VerifyResult, error) {
	var out VerifyResult
	if err := c.call(ctx, http.MethodGet, "/ledger/verify", nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Snapshots ────────────────────────────────────────────────────────────

// Export streams the server's snapshot into w.
func (c *Client) Export(ctx context.Context, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/ledger/export"), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	return nil
}

// Import replaces the server's ledger with the snapshot read from r.
func (c *Client) Import(ctx context.Context, r io.Reader) (*ImportSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/ledger/import"), r)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	var out ImportSummary
	if err := c.send(ctx, req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Admin tokens ─────────────────────────────────────────────────────────

// FetchToken exchanges the admin secret for a fresh token and caches it.
func (c *Client) FetchToken(ctx context.Context) (string, error) {
	token, expiry, err := c.fetchTokenRaw(ctx)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.bearerToken = token
	c.tokenExpiry = expiry
	c.mu.Unlock()
	return token, nil
}

func (c *Client) fetchTokenRaw(ctx context.Context) (string, time.Time, error) {
	if c.adminSecret == "" {
		return "", time.Time{}, errors.New("no admin secret configured")
	}
	buf, err := json.Marshal(map[string]string{"secret": c.adminSecret})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("encode token request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/auth/token"), bytes.NewReader(buf))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", time.Time{}, apiError(resp)
	}

	var payload struct {
		AccessToken string    `json:"access_token"`
		ExpiresAt   time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", time.Time{}, fmt.Errorf("decode token response: %w", err)
	}

	// Refresh 60 s before actual expiry to avoid clock-skew failures.
	const refreshBuffer = 60 * time.Second
	return payload.AccessToken, payload.ExpiresAt.Add(-refreshBuffer), nil
}

// ensureToken returns a usable admin token, or "" when the client has no
// way to authenticate. Thread-safe.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bearerToken != "" && (c.tokenExpiry.IsZero() || time.Now().Before(c.tokenExpiry)) {
		return c.bearerToken, nil
	}
	if c.adminSecret == "" {
		return "", nil
	}

	token, expiry, err := c.fetchTokenRaw(ctx)
	if err != nil {
		return "", err
	}
	c.bearerToken = token
	c.tokenExpiry = expiry
	return token, nil
}

// ── Transport ────────────────────────────────────────────────────────────

func (c *Client) url(path string) string {
	return c.base + "/api/v1" + path
}

func (c *Client) call(ctx context.Context, method, path string, body, out any, admin bool) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.send(ctx, req, out, admin)
}

func (c *Client) send(ctx context.Context, req *http.Request, out any, admin bool) error {
	if admin {
		token, err := c.ensureToken(ctx)
		if err != nil {
			return err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var payload struct {
		Error string `json:"error"`
	}
	msg := string(body)
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
