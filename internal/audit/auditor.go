// Package audit re-verifies the ledger in the background so tampering with
// the underlying storage is noticed while a server is running, not only when
// someone asks.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/jmerrifield20/qldb/internal/service"
	"go.uber.org/zap"
)

// Verifier runs the chain and block sweeps.
type Verifier interface {
	VerifyChain(ctx context.Context) (service.Report, error)
	VerifyBlocks(ctx context.Context) (service.Report, error)
}

// Config holds audit configuration.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Status is the outcome of the most recent audit.
type Status struct {
	Healthy   bool           `json:"healthy"`
	CheckedAt time.Time      `json:"checked_at"`
	Chain     service.Report `json:"chain"`
	Blocks    service.Report `json:"blocks"`
	Error     string         `json:"error,omitempty"`
}

// ViolationFunc is called once each time the ledger goes from intact to
// compromised.
type ViolationFunc func(ctx context.Context, st Status)

// Auditor periodically verifies the ledger and remembers the last result.
type Auditor struct {
	verifier    Verifier
	cfg         Config
	onViolation ViolationFunc
	logger      *zap.Logger

	mu      sync.RWMutex
	last    Status
	checked bool
}

// New creates an Auditor. Interval defaults to five minutes and Timeout to
// one minute.
func New(v Verifier, cfg Config, logger *zap.Logger) *Auditor {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Minute
	}
	return &Auditor{verifier: v, cfg: cfg, logger: logger}
}

// SetViolationHook configures the callback fired on intact→compromised
// transitions.
func (a *Auditor) SetViolationHook(fn ViolationFunc) {
	a.onViolation = fn
}

// Run checks once immediately, then every Interval until ctx is done.
func (a *Auditor) Run(ctx context.Context) {
	a.Check(ctx)

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check verifies the ledger now, records the result and returns it.
func (a *Auditor) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	st := Status{CheckedAt: time.Now().UTC()}
	chain, err := a.verifier.VerifyChain(ctx)
	if err == nil {
		st.Chain = chain
		st.Blocks, err = a.verifier.VerifyBlocks(ctx)
	}
	if err != nil {
		// The store could not be read; keep the previous verdict.
		a.logger.Error("audit: verify ledger", zap.Error(err))
		a.mu.Lock()
		prev := a.last
		a.mu.Unlock()
		prev.Error = err.Error()
		return prev
	}
	st.Healthy = st.Chain.Valid && st.Blocks.Valid

	a.mu.Lock()
	wasHealthy := !a.checked || a.last.Healthy
	a.last = st
	a.checked = true
	a.mu.Unlock()
	recordAudit(st)

	switch {
	case wasHealthy && !st.Healthy:
		a.logger.Warn("audit: ledger integrity violated",
			zap.String("chain", st.Chain.Error),
			zap.String("blocks", st.Blocks.Error),
		)
		if a.onViolation != nil {
			a.onViolation(ctx, st)
		}
	case !wasHealthy && st.Healthy:
		a.logger.Info("audit: ledger integrity restored",
			zap.Int("records", st.Chain.Checked),
			zap.Int("blocks", st.Blocks.Checked),
		)
	default:
		a.logger.Debug("audit: ledger checked", zap.Bool("healthy", st.Healthy))
	}
	return st
}

// Last returns the most recent completed audit, and false before the first.
func (a *Auditor) Last() (Status, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last, a.checked
}
