package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/jmerrifield20/qldb/internal/service"
	"go.uber.org/zap"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubVerifier struct {
	chainValid  bool
	blocksValid bool
	err         error
}

func (s *stubVerifier) VerifyChain(_ context.Context) (service.Report, error) {
	if s.err != nil {
		return service.Report{}, s.err
	}
	r := service.Report{Valid: s.chainValid, Checked: 3}
	if !s.chainValid {
		r.Error = "chain broken"
	}
	return r, nil
}

func (s *stubVerifier) VerifyBlocks(_ context.Context) (service.Report, error) {
	return service.Report{Valid: s.blocksValid, Checked: 1}, nil
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestCheck_healthy(t *testing.T) {
	a := New(&stubVerifier{chainValid: true, blocksValid: true}, Config{}, zap.NewNop())

	if _, ok := a.Last(); ok {
		t.Fatal("expected no status before the first check")
	}
	st := a.Check(context.Background())
	if !st.Healthy {
		t.Errorf("expected healthy, got %+v", st)
	}
	last, ok := a.Last()
	if !ok || !last.Healthy || last.Chain.Checked != 3 {
		t.Errorf("unexpected last status %+v", last)
	}
}

func TestCheck_violationFiresOncePerTransition(t *testing.T) {
	v := &stubVerifier{chainValid: true, blocksValid: true}
	a := New(v, Config{}, zap.NewNop())

	fired := 0
	a.SetViolationHook(func(_ context.Context, st Status) {
		fired++
		if st.Healthy {
			t.Error("hook called with a healthy status")
		}
	})

	a.Check(context.Background())
	v.chainValid = false
	for i := 0; i < 3; i++ {
		a.Check(context.Background())
	}
	if fired != 1 {
		t.Errorf("expected 1 violation, got %d", fired)
	}

	// Recovery (e.g. a verified import) re-arms the hook.
	v.chainValid = true
	a.Check(context.Background())
	v.blocksValid = false
	a.Check(context.Background())
	if fired != 2 {
		t.Errorf("expected 2 violations, got %d", fired)
	}
}

func TestCheck_firstCheckCompromised(t *testing.T) {
	a := New(&stubVerifier{chainValid: false, blocksValid: true}, Config{}, zap.NewNop())
	fired := false
	a.SetViolationHook(func(context.Context, Status) { fired = true })

	a.Check(context.Background())
	if !fired {
		t.Error("expected violation on a ledger that is broken at startup")
	}
}

func TestCheck_storeErrorKeepsVerdict(t *testing.T) {
	v := &stubVerifier{chainValid: true, blocksValid: true}
	a := New(v, Config{}, zap.NewNop())
	a.Check(context.Background())

	v.err = errors.New("disk gone")
	st := a.Check(context.Background())
	if !st.Healthy || st.Error == "" {
		t.Errorf("expected previous healthy verdict with error, got %+v", st)
	}
	last, _ := a.Last()
	if last.Error != "" {
		t.Error("a failed read must not overwrite the recorded audit")
	}
}

func TestRun_stopsOnCancel(t *testing.T) {
	a := New(&stubVerifier{chainValid: true, blocksValid: true}, Config{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	if _, ok := a.Last(); !ok {
		t.Error("expected Run to check immediately")
	}
}
