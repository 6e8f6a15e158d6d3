package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/radieske/wager-platform/internal/shared/metrics"
)

func TestRetryExhaustionSurfacesConflict(t *testing.T) {
	p := &Postgres{attempts: 3, backoff: time.Millisecond}
	before := testutil.ToFloat64(metrics.LedgerConflicts)

	calls := 0
	_, err := p.withRetry(context.Background(), func() (int64, error) {
		calls++
		return 0, &pq.Error{Code: "40001"}
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err=%v, want ErrConflict", err)
	}
	if calls != 3 {
		t.Fatalf("%d tentativas, want 3", calls)
	}
	if got := testutil.ToFloat64(metrics.LedgerConflicts) - before; got != 1 {
		t.Fatalf("ledger_conflicts_total subiu %v, want 1", got)
	}
}

func TestDomainErrorsAreNotRetried(t *testing.T) {
	p := &Postgres{attempts: 3, backoff: time.Millisecond}

	calls := 0
	_, err := p.withRetry(context.Background(), func() (int64, error) {
		calls++
		return 0, ErrInsufficientFunds
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err=%v, want ErrInsufficientFunds", err)
	}
	if calls != 1 {
		t.Fatalf("%d tentativas, want 1 (erro de domínio não repete)", calls)
	}
}
