package risk

import (
	"context"
	"fmt"
)

// WinCap rejeita bilhetes cujo payout potencial (stake × odd) excede o
// teto fixo por aposta.
type WinCap struct {
	CapCents int64
}

func (w *WinCap) Name() string { return "win_cap" }

func (w *WinCap) Evaluate(_ context.Context, t *Ticket) *Rejection {
	payout := t.PotentialPayoutCents()
	if payout <= w.CapCents {
		return nil
	}
	return &Rejection{
		Check:    w.Name(),
		Severity: Low,
		Reason:   "win_cap_exceeded",
		Detail:   fmt.Sprintf("potential payout %d cents exceeds per-ticket cap", payout),
	}
}

// PayoutAggregator soma os payouts potenciais PENDING+WON do dia para um
// usuário. Agregado persistido, não memória de processo.
type PayoutAggregator interface {
	DailyPotentialPayout(ctx context.Context, userID string) (int64, error)
}

// DailyCap rejeita quando o payout potencial acumulado do dia, somado ao
// do bilhete, excede o teto diário.
type DailyCap struct {
	Agg      PayoutAggregator
	CapCents int64
}

func (d *DailyCap) Name() string { return "daily_payout_cap" }

func (d *DailyCap) Evaluate(ctx context.Context, t *Ticket) *Rejection {
	sum, err := d.Agg.DailyPotentialPayout(ctx, t.UserID)
	if err != nil {
		// falha fechado: sem o agregado não há como garantir o teto
		return &Rejection{
			Check:    d.Name(),
			Severity: Medium,
			Reason:   "daily_cap_unavailable",
			Detail:   fmt.Sprintf("daily aggregate query failed: %v", err),
		}
	}
	if sum+t.PotentialPayoutCents() <= d.CapCents {
		return nil
	}
	return &Rejection{
		Check:    d.Name(),
		Severity: High,
		Reason:   "daily_payout_cap_exceeded",
		Detail:   fmt.Sprintf("user %s daily potential payout %d + ticket %d exceeds cap", t.UserID, sum, t.PotentialPayoutCents()),
	}
}
