package risk

import (
	"context"
	"fmt"
	"time"
)

// LiveOdds é o preço corrente de uma seleção, revalidado pelo buffer.
type LiveOdds struct {
	Odd   float64
	Ended bool // evento terminou durante a espera
}

// OddsSource fornece a odd corrente de uma seleção.
type OddsSource interface {
	CurrentOdds(ctx context.Context, eventID, market, selection string) (LiveOdds, error)
}

// SettlementBuffer é o único check que roda após aprovação provisória e
// antes do débito no ledger: segura a aposta ao vivo por alguns segundos
// e revalida a odd, porque o feed atrasa em relação ao evento real e um
// apostador poderia explorar a janela de preço defasado. A espera é
// cancelável pelo contexto da requisição; nenhum débito acontece antes
// de o buffer aprovar.
type SettlementBuffer struct {
	Odds           OddsSource
	Hold           time.Duration
	MaxDropPercent float64
}

func (b *SettlementBuffer) Name() string { return "settlement_buffer" }

func (b *SettlementBuffer) Evaluate(ctx context.Context, t *Ticket) *Rejection {
	if !t.Live {
		return nil
	}

	timer := time.NewTimer(b.Hold)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return &Rejection{
			Check:    b.Name(),
			Severity: Low,
			Reason:   "request_aborted",
			Detail:   "request cancelled during settlement hold",
		}
	case <-timer.C:
	}

	cur, err := b.Odds.CurrentOdds(ctx, t.EventID, t.Market, t.Selection)
	if err != nil {
		// falha fechado: sem preço corrente não há revalidação
		return &Rejection{
			Check:    b.Name(),
			Severity: Medium,
			Reason:   "revalidation_unavailable",
			Detail:   fmt.Sprintf("current odds fetch failed: %v", err),
		}
	}
	if cur.Ended {
		return &Rejection{
			Check:    b.Name(),
			Severity: Medium,
			Reason:   "event_ended",
			Detail:   fmt.Sprintf("event %s ended during the hold window", t.EventID),
		}
	}

	// odd que encurtou contra a casa além do limite rejeita; o limite
	// exato também rejeita
	drop := (t.Odds - cur.Odd) / t.Odds * 100
	if drop >= b.MaxDropPercent {
		return &Rejection{
			Check:    b.Name(),
			Severity: Medium,
			Reason:   "odds_moved",
			Detail:   fmt.Sprintf("odd moved %.4f%% against the house during the hold (%.2f -> %.2f)", drop, t.Odds, cur.Odd),
		}
	}
	return nil
}
