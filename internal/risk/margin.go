package risk

import (
	"context"
	"fmt"
)

// MarketMargin valida a sanidade matemática do mercado: a soma das
// probabilidades implícitas (Σ 1/odd) expressa como margem (Σ−1)×100.
// Margem negativa significa lucro garantido ao apostador (arbitragem);
// rejeição CRITICAL. Margem positiva abaixo do mínimo configurado indica
// provável erro de digitação de odds; rejeição não fatal até correção.
type MarketMargin struct {
	MinPercent float64
}

func (m *MarketMargin) Name() string { return "market_margin" }

func (m *MarketMargin) Evaluate(_ context.Context, t *Ticket) *Rejection {
	if len(t.MarketOdds) < 2 {
		// mercado de desfecho único não tem margem computável
		return nil
	}

	var implied float64
	for _, odd := range t.MarketOdds {
		if odd <= 1.0 {
			return &Rejection{
				Check:    m.Name(),
				Severity: Critical,
				Reason:   "invalid_market_odds",
				Detail:   fmt.Sprintf("market %s carries an outcome at odd %.4f", t.Market, odd),
			}
		}
		implied += 1 / odd
	}

	margin := (implied - 1) * 100
	if margin < 0 {
		return &Rejection{
			Check:    m.Name(),
			Severity: Critical,
			Reason:   "arbitrage_market",
			Detail:   fmt.Sprintf("market %s implied margin %.4f%% guarantees bettor profit", t.Market, margin),
		}
	}
	if margin < m.MinPercent {
		return &Rejection{
			Check:    m.Name(),
			Severity: Medium,
			Reason:   "market_margin_too_low",
			Detail:   fmt.Sprintf("market %s margin %.4f%% below sanity threshold, pending correction", t.Market, margin),
		}
	}
	return nil
}
