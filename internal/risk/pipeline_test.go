package risk

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/wager-platform/internal/shared/clock"
)

type captureNotifier struct {
	alerts []*Rejection
}

func (c *captureNotifier) Alert(_ context.Context, _ *Ticket, rej *Rejection) {
	c.alerts = append(c.alerts, rej)
}

type fakeAgg struct {
	sum int64
	err error
}

func (f fakeAgg) DailyPotentialPayout(context.Context, string) (int64, error) {
	return f.sum, f.err
}

func ticket() *Ticket {
	return &Ticket{
		UserID:     "u1",
		EventID:    "ev1",
		Market:     "1x2",
		Selection:  "home",
		StakeCents: 10_000,
		Odds:       2.0,
		MarketOdds: []float64{2.0, 3.4, 3.6},
	}
}

func TestPipelineOrderShortCircuits(t *testing.T) {
	// Bilhete que viola o win cap E a margem de arbitragem deve ser
	// rejeitado pelo win cap, primeiro na ordem.
	tk := ticket()
	tk.StakeCents = 1_000_000
	tk.MarketOdds = []float64{3.0, 3.0, 3.0} // Σ1/odd = 1.0 -> margem 0, abaixo do mínimo

	p := NewPipeline(zap.NewNop(), nil,
		&WinCap{CapCents: 100_000},
		&MarketMargin{MinPercent: 1.0},
	)

	rej := p.Admit(context.Background(), tk)
	if rej == nil {
		t.Fatal("esperava rejeição")
	}
	if rej.Check != "win_cap" {
		t.Fatalf("rejeitado por %q, want win_cap", rej.Check)
	}
}

func TestPipelineNotifiesAboveMedium(t *testing.T) {
	cn := &captureNotifier{}
	tk := ticket()
	tk.MarketOdds = []float64{2.5, 2.5} // margem negativa -> CRITICAL

	p := NewPipeline(zap.NewNop(), cn, &MarketMargin{MinPercent: 1.0})
	rej := p.Admit(context.Background(), tk)
	if rej == nil || rej.Severity != Critical {
		t.Fatalf("rej=%+v, want CRITICAL", rej)
	}
	if len(cn.alerts) != 1 {
		t.Fatalf("alertas=%d want 1", len(cn.alerts))
	}
}

func TestPipelineDoesNotNotifyMediumOrBelow(t *testing.T) {
	cn := &captureNotifier{}
	tk := ticket()
	tk.StakeCents = 1_000_000

	p := NewPipeline(zap.NewNop(), cn, &WinCap{CapCents: 100_000})
	if rej := p.Admit(context.Background(), tk); rej == nil {
		t.Fatal("esperava rejeição")
	}
	if len(cn.alerts) != 0 {
		t.Fatalf("alertas=%d want 0", len(cn.alerts))
	}
}

func TestRateLimitSlidingWindows(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	rl := NewRateLimit(clk, 3, 10)

	for i := 0; i < 3; i++ {
		if rej := rl.Evaluate(context.Background(), ticket()); rej != nil {
			t.Fatalf("aposta %d rejeitada: %v", i, rej)
		}
		clk.Advance(time.Second)
	}
	if rej := rl.Evaluate(context.Background(), ticket()); rej == nil || rej.Reason != "rate_limited" {
		t.Fatalf("quarta aposta no minuto deveria ser rejeitada, rej=%v", rej)
	}

	// janela de 60s desliza: após 1 min, volta a aceitar
	clk.Advance(61 * time.Second)
	if rej := rl.Evaluate(context.Background(), ticket()); rej != nil {
		t.Fatalf("aposta após janela rejeitada: %v", rej)
	}
}

func TestRateLimitHourlyWindow(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	rl := NewRateLimit(clk, 100, 5)

	for i := 0; i < 5; i++ {
		if rej := rl.Evaluate(context.Background(), ticket()); rej != nil {
			t.Fatalf("aposta %d rejeitada: %v", i, rej)
		}
		clk.Advance(2 * time.Minute)
	}
	rej := rl.Evaluate(context.Background(), ticket())
	if rej == nil || rej.Severity != High {
		t.Fatalf("limite horário deveria rejeitar HIGH, rej=%v", rej)
	}
}

func TestDailyCap(t *testing.T) {
	d := &DailyCap{Agg: fakeAgg{sum: 95_000}, CapCents: 100_000}
	tk := ticket() // payout potencial 20_000

	rej := d.Evaluate(context.Background(), tk)
	if rej == nil || rej.Reason != "daily_payout_cap_exceeded" {
		t.Fatalf("rej=%v, want daily_payout_cap_exceeded", rej)
	}

	d = &DailyCap{Agg: fakeAgg{sum: 50_000}, CapCents: 100_000}
	if rej := d.Evaluate(context.Background(), tk); rej != nil {
		t.Fatalf("dentro do teto rejeitado: %v", rej)
	}
}

func TestDailyCapFailsClosedOnAggregateError(t *testing.T) {
	d := &DailyCap{Agg: fakeAgg{err: context.DeadlineExceeded}, CapCents: 100_000}
	if rej := d.Evaluate(context.Background(), ticket()); rej == nil {
		t.Fatal("erro no agregado deveria rejeitar, nunca aprovar")
	}
}

func TestMarketMargin(t *testing.T) {
	m := &MarketMargin{MinPercent: 1.0}

	// margem saudável (~5.5%)
	tk := ticket()
	tk.MarketOdds = []float64{2.0, 3.4, 3.6}
	if rej := m.Evaluate(context.Background(), tk); rej != nil {
		t.Fatalf("mercado saudável rejeitado: %v", rej)
	}

	// arbitragem: Σ1/odd < 1
	tk.MarketOdds = []float64{2.5, 2.5}
	rej := m.Evaluate(context.Background(), tk)
	if rej == nil || rej.Reason != "arbitrage_market" || rej.Severity != Critical {
		t.Fatalf("rej=%+v, want arbitrage_market CRITICAL", rej)
	}

	// margem positiva porém abaixo do mínimo
	tk.MarketOdds = []float64{2.0, 1.99}
	rej = m.Evaluate(context.Background(), tk)
	if rej == nil || rej.Reason != "market_margin_too_low" || rej.Severity != Medium {
		t.Fatalf("rej=%+v, want market_margin_too_low MEDIUM", rej)
	}
}
