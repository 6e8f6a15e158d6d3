package risk

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeOdds struct {
	odds  LiveOdds
	err   error
	calls int
}

func (f *fakeOdds) CurrentOdds(context.Context, string, string, string) (LiveOdds, error) {
	f.calls++
	return f.odds, f.err
}

func liveTicket(odds float64) *Ticket {
	tk := ticket()
	tk.Live = true
	tk.Odds = odds
	return tk
}

func TestBufferSkipsPreMatch(t *testing.T) {
	src := &fakeOdds{}
	b := &SettlementBuffer{Odds: src, Hold: time.Hour, MaxDropPercent: 5}

	tk := ticket() // Live=false
	if rej := b.Evaluate(context.Background(), tk); rej != nil {
		t.Fatalf("pré-jogo não passa pelo buffer: %v", rej)
	}
	if src.calls != 0 {
		t.Fatal("buffer consultou odds para aposta pré-jogo")
	}
}

func TestBufferRejectsDropAtThreshold(t *testing.T) {
	// queda de exatamente 5%: 2.00 -> 1.90
	src := &fakeOdds{odds: LiveOdds{Odd: 1.90}}
	b := &SettlementBuffer{Odds: src, Hold: 0, MaxDropPercent: 5}

	rej := b.Evaluate(context.Background(), liveTicket(2.00))
	if rej == nil || rej.Reason != "odds_moved" {
		t.Fatalf("rej=%v, want odds_moved no limite exato", rej)
	}
}

func TestBufferApprovesOneBasisPointUnder(t *testing.T) {
	// queda de 4.99%: 2.00 -> 1.9002
	src := &fakeOdds{odds: LiveOdds{Odd: 1.9002}}
	b := &SettlementBuffer{Odds: src, Hold: 0, MaxDropPercent: 5}

	if rej := b.Evaluate(context.Background(), liveTicket(2.00)); rej != nil {
		t.Fatalf("um basis point abaixo do limite deveria aprovar: %v", rej)
	}
}

func TestBufferRejectsEndedEvent(t *testing.T) {
	src := &fakeOdds{odds: LiveOdds{Odd: 2.00, Ended: true}}
	b := &SettlementBuffer{Odds: src, Hold: 0, MaxDropPercent: 5}

	rej := b.Evaluate(context.Background(), liveTicket(2.00))
	if rej == nil || rej.Reason != "event_ended" {
		t.Fatalf("rej=%v, want event_ended", rej)
	}
}

func TestBufferFailsClosedWithoutOdds(t *testing.T) {
	src := &fakeOdds{err: errors.New("feed down")}
	b := &SettlementBuffer{Odds: src, Hold: 0, MaxDropPercent: 5}

	rej := b.Evaluate(context.Background(), liveTicket(2.00))
	if rej == nil || rej.Reason != "revalidation_unavailable" {
		t.Fatalf("rej=%v, want revalidation_unavailable", rej)
	}
}

func TestBufferHoldIsCancellable(t *testing.T) {
	src := &fakeOdds{odds: LiveOdds{Odd: 2.00}}
	b := &SettlementBuffer{Odds: src, Hold: time.Minute, MaxDropPercent: 5}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *Rejection, 1)
	go func() { done <- b.Evaluate(ctx, liveTicket(2.00)) }()

	cancel()
	select {
	case rej := <-done:
		if rej == nil || rej.Reason != "request_aborted" {
			t.Fatalf("rej=%v, want request_aborted", rej)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hold não respeitou o cancelamento do contexto")
	}
	if src.calls != 0 {
		t.Fatal("odds consultadas após cancelamento")
	}
}

type fakeScores struct {
	score ScoreLine
	err   error
}

func (f fakeScores) CurrentScore(context.Context, string) (ScoreLine, error) {
	return f.score, f.err
}

type failingStrategy struct{}

func (failingStrategy) Assess(context.Context, *Ticket, ScoreLine) (bool, string, error) {
	return false, "", ErrUnavailable
}

func TestPlausibilityRuleBased(t *testing.T) {
	p := &Plausibility{
		Scores:   fakeScores{score: ScoreLine{HomeGoals: 0, AwayGoals: 3, MinutesPlayed: 60}},
		Fallback: RuleBased{},
	}

	// lado perdendo por 3 com odd curta: implausível
	tk := liveTicket(1.40)
	tk.Selection = "home"
	rej := p.Evaluate(context.Background(), tk)
	if rej == nil || rej.Reason != "implausible_odds" {
		t.Fatalf("rej=%v, want implausible_odds", rej)
	}

	// mesmo placar, odd condizente com a desvantagem: aprova
	tk = liveTicket(9.50)
	tk.Selection = "home"
	if rej := p.Evaluate(context.Background(), tk); rej != nil {
		t.Fatalf("odd longa rejeitada: %v", rej)
	}

	// lado vencedor não é afetado
	tk = liveTicket(1.10)
	tk.Selection = "away"
	if rej := p.Evaluate(context.Background(), tk); rej != nil {
		t.Fatalf("lado vencedor rejeitado: %v", rej)
	}
}

func TestPlausibilityFallsBackOnPrimaryError(t *testing.T) {
	p := &Plausibility{
		Scores:   fakeScores{score: ScoreLine{HomeGoals: 0, AwayGoals: 3, MinutesPlayed: 60}},
		Primary:  failingStrategy{},
		Fallback: RuleBased{},
	}

	tk := liveTicket(1.40)
	tk.Selection = "home"
	rej := p.Evaluate(context.Background(), tk)
	if rej == nil || rej.Reason != "implausible_odds" {
		t.Fatalf("fallback não cobriu indisponibilidade: rej=%v", rej)
	}
}

func TestPlausibilityNeverFailsOpen(t *testing.T) {
	p := &Plausibility{
		Scores:   fakeScores{err: errors.New("feed down")},
		Fallback: RuleBased{},
	}
	tk := liveTicket(1.40)
	if rej := p.Evaluate(context.Background(), tk); rej == nil {
		t.Fatal("sem placar o check aprovou; deve falhar fechado")
	}
}

func TestPlausibilityRejectsFinishedEvent(t *testing.T) {
	p := &Plausibility{
		Scores:   fakeScores{score: ScoreLine{Finished: true}},
		Fallback: RuleBased{},
	}
	rej := p.Evaluate(context.Background(), liveTicket(2.00))
	if rej == nil || rej.Reason != "implausible_odds" {
		t.Fatalf("rej=%v, want implausible_odds para evento encerrado", rej)
	}
}
