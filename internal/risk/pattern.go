package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/radieske/wager-platform/internal/shared/clock"
)

// tuple é o registro rolante usado pelas heurísticas de mineração de
// apostas.
type tuple struct {
	at         time.Time
	stakeCents int64
	selection  string
	eventID    string
}

// StakePattern detecta padrões de mineração de apostas numa janela
// rolante por usuário: (a) três ou mais apostas na mesma seleção do mesmo
// evento com stakes em escalada, (b) cinco ou mais apostas no mesmo
// evento independentemente da seleção, (c) stake acima de N× a média da
// janela e acima de um piso absoluto.
//
// Os thresholds (tolerância de escalada, múltiplo de spike, piso) são
// guard rails calibrados empiricamente, mantidos como configuração.
type StakePattern struct {
	clk             clock.Clock
	window          time.Duration
	sameEventMax    int
	escalationTol   float64
	spikeMultiple   float64
	spikeFloorCents int64

	mu     sync.Mutex
	byUser map[string][]tuple
}

func NewStakePattern(clk clock.Clock, window time.Duration, sameEventMax int, escalationTol, spikeMultiple float64, spikeFloorCents int64) *StakePattern {
	return &StakePattern{
		clk:             clk,
		window:          window,
		sameEventMax:    sameEventMax,
		escalationTol:   escalationTol,
		spikeMultiple:   spikeMultiple,
		spikeFloorCents: spikeFloorCents,
		byUser:          make(map[string][]tuple),
	}
}

func (s *StakePattern) Name() string { return "stake_pattern" }

func (s *StakePattern) Evaluate(_ context.Context, t *Ticket) *Rejection {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.byUser[t.UserID][:0]
	for _, w := range s.byUser[t.UserID] {
		if now.Sub(w.at) <= s.window {
			kept = append(kept, w)
		}
	}
	s.byUser[t.UserID] = kept

	if rej := s.checkEscalation(kept, t); rej != nil {
		return rej
	}
	if rej := s.checkSameEvent(kept, t); rej != nil {
		return rej
	}
	if rej := s.checkSpike(kept, t); rej != nil {
		return rej
	}

	s.byUser[t.UserID] = append(kept, tuple{
		at:         now,
		stakeCents: t.StakeCents,
		selection:  t.Selection,
		eventID:    t.EventID,
	})
	return nil
}

// checkEscalation: ≥3 apostas na mesma seleção do mesmo evento com stakes
// monotonicamente crescentes. A tolerância absorve pequenas quedas (um
// stake ≥ tol× o anterior ainda conta como escalada) sem desarmar a
// sequência.
func (s *StakePattern) checkEscalation(window []tuple, t *Ticket) *Rejection {
	var run []int64
	for _, w := range window {
		if w.selection == t.Selection && w.eventID == t.EventID {
			run = append(run, w.stakeCents)
		}
	}
	run = append(run, t.StakeCents)
	if len(run) < 3 {
		return nil
	}

	escalating := run[len(run)-1] > run[0]
	for i := 1; i < len(run) && escalating; i++ {
		if float64(run[i]) < float64(run[i-1])*s.escalationTol {
			escalating = false
		}
	}
	if !escalating {
		return nil
	}
	return &Rejection{
		Check:    s.Name(),
		Severity: High,
		Reason:   "wager_mining_suspected",
		Detail: fmt.Sprintf("user %s placed %d escalating wagers on %s/%s within the window",
			t.UserID, len(run), t.EventID, t.Selection),
	}
}

// checkSameEvent: ≥N apostas no mesmo evento na janela, qualquer seleção.
func (s *StakePattern) checkSameEvent(window []tuple, t *Ticket) *Rejection {
	count := 1 // inclui o ticket atual
	for _, w := range window {
		if w.eventID == t.EventID {
			count++
		}
	}
	if count < s.sameEventMax {
		return nil
	}
	return &Rejection{
		Check:    s.Name(),
		Severity: High,
		Reason:   "wager_mining_suspected",
		Detail:   fmt.Sprintf("user %s placed %d wagers on event %s within the window", t.UserID, count, t.EventID),
	}
}

// checkSpike: stake acima do múltiplo da média da janela e acima do piso
// absoluto: o piso evita flagrar apostadores pequenos.
func (s *StakePattern) checkSpike(window []tuple, t *Ticket) *Rejection {
	if len(window) == 0 || t.StakeCents <= s.spikeFloorCents {
		return nil
	}
	var sum int64
	for _, w := range window {
		sum += w.stakeCents
	}
	avg := float64(sum) / float64(len(window))
	if float64(t.StakeCents) <= avg*s.spikeMultiple {
		return nil
	}
	return &Rejection{
		Check:    s.Name(),
		Severity: High,
		Reason:   "stake_spike",
		Detail: fmt.Sprintf("user %s stake %d cents is %.1fx the window average",
			t.UserID, t.StakeCents, float64(t.StakeCents)/avg),
	}
}
