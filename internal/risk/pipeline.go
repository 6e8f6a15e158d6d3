package risk

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/wager-platform/internal/shared/metrics"
)

// Severity classifica uma rejeição do pipeline. Acima de Medium a
// rejeição é encaminhada ao canal de alerta externo.
type Severity int

const (
	Low Severity = iota
	Medium
	High
	Critical
)

func (s Severity) String() string {
	switch s {
	case Low:
		return "LOW"
	case Medium:
		return "MEDIUM"
	case High:
		return "HIGH"
	case Critical:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

// Rejection é o resultado de um check reprovado. Reason é a string
// estável visível ao usuário; Detail é o texto legível para log/alerta e
// nunca expõe thresholds na resposta da API.
type Rejection struct {
	Check    string
	Severity Severity
	Reason   string
	Detail   string
}

func (r *Rejection) Error() string { return r.Reason }

// Ticket é a aposta candidata avaliada pelo pipeline.
type Ticket struct {
	UserID     string
	EventID    string
	Market     string
	Selection  string
	StakeCents int64
	Odds       float64
	Live       bool      // evento em andamento
	MarketOdds []float64 // odds de todos os desfechos do mercado
	PlacedAt   time.Time
}

// PotentialPayoutCents é stake × odd, arredondado para baixo.
func (t *Ticket) PotentialPayoutCents() int64 {
	return int64(float64(t.StakeCents) * t.Odds)
}

// Check é um estágio do pipeline. Retorna nil quando aprova.
type Check interface {
	Name() string
	Evaluate(ctx context.Context, t *Ticket) *Rejection
}

// Pipeline executa os checks em ordem, com curto-circuito: o primeiro
// check reprovado rejeita a aposta e nenhum outro roda. A ordem importa
// para correção e custo: checks baratos/locais vêm antes dos que fazem
// chamadas externas.
type Pipeline struct {
	log      *zap.Logger
	notifier Notifier
	checks   []Check
}

func NewPipeline(log *zap.Logger, notifier Notifier, checks ...Check) *Pipeline {
	if notifier == nil {
		notifier = Noop{}
	}
	return &Pipeline{log: log, notifier: notifier, checks: checks}
}

// Admit avalia o ticket. Retorna nil quando todos os checks aprovam.
func (p *Pipeline) Admit(ctx context.Context, t *Ticket) *Rejection {
	for _, c := range p.checks {
		rej := c.Evaluate(ctx, t)
		if rej == nil {
			continue
		}

		metrics.WagersRejected.WithLabelValues(c.Name()).Inc()
		p.log.Info("wager rejected",
			zap.String("check", c.Name()),
			zap.String("severity", rej.Severity.String()),
			zap.String("reason", rej.Reason),
			zap.String("detail", rej.Detail),
			zap.String("user_id", t.UserID),
			zap.String("event_id", t.EventID),
			zap.Int64("stake_cents", t.StakeCents),
			zap.Float64("odds", t.Odds),
		)
		if rej.Severity > Medium {
			p.notifier.Alert(ctx, t, rej)
		}
		return rej
	}

	metrics.WagersAdmitted.Inc()
	return nil
}
