package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnavailable sinaliza que uma dependência externa do pipeline falhou.
// Nunca aprova silenciosamente: quem recebe deve acionar o fallback
// definido ou rejeitar.
var ErrUnavailable = errors.New("external service unavailable")

// ScoreLine é o estado observável de um evento ao vivo.
type ScoreLine struct {
	EventID       string `json:"event_id"`
	HomeGoals     int    `json:"home_goals"`
	AwayGoals     int    `json:"away_goals"`
	MinutesPlayed int    `json:"minutes_played"`
	Finished      bool   `json:"finished"`
}

// ScoreSource fornece o placar corrente de um evento.
type ScoreSource interface {
	CurrentScore(ctx context.Context, eventID string) (ScoreLine, error)
}

// Strategy avalia se a odd oferecida ainda é consistente com o estado do
// evento. Implementações: serviço externo de raciocínio e regras
// determinísticas locais.
type Strategy interface {
	Assess(ctx context.Context, t *Ticket, score ScoreLine) (plausible bool, detail string, err error)
}

// RuleBased cobre as mesmas classes de plausibilidade do serviço externo
// com regras determinísticas. É o fallback obrigatório: nunca retorna
// erro.
type RuleBased struct{}

func (RuleBased) Assess(_ context.Context, t *Ticket, score ScoreLine) (bool, string, error) {
	if score.Finished {
		return false, "event already finished", nil
	}

	deficit, trailingSide := scoreDeficit(score)
	if trailingSide == "" || t.Selection != trailingSide {
		return true, "", nil
	}

	// time perdendo por vários gols não carrega odd curta no lado perdedor
	if deficit >= 3 && t.Odds < 2.0 {
		return false, fmt.Sprintf("side %s trails by %d goals at odd %.2f", t.Selection, deficit, t.Odds), nil
	}
	if deficit >= 2 && score.MinutesPlayed >= 80 && t.Odds < 3.0 {
		return false, fmt.Sprintf("side %s trails by %d goals at minute %d with odd %.2f", t.Selection, deficit, score.MinutesPlayed, t.Odds), nil
	}
	return true, "", nil
}

func scoreDeficit(score ScoreLine) (int, string) {
	switch {
	case score.HomeGoals > score.AwayGoals:
		return score.HomeGoals - score.AwayGoals, "away"
	case score.AwayGoals > score.HomeGoals:
		return score.AwayGoals - score.HomeGoals, "home"
	}
	return 0, ""
}

// ReasoningService consulta o serviço externo de plausibilidade via HTTP
// com timeout curto. Qualquer falha vira ErrUnavailable para o chamador
// acionar o fallback.
type ReasoningService struct {
	URL  string
	HTTP *http.Client
}

func NewReasoningService(url string, timeout time.Duration) *ReasoningService {
	return &ReasoningService{
		URL:  url,
		HTTP: &http.Client{Timeout: timeout},
	}
}

type reasoningRequest struct {
	EventID   string    `json:"event_id"`
	Market    string    `json:"market"`
	Selection string    `json:"selection"`
	Odds      float64   `json:"odds"`
	Score     ScoreLine `json:"score"`
}

type reasoningResponse struct {
	Plausible bool   `json:"plausible"`
	Detail    string `json:"detail"`
}

func (r *ReasoningService) Assess(ctx context.Context, t *Ticket, score ScoreLine) (bool, string, error) {
	body, _ := json.Marshal(reasoningRequest{
		EventID:   t.EventID,
		Market:    t.Market,
		Selection: t.Selection,
		Odds:      t.Odds,
		Score:     score,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL+"/v1/plausibility", bytes.NewReader(body))
	if err != nil {
		return false, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTP.Do(req)
	if err != nil {
		return false, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return false, "", fmt.Errorf("%w: http %s", ErrUnavailable, resp.Status)
	}

	var out reasoningResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out.Plausible, out.Detail, nil
}

// Plausibility é o check de eventos ao vivo: odd oferecida vs estado
// corrente. Estratégia primária plugável com fallback determinístico;
// nunca aprova por indisponibilidade.
type Plausibility struct {
	Scores   ScoreSource
	Primary  Strategy // pode ser nil: usa só o fallback
	Fallback Strategy
}

func (p *Plausibility) Name() string { return "outcome_plausibility" }

func (p *Plausibility) Evaluate(ctx context.Context, t *Ticket) *Rejection {
	if !t.Live {
		return nil
	}

	score, err := p.Scores.CurrentScore(ctx, t.EventID)
	if err != nil {
		// sem placar não há como validar nem pela regra local
		return &Rejection{
			Check:    p.Name(),
			Severity: Medium,
			Reason:   "live_data_unavailable",
			Detail:   fmt.Sprintf("score fetch for event %s failed: %v", t.EventID, err),
		}
	}

	strat := p.Primary
	if strat == nil {
		strat = p.Fallback
	}

	ok, detail, err := strat.Assess(ctx, t, score)
	if err != nil {
		ok, detail, _ = p.Fallback.Assess(ctx, t, score)
	}
	if ok {
		return nil
	}
	return &Rejection{
		Check:    p.Name(),
		Severity: High,
		Reason:   "implausible_odds",
		Detail:   detail,
	}
}
