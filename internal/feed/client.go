package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/wager-platform/internal/risk"
	"github.com/radieske/wager-platform/internal/shared/clock"
	"github.com/radieske/wager-platform/internal/shared/metrics"
)

// ErrBudgetExceeded indica que o orçamento mensal de chamadas ao feed
// estourou. Os checks de risco que dependem do feed falham fechado.
var ErrBudgetExceeded = errors.New("feed monthly budget exceeded")

const (
	oddsTTL  = 5 * time.Second
	scoreTTL = 15 * time.Second
)

// marketOdds é o payload de odds do feed para um mercado: odds brutas
// por seleção, sem margem.
type marketOdds struct {
	EventID string             `json:"event_id"`
	Market  string             `json:"market"`
	Odds    map[string]float64 `json:"odds"`
	Ended   bool               `json:"ended"`
}

// Store é o cache com guarda de orçamento exigido pelo cliente. A
// implementação Redis é a de produção.
type Store interface {
	GetOdds(ctx context.Context, eventID, market string, dst any) (bool, error)
	SetOdds(ctx context.Context, eventID, market string, v any, ttl time.Duration) error
	GetScore(ctx context.Context, eventID string, dst any) (bool, error)
	SetScore(ctx context.Context, eventID string, v any, ttl time.Duration) error
	Consume(ctx context.Context, now time.Time) (int64, error)
}

// Client consulta o provedor externo de odds e placares. Toda odd bruta
// recebe a margem fixa da casa antes de ser armazenada; ninguém dentro
// da plataforma vê a odd sem margem. Cada cache miss consome uma unidade
// do orçamento mensal.
type Client struct {
	log     *zap.Logger
	http    *http.Client
	clk     clock.Clock
	cache   Store
	baseURL string
	margin  float64 // percentual, ex.: 6.0
	budget  int64
}

func NewClient(log *zap.Logger, clk clock.Clock, cache Store, baseURL string, marginPercent float64, monthlyBudget int64) *Client {
	return &Client{
		log:     log,
		http:    &http.Client{Timeout: 3 * time.Second},
		clk:     clk,
		cache:   cache,
		baseURL: baseURL,
		margin:  marginPercent,
		budget:  monthlyBudget,
	}
}

// withMargin aplica a margem fixa: a odd oferecida é sempre menor que a
// odd justa do provedor.
func (c *Client) withMargin(odd float64) float64 {
	return odd / (1 + c.margin/100)
}

// CurrentOdds devolve a odd corrente (com margem) de uma seleção.
// Implementa a fonte do buffer de liquidação.
func (c *Client) CurrentOdds(ctx context.Context, eventID, market, selection string) (risk.LiveOdds, error) {
	var mo marketOdds
	hit, err := c.cache.GetOdds(ctx, eventID, market, &mo)
	if err != nil {
		c.log.Warn("odds cache read failed", zap.String("event_id", eventID), zap.Error(err))
	}
	if !hit {
		if err := c.fetchOdds(ctx, eventID, market, &mo); err != nil {
			return risk.LiveOdds{}, err
		}
		// margem aplicada antes de armazenar: o cache nunca guarda a odd
		// crua do provedor
		for sel, odd := range mo.Odds {
			mo.Odds[sel] = c.withMargin(odd)
		}
		if err := c.cache.SetOdds(ctx, eventID, market, mo, oddsTTL); err != nil {
			c.log.Warn("odds cache write failed", zap.String("event_id", eventID), zap.Error(err))
		}
	}

	odd, ok := mo.Odds[selection]
	if !ok {
		return risk.LiveOdds{}, fmt.Errorf("selection %q not offered for %s/%s", selection, eventID, market)
	}
	return risk.LiveOdds{Odd: odd, Ended: mo.Ended}, nil
}

// CurrentScore devolve o placar corrente de um evento. Implementa a
// fonte do check de plausibilidade.
func (c *Client) CurrentScore(ctx context.Context, eventID string) (risk.ScoreLine, error) {
	var score risk.ScoreLine
	hit, err := c.cache.GetScore(ctx, eventID, &score)
	if err != nil {
		c.log.Warn("score cache read failed", zap.String("event_id", eventID), zap.Error(err))
	}
	if hit {
		return score, nil
	}

	if err := c.fetchScore(ctx, eventID, &score); err != nil {
		return risk.ScoreLine{}, err
	}
	if err := c.cache.SetScore(ctx, eventID, score, scoreTTL); err != nil {
		c.log.Warn("score cache write failed", zap.String("event_id", eventID), zap.Error(err))
	}
	return score, nil
}

func (c *Client) fetchOdds(ctx context.Context, eventID, market string, dst *marketOdds) error {
	path := fmt.Sprintf("/odds/%s/%s", url.PathEscape(eventID), url.PathEscape(market))
	return c.fetch(ctx, path, dst)
}

func (c *Client) fetchScore(ctx context.Context, eventID string, dst *risk.ScoreLine) error {
	return c.fetch(ctx, "/scores/"+url.PathEscape(eventID), dst)
}

// fetch faz uma chamada ao provedor, passando primeiro pelo guarda de
// orçamento: estourou, nenhuma requisição sai.
func (c *Client) fetch(ctx context.Context, path string, dst any) error {
	used, err := c.cache.Consume(ctx, c.clk.Now())
	if err != nil {
		metrics.FeedCalls.WithLabelValues("budget_error").Inc()
		return fmt.Errorf("feed budget check: %w", err)
	}
	if used > c.budget {
		metrics.FeedCalls.WithLabelValues("budget_exceeded").Inc()
		return ErrBudgetExceeded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.FeedCalls.WithLabelValues("error").Inc()
		return fmt.Errorf("feed call %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		metrics.FeedCalls.WithLabelValues("error").Inc()
		return fmt.Errorf("feed call %s: http %s", path, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		metrics.FeedCalls.WithLabelValues("error").Inc()
		return fmt.Errorf("feed decode %s: %w", path, err)
	}
	metrics.FeedCalls.WithLabelValues("ok").Inc()
	return nil
}
