package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/radieske/wager-platform/internal/shared/config"
	"github.com/radieske/wager-platform/internal/shared/logger"
	"github.com/radieske/wager-platform/internal/shared/metrics"
)

// Métricas do provedor simulado
var (
	oddsServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_sim_odds_served_total",
		Help: "Respostas de odds servidas",
	})
	scoresServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_sim_scores_served_total",
		Help: "Respostas de placar servidas",
	})
)

// match é uma partida simulada cujo placar evolui com o tempo do
// processo. As odds brutas derivam do placar: o lado perdendo alonga.
type match struct {
	eventID  string
	home     string
	away     string
	kickoff  time.Time
	homeBias float64 // probabilidade relativa de gol do mandante

	mu        sync.Mutex
	homeGoals int
	awayGoals int
}

func (m *match) minute(now time.Time) int {
	min := int(now.Sub(m.kickoff).Minutes())
	if min < 0 {
		return 0
	}
	if min > 90 {
		return 90
	}
	return min
}

func (m *match) finished(now time.Time) bool { return m.minute(now) >= 90 }

// advance simula a chance de gol de um intervalo de tempo.
func (m *match) advance(now time.Time, rng *rand.Rand) {
	if m.finished(now) || m.minute(now) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rng.Float64() < 0.03 {
		if rng.Float64() < m.homeBias {
			m.homeGoals++
		} else {
			m.awayGoals++
		}
	}
}

type scoreResponse struct {
	EventID       string `json:"event_id"`
	HomeGoals     int    `json:"home_goals"`
	AwayGoals     int    `json:"away_goals"`
	MinutesPlayed int    `json:"minutes_played"`
	Finished      bool   `json:"finished"`
}

type oddsResponse struct {
	EventID string             `json:"event_id"`
	Market  string             `json:"market"`
	Odds    map[string]float64 `json:"odds"`
	Ended   bool               `json:"ended"`
}

type simulator struct {
	log     *zap.Logger
	rng     *rand.Rand
	matches map[string]*match
}

func newSimulator(log *zap.Logger, now time.Time) *simulator {
	// Catálogo fixo de partidas: algumas ao vivo, uma ainda por começar
	catalog := []*match{
		{eventID: "MATCH_001", home: "Flamengo", away: "Palmeiras", kickoff: now.Add(-20 * time.Minute), homeBias: 0.55},
		{eventID: "MATCH_002", home: "Grêmio", away: "Internacional", kickoff: now.Add(-60 * time.Minute), homeBias: 0.45},
		{eventID: "MATCH_003", home: "Corinthians", away: "Santos", kickoff: now.Add(-85 * time.Minute), homeBias: 0.50},
		{eventID: "MATCH_004", home: "São Paulo", away: "Vasco", kickoff: now.Add(30 * time.Minute), homeBias: 0.60},
	}
	byID := make(map[string]*match, len(catalog))
	for _, m := range catalog {
		byID[m.eventID] = m
	}
	return &simulator{
		log:     log,
		rng:     rand.New(rand.NewSource(now.UnixNano())),
		matches: byID,
	}
}

// run avança os placares periodicamente.
func (s *simulator) run() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for now := range ticker.C {
		for _, m := range s.matches {
			m.advance(now, s.rng)
		}
	}
}

// scoreHandler responde GET /scores/{eventId}
func (s *simulator) scoreHandler(w http.ResponseWriter, r *http.Request) {
	eventID := strings.TrimPrefix(r.URL.Path, "/scores/")
	m, ok := s.matches[eventID]
	if !ok {
		http.Error(w, "unknown event", http.StatusNotFound)
		return
	}

	now := time.Now()
	m.mu.Lock()
	resp := scoreResponse{
		EventID:       m.eventID,
		HomeGoals:     m.homeGoals,
		AwayGoals:     m.awayGoals,
		MinutesPlayed: m.minute(now),
		Finished:      m.finished(now),
	}
	m.mu.Unlock()

	scoresServed.Inc()
	writeJSON(w, resp)
}

// oddsHandler responde GET /odds/{eventId}/{market}
func (s *simulator) oddsHandler(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/odds/"), "/")
	if len(parts) != 2 {
		http.Error(w, "expected /odds/{eventId}/{market}", http.StatusBadRequest)
		return
	}
	eventID, market := parts[0], parts[1]
	m, ok := s.matches[eventID]
	if !ok {
		http.Error(w, "unknown event", http.StatusNotFound)
		return
	}
	if market != "1x2" {
		http.Error(w, "unknown market", http.StatusNotFound)
		return
	}

	now := time.Now()
	m.mu.Lock()
	diff := m.homeGoals - m.awayGoals
	m.mu.Unlock()

	// preço bruto: quem está na frente encurta, com ruído pequeno
	home := clampOdd(2.40 - 0.60*float64(diff) + s.noise())
	away := clampOdd(2.60 + 0.60*float64(diff) + s.noise())
	draw := clampOdd(3.20 + 0.30*absFloat(diff) + s.noise())

	oddsServed.Inc()
	writeJSON(w, oddsResponse{
		EventID: eventID,
		Market:  market,
		Odds:    map[string]float64{"home": home, "draw": draw, "away": away},
		Ended:   m.finished(now),
	})
}

func (s *simulator) noise() float64 { return (s.rng.Float64() - 0.5) * 0.10 }

func clampOdd(v float64) float64 {
	if v < 1.05 {
		return 1.05
	}
	if v > 15.0 {
		return 15.0
	}
	return v
}

func absFloat(d int) float64 {
	if d < 0 {
		return float64(-d)
	}
	return float64(d)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	sim := newSimulator(log, time.Now())
	go sim.run()

	metrics.StartMetricsServer(cfg.MetricsPort, func(context.Context) error { return nil })

	mux := http.NewServeMux()
	mux.HandleFunc("/odds/", sim.oddsHandler)
	mux.HandleFunc("/scores/", sim.scoreHandler)

	addr := ":" + cfg.HTTPPort
	log.Info("feed-simulator listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("server", zap.Error(err))
	}
}
