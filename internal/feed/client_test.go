package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/wager-platform/internal/risk"
	"github.com/radieske/wager-platform/internal/shared/clock"
)

// memStore implementa Store em memória, com o mesmo contrato do Redis.
type memStore struct {
	odds   map[string][]byte
	scores map[string][]byte
	used   int64
}

func newStore() *memStore {
	return &memStore{odds: make(map[string][]byte), scores: make(map[string][]byte)}
}

func (m *memStore) GetOdds(_ context.Context, eventID, market string, dst any) (bool, error) {
	b, ok := m.odds[eventID+":"+market]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (m *memStore) SetOdds(_ context.Context, eventID, market string, v any, _ time.Duration) error {
	b, _ := json.Marshal(v)
	m.odds[eventID+":"+market] = b
	return nil
}

func (m *memStore) GetScore(_ context.Context, eventID string, dst any) (bool, error) {
	b, ok := m.scores[eventID]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (m *memStore) SetScore(_ context.Context, eventID string, v any, _ time.Duration) error {
	b, _ := json.Marshal(v)
	m.scores[eventID] = b
	return nil
}

func (m *memStore) Consume(context.Context, time.Time) (int64, error) {
	m.used++
	return m.used, nil
}

func oddsServer(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		switch r.URL.Path {
		case "/odds/ev1/1x2":
			_ = json.NewEncoder(w).Encode(marketOdds{
				EventID: "ev1",
				Market:  "1x2",
				Odds:    map[string]float64{"home": 2.12, "away": 3.18},
			})
		case "/scores/ev1":
			_ = json.NewEncoder(w).Encode(risk.ScoreLine{
				EventID: "ev1", HomeGoals: 1, AwayGoals: 0, MinutesPlayed: 55,
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func newClient(baseURL string, store Store, budget int64) *Client {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	return NewClient(zap.NewNop(), clk, store, baseURL, 6.0, budget)
}

func TestCurrentOddsAppliesMargin(t *testing.T) {
	var calls int
	srv := oddsServer(t, &calls)
	defer srv.Close()

	c := newClient(srv.URL, newStore(), 100)
	got, err := c.CurrentOdds(context.Background(), "ev1", "1x2", "home")
	if err != nil {
		t.Fatalf("CurrentOdds: %v", err)
	}
	// 2.12 / 1.06 = 2.00: ninguém vê a odd sem margem
	if got.Odd != 2.12/1.06 {
		t.Fatalf("odd %v, want %v", got.Odd, 2.12/1.06)
	}
	if got.Ended {
		t.Fatal("evento dado como encerrado")
	}
}

func TestCurrentOddsServesFromCache(t *testing.T) {
	var calls int
	srv := oddsServer(t, &calls)
	defer srv.Close()

	store := newStore()
	c := newClient(srv.URL, store, 100)

	for i := 0; i < 3; i++ {
		if _, err := c.CurrentOdds(context.Background(), "ev1", "1x2", "home"); err != nil {
			t.Fatalf("CurrentOdds #%d: %v", i, err)
		}
	}
	if calls != 1 {
		t.Fatalf("%d chamadas ao provedor, want 1 (cache quente)", calls)
	}
	if store.used != 1 {
		t.Fatalf("orçamento consumido %d vezes, want 1", store.used)
	}
}

func TestCurrentOddsUnknownSelection(t *testing.T) {
	var calls int
	srv := oddsServer(t, &calls)
	defer srv.Close()

	c := newClient(srv.URL, newStore(), 100)
	if _, err := c.CurrentOdds(context.Background(), "ev1", "1x2", "draw"); err == nil {
		t.Fatal("seleção inexistente aprovada")
	}
}

func TestBudgetGuardBlocksFetch(t *testing.T) {
	var calls int
	srv := oddsServer(t, &calls)
	defer srv.Close()

	store := newStore()
	store.used = 100 // orçamento já no limite
	c := newClient(srv.URL, store, 100)

	_, err := c.CurrentOdds(context.Background(), "ev1", "1x2", "home")
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("err=%v, want ErrBudgetExceeded", err)
	}
	if calls != 0 {
		t.Fatal("requisição saiu com o orçamento estourado")
	}
}

func TestBudgetGuardStillServesCache(t *testing.T) {
	var calls int
	srv := oddsServer(t, &calls)
	defer srv.Close()

	store := newStore()
	c := newClient(srv.URL, store, 100)

	// aquece o cache e estoura o orçamento em seguida
	if _, err := c.CurrentOdds(context.Background(), "ev1", "1x2", "home"); err != nil {
		t.Fatalf("CurrentOdds: %v", err)
	}
	store.used = 200

	if _, err := c.CurrentOdds(context.Background(), "ev1", "1x2", "home"); err != nil {
		t.Fatalf("cache hit deveria ignorar o orçamento: %v", err)
	}
}

func TestCurrentScoreFetchesAndCaches(t *testing.T) {
	var calls int
	srv := oddsServer(t, &calls)
	defer srv.Close()

	c := newClient(srv.URL, newStore(), 100)
	score, err := c.CurrentScore(context.Background(), "ev1")
	if err != nil {
		t.Fatalf("CurrentScore: %v", err)
	}
	if score.HomeGoals != 1 || score.AwayGoals != 0 || score.MinutesPlayed != 55 {
		t.Fatalf("placar inesperado: %+v", score)
	}

	if _, err := c.CurrentScore(context.Background(), "ev1"); err != nil {
		t.Fatalf("segunda leitura: %v", err)
	}
	if calls != 1 {
		t.Fatalf("%d chamadas ao provedor, want 1", calls)
	}
}

func TestFeedHTTPErrorFailsClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newClient(srv.URL, newStore(), 100)
	if _, err := c.CurrentOdds(context.Background(), "ev1", "1x2", "home"); err == nil {
		t.Fatal("erro do provedor virou aprovação")
	}
}

func TestCacheStoresMarginedOdds(t *testing.T) {
	var calls int
	srv := oddsServer(t, &calls)
	defer srv.Close()

	store := newStore()
	c := newClient(srv.URL, store, 100)
	if _, err := c.CurrentOdds(context.Background(), "ev1", "1x2", "home"); err != nil {
		t.Fatalf("CurrentOdds: %v", err)
	}

	// o que está no cache já tem a margem: nenhum leitor vê a odd crua
	var mo marketOdds
	hit, err := store.GetOdds(context.Background(), "ev1", "1x2", &mo)
	if err != nil || !hit {
		t.Fatalf("cache vazio após o fetch (hit=%v, err=%v)", hit, err)
	}
	if mo.Odds["home"] != 2.12/1.06 {
		t.Fatalf("cache guardou %v, want %v", mo.Odds["home"], 2.12/1.06)
	}
}
