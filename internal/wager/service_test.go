package wager

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/radieske/wager-platform/internal/ledger"
	"github.com/radieske/wager-platform/internal/risk"
	"github.com/radieske/wager-platform/pkg/contracts/events"
)

// memRepo guarda apostas em memória com o mesmo portão de idempotência
// do repositório Postgres.
type memRepo struct {
	wagers    map[string]*Wager
	createErr error
}

func newMemRepo() *memRepo { return &memRepo{wagers: make(map[string]*Wager)} }

func (m *memRepo) Create(_ context.Context, w *Wager) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	cp := *w
	m.wagers[w.ID] = &cp
	return w.ID, nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*Wager, error) {
	w, ok := m.wagers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *memRepo) Settle(_ context.Context, id, status string, payoutCents int64) error {
	w, ok := m.wagers[id]
	if !ok {
		return ErrNotFound
	}
	if w.Status != StatusPending {
		return ErrAlreadySettled
	}
	w.Status = status
	w.PayoutCents = payoutCents
	return nil
}

type capturePub struct {
	settled []events.WagerSettled
}

func (c *capturePub) PublishWagerSettled(_ context.Context, ev events.WagerSettled) error {
	c.settled = append(c.settled, ev)
	return nil
}

func newService(repo Repo, mem *ledger.Memory, pub SettledPublisher) *Service {
	admit := risk.NewPipeline(zap.NewNop(), nil, &risk.WinCap{CapCents: 100_000_000})
	return NewService(zap.NewNop(), repo, mem, admit, pub)
}

func placeInput() PlaceInput {
	return PlaceInput{
		UserID:     "u1",
		WalletID:   "w1",
		EventID:    "ev1",
		Market:     "1x2",
		Selection:  "home",
		StakeCents: 10_000,
		Odds:       2.0,
	}
}

func TestPlaceDebitsStake(t *testing.T) {
	mem := ledger.NewMemory()
	mem.CreateWallet("w1", 50_000)
	repo := newMemRepo()
	svc := newService(repo, mem, nil)

	w, err := svc.Place(context.Background(), placeInput())
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if w.ID == "" || w.Status != StatusPending {
		t.Fatalf("wager=%+v, want PENDING com id", w)
	}
	if b, _ := mem.Balance("w1"); b != 40_000 {
		t.Fatalf("saldo %d, want 40000", b)
	}

	entries := mem.Entries()
	if len(entries) != 1 || entries[0].Reason != ledger.ReasonWagerStake || entries[0].CorrelationID != w.ID {
		t.Fatalf("entrada do ledger inesperada: %+v", entries)
	}
}

func TestPlaceRejectsBadPayload(t *testing.T) {
	mem := ledger.NewMemory()
	mem.CreateWallet("w1", 50_000)
	svc := newService(newMemRepo(), mem, nil)

	in := placeInput()
	in.Odds = 1.0
	if _, err := svc.Place(context.Background(), in); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("err=%v, want ErrBadPayload para odd <= 1.0", err)
	}

	in = placeInput()
	in.StakeCents = 0
	if _, err := svc.Place(context.Background(), in); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("err=%v, want ErrBadPayload para stake zero", err)
	}
}

func TestPlaceInsufficientFundsDoesNotPersist(t *testing.T) {
	mem := ledger.NewMemory()
	mem.CreateWallet("w1", 5_000)
	repo := newMemRepo()
	svc := newService(repo, mem, nil)

	if _, err := svc.Place(context.Background(), placeInput()); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("err=%v, want ErrInsufficientFunds", err)
	}
	if len(repo.wagers) != 0 {
		t.Fatal("aposta persistida sem stake debitado")
	}
	if b, _ := mem.Balance("w1"); b != 5_000 {
		t.Fatalf("saldo mudou sem aposta: %d", b)
	}
}

func TestPlaceCompensatesDebitWhenPersistFails(t *testing.T) {
	mem := ledger.NewMemory()
	mem.CreateWallet("w1", 50_000)
	repo := newMemRepo()
	repo.createErr = errors.New("db down")
	svc := newService(repo, mem, nil)

	if _, err := svc.Place(context.Background(), placeInput()); err == nil {
		t.Fatal("esperava falha de persistência")
	}

	// o débito foi desfeito e a trilha mostra as duas pernas da saga
	if b, _ := mem.Balance("w1"); b != 50_000 {
		t.Fatalf("saldo %d, want 50000 após compensação", b)
	}
	entries := mem.Entries()
	if len(entries) != 2 {
		t.Fatalf("%d entradas, want débito + crédito compensatório", len(entries))
	}
	if entries[0].Reason != ledger.ReasonWagerStake || entries[1].Reason != ledger.ReasonWagerRollback {
		t.Fatalf("reasons inesperados: %s / %s", entries[0].Reason, entries[1].Reason)
	}
	if entries[0].CorrelationID != entries[1].CorrelationID {
		t.Fatal("pernas da saga com correlações distintas")
	}
}

func TestSettleWonCreditsPayoutOnce(t *testing.T) {
	mem := ledger.NewMemory()
	mem.CreateWallet("w1", 10_000)
	repo := newMemRepo()
	pub := &capturePub{}
	svc := newService(repo, mem, pub)

	// aposta de R$100 em odd 2.0
	w, err := svc.Place(context.Background(), placeInput())
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if b, _ := mem.Balance("w1"); b != 0 {
		t.Fatalf("saldo pós-stake %d, want 0", b)
	}

	settled, err := svc.Settle(context.Background(), w.ID, StatusWon)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if settled.PayoutCents != 20_000 {
		t.Fatalf("payout %d, want 20000", settled.PayoutCents)
	}
	if b, _ := mem.Balance("w1"); b != 20_000 {
		t.Fatalf("saldo final %d, want 20000", b)
	}

	// liquidação repetida: nenhum crédito extra
	if _, err := svc.Settle(context.Background(), w.ID, StatusWon); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("err=%v, want ErrAlreadySettled", err)
	}
	if b, _ := mem.Balance("w1"); b != 20_000 {
		t.Fatalf("liquidação duplicada creditou de novo: %d", b)
	}

	// trilha completa: -10000 stake, +20000 payout, mesma correlação
	entries := mem.Entries()
	if len(entries) != 2 {
		t.Fatalf("%d entradas, want 2", len(entries))
	}
	if entries[0].DeltaCents != -10_000 || entries[1].DeltaCents != 20_000 {
		t.Fatalf("deltas %d/%d, want -10000/+20000", entries[0].DeltaCents, entries[1].DeltaCents)
	}
	if entries[0].CorrelationID != w.ID || entries[1].CorrelationID != w.ID {
		t.Fatal("correlações não apontam para a aposta")
	}

	if len(pub.settled) != 1 || pub.settled[0].Status != StatusWon || pub.settled[0].PayoutCents != 20_000 {
		t.Fatalf("evento publicado inesperado: %+v", pub.settled)
	}
}

func TestSettleLostMovesNoMoney(t *testing.T) {
	mem := ledger.NewMemory()
	mem.CreateWallet("w1", 10_000)
	pub := &capturePub{}
	svc := newService(newMemRepo(), mem, pub)

	w, _ := svc.Place(context.Background(), placeInput())
	if _, err := svc.Settle(context.Background(), w.ID, StatusLost); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if b, _ := mem.Balance("w1"); b != 0 {
		t.Fatalf("aposta perdida mexeu no saldo: %d", b)
	}
	if len(pub.settled) != 1 || pub.settled[0].Status != StatusLost {
		t.Fatal("liquidação perdida não publicada")
	}
}

func TestSettleVoidRefundsStake(t *testing.T) {
	mem := ledger.NewMemory()
	mem.CreateWallet("w1", 10_000)
	svc := newService(newMemRepo(), mem, nil)

	w, _ := svc.Place(context.Background(), placeInput())
	settled, err := svc.Settle(context.Background(), w.ID, StatusVoid)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if settled.PayoutCents != 10_000 {
		t.Fatalf("reembolso %d, want o stake integral", settled.PayoutCents)
	}
	if b, _ := mem.Balance("w1"); b != 10_000 {
		t.Fatalf("saldo final %d, want 10000", b)
	}

	entries := mem.Entries()
	if entries[len(entries)-1].Reason != ledger.ReasonWagerVoid {
		t.Fatalf("reason do reembolso: %s", entries[len(entries)-1].Reason)
	}
}

func TestSettleRejectsUnknownStatus(t *testing.T) {
	svc := newService(newMemRepo(), ledger.NewMemory(), nil)
	if _, err := svc.Settle(context.Background(), "x", "CANCELLED"); !errors.Is(err, ErrBadStatus) {
		t.Fatalf("err=%v, want ErrBadStatus", err)
	}
}
