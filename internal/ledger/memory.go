package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory implementa o Ledger em memória com as mesmas garantias do banco:
// exclusão mútua por carteira e trilha append-only. Usado nos testes do
// engine e do pipeline, onde subir Postgres não agrega nada.
type Memory struct {
	mu      sync.RWMutex
	wallets map[string]*memWallet
	entries []Entry
}

type memWallet struct {
	mu      sync.Mutex
	balance int64
}

func NewMemory() *Memory {
	return &Memory{wallets: make(map[string]*memWallet)}
}

// CreateWallet registra uma carteira com saldo inicial. Idempotente.
func (m *Memory) CreateWallet(walletID string, initialCents int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.wallets[walletID]; !ok {
		m.wallets[walletID] = &memWallet{balance: initialCents}
	}
}

func (m *Memory) Debit(ctx context.Context, walletID string, amountCents int64, reason, correlationID string) (int64, error) {
	if amountCents <= 0 {
		return 0, ErrInvalidAmount
	}
	return m.apply(walletID, -amountCents, reason, correlationID)
}

func (m *Memory) Credit(ctx context.Context, walletID string, amountCents int64, reason, correlationID string) (int64, error) {
	if amountCents <= 0 {
		return 0, ErrInvalidAmount
	}
	return m.apply(walletID, amountCents, reason, correlationID)
}

func (m *Memory) apply(walletID string, deltaCents int64, reason, correlationID string) (int64, error) {
	m.mu.RLock()
	w, ok := m.wallets[walletID]
	m.mu.RUnlock()
	if !ok {
		return 0, ErrWalletNotFound
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if deltaCents < 0 && w.balance < -deltaCents {
		return 0, ErrInsufficientFunds
	}

	before := w.balance
	w.balance += deltaCents

	m.mu.Lock()
	m.entries = append(m.entries, Entry{
		ID:            uuid.NewString(),
		WalletID:      walletID,
		DeltaCents:    deltaCents,
		BalanceBefore: before,
		BalanceAfter:  w.balance,
		Reason:        reason,
		CorrelationID: correlationID,
		CreatedAt:     time.Now(),
	})
	m.mu.Unlock()

	return w.balance, nil
}

// Balance retorna o saldo atual da carteira.
func (m *Memory) Balance(walletID string) (int64, error) {
	m.mu.RLock()
	w, ok := m.wallets[walletID]
	m.mu.RUnlock()
	if !ok {
		return 0, ErrWalletNotFound
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance, nil
}

// Entries devolve uma cópia da trilha de auditoria.
func (m *Memory) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}
