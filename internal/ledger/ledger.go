package ledger

import (
	"context"
	"errors"
	"time"
)

// Ledger é a única autoridade de mutação de saldo. Duas operações, ambas
// atômicas por carteira: operações concorrentes sobre a mesma carteira se
// comportam como alguma ordenação serial, e o saldo nunca fica negativo.
type Ledger interface {
	// Debit subtrai amountCents da carteira. Falha fechado com
	// ErrInsufficientFunds quando o saldo não cobre o valor. Retorna o
	// saldo resultante para o chamador reagir sem uma segunda leitura.
	Debit(ctx context.Context, walletID string, amountCents int64, reason, correlationID string) (int64, error)

	// Credit soma amountCents à carteira. Nunca falha para uma carteira
	// válida. Retorna o saldo resultante.
	Credit(ctx context.Context, walletID string, amountCents int64, reason, correlationID string) (int64, error)
}

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrInvalidAmount     = errors.New("amount must be positive")

	// ErrConflict indica timeout de lock/contention após esgotar os
	// retries; o chamador deve tentar novamente, nunca prosseguir.
	ErrConflict = errors.New("ledger contention, retry")
)

// Reason codes gravados em cada LedgerEntry. O correlationID liga a
// entrada à aposta (ou comissão) que a originou.
const (
	ReasonWagerStake    = "WAGER_STAKE"
	ReasonWagerPayout   = "WAGER_PAYOUT"
	ReasonWagerRollback = "WAGER_ROLLBACK" // crédito compensatório (saga)
	ReasonWagerVoid     = "WAGER_VOID_REFUND"
	ReasonCashout       = "ROUND_CASHOUT"
	ReasonCommission    = "REFERRAL_COMMISSION"
	ReasonDeposit       = "DEPOSIT"
)

// Entry é o registro imutável de uma mudança de saldo. Append-only: a
// trilha de auditoria de toda mutação.
type Entry struct {
	ID            string
	WalletID      string
	DeltaCents    int64 // negativo em débitos
	BalanceBefore int64
	BalanceAfter  int64
	Reason        string
	CorrelationID string
	CreatedAt     time.Time
}
