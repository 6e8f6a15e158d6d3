package dto

import "time"

type WagerResponse struct {
	WagerID     string  `json:"wagerId"`
	Status      string  `json:"status"`
	StakeCents  int64   `json:"stake_cents"`
	OddValue    float64 `json:"odd_value"`
	PayoutCents int64   `json:"payout_cents,omitempty"`
}

type WalletResponse struct {
	UserID       string `json:"userId"`
	WalletID     string `json:"walletId"`
	BalanceCents int64  `json:"balance_cents"`
}

type LedgerEntryResponse struct {
	ID            string    `json:"id"`
	DeltaCents    int64     `json:"delta_cents"`
	BalanceAfter  int64     `json:"balance_after_cents"`
	Reason        string    `json:"reason"`
	CorrelationID string    `json:"correlation_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type VerifyRollResponse struct {
	Roll  float64 `json:"roll"`
	Valid bool    `json:"valid"`
}

// RejectionResponse é a recusa do pipeline de risco: motivo estável, sem
// thresholds internos.
type RejectionResponse struct {
	Error    string `json:"error"`
	Check    string `json:"check"`
	Severity string `json:"severity"`
}
