package wager

import (
	"errors"
	"math"
	"time"
)

// Status da aposta. Transições são one-way: PENDING é o único estado de
// origem; WON/LOST/VOID são terminais e imutáveis.
const (
	StatusPending = "PENDING"
	StatusWon     = "WON"
	StatusLost    = "LOST"
	StatusVoid    = "VOID"
)

var (
	ErrNotFound       = errors.New("wager not found")
	ErrAlreadySettled = errors.New("wager already settled")
	ErrBadStatus      = errors.New("invalid settlement status")
	ErrBadPayload     = errors.New("invalid wager payload")
)

// Wager é o registro persistido de uma aposta pré-jogo ou ao vivo.
type Wager struct {
	ID          string
	UserID      string
	WalletID    string
	EventID     string
	Market      string
	Selection   string
	StakeCents  int64
	Odds        float64
	Live        bool
	PayoutCents int64 // zero até a liquidação; stake×odd se WON, stake se VOID
	Status      string
	CreatedAt   time.Time
	SettledAt   time.Time
}

// PotentialPayoutCents é o payout em caso de vitória, arredondado para
// baixo.
func (w *Wager) PotentialPayoutCents() int64 {
	return int64(math.Floor(float64(w.StakeCents) * w.Odds))
}
