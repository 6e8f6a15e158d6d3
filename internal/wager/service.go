package wager

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/wager-platform/internal/ledger"
	"github.com/radieske/wager-platform/internal/risk"
	"github.com/radieske/wager-platform/pkg/contracts/events"
)

// Repo é a persistência de apostas exigida pelo serviço.
type Repo interface {
	Create(ctx context.Context, w *Wager) (string, error)
	GetByID(ctx context.Context, id string) (*Wager, error)
	Settle(ctx context.Context, id, status string, payoutCents int64) error
}

// SettledPublisher publica a liquidação; entrada do distribuidor de
// comissões.
type SettledPublisher interface {
	PublishWagerSettled(ctx context.Context, ev events.WagerSettled) error
}

// Service orquestra o ciclo de vida de uma aposta: admissão de risco,
// débito, persistência e liquidação. O dinheiro só se move pelo ledger.
type Service struct {
	log    *zap.Logger
	repo   Repo
	ledger ledger.Ledger
	admit  *risk.Pipeline
	publ   SettledPublisher // pode ser nil
}

func NewService(log *zap.Logger, repo Repo, lg ledger.Ledger, admit *risk.Pipeline, publ SettledPublisher) *Service {
	return &Service{log: log, repo: repo, ledger: lg, admit: admit, publ: publ}
}

// PlaceInput é o pedido de aposta já validado sintaticamente pela borda
// HTTP.
type PlaceInput struct {
	UserID     string
	WalletID   string
	EventID    string
	Market     string
	Selection  string
	StakeCents int64
	Odds       float64
	Live       bool
	MarketOdds []float64
}

// Place admite e registra uma aposta. A ordem é invariante: risco →
// débito → persistência. Se a persistência falhar depois do débito, o
// débito é desfeito com um crédito compensatório; nunca fica dinheiro
// retido sem aposta correspondente.
func (s *Service) Place(ctx context.Context, in PlaceInput) (*Wager, error) {
	if in.UserID == "" || in.WalletID == "" || in.EventID == "" || in.Market == "" ||
		in.Selection == "" || in.StakeCents <= 0 || in.Odds <= 1.0 {
		return nil, ErrBadPayload
	}

	ticket := &risk.Ticket{
		UserID:     in.UserID,
		EventID:    in.EventID,
		Market:     in.Market,
		Selection:  in.Selection,
		StakeCents: in.StakeCents,
		Odds:       in.Odds,
		Live:       in.Live,
		MarketOdds: in.MarketOdds,
		PlacedAt:   time.Now(),
	}
	if rej := s.admit.Admit(ctx, ticket); rej != nil {
		return nil, rej
	}

	w := &Wager{
		UserID:     in.UserID,
		WalletID:   in.WalletID,
		EventID:    in.EventID,
		Market:     in.Market,
		Selection:  in.Selection,
		StakeCents: in.StakeCents,
		Odds:       in.Odds,
		Live:       in.Live,
		Status:     StatusPending,
	}

	// o id nasce antes do débito para amarrar a correlação do ledger à
	// aposta que ainda vai ser persistida
	w.ID = uuid.NewString()

	if _, err := s.ledger.Debit(ctx, in.WalletID, in.StakeCents, ledger.ReasonWagerStake, w.ID); err != nil {
		return nil, err
	}

	if _, err := s.repo.Create(ctx, w); err != nil {
		// stake retido sem aposta registrada: crédito compensatório com a
		// mesma correlação, a trilha do ledger zera
		if _, cerr := s.ledger.Credit(ctx, in.WalletID, in.StakeCents, ledger.ReasonWagerRollback, w.ID); cerr != nil {
			s.log.Error("compensating credit failed",
				zap.String("wager_id", w.ID),
				zap.String("wallet_id", in.WalletID),
				zap.Error(cerr))
		}
		return nil, fmt.Errorf("persist wager: %w", err)
	}

	return w, nil
}

// Settle grava o desfecho e move o dinheiro correspondente. Idempotente:
// a repetição devolve ErrAlreadySettled sem crédito duplicado, porque o
// portão de transição no repo vem antes de qualquer crédito.
func (s *Service) Settle(ctx context.Context, wagerID, status string) (*Wager, error) {
	if status != StatusWon && status != StatusLost && status != StatusVoid {
		return nil, ErrBadStatus
	}

	w, err := s.repo.GetByID(ctx, wagerID)
	if err != nil {
		return nil, err
	}

	var payout int64
	var reason string
	switch status {
	case StatusWon:
		payout = w.PotentialPayoutCents()
		reason = ledger.ReasonWagerPayout
	case StatusVoid:
		payout = w.StakeCents
		reason = ledger.ReasonWagerVoid
	}

	if err := s.repo.Settle(ctx, wagerID, status, payout); err != nil {
		return nil, err
	}
	w.Status = status
	w.PayoutCents = payout

	if payout > 0 {
		if _, err := s.ledger.Credit(ctx, w.WalletID, payout, reason, wagerID); err != nil {
			// o status já virou; o crédito pendente é recuperado por
			// reconciliação, nunca por uma segunda transição
			s.log.Error("settlement credit failed",
				zap.String("wager_id", wagerID),
				zap.String("wallet_id", w.WalletID),
				zap.Int64("payout_cents", payout),
				zap.Error(err))
			return nil, fmt.Errorf("settlement credit: %w", err)
		}
	}

	if s.publ != nil {
		ev := events.WagerSettled{
			WagerID:     w.ID,
			UserID:      w.UserID,
			WalletID:    w.WalletID,
			GameKind:    "sportsbook",
			Status:      status,
			StakeCents:  w.StakeCents,
			PayoutCents: payout,
		}
		if err := s.publ.PublishWagerSettled(ctx, ev); err != nil {
			s.log.Warn("wager_settled publish failed",
				zap.String("wager_id", w.ID), zap.Error(err))
		}
	}

	s.log.Info("wager settled",
		zap.String("wager_id", w.ID),
		zap.String("status", status),
		zap.Int64("payout_cents", payout),
	)
	return w, nil
}
