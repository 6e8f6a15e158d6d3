package commission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/wager-platform/internal/ledger"
	"github.com/radieske/wager-platform/internal/shared/metrics"
	"github.com/radieske/wager-platform/pkg/contracts/events"
)

// Repo é a persistência exigida pelo distribuidor.
type Repo interface {
	Ancestors(ctx context.Context, userID string, maxDepth int) ([]Ancestor, error)
	Rates(ctx context.Context, maxDepth int) (map[RateKey]decimal.Decimal, error)
	Record(ctx context.Context, c *Commission) (bool, error)
}

// Distributor paga comissões de indicação sobre o stake de cada aposta
// liquidada. O valor exato é calculado em decimal de 8 casas; o crédito
// no ledger arredonda para baixo, nunca inventa fração de centavo.
type Distributor struct {
	log      *zap.Logger
	repo     Repo
	ledger   ledger.Ledger
	maxDepth int
	paidW    *kafka.Writer // pode ser nil
}

func NewDistributor(log *zap.Logger, repo Repo, lg ledger.Ledger, maxDepth int, paidWriter *kafka.Writer) *Distributor {
	return &Distributor{log: log, repo: repo, ledger: lg, maxDepth: maxDepth, paidW: paidWriter}
}

// Distribute processa uma liquidação: resolve a cadeia de indicação e
// credita cada nível elegível. Reprocessar a mesma liquidação é seguro:
// o registro da comissão é o portão, o crédito só acontece na primeira
// inserção.
func (d *Distributor) Distribute(ctx context.Context, ev events.WagerSettled) error {
	if ev.StakeCents <= 0 {
		return nil
	}

	ancestors, err := d.repo.Ancestors(ctx, ev.UserID, d.maxDepth)
	if err != nil {
		return fmt.Errorf("ancestors: %w", err)
	}
	if len(ancestors) == 0 {
		return nil
	}

	rates, err := d.repo.Rates(ctx, d.maxDepth)
	if err != nil {
		return fmt.Errorf("rates: %w", err)
	}

	stake := decimal.NewFromInt(ev.StakeCents)
	for _, a := range ancestors {
		if a.IsBot || a.UserID == ev.UserID {
			continue
		}
		rate, ok := rates[RateKey{Depth: a.Depth, Rank: a.Rank}]
		if !ok || rate.IsZero() {
			continue
		}

		amount := stake.Mul(rate).Round(8)
		amountCents := amount.IntPart() // floor de valores positivos
		if amountCents <= 0 {
			d.log.Debug("commission below one cent",
				zap.String("wager_id", ev.WagerID),
				zap.String("ancestor_id", a.UserID),
				zap.String("amount", amount.StringFixed(8)))
			continue
		}

		c := &Commission{
			SourceWagerID: ev.WagerID,
			BettorID:      ev.UserID,
			AncestorID:    a.UserID,
			Depth:         a.Depth,
			Amount:        amount,
			AmountCents:   amountCents,
		}
		inserted, err := d.repo.Record(ctx, c)
		if err != nil {
			return fmt.Errorf("record commission depth %d: %w", a.Depth, err)
		}
		if !inserted {
			continue // redelivery; já paga
		}

		if _, err := d.ledger.Credit(ctx, a.WalletID, amountCents, ledger.ReasonCommission, ev.WagerID); err != nil {
			return fmt.Errorf("credit commission depth %d: %w", a.Depth, err)
		}
		metrics.CommissionsPaid.Inc()

		d.publishPaid(ctx, c)
	}
	return nil
}

func (d *Distributor) publishPaid(ctx context.Context, c *Commission) {
	if d.paidW == nil {
		return
	}
	ev := events.CommissionPaid{
		SourceWagerID: c.SourceWagerID,
		BettorID:      c.BettorID,
		AncestorID:    c.AncestorID,
		Depth:         c.Depth,
		Amount:        c.Amount.StringFixed(8),
		AmountCents:   c.AmountCents,
		TsUnixMs:      time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(ev)
	if err := d.paidW.WriteMessages(ctx, kafka.Message{Key: []byte(c.SourceWagerID), Value: b}); err != nil {
		d.log.Warn("commission_paid publish failed",
			zap.String("wager_id", c.SourceWagerID), zap.Error(err))
	}
}
