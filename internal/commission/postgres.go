package commission

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Postgres implementa a persistência da cadeia de indicações e das
// comissões pagas
type Postgres struct{ db *sql.DB }

// NewPostgres retorna uma instância do repositório de comissões
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Ancestors resolve a cadeia de indicação do apostador até maxDepth
// níveis, do indicador direto para cima. Uma única query recursiva em
// vez de um round-trip por nível.
func (p *Postgres) Ancestors(ctx context.Context, userID string, maxDepth int) ([]Ancestor, error) {
	rows, err := p.db.QueryContext(ctx, `
		WITH RECURSIVE chain AS (
			SELECT referrer_id, 1 AS depth FROM referrals WHERE user_id=$1
			UNION ALL
			SELECT r.referrer_id, c.depth+1
			FROM referrals r JOIN chain c ON r.user_id=c.referrer_id
			WHERE c.depth < $2
		)
		SELECT c.referrer_id, u.wallet_id, u.rank, c.depth, u.is_bot
		FROM chain c JOIN users u ON u.id=c.referrer_id
		ORDER BY c.depth`,
		userID, maxDepth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Ancestor
	for rows.Next() {
		var a Ancestor
		if err := rows.Scan(&a.UserID, &a.WalletID, &a.Rank, &a.Depth, &a.IsBot); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Rates carrega em lote as taxas por (nível, rank do indicador). Par sem
// linha na tabela é taxa zero.
func (p *Postgres) Rates(ctx context.Context, maxDepth int) (map[RateKey]decimal.Decimal, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT depth, rank, rate FROM commission_rates WHERE depth <= $1`, maxDepth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rates := make(map[RateKey]decimal.Decimal)
	for rows.Next() {
		var key RateKey
		var raw string
		if err := rows.Scan(&key.Depth, &key.Rank, &raw); err != nil {
			return nil, err
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, err
		}
		rates[key] = rate
	}
	return rates, rows.Err()
}

// Record insere a comissão. A unique (source_wager_id, ancestor_id) é o
// portão de idempotência para redelivery do broker: a segunda entrega
// não insere e o crédito não acontece de novo.
func (p *Postgres) Record(ctx context.Context, c *Commission) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO commissions (id, source_wager_id, bettor_id, ancestor_id, depth, amount, amount_cents)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (source_wager_id, ancestor_id) DO NOTHING`,
		uuid.NewString(), c.SourceWagerID, c.BettorID, c.AncestorID, c.Depth,
		c.Amount.StringFixed(8), c.AmountCents,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
