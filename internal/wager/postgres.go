package wager

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// Postgres implementa a persistência de apostas em banco Postgres
type Postgres struct{ db *sql.DB }

// NewPostgres retorna uma instância do repositório de apostas
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Create insere uma nova aposta com status PENDING. Respeita o id já
// atribuído pelo chamador, que o usa como correlação no ledger.
func (p *Postgres) Create(ctx context.Context, w *Wager) (string, error) {
	id := w.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO wagers (id,user_id,wallet_id,event_id,market,selection,stake_cents,odd_value,live,status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'PENDING')`,
		id, w.UserID, w.WalletID, w.EventID, w.Market, w.Selection, w.StakeCents, w.Odds, w.Live,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetByID carrega uma aposta pelo id
func (p *Postgres) GetByID(ctx context.Context, id string) (*Wager, error) {
	w := &Wager{}
	var settledAt sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT id,user_id,wallet_id,event_id,market,selection,stake_cents,odd_value,live,payout_cents,status,created_at,settled_at
		FROM wagers WHERE id=$1`, id,
	).Scan(&w.ID, &w.UserID, &w.WalletID, &w.EventID, &w.Market, &w.Selection,
		&w.StakeCents, &w.Odds, &w.Live, &w.PayoutCents, &w.Status, &w.CreatedAt, &settledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if settledAt.Valid {
		w.SettledAt = settledAt.Time
	}
	return w, nil
}

// Settle grava o desfecho de uma aposta. A cláusula status='PENDING' é o
// portão de idempotência: a segunda liquidação não encontra linha e
// devolve ErrAlreadySettled sem efeito colateral.
func (p *Postgres) Settle(ctx context.Context, id, status string, payoutCents int64) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE wagers SET status=$2, payout_cents=$3, settled_at=now(), updated_at=now()
		WHERE id=$1 AND status='PENDING'`,
		id, status, payoutCents,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var cur string
		if qerr := p.db.QueryRowContext(ctx, `SELECT status FROM wagers WHERE id=$1`, id).Scan(&cur); qerr != nil {
			if errors.Is(qerr, sql.ErrNoRows) {
				return ErrNotFound
			}
			return qerr
		}
		return ErrAlreadySettled
	}
	return nil
}

// ListPendingByEvent devolve as apostas pendentes de um evento, para o
// worker de liquidação varrer quando o desfecho sai.
func (p *Postgres) ListPendingByEvent(ctx context.Context, eventID string) ([]*Wager, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id,user_id,wallet_id,event_id,market,selection,stake_cents,odd_value,live,payout_cents,status,created_at
		FROM wagers WHERE event_id=$1 AND status='PENDING'
		ORDER BY created_at`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Wager
	for rows.Next() {
		w := &Wager{}
		if err := rows.Scan(&w.ID, &w.UserID, &w.WalletID, &w.EventID, &w.Market, &w.Selection,
			&w.StakeCents, &w.Odds, &w.Live, &w.PayoutCents, &w.Status, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// PendingEventIDs devolve os eventos com apostas pendentes; o worker de
// liquidação consulta o desfecho de cada um.
func (p *Postgres) PendingEventIDs(ctx context.Context) ([]string, error) {
	return p.eventIDs(ctx, `SELECT DISTINCT event_id FROM wagers WHERE status='PENDING' AND market<>'crash'`)
}

// LiveEventIDs devolve os eventos ao vivo com apostas pendentes; o
// poller de placares mantém o cache desses eventos quente.
func (p *Postgres) LiveEventIDs(ctx context.Context) ([]string, error) {
	return p.eventIDs(ctx, `SELECT DISTINCT event_id FROM wagers WHERE status='PENDING' AND live=true AND market<>'crash'`)
}

func (p *Postgres) eventIDs(ctx context.Context, query string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DailyPotentialPayout soma o payout potencial das apostas do usuário no
// dia corrente (UTC). Alimenta o teto diário do pipeline de risco.
func (p *Postgres) DailyPotentialPayout(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(FLOOR(stake_cents*odd_value)),0)
		FROM wagers
		WHERE user_id=$1 AND status IN ('PENDING','WON')
		  AND created_at >= date_trunc('day', now() AT TIME ZONE 'utc')`,
		userID,
	).Scan(&sum)
	return sum, err
}

// SaveRoundWager registra apostas da rodada contínua na mesma tabela,
// usando o round como evento e a trilha como seleção.
func (p *Postgres) SaveRoundWager(ctx context.Context, betID, userID, walletID, roundID string, trackID int, stakeCents, payoutCents int64, status string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO wagers (id,user_id,wallet_id,event_id,market,selection,stake_cents,odd_value,live,payout_cents,status)
		VALUES ($1,$2,$3,$4,'crash','track:'||$5::text,$6,0,true,$7,$8)
		ON CONFLICT (id) DO UPDATE SET payout_cents=EXCLUDED.payout_cents, status=EXCLUDED.status, settled_at=now(), updated_at=now()`,
		betID, userID, walletID, roundID, trackID, stakeCents, payoutCents, status,
	)
	return err
}
