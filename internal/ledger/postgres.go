package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/radieske/wager-platform/internal/shared/metrics"
)

// Postgres implementa o Ledger sobre um banco com update condicional
// atômico. O débito usa compare-and-swap na própria linha da carteira
// (UPDATE ... WHERE balance >= valor) conferindo linhas afetadas; a
// exclusividade é por carteira, carteiras distintas seguem em paralelo.
type Postgres struct {
	db       *sql.DB
	attempts int
	backoff  time.Duration
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, attempts: 3, backoff: 50 * time.Millisecond}
}

// GetOrCreateWallet retorna o saldo da carteira do usuário, criando-a
// zerada se não existir.
func (p *Postgres) GetOrCreateWallet(ctx context.Context, userID string) (walletID string, balance int64, err error) {
	err = p.db.QueryRowContext(ctx,
		`SELECT id, balance_cents FROM wallets WHERE user_id=$1`, userID).Scan(&walletID, &balance)
	if err == sql.ErrNoRows {
		walletID = uuid.NewString()
		_, err = p.db.ExecContext(ctx,
			`INSERT INTO wallets(id, user_id, balance_cents, version) VALUES($1,$2,0,1)
			 ON CONFLICT (user_id) DO NOTHING`, walletID, userID)
		if err != nil {
			return "", 0, fmt.Errorf("create wallet: %w", err)
		}
		// relê para cobrir corrida de criação concorrente
		err = p.db.QueryRowContext(ctx,
			`SELECT id, balance_cents FROM wallets WHERE user_id=$1`, userID).Scan(&walletID, &balance)
	}
	if err != nil {
		return "", 0, fmt.Errorf("get wallet: %w", err)
	}
	return walletID, balance, nil
}

// Balance retorna o saldo atual sem lock (leituras de exibição).
func (p *Postgres) Balance(ctx context.Context, walletID string) (int64, error) {
	var bal int64
	err := p.db.QueryRowContext(ctx,
		`SELECT balance_cents FROM wallets WHERE id=$1`, walletID).Scan(&bal)
	if err == sql.ErrNoRows {
		return 0, ErrWalletNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("balance: %w", err)
	}
	return bal, nil
}

func (p *Postgres) Debit(ctx context.Context, walletID string, amountCents int64, reason, correlationID string) (int64, error) {
	if amountCents <= 0 {
		return 0, ErrInvalidAmount
	}
	return p.withRetry(ctx, func() (int64, error) {
		return p.apply(ctx, walletID, -amountCents, reason, correlationID)
	})
}

func (p *Postgres) Credit(ctx context.Context, walletID string, amountCents int64, reason, correlationID string) (int64, error) {
	if amountCents <= 0 {
		return 0, ErrInvalidAmount
	}
	return p.withRetry(ctx, func() (int64, error) {
		return p.apply(ctx, walletID, amountCents, reason, correlationID)
	})
}

// apply executa a mutação e o append no ledger numa única transação.
func (p *Postgres) apply(ctx context.Context, walletID string, deltaCents int64, reason, correlationID string) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var after int64
	if deltaCents < 0 {
		// CAS: só debita se o saldo cobre o valor; zero linhas afetadas
		// significa saldo insuficiente (falha fechado)
		err = tx.QueryRowContext(ctx, `
			UPDATE wallets
			SET balance_cents = balance_cents + $1, version = version + 1
			WHERE id = $2 AND balance_cents >= -$1
			RETURNING balance_cents`, deltaCents, walletID).Scan(&after)
		if err == sql.ErrNoRows {
			// distingue carteira inexistente de saldo insuficiente
			var exists bool
			if scanErr := tx.QueryRowContext(ctx,
				`SELECT TRUE FROM wallets WHERE id=$1`, walletID).Scan(&exists); scanErr == sql.ErrNoRows {
				return 0, ErrWalletNotFound
			}
			return 0, ErrInsufficientFunds
		}
	} else {
		err = tx.QueryRowContext(ctx, `
			UPDATE wallets
			SET balance_cents = balance_cents + $1, version = version + 1
			WHERE id = $2
			RETURNING balance_cents`, deltaCents, walletID).Scan(&after)
		if err == sql.ErrNoRows {
			return 0, ErrWalletNotFound
		}
	}
	if err != nil {
		return 0, fmt.Errorf("update wallet: %w", err)
	}

	before := after - deltaCents
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries
			(id, wallet_id, delta_cents, balance_before_cents, balance_after_cents, reason, correlation_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())`,
		uuid.NewString(), walletID, deltaCents, before, after, reason, correlationID); err != nil {
		return 0, fmt.Errorf("append ledger entry: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return after, nil
}

// withRetry repete a operação com backoff em falhas de contenção
// (lock timeout, serialization, deadlock) e devolve ErrConflict quando o
// orçamento de tentativas esgota. Erros de domínio não são repetidos.
func (p *Postgres) withRetry(ctx context.Context, op func() (int64, error)) (int64, error) {
	var lastErr error
	for i := 0; i < p.attempts; i++ {
		bal, err := op()
		if err == nil {
			return bal, nil
		}
		if !retryable(err) {
			return 0, err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(p.backoff * time.Duration(i+1)):
		}
	}
	metrics.LedgerConflicts.Inc()
	return 0, fmt.Errorf("%w: %v", ErrConflict, lastErr)
}

func retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case "40001", "40P01", "55P03": // serialization, deadlock, lock_not_available
		return true
	}
	return false
}

// Entries lista a trilha de auditoria de uma carteira, mais recente
// primeiro.
func (p *Postgres) Entries(ctx context.Context, walletID string, limit int) ([]Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, wallet_id, delta_cents, balance_before_cents, balance_after_cents, reason, correlation_id, created_at
		FROM ledger_entries
		WHERE wallet_id=$1
		ORDER BY created_at DESC
		LIMIT $2`, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.WalletID, &e.DeltaCents, &e.BalanceBefore, &e.BalanceAfter, &e.Reason, &e.CorrelationID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
