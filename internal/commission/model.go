package commission

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ancestor é um elo da cadeia de indicação do apostador, do indicador
// direto (depth 1) para cima.
type Ancestor struct {
	UserID   string
	WalletID string
	Rank     string
	Depth    int
	IsBot    bool
}

// RateKey identifica uma taxa de comissão: o nível na cadeia e o rank do
// indicador. Par sem linha na tabela é taxa zero.
type RateKey struct {
	Depth int
	Rank  string
}

// Commission é o registro persistido de uma comissão de indicação. O
// valor exato fica em Amount com 8 casas decimais; AmountCents é o que o
// ledger efetivamente credita, arredondado para baixo.
type Commission struct {
	ID            string
	SourceWagerID string
	BettorID      string
	AncestorID    string
	Depth         int
	Amount        decimal.Decimal
	AmountCents   int64
	CreatedAt     time.Time
}
