package dto

// PlaceWagerRequest é o payload de criação de aposta.
type PlaceWagerRequest struct {
	UserID     string    `json:"userId"`
	WalletID   string    `json:"walletId"`
	EventID    string    `json:"eventId"`
	Market     string    `json:"market"`
	Selection  string    `json:"selection"`
	StakeCents int64     `json:"stake_cents"`
	OddValue   float64   `json:"odd_value"`
	Live       bool      `json:"live"`
	MarketOdds []float64 `json:"market_odds,omitempty"`
}

// VerifyRollRequest são as entradas reveladas de um sorteio: com elas
// qualquer um reproduz o resultado.
type VerifyRollRequest struct {
	ServerSeed string `json:"server_seed"`
	ClientSeed string `json:"client_seed"`
	Nonce      uint64 `json:"nonce"`
	Digest     string `json:"digest"`
}

type DepositRequest struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amount_cents"`
	ExternalRef string `json:"external_ref,omitempty"` // opcional p/ rastrear a origem
}
