package events

// Evento publicado no tópico "wager_settled" após a liquidação de uma
// aposta (esportiva ou de rodada contínua). É a entrada do
// commission-worker.
type WagerSettled struct {
	WagerID     string `json:"wager_id"`
	UserID      string `json:"user_id"`
	WalletID    string `json:"wallet_id"`
	GameKind    string `json:"game_kind"` // "sports" | "crash"
	Status      string `json:"status"`    // "WON" | "LOST" | "VOID"
	StakeCents  int64  `json:"stake_cents"`
	PayoutCents int64  `json:"payout_cents"`
	TsUnixMs    int64  `json:"ts_unix_ms"`
}
