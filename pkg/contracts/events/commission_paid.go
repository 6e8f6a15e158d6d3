package events

// Evento emitido pelo commission-worker após creditar um ancestral.
// Mantido para auditoria e métricas downstream.
type CommissionPaid struct {
	SourceWagerID string `json:"source_wager_id"`
	BettorID      string `json:"bettor_id"`
	AncestorID    string `json:"ancestor_id"`
	Depth         int    `json:"depth"`  // 1..3
	Amount        string `json:"amount"` // decimal com 8 casas, em unidades de moeda
	AmountCents   int64  `json:"amount_cents"`
	TsUnixMs      int64  `json:"ts_unix_ms"`
}
