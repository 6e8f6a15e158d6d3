package topics

const (
	// Liquidação de apostas
	WagerSettled = "wager_settled"

	// Comissões de indicação
	CommissionPaid = "commission_paid"

	// DLQs
	WagerSettledDLQ = "wager_settled_dlq"
)
