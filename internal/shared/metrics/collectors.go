package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Coletores compartilhados do núcleo de apostas. Cada binário registra
// apenas os que incrementa; promauto usa o registry default exposto
// pelo StartMetricsServer.
var (
	WagersAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wagers_admitted_total",
		Help: "Apostas aprovadas pelo pipeline de risco",
	})

	WagersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagers_rejected_total",
		Help: "Apostas rejeitadas, por check do pipeline",
	}, []string{"check"})

	LedgerConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_conflicts_total",
		Help: "Operações de ledger que esgotaram retries por contenção",
	})

	RoundsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rounds_resolved_total",
		Help: "Rodadas contínuas resolvidas",
	})

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "round_ws_clients",
		Help: "Clientes WebSocket conectados ao hub da rodada",
	})

	CommissionsPaid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commissions_paid_total",
		Help: "Créditos de comissão efetivados",
	})

	FeedCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_calls_total",
		Help: "Chamadas ao feed externo, por resultado",
	}, []string{"result"})
)
