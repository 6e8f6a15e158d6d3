package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/radieske/wager-platform/internal/commission"
	"github.com/radieske/wager-platform/internal/ledger"
	"github.com/radieske/wager-platform/internal/shared/config"
	"github.com/radieske/wager-platform/internal/shared/db"
	"github.com/radieske/wager-platform/internal/shared/kafka"
	"github.com/radieske/wager-platform/internal/shared/logger"
	"github.com/radieske/wager-platform/internal/shared/metrics"
)

// Métricas do loop de consumo, por fase
var (
	consumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commission_events_consumed_total",
		Help: "Liquidações consumidas do Kafka",
	})
	distributed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commission_events_distributed_total",
		Help: "Liquidações com comissões processadas com sucesso",
	})
	failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commission_failures_total",
		Help: "Falhas do worker de comissões, por fase",
	}, []string{"phase"})
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	// consumidor de liquidações
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicWagerSettled, "commission-worker")
	defer reader.Close()

	// publica o espelho de auditoria commission_paid
	paidWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicCommissionPaid)
	defer paidWriter.Close()

	var dlqWriter *kafka.Writer
	if cfg.TopicWagerSettledDLQ != "" {
		dlqWriter = kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerSettledDLQ)
		defer dlqWriter.Close()
	}

	book := ledger.NewPostgres(pg)
	repo := commission.NewPostgres(pg)
	dist := commission.NewDistributor(log, repo, book, cfg.CommissionMaxDepth, paidWriter)

	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})

	proc := &commission.Processor{
		Log:         log,
		Reader:      reader,
		Distributor: dist,
		DLQ:         dlqWriter,

		OnConsumed: func() { consumed.Inc() },
		OnPaid:     func() { distributed.Inc() },
		OnError:    func(phase string) { failures.WithLabelValues(phase).Inc() },
	}

	log.Info("commission-worker started",
		zap.String("consume", cfg.TopicWagerSettled),
		zap.Int("max_depth", cfg.CommissionMaxDepth),
	)
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor", zap.Error(err))
	}
}
