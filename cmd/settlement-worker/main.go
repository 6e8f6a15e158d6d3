package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/wager-platform/internal/feed"
	"github.com/radieske/wager-platform/internal/ledger"
	"github.com/radieske/wager-platform/internal/risk"
	"github.com/radieske/wager-platform/internal/shared/cache"
	"github.com/radieske/wager-platform/internal/shared/clock"
	"github.com/radieske/wager-platform/internal/shared/config"
	"github.com/radieske/wager-platform/internal/shared/db"
	"github.com/radieske/wager-platform/internal/shared/kafka"
	"github.com/radieske/wager-platform/internal/shared/logger"
	"github.com/radieske/wager-platform/internal/shared/metrics"
	"github.com/radieske/wager-platform/internal/wager"
	"github.com/radieske/wager-platform/pkg/contracts/events"
)

// retryPublisher publica a liquidação com retry simples; quando esgota,
// manda para a DLQ em vez de perder o evento.
type retryPublisher struct {
	log    *zap.Logger
	writer *kafkago.Writer
	dlq    *kafkago.Writer // pode ser nil
}

func (p *retryPublisher) PublishWagerSettled(ctx context.Context, ev events.WagerSettled) error {
	if ev.TsUnixMs == 0 {
		ev.TsUnixMs = time.Now().UnixMilli()
	}
	b, _ := json.Marshal(ev)

	var err error
	for i := 0; i < 3; i++ {
		if err = kafka.WriteJSON(ctx, p.writer, ev.WagerID, b); err == nil {
			return nil
		}
		time.Sleep(time.Duration(300*(i+1)) * time.Millisecond)
	}
	p.log.Error("wager_settled publish exhausted retries",
		zap.String("wager_id", ev.WagerID), zap.Error(err))
	if p.dlq != nil {
		if derr := kafka.WriteJSON(ctx, p.dlq, ev.WagerID, b); derr != nil {
			return fmt.Errorf("publish failed and dlq failed: %v / %w", err, derr)
		}
		return nil
	}
	return err
}

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

	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerSettled)
	defer settledWriter.Close()

	var dlqWriter *kafkago.Writer
	if cfg.TopicWagerSettledDLQ != "" {
		dlqWriter = kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerSettledDLQ)
		defer dlqWriter.Close()
	}

	clk := clock.Real{}
	book := ledger.NewPostgres(pg)
	repo := wager.NewPostgres(pg)
	feedClient := feed.NewClient(log, clk, feed.NewCache(rdb),
		cfg.FeedBaseURL, cfg.FeedMarginPercent, cfg.FeedMonthlyBudget)

	pub := &retryPublisher{log: log, writer: settledWriter, dlq: dlqWriter}
	// a admissão já aconteceu no game-server; o worker só liquida
	svc := wager.NewService(log, repo, book, risk.NewPipeline(log, nil), pub)

	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})

	// varredura periódica: eventos com apostas pendentes cujo placar já
	// encerrou são liquidados
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(cfg.ScorePollSpec, func() { sweep(ctx, log, repo, feedClient, svc) }); err != nil {
		log.Fatal("cron spec", zap.Error(err))
	}
	c.Start()

	log.Info("settlement-worker started", zap.String("spec", cfg.ScorePollSpec))
	<-ctx.Done()
	<-c.Stop().Done()
}

func sweep(ctx context.Context, log *zap.Logger, repo *wager.Postgres, feedClient *feed.Client, svc *wager.Service) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	eventIDs, err := repo.PendingEventIDs(ctx)
	if err != nil {
		log.Warn("pending events listing failed", zap.Error(err))
		return
	}

	for _, eventID := range eventIDs {
		score, err := feedClient.CurrentScore(ctx, eventID)
		if err != nil {
			log.Warn("score fetch failed", zap.String("event_id", eventID), zap.Error(err))
			continue
		}
		if !score.Finished {
			continue
		}
		settleEvent(ctx, log, repo, svc, eventID, score)
	}
}

// settleEvent liquida todas as apostas pendentes de um evento encerrado.
func settleEvent(ctx context.Context, log *zap.Logger, repo *wager.Postgres, svc *wager.Service, eventID string, score risk.ScoreLine) {
	winner := winningSelection(score)

	pending, err := repo.ListPendingByEvent(ctx, eventID)
	if err != nil {
		log.Warn("pending wagers listing failed", zap.String("event_id", eventID), zap.Error(err))
		return
	}

	for _, w := range pending {
		// só o mercado 1x2 tem liquidação automática; outros mercados
		// aguardam liquidação manual
		if w.Market != "1x2" {
			continue
		}
		status := wager.StatusLost
		if w.Selection == winner {
			status = wager.StatusWon
		}
		if _, err := svc.Settle(ctx, w.ID, status); err != nil {
			log.Error("settle failed",
				zap.String("wager_id", w.ID),
				zap.String("status", status),
				zap.Error(err))
		}
	}

	log.Info("event settled",
		zap.String("event_id", eventID),
		zap.String("winner", winner),
		zap.Int("wagers", len(pending)),
	)
}

func winningSelection(score risk.ScoreLine) string {
	switch {
	case score.HomeGoals > score.AwayGoals:
		return "home"
	case score.AwayGoals > score.HomeGoals:
		return "away"
	}
	return "draw"
}
