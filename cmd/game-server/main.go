package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/radieske/wager-platform/internal/feed"
	ghttp "github.com/radieske/wager-platform/internal/game-server/http"
	"github.com/radieske/wager-platform/internal/ledger"
	"github.com/radieske/wager-platform/internal/risk"
	"github.com/radieske/wager-platform/internal/round"
	"github.com/radieske/wager-platform/internal/shared/cache"
	"github.com/radieske/wager-platform/internal/shared/clock"
	"github.com/radieske/wager-platform/internal/shared/config"
	"github.com/radieske/wager-platform/internal/shared/db"
	"github.com/radieske/wager-platform/internal/shared/kafka"
	"github.com/radieske/wager-platform/internal/shared/logger"
	"github.com/radieske/wager-platform/internal/shared/metrics"
	"github.com/radieske/wager-platform/internal/wager"
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

	// Postgres: ledger, apostas e comissões compartilham o mesmo banco
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	// Redis: cache de odds/placares do feed
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writer: liquidações alimentam o worker de comissões
	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerSettled)
	defer settledWriter.Close()

	clk := clock.Real{}
	book := ledger.NewPostgres(pg)
	wagerRepo := wager.NewPostgres(pg)

	// feed externo com margem fixa e orçamento mensal
	feedCache := feed.NewCache(rdb)
	feedClient := feed.NewClient(log, clk, feedCache, cfg.FeedBaseURL, cfg.FeedMarginPercent, cfg.FeedMonthlyBudget)

	var notifier risk.Notifier
	if cfg.SlackToken != "" {
		notifier = risk.NewSlackNotifier(cfg.SlackToken, cfg.SlackChannel, log)
	}

	// plausibilidade: serviço externo quando configurado, senão só regras
	plausibility := &risk.Plausibility{
		Scores:   feedClient,
		Fallback: risk.RuleBased{},
	}
	if cfg.PlausibilityURL != "" {
		plausibility.Primary = risk.NewReasoningService(cfg.PlausibilityURL, cfg.PlausibilityTimeout)
	}

	// pipeline completo do sportsbook, na ordem barato -> caro
	sportsbookPipeline := risk.NewPipeline(log, notifier,
		risk.NewRateLimit(clk, cfg.RateLimitPerMinute, cfg.RateLimitPerHour),
		&risk.WinCap{CapCents: cfg.WinCapCents},
		&risk.DailyCap{Agg: wagerRepo, CapCents: cfg.DailyPayoutCapCents},
		&risk.MarketMargin{MinPercent: cfg.MinMarginPercent},
		risk.NewStakePattern(clk, cfg.PatternWindow, cfg.PatternSameEventMax,
			cfg.PatternEscalationTol, cfg.PatternSpikeMultiple, cfg.PatternSpikeFloorCents),
		plausibility,
		&risk.SettlementBuffer{Odds: feedClient, Hold: cfg.BufferHoldDelay, MaxDropPercent: cfg.BufferMaxDropPercent},
	)

	// a rodada contínua não tem mercado nem feed: só os checks locais.
	// O win cap avalia o ticket com odd = multiplicador máximo, o pior
	// payout que a rodada pode pagar.
	roundPipeline := risk.NewPipeline(log, notifier,
		risk.NewRateLimit(clk, cfg.RateLimitPerMinute, cfg.RateLimitPerHour),
		&risk.WinCap{CapCents: cfg.WinCapCents},
		risk.NewStakePattern(clk, cfg.PatternWindow, cfg.PatternSameEventMax,
			cfg.PatternEscalationTol, cfg.PatternSpikeMultiple, cfg.PatternSpikeFloorCents),
	)

	settledPub := wager.NewKafkaPublisher(settledWriter)
	wagerSvc := wager.NewService(log, wagerRepo, book, sportsbookPipeline, settledPub)

	// rodada contínua: hub e engine se vinculam mutuamente
	hub := round.NewHub(log, func(*http.Request) bool { return true })
	engine, err := round.NewEngine(round.Config{
		Countdown:     cfg.RoundCountdown,
		ArmedDelay:    cfg.RoundArmedDelay,
		TickInterval:  cfg.RoundTickInterval,
		ResolveDelay:  cfg.RoundResolveDelay,
		Tracks:        cfg.RoundTracks,
		GrowthRate:    cfg.RoundGrowthRate,
		HouseEdge:     cfg.HouseEdge,
		MaxMultiplier: cfg.MaxMultiplier,
		ClientSeed:    "house-public-seed",
	}, log, clk, book, roundPipeline, hub, settledPub, wagerRepo)
	if err != nil {
		log.Fatal("round engine", zap.Error(err))
	}
	hub.Bind(engine)
	go engine.Run(ctx)

	// poller de placares dos eventos ao vivo
	poller := feed.NewPoller(log, feedClient, wagerRepo, cfg.ScorePollSpec)
	if err := poller.Start(ctx); err != nil {
		log.Fatal("score poller", zap.Error(err))
	}
	defer poller.Stop()

	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})

	api := ghttp.NewServer(log, wagerSvc, wagerRepo, book, book, hub.HandleWS)
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: api.Router(),
	}

	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	log.Info("game-server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
