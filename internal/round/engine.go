package round

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/wager-platform/internal/fairness"
	"github.com/radieske/wager-platform/internal/ledger"
	"github.com/radieske/wager-platform/internal/risk"
	"github.com/radieske/wager-platform/internal/shared/clock"
	"github.com/radieske/wager-platform/internal/shared/metrics"
	"github.com/radieske/wager-platform/pkg/contracts/events"
)

const historySize = 20

// Config são os parâmetros de tempo e de jogo da rodada contínua.
type Config struct {
	Countdown     time.Duration
	ArmedDelay    time.Duration
	TickInterval  time.Duration
	ResolveDelay  time.Duration
	Tracks        int
	GrowthRate    float64 // curva exponencial do multiplicador, por ms
	HouseEdge     float64
	MaxMultiplier float64
	ClientSeed    string // seed público da casa quando o jogador não fornece
}

// Broadcaster entrega eventos a todos os assinantes, best-effort
// at-least-once.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// SettledPublisher publica a liquidação de apostas da rodada (entrada do
// distribuidor de comissões).
type SettledPublisher interface {
	PublishWagerSettled(ctx context.Context, ev events.WagerSettled) error
}

// WagerStore persiste o registro auditável das apostas da rodada.
type WagerStore interface {
	SaveRoundWager(ctx context.Context, betID, userID, walletID, roundID string, trackID int, stakeCents, payoutCents int64, status string) error
}

// Engine é a máquina de estados da rodada contínua. Um único relógio
// lógico (o tick loop) é compartilhado por todos os assinantes: todos
// veem o mesmo multiplicador no mesmo instante, dentro da tolerância de
// um tick. As trilhas resolvem de forma independente dentro da mesma
// fase LIVE.
type Engine struct {
	cfg    Config
	log    *zap.Logger
	clk    clock.Clock
	ledger ledger.Ledger
	admit  *risk.Pipeline
	bcast  Broadcaster
	pub    SettledPublisher // pode ser nil
	store  WagerStore       // pode ser nil

	mu            sync.Mutex
	phase         Phase
	roundID       string
	roundN        uint64
	seed          *fairness.SeedPair
	nonce         uint64
	tracks        []*Track
	bets          map[string]*Bet
	phaseDeadline time.Time
	liveSince     time.Time
	history       []Summary
}

func NewEngine(cfg Config, log *zap.Logger, clk clock.Clock, lg ledger.Ledger, admit *risk.Pipeline, bcast Broadcaster, pub SettledPublisher, store WagerStore) (*Engine, error) {
	if cfg.Tracks < 1 {
		return nil, fmt.Errorf("round engine needs at least one track, got %d", cfg.Tracks)
	}
	e := &Engine{
		cfg:    cfg,
		log:    log,
		clk:    clk,
		ledger: lg,
		admit:  admit,
		bcast:  bcast,
		pub:    pub,
		store:  store,
		bets:   make(map[string]*Bet),
	}
	if err := e.startRound(); err != nil {
		return nil, err
	}
	return e, nil
}

// Run dirige o relógio da rodada até o contexto encerrar.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.step(e.clk.Now())
		}
	}
}

// startRound arma a próxima rodada: novo seed, novo compromisso, trilhas
// zeradas. Chamado com o lock já liberado na construção e com lock nos
// demais casos; ver step.
func (e *Engine) startRound() error {
	seed, err := fairness.NewSeedPair()
	if err != nil {
		return fmt.Errorf("start round: %w", err)
	}

	e.roundN++
	e.seed = seed
	e.roundID = uuid.NewString()
	e.phase = PhaseWaiting
	e.phaseDeadline = e.clk.Now().Add(e.cfg.Countdown)
	e.bets = make(map[string]*Bet)

	e.tracks = make([]*Track, e.cfg.Tracks)
	for i := range e.tracks {
		nonce := e.nonce
		e.nonce++
		roll, digest := fairness.Roll(seed.ServerSeed, e.cfg.ClientSeed, nonce)
		e.tracks[i] = &Track{
			ID:         i,
			nonce:      nonce,
			digest:     digest,
			crashPoint: fairness.CrashPoint(roll, e.cfg.HouseEdge, e.cfg.MaxMultiplier),
			Current:    1.00,
		}
	}

	e.bcast.Broadcast(EventRoundStarted, map[string]any{
		"round_id":     e.roundID,
		"commitment":   seed.Commitment,
		"countdown_ms": e.cfg.Countdown.Milliseconds(),
		"tracks":       e.cfg.Tracks,
	})
	return nil
}

// step avança a máquina de estados para o instante now. As transições
// são dirigidas por tempo, nunca por eventos externos.
func (e *Engine) step(now time.Time) {
	e.mu.Lock()
	var lost []*Bet
	var roundID string

	switch e.phase {
	case PhaseWaiting:
		if !now.Before(e.phaseDeadline) {
			e.phase = PhaseArmed
			e.phaseDeadline = now.Add(e.cfg.ArmedDelay)
			e.broadcastPhase()
		}
	case PhaseArmed:
		if !now.Before(e.phaseDeadline) {
			e.phase = PhaseLive
			e.liveSince = now
			e.broadcastPhase()
		}
	case PhaseLive:
		lost = e.tick(now)
		roundID = e.roundID
	case PhaseResolved:
		if !now.Before(e.phaseDeadline) {
			if err := e.startRound(); err != nil {
				e.log.Error("next round start failed", zap.Error(err))
			}
		}
	}
	e.mu.Unlock()

	// persistência e publicação fora do lock: store/broker degradados não
	// podem atrasar o relógio compartilhado
	for _, b := range lost {
		e.settle(b, roundID, 0, "LOST")
	}
}

// tick recomputa o valor de cada trilha viva como função monotônica do
// tempo decorrido e detecta crashes. Congelar uma trilha é idempotente:
// múltiplos ticks podem observar a condição, só o primeiro congela.
func (e *Engine) tick(now time.Time) []*Bet {
	elapsedMs := float64(now.Sub(e.liveSince).Milliseconds())
	value := math.Floor(100*math.Exp(e.cfg.GrowthRate*elapsedMs)) / 100
	if value < 1.00 {
		value = 1.00
	}

	var lost []*Bet
	allCrashed := true
	for _, tr := range e.tracks {
		if tr.Crashed {
			continue
		}
		if value >= tr.crashPoint {
			lost = append(lost, e.freezeTrack(tr, now)...)
			continue
		}
		tr.Current = value
		allCrashed = false
	}

	e.bcast.Broadcast(EventTick, map[string]any{
		"round_id": e.roundID,
		"tracks":   e.trackViews(),
	})

	if allCrashed {
		e.resolve(now)
	}
	return lost
}

// freezeTrack congela a trilha no seu crash point e marca as apostas
// não sacadas dela como perdidas; devolve essas apostas para liquidação
// depois que o lock liberar. O crash de uma trilha não afeta as demais.
func (e *Engine) freezeTrack(tr *Track, now time.Time) []*Bet {
	if tr.Crashed {
		return nil
	}
	tr.Crashed = true
	tr.CrashValue = tr.crashPoint
	tr.Current = tr.crashPoint
	tr.CrashedAt = now

	e.bcast.Broadcast(EventTrackCrashed, map[string]any{
		"round_id":    e.roundID,
		"track_id":    tr.ID,
		"crash_value": tr.CrashValue,
	})

	var lost []*Bet
	for _, b := range e.bets {
		if b.TrackID != tr.ID || b.CashedOut {
			continue
		}
		b.CashedOut = true // aposta encerrada; perdida
		lost = append(lost, b)
	}
	return lost
}

func (e *Engine) resolve(now time.Time) {
	e.phase = PhaseResolved
	e.phaseDeadline = now.Add(e.cfg.ResolveDelay)
	metrics.RoundsResolved.Inc()

	crashes := make([]float64, len(e.tracks))
	reveals := make([]map[string]any, len(e.tracks))
	for i, tr := range e.tracks {
		crashes[i] = tr.CrashValue
		reveals[i] = map[string]any{
			"track_id":    tr.ID,
			"crash_value": tr.CrashValue,
			"nonce":       tr.nonce,
			"digest":      tr.digest,
		}
	}

	e.history = append(e.history, Summary{
		RoundID:     e.roundID,
		Commitment:  e.seed.Commitment,
		ServerSeed:  e.seed.ServerSeed,
		CrashValues: crashes,
		ResolvedAt:  now,
	})
	if len(e.history) > historySize {
		e.history = e.history[len(e.history)-historySize:]
	}

	// reveal: com o server seed qualquer um reconfere cada crash point
	e.bcast.Broadcast(EventRoundResolved, map[string]any{
		"round_id":    e.roundID,
		"server_seed": e.seed.ServerSeed,
		"commitment":  e.seed.Commitment,
		"client_seed": e.cfg.ClientSeed,
		"tracks":      reveals,
	})

	e.log.Info("round resolved",
		zap.Uint64("round_n", e.roundN),
		zap.String("round_id", e.roundID),
		zap.Float64s("crash_values", crashes),
	)
}

func (e *Engine) broadcastPhase() {
	e.bcast.Broadcast(EventPhaseChanged, map[string]any{
		"round_id": e.roundID,
		"phase":    e.phase,
	})
}

func (e *Engine) trackViews() []TrackView {
	views := make([]TrackView, len(e.tracks))
	for i, tr := range e.tracks {
		views[i] = TrackView{ID: tr.ID, Value: tr.Current, Crashed: tr.Crashed}
		if tr.Crashed {
			views[i].CrashValue = tr.CrashValue
		}
	}
	return views
}

// Snapshot devolve o estado corrente para um assinante que entra no meio
// da rodada.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		RoundID:    e.roundID,
		Phase:      e.phase,
		Commitment: e.seed.Commitment,
		Tracks:     e.trackViews(),
		History:    append([]Summary(nil), e.history...),
	}
	if e.phase == PhaseWaiting {
		if d := e.phaseDeadline.Sub(e.clk.Now()); d > 0 {
			snap.CountdownMs = d.Milliseconds()
		}
	}
	return snap
}

// PlaceBet admite uma aposta na rodada corrente. Só durante WAITING;
// em ARMED/LIVE a rejeição é estável. O débito acontece antes do
// registro; se a fase virar no meio, o débito é compensado (saga).
func (e *Engine) PlaceBet(ctx context.Context, userID, walletID string, trackID int, stakeCents int64) (string, int64, error) {
	e.mu.Lock()
	if trackID < 0 || trackID >= len(e.tracks) {
		e.mu.Unlock()
		return "", 0, ErrBadTrack
	}
	if e.phase != PhaseWaiting {
		e.mu.Unlock()
		return "", 0, ErrBetsClosed
	}
	roundID := e.roundID
	e.mu.Unlock()

	if e.admit != nil {
		ticket := &risk.Ticket{
			UserID:     userID,
			EventID:    roundID,
			Market:     "crash",
			Selection:  fmt.Sprintf("track:%d", trackID),
			StakeCents: stakeCents,
			Odds:       e.cfg.MaxMultiplier,
			PlacedAt:   e.clk.Now(),
		}
		if rej := e.admit.Admit(ctx, ticket); rej != nil {
			return "", 0, rej
		}
	}

	betID := uuid.NewString()
	balance, err := e.ledger.Debit(ctx, walletID, stakeCents, ledger.ReasonWagerStake, betID)
	if err != nil {
		return "", 0, err
	}

	e.mu.Lock()
	if e.phase != PhaseWaiting || e.roundID != roundID {
		e.mu.Unlock()
		// a rodada virou durante o débito: crédito compensatório
		if _, cerr := e.ledger.Credit(ctx, walletID, stakeCents, ledger.ReasonWagerRollback, betID); cerr != nil {
			e.log.Error("compensating credit failed",
				zap.String("wallet_id", walletID), zap.String("bet_id", betID), zap.Error(cerr))
		}
		return "", 0, ErrBetsClosed
	}
	bet := &Bet{
		ID:         betID,
		UserID:     userID,
		WalletID:   walletID,
		TrackID:    trackID,
		StakeCents: stakeCents,
		PlacedAt:   e.clk.Now(),
	}
	e.bets[betID] = bet
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.SaveRoundWager(ctx, betID, userID, walletID, roundID, trackID, stakeCents, 0, "PENDING"); err != nil {
			e.log.Warn("round wager persist failed", zap.String("bet_id", betID), zap.Error(err))
		}
	}

	e.bcast.Broadcast(EventBetPlaced, map[string]any{
		"round_id":    roundID,
		"track_id":    trackID,
		"bet_id":      betID,
		"user_id":     userID,
		"stake_cents": stakeCents,
	})
	return betID, balance, nil
}

// Cashout saca uma aposta no multiplicador corrente da sua trilha.
// Válido só com a rodada LIVE e a trilha ainda viva; o payout é
// stake × valor congelado no instante do saque.
func (e *Engine) Cashout(ctx context.Context, userID, betID string) (payoutCents int64, multiplier float64, err error) {
	e.mu.Lock()
	bet, ok := e.bets[betID]
	if !ok || bet.UserID != userID {
		e.mu.Unlock()
		return 0, 0, ErrBetNotFound
	}
	if e.phase != PhaseLive {
		e.mu.Unlock()
		return 0, 0, ErrNotLive
	}
	if bet.CashedOut {
		e.mu.Unlock()
		return 0, 0, ErrAlreadyOut
	}
	tr := e.tracks[bet.TrackID]
	if tr.Crashed {
		e.mu.Unlock()
		return 0, 0, ErrTrackCrashed
	}

	multiplier = tr.Current
	payoutCents = int64(math.Floor(float64(bet.StakeCents) * multiplier))
	bet.CashedOut = true
	roundID := e.roundID
	e.mu.Unlock()

	if _, err := e.ledger.Credit(ctx, bet.WalletID, payoutCents, ledger.ReasonCashout, betID); err != nil {
		// devolve a aposta ao estado vivo; o jogador pode tentar de novo
		e.mu.Lock()
		bet.CashedOut = false
		e.mu.Unlock()
		return 0, 0, fmt.Errorf("cashout credit: %w", err)
	}

	e.settle(bet, roundID, payoutCents, "WON")
	e.bcast.Broadcast(EventCashout, map[string]any{
		"round_id":     roundID,
		"track_id":     bet.TrackID,
		"bet_id":       betID,
		"user_id":      userID,
		"multiplier":   multiplier,
		"payout_cents": payoutCents,
	})
	return payoutCents, multiplier, nil
}

// settle registra e publica a liquidação de uma aposta da rodada.
func (e *Engine) settle(b *Bet, roundID string, payoutCents int64, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if e.store != nil {
		if err := e.store.SaveRoundWager(ctx, b.ID, b.UserID, b.WalletID, roundID, b.TrackID, b.StakeCents, payoutCents, status); err != nil {
			e.log.Warn("round wager settle persist failed", zap.String("bet_id", b.ID), zap.Error(err))
		}
	}
	if e.pub != nil {
		ev := events.WagerSettled{
			WagerID:     b.ID,
			UserID:      b.UserID,
			WalletID:    b.WalletID,
			GameKind:    "crash",
			Status:      status,
			StakeCents:  b.StakeCents,
			PayoutCents: payoutCents,
			TsUnixMs:    e.clk.Now().UnixMilli(),
		}
		if err := e.pub.PublishWagerSettled(ctx, ev); err != nil {
			e.log.Warn("wager_settled publish failed", zap.String("bet_id", b.ID), zap.Error(err))
		}
	}
}
