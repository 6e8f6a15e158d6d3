package round

import (
	"errors"
	"time"
)

// Phase é o estado da rodada contínua. Transições dirigidas por tempo:
// WAITING (apostas abertas) → ARMED (apostas tardias rejeitadas) →
// LIVE (relógio compartilhado avança) → RESOLVED (todas as trilhas
// crasharam, seed revelado) → WAITING da próxima rodada.
type Phase string

const (
	PhaseWaiting  Phase = "WAITING"
	PhaseArmed    Phase = "ARMED"
	PhaseLive     Phase = "LIVE"
	PhaseResolved Phase = "RESOLVED"
)

var (
	ErrBetsClosed   = errors.New("bets_closed")
	ErrTrackCrashed = errors.New("track_crashed")
	ErrBetNotFound  = errors.New("bet_not_found")
	ErrNotLive      = errors.New("round_not_live")
	ErrBadTrack     = errors.New("unknown_track")
	ErrAlreadyOut   = errors.New("already_cashed_out")
)

// Track é um desfecho independente dentro da rodada. Cada trilha crasha
// sozinha: currentValue é monotônico não-decrescente enquanto
// crashed=false; depois do crash fica congelado e imutável.
type Track struct {
	ID         int
	nonce      uint64
	digest     string  // digest completo do sorteio, para auditoria
	crashPoint float64 // secreto até o reveal

	Crashed    bool
	Current    float64
	CrashValue float64
	CrashedAt  time.Time
}

// Bet é uma aposta viva na rodada, presa a uma trilha.
type Bet struct {
	ID         string
	UserID     string
	WalletID   string
	TrackID    int
	StakeCents int64
	CashedOut  bool
	PlacedAt   time.Time
}

// TrackView é a projeção pública de uma trilha (sem o crash point).
type TrackView struct {
	ID         int     `json:"id"`
	Value      float64 `json:"value"`
	Crashed    bool    `json:"crashed"`
	CrashValue float64 `json:"crash_value,omitempty"`
}

// Snapshot é o estado enviado a quem entra no meio da rodada: fase,
// valor vivo ou congelado de cada trilha e histórico recente; a visão
// do retardatário converge para a autoritativa em um intervalo de
// broadcast.
type Snapshot struct {
	RoundID     string      `json:"round_id"`
	Phase       Phase       `json:"phase"`
	Commitment  string      `json:"commitment"`
	CountdownMs int64       `json:"countdown_ms,omitempty"`
	Tracks      []TrackView `json:"tracks"`
	History     []Summary   `json:"history"`
}

// Summary é o registro histórico de uma rodada resolvida, com o seed
// revelado para verificação.
type Summary struct {
	RoundID     string    `json:"round_id"`
	Commitment  string    `json:"commitment"`
	ServerSeed  string    `json:"server_seed"`
	CrashValues []float64 `json:"crash_values"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// Eventos publicados no hub.
const (
	EventRoundStarted  = "round_started"
	EventPhaseChanged  = "phase_changed"
	EventTick          = "tick"
	EventTrackCrashed  = "track_crashed"
	EventRoundResolved = "round_resolved"
	EventBetPlaced     = "bet_placed"
	EventCashout       = "cashout"
)
