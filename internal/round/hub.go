package round

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/wager-platform/internal/shared/metrics"
)

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: bet | cashout | ping
type ClientMsg struct {
	Type       string `json:"type"` // bet | cashout | ping
	UserID     string `json:"userId"`
	WalletID   string `json:"walletId"`
	TrackID    int    `json:"trackId"`
	StakeCents int64  `json:"stakeCents"`
	BetID      string `json:"betId"`
}

// ServerMsg é o envelope de todo evento enviado aos clientes.
type ServerMsg struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Hub gerencia conexões WebSocket da rodada. Diferente de um hub de
// odds, não há assinatura por evento: todo cliente conectado recebe o
// mesmo fluxo de ticks e transições, e ao conectar recebe um snapshot
// para convergir com quem já estava na sala.
type Hub struct {
	engine   *Engine
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[*wsClient]struct{}
}

// wsClient serializa escritas por conexão; gorilla/websocket não
// suporta escritas concorrentes no mesmo conn.
type wsClient struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *wsClient) send(msg ServerMsg) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(msg)
}

// NewHub cria uma instância de Hub com política customizada de origem
// (CORS). O engine é vinculado depois via Bind, porque hub e engine se
// referenciam mutuamente (o engine transmite pelo hub, o hub encaminha
// comandos ao engine).
func NewHub(log *zap.Logger, allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		conns:    make(map[*wsClient]struct{}),
	}
}

// Bind associa o engine ao hub. Chamar antes de servir conexões.
func (h *Hub) Bind(engine *Engine) { h.engine = engine }

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
// Envia o snapshot da rodada corrente na entrada e aceita comandos de
// aposta, cashout e ping
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &wsClient{conn: conn}
	defer conn.Close()

	h.mu.Lock()
	h.conns[client] = struct{}{}
	h.mu.Unlock()
	metrics.WSClients.Inc()

	defer func() {
		h.mu.Lock()
		delete(h.conns, client)
		h.mu.Unlock()
		metrics.WSClients.Dec()
	}()

	// retardatário recebe o estado corrente antes do primeiro tick
	_ = client.send(ServerMsg{Type: "snapshot", Payload: h.engine.Snapshot()})

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "bet":
			h.handleBet(r.Context(), client, msg)
		case "cashout":
			h.handleCashout(r.Context(), client, msg)
		case "ping":
			_ = client.send(ServerMsg{Type: "pong"})
		}
	}
}

func (h *Hub) handleBet(ctx context.Context, c *wsClient, msg ClientMsg) {
	betID, balance, err := h.engine.PlaceBet(ctx, msg.UserID, msg.WalletID, msg.TrackID, msg.StakeCents)
	if err != nil {
		_ = c.send(ServerMsg{Type: "error", Payload: map[string]string{
			"command": "bet",
			"reason":  err.Error(),
		}})
		return
	}
	_ = c.send(ServerMsg{Type: "bet_accepted", Payload: map[string]any{
		"bet_id":        betID,
		"balance_cents": balance,
	}})
}

func (h *Hub) handleCashout(ctx context.Context, c *wsClient, msg ClientMsg) {
	payout, mult, err := h.engine.Cashout(ctx, msg.UserID, msg.BetID)
	if err != nil {
		_ = c.send(ServerMsg{Type: "error", Payload: map[string]string{
			"command": "cashout",
			"reason":  err.Error(),
		}})
		return
	}
	_ = c.send(ServerMsg{Type: "cashout_accepted", Payload: map[string]any{
		"bet_id":       msg.BetID,
		"multiplier":   mult,
		"payout_cents": payout,
	}})
}

// Broadcast envia um evento da rodada para todos os clientes conectados.
// Entrega best-effort: conexão lenta ou morta não bloqueia as demais.
func (h *Hub) Broadcast(event string, payload any) {
	h.mu.RLock()
	conns := make([]*wsClient, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	b, err := json.Marshal(ServerMsg{Type: event, Payload: payload})
	if err != nil {
		h.log.Warn("broadcast marshal failed", zap.String("event", event), zap.Error(err))
		return
	}
	for _, c := range conns {
		c.wmu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		_ = c.conn.WriteMessage(websocket.TextMessage, b)
		c.wmu.Unlock()
	}
}
