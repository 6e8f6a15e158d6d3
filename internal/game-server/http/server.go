package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/radieske/wager-platform/internal/fairness"
	"github.com/radieske/wager-platform/internal/game-server/dto"
	"github.com/radieske/wager-platform/internal/ledger"
	"github.com/radieske/wager-platform/internal/risk"
	"github.com/radieske/wager-platform/internal/wager"
)

// WagerOps são as operações de aposta usadas pelo handler HTTP.
type WagerOps interface {
	Place(ctx context.Context, in wager.PlaceInput) (*wager.Wager, error)
}

// WagerReader carrega apostas para consulta.
type WagerReader interface {
	GetByID(ctx context.Context, id string) (*wager.Wager, error)
}

// WalletOps são as operações de carteira usadas pelo handler HTTP.
type WalletOps interface {
	GetOrCreateWallet(ctx context.Context, userID string) (walletID string, balance int64, err error)
	Entries(ctx context.Context, walletID string, limit int) ([]ledger.Entry, error)
}

// Server expõe a API pública do game-server: apostas, carteira e o
// endpoint WebSocket da rodada contínua.
type Server struct {
	log     *zap.Logger
	wagers  WagerOps
	reader  WagerReader
	wallets WalletOps
	ledger  ledger.Ledger
	ws      http.HandlerFunc // hub da rodada; pode ser nil em testes
}

func NewServer(log *zap.Logger, wagers WagerOps, reader WagerReader, wallets WalletOps, lg ledger.Ledger, ws http.HandlerFunc) *Server {
	return &Server{log: log, wagers: wagers, reader: reader, wallets: wallets, ledger: lg, ws: ws}
}

// Router retorna o mux HTTP com as rotas públicas
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/wagers", s.placeWager)        // POST
	mux.HandleFunc("/wagers/", s.getWager)         // GET /wagers/{id}
	mux.HandleFunc("/wallet", s.getWallet)         // GET ?userId=...
	mux.HandleFunc("/wallet/deposit", s.deposit)   // POST
	mux.HandleFunc("/wallet/entries", s.entries)   // GET ?walletId=...
	mux.HandleFunc("/fairness/verify", s.verify)   // POST
	if s.ws != nil {
		mux.HandleFunc("/ws", s.ws)
	}
	return mux
}

func (s *Server) placeWager(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.PlaceWagerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	wg, err := s.wagers.Place(r.Context(), wager.PlaceInput{
		UserID:     req.UserID,
		WalletID:   req.WalletID,
		EventID:    req.EventID,
		Market:     req.Market,
		Selection:  req.Selection,
		StakeCents: req.StakeCents,
		Odds:       req.OddValue,
		Live:       req.Live,
		MarketOdds: req.MarketOdds,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(dto.WagerResponse{
		WagerID:    wg.ID,
		Status:     wg.Status,
		StakeCents: wg.StakeCents,
		OddValue:   wg.Odds,
	})
}

func (s *Server) getWager(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// path: /wagers/{id}
	id := r.URL.Path[len("/wagers/"):]
	if id == "" {
		http.Error(w, "wagerId required", http.StatusBadRequest)
		return
	}

	wg, err := s.reader.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, wager.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.WagerResponse{
		WagerID:     wg.ID,
		Status:      wg.Status,
		StakeCents:  wg.StakeCents,
		OddValue:    wg.Odds,
		PayoutCents: wg.PayoutCents,
	})
}

// getWallet retorna (ou cria) a carteira e saldo do usuário
func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}
	walletID, bal, err := s.wallets.GetOrCreateWallet(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.WalletResponse{UserID: userID, WalletID: walletID, BalanceCents: bal})
}

// deposit credita saldo via ledger; a trilha de auditoria registra a
// origem no correlation_id
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.AmountCents <= 0 {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	walletID, _, err := s.wallets.GetOrCreateWallet(r.Context(), req.UserID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	bal, err := s.ledger.Credit(r.Context(), walletID, req.AmountCents, ledger.ReasonDeposit, req.ExternalRef)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, dto.WalletResponse{UserID: req.UserID, WalletID: walletID, BalanceCents: bal})
}

func (s *Server) entries(w http.ResponseWriter, r *http.Request) {
	walletID := r.URL.Query().Get("walletId")
	if walletID == "" {
		http.Error(w, "walletId required", http.StatusBadRequest)
		return
	}
	list, err := s.wallets.Entries(r.Context(), walletID, 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]dto.LedgerEntryResponse, len(list))
	for i, e := range list {
		out[i] = dto.LedgerEntryResponse{
			ID:            e.ID,
			DeltaCents:    e.DeltaCents,
			BalanceAfter:  e.BalanceAfter,
			Reason:        e.Reason,
			CorrelationID: e.CorrelationID,
			CreatedAt:     e.CreatedAt,
		}
	}
	writeJSON(w, out)
}

// verify reproduz um sorteio a partir do seed revelado no fim da rodada.
// É stateless: a prova depende só das entradas, não do servidor.
func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.VerifyRollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.ServerSeed == "" || req.Digest == "" {
		http.Error(w, "server_seed and digest required", http.StatusBadRequest)
		return
	}

	roll, ok := fairness.Verify(req.ServerSeed, req.ClientSeed, req.Nonce, req.Digest)
	writeJSON(w, dto.VerifyRollResponse{Roll: roll, Valid: ok})
}

// writeError mapeia os erros de domínio para status HTTP. A rejeição de
// risco devolve o motivo estável; detalhes e thresholds ficam no log.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var rej *risk.Rejection
	if errors.As(err, &rej) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(dto.RejectionResponse{
			Error:    rej.Reason,
			Check:    rej.Check,
			Severity: rej.Severity.String(),
		})
		return
	}

	switch {
	case errors.Is(err, wager.ErrBadPayload):
		http.Error(w, "invalid payload", http.StatusBadRequest)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		http.Error(w, "insufficient funds", http.StatusPaymentRequired)
	case errors.Is(err, ledger.ErrWalletNotFound):
		http.Error(w, "wallet not found", http.StatusNotFound)
	case errors.Is(err, ledger.ErrConflict):
		http.Error(w, "wallet busy, retry", http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
