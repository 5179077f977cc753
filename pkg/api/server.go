// Package api exposes the exchange over REST and WebSocket.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/openswap-labs/escrowdex/pkg/custody"
	"github.com/openswap-labs/escrowdex/pkg/exchange"
)

// Server handles REST API and WebSocket connections.
type Server struct {
	registry *exchange.Registry
	engine   *exchange.Engine
	vault    *custody.Vault
	router   *mux.Router
	hub      *Hub
	log      *zap.Logger
}

// NewServer creates a new API server. The hub it creates implements
// exchange.Notifier; wire it into the registry/engine so clients receive
// order and trade events.
func NewServer(registry *exchange.Registry, engine *exchange.Engine, vault *custody.Vault, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		registry: registry,
		engine:   engine,
		vault:    vault,
		router:   mux.NewRouter(),
		hub:      NewHub(),
		log:      logger,
	}
	s.setupRoutes()
	return s
}

// Hub returns the WebSocket broadcast hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Order lifecycle
	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/match", s.handleMatchOrders).Methods("POST")
	api.HandleFunc("/orders/count", s.handleGetOrderCount).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")

	// Custody ledger
	api.HandleFunc("/accounts/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/accounts/{address}/balances/{token}", s.handleGetBalance).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})

	s.log.Info("api server starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	maker, ok := parseAddress(w, req.Maker, "maker")
	if !ok {
		return
	}
	tokenBuy, ok := parseAddress(w, req.TokenBuy, "tokenBuy")
	if !ok {
		return
	}
	tokenSell, ok := parseAddress(w, req.TokenSell, "tokenSell")
	if !ok {
		return
	}

	orderID, err := s.registry.Place(maker, tokenBuy, tokenSell, req.Quantity, req.Cost)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, PlaceOrderResponse{OrderID: orderID})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	requester, ok := parseAddress(w, req.Requester, "requester")
	if !ok {
		return
	}

	// Snapshot before cancelling; afterwards the order reads as the
	// zeroed sentinel.
	order := s.registry.Get(req.OrderID)

	if err := s.registry.Cancel(req.OrderID, requester); err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, CancelOrderResponse{
		OrderID:  req.OrderID,
		Refunded: order.Cost,
		Status:   exchange.StatusClosed.String(),
	})
}

func (s *Server) handleMatchOrders(w http.ResponseWriter, r *http.Request) {
	var req MatchOrdersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	matcher, ok := parseAddress(w, req.Matcher, "matcher")
	if !ok {
		return
	}

	settlement, err := s.engine.Match(req.OrderID1, req.OrderID2, matcher)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, settlementInfo(settlement))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := parseUint(vars["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}

	// Unknown ids return the sentinel, same shape as any closed order.
	respondJSON(w, orderInfo(s.registry.Get(id)))
}

func (s *Server) handleGetOrderCount(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, CountResponse{Count: s.registry.Count()})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	account, ok := parseAddress(w, req.Account, "account")
	if !ok {
		return
	}
	token, ok := parseAddress(w, req.Token, "token")
	if !ok {
		return
	}

	if err := s.vault.Deposit(account, token, req.Amount); err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, BalanceInfo{
		Account: account.Hex(),
		Token:   token.Hex(),
		Balance: s.vault.Balance(account, token),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	account, ok := parseAddress(w, vars["address"], "address")
	if !ok {
		return
	}
	token, ok := parseAddress(w, vars["token"], "token")
	if !ok {
		return
	}

	respondJSON(w, BalanceInfo{
		Account: account.Hex(),
		Token:   token.Hex(),
		Balance: s.vault.Balance(account, token),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

func orderInfo(o exchange.Order) OrderInfo {
	return OrderInfo{
		ID:        o.ID,
		Maker:     o.Maker.Hex(),
		TokenBuy:  o.TokenBuy.Hex(),
		TokenSell: o.TokenSell.Hex(),
		Quantity:  o.Quantity,
		Cost:      o.Cost,
		CreatedAt: o.CreatedAt,
		Status:    o.Status.String(),
	}
}

func settlementInfo(s exchange.Settlement) SettlementInfo {
	return SettlementInfo{
		Order1:     s.Order1,
		Order2:     s.Order2,
		Maker1:     s.Maker1.Hex(),
		Maker2:     s.Maker2.Hex(),
		Matcher:    s.Matcher.Hex(),
		Token1:     s.Token1.Hex(),
		Token2:     s.Token2.Hex(),
		Paid1:      s.Paid1,
		Paid2:      s.Paid2,
		Surplus1:   s.Surplus1,
		Surplus2:   s.Surplus2,
		ExecutedAt: s.ExecutedAt,
	}
}

func parseAddress(w http.ResponseWriter, hex, field string) (common.Address, bool) {
	if !common.IsHexAddress(hex) {
		respondError(w, http.StatusBadRequest, "invalid address", field)
		return common.Address{}, false
	}
	return common.HexToAddress(hex), true
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

// respondEngineError maps the engine's error taxonomy onto HTTP status codes.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, exchange.ErrSameToken),
		errors.Is(err, exchange.ErrZeroAmount),
		errors.Is(err, custody.ErrZeroAmount):
		respondError(w, http.StatusBadRequest, "validation failed", err.Error())
	case errors.Is(err, exchange.ErrNotMaker):
		respondError(w, http.StatusForbidden, "not authorized", err.Error())
	case errors.Is(err, exchange.ErrOrderNotOpen):
		respondError(w, http.StatusConflict, "order not open", err.Error())
	case errors.Is(err, exchange.ErrTokenMismatch),
		errors.Is(err, exchange.ErrQuantityMismatch):
		respondError(w, http.StatusConflict, "orders not compatible", err.Error())
	case errors.Is(err, custody.ErrInsufficientBalance),
		errors.Is(err, custody.ErrUnauthorized):
		respondError(w, http.StatusPaymentRequired, "custody refused transfer", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
