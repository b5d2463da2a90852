// Package exchange provides the HTTP surface of the matching engine:
// offering lifecycle, order submission and cancellation, and the quote,
// trade tape, holdings, and audit-log query endpoints.
//
// All monetary values are integer cents in request and response bodies;
// the only decimal fields are volume-weighted average prices.
package exchange

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sss97133/nuke-exchange/internal/engine"
	"github.com/sss97133/nuke-exchange/internal/model"
	"github.com/sss97133/nuke-exchange/internal/store"
)

// Service handles exchange HTTP operations, delegating all trading
// semantics to the engine.
type Service struct {
	engine *engine.Engine
	store  store.Store
	log    *slog.Logger
	depth  int // max book levels returned per side
}

// NewService creates a new exchange service. depth bounds the number of
// book levels returned by the depth endpoint.
func NewService(eng *engine.Engine, st store.Store, logger *slog.Logger, depth int) *Service {
	if depth <= 0 {
		depth = 20
	}
	return &Service{engine: eng, store: st, log: logger, depth: depth}
}

// Routes mounts all exchange endpoints on a chi router.
func (s *Service) Routes(r chi.Router) {
	r.Post("/offerings", s.CreateOffering)
	r.Get("/offerings", s.ListOfferings)
	r.Get("/offerings/{offeringID}", s.GetOffering)
	r.Post("/offerings/{offeringID}/close", s.CloseOffering)
	r.Get("/offerings/{offeringID}/nbbo", s.GetNBBO)
	r.Get("/offerings/{offeringID}/book", s.GetBook)
	r.Get("/offerings/{offeringID}/quote", s.GetQuote)
	r.Get("/offerings/{offeringID}/trades", s.ListTrades)
	r.Get("/offerings/{offeringID}/events", s.ListEvents)
	r.Get("/offerings/{offeringID}/holdings/{userID}", s.GetHolding)

	r.Post("/orders", s.SubmitOrder)
	r.Get("/orders/{orderID}", s.GetOrder)
	r.Delete("/orders/{orderID}", s.CancelOrder)

	r.Get("/users/{userID}/orders", s.ListUserOrders)
	r.Get("/users/{userID}/holdings", s.ListUserHoldings)
}

// --- Request types ---

// CreateOfferingRequest is the JSON body for offering creation. The
// issuer receives the full share float at the initial price.
type CreateOfferingRequest struct {
	VehicleID       string `json:"vehicle_id"`
	IssuerID        string `json:"issuer_id"`
	TotalShares     int64  `json:"total_shares"`
	SharePriceCents int64  `json:"share_price_cents"`
}

// SubmitOrderRequest is the JSON body for POST /orders.
type SubmitOrderRequest struct {
	UserID      string `json:"user_id"`
	OfferingID  string `json:"offering_id"`
	Side        string `json:"side"`          // "buy" or "sell"
	PriceCents  int64  `json:"price_cents"`   // limit price per share
	Quantity    int64  `json:"quantity"`      // shares
	TimeInForce string `json:"time_in_force"` // GTC (default), IOC, FOK
}

// --- Handlers ---

// CreateOffering handles POST /api/v1/offerings.
func (s *Service) CreateOffering(w http.ResponseWriter, r *http.Request) {
	var req CreateOfferingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.VehicleID == "" || req.IssuerID == "" {
		writeError(w, "vehicle_id and issuer_id are required", http.StatusBadRequest)
		return
	}

	offering, err := s.engine.CreateOffering(r.Context(), req.VehicleID, req.IssuerID, req.TotalShares, req.SharePriceCents)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, offering)
}

// ListOfferings handles GET /api/v1/offerings.
func (s *Service) ListOfferings(w http.ResponseWriter, r *http.Request) {
	offerings, err := s.store.ListOfferings(r.Context())
	if err != nil {
		writeError(w, "failed to list offerings", http.StatusInternalServerError)
		return
	}
	if offerings == nil {
		offerings = []model.Offering{}
	}
	writeJSON(w, http.StatusOK, offerings)
}

// GetOffering handles GET /api/v1/offerings/{offeringID}.
func (s *Service) GetOffering(w http.ResponseWriter, r *http.Request) {
	offering, err := s.store.GetOffering(r.Context(), chi.URLParam(r, "offeringID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offering)
}

// CloseOffering handles POST /api/v1/offerings/{offeringID}/close.
func (s *Service) CloseOffering(w http.ResponseWriter, r *http.Request) {
	offeringID := chi.URLParam(r, "offeringID")
	if err := s.engine.CloseOffering(r.Context(), offeringID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"offering_id": offeringID, "status": string(model.OfferingStatusClosed)})
}

// SubmitOrder handles POST /api/v1/orders. The response carries the
// order's definitive resting or terminal state plus all fills.
func (s *Service) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.OfferingID == "" {
		writeError(w, "user_id and offering_id are required", http.StatusBadRequest)
		return
	}

	result, err := s.engine.SubmitOrder(r.Context(), engine.SubmitRequest{
		UserID:      req.UserID,
		OfferingID:  req.OfferingID,
		Side:        model.Side(req.Side),
		PriceCents:  req.PriceCents,
		Quantity:    req.Quantity,
		TimeInForce: model.TimeInForce(req.TimeInForce),
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// GetOrder handles GET /api/v1/orders/{orderID}.
func (s *Service) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := s.engine.GetOrder(chi.URLParam(r, "orderID"))
	if !ok {
		writeError(w, "order not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// CancelOrder handles DELETE /api/v1/orders/{orderID}. The requesting
// user is identified by the X-User-ID header.
func (s *Service) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, "X-User-ID header is required", http.StatusBadRequest)
		return
	}

	result, err := s.engine.CancelOrder(r.Context(), chi.URLParam(r, "orderID"), userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListUserOrders handles GET /api/v1/users/{userID}/orders.
func (s *Service) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.store.ListOrdersByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, "failed to list orders", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetNBBO handles GET /api/v1/offerings/{offeringID}/nbbo. Served from
// the cache: never blocks on matching.
func (s *Service) GetNBBO(w http.ResponseWriter, r *http.Request) {
	offeringID := chi.URLParam(r, "offeringID")
	snap, ok := s.engine.GetNBBO(offeringID)
	if !ok {
		// No book activity yet: fall back to the persisted snapshot.
		persisted, err := s.store.GetNBBO(r.Context(), offeringID)
		if err != nil {
			writeError(w, "nbbo not available", http.StatusNotFound)
			return
		}
		snap = *persisted
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetBook handles GET /api/v1/offerings/{offeringID}/book.
func (s *Service) GetBook(w http.ResponseWriter, r *http.Request) {
	offeringID := chi.URLParam(r, "offeringID")
	bids, asks := s.engine.BookDepth(offeringID, s.depth)
	writeJSON(w, http.StatusOK, map[string]any{
		"offering_id": offeringID,
		"bids":        bids,
		"asks":        asks,
	})
}

// GetQuote handles GET /api/v1/offerings/{offeringID}/quote — a fill
// simulation with ?side=buy|sell&quantity=N.
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	side := model.Side(r.URL.Query().Get("side"))
	if side != model.SideBuy && side != model.SideSell {
		writeError(w, "side must be buy or sell", http.StatusBadRequest)
		return
	}
	qty, err := strconv.ParseInt(r.URL.Query().Get("quantity"), 10, 64)
	if err != nil {
		writeError(w, "quantity must be an integer", http.StatusBadRequest)
		return
	}

	quote, err := s.engine.Quote(chi.URLParam(r, "offeringID"), side, qty)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// ListTrades handles GET /api/v1/offerings/{offeringID}/trades.
func (s *Service) ListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.store.ListTradesByOffering(r.Context(), chi.URLParam(r, "offeringID"), queryLimit(r))
	if err != nil {
		writeError(w, "failed to list trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// ListEvents handles GET /api/v1/offerings/{offeringID}/events.
func (s *Service) ListEvents(w http.ResponseWriter, r *http.Request) {
	events := s.engine.Events().ByOffering(chi.URLParam(r, "offeringID"), queryLimit(r))
	if events == nil {
		events = []model.EventLogEntry{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetHolding handles GET /api/v1/offerings/{offeringID}/holdings/{userID}.
// Free shares are owned minus active sell reservations.
func (s *Service) GetHolding(w http.ResponseWriter, r *http.Request) {
	offeringID := chi.URLParam(r, "offeringID")
	userID := chi.URLParam(r, "userID")

	holding, ok := s.engine.Shares().Get(offeringID, userID)
	if !ok {
		writeError(w, "holding not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"offering_id":     holding.OfferingID,
		"user_id":         holding.UserID,
		"shares":          holding.Shares,
		"avg_entry_price": holding.AvgEntryPrice,
		"free_shares":     s.engine.Reservations().FreeShares(offeringID, userID),
		"updated_at":      holding.UpdatedAt,
	})
}

// ListUserHoldings handles GET /api/v1/users/{userID}/holdings.
func (s *Service) ListUserHoldings(w http.ResponseWriter, r *http.Request) {
	holdings := s.engine.Shares().HoldingsByUser(chi.URLParam(r, "userID"))
	if holdings == nil {
		holdings = []model.Holding{}
	}
	writeJSON(w, http.StatusOK, holdings)
}

// --- Helpers ---

func queryLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 100
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeEngineError maps the engine's typed errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrOfferingNotFound), errors.Is(err, model.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInsufficientBalance), errors.Is(err, model.ErrInsufficientShares):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrInvalidQuantity), errors.Is(err, model.ErrInvalidPrice):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrInvalidOfferingState), errors.Is(err, model.ErrAlreadyTerminal), errors.Is(err, model.ErrOfferingExists):
		status = http.StatusConflict
	case errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
	}
	writeError(w, err.Error(), status)
}
