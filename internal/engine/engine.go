// Package engine implements the matching engine: order admission,
// price-time priority matching, atomic settlement, and the NBBO and
// audit-log updates that follow every book mutation.
//
// One matching authority per offering: the book's write lock is held
// for the entire admit→reserve→match→settle→NBBO sequence, so all
// mutations against one offering are strictly serialized while
// different offerings proceed fully in parallel.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sss97133/nuke-exchange/internal/book"
	"github.com/sss97133/nuke-exchange/internal/eventlog"
	"github.com/sss97133/nuke-exchange/internal/ledger"
	"github.com/sss97133/nuke-exchange/internal/metrics"
	"github.com/sss97133/nuke-exchange/internal/model"
	"github.com/sss97133/nuke-exchange/internal/nbbo"
	"github.com/sss97133/nuke-exchange/internal/reserve"
	"github.com/sss97133/nuke-exchange/internal/store"
)

// DefaultCommissionRate is the platform spread applied to every trade.
var DefaultCommissionRate = decimal.NewFromFloat(0.02)

// Broadcaster pushes engine events to connected clients. Nil-safe: the
// engine works without one.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Engine coordinates the order books, ledgers, reservations, NBBO
// cache, and event log behind the public trading operations.
type Engine struct {
	store   store.Store
	books   *book.Manager
	shares  *ledger.ShareLedger
	cash    ledger.CashLedger
	reserve *reserve.Manager
	nbbo    *nbbo.Cache
	events  *eventlog.Log
	log     *slog.Logger
	hub     Broadcaster
	rate    decimal.Decimal

	seq atomic.Uint64

	// Live order registry. Order structs are mutated only under the
	// owning offering's book lock; this map's own lock covers lookup.
	ordMu  sync.RWMutex
	orders map[string]*model.Order
}

// New creates an engine wired to its collaborators. hub may be nil.
func New(st store.Store, shares *ledger.ShareLedger, cash ledger.CashLedger, logger *slog.Logger, hub Broadcaster) *Engine {
	return &Engine{
		store:   st,
		books:   book.NewManager(),
		shares:  shares,
		cash:    cash,
		reserve: reserve.NewManager(shares, cash, DefaultCommissionRate),
		nbbo:    nbbo.NewCache(),
		events:  eventlog.New(),
		log:     logger,
		hub:     hub,
		rate:    DefaultCommissionRate,
		orders:  make(map[string]*model.Order),
	}
}

// Reservations exposes the reservation manager for free-balance queries.
func (e *Engine) Reservations() *reserve.Manager { return e.reserve }

// Shares exposes the share ledger for holdings queries.
func (e *Engine) Shares() *ledger.ShareLedger { return e.shares }

// Events exposes the audit log for query endpoints.
func (e *Engine) Events() *eventlog.Log { return e.events }

// SubmitRequest is one incoming order.
type SubmitRequest struct {
	UserID      string
	OfferingID  string
	Side        model.Side
	PriceCents  int64
	Quantity    int64
	TimeInForce model.TimeInForce
}

// OrderResult is the synchronous outcome of a submission: the caller
// always receives a definitive resting or terminal state.
type OrderResult struct {
	OrderID        string            `json:"order_id"`
	Status         model.OrderStatus `json:"status"`
	FilledQuantity int64             `json:"filled_quantity"`
	AvgFillPrice   *decimal.Decimal  `json:"avg_fill_price,omitempty"`
	Trades         []model.Trade     `json:"trades"`
}

// CancelResult reports how much of a cancelled order had already filled.
type CancelResult struct {
	OrderID         string `json:"order_id"`
	SharesCancelled int64  `json:"shares_cancelled"`
	SharesFilled    int64  `json:"shares_filled"`
}

func (e *Engine) registerOrder(o *model.Order) {
	e.ordMu.Lock()
	e.orders[o.ID] = o
	e.ordMu.Unlock()
}

func (e *Engine) liveOrder(id string) (*model.Order, bool) {
	e.ordMu.RLock()
	o, ok := e.orders[id]
	e.ordMu.RUnlock()
	return o, ok
}

// SubmitOrder admits, matches, and settles one order, returning its
// final state. Blocks until the full match-and-settle sequence for the
// owning offering completes.
func (e *Engine) SubmitOrder(ctx context.Context, req SubmitRequest) (*OrderResult, error) {
	start := time.Now()

	if req.Quantity <= 0 {
		metrics.OrdersRejected.WithLabelValues("invalid_quantity").Inc()
		return nil, model.ErrInvalidQuantity
	}
	if req.PriceCents <= 0 {
		metrics.OrdersRejected.WithLabelValues("invalid_price").Inc()
		return nil, model.ErrInvalidPrice
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return nil, fmt.Errorf("invalid side %q", req.Side)
	}
	switch req.TimeInForce {
	case "":
		req.TimeInForce = model.TIFGTC
	case model.TIFGTC, model.TIFIOC, model.TIFFOK:
	default:
		return nil, fmt.Errorf("invalid time in force %q", req.TimeInForce)
	}

	offering, err := e.store.GetOffering(ctx, req.OfferingID)
	if err != nil {
		metrics.OrdersRejected.WithLabelValues("offering_not_found").Inc()
		return nil, err
	}
	if offering.Status != model.OfferingStatusOpen {
		metrics.OrdersRejected.WithLabelValues("offering_not_open").Inc()
		return nil, fmt.Errorf("offering %s is %s: %w", offering.ID, offering.Status, model.ErrInvalidOfferingState)
	}

	b := e.books.GetOrCreate(req.OfferingID)
	b.Lock()
	defer b.Unlock()

	now := time.Now().UTC()
	order := &model.Order{
		ID:          uuid.New().String(),
		OfferingID:  req.OfferingID,
		UserID:      req.UserID,
		Side:        req.Side,
		PriceCents:  req.PriceCents,
		Quantity:    req.Quantity,
		TimeInForce: req.TimeInForce,
		Status:      model.OrderStatusActive,
		Seq:         e.seq.Add(1),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Reservation failure is a clean rejection: no state created.
	if req.Side == model.SideSell {
		err = e.reserve.ReserveForSell(req.OfferingID, req.UserID, order.ID, req.Quantity)
	} else {
		err = e.reserve.ReserveForBuy(ctx, req.OfferingID, req.UserID, order.ID, req.PriceCents, req.Quantity)
	}
	if err != nil {
		metrics.OrdersRejected.WithLabelValues("insufficient_balance").Inc()
		return nil, err
	}

	e.registerOrder(order)
	e.persistOrder(ctx, order)
	e.persistReservation(ctx, order.ID)

	preNBBO := nbbo.Compute(b)
	e.appendEvent(ctx, model.EventLogEntry{
		OfferingID: req.OfferingID,
		Type:       model.EventOrderPlaced,
		Order:      model.OrderEventFrom(order),
		PreNBBO:    preNBBO,
	})
	metrics.OrdersTotal.WithLabelValues(string(order.Side), string(order.TimeInForce)).Inc()

	// FOK feasibility pre-check under the same lock as the match: either
	// the whole quantity is crossable right now or nothing executes.
	if order.TimeInForce == model.TIFFOK &&
		b.MatchableQuantity(order.Side, order.PriceCents, order.UserID) < order.Quantity {
		e.cancelLocked(ctx, b, order)
		return e.result(order, nil), nil
	}

	trades := e.matchLocked(ctx, b, offering, order)

	switch {
	case order.Remaining() == 0:
		order.Status = model.OrderStatusFilled
	case order.TimeInForce == model.TIFIOC, order.TimeInForce == model.TIFFOK:
		// Neither IOC nor FOK ever rests. FOK reaches here only when a
		// settlement failure cut the matching loop short after the
		// feasibility check passed; committed fills stand, the rest is
		// cancelled.
		e.reserve.Release(order.ID)
		order.Status = model.OrderStatusCancelled
	default:
		if order.FilledQuantity > 0 {
			order.Status = model.OrderStatusPartiallyFilled
		}
		b.Insert(order)
	}
	order.UpdatedAt = time.Now().UTC()
	e.persistOrder(ctx, order)
	e.persistReservation(ctx, order.ID)

	post := e.recomputeNBBO(ctx, b)
	if t := finalEventType(order.Status); t != "" {
		e.appendEvent(ctx, model.EventLogEntry{
			OfferingID: order.OfferingID,
			Type:       t,
			Order:      model.OrderEventFrom(order),
			PostNBBO:   post,
		})
	}

	metrics.MatchLatency.WithLabelValues(string(order.Side)).Observe(time.Since(start).Seconds())
	e.log.Info("order processed",
		"order_id", order.ID,
		"offering_id", order.OfferingID,
		"side", order.Side,
		"tif", order.TimeInForce,
		"status", order.Status,
		"filled", order.FilledQuantity,
		"trades", len(trades))

	return e.result(order, trades), nil
}

func finalEventType(s model.OrderStatus) model.EventType {
	switch s {
	case model.OrderStatusFilled:
		return model.EventOrderFilled
	case model.OrderStatusPartiallyFilled:
		return model.EventOrderPartialFill
	case model.OrderStatusCancelled:
		return model.EventOrderCancelled
	}
	return ""
}

// matchLocked runs the price-time matching loop. The caller holds the
// book's write lock. Returns the trades that committed.
func (e *Engine) matchLocked(ctx context.Context, b *book.Book, offering *model.Offering, order *model.Order) []model.Trade {
	var trades []model.Trade

	for order.Remaining() > 0 {
		entry, ok := b.BestMatchable(order.Side, order.PriceCents, order.UserID)
		if !ok {
			break
		}
		maker := entry.Order
		qty := min(order.Remaining(), maker.Remaining())

		// Execution at the resting order's limit price: price
		// improvement accrues to the taker.
		trade, err := e.settleTrade(ctx, offering, order, maker, qty, maker.PriceCents)
		if err != nil {
			// A failed leg must never be reported as executed. Stop
			// matching; fills committed so far stand, the remainder
			// stays open.
			metrics.SettlementFailures.Inc()
			e.log.Error("settlement failed",
				"order_id", order.ID,
				"counter_order_id", maker.ID,
				"quantity", qty,
				"price_cents", maker.PriceCents,
				"error", err)
			e.appendEvent(ctx, model.EventLogEntry{
				OfferingID: order.OfferingID,
				Type:       model.EventSettlementFailed,
				Failure: &model.FailureEvent{
					OrderID:    order.ID,
					CounterID:  maker.ID,
					Quantity:   qty,
					PriceCents: maker.PriceCents,
					Reason:     err.Error(),
				},
			})
			break
		}

		applyFill(order, qty, maker.PriceCents)
		applyFill(maker, qty, maker.PriceCents)
		e.reserve.Consume(order.ID, qty)
		e.reserve.Consume(maker.ID, qty)
		e.persistReservation(ctx, maker.ID)

		if maker.Remaining() == 0 {
			maker.Status = model.OrderStatusFilled
			b.Remove(maker.ID)
		} else {
			maker.Status = model.OrderStatusPartiallyFilled
		}
		maker.UpdatedAt = trade.ExecutedAt
		e.persistOrder(ctx, maker)

		e.nbbo.RecordTrade(offering.ID, trade.PriceCents, trade.Quantity, trade.ExecutedAt)
		e.appendEvent(ctx, model.EventLogEntry{
			OfferingID: offering.ID,
			Type:       model.EventTradeExecuted,
			Trade:      model.TradeEventFrom(trade),
		})
		metrics.TradesTotal.Inc()
		metrics.TradeVolume.WithLabelValues(offering.ID).Add(float64(trade.Quantity))
		metrics.CommissionCents.Add(float64(trade.CommissionCents))
		if e.hub != nil {
			e.hub.Broadcast("trade_executed", trade)
		}

		trades = append(trades, *trade)
	}
	return trades
}

func applyFill(o *model.Order, qty, priceCents int64) {
	o.FilledQuantity += qty
	o.FilledNotional += qty * priceCents
}

// settleTrade performs the atomic share+cash transfer for one fill:
// debit buyer cash (value plus commission), debit seller shares, credit
// seller cash (value minus commission), credit buyer shares, then record
// the trade and roll the offering's stats. The fallible legs run first
// so a failure leaves nothing applied; any leg that fails after earlier
// legs committed triggers compensating transfers that put every balance
// back where it started.
func (e *Engine) settleTrade(ctx context.Context, offering *model.Offering, taker, maker *model.Order, qty, priceCents int64) (*model.Trade, error) {
	buyOrder, sellOrder := taker, maker
	if taker.Side == model.SideSell {
		buyOrder, sellOrder = maker, taker
	}

	totalValue := priceCents * qty
	commission := decimal.NewFromInt(totalValue).Mul(e.rate).Ceil().IntPart()
	tradeID := uuid.New().String()

	if err := e.cash.Debit(ctx, buyOrder.UserID, totalValue+commission, "trade:"+tradeID+":buy"); err != nil {
		return nil, fmt.Errorf("debit buyer: %w", err)
	}

	// Snapshot the seller's position so a later leg failure can restore
	// it exactly, average entry price included.
	sellerPos, _ := e.shares.Get(offering.ID, sellOrder.UserID)
	if err := e.shares.Debit(offering.ID, sellOrder.UserID, qty); err != nil {
		// Compensate the committed cash leg before aborting.
		if cerr := e.cash.Credit(ctx, buyOrder.UserID, totalValue+commission, "trade:"+tradeID+":buy-reversal"); cerr != nil {
			e.log.Error("compensation failed", "trade_id", tradeID, "error", cerr)
		}
		return nil, fmt.Errorf("debit seller shares: %w", err)
	}
	if err := e.cash.Credit(ctx, sellOrder.UserID, totalValue-commission, "trade:"+tradeID+":sell"); err != nil {
		// Unwind both committed legs: the seller gets the shares back,
		// the buyer gets the cash back. Nothing stays half-transferred.
		e.shares.Restore(sellerPos)
		if cerr := e.cash.Credit(ctx, buyOrder.UserID, totalValue+commission, "trade:"+tradeID+":buy-reversal"); cerr != nil {
			e.log.Error("compensation failed", "trade_id", tradeID, "error", cerr)
		}
		return nil, fmt.Errorf("credit seller: %w", err)
	}
	e.shares.Credit(offering.ID, buyOrder.UserID, qty, priceCents)

	trade := &model.Trade{
		ID:              tradeID,
		OfferingID:      offering.ID,
		BuyerID:         buyOrder.UserID,
		SellerID:        sellOrder.UserID,
		BuyOrderID:      buyOrder.ID,
		SellOrderID:     sellOrder.ID,
		Quantity:        qty,
		PriceCents:      priceCents,
		CommissionCents: commission,
		ExecutedAt:      time.Now().UTC(),
	}

	// The in-memory ledgers are authoritative inside the matching
	// boundary; store writes mirror them and are logged on failure
	// rather than unwinding a committed transfer.
	if err := e.store.InsertTrade(ctx, trade); err != nil {
		e.log.Error("persist trade", "trade_id", tradeID, "error", err)
	}
	if err := e.store.RecordOfferingTrade(ctx, offering.ID, priceCents, qty, totalValue); err != nil {
		e.log.Error("persist offering stats", "offering_id", offering.ID, "error", err)
	}
	offering.SharePriceCents = priceCents
	offering.TotalTrades++
	offering.TotalVolumeShares += qty
	offering.TotalVolumeCents += totalValue
	e.persistHolding(ctx, offering.ID, buyOrder.UserID)
	e.persistHolding(ctx, offering.ID, sellOrder.UserID)

	return trade, nil
}

// cancelLocked marks an order cancelled and releases its hold. The
// caller holds the book lock; the order must not be resting.
func (e *Engine) cancelLocked(ctx context.Context, b *book.Book, order *model.Order) {
	e.reserve.Release(order.ID)
	order.Status = model.OrderStatusCancelled
	order.UpdatedAt = time.Now().UTC()
	e.persistOrder(ctx, order)
	e.persistReservation(ctx, order.ID)

	post := e.recomputeNBBO(ctx, b)
	e.appendEvent(ctx, model.EventLogEntry{
		OfferingID: order.OfferingID,
		Type:       model.EventOrderCancelled,
		Order:      model.OrderEventFrom(order),
		PostNBBO:   post,
	})
}

// CancelOrder cancels the unfilled remainder of an order. Cancelling an
// already-cancelled order is a no-op success; cancelling a filled order
// fails with AlreadyTerminal.
func (e *Engine) CancelOrder(ctx context.Context, orderID, userID string) (*CancelResult, error) {
	order, ok := e.liveOrder(orderID)
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, model.ErrOrderNotFound)
	}
	if order.UserID != userID {
		return nil, model.ErrForbidden
	}

	b := e.books.GetOrCreate(order.OfferingID)
	b.Lock()
	defer b.Unlock()

	// Status is re-read under the lock: a fill that committed first
	// wins the race and is visible here.
	switch order.Status {
	case model.OrderStatusCancelled:
		return &CancelResult{OrderID: order.ID, SharesFilled: order.FilledQuantity}, nil
	case model.OrderStatusFilled:
		return nil, model.ErrAlreadyTerminal
	}

	remaining := order.Remaining()
	b.Remove(order.ID)
	e.cancelLocked(ctx, b, order)

	e.log.Info("order cancelled",
		"order_id", order.ID,
		"offering_id", order.OfferingID,
		"cancelled", remaining,
		"filled", order.FilledQuantity)

	return &CancelResult{
		OrderID:         order.ID,
		SharesCancelled: remaining,
		SharesFilled:    order.FilledQuantity,
	}, nil
}

// GetNBBO returns the cached snapshot without blocking on matching.
func (e *Engine) GetNBBO(offeringID string) (model.NBBOSnapshot, bool) {
	return e.nbbo.Get(offeringID)
}

// GetOrder returns the live state of one order.
func (e *Engine) GetOrder(orderID string) (model.Order, bool) {
	o, ok := e.liveOrder(orderID)
	if !ok {
		return model.Order{}, false
	}
	b := e.books.GetOrCreate(o.OfferingID)
	b.RLock()
	defer b.RUnlock()
	return *o, true
}

// BookDepth returns up to n aggregated price levels per side.
func (e *Engine) BookDepth(offeringID string, n int) (bids, asks []book.Level) {
	b := e.books.GetOrCreate(offeringID)
	b.RLock()
	defer b.RUnlock()
	return b.Levels(model.SideBuy, n), b.Levels(model.SideSell, n)
}

// QuoteResult is a fill simulation against the current book.
type QuoteResult struct {
	OfferingID      string           `json:"offering_id"`
	Side            model.Side       `json:"side"`
	RequestedQty    int64            `json:"requested_quantity"`
	FillableQty     int64            `json:"fillable_quantity"`
	AvgPriceCents   *decimal.Decimal `json:"avg_price_cents,omitempty"`
	WorstPriceCents *int64           `json:"worst_price_cents,omitempty"`
	EstimatedCost   int64            `json:"estimated_cost_cents"`
	CommissionCents int64            `json:"commission_cents"`
}

// Quote simulates filling qty shares at market without mutating any
// state. Read lock only: never queues behind another offering's match.
func (e *Engine) Quote(offeringID string, side model.Side, qty int64) (*QuoteResult, error) {
	if qty <= 0 {
		return nil, model.ErrInvalidQuantity
	}

	// A marketable limit at the extreme crosses every resting level.
	limit := int64(1)
	if side == model.SideBuy {
		limit = int64(1)<<62 - 1
	}

	b := e.books.GetOrCreate(offeringID)
	b.RLock()
	defer b.RUnlock()

	res := &QuoteResult{OfferingID: offeringID, Side: side, RequestedQty: qty}
	b.IterMatchable(side, limit, "", func(entry book.Entry) bool {
		take := min(qty-res.FillableQty, entry.Order.Remaining())
		res.FillableQty += take
		res.EstimatedCost += take * entry.PriceCents
		worst := entry.PriceCents
		res.WorstPriceCents = &worst
		return res.FillableQty < qty
	})

	if res.FillableQty > 0 {
		avg := decimal.NewFromInt(res.EstimatedCost).Div(decimal.NewFromInt(res.FillableQty))
		res.AvgPriceCents = &avg
		res.CommissionCents = decimal.NewFromInt(res.EstimatedCost).Mul(e.rate).Ceil().IntPart()
	}
	return res, nil
}

// --- persistence mirrors ---

func (e *Engine) persistOrder(ctx context.Context, o *model.Order) {
	if err := e.store.SaveOrder(ctx, o); err != nil {
		e.log.Error("persist order", "order_id", o.ID, "error", err)
	}
}

func (e *Engine) persistReservation(ctx context.Context, orderID string) {
	if res, ok := e.reserve.Get(orderID); ok {
		if err := e.store.SaveReservation(ctx, &res); err != nil {
			e.log.Error("persist reservation", "order_id", orderID, "error", err)
		}
	}
}

func (e *Engine) persistHolding(ctx context.Context, offeringID, userID string) {
	if h, ok := e.shares.Get(offeringID, userID); ok {
		if err := e.store.UpsertHolding(ctx, &h); err != nil {
			e.log.Error("persist holding", "offering_id", offeringID, "user_id", userID, "error", err)
		}
	}
}

func (e *Engine) recomputeNBBO(ctx context.Context, b *book.Book) *model.NBBOSnapshot {
	snap := e.nbbo.Recompute(b)
	if err := e.store.SaveNBBO(ctx, snap); err != nil {
		e.log.Error("persist nbbo", "offering_id", b.OfferingID(), "error", err)
	}
	if e.hub != nil {
		e.hub.Broadcast("nbbo_updated", snap)
	}
	return snap
}

func (e *Engine) appendEvent(ctx context.Context, entry model.EventLogEntry) {
	stored := e.events.Append(entry)
	if err := e.store.AppendEvent(ctx, &stored); err != nil {
		e.log.Error("persist event", "event_id", stored.ID, "error", err)
	}
}

func (e *Engine) result(order *model.Order, trades []model.Trade) *OrderResult {
	res := &OrderResult{
		OrderID:        order.ID,
		Status:         order.Status,
		FilledQuantity: order.FilledQuantity,
		Trades:         trades,
	}
	if avg, ok := order.AvgFillPrice(); ok {
		res.AvgFillPrice = &avg
	}
	if res.Trades == nil {
		res.Trades = []model.Trade{}
	}
	return res
}
