package model

import "time"

// EventType identifies one of the closed set of audit event variants.
type EventType string

const (
	EventOrderPlaced      EventType = "order_placed"
	EventOrderCancelled   EventType = "order_cancelled"
	EventOrderFilled      EventType = "order_filled"
	EventOrderPartialFill EventType = "order_partially_filled"
	EventTradeExecuted    EventType = "trade_executed"
	EventSettlementFailed EventType = "settlement_failed"
)

// EventLogEntry is a write-once audit record of one order lifecycle
// transition or trade execution. Each entry carries the NBBO observed
// immediately before and after the event so the book can be audited
// and replayed. Exactly one of the optional payloads is set, matching
// Type — a closed set of variants rather than a free-form JSON bag.
type EventLogEntry struct {
	ID         string        `json:"id" db:"id"`
	Seq        uint64        `json:"seq" db:"seq"`
	OfferingID string        `json:"offering_id" db:"offering_id"`
	Type       EventType     `json:"type" db:"type"`
	Order      *OrderEvent   `json:"order,omitempty"`
	Trade      *TradeEvent   `json:"trade,omitempty"`
	Failure    *FailureEvent `json:"failure,omitempty"`
	PreNBBO    *NBBOSnapshot `json:"pre_nbbo,omitempty"`
	PostNBBO   *NBBOSnapshot `json:"post_nbbo,omitempty"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// OrderEvent is the payload for order lifecycle events.
type OrderEvent struct {
	OrderID        string      `json:"order_id"`
	UserID         string      `json:"user_id"`
	Side           Side        `json:"side"`
	PriceCents     int64       `json:"price_cents"`
	Quantity       int64       `json:"quantity"`
	FilledQuantity int64       `json:"filled_quantity"`
	TimeInForce    TimeInForce `json:"time_in_force"`
	Status         OrderStatus `json:"status"`
}

// TradeEvent is the payload for trade_executed events.
type TradeEvent struct {
	TradeID         string `json:"trade_id"`
	BuyOrderID      string `json:"buy_order_id"`
	SellOrderID     string `json:"sell_order_id"`
	BuyerID         string `json:"buyer_id"`
	SellerID        string `json:"seller_id"`
	Quantity        int64  `json:"quantity"`
	PriceCents      int64  `json:"price_cents"`
	CommissionCents int64  `json:"commission_cents"`
}

// FailureEvent is the payload for settlement_failed events. The
// attempted trade is recorded with full context so a failed leg is
// never silently swallowed.
type FailureEvent struct {
	OrderID    string `json:"order_id"`
	CounterID  string `json:"counter_order_id"`
	Quantity   int64  `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
	Reason     string `json:"reason"`
}

// OrderEventFrom captures an order's current state as an event payload.
func OrderEventFrom(o *Order) *OrderEvent {
	return &OrderEvent{
		OrderID:        o.ID,
		UserID:         o.UserID,
		Side:           o.Side,
		PriceCents:     o.PriceCents,
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity,
		TimeInForce:    o.TimeInForce,
		Status:         o.Status,
	}
}

// TradeEventFrom captures a trade as an event payload.
func TradeEventFrom(t *Trade) *TradeEvent {
	return &TradeEvent{
		TradeID:         t.ID,
		BuyOrderID:      t.BuyOrderID,
		SellOrderID:     t.SellOrderID,
		BuyerID:         t.BuyerID,
		SellerID:        t.SellerID,
		Quantity:        t.Quantity,
		PriceCents:      t.PriceCents,
		CommissionCents: t.CommissionCents,
	}
}
