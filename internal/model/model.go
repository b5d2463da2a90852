// Package model defines the core domain types shared across the exchange
// engine. All cash amounts are int64 minor units (cents) and all share
// quantities are int64 — never float64 for money. The only decimal-typed
// field is the volume-weighted average entry price, which needs exact
// fractional arithmetic across many small fills.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side indicates whether an order buys or sells shares.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// TimeInForce controls how long an order may work before it is cancelled.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC" // rest until filled or cancelled
	TIFIOC TimeInForce = "IOC" // fill what is possible now, cancel the rest
	TIFFOK TimeInForce = "FOK" // fill completely now or cancel entirely
)

// OrderStatus is the lifecycle state of an order. Transitions are
// monotonic: a filled or cancelled order never becomes active again.
type OrderStatus string

const (
	OrderStatusActive          OrderStatus = "active"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// OfferingStatus gates whether an offering accepts orders.
type OfferingStatus string

const (
	OfferingStatusOpen     OfferingStatus = "open"
	OfferingStatusClosed   OfferingStatus = "closed"
	OfferingStatusArchived OfferingStatus = "archived"
)

// Offering is the tradable unit representing fractional shares of one
// vehicle. Created when a vehicle is tokenized; updated on every trade;
// archived on close, never deleted.
type Offering struct {
	ID                string         `json:"id" db:"id"`
	VehicleID         string         `json:"vehicle_id" db:"vehicle_id"`
	TotalShares       int64          `json:"total_shares" db:"total_shares"`
	SharePriceCents   int64          `json:"share_price_cents" db:"share_price_cents"` // current mark
	TotalTrades       int64          `json:"total_trades" db:"total_trades"`
	TotalVolumeShares int64          `json:"total_volume_shares" db:"total_volume_shares"`
	TotalVolumeCents  int64          `json:"total_volume_cents" db:"total_volume_cents"`
	Status            OfferingStatus `json:"status" db:"status"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
}

// Order is a buy or sell instruction against one offering.
//
// Seq is the engine-assigned monotonic admission sequence used as the
// time-priority tiebreak at equal prices; wall-clock CreatedAt is kept
// for display only.
type Order struct {
	ID             string      `json:"id" db:"id"`
	OfferingID     string      `json:"offering_id" db:"offering_id"`
	UserID         string      `json:"user_id" db:"user_id"`
	Side           Side        `json:"side" db:"side"`
	PriceCents     int64       `json:"price_cents" db:"price_cents"`
	Quantity       int64       `json:"quantity" db:"quantity"`
	FilledQuantity int64       `json:"filled_quantity" db:"filled_quantity"`
	FilledNotional int64       `json:"filled_notional_cents" db:"filled_notional_cents"` // Σ price×qty over fills
	TimeInForce    TimeInForce `json:"time_in_force" db:"time_in_force"`
	Status         OrderStatus `json:"status" db:"status"`
	Seq            uint64      `json:"seq" db:"seq"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() int64 {
	return o.Quantity - o.FilledQuantity
}

// AvgFillPrice computes the volume-weighted average execution price in
// cents as an exact decimal. Returns (zero, false) when nothing filled.
func (o *Order) AvgFillPrice() (decimal.Decimal, bool) {
	if o.FilledQuantity == 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(o.FilledNotional).
		Div(decimal.NewFromInt(o.FilledQuantity)), true
}

// Trade is an immutable execution record. The price is always the
// resting (maker) order's limit price; commission is the platform
// spread, collected once.
type Trade struct {
	ID              string    `json:"id" db:"id"`
	OfferingID      string    `json:"offering_id" db:"offering_id"`
	BuyerID         string    `json:"buyer_id" db:"buyer_id"`
	SellerID        string    `json:"seller_id" db:"seller_id"`
	BuyOrderID      string    `json:"buy_order_id" db:"buy_order_id"`
	SellOrderID     string    `json:"sell_order_id" db:"sell_order_id"`
	Quantity        int64     `json:"quantity" db:"quantity"`
	PriceCents      int64     `json:"price_cents" db:"price_cents"`
	CommissionCents int64     `json:"commission_cents" db:"commission_cents"`
	ExecutedAt      time.Time `json:"executed_at" db:"executed_at"`
}

// Holding is a per (offering, holder) share position with exact
// volume-weighted average entry price.
type Holding struct {
	OfferingID    string          `json:"offering_id" db:"offering_id"`
	UserID        string          `json:"user_id" db:"user_id"`
	Shares        int64           `json:"shares" db:"shares"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price" db:"avg_entry_price"` // cents, exact
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// ReservedAsset distinguishes share holds (sell orders) from cash holds
// (buy orders).
type ReservedAsset string

const (
	ReservedShares ReservedAsset = "shares"
	ReservedCash   ReservedAsset = "cash"
)

// ReservationStatus tracks whether a hold is still backing an order.
type ReservationStatus string

const (
	ReservationStatusReserved ReservationStatus = "reserved"
	ReservationStatusReleased ReservationStatus = "released"
)

// Reservation is a provisional hold against a user's free shares or
// free cash, tied 1:1 to an open order. Released exactly once, on fill
// or cancellation.
type Reservation struct {
	ID         string            `json:"id" db:"id"`
	OrderID    string            `json:"order_id" db:"order_id"`
	OfferingID string            `json:"offering_id" db:"offering_id"`
	UserID     string            `json:"user_id" db:"user_id"`
	Asset      ReservedAsset     `json:"asset" db:"asset"`
	Amount     int64             `json:"amount" db:"amount"` // shares or cents
	Status     ReservationStatus `json:"status" db:"status"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
	ReleasedAt *time.Time        `json:"released_at,omitempty" db:"released_at"`
}

// Quote is one side of the NBBO: best price with aggregate size and
// order count at that level.
type Quote struct {
	PriceCents int64 `json:"price_cents"`
	Size       int64 `json:"size"`
	OrderCount int   `json:"order_count"`
}

// NBBOSnapshot is the derived best-bid/offer view of one offering's
// book. It is a pure function of book state — a cache, never a source
// of truth.
type NBBOSnapshot struct {
	OfferingID     string     `json:"offering_id"`
	BestBid        *Quote     `json:"best_bid,omitempty"`
	BestAsk        *Quote     `json:"best_ask,omitempty"`
	SpreadCents    *int64     `json:"spread_cents,omitempty"` // nil if either side empty
	MidCents       *int64     `json:"mid_cents,omitempty"`
	BidDepth       int64      `json:"bid_depth"` // Σ remaining across all bids
	AskDepth       int64      `json:"ask_depth"`
	LastTradePrice *int64     `json:"last_trade_price,omitempty"`
	LastTradeSize  *int64     `json:"last_trade_size,omitempty"`
	LastTradeAt    *time.Time `json:"last_trade_at,omitempty"`
	ComputedAt     time.Time  `json:"computed_at"`
}
