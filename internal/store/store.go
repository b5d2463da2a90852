// Package store defines the persistence interface for the exchange
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
//
// The store is the durable record; the in-memory book is the matching
// authority. At startup the book is rebuilt from OpenOrders.
package store

import (
	"context"

	"github.com/sss97133/nuke-exchange/internal/model"
)

// Store is the persistence interface backing the engine's durable
// state: offerings, orders, trades, holdings, reservations, the NBBO
// cache, and the append-only event log.
type Store interface {
	// --- Offerings ---

	// CreateOffering persists a newly tokenized offering.
	CreateOffering(ctx context.Context, o *model.Offering) error

	// GetOffering retrieves an offering by ID.
	GetOffering(ctx context.Context, id string) (*model.Offering, error)

	// ListOfferings returns all offerings, newest first.
	ListOfferings(ctx context.Context) ([]model.Offering, error)

	// RecordOfferingTrade folds one execution into the offering's mark
	// price and cumulative trade/volume counters.
	RecordOfferingTrade(ctx context.Context, id string, priceCents, qtyShares, valueCents int64) error

	// UpdateOfferingStatus moves an offering between open/closed/archived.
	UpdateOfferingStatus(ctx context.Context, id string, status model.OfferingStatus) error

	// --- Orders ---

	// SaveOrder inserts or updates an order's current state.
	SaveOrder(ctx context.Context, o *model.Order) error

	// GetOrder retrieves an order by ID.
	GetOrder(ctx context.Context, id string) (*model.Order, error)

	// ListOrdersByUser returns a user's orders, newest first.
	ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error)

	// OpenOrders returns non-terminal orders for an offering in
	// admission-sequence order, for rebuilding the book at startup.
	OpenOrders(ctx context.Context, offeringID string) ([]model.Order, error)

	// --- Trades (immutable) ---

	// InsertTrade appends an immutable execution record.
	InsertTrade(ctx context.Context, t *model.Trade) error

	// ListTradesByOffering returns recent trades, newest first.
	ListTradesByOffering(ctx context.Context, offeringID string, limit int) ([]model.Trade, error)

	// --- Holdings ---

	// UpsertHolding writes a holder's current position.
	UpsertHolding(ctx context.Context, h *model.Holding) error

	// GetHolding retrieves one holder's position.
	GetHolding(ctx context.Context, offeringID, userID string) (*model.Holding, error)

	// ListHoldingsByOffering returns every holder's position in an
	// offering, for ledger rebuild at startup and conservation audits.
	ListHoldingsByOffering(ctx context.Context, offeringID string) ([]model.Holding, error)

	// --- Reservations ---

	// SaveReservation inserts or updates a reservation's state.
	SaveReservation(ctx context.Context, r *model.Reservation) error

	// --- NBBO cache ---

	// SaveNBBO writes the latest derived snapshot for an offering.
	SaveNBBO(ctx context.Context, snap *model.NBBOSnapshot) error

	// GetNBBO retrieves the last persisted snapshot.
	GetNBBO(ctx context.Context, offeringID string) (*model.NBBOSnapshot, error)

	// --- Event log (append-only) ---

	// AppendEvent persists an audit event. Events are write-once.
	AppendEvent(ctx context.Context, e *model.EventLogEntry) error

	// ListEventsByOffering returns audit events, newest first.
	ListEventsByOffering(ctx context.Context, offeringID string, limit int) ([]model.EventLogEntry, error)
}
