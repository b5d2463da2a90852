// Package reserve tracks provisional holds on shares (backing resting
// sell orders) and cash (backing resting buy orders) so the same asset
// can never back two orders at once.
package reserve

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sss97133/nuke-exchange/internal/ledger"
	"github.com/sss97133/nuke-exchange/internal/model"
)

// hold pairs a reservation with its per-share hold amount. Cash holds
// carry price plus commission buffer per share so partial fills release
// exactly their proportional slice with no rounding drift.
type hold struct {
	res      *model.Reservation
	perShare int64 // cents per share for cash holds, 1 for share holds
}

// Manager validates and tracks reservations against the share and cash
// ledgers. Reserve calls are made inside the per-offering matching
// boundary; the internal lock protects reads from the query path.
type Manager struct {
	mu     sync.Mutex
	shares *ledger.ShareLedger
	cash   ledger.CashLedger
	rate   decimal.Decimal // commission rate, e.g. 0.02

	holds          map[string]*hold
	reservedShares map[string]int64 // offering|user → held shares
	reservedCash   map[string]int64 // user → held cents
}

// NewManager creates a reservation manager. commissionRate is the
// platform spread fraction used for the buy-side cash buffer.
func NewManager(shares *ledger.ShareLedger, cash ledger.CashLedger, commissionRate decimal.Decimal) *Manager {
	return &Manager{
		shares:         shares,
		cash:           cash,
		rate:           commissionRate,
		holds:          make(map[string]*hold),
		reservedShares: make(map[string]int64),
		reservedCash:   make(map[string]int64),
	}
}

func shareKey(offeringID, userID string) string { return offeringID + "|" + userID }

// FreeShares returns the holder's shares not already backing an order.
func (m *Manager) FreeShares(offeringID, userID string) int64 {
	owned := m.shares.Balance(offeringID, userID)
	m.mu.Lock()
	defer m.mu.Unlock()
	return owned - m.reservedShares[shareKey(offeringID, userID)]
}

// FreeCash returns the user's cash not already backing an order.
func (m *Manager) FreeCash(ctx context.Context, userID string) (int64, error) {
	balance, err := m.cash.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return balance - m.reservedCash[userID], nil
}

// ReserveForSell holds shares backing a sell order. Succeeds only when
// owned minus already-reserved covers the requested quantity; fails
// without side effects otherwise.
func (m *Manager) ReserveForSell(offeringID, userID, orderID string, qty int64) error {
	owned := m.shares.Balance(offeringID, userID)

	m.mu.Lock()
	defer m.mu.Unlock()

	key := shareKey(offeringID, userID)
	if owned-m.reservedShares[key] < qty {
		return model.ErrInsufficientShares
	}

	h := &hold{
		res: &model.Reservation{
			ID:         uuid.New().String(),
			OrderID:    orderID,
			OfferingID: offeringID,
			UserID:     userID,
			Asset:      model.ReservedShares,
			Amount:     qty,
			Status:     model.ReservationStatusReserved,
			CreatedAt:  time.Now().UTC(),
		},
		perShare: 1,
	}
	m.holds[orderID] = h
	m.reservedShares[key] += qty
	return nil
}

// ReserveForBuy holds cash backing a buy order: limit price times
// quantity plus the commission buffer, computed per share at
// reservation time so fills consume exact proportional slices.
func (m *Manager) ReserveForBuy(ctx context.Context, offeringID, userID, orderID string, priceCents, qty int64) error {
	perShare := decimal.NewFromInt(priceCents).
		Mul(decimal.NewFromInt(1).Add(m.rate)).
		Ceil().IntPart()
	required := perShare * qty

	balance, err := m.cash.Balance(ctx, userID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if balance-m.reservedCash[userID] < required {
		return model.ErrInsufficientBalance
	}

	h := &hold{
		res: &model.Reservation{
			ID:         uuid.New().String(),
			OrderID:    orderID,
			OfferingID: offeringID,
			UserID:     userID,
			Asset:      model.ReservedCash,
			Amount:     required,
			Status:     model.ReservationStatusReserved,
			CreatedAt:  time.Now().UTC(),
		},
		perShare: perShare,
	}
	m.holds[orderID] = h
	m.reservedCash[userID] += required
	return nil
}

// Consume releases the slice of a hold corresponding to qty filled
// shares. A hold consumed to zero is marked released (released-on-fill).
// No-op for unknown or already-released orders.
func (m *Manager) Consume(orderID string, qty int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holds[orderID]
	if !ok || h.res.Status != model.ReservationStatusReserved {
		return
	}

	amount := h.perShare * qty
	if amount > h.res.Amount {
		amount = h.res.Amount
	}
	h.res.Amount -= amount
	m.subtractLocked(h, amount)

	if h.res.Amount == 0 {
		now := time.Now().UTC()
		h.res.Status = model.ReservationStatusReleased
		h.res.ReleasedAt = &now
	}
}

// Release frees whatever remains of an order's hold. Idempotent: safe
// to call on an already-released or unknown reservation, tolerating
// cancel/fill replay races.
func (m *Manager) Release(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holds[orderID]
	if !ok || h.res.Status != model.ReservationStatusReserved {
		return
	}

	m.subtractLocked(h, h.res.Amount)
	h.res.Amount = 0
	now := time.Now().UTC()
	h.res.Status = model.ReservationStatusReleased
	h.res.ReleasedAt = &now
}

func (m *Manager) subtractLocked(h *hold, amount int64) {
	switch h.res.Asset {
	case model.ReservedShares:
		m.reservedShares[shareKey(h.res.OfferingID, h.res.UserID)] -= amount
	case model.ReservedCash:
		m.reservedCash[h.res.UserID] -= amount
	}
}

// Get returns a copy of the reservation backing an order.
func (m *Manager) Get(orderID string) (model.Reservation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holds[orderID]
	if !ok {
		return model.Reservation{}, false
	}
	return *h.res, true
}

// ReservedSharesFor returns the active share hold total for a holder.
func (m *Manager) ReservedSharesFor(offeringID, userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reservedShares[shareKey(offeringID, userID)]
}

// ReservedCashFor returns the active cash hold total for a user.
func (m *Manager) ReservedCashFor(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reservedCash[userID]
}
