// Package ledger tracks per-offering share positions with exact
// volume-weighted average entry prices, and defines the cash ledger
// interface the engine settles against.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sss97133/nuke-exchange/internal/model"
)

// ShareLedger is the authoritative in-memory record of who holds how
// many shares of each offering. All mutations happen inside the
// per-offering matching boundary; the internal lock only protects
// concurrent reads from the query path.
type ShareLedger struct {
	mu       sync.RWMutex
	holdings map[holdingKey]*model.Holding
}

type holdingKey struct {
	offeringID string
	userID     string
}

// NewShareLedger creates an empty share ledger.
func NewShareLedger() *ShareLedger {
	return &ShareLedger{holdings: make(map[holdingKey]*model.Holding)}
}

// Seed assigns an initial position, used when an offering is tokenized
// and the issuer receives the full float.
func (l *ShareLedger) Seed(offeringID, userID string, shares int64, entryPriceCents int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.holdings[holdingKey{offeringID, userID}] = &model.Holding{
		OfferingID:    offeringID,
		UserID:        userID,
		Shares:        shares,
		AvgEntryPrice: decimal.NewFromInt(entryPriceCents),
		UpdatedAt:     time.Now().UTC(),
	}
}

// Restore installs a persisted position verbatim, used when rebuilding
// state from the store at startup.
func (l *ShareLedger) Restore(h model.Holding) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := h
	l.holdings[holdingKey{h.OfferingID, h.UserID}] = &cp
}

// Balance returns the holder's current share count (zero if no position).
func (l *ShareLedger) Balance(offeringID, userID string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if h, ok := l.holdings[holdingKey{offeringID, userID}]; ok {
		return h.Shares
	}
	return 0
}

// Get returns a copy of the holder's position.
func (l *ShareLedger) Get(offeringID, userID string) (model.Holding, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	h, ok := l.holdings[holdingKey{offeringID, userID}]
	if !ok {
		return model.Holding{}, false
	}
	return *h, true
}

// Credit adds shares to the holder, updating the weighted-average entry
// price with exact arithmetic:
//
//	newAvg = (oldAvg*oldQty + price*qty) / (oldQty + qty)
//
// Rounding happens only at display boundaries, never here.
func (l *ShareLedger) Credit(offeringID, userID string, qty, priceCents int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := holdingKey{offeringID, userID}
	h, ok := l.holdings[key]
	if !ok {
		h = &model.Holding{
			OfferingID:    offeringID,
			UserID:        userID,
			AvgEntryPrice: decimal.Zero,
		}
		l.holdings[key] = h
	}

	oldQty := decimal.NewFromInt(h.Shares)
	newQty := decimal.NewFromInt(qty)
	price := decimal.NewFromInt(priceCents)

	total := oldQty.Add(newQty)
	h.AvgEntryPrice = h.AvgEntryPrice.Mul(oldQty).Add(price.Mul(newQty)).Div(total)
	h.Shares += qty
	h.UpdatedAt = time.Now().UTC()
}

// Debit removes shares from the holder. The reservation made at order
// admission guarantees the balance is sufficient; a shortfall here is a
// settlement integrity failure, not a user error. A position debited to
// zero keeps its row but resets the average entry price.
func (l *ShareLedger) Debit(offeringID, userID string, qty int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.holdings[holdingKey{offeringID, userID}]
	if !ok || h.Shares < qty {
		have := int64(0)
		if ok {
			have = h.Shares
		}
		return fmt.Errorf("share ledger: debit %d from %s/%s with balance %d", qty, offeringID, userID, have)
	}
	h.Shares -= qty
	if h.Shares == 0 {
		h.AvgEntryPrice = decimal.Zero
	}
	h.UpdatedAt = time.Now().UTC()
	return nil
}

// HoldingsByUser returns copies of all of a user's positions.
func (l *ShareLedger) HoldingsByUser(userID string) []model.Holding {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []model.Holding
	for key, h := range l.holdings {
		if key.userID == userID {
			out = append(out, *h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OfferingID < out[j].OfferingID })
	return out
}

// TotalShares sums all holders' shares for an offering. Conservation
// requires this to equal the offering's total shares outstanding at
// every point in time.
func (l *ShareLedger) TotalShares(offeringID string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total int64
	for key, h := range l.holdings {
		if key.offeringID == offeringID {
			total += h.Shares
		}
	}
	return total
}
