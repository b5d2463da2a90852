// Package book implements the per-offering resting order book using
// B-trees ordered by price-time priority, with a secondary index for
// O(log n) removal by order ID.
package book

import (
	"sync"

	"github.com/google/btree"

	"github.com/sss97133/nuke-exchange/internal/model"
)

// Entry is a single order resting on the book. Price and Seq are
// denormalized from the order so tree comparisons never chase the
// pointer.
type Entry struct {
	PriceCents int64
	Seq        uint64
	OrderID    string
	Order      *model.Order
}

// Level is an aggregated price level: total remaining size and order
// count at one price.
type Level struct {
	PriceCents    int64
	TotalQuantity int64
	OrderCount    int
}

// bidLess orders the bid side: price descending, then admission
// sequence ascending. Min() is the best bid (highest price, earliest).
func bidLess(a, b Entry) bool {
	if a.PriceCents != b.PriceCents {
		return a.PriceCents > b.PriceCents
	}
	return a.Seq < b.Seq
}

// askLess orders the ask side: price ascending, then admission
// sequence ascending. Min() is the best ask (lowest price, earliest).
func askLess(a, b Entry) bool {
	if a.PriceCents != b.PriceCents {
		return a.PriceCents < b.PriceCents
	}
	return a.Seq < b.Seq
}

// Book maintains the bid and ask sides for a single offering.
//
// The zero-value mutex doubles as the offering's matching authority:
// the engine holds the write lock for the whole admit→match→settle→NBBO
// sequence, so all mutations for one offering are serialized. Read-only
// walks (quotes, NBBO recomputation outside a match) take the read lock.
type Book struct {
	offeringID string
	mu         sync.RWMutex
	bids       *btree.BTreeG[Entry]
	asks       *btree.BTreeG[Entry]
	index      map[string]Entry // order_id → entry
}

// New creates an empty book for the given offering.
func New(offeringID string) *Book {
	const degree = 32
	return &Book{
		offeringID: offeringID,
		bids:       btree.NewG(degree, bidLess),
		asks:       btree.NewG(degree, askLess),
		index:      make(map[string]Entry),
	}
}

// OfferingID returns the offering this book belongs to.
func (b *Book) OfferingID() string { return b.offeringID }

// Lock acquires the write lock — the per-offering serialization
// boundary. Held by the engine across the entire matching pass.
func (b *Book) Lock() { b.mu.Lock() }

// Unlock releases the write lock.
func (b *Book) Unlock() { b.mu.Unlock() }

// RLock acquires the read lock for quote simulation and NBBO reads.
func (b *Book) RLock() { b.mu.RLock() }

// RUnlock releases the read lock.
func (b *Book) RUnlock() { b.mu.RUnlock() }

// Insert rests an order on its side of the book. The caller must hold
// the write lock.
func (b *Book) Insert(o *model.Order) {
	entry := Entry{PriceCents: o.PriceCents, Seq: o.Seq, OrderID: o.ID, Order: o}
	if o.Side == model.SideBuy {
		b.bids.ReplaceOrInsert(entry)
	} else {
		b.asks.ReplaceOrInsert(entry)
	}
	b.index[o.ID] = entry
}

// Remove deletes an order from the book by ID. A no-op when the order
// is not resting. The caller must hold the write lock.
func (b *Book) Remove(orderID string) {
	entry, ok := b.index[orderID]
	if !ok {
		return
	}
	delete(b.index, orderID)
	if entry.Order.Side == model.SideBuy {
		b.bids.Delete(entry)
	} else {
		b.asks.Delete(entry)
	}
}

// Contains reports whether an order currently rests on the book.
func (b *Book) Contains(orderID string) bool {
	_, ok := b.index[orderID]
	return ok
}

// BestBid returns the highest-priority bid entry.
func (b *Book) BestBid() (Entry, bool) { return b.bids.Min() }

// BestAsk returns the highest-priority ask entry.
func (b *Book) BestAsk() (Entry, bool) { return b.asks.Min() }

// BestLevel returns the aggregated best price level for one side.
func (b *Book) BestLevel(side model.Side) (Level, bool) {
	tree := b.asks
	if side == model.SideBuy {
		tree = b.bids
	}
	var level Level
	found := false
	tree.Ascend(func(e Entry) bool {
		if !found {
			level.PriceCents = e.PriceCents
			found = true
		}
		if e.PriceCents != level.PriceCents {
			return false
		}
		level.TotalQuantity += e.Order.Remaining()
		level.OrderCount++
		return true
	})
	return level, found
}

// Depth returns the total remaining quantity resting on one side.
func (b *Book) Depth(side model.Side) int64 {
	tree := b.asks
	if side == model.SideBuy {
		tree = b.bids
	}
	var total int64
	tree.Ascend(func(e Entry) bool {
		total += e.Order.Remaining()
		return true
	})
	return total
}

// Levels returns up to n aggregated price levels for one side, best
// price first.
func (b *Book) Levels(side model.Side, n int) []Level {
	if n <= 0 {
		return nil
	}
	tree := b.asks
	if side == model.SideBuy {
		tree = b.bids
	}
	levels := make([]Level, 0, n)
	tree.Ascend(func(e Entry) bool {
		if len(levels) > 0 && levels[len(levels)-1].PriceCents == e.PriceCents {
			levels[len(levels)-1].TotalQuantity += e.Order.Remaining()
			levels[len(levels)-1].OrderCount++
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, Level{
			PriceCents:    e.PriceCents,
			TotalQuantity: e.Order.Remaining(),
			OrderCount:    1,
		})
		return true
	})
	return levels
}

// IterMatchable walks resting orders on the side opposite to
// incomingSide that cross limitPrice, in strict price-time priority.
// Orders owned by selfUser are skipped, never matched — self-trade
// prevention by skipping, not rejection. The callback returns true to
// continue. The caller must hold a lock.
//
// Each call restarts from the best price, so the caller may mutate the
// book between calls (removing filled counter-orders) and iterate again.
func (b *Book) IterMatchable(incomingSide model.Side, limitPrice int64, selfUser string, fn func(Entry) bool) {
	if incomingSide == model.SideBuy {
		// Walk asks from lowest price while ask <= limit.
		b.asks.Ascend(func(e Entry) bool {
			if e.PriceCents > limitPrice {
				return false
			}
			if e.Order.UserID == selfUser {
				return true
			}
			return fn(e)
		})
		return
	}
	// Incoming sell: walk bids from highest price while bid >= limit.
	b.bids.Ascend(func(e Entry) bool {
		if e.PriceCents < limitPrice {
			return false
		}
		if e.Order.UserID == selfUser {
			return true
		}
		return fn(e)
	})
}

// BestMatchable returns the highest-priority resting order crossable by
// an order of the given side/price/owner, skipping the owner's own
// orders. The caller must hold a lock.
func (b *Book) BestMatchable(incomingSide model.Side, limitPrice int64, selfUser string) (Entry, bool) {
	var best Entry
	found := false
	b.IterMatchable(incomingSide, limitPrice, selfUser, func(e Entry) bool {
		best = e
		found = true
		return false
	})
	return best, found
}

// MatchableQuantity sums the remaining quantity crossable by an order
// of the given side/price/owner. Used for the FOK feasibility pre-check
// under the same lock as the subsequent match, so the answer cannot go
// stale before the order executes.
func (b *Book) MatchableQuantity(incomingSide model.Side, limitPrice int64, selfUser string) int64 {
	var total int64
	b.IterMatchable(incomingSide, limitPrice, selfUser, func(e Entry) bool {
		total += e.Order.Remaining()
		return true
	})
	return total
}

// Manager is a thread-safe map of offering ID → Book.
type Manager struct {
	mu    sync.RWMutex
	books map[string]*Book
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{books: make(map[string]*Book)}
}

// GetOrCreate returns the book for the given offering, creating it if
// needed.
func (m *Manager) GetOrCreate(offeringID string) *Book {
	m.mu.RLock()
	b, ok := m.books[offeringID]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.books[offeringID]; ok {
		return b
	}
	b = New(offeringID)
	m.books[offeringID] = b
	return b
}
