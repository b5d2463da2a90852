// Package nbbo maintains the derived best-bid/offer snapshot per
// offering. A snapshot is always a pure function of the live book plus
// the last trade memo — the cache can diverge from nothing because it
// is never written independently.
package nbbo

import (
	"sync"
	"time"

	"github.com/sss97133/nuke-exchange/internal/book"
	"github.com/sss97133/nuke-exchange/internal/model"
)

type lastTrade struct {
	priceCents int64
	size       int64
	at         time.Time
}

// Cache holds the latest snapshot per offering. The engine recomputes
// synchronously after every book mutation; the query path reads the
// cache and never touches the book.
type Cache struct {
	mu     sync.RWMutex
	snaps  map[string]*model.NBBOSnapshot
	trades map[string]lastTrade
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		snaps:  make(map[string]*model.NBBOSnapshot),
		trades: make(map[string]lastTrade),
	}
}

// RecordTrade memoizes the last execution for inclusion in snapshots.
func (c *Cache) RecordTrade(offeringID string, priceCents, size int64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trades[offeringID] = lastTrade{priceCents: priceCents, size: size, at: at}
}

// Recompute derives a fresh snapshot from the book and stores it. The
// caller must hold the book's lock — the engine calls this inside the
// same serialization boundary as the mutation, so a snapshot is never
// served stale across a matching operation.
func (c *Cache) Recompute(b *book.Book) *model.NBBOSnapshot {
	snap := Compute(b)

	c.mu.Lock()
	if lt, ok := c.trades[b.OfferingID()]; ok {
		at := lt.at
		snap.LastTradePrice = &lt.priceCents
		snap.LastTradeSize = &lt.size
		snap.LastTradeAt = &at
	}
	c.snaps[b.OfferingID()] = snap
	c.mu.Unlock()

	return snap
}

// Get returns the cached snapshot for an offering. Read-only, never
// blocks on matching.
func (c *Cache) Get(offeringID string) (model.NBBOSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.snaps[offeringID]
	if !ok {
		return model.NBBOSnapshot{}, false
	}
	return *snap, true
}

// Compute derives a snapshot from current book state without touching
// the cache. The caller must hold a book lock.
func Compute(b *book.Book) *model.NBBOSnapshot {
	snap := &model.NBBOSnapshot{
		OfferingID: b.OfferingID(),
		BidDepth:   b.Depth(model.SideBuy),
		AskDepth:   b.Depth(model.SideSell),
		ComputedAt: time.Now().UTC(),
	}

	if level, ok := b.BestLevel(model.SideBuy); ok {
		snap.BestBid = &model.Quote{
			PriceCents: level.PriceCents,
			Size:       level.TotalQuantity,
			OrderCount: level.OrderCount,
		}
	}
	if level, ok := b.BestLevel(model.SideSell); ok {
		snap.BestAsk = &model.Quote{
			PriceCents: level.PriceCents,
			Size:       level.TotalQuantity,
			OrderCount: level.OrderCount,
		}
	}

	switch {
	case snap.BestBid != nil && snap.BestAsk != nil:
		spread := snap.BestAsk.PriceCents - snap.BestBid.PriceCents
		mid := (snap.BestAsk.PriceCents + snap.BestBid.PriceCents) / 2
		snap.SpreadCents = &spread
		snap.MidCents = &mid
	case snap.BestBid != nil:
		mid := snap.BestBid.PriceCents
		snap.MidCents = &mid
	case snap.BestAsk != nil:
		mid := snap.BestAsk.PriceCents
		snap.MidCents = &mid
	}

	return snap
}
