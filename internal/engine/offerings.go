package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sss97133/nuke-exchange/internal/metrics"
	"github.com/sss97133/nuke-exchange/internal/model"
)

// CreateOffering tokenizes a vehicle: the full share float is seeded to
// the issuer at the initial share price and the offering opens for
// trading.
func (e *Engine) CreateOffering(ctx context.Context, vehicleID, issuerID string, totalShares, sharePriceCents int64) (*model.Offering, error) {
	if totalShares <= 0 {
		return nil, model.ErrInvalidQuantity
	}
	if sharePriceCents <= 0 {
		return nil, model.ErrInvalidPrice
	}

	offering := &model.Offering{
		ID:              uuid.New().String(),
		VehicleID:       vehicleID,
		TotalShares:     totalShares,
		SharePriceCents: sharePriceCents,
		Status:          model.OfferingStatusOpen,
		CreatedAt:       time.Now().UTC(),
	}
	if err := e.store.CreateOffering(ctx, offering); err != nil {
		return nil, err
	}

	e.shares.Seed(offering.ID, issuerID, totalShares, sharePriceCents)
	if h, ok := e.shares.Get(offering.ID, issuerID); ok {
		if err := e.store.UpsertHolding(ctx, &h); err != nil {
			e.log.Error("persist issuer holding", "offering_id", offering.ID, "error", err)
		}
	}

	metrics.OpenOfferings.Inc()
	e.log.Info("offering created",
		"offering_id", offering.ID,
		"vehicle_id", vehicleID,
		"total_shares", totalShares,
		"share_price_cents", sharePriceCents)

	return offering, nil
}

// CloseOffering stops trading: every resting order is cancelled with its
// reservation released, then the offering is marked closed.
func (e *Engine) CloseOffering(ctx context.Context, offeringID string) error {
	offering, err := e.store.GetOffering(ctx, offeringID)
	if err != nil {
		return err
	}
	if offering.Status != model.OfferingStatusOpen {
		return fmt.Errorf("offering %s is %s: %w", offeringID, offering.Status, model.ErrInvalidOfferingState)
	}

	b := e.books.GetOrCreate(offeringID)
	b.Lock()
	defer b.Unlock()

	var cancelled int
	for {
		entry, ok := b.BestBid()
		if !ok {
			if entry, ok = b.BestAsk(); !ok {
				break
			}
		}
		b.Remove(entry.OrderID)
		e.cancelLocked(ctx, b, entry.Order)
		cancelled++
	}

	if err := e.store.UpdateOfferingStatus(ctx, offeringID, model.OfferingStatusClosed); err != nil {
		return err
	}
	metrics.OpenOfferings.Dec()
	e.log.Info("offering closed", "offering_id", offeringID, "orders_cancelled", cancelled)
	return nil
}

// Rebuild restores in-memory state from the store after a restart:
// share positions, resting orders with their reservations, the admission
// sequence counter, and a fresh NBBO per offering.
func (e *Engine) Rebuild(ctx context.Context) error {
	offerings, err := e.store.ListOfferings(ctx)
	if err != nil {
		return fmt.Errorf("list offerings: %w", err)
	}

	var maxSeq uint64
	for _, offering := range offerings {
		holdings, err := e.store.ListHoldingsByOffering(ctx, offering.ID)
		if err != nil {
			return fmt.Errorf("list holdings for %s: %w", offering.ID, err)
		}
		for _, h := range holdings {
			e.shares.Restore(h)
		}

		if offering.Status == model.OfferingStatusOpen {
			metrics.OpenOfferings.Inc()
		}

		orders, err := e.store.OpenOrders(ctx, offering.ID)
		if err != nil {
			return fmt.Errorf("open orders for %s: %w", offering.ID, err)
		}

		b := e.books.GetOrCreate(offering.ID)
		b.Lock()
		for i := range orders {
			o := &orders[i]
			if o.Seq > maxSeq {
				maxSeq = o.Seq
			}
			if o.Side == model.SideSell {
				err = e.reserve.ReserveForSell(o.OfferingID, o.UserID, o.ID, o.Remaining())
			} else {
				err = e.reserve.ReserveForBuy(ctx, o.OfferingID, o.UserID, o.ID, o.PriceCents, o.Remaining())
			}
			if err != nil {
				// The backing asset disappeared while we were down.
				// Cancel rather than rest an order that cannot settle.
				e.log.Warn("rebuild: cancelling unbackable order", "order_id", o.ID, "error", err)
				e.registerOrder(o)
				e.cancelLocked(ctx, b, o)
				continue
			}
			e.registerOrder(o)
			b.Insert(o)
		}
		e.recomputeNBBO(ctx, b)
		b.Unlock()

		e.log.Info("offering rebuilt",
			"offering_id", offering.ID,
			"resting_orders", len(orders),
			"holders", len(holdings))
	}

	e.seq.Store(maxSeq)
	return nil
}
