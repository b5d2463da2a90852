package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sss97133/nuke-exchange/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary. The NBBO and holding
// read paths are the hot ones — quote polling must never queue behind
// matching.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateOffering(ctx context.Context, o *model.Offering) error {
	if err := s.primary.CreateOffering(ctx, o); err != nil {
		return err
	}
	s.cacheOffering(ctx, o)
	return nil
}

func (s *CachedStore) RecordOfferingTrade(ctx context.Context, id string, priceCents, qtyShares, valueCents int64) error {
	if err := s.primary.RecordOfferingTrade(ctx, id, priceCents, qtyShares, valueCents); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, offeringKey(id))
	return nil
}

func (s *CachedStore) UpdateOfferingStatus(ctx context.Context, id string, status model.OfferingStatus) error {
	if err := s.primary.UpdateOfferingStatus(ctx, id, status); err != nil {
		return err
	}
	s.rdb.Del(ctx, offeringKey(id))
	return nil
}

func (s *CachedStore) UpsertHolding(ctx context.Context, h *model.Holding) error {
	if err := s.primary.UpsertHolding(ctx, h); err != nil {
		return err
	}
	s.rdb.Del(ctx, holdingCacheKey(h.OfferingID, h.UserID))
	return nil
}

func (s *CachedStore) SaveNBBO(ctx context.Context, snap *model.NBBOSnapshot) error {
	if err := s.primary.SaveNBBO(ctx, snap); err != nil {
		return err
	}
	if data, err := json.Marshal(snap); err == nil {
		s.rdb.Set(ctx, nbboKey(snap.OfferingID), data, s.ttl)
	}
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetOffering(ctx context.Context, id string) (*model.Offering, error) {
	data, err := s.rdb.Get(ctx, offeringKey(id)).Bytes()
	if err == nil {
		var o model.Offering
		if json.Unmarshal(data, &o) == nil {
			return &o, nil
		}
	}

	// Cache miss: read from primary.
	o, err := s.primary.GetOffering(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheOffering(ctx, o)
	return o, nil
}

func (s *CachedStore) GetHolding(ctx context.Context, offeringID, userID string) (*model.Holding, error) {
	data, err := s.rdb.Get(ctx, holdingCacheKey(offeringID, userID)).Bytes()
	if err == nil {
		var h model.Holding
		if json.Unmarshal(data, &h) == nil {
			return &h, nil
		}
	}

	h, err := s.primary.GetHolding(ctx, offeringID, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(h); err == nil {
		s.rdb.Set(ctx, holdingCacheKey(offeringID, userID), data, s.ttl)
	}
	return h, nil
}

func (s *CachedStore) GetNBBO(ctx context.Context, offeringID string) (*model.NBBOSnapshot, error) {
	data, err := s.rdb.Get(ctx, nbboKey(offeringID)).Bytes()
	if err == nil {
		var snap model.NBBOSnapshot
		if json.Unmarshal(data, &snap) == nil {
			return &snap, nil
		}
	}

	snap, err := s.primary.GetNBBO(ctx, offeringID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(snap); err == nil {
		s.rdb.Set(ctx, nbboKey(offeringID), data, s.ttl)
	}
	return snap, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListOfferings(ctx context.Context) ([]model.Offering, error) {
	return s.primary.ListOfferings(ctx)
}

func (s *CachedStore) SaveOrder(ctx context.Context, o *model.Order) error {
	return s.primary.SaveOrder(ctx, o)
}

func (s *CachedStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return s.primary.GetOrder(ctx, id)
}

func (s *CachedStore) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	return s.primary.ListOrdersByUser(ctx, userID)
}

func (s *CachedStore) OpenOrders(ctx context.Context, offeringID string) ([]model.Order, error) {
	return s.primary.OpenOrders(ctx, offeringID)
}

func (s *CachedStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	return s.primary.InsertTrade(ctx, t)
}

func (s *CachedStore) ListTradesByOffering(ctx context.Context, offeringID string, limit int) ([]model.Trade, error) {
	return s.primary.ListTradesByOffering(ctx, offeringID, limit)
}

func (s *CachedStore) ListHoldingsByOffering(ctx context.Context, offeringID string) ([]model.Holding, error) {
	return s.primary.ListHoldingsByOffering(ctx, offeringID)
}

func (s *CachedStore) SaveReservation(ctx context.Context, r *model.Reservation) error {
	return s.primary.SaveReservation(ctx, r)
}

func (s *CachedStore) AppendEvent(ctx context.Context, e *model.EventLogEntry) error {
	return s.primary.AppendEvent(ctx, e)
}

func (s *CachedStore) ListEventsByOffering(ctx context.Context, offeringID string, limit int) ([]model.EventLogEntry, error) {
	return s.primary.ListEventsByOffering(ctx, offeringID, limit)
}

// --- Cache helpers ---

func (s *CachedStore) cacheOffering(ctx context.Context, o *model.Offering) {
	if data, err := json.Marshal(o); err == nil {
		s.rdb.Set(ctx, offeringKey(o.ID), data, s.ttl)
	}
}

func offeringKey(id string) string { return fmt.Sprintf("offering:%s", id) }

func holdingCacheKey(offeringID, userID string) string {
	return fmt.Sprintf("holding:%s:%s", offeringID, userID)
}

func nbboKey(id string) string { return fmt.Sprintf("nbbo:%s", id) }
