package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sss97133/nuke-exchange/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu           sync.RWMutex
	offerings    map[string]*model.Offering
	orders       map[string]*model.Order
	trades       []model.Trade
	holdings     map[string]*model.Holding // offering|user
	reservations map[string]*model.Reservation
	nbbo         map[string]*model.NBBOSnapshot
	events       []model.EventLogEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		offerings:    make(map[string]*model.Offering),
		orders:       make(map[string]*model.Order),
		holdings:     make(map[string]*model.Holding),
		reservations: make(map[string]*model.Reservation),
		nbbo:         make(map[string]*model.NBBOSnapshot),
	}
}

func holdingKey(offeringID, userID string) string { return offeringID + "|" + userID }

func (s *MemoryStore) CreateOffering(_ context.Context, o *model.Offering) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.offerings[o.ID]; exists {
		return fmt.Errorf("offering %s: %w", o.ID, model.ErrOfferingExists)
	}
	for _, existing := range s.offerings {
		if existing.VehicleID == o.VehicleID {
			return fmt.Errorf("vehicle %s: %w", o.VehicleID, model.ErrOfferingExists)
		}
	}

	// Store a copy to avoid external mutation.
	cp := *o
	s.offerings[o.ID] = &cp
	return nil
}

func (s *MemoryStore) GetOffering(_ context.Context, id string) (*model.Offering, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.offerings[id]
	if !ok {
		return nil, fmt.Errorf("offering %s: %w", id, model.ErrOfferingNotFound)
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) ListOfferings(_ context.Context) ([]model.Offering, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offerings := make([]model.Offering, 0, len(s.offerings))
	for _, o := range s.offerings {
		offerings = append(offerings, *o)
	}
	sort.Slice(offerings, func(i, j int) bool {
		return offerings[i].CreatedAt.After(offerings[j].CreatedAt)
	})
	return offerings, nil
}

func (s *MemoryStore) RecordOfferingTrade(_ context.Context, id string, priceCents, qtyShares, valueCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offerings[id]
	if !ok {
		return fmt.Errorf("offering %s: %w", id, model.ErrOfferingNotFound)
	}
	o.SharePriceCents = priceCents
	o.TotalTrades++
	o.TotalVolumeShares += qtyShares
	o.TotalVolumeCents += valueCents
	return nil
}

func (s *MemoryStore) UpdateOfferingStatus(_ context.Context, id string, status model.OfferingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offerings[id]
	if !ok {
		return fmt.Errorf("offering %s: %w", id, model.ErrOfferingNotFound)
	}
	o.Status = status
	return nil
}

func (s *MemoryStore) SaveOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, model.ErrOrderNotFound)
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) ListOrdersByUser(_ context.Context, userID string) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var orders []model.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			orders = append(orders, *o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].Seq > orders[j].Seq
	})
	return orders, nil
}

func (s *MemoryStore) OpenOrders(_ context.Context, offeringID string) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var orders []model.Order
	for _, o := range s.orders {
		if o.OfferingID == offeringID && !o.Status.Terminal() {
			orders = append(orders, *o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].Seq < orders[j].Seq
	})
	return orders, nil
}

func (s *MemoryStore) InsertTrade(_ context.Context, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, *t)
	return nil
}

func (s *MemoryStore) ListTradesByOffering(_ context.Context, offeringID string, limit int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var trades []model.Trade
	for i := len(s.trades) - 1; i >= 0; i-- {
		if s.trades[i].OfferingID != offeringID {
			continue
		}
		trades = append(trades, s.trades[i])
		if limit > 0 && len(trades) >= limit {
			break
		}
	}
	return trades, nil
}

func (s *MemoryStore) UpsertHolding(_ context.Context, h *model.Holding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *h
	s.holdings[holdingKey(h.OfferingID, h.UserID)] = &cp
	return nil
}

func (s *MemoryStore) GetHolding(_ context.Context, offeringID, userID string) (*model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.holdings[holdingKey(offeringID, userID)]
	if !ok {
		return nil, fmt.Errorf("holding %s/%s not found", offeringID, userID)
	}
	cp := *h
	return &cp, nil
}

func (s *MemoryStore) ListHoldingsByOffering(_ context.Context, offeringID string) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var holdings []model.Holding
	for _, h := range s.holdings {
		if h.OfferingID == offeringID {
			holdings = append(holdings, *h)
		}
	}
	sort.Slice(holdings, func(i, j int) bool {
		return holdings[i].UserID < holdings[j].UserID
	})
	return holdings, nil
}

func (s *MemoryStore) SaveReservation(_ context.Context, r *model.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.reservations[r.ID] = &cp
	return nil
}

func (s *MemoryStore) SaveNBBO(_ context.Context, snap *model.NBBOSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *snap
	s.nbbo[snap.OfferingID] = &cp
	return nil
}

func (s *MemoryStore) GetNBBO(_ context.Context, offeringID string) (*model.NBBOSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.nbbo[offeringID]
	if !ok {
		return nil, fmt.Errorf("nbbo for offering %s not found", offeringID)
	}
	cp := *snap
	return &cp, nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, e *model.EventLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *e)
	return nil
}

func (s *MemoryStore) ListEventsByOffering(_ context.Context, offeringID string, limit int) ([]model.EventLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []model.EventLogEntry
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].OfferingID != offeringID {
			continue
		}
		events = append(events, s.events[i])
		if limit > 0 && len(events) >= limit {
			break
		}
	}
	return events, nil
}
