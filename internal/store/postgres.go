package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sss97133/nuke-exchange/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All cash amounts are BIGINT cents; the only NUMERIC column is the
// volume-weighted average entry price, scanned as TEXT for exact decimal
// precision. Event payloads and NBBO snapshots are JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateOffering(ctx context.Context, o *model.Offering) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO offerings (id, vehicle_id, total_shares, share_price_cents,
		                        total_trades, total_volume_shares, total_volume_cents,
		                        status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.VehicleID, o.TotalShares, o.SharePriceCents,
		o.TotalTrades, o.TotalVolumeShares, o.TotalVolumeCents,
		o.Status, o.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetOffering(ctx context.Context, id string) (*model.Offering, error) {
	var o model.Offering
	err := s.pool.QueryRow(ctx,
		`SELECT id, vehicle_id, total_shares, share_price_cents,
		        total_trades, total_volume_shares, total_volume_cents,
		        status, created_at
		 FROM offerings WHERE id = $1`, id).
		Scan(&o.ID, &o.VehicleID, &o.TotalShares, &o.SharePriceCents,
			&o.TotalTrades, &o.TotalVolumeShares, &o.TotalVolumeCents,
			&o.Status, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("offering %s: %w", id, model.ErrOfferingNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get offering %s: %w", id, err)
	}
	return &o, nil
}

func (s *PostgresStore) ListOfferings(ctx context.Context) ([]model.Offering, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, vehicle_id, total_shares, share_price_cents,
		        total_trades, total_volume_shares, total_volume_cents,
		        status, created_at
		 FROM offerings ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offerings []model.Offering
	for rows.Next() {
		var o model.Offering
		if err := rows.Scan(&o.ID, &o.VehicleID, &o.TotalShares, &o.SharePriceCents,
			&o.TotalTrades, &o.TotalVolumeShares, &o.TotalVolumeCents,
			&o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		offerings = append(offerings, o)
	}
	return offerings, rows.Err()
}

func (s *PostgresStore) RecordOfferingTrade(ctx context.Context, id string, priceCents, qtyShares, valueCents int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE offerings
		 SET share_price_cents = $2,
		     total_trades = total_trades + 1,
		     total_volume_shares = total_volume_shares + $3,
		     total_volume_cents = total_volume_cents + $4
		 WHERE id = $1`,
		id, priceCents, qtyShares, valueCents,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("offering %s: %w", id, model.ErrOfferingNotFound)
	}
	return nil
}

func (s *PostgresStore) UpdateOfferingStatus(ctx context.Context, id string, status model.OfferingStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE offerings SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("offering %s: %w", id, model.ErrOfferingNotFound)
	}
	return nil
}

func (s *PostgresStore) SaveOrder(ctx context.Context, o *model.Order) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO market_orders (id, offering_id, user_id, side, price_cents,
		                            quantity, filled_quantity, filled_notional_cents,
		                            time_in_force, status, seq, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE SET
		     filled_quantity = EXCLUDED.filled_quantity,
		     filled_notional_cents = EXCLUDED.filled_notional_cents,
		     status = EXCLUDED.status,
		     updated_at = EXCLUDED.updated_at`,
		o.ID, o.OfferingID, o.UserID, o.Side, o.PriceCents,
		o.Quantity, o.FilledQuantity, o.FilledNotional,
		o.TimeInForce, o.Status, o.Seq, o.CreatedAt, o.UpdatedAt,
	)
	return err
}

const orderColumns = `id, offering_id, user_id, side, price_cents,
       quantity, filled_quantity, filled_notional_cents,
       time_in_force, status, seq, created_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.OfferingID, &o.UserID, &o.Side, &o.PriceCents,
		&o.Quantity, &o.FilledQuantity, &o.FilledNotional,
		&o.TimeInForce, &o.Status, &o.Seq, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM market_orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, model.ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

func (s *PostgresStore) listOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	return s.listOrders(ctx,
		`SELECT `+orderColumns+` FROM market_orders WHERE user_id = $1 ORDER BY seq DESC`,
		userID)
}

func (s *PostgresStore) OpenOrders(ctx context.Context, offeringID string) ([]model.Order, error) {
	return s.listOrders(ctx,
		`SELECT `+orderColumns+`
		 FROM market_orders
		 WHERE offering_id = $1 AND status IN ('active', 'partially_filled')
		 ORDER BY seq`,
		offeringID)
}

func (s *PostgresStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO market_trades (id, offering_id, buyer_id, seller_id,
		                            buy_order_id, sell_order_id, quantity,
		                            price_cents, commission_cents, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.OfferingID, t.BuyerID, t.SellerID,
		t.BuyOrderID, t.SellOrderID, t.Quantity,
		t.PriceCents, t.CommissionCents, t.ExecutedAt,
	)
	return err
}

func (s *PostgresStore) ListTradesByOffering(ctx context.Context, offeringID string, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, offering_id, buyer_id, seller_id,
		        buy_order_id, sell_order_id, quantity,
		        price_cents, commission_cents, executed_at
		 FROM market_trades
		 WHERE offering_id = $1
		 ORDER BY executed_at DESC
		 LIMIT $2`, offeringID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		if err := rows.Scan(&t.ID, &t.OfferingID, &t.BuyerID, &t.SellerID,
			&t.BuyOrderID, &t.SellOrderID, &t.Quantity,
			&t.PriceCents, &t.CommissionCents, &t.ExecutedAt); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) UpsertHolding(ctx context.Context, h *model.Holding) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO share_holdings (offering_id, user_id, shares, avg_entry_price, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5)
		 ON CONFLICT (offering_id, user_id) DO UPDATE SET
		     shares = EXCLUDED.shares,
		     avg_entry_price = EXCLUDED.avg_entry_price,
		     updated_at = EXCLUDED.updated_at`,
		h.OfferingID, h.UserID, h.Shares, h.AvgEntryPrice.String(), h.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) GetHolding(ctx context.Context, offeringID, userID string) (*model.Holding, error) {
	var h model.Holding
	var avg string

	err := s.pool.QueryRow(ctx,
		`SELECT offering_id, user_id, shares, avg_entry_price::TEXT, updated_at
		 FROM share_holdings WHERE offering_id = $1 AND user_id = $2`,
		offeringID, userID).
		Scan(&h.OfferingID, &h.UserID, &h.Shares, &avg, &h.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get holding %s/%s: %w", offeringID, userID, err)
	}

	h.AvgEntryPrice, _ = decimal.NewFromString(avg)
	return &h, nil
}

func (s *PostgresStore) ListHoldingsByOffering(ctx context.Context, offeringID string) ([]model.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT offering_id, user_id, shares, avg_entry_price::TEXT, updated_at
		 FROM share_holdings WHERE offering_id = $1 ORDER BY user_id`, offeringID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		var h model.Holding
		var avg string
		if err := rows.Scan(&h.OfferingID, &h.UserID, &h.Shares, &avg, &h.UpdatedAt); err != nil {
			return nil, err
		}
		h.AvgEntryPrice, _ = decimal.NewFromString(avg)
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

func (s *PostgresStore) SaveReservation(ctx context.Context, r *model.Reservation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reserved_assets (id, order_id, offering_id, user_id,
		                              asset, amount, status, created_at, released_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		     amount = EXCLUDED.amount,
		     status = EXCLUDED.status,
		     released_at = EXCLUDED.released_at`,
		r.ID, r.OrderID, r.OfferingID, r.UserID,
		r.Asset, r.Amount, r.Status, r.CreatedAt, r.ReleasedAt,
	)
	return err
}

func (s *PostgresStore) SaveNBBO(ctx context.Context, snap *model.NBBOSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO nbbo_cache (offering_id, snapshot, computed_at)
		 VALUES ($1, $2::JSONB, $3)
		 ON CONFLICT (offering_id) DO UPDATE SET
		     snapshot = EXCLUDED.snapshot,
		     computed_at = EXCLUDED.computed_at`,
		snap.OfferingID, data, snap.ComputedAt,
	)
	return err
}

func (s *PostgresStore) GetNBBO(ctx context.Context, offeringID string) (*model.NBBOSnapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot FROM nbbo_cache WHERE offering_id = $1`, offeringID).
		Scan(&data)
	if err != nil {
		return nil, fmt.Errorf("get nbbo %s: %w", offeringID, err)
	}

	var snap model.NBBOSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode nbbo %s: %w", offeringID, err)
	}
	return &snap, nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *model.EventLogEntry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO order_book_events (id, seq, offering_id, type, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5::JSONB, $6)`,
		e.ID, e.Seq, e.OfferingID, e.Type, payload, e.CreatedAt,
	)
	return err
}

func (s *PostgresStore) ListEventsByOffering(ctx context.Context, offeringID string, limit int) ([]model.EventLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM order_book_events
		 WHERE offering_id = $1
		 ORDER BY seq DESC
		 LIMIT $2`, offeringID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.EventLogEntry
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var e model.EventLogEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
