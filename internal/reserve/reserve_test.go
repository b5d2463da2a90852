package reserve_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sss97133/nuke-exchange/internal/ledger"
	"github.com/sss97133/nuke-exchange/internal/model"
	"github.com/sss97133/nuke-exchange/internal/reserve"
)

var rate = decimal.NewFromFloat(0.02)

func newManager(t *testing.T) (*reserve.Manager, *ledger.ShareLedger, *ledger.MemoryCashLedger) {
	t.Helper()
	shares := ledger.NewShareLedger()
	cash := ledger.NewMemoryCashLedger()
	return reserve.NewManager(shares, cash, rate), shares, cash
}

func TestReserveForSell(t *testing.T) {
	m, shares, _ := newManager(t)
	shares.Seed("off-1", "alice", 100, 1000)

	if err := m.ReserveForSell("off-1", "alice", "ord-1", 60); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if got := m.FreeShares("off-1", "alice"); got != 40 {
		t.Errorf("expected 40 free, got %d", got)
	}

	// Second reservation cannot use the held shares.
	err := m.ReserveForSell("off-1", "alice", "ord-2", 50)
	if !errors.Is(err, model.ErrInsufficientShares) {
		t.Errorf("expected ErrInsufficientShares, got %v", err)
	}
	if err := m.ReserveForSell("off-1", "alice", "ord-3", 40); err != nil {
		t.Errorf("remaining free shares should be reservable: %v", err)
	}
}

func TestReserveForBuy_IncludesCommissionBuffer(t *testing.T) {
	m, _, cash := newManager(t)
	ctx := context.Background()

	// 10 shares at 1000 cents: 10000 + 2% buffer = 10200.
	cash.Deposit("bob", 10_199)
	err := m.ReserveForBuy(ctx, "off-1", "bob", "ord-1", 1000, 10)
	if !errors.Is(err, model.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance one cent short, got %v", err)
	}

	cash.Deposit("bob", 1)
	if err := m.ReserveForBuy(ctx, "off-1", "bob", "ord-1", 1000, 10); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if got := m.ReservedCashFor("bob"); got != 10_200 {
		t.Errorf("expected 10200 reserved, got %d", got)
	}
	free, _ := m.FreeCash(ctx, "bob")
	if free != 0 {
		t.Errorf("expected 0 free cash, got %d", free)
	}
}

func TestConsume_ProportionalRelease(t *testing.T) {
	m, _, cash := newManager(t)
	ctx := context.Background()
	cash.Deposit("bob", 10_200)

	if err := m.ReserveForBuy(ctx, "off-1", "bob", "ord-1", 1000, 10); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	m.Consume("ord-1", 4)
	if got := m.ReservedCashFor("bob"); got != 6_120 {
		t.Errorf("expected 6120 reserved after consuming 4 shares, got %d", got)
	}

	m.Consume("ord-1", 6)
	if got := m.ReservedCashFor("bob"); got != 0 {
		t.Errorf("expected 0 reserved after full consumption, got %d", got)
	}
	res, ok := m.Get("ord-1")
	if !ok || res.Status != model.ReservationStatusReleased {
		t.Errorf("fully consumed hold should be released, got %+v", res)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	m, shares, _ := newManager(t)
	shares.Seed("off-1", "alice", 100, 1000)

	if err := m.ReserveForSell("off-1", "alice", "ord-1", 60); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	m.Release("ord-1")
	if got := m.FreeShares("off-1", "alice"); got != 100 {
		t.Errorf("expected all shares free, got %d", got)
	}

	// Releasing twice has the same effect as once.
	m.Release("ord-1")
	if got := m.FreeShares("off-1", "alice"); got != 100 {
		t.Errorf("double release must be a no-op, got %d", got)
	}

	// Releasing an unknown order is also a no-op.
	m.Release("no-such-order")
}

func TestRelease_AfterPartialConsume(t *testing.T) {
	m, shares, _ := newManager(t)
	shares.Seed("off-1", "alice", 100, 1000)

	if err := m.ReserveForSell("off-1", "alice", "ord-1", 60); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	m.Consume("ord-1", 25)
	m.Release("ord-1")

	if got := m.ReservedSharesFor("off-1", "alice"); got != 0 {
		t.Errorf("expected 0 reserved, got %d", got)
	}
	res, _ := m.Get("ord-1")
	if res.Status != model.ReservationStatusReleased || res.ReleasedAt == nil {
		t.Errorf("expected released reservation, got %+v", res)
	}
}

func TestReservationExclusivity(t *testing.T) {
	m, shares, _ := newManager(t)
	shares.Seed("off-1", "alice", 100, 1000)

	if err := m.ReserveForSell("off-1", "alice", "a", 50); err != nil {
		t.Fatal(err)
	}
	if err := m.ReserveForSell("off-1", "alice", "b", 50); err != nil {
		t.Fatal(err)
	}
	// sum(active reservations) == balance: nothing more to hold.
	if err := m.ReserveForSell("off-1", "alice", "c", 1); err == nil {
		t.Error("expected reservation beyond balance to fail")
	}
	if got := m.ReservedSharesFor("off-1", "alice"); got != 100 {
		t.Errorf("expected 100 reserved, got %d", got)
	}
}
