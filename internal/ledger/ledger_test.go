package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sss97133/nuke-exchange/internal/ledger"
	"github.com/sss97133/nuke-exchange/internal/model"
)

func TestShareLedger_SeedAndBalance(t *testing.T) {
	l := ledger.NewShareLedger()
	l.Seed("off-1", "alice", 100, 1000)

	if got := l.Balance("off-1", "alice"); got != 100 {
		t.Errorf("expected 100 shares, got %d", got)
	}
	if got := l.Balance("off-1", "bob"); got != 0 {
		t.Errorf("expected 0 shares for bob, got %d", got)
	}

	h, ok := l.Get("off-1", "alice")
	if !ok {
		t.Fatal("expected alice's holding")
	}
	if !h.AvgEntryPrice.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected entry price 1000, got %s", h.AvgEntryPrice)
	}
}

func TestShareLedger_WeightedAverageEntry(t *testing.T) {
	l := ledger.NewShareLedger()
	l.Credit("off-1", "bob", 10, 1000)
	l.Credit("off-1", "bob", 30, 2000)

	h, _ := l.Get("off-1", "bob")
	// (10*1000 + 30*2000) / 40 = 1750
	if !h.AvgEntryPrice.Equal(decimal.NewFromInt(1750)) {
		t.Errorf("expected avg 1750, got %s", h.AvgEntryPrice)
	}
	if h.Shares != 40 {
		t.Errorf("expected 40 shares, got %d", h.Shares)
	}
}

func TestShareLedger_ExactFractionalAverage(t *testing.T) {
	l := ledger.NewShareLedger()
	l.Credit("off-1", "bob", 3, 1000)
	l.Credit("off-1", "bob", 1, 1001)

	h, _ := l.Get("off-1", "bob")
	want := decimal.NewFromInt(4001).Div(decimal.NewFromInt(4))
	if !h.AvgEntryPrice.Equal(want) {
		t.Errorf("expected exact %s, got %s", want, h.AvgEntryPrice)
	}
}

func TestShareLedger_DebitShortfall(t *testing.T) {
	l := ledger.NewShareLedger()
	l.Seed("off-1", "alice", 10, 1000)

	if err := l.Debit("off-1", "alice", 20); err == nil {
		t.Error("expected error debiting more than held")
	}
	if err := l.Debit("off-1", "bob", 1); err == nil {
		t.Error("expected error debiting holder with no position")
	}
	if got := l.Balance("off-1", "alice"); got != 10 {
		t.Errorf("failed debit must not mutate, got %d", got)
	}
}

func TestShareLedger_DebitToZeroResetsAverage(t *testing.T) {
	l := ledger.NewShareLedger()
	l.Seed("off-1", "alice", 10, 1000)

	if err := l.Debit("off-1", "alice", 10); err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	h, ok := l.Get("off-1", "alice")
	if !ok {
		t.Fatal("zeroed position should keep its row")
	}
	if h.Shares != 0 || !h.AvgEntryPrice.IsZero() {
		t.Errorf("expected zeroed position, got %d @ %s", h.Shares, h.AvgEntryPrice)
	}
}

func TestShareLedger_Conservation(t *testing.T) {
	l := ledger.NewShareLedger()
	l.Seed("off-1", "alice", 100, 1000)

	if err := l.Debit("off-1", "alice", 30); err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	l.Credit("off-1", "bob", 30, 1200)

	if got := l.TotalShares("off-1"); got != 100 {
		t.Errorf("conservation violated: total %d", got)
	}
}

func TestMemoryCashLedger_DebitCredit(t *testing.T) {
	c := ledger.NewMemoryCashLedger()
	ctx := context.Background()
	c.Deposit("alice", 10_000)

	if err := c.Debit(ctx, "alice", 4_000, "t1"); err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if err := c.Credit(ctx, "bob", 4_000, "t2"); err != nil {
		t.Fatalf("credit failed: %v", err)
	}

	if b, _ := c.Balance(ctx, "alice"); b != 6_000 {
		t.Errorf("expected 6000, got %d", b)
	}
	if b, _ := c.Balance(ctx, "bob"); b != 4_000 {
		t.Errorf("expected 4000, got %d", b)
	}
}

func TestMemoryCashLedger_InsufficientBalance(t *testing.T) {
	c := ledger.NewMemoryCashLedger()
	ctx := context.Background()
	c.Deposit("alice", 100)

	err := c.Debit(ctx, "alice", 200, "t1")
	if !errors.Is(err, model.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if b, _ := c.Balance(ctx, "alice"); b != 100 {
		t.Errorf("failed debit must not mutate, got %d", b)
	}
}

func TestMemoryCashLedger_IdempotentByReason(t *testing.T) {
	c := ledger.NewMemoryCashLedger()
	ctx := context.Background()
	c.Deposit("alice", 1_000)

	for i := 0; i < 3; i++ {
		if err := c.Debit(ctx, "alice", 400, "same-reason"); err != nil {
			t.Fatalf("debit %d failed: %v", i, err)
		}
	}
	if b, _ := c.Balance(ctx, "alice"); b != 600 {
		t.Errorf("repeated reason must apply once, got %d", b)
	}
}
