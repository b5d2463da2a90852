package book_test

import (
	"testing"

	"github.com/sss97133/nuke-exchange/internal/book"
	"github.com/sss97133/nuke-exchange/internal/model"
)

func order(id, user string, side model.Side, price, qty int64, seq uint64) *model.Order {
	return &model.Order{
		ID:         id,
		OfferingID: "off-1",
		UserID:     user,
		Side:       side,
		PriceCents: price,
		Quantity:   qty,
		Status:     model.OrderStatusActive,
		Seq:        seq,
	}
}

func TestBestBid_HighestPriceFirst(t *testing.T) {
	b := book.New("off-1")
	b.Insert(order("o1", "a", model.SideBuy, 900, 10, 1))
	b.Insert(order("o2", "b", model.SideBuy, 1000, 10, 2))
	b.Insert(order("o3", "c", model.SideBuy, 950, 10, 3))

	best, ok := b.BestBid()
	if !ok {
		t.Fatal("expected a best bid")
	}
	if best.OrderID != "o2" {
		t.Errorf("expected o2 (highest price), got %s", best.OrderID)
	}
}

func TestBestAsk_LowestPriceFirst(t *testing.T) {
	b := book.New("off-1")
	b.Insert(order("o1", "a", model.SideSell, 1100, 10, 1))
	b.Insert(order("o2", "b", model.SideSell, 1000, 10, 2))
	b.Insert(order("o3", "c", model.SideSell, 1050, 10, 3))

	best, ok := b.BestAsk()
	if !ok {
		t.Fatal("expected a best ask")
	}
	if best.OrderID != "o2" {
		t.Errorf("expected o2 (lowest price), got %s", best.OrderID)
	}
}

func TestTimePriority_AtEqualPrice(t *testing.T) {
	b := book.New("off-1")
	b.Insert(order("later", "a", model.SideSell, 1000, 10, 5))
	b.Insert(order("earlier", "b", model.SideSell, 1000, 10, 2))

	best, _ := b.BestAsk()
	if best.OrderID != "earlier" {
		t.Errorf("expected earlier seq to have priority, got %s", best.OrderID)
	}
}

func TestRemove(t *testing.T) {
	b := book.New("off-1")
	b.Insert(order("o1", "a", model.SideBuy, 1000, 10, 1))

	if !b.Contains("o1") {
		t.Fatal("expected o1 on the book")
	}
	b.Remove("o1")
	if b.Contains("o1") {
		t.Error("expected o1 removed")
	}
	if _, ok := b.BestBid(); ok {
		t.Error("expected empty bid side")
	}

	// Removing again is a no-op.
	b.Remove("o1")
}

func TestIterMatchable_PriceCrossing(t *testing.T) {
	b := book.New("off-1")
	b.Insert(order("cheap", "a", model.SideSell, 900, 10, 1))
	b.Insert(order("exact", "b", model.SideSell, 1000, 10, 2))
	b.Insert(order("expensive", "c", model.SideSell, 1100, 10, 3))

	var seen []string
	b.IterMatchable(model.SideBuy, 1000, "", func(e book.Entry) bool {
		seen = append(seen, e.OrderID)
		return true
	})

	if len(seen) != 2 || seen[0] != "cheap" || seen[1] != "exact" {
		t.Errorf("expected [cheap exact], got %v", seen)
	}
}

func TestIterMatchable_SkipsSelf(t *testing.T) {
	b := book.New("off-1")
	b.Insert(order("own", "alice", model.SideSell, 900, 10, 1))
	b.Insert(order("other", "bob", model.SideSell, 950, 10, 2))

	entry, ok := b.BestMatchable(model.SideBuy, 1000, "alice")
	if !ok {
		t.Fatal("expected a matchable counter-order")
	}
	if entry.OrderID != "other" {
		t.Errorf("expected alice's own order skipped, matched %s", entry.OrderID)
	}
}

func TestIterMatchable_SellAgainstBids(t *testing.T) {
	b := book.New("off-1")
	b.Insert(order("high", "a", model.SideBuy, 1100, 10, 1))
	b.Insert(order("low", "b", model.SideBuy, 900, 10, 2))

	var seen []string
	b.IterMatchable(model.SideSell, 1000, "", func(e book.Entry) bool {
		seen = append(seen, e.OrderID)
		return true
	})

	if len(seen) != 1 || seen[0] != "high" {
		t.Errorf("expected only the crossing bid, got %v", seen)
	}
}

func TestMatchableQuantity(t *testing.T) {
	b := book.New("off-1")
	b.Insert(order("o1", "a", model.SideSell, 900, 30, 1))
	b.Insert(order("o2", "b", model.SideSell, 1000, 20, 2))
	b.Insert(order("o3", "c", model.SideSell, 1100, 50, 3))

	if got := b.MatchableQuantity(model.SideBuy, 1000, ""); got != 50 {
		t.Errorf("expected 50 matchable at limit 1000, got %d", got)
	}
	if got := b.MatchableQuantity(model.SideBuy, 1000, "a"); got != 20 {
		t.Errorf("expected 20 matchable excluding a, got %d", got)
	}
	if got := b.MatchableQuantity(model.SideBuy, 800, ""); got != 0 {
		t.Errorf("expected 0 matchable at limit 800, got %d", got)
	}
}

func TestBestLevel_Aggregates(t *testing.T) {
	b := book.New("off-1")
	b.Insert(order("o1", "a", model.SideSell, 1000, 30, 1))
	b.Insert(order("o2", "b", model.SideSell, 1000, 20, 2))
	b.Insert(order("o3", "c", model.SideSell, 1100, 50, 3))

	level, ok := b.BestLevel(model.SideSell)
	if !ok {
		t.Fatal("expected a best level")
	}
	if level.PriceCents != 1000 || level.TotalQuantity != 50 || level.OrderCount != 2 {
		t.Errorf("unexpected level: %+v", level)
	}
}

func TestLevels_RespectsPartialFills(t *testing.T) {
	b := book.New("off-1")
	o := order("o1", "a", model.SideSell, 1000, 50, 1)
	o.FilledQuantity = 30
	b.Insert(o)

	levels := b.Levels(model.SideSell, 5)
	if len(levels) != 1 {
		t.Fatalf("expected 1 level, got %d", len(levels))
	}
	if levels[0].TotalQuantity != 20 {
		t.Errorf("expected remaining 20, got %d", levels[0].TotalQuantity)
	}
}

func TestDepth(t *testing.T) {
	b := book.New("off-1")
	b.Insert(order("o1", "a", model.SideBuy, 900, 10, 1))
	b.Insert(order("o2", "b", model.SideBuy, 950, 15, 2))

	if got := b.Depth(model.SideBuy); got != 25 {
		t.Errorf("expected bid depth 25, got %d", got)
	}
	if got := b.Depth(model.SideSell); got != 0 {
		t.Errorf("expected ask depth 0, got %d", got)
	}
}

func TestManager_GetOrCreate(t *testing.T) {
	m := book.NewManager()
	b1 := m.GetOrCreate("off-1")
	b2 := m.GetOrCreate("off-1")
	if b1 != b2 {
		t.Error("expected the same book instance per offering")
	}
	if m.GetOrCreate("off-2") == b1 {
		t.Error("expected distinct books per offering")
	}
}
