package eventlog_test

import (
	"testing"

	"github.com/sss97133/nuke-exchange/internal/eventlog"
	"github.com/sss97133/nuke-exchange/internal/model"
)

func TestAppend_AssignsSequence(t *testing.T) {
	l := eventlog.New()

	e1 := l.Append(model.EventLogEntry{OfferingID: "off-1", Type: model.EventOrderPlaced})
	e2 := l.Append(model.EventLogEntry{OfferingID: "off-1", Type: model.EventTradeExecuted})

	if e1.ID == "" || e2.ID == "" {
		t.Error("expected generated IDs")
	}
	if e1.Seq != 1 || e2.Seq != 2 {
		t.Errorf("expected seqs 1, 2; got %d, %d", e1.Seq, e2.Seq)
	}
	if e1.CreatedAt.IsZero() {
		t.Error("expected a timestamp")
	}
	if l.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", l.Len())
	}
}

func TestByOffering_NewestFirstWithLimit(t *testing.T) {
	l := eventlog.New()
	l.Append(model.EventLogEntry{OfferingID: "off-1", Type: model.EventOrderPlaced})
	l.Append(model.EventLogEntry{OfferingID: "off-2", Type: model.EventOrderPlaced})
	l.Append(model.EventLogEntry{OfferingID: "off-1", Type: model.EventTradeExecuted})
	l.Append(model.EventLogEntry{OfferingID: "off-1", Type: model.EventOrderFilled})

	all := l.ByOffering("off-1", 0)
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].Type != model.EventOrderFilled || all[2].Type != model.EventOrderPlaced {
		t.Errorf("expected newest first, got %+v", all)
	}

	limited := l.ByOffering("off-1", 2)
	if len(limited) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(limited))
	}
	if limited[0].Seq < limited[1].Seq {
		t.Error("expected descending seq order")
	}

	if got := l.ByOffering("off-3", 0); got != nil {
		t.Errorf("expected nil for unknown offering, got %+v", got)
	}
}
