// Package eventlog provides the append-only audit trail of order
// lifecycle transitions and trade executions. Entries are write-once:
// nothing here mutates or deletes.
package eventlog

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sss97133/nuke-exchange/internal/model"
)

// Log is an in-memory append-only event log with a global monotonic
// sequence. Appends happen inside the per-offering matching boundary;
// the lock orders appends across offerings and protects readers.
type Log struct {
	mu      sync.RWMutex
	seq     uint64
	entries []model.EventLogEntry
}

// New creates an empty log.
func New() *Log {
	return &Log{}
}

// Append assigns the entry an ID, sequence number, and timestamp, and
// stores it. Returns a copy of the stored entry.
func (l *Log) Append(e model.EventLogEntry) model.EventLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	e.ID = uuid.New().String()
	e.Seq = l.seq
	e.CreatedAt = time.Now().UTC()
	l.entries = append(l.entries, e)
	return e
}

// ByOffering returns up to limit entries for an offering, newest first.
// limit <= 0 returns all.
func (l *Log) ByOffering(offeringID string, limit int) []model.EventLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []model.EventLogEntry
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].OfferingID != offeringID {
			continue
		}
		out = append(out, l.entries[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Len returns the number of entries appended so far.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
