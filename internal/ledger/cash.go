package ledger

import (
	"context"
	"sync"

	"github.com/sss97133/nuke-exchange/internal/model"
)

// CashLedger is the external cash collaborator. The host platform owns
// real balances and payment rails; the engine only requires that debit
// and credit are composable within its settlement boundary — both legs
// of a trade commit or neither does.
type CashLedger interface {
	// Balance returns the user's total cash in cents, before any
	// engine-side reservations are subtracted.
	Balance(ctx context.Context, userID string) (int64, error)

	// Debit removes amountCents from the user. Fails without side
	// effects when the balance is insufficient.
	Debit(ctx context.Context, userID string, amountCents int64, reason string) error

	// Credit adds amountCents to the user.
	Credit(ctx context.Context, userID string, amountCents int64, reason string) error
}

// cashTxn is an idempotent transaction record kept by the in-memory
// ledger. A repeated reason key is applied once.
type cashTxn struct {
	userID string
	amount int64 // signed: +credit, -debit
}

// MemoryCashLedger implements CashLedger with in-memory balances.
// Used for testing and development, and as the reference for the
// idempotency contract a host-backed implementation must honor.
type MemoryCashLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	txns     map[string]cashTxn // reason → applied transaction
}

// NewMemoryCashLedger creates an empty cash ledger.
func NewMemoryCashLedger() *MemoryCashLedger {
	return &MemoryCashLedger{
		balances: make(map[string]int64),
		txns:     make(map[string]cashTxn),
	}
}

// Deposit seeds a user's balance outside the trading flow.
func (c *MemoryCashLedger) Deposit(userID string, amountCents int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[userID] += amountCents
}

func (c *MemoryCashLedger) Balance(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[userID], nil
}

func (c *MemoryCashLedger) Debit(_ context.Context, userID string, amountCents int64, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, done := c.txns[reason]; done {
		return nil
	}
	if c.balances[userID] < amountCents {
		return model.ErrInsufficientBalance
	}
	c.balances[userID] -= amountCents
	c.txns[reason] = cashTxn{userID: userID, amount: -amountCents}
	return nil
}

func (c *MemoryCashLedger) Credit(_ context.Context, userID string, amountCents int64, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, done := c.txns[reason]; done {
		return nil
	}
	c.balances[userID] += amountCents
	c.txns[reason] = cashTxn{userID: userID, amount: amountCents}
	return nil
}

// TotalCash sums every balance, for conservation checks in tests.
func (c *MemoryCashLedger) TotalCash() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	for _, b := range c.balances {
		total += b
	}
	return total
}
