// internal/ledger/pettycash.go
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinicsync/internal/localstore"
	"clinicsync/internal/logger"
	"clinicsync/internal/model"
)

var ErrInsufficientFunds = errors.New("withdrawal exceeds petty cash balance")

// PettyCash is the clinic's cash-box ledger. The running balance is derived
// once, at insert time, from the immediately preceding transaction; it is
// never recomputed by summing rows on read, so the ledger cannot silently
// diverge from itself. Transactions are kept newest first.
type PettyCash struct {
	store *localstore.Store

	mu   sync.Mutex
	txns []model.PettyCashTransaction
}

func NewPettyCash(store *localstore.Store) (*PettyCash, error) {
	p := &PettyCash{store: store}

	found, err := store.LoadJSON(localstore.KeyPettyCash, &p.txns)
	if err != nil {
		return nil, fmt.Errorf("failed to load petty cash ledger: %w", err)
	}
	if found {
		logger.LogInfo("Loaded %d petty cash transactions, balance %.2f", len(p.txns), p.balanceLocked())
	}
	return p, nil
}

// Balance is the running balance of the newest transaction, zero for an
// empty ledger.
func (p *PettyCash) Balance() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balanceLocked()
}

func (p *PettyCash) balanceLocked() float64 {
	if len(p.txns) == 0 {
		return 0
	}
	return p.txns[0].RunningBalance
}

// Record validates and appends one transaction. A withdrawal that would
// drive the balance negative is rejected before anything is written.
func (p *PettyCash) Record(user string, amount float64, action, reason string) (model.PettyCashTransaction, error) {
	if amount <= 0 {
		return model.PettyCashTransaction{}, fmt.Errorf("amount must be positive, got %.2f", amount)
	}
	if action != model.CashDeposit && action != model.CashWithdrawal {
		return model.PettyCashTransaction{}, fmt.Errorf("unknown petty cash action %q", action)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	balance := p.balanceLocked()
	if action == model.CashWithdrawal && amount > balance {
		return model.PettyCashTransaction{}, fmt.Errorf("%w: balance %.2f, requested %.2f",
			ErrInsufficientFunds, balance, amount)
	}

	if action == model.CashDeposit {
		balance += amount
	} else {
		balance -= amount
	}

	txn := model.PettyCashTransaction{
		ID:             uuid.NewString(),
		User:           user,
		Amount:         amount,
		Action:         action,
		Reason:         reason,
		RunningBalance: balance,
		Timestamp:      time.Now(),
	}

	p.txns = append([]model.PettyCashTransaction{txn}, p.txns...)
	if err := p.store.SaveJSON(localstore.KeyPettyCash, p.txns); err != nil {
		// Keep the ledger consistent with what is on disk.
		p.txns = p.txns[1:]
		return model.PettyCashTransaction{}, fmt.Errorf("failed to persist petty cash ledger: %w", err)
	}

	return txn, nil
}

// Transactions returns a snapshot, newest first.
func (p *PettyCash) Transactions() []model.PettyCashTransaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]model.PettyCashTransaction, len(p.txns))
	copy(out, p.txns)
	return out
}
