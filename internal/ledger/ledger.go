// Package ledger implements the Chorus credit accounting layer: per-owner
// balances, atomic transfers, and an immutable append-only audit log.
//
// Credits are conserved: a transfer either moves both balances and appends
// exactly one audit record, or changes nothing at all.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chorusnet/chorus/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultInitialBalance is granted to newly created accounts.
const DefaultInitialBalance = 100.0

// Transfer failure modes. Callers match with errors.Is.
var (
	ErrInvalidAmount     = errors.New("transfer amount must be positive")
	ErrNoSuchAccount     = errors.New("payer account does not exist")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Ledger manages credits and transaction history in memory. All operations
// are safe for concurrent use; transfers run inside a single critical
// section per ledger, so two transfers touching the same owner can never
// interleave.
type Ledger struct {
	mu          sync.RWMutex
	balances    map[string]float64
	auditLog    []models.TransferRecord
	totalVolume float64
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{balances: make(map[string]float64)}
}

// CreateAccount creates an account with an initial balance. A no-op if the
// account already exists; returns the current balance either way.
func (l *Ledger) CreateAccount(ownerID string, initialBalance float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.balances[ownerID]; !ok {
		l.balances[ownerID] = initialBalance
	}
	return l.balances[ownerID]
}

// Balance returns the current balance for an owner, 0.0 for unknown owners.
// Read-only: looking up an owner never creates an account.
func (l *Ledger) Balance(ownerID string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[ownerID]
}

// AllBalances returns a snapshot of every account balance.
func (l *Ledger) AllBalances() map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]float64, len(l.balances))
	for k, v := range l.balances {
		out[k] = v
	}
	return out
}

// Transfer atomically moves credits between two owners and appends one audit
// record. The payee account is auto-created at 0.0 if absent; the payer must
// already exist and hold at least the amount.
func (l *Ledger) Transfer(fromOwner, toOwner string, amount float64, jobID string) (models.TransferRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount <= 0 {
		return models.TransferRecord{}, fmt.Errorf("%w: got %.2f", ErrInvalidAmount, amount)
	}

	fromBalance, ok := l.balances[fromOwner]
	if !ok {
		return models.TransferRecord{}, fmt.Errorf("%w: %q", ErrNoSuchAccount, fromOwner)
	}
	if fromBalance < amount {
		return models.TransferRecord{}, fmt.Errorf("%w: %q has %.2f, needs %.2f",
			ErrInsufficientFunds, fromOwner, fromBalance, amount)
	}

	if _, ok := l.balances[toOwner]; !ok {
		l.balances[toOwner] = 0.0
	}

	l.balances[fromOwner] -= amount
	l.balances[toOwner] += amount
	l.totalVolume += amount

	record := models.TransferRecord{
		TransferID: models.NewID(),
		FromOwner:  fromOwner,
		ToOwner:    toOwner,
		Amount:     amount,
		JobID:      jobID,
		Timestamp:  time.Now().UTC(),
	}
	l.auditLog = append(l.auditLog, record)

	log.Debug().
		Str("transfer_id", record.TransferID).
		Str("from", fromOwner).
		Str("to", toOwner).
		Float64("amount", amount).
		Str("job_id", jobID).
		Msg("credits transferred")

	return record, nil
}

// AuditLog returns transfer records matching the filters, oldest first.
// Empty jobID/ownerID mean "any"; the owner filter matches sender or
// receiver. The log itself is never mutated.
func (l *Ledger) AuditLog(jobID, ownerID string) []models.TransferRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.TransferRecord, 0, len(l.auditLog))
	for _, r := range l.auditLog {
		if jobID != "" && r.JobID != jobID {
			continue
		}
		if ownerID != "" && r.FromOwner != ownerID && r.ToOwner != ownerID {
			continue
		}
		out = append(out, r)
	}
	return out
}

// TotalVolume returns the running sum of all transferred amounts. O(1);
// maintained as a counter, not recomputed from the log.
func (l *Ledger) TotalVolume() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalVolume
}

// TransactionCount returns the number of recorded transfers.
func (l *Ledger) TransactionCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.auditLog)
}
