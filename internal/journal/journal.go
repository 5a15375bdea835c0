package journal

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Type classifies a journal entry.
type Type string

const (
	TypeDeposit     Type = "DEPOSIT"
	TypeWithdraw    Type = "WITHDRAW"
	TypeTransferIn  Type = "TRANSFER_IN"
	TypeTransferOut Type = "TRANSFER_OUT"
)

// Transaction is an immutable record of one balance-affecting event. A
// transfer produces two records, one per side, so each account's history is
// self-contained.
type Transaction struct {
	ID             string          `json:"transaction_id"`
	AccountNumber  string          `json:"account_number"`
	Type           Type            `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	RelatedAccount string          `json:"related_account,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Journal is the append-only, time-ordered transaction log.
//
// Entry IDs are derived from the current time in milliseconds and bumped
// monotonically when appends land on the same millisecond, so ID order,
// timestamp order, and commit order always agree.
type Journal struct {
	mu        sync.RWMutex
	entries   []Transaction
	lastMilli int64
}

// NewJournal rebuilds the log from persisted entries, ordered oldest first.
func NewJournal(entries []Transaction) *Journal {
	j := &Journal{entries: make([]Transaction, len(entries))}
	copy(j.entries, entries)
	sort.SliceStable(j.entries, func(i, k int) bool {
		return j.entries[i].Timestamp.Before(j.entries[k].Timestamp)
	})
	if n := len(j.entries); n > 0 {
		j.lastMilli = j.entries[n-1].Timestamp.UnixMilli()
	}
	return j
}

// Append records a new entry and returns it.
func (j *Journal) Append(accountNumber string, t Type, amount decimal.Decimal, description, relatedAccount string) Transaction {
	j.mu.Lock()
	defer j.mu.Unlock()

	milli := time.Now().UnixMilli()
	if milli <= j.lastMilli {
		milli = j.lastMilli + 1
	}
	j.lastMilli = milli

	entry := Transaction{
		ID:             "TXN" + strconv.FormatInt(milli, 10),
		AccountNumber:  accountNumber,
		Type:           t,
		Amount:         amount,
		Description:    description,
		RelatedAccount: relatedAccount,
		Timestamp:      time.UnixMilli(milli).UTC(),
	}
	j.entries = append(j.entries, entry)
	return entry
}

// History returns the account's entries, newest first.
func (j *Journal) History(accountNumber string) []Transaction {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var history []Transaction
	for i := len(j.entries) - 1; i >= 0; i-- {
		if j.entries[i].AccountNumber == accountNumber {
			history = append(history, j.entries[i])
		}
	}
	return history
}

// Snapshot returns a copy of the full log, oldest first, for persistence.
func (j *Journal) Snapshot() []Transaction {
	j.mu.RLock()
	defer j.mu.RUnlock()
	entries := make([]Transaction, len(j.entries))
	copy(entries, j.entries)
	return entries
}
