package account

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound occurs when an operation references an account number that
	// does not exist in the ledger.
	ErrNotFound = errors.New("account not found")

	// ErrDuplicateAccount indicates an attempt to open an account under a
	// number that is already in use.
	ErrDuplicateAccount = errors.New("account already exists")

	// ErrInsufficientFunds occurs when a debit would drive the balance
	// below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNumbersExhausted occurs when every 5-digit account number has
	// been issued.
	ErrNumbersExhausted = errors.New("account numbers exhausted")
)

const (
	numberWidth = 5

	// firstGenerated is the lowest account number the allocator hands out.
	// Numbers below it are reserved for seeded accounts.
	firstGenerated = 10000

	// maxGenerated is the highest number that still fits the 5-digit
	// account number format.
	maxGenerated = 99999
)

// Account is a ledger entry pairing an account number with its balance.
type Account struct {
	Number  string          `json:"account_number"`
	Balance decimal.Decimal `json:"balance"`
}

// Ledger holds the authoritative balance for every account. All reads and
// writes go through its mutex; callers that need a read-modify-write sequence
// spanning several calls must additionally serialize per account.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
	next     int
}

// NewLedger builds a ledger from previously persisted accounts. The number
// allocator resumes one past the highest numeric account number seen, so a
// restart never reissues a persisted number.
func NewLedger(accounts []Account) *Ledger {
	l := &Ledger{
		balances: make(map[string]decimal.Decimal, len(accounts)),
		next:     firstGenerated,
	}
	for _, acc := range accounts {
		l.balances[acc.Number] = acc.Balance
		if n, err := strconv.Atoi(acc.Number); err == nil && n >= l.next {
			l.next = n + 1
		}
	}
	return l
}

// Open creates an account with the given starting balance.
func (l *Ledger) Open(number string, initial decimal.Decimal) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.balances[number]; exists {
		return Account{}, fmt.Errorf("open %s: %w", number, ErrDuplicateAccount)
	}
	l.balances[number] = initial
	return Account{Number: number, Balance: initial}, nil
}

// AllocateNumber returns the next unused 5-digit account number. The
// allocator is monotonic and skips numbers already present in the ledger, so
// seeded or externally injected accounts cannot collide with generated ones.
// Once the 5-digit space is exhausted it fails with ErrNumbersExhausted
// rather than issue a wider number.
func (l *Ledger) AllocateNumber() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.next <= maxGenerated {
		number := fmt.Sprintf("%0*d", numberWidth, l.next)
		l.next++
		if _, exists := l.balances[number]; !exists {
			return number, nil
		}
	}
	return "", ErrNumbersExhausted
}

// Exists reports whether the account number is present in the ledger.
func (l *Ledger) Exists(number string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.balances[number]
	return ok
}

// Balance returns the current balance for the account.
func (l *Ledger) Balance(number string) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, ok := l.balances[number]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("account %s: %w", number, ErrNotFound)
	}
	return balance, nil
}

// ApplyDelta adjusts the balance by the signed amount and returns the new
// balance. The adjustment is atomic: a delta that would make the balance
// negative fails with ErrInsufficientFunds and leaves the balance unchanged.
// All balance mutation in the system funnels through this method.
func (l *Ledger) ApplyDelta(number string, delta decimal.Decimal) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[number]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("account %s: %w", number, ErrNotFound)
	}
	updated := balance.Add(delta)
	if updated.IsNegative() {
		return decimal.Decimal{}, ErrInsufficientFunds
	}
	l.balances[number] = updated
	return updated, nil
}

// Snapshot returns a copy of every account, ordered by number, suitable for
// handing to the persistence store.
func (l *Ledger) Snapshot() []Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	accounts := make([]Account, 0, len(l.balances))
	for number, balance := range l.balances {
		accounts = append(accounts, Account{Number: number, Balance: balance})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Number < accounts[j].Number })
	return accounts
}
