package store

import (
	"context"

	"github.com/mekong-bank/mekong_bank/internal/account"
	"github.com/mekong-bank/mekong_bank/internal/identity"
	"github.com/mekong-bank/mekong_bank/internal/journal"
)

// Snapshot carries the three logical tables between the in-memory state and
// the backing store.
type Snapshot struct {
	Accounts     []account.Account
	Users        []identity.User
	Transactions []journal.Transaction
}

// Store is the durable backing for accounts, users, and the transaction log.
// Saves are write-through: they complete before the triggering operation
// reports success. Each save rewrites its table from the current in-memory
// snapshot.
type Store interface {
	// Load reads all three tables. A missing or empty backing store yields
	// empty collections, not an error; individually malformed records are
	// skipped with a warning.
	Load(ctx context.Context) (Snapshot, error)

	SaveAccounts(ctx context.Context, accounts []account.Account) error
	SaveUsers(ctx context.Context, users []identity.User) error
	SaveTransactions(ctx context.Context, transactions []journal.Transaction) error

	// Commit durably writes accounts and the transaction log as one atomic
	// unit, so a crash cannot leave a balance change without its log entry
	// or vice versa.
	Commit(ctx context.Context, accounts []account.Account, transactions []journal.Transaction) error

	Close() error
}
