package store

import (
	"context"
	"errors"
	"sync"

	"github.com/mekong-bank/mekong_bank/internal/account"
	"github.com/mekong-bank/mekong_bank/internal/identity"
	"github.com/mekong-bank/mekong_bank/internal/journal"
)

// ErrWritesDisabled is returned by a memory store whose writes were switched
// off, simulating a degraded backing store.
var ErrWritesDisabled = errors.New("store writes disabled")

// MemoryStore keeps snapshots in process memory. It backs unit tests and
// lets restart behavior be exercised by rebuilding a service from the same
// store instance.
type MemoryStore struct {
	mu           sync.Mutex
	accounts     []account.Account
	users        []identity.User
	transactions []journal.Transaction
	failWrites   bool
}

// NewMemory builds an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

// FailWrites toggles simulated write failures.
func (s *MemoryStore) FailWrites(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = fail
}

// Load returns a copy of the stored snapshot.
func (s *MemoryStore) Load(_ context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Accounts:     append([]account.Account(nil), s.accounts...),
		Users:        append([]identity.User(nil), s.users...),
		Transactions: append([]journal.Transaction(nil), s.transactions...),
	}, nil
}

// SaveAccounts replaces the stored account table.
func (s *MemoryStore) SaveAccounts(_ context.Context, accounts []account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return ErrWritesDisabled
	}
	s.accounts = append([]account.Account(nil), accounts...)
	return nil
}

// SaveUsers replaces the stored user table.
func (s *MemoryStore) SaveUsers(_ context.Context, users []identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return ErrWritesDisabled
	}
	s.users = append([]identity.User(nil), users...)
	return nil
}

// SaveTransactions replaces the stored transaction log.
func (s *MemoryStore) SaveTransactions(_ context.Context, transactions []journal.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return ErrWritesDisabled
	}
	s.transactions = append([]journal.Transaction(nil), transactions...)
	return nil
}

// Commit replaces accounts and transactions together.
func (s *MemoryStore) Commit(_ context.Context, accounts []account.Account, transactions []journal.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return ErrWritesDisabled
	}
	s.accounts = append([]account.Account(nil), accounts...)
	s.transactions = append([]journal.Transaction(nil), transactions...)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
