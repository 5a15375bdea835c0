package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mekong-bank/mekong_bank/internal/account"
	"github.com/mekong-bank/mekong_bank/internal/identity"
	"github.com/mekong-bank/mekong_bank/internal/journal"
	"github.com/mekong-bank/mekong_bank/internal/notify"
	"github.com/mekong-bank/mekong_bank/internal/store"
)

var (
	// ErrInvalidAmount occurs when a money operation carries a zero or
	// negative amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrSameAccount occurs when a transfer names the same account on both
	// sides.
	ErrSameAccount = errors.New("cannot transfer to the same account")

	// ErrInvalidInput occurs when a required field is blank.
	ErrInvalidInput = errors.New("required field is blank")
)

const (
	depositDescription  = "Cash deposit"
	withdrawDescription = "Cash withdrawal"
)

// Seed accounts created when the backing store is empty.
var seedAccounts = []account.Account{
	{Number: "01234", Balance: decimal.NewFromInt(5000)},
	{Number: "12345", Balance: decimal.NewFromInt(10000)},
}

// Service is the ledger-facing façade. It owns the account ledger, the user
// directory, the transaction log, and the subscriber hub. Every mutation
// validates, takes the account lock, applies, logs, persists, then notifies.
type Service struct {
	ledger  *account.Ledger
	journal *journal.Journal
	users   *identity.Directory
	store   store.Store
	hub     *notify.Hub
	locks   lockTable
	logger  *slog.Logger

	// commitMu serializes snapshot-plus-persist. Snapshots cover the whole
	// ledger, so a snapshot taken during one operation's store write could
	// carry another account's pre-mutation balance and, written last,
	// durably overwrite that account's committed update. Held after the
	// stripe lock; in-memory mutations still run in parallel.
	commitMu sync.Mutex
}

// NewService loads persisted state from the store and seeds the bootstrap
// accounts when it comes up empty.
func NewService(ctx context.Context, st store.Store, hub *notify.Hub, logger *slog.Logger) (*Service, error) {
	snap, err := st.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	s := &Service{
		ledger:  account.NewLedger(snap.Accounts),
		journal: journal.NewJournal(snap.Transactions),
		users:   identity.NewDirectory(snap.Users),
		store:   st,
		hub:     hub,
		logger:  logger,
	}

	if len(snap.Accounts) == 0 {
		for _, seed := range seedAccounts {
			if _, err := s.ledger.Open(seed.Number, seed.Balance); err != nil {
				return nil, err
			}
		}
		if err := st.SaveAccounts(ctx, s.ledger.Snapshot()); err != nil {
			logger.Warn("persisting seed accounts failed", "error", err)
		}
		logger.Info("seeded bootstrap accounts", "count", len(seedAccounts))
	}

	return s, nil
}

// RegisterResult reports a completed registration.
type RegisterResult struct {
	AccountNumber string
	Degraded      bool
}

// Register creates a user plus a fresh zero-balance account and returns the
// new account number.
func (s *Service) Register(ctx context.Context, username, password, fullName string) (RegisterResult, error) {
	username = strings.TrimSpace(username)
	fullName = strings.TrimSpace(fullName)
	if username == "" {
		return RegisterResult{}, fmt.Errorf("username: %w", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return RegisterResult{}, fmt.Errorf("password: %w", ErrInvalidInput)
	}
	if fullName == "" {
		return RegisterResult{}, fmt.Errorf("full name: %w", ErrInvalidInput)
	}
	if s.users.Taken(username) {
		return RegisterResult{}, identity.ErrUsernameTaken
	}

	number, err := s.ledger.AllocateNumber()
	if err != nil {
		return RegisterResult{}, err
	}
	if _, err := s.users.Register(username, password, number, fullName); err != nil {
		// The allocated number is abandoned; the allocator never reuses it.
		return RegisterResult{}, err
	}
	if _, err := s.ledger.Open(number, decimal.Zero); err != nil {
		return RegisterResult{}, err
	}

	degraded := false
	s.commitMu.Lock()
	if err := s.store.SaveUsers(ctx, s.users.Snapshot()); err != nil {
		s.logger.Warn("persisting users failed", "username", username, "error", err)
		degraded = true
	}
	if err := s.store.SaveAccounts(ctx, s.ledger.Snapshot()); err != nil {
		s.logger.Warn("persisting accounts failed", "account", number, "error", err)
		degraded = true
	}
	s.commitMu.Unlock()

	s.logger.Info("user registered", "username", username, "account", number)
	return RegisterResult{AccountNumber: number, Degraded: degraded}, nil
}

// LoginResult reports a successful login.
type LoginResult struct {
	AccountNumber string
	FullName      string
}

// Login verifies the credentials and returns the account number and display
// name. Unknown username and wrong password fail identically.
func (s *Service) Login(username, password string) (LoginResult, error) {
	user, err := s.users.Authenticate(username, password)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{AccountNumber: user.AccountNumber, FullName: user.FullName}, nil
}

// QueryAccount returns the account's current balance.
func (s *Service) QueryAccount(number string) (decimal.Decimal, error) {
	return s.ledger.Balance(number)
}

// MutationResult reports a single-account balance change.
type MutationResult struct {
	NewBalance  decimal.Decimal
	Transaction journal.Transaction
	Degraded    bool
}

// Deposit credits the account.
func (s *Service) Deposit(ctx context.Context, number string, amount decimal.Decimal) (MutationResult, error) {
	if !amount.IsPositive() {
		return MutationResult{}, ErrInvalidAmount
	}
	return s.mutate(ctx, number, amount, journal.TypeDeposit, depositDescription)
}

// Withdraw debits the account, failing when funds are insufficient.
func (s *Service) Withdraw(ctx context.Context, number string, amount decimal.Decimal) (MutationResult, error) {
	if !amount.IsPositive() {
		return MutationResult{}, ErrInvalidAmount
	}
	return s.mutate(ctx, number, amount.Neg(), journal.TypeWithdraw, withdrawDescription)
}

func (s *Service) mutate(ctx context.Context, number string, delta decimal.Decimal, kind journal.Type, description string) (MutationResult, error) {
	unlock := s.locks.lock(number)
	defer unlock()

	balance, err := s.ledger.ApplyDelta(number, delta)
	if err != nil {
		return MutationResult{}, err
	}
	entry := s.journal.Append(number, kind, delta.Abs(), description, "")

	degraded := false
	if err := s.commit(ctx); err != nil {
		s.logger.Warn("persisting mutation failed", "account", number, "transaction", entry.ID, "error", err)
		degraded = true
	}

	return MutationResult{NewBalance: balance, Transaction: entry, Degraded: degraded}, nil
}

// commit snapshots the ledger and journal and writes them to the store as
// one critical section, so snapshots land in the store in the order they
// were taken.
func (s *Service) commit(ctx context.Context) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	return s.store.Commit(ctx, s.ledger.Snapshot(), s.journal.Snapshot())
}

// TransferResult reports a completed transfer from the sender's view.
type TransferResult struct {
	NewBalance     decimal.Decimal
	OutTransaction journal.Transaction
	Degraded       bool
}

// Transfer atomically moves the amount between two accounts, records both
// sides in the journal, persists, and best-effort notifies the receiver's
// subscriber. On any failure both balances are left unchanged.
func (s *Service) Transfer(ctx context.Context, from, to string, amount decimal.Decimal, content string) (TransferResult, error) {
	if !amount.IsPositive() {
		return TransferResult{}, ErrInvalidAmount
	}
	if from == to {
		return TransferResult{}, ErrSameAccount
	}
	if !s.ledger.Exists(from) {
		return TransferResult{}, fmt.Errorf("source account %s: %w", from, account.ErrNotFound)
	}
	if !s.ledger.Exists(to) {
		return TransferResult{}, fmt.Errorf("destination account %s: %w", to, account.ErrNotFound)
	}

	unlock := s.locks.lockPair(from, to)
	defer unlock()

	balance, err := s.ledger.Balance(from)
	if err != nil {
		return TransferResult{}, err
	}
	if balance.LessThan(amount) {
		return TransferResult{}, account.ErrInsufficientFunds
	}

	fromBalance, err := s.ledger.ApplyDelta(from, amount.Neg())
	if err != nil {
		return TransferResult{}, err
	}
	toBalance, err := s.ledger.ApplyDelta(to, amount)
	if err != nil {
		// Unreachable while both serialization points are held; restore the
		// debit so a failure cannot leave a half-applied transfer.
		if _, rbErr := s.ledger.ApplyDelta(from, amount); rbErr != nil {
			s.logger.Error("transfer rollback failed", "from", from, "error", rbErr)
		}
		return TransferResult{}, err
	}

	outEntry := s.journal.Append(from, journal.TypeTransferOut, amount, content, to)
	s.journal.Append(to, journal.TypeTransferIn, amount, content, from)

	degraded := false
	if err := s.commit(ctx); err != nil {
		s.logger.Warn("persisting transfer failed", "from", from, "to", to, "transaction", outEntry.ID, "error", err)
		degraded = true
	}

	s.hub.Notify(to, notify.Event{
		FromAccount: from,
		Amount:      amount,
		Content:     content,
		NewBalance:  toBalance,
	})

	return TransferResult{NewBalance: fromBalance, OutTransaction: outEntry, Degraded: degraded}, nil
}

// History returns the account's transaction records, newest first.
func (s *Service) History(number string) ([]journal.Transaction, error) {
	if !s.ledger.Exists(number) {
		return nil, fmt.Errorf("account %s: %w", number, account.ErrNotFound)
	}
	return s.journal.History(number), nil
}

// Subscribe registers a notification sink for the account, replacing any
// prior one.
func (s *Service) Subscribe(number string, sink notify.Sink) error {
	if !s.ledger.Exists(number) {
		return fmt.Errorf("account %s: %w", number, account.ErrNotFound)
	}
	s.hub.Subscribe(number, sink)
	return nil
}

// Unsubscribe drops the account's notification sink, if any.
func (s *Service) Unsubscribe(number string) {
	s.hub.Unsubscribe(number)
}
