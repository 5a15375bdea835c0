package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/mekong-bank/mekong_bank/internal/account"
	"github.com/mekong-bank/mekong_bank/internal/identity"
	"github.com/mekong-bank/mekong_bank/internal/journal"
	"github.com/mekong-bank/mekong_bank/internal/logging"
)

func openTestStore(t *testing.T, dir string) *LevelDBStore {
	t.Helper()
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	return NewLevelDB(db, logging.Discard())
}

func TestLoadEmptyStore(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Accounts) != 0 || len(snap.Users) != 0 || len(snap.Transactions) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestRoundTripSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := openTestStore(t, dir)
	accounts := []account.Account{
		{Number: "01234", Balance: decimal.NewFromInt(5000)},
		{Number: "12345", Balance: decimal.NewFromInt(10000)},
	}
	users := []identity.User{
		{Username: "alice", PasswordHash: []byte("hash"), AccountNumber: "10000", FullName: "Alice A"},
	}
	transactions := []journal.Transaction{
		{ID: "TXN1700000000000", AccountNumber: "01234", Type: journal.TypeDeposit, Amount: decimal.NewFromInt(100), Description: "Cash deposit", Timestamp: time.UnixMilli(1700000000000).UTC()},
	}

	if err := s.SaveUsers(ctx, users); err != nil {
		t.Fatalf("save users: %v", err)
	}
	if err := s.Commit(ctx, accounts, transactions); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openTestStore(t, dir)
	defer reopened.Close()

	snap, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if len(snap.Accounts) != 2 || len(snap.Users) != 1 || len(snap.Transactions) != 1 {
		t.Fatalf("unexpected snapshot sizes: %d/%d/%d", len(snap.Accounts), len(snap.Users), len(snap.Transactions))
	}
	for _, acc := range snap.Accounts {
		if acc.Number == "01234" && !acc.Balance.Equal(decimal.NewFromInt(5000)) {
			t.Fatalf("balance not preserved: %s", acc.Balance)
		}
	}
	if snap.Transactions[0].ID != "TXN1700000000000" || !snap.Transactions[0].Timestamp.Equal(transactions[0].Timestamp) {
		t.Fatalf("transaction not preserved: %+v", snap.Transactions[0])
	}
}

func TestLoadSkipsMalformedRecords(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	if err := db.Put([]byte("account:garbage"), []byte("{not json"), nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	s := NewLevelDB(db, logging.Discard())
	defer s.Close()

	if err := s.SaveAccounts(ctx, []account.Account{{Number: "01234", Balance: decimal.NewFromInt(5000)}}); err != nil {
		t.Fatalf("save accounts: %v", err)
	}

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Accounts) != 1 || snap.Accounts[0].Number != "01234" {
		t.Fatalf("expected malformed record to be skipped, got %+v", snap.Accounts)
	}
}

func TestSaveAccountsRewritesBalances(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()
	ctx := context.Background()

	if err := s.SaveAccounts(ctx, []account.Account{{Number: "01234", Balance: decimal.NewFromInt(100)}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveAccounts(ctx, []account.Account{{Number: "01234", Balance: decimal.NewFromInt(250)}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Accounts) != 1 || !snap.Accounts[0].Balance.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("unexpected accounts: %+v", snap.Accounts)
	}
}
