package bank

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mekong-bank/mekong_bank/internal/account"
	"github.com/mekong-bank/mekong_bank/internal/identity"
	"github.com/mekong-bank/mekong_bank/internal/journal"
	"github.com/mekong-bank/mekong_bank/internal/logging"
	"github.com/mekong-bank/mekong_bank/internal/notify"
	"github.com/mekong-bank/mekong_bank/internal/store"
)

type recordingSink struct {
	events chan notify.Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan notify.Event, 8)}
}

func (s *recordingSink) Deliver(_ context.Context, event notify.Event) error {
	s.events <- event
	return nil
}

func newTestService(t *testing.T, st store.Store) *Service {
	t.Helper()
	hub := notify.NewHub(logging.Discard(), time.Second)
	svc, err := NewService(context.Background(), st, hub, logging.Discard())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestBootstrapSeedsAccountsOnce(t *testing.T) {
	st := store.NewMemory()
	svc := newTestService(t, st)

	balance, err := svc.QueryAccount("01234")
	if err != nil {
		t.Fatalf("query seeded account: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("expected seed balance 5000, got %s", balance)
	}

	// A second service over the same store must not reseed.
	if _, err := svc.Deposit(context.Background(), "01234", decimal.NewFromInt(1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	again := newTestService(t, st)
	balance, _ = again.QueryAccount("01234")
	if !balance.Equal(decimal.NewFromInt(5001)) {
		t.Fatalf("restart reseeded the ledger: %s", balance)
	}
}

func TestRegisterAndLoginScenario(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx := context.Background()

	res, err := svc.Register(ctx, "alice", "pw", "Alice A")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(res.AccountNumber) != 5 || res.AccountNumber == "01234" || res.AccountNumber == "12345" {
		t.Fatalf("unexpected account number %q", res.AccountNumber)
	}

	login, err := svc.Login("alice", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.AccountNumber != res.AccountNumber || login.FullName != "Alice A" {
		t.Fatalf("unexpected login result: %+v", login)
	}

	if _, err := svc.Login("alice", "wrong"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	balance, err := svc.QueryAccount(res.AccountNumber)
	if err != nil {
		t.Fatalf("query new account: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("new account balance should be zero, got %s", balance)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx := context.Background()

	cases := []struct{ username, password, fullName string }{
		{"", "pw", "Name"},
		{"  ", "pw", "Name"},
		{"bob", "", "Name"},
		{"bob", "pw", ""},
	}
	for _, tc := range cases {
		if _, err := svc.Register(ctx, tc.username, tc.password, tc.fullName); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", tc, err)
		}
	}

	if _, err := svc.Register(ctx, "alice", "pw", "Alice A"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "pw2", "Other"); !errors.Is(err, identity.ErrUsernameTaken) {
		t.Fatalf("expected username taken, got %v", err)
	}
}

func TestWithdrawInsufficientFundsLeavesBalance(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx := context.Background()

	if _, err := svc.Withdraw(ctx, "01234", decimal.NewFromInt(6000)); !errors.Is(err, account.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	balance, _ := svc.QueryAccount("01234")
	if !balance.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("balance changed after failed withdrawal: %s", balance)
	}
}

func TestInvalidAmountsRejected(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx := context.Background()

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-10)} {
		if _, err := svc.Deposit(ctx, "01234", amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("deposit %s: expected invalid amount, got %v", amount, err)
		}
		if _, err := svc.Withdraw(ctx, "01234", amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("withdraw %s: expected invalid amount, got %v", amount, err)
		}
		if _, err := svc.Transfer(ctx, "01234", "12345", amount, "x"); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("transfer %s: expected invalid amount, got %v", amount, err)
		}
	}
}

func TestTransferConservesMoneyAndNotifies(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx := context.Background()

	sink := newRecordingSink()
	if err := svc.Subscribe("12345", sink); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	before1, _ := svc.QueryAccount("01234")
	before2, _ := svc.QueryAccount("12345")

	res, err := svc.Transfer(ctx, "01234", "12345", decimal.NewFromInt(1000), "rent")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !res.NewBalance.Equal(decimal.NewFromInt(4000)) {
		t.Fatalf("expected sender balance 4000, got %s", res.NewBalance)
	}

	after1, _ := svc.QueryAccount("01234")
	after2, _ := svc.QueryAccount("12345")
	if !before1.Add(before2).Equal(after1.Add(after2)) {
		t.Fatalf("money not conserved: %s+%s vs %s+%s", before1, before2, after1, after2)
	}
	if !after2.Equal(decimal.NewFromInt(11000)) {
		t.Fatalf("expected receiver balance 11000, got %s", after2)
	}

	select {
	case ev := <-sink.events:
		if ev.FromAccount != "01234" || !ev.Amount.Equal(decimal.NewFromInt(1000)) || ev.Content != "rent" {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if !ev.NewBalance.Equal(decimal.NewFromInt(11000)) {
			t.Fatalf("unexpected event balance: %s", ev.NewBalance)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber received no event")
	}

	select {
	case ev := <-sink.events:
		t.Fatalf("subscriber received extra event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTransferFailuresLeaveStateUntouched(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx := context.Background()

	if _, err := svc.Transfer(ctx, "01234", "01234", decimal.NewFromInt(10), "x"); !errors.Is(err, ErrSameAccount) {
		t.Fatalf("expected same account error, got %v", err)
	}
	if _, err := svc.Transfer(ctx, "99999", "12345", decimal.NewFromInt(10), "x"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected not found for source, got %v", err)
	}
	if _, err := svc.Transfer(ctx, "01234", "99999", decimal.NewFromInt(10), "x"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected not found for destination, got %v", err)
	}
	if _, err := svc.Transfer(ctx, "01234", "12345", decimal.NewFromInt(6000), "x"); !errors.Is(err, account.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	b1, _ := svc.QueryAccount("01234")
	b2, _ := svc.QueryAccount("12345")
	if !b1.Equal(decimal.NewFromInt(5000)) || !b2.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("failed transfers mutated balances: %s / %s", b1, b2)
	}
	if history, _ := svc.History("01234"); len(history) != 0 {
		t.Fatalf("failed transfers left journal entries: %+v", history)
	}
}

func TestHistoryOrdering(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx := context.Background()

	res, err := svc.Register(ctx, "alice", "pw", "Alice A")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	number := res.AccountNumber

	svc.Deposit(ctx, number, decimal.NewFromInt(100))
	svc.Withdraw(ctx, number, decimal.NewFromInt(30))
	svc.Deposit(ctx, number, decimal.NewFromInt(50))

	history, err := svc.History(number)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 records, got %d", len(history))
	}
	if history[0].Type != journal.TypeDeposit || !history[0].Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected newest record: %+v", history[0])
	}
	if history[1].Type != journal.TypeWithdraw || !history[1].Amount.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("unexpected middle record: %+v", history[1])
	}
	if history[2].Type != journal.TypeDeposit || !history[2].Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected oldest record: %+v", history[2])
	}
}

func TestConcurrentDepositsExactSum(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx := context.Background()

	const workers = 25
	amount := decimal.NewFromInt(40)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Deposit(ctx, "01234", amount); err != nil {
				t.Errorf("deposit: %v", err)
			}
		}()
	}
	wg.Wait()

	balance, _ := svc.QueryAccount("01234")
	want := decimal.NewFromInt(5000 + workers*40)
	if !balance.Equal(want) {
		t.Fatalf("expected %s, got %s", want, balance)
	}
}

func TestOpposingTransfersDoNotDeadlock(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx := context.Background()

	const rounds = 50
	amount := decimal.NewFromInt(10)

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if _, err := svc.Transfer(ctx, "01234", "12345", amount, "a-to-b"); err != nil {
					t.Errorf("a-to-b: %v", err)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if _, err := svc.Transfer(ctx, "12345", "01234", amount, "b-to-a"); err != nil {
					t.Errorf("b-to-a: %v", err)
				}
			}
		}()
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("opposing transfers deadlocked")
	}

	b1, _ := svc.QueryAccount("01234")
	b2, _ := svc.QueryAccount("12345")
	if !b1.Equal(decimal.NewFromInt(5000)) || !b2.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("balances drifted: %s / %s", b1, b2)
	}
}

func TestRestartRestoresStateAndAllocator(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	svc := newTestService(t, st)
	reg, err := svc.Register(ctx, "alice", "pw", "Alice A")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	svc.Deposit(ctx, reg.AccountNumber, decimal.NewFromInt(700))
	svc.Transfer(ctx, reg.AccountNumber, "12345", decimal.NewFromInt(200), "rent")

	wantBalance, _ := svc.QueryAccount(reg.AccountNumber)
	wantHistory, _ := svc.History(reg.AccountNumber)

	restarted := newTestService(t, st)

	gotBalance, err := restarted.QueryAccount(reg.AccountNumber)
	if err != nil {
		t.Fatalf("query after restart: %v", err)
	}
	if !gotBalance.Equal(wantBalance) {
		t.Fatalf("balance not restored: want %s got %s", wantBalance, gotBalance)
	}

	gotHistory, err := restarted.History(reg.AccountNumber)
	if err != nil {
		t.Fatalf("history after restart: %v", err)
	}
	if len(gotHistory) != len(wantHistory) {
		t.Fatalf("history length mismatch: want %d got %d", len(wantHistory), len(gotHistory))
	}
	for i := range gotHistory {
		if gotHistory[i].ID != wantHistory[i].ID || gotHistory[i].Type != wantHistory[i].Type ||
			!gotHistory[i].Amount.Equal(wantHistory[i].Amount) {
			t.Fatalf("history record %d mismatch: want %+v got %+v", i, wantHistory[i], gotHistory[i])
		}
	}

	// Logins survive the restart too.
	if _, err := restarted.Login("alice", "pw"); err != nil {
		t.Fatalf("login after restart: %v", err)
	}

	// The allocator must not reissue the persisted number.
	next, err := restarted.Register(ctx, "bob", "pw", "Bob B")
	if err != nil {
		t.Fatalf("register after restart: %v", err)
	}
	if next.AccountNumber == reg.AccountNumber {
		t.Fatalf("allocator reissued %s after restart", reg.AccountNumber)
	}
}

func TestPersistenceFailureDegradesButSucceeds(t *testing.T) {
	st := store.NewMemory()
	svc := newTestService(t, st)
	ctx := context.Background()

	st.FailWrites(true)

	res, err := svc.Deposit(ctx, "01234", decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("deposit should succeed in-memory: %v", err)
	}
	if !res.Degraded {
		t.Fatalf("expected degraded result when writes fail")
	}
	if !res.NewBalance.Equal(decimal.NewFromInt(5100)) {
		t.Fatalf("in-memory mutation missing: %s", res.NewBalance)
	}

	balance, _ := svc.QueryAccount("01234")
	if !balance.Equal(decimal.NewFromInt(5100)) {
		t.Fatalf("in-memory state rolled back: %s", balance)
	}
}

// stallingStore blocks the first Commit between snapshot and store write,
// exposing whether a concurrent operation's newer persisted state can be
// overwritten by the stalled operation's older snapshot.
type stallingStore struct {
	*store.MemoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStallingStore() *stallingStore {
	return &stallingStore{
		MemoryStore: store.NewMemory(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (s *stallingStore) Commit(ctx context.Context, accounts []account.Account, transactions []journal.Transaction) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.MemoryStore.Commit(ctx, accounts, transactions)
}

func TestStalledCommitCannotClobberNewerWrite(t *testing.T) {
	st := newStallingStore()
	svc := newTestService(t, st)
	ctx := context.Background()

	depositDone := make(chan struct{})
	go func() {
		defer close(depositDone)
		if _, err := svc.Deposit(ctx, "01234", decimal.NewFromInt(100)); err != nil {
			t.Errorf("deposit: %v", err)
		}
	}()
	<-st.entered

	// The deposit is stalled inside its store write. A withdrawal on a
	// different account must not be able to persist and then be undone
	// when the stalled write lands.
	withdrawDone := make(chan struct{})
	go func() {
		defer close(withdrawDone)
		if _, err := svc.Withdraw(ctx, "12345", decimal.NewFromInt(500)); err != nil {
			t.Errorf("withdraw: %v", err)
		}
	}()

	// Wait for the withdrawal to apply in memory before letting the
	// stalled write proceed.
	deadline := time.After(5 * time.Second)
	for {
		balance, err := svc.QueryAccount("12345")
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if balance.Equal(decimal.NewFromInt(9500)) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("withdrawal never applied, balance %s", balance)
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(st.release)
	<-depositDone
	<-withdrawDone

	restarted := newTestService(t, st)
	b1, _ := restarted.QueryAccount("01234")
	b2, _ := restarted.QueryAccount("12345")
	if !b1.Equal(decimal.NewFromInt(5100)) {
		t.Fatalf("deposit lost after restart: %s", b1)
	}
	if !b2.Equal(decimal.NewFromInt(9500)) {
		t.Fatalf("withdrawal lost after restart: %s", b2)
	}
}

func TestSubscribeUnknownAccount(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	if err := svc.Subscribe("99999", newRecordingSink()); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUnsubscribeTwiceIsNoError(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	if err := svc.Subscribe("12345", newRecordingSink()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	svc.Unsubscribe("12345")
	svc.Unsubscribe("12345")
}
