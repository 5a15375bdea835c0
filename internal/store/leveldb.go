package store

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/mekong-bank/mekong_bank/internal/account"
	"github.com/mekong-bank/mekong_bank/internal/identity"
	"github.com/mekong-bank/mekong_bank/internal/journal"
)

const (
	accountPrefix = "account:"
	userPrefix    = "user:"
	txnPrefix     = "txn:"
)

// syncWrite forces every batch to disk before the write returns, which is
// what makes the store write-through.
var syncWrite = &opt.WriteOptions{Sync: true}

// LevelDBStore keeps each record as a JSON value in an embedded LevelDB
// database, keyed by table prefix plus primary key. Transaction keys embed
// the time-derived ID, so iteration order matches append order.
type LevelDBStore struct {
	db     *leveldb.DB
	logger *slog.Logger
}

// NewLevelDB wraps an open LevelDB handle.
func NewLevelDB(db *leveldb.DB, logger *slog.Logger) *LevelDBStore {
	return &LevelDBStore{db: db, logger: logger}
}

// Load reads all three tables, skipping records that fail to decode.
func (s *LevelDBStore) Load(_ context.Context) (Snapshot, error) {
	var snap Snapshot

	if err := s.loadPrefix(accountPrefix, func(key string, value []byte) {
		var acc account.Account
		if err := json.Unmarshal(value, &acc); err != nil {
			s.logger.Warn("skipping malformed account record", "key", key, "error", err)
			return
		}
		snap.Accounts = append(snap.Accounts, acc)
	}); err != nil {
		return Snapshot{}, err
	}

	if err := s.loadPrefix(userPrefix, func(key string, value []byte) {
		var user identity.User
		if err := json.Unmarshal(value, &user); err != nil {
			s.logger.Warn("skipping malformed user record", "key", key, "error", err)
			return
		}
		snap.Users = append(snap.Users, user)
	}); err != nil {
		return Snapshot{}, err
	}

	if err := s.loadPrefix(txnPrefix, func(key string, value []byte) {
		var entry journal.Transaction
		if err := json.Unmarshal(value, &entry); err != nil {
			s.logger.Warn("skipping malformed transaction record", "key", key, "error", err)
			return
		}
		snap.Transactions = append(snap.Transactions, entry)
	}); err != nil {
		return Snapshot{}, err
	}

	return snap, nil
}

func (s *LevelDBStore) loadPrefix(prefix string, visit func(key string, value []byte)) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	for iter.Next() {
		value := make([]byte, len(iter.Value()))
		copy(value, iter.Value())
		visit(string(iter.Key()), value)
	}
	return iter.Error()
}

// SaveAccounts writes the full account table.
func (s *LevelDBStore) SaveAccounts(_ context.Context, accounts []account.Account) error {
	batch := new(leveldb.Batch)
	if err := putAccounts(batch, accounts); err != nil {
		return err
	}
	return s.db.Write(batch, syncWrite)
}

// SaveUsers writes the full user table.
func (s *LevelDBStore) SaveUsers(_ context.Context, users []identity.User) error {
	batch := new(leveldb.Batch)
	for _, user := range users {
		value, err := json.Marshal(user)
		if err != nil {
			return err
		}
		batch.Put([]byte(userPrefix+user.Username), value)
	}
	return s.db.Write(batch, syncWrite)
}

// SaveTransactions writes the full transaction log.
func (s *LevelDBStore) SaveTransactions(_ context.Context, transactions []journal.Transaction) error {
	batch := new(leveldb.Batch)
	if err := putTransactions(batch, transactions); err != nil {
		return err
	}
	return s.db.Write(batch, syncWrite)
}

// Commit writes accounts and transactions in a single synced batch.
func (s *LevelDBStore) Commit(_ context.Context, accounts []account.Account, transactions []journal.Transaction) error {
	batch := new(leveldb.Batch)
	if err := putAccounts(batch, accounts); err != nil {
		return err
	}
	if err := putTransactions(batch, transactions); err != nil {
		return err
	}
	return s.db.Write(batch, syncWrite)
}

// Close releases the underlying database.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func putAccounts(batch *leveldb.Batch, accounts []account.Account) error {
	for _, acc := range accounts {
		value, err := json.Marshal(acc)
		if err != nil {
			return err
		}
		batch.Put([]byte(accountPrefix+acc.Number), value)
	}
	return nil
}

func putTransactions(batch *leveldb.Batch, transactions []journal.Transaction) error {
	for _, entry := range transactions {
		value, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		batch.Put([]byte(txnPrefix+entry.ID), value)
	}
	return nil
}
