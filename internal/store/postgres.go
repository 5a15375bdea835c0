package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mekong-bank/mekong_bank/internal/account"
	"github.com/mekong-bank/mekong_bank/internal/identity"
	"github.com/mekong-bank/mekong_bank/internal/journal"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    account_number TEXT PRIMARY KEY,
    balance        NUMERIC NOT NULL
);
CREATE TABLE IF NOT EXISTS users (
    username       TEXT PRIMARY KEY,
    password_hash  BYTEA NOT NULL,
    account_number TEXT NOT NULL,
    full_name      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS transactions (
    transaction_id  TEXT PRIMARY KEY,
    account_number  TEXT NOT NULL,
    type            TEXT NOT NULL,
    amount          NUMERIC NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    related_account TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL
);`

// PostgresStore persists the three tables in PostgreSQL. Saves upsert the
// current snapshot; the transaction log is append-only so existing rows are
// left untouched.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres builds a Postgres-backed store and ensures the schema exists.
func NewPostgres(ctx context.Context, db *pgxpool.Pool, logger *slog.Logger) (*PostgresStore, error) {
	if _, err := db.Exec(ctx, schema); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

// Load reads all three tables, skipping rows with unparseable amounts.
func (s *PostgresStore) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	rows, err := s.db.Query(ctx, `SELECT account_number, balance::text FROM accounts`)
	if err != nil {
		return Snapshot{}, err
	}
	for rows.Next() {
		var number, balance string
		if err := rows.Scan(&number, &balance); err != nil {
			rows.Close()
			return Snapshot{}, err
		}
		amount, err := decimal.NewFromString(balance)
		if err != nil {
			s.logger.Warn("skipping malformed account row", "account", number, "error", err)
			continue
		}
		snap.Accounts = append(snap.Accounts, account.Account{Number: number, Balance: amount})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	rows, err = s.db.Query(ctx, `SELECT username, password_hash, account_number, full_name FROM users`)
	if err != nil {
		return Snapshot{}, err
	}
	for rows.Next() {
		var user identity.User
		if err := rows.Scan(&user.Username, &user.PasswordHash, &user.AccountNumber, &user.FullName); err != nil {
			rows.Close()
			return Snapshot{}, err
		}
		snap.Users = append(snap.Users, user)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	rows, err = s.db.Query(ctx, `SELECT transaction_id, account_number, type, amount::text, description, related_account, created_at
        FROM transactions ORDER BY created_at`)
	if err != nil {
		return Snapshot{}, err
	}
	for rows.Next() {
		var (
			entry     journal.Transaction
			kind      string
			amount    string
			createdAt time.Time
		)
		if err := rows.Scan(&entry.ID, &entry.AccountNumber, &kind, &amount, &entry.Description, &entry.RelatedAccount, &createdAt); err != nil {
			rows.Close()
			return Snapshot{}, err
		}
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			s.logger.Warn("skipping malformed transaction row", "transaction", entry.ID, "error", err)
			continue
		}
		entry.Type = journal.Type(kind)
		entry.Amount = parsed
		entry.Timestamp = createdAt.UTC()
		snap.Transactions = append(snap.Transactions, entry)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	return snap, nil
}

// SaveAccounts upserts the full account snapshot in one transaction.
func (s *PostgresStore) SaveAccounts(ctx context.Context, accounts []account.Account) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return upsertAccounts(ctx, tx, accounts)
	})
}

// SaveUsers upserts the full user snapshot in one transaction.
func (s *PostgresStore) SaveUsers(ctx context.Context, users []identity.User) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, user := range users {
			if _, err := tx.Exec(ctx, `INSERT INTO users (username, password_hash, account_number, full_name)
                VALUES ($1, $2, $3, $4)
                ON CONFLICT (username) DO UPDATE SET password_hash = $2, account_number = $3, full_name = $4`,
				user.Username, user.PasswordHash, user.AccountNumber, user.FullName); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveTransactions appends any log entries not yet on disk.
func (s *PostgresStore) SaveTransactions(ctx context.Context, transactions []journal.Transaction) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return insertTransactions(ctx, tx, transactions)
	})
}

// Commit writes accounts and the transaction log in one database transaction.
func (s *PostgresStore) Commit(ctx context.Context, accounts []account.Account, transactions []journal.Transaction) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := upsertAccounts(ctx, tx, accounts); err != nil {
			return err
		}
		return insertTransactions(ctx, tx, transactions)
	})
}

// Close is a no-op; the pool is owned and closed by the caller.
func (s *PostgresStore) Close() error {
	return nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func upsertAccounts(ctx context.Context, tx pgx.Tx, accounts []account.Account) error {
	for _, acc := range accounts {
		if _, err := tx.Exec(ctx, `INSERT INTO accounts (account_number, balance) VALUES ($1, $2)
            ON CONFLICT (account_number) DO UPDATE SET balance = $2`,
			acc.Number, acc.Balance.String()); err != nil {
			return err
		}
	}
	return nil
}

func insertTransactions(ctx context.Context, tx pgx.Tx, transactions []journal.Transaction) error {
	for _, entry := range transactions {
		if _, err := tx.Exec(ctx, `INSERT INTO transactions (transaction_id, account_number, type, amount, description, related_account, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
            ON CONFLICT (transaction_id) DO NOTHING`,
			entry.ID, entry.AccountNumber, string(entry.Type), entry.Amount.String(), entry.Description, entry.RelatedAccount, entry.Timestamp.UTC()); err != nil {
			return err
		}
	}
	return nil
}
