package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Seed balances for the demo accounts.
const (
	seedSourceBalance = 1000
	seedDestBalance   = 250
)

// Account is a ledger account row. Balance is an opaque signed integer;
// currency semantics are the caller's concern.
type Account struct {
	ID      uuid.UUID
	Balance int64
}

// Querier is the session surface ledger operations need. *sql.Tx,
// *sql.DB and dbresolver.DB all satisfy it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TransferFunds moves amount from one account to another inside the
// caller's transaction. When the source balance cannot cover the amount it
// returns *InsufficientFundsError and writes nothing. The balance check and
// the two updates are not atomic on their own; the enclosing transaction's
// isolation makes them so.
func TransferFunds(ctx context.Context, q Querier, from, to uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %d", amount)
	}

	var balance int64
	if err := q.QueryRowContext(ctx, "SELECT balance FROM accounts WHERE id = $1", from).Scan(&balance); err != nil {
		return fmt.Errorf("read balance of %s: %w", from, err)
	}

	if balance < amount {
		return &InsufficientFundsError{AccountID: from, Available: balance, Requested: amount}
	}

	if _, err := q.ExecContext(ctx, "UPDATE accounts SET balance = balance - $1 WHERE id = $2", amount, from); err != nil {
		return fmt.Errorf("debit %s: %w", from, err)
	}

	if _, err := q.ExecContext(ctx, "UPDATE accounts SET balance = balance + $1 WHERE id = $2", amount, to); err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}

	return nil
}

// CreateAccounts seeds two fresh demo accounts, returning the source
// account (balance 1000) first and the destination (balance 250) second.
// UPSERT keeps reruns against a dirty table harmless.
func CreateAccounts(ctx context.Context, q Querier) (from, to uuid.UUID, err error) {
	from = uuid.New()
	to = uuid.New()

	_, err = q.ExecContext(ctx,
		"UPSERT INTO accounts (id, balance) VALUES ($1, $2), ($3, $4)",
		from, int64(seedSourceBalance), to, int64(seedDestBalance),
	)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("seed accounts: %w", err)
	}

	return from, to, nil
}

// Balances lists every account ordered by id.
func Balances(ctx context.Context, q Querier) ([]Account, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, balance FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var accounts []Account

	for rows.Next() {
		var account Account
		if err := rows.Scan(&account.ID, &account.Balance); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}

		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return accounts, nil
}

// DeleteAccounts wipes the accounts table.
func DeleteAccounts(ctx context.Context, q Querier) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM accounts"); err != nil {
		return fmt.Errorf("delete accounts: %w", err)
	}

	return nil
}
