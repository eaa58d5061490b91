package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cleared-dev/finscan/internal/model"
	"github.com/cleared-dev/finscan/internal/store"
)

const txnColumns = `id, account_id, category_id, date, amount_cents, description, raw_description,
	fingerprint, merchant, is_recurring, recurring_id, notes`

// InsertTransaction persists one transaction and posts its amount to the owning
// account's balance in the same database transaction. A fingerprint that already
// exists yields store.ErrDuplicate; an unknown account or category yields
// store.ErrConstraint.
func (s *Store) InsertTransaction(ctx context.Context, t model.Transaction) (int64, error) {
	cents := toCents(t.Amount)
	var id int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (account_id, category_id, date, amount_cents, description,
				raw_description, fingerprint, merchant, is_recurring, recurring_id, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.AccountID, nullInt(t.CategoryID), formatDate(t.Date), cents, t.Description,
			t.RawDescription, nullString(t.Fingerprint), t.Merchant, t.IsRecurring, nullInt(t.RecurringID), t.Notes)
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		return postBalance(ctx, tx, t.AccountID, cents)
	})
	if err != nil {
		return 0, fmt.Errorf("inserting transaction: %w", err)
	}
	return id, nil
}

// DeleteTransaction removes a transaction and reverses its balance posting.
func (s *Store) DeleteTransaction(ctx context.Context, id int64) error {
	err := s.write(ctx, func(tx *sql.Tx) error {
		var accountID, cents int64
		err := tx.QueryRowContext(ctx, `SELECT account_id, amount_cents FROM transactions WHERE id = ?`, id).
			Scan(&accountID, &cents)
		if err == sql.ErrNoRows {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
			return err
		}
		return postBalance(ctx, tx, accountID, -cents)
	})
	if err != nil {
		return fmt.Errorf("deleting transaction %d: %w", id, err)
	}
	return nil
}

func postBalance(ctx context.Context, tx *sql.Tx, accountID, cents int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts SET balance_cents = balance_cents + ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, cents, accountID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: account %d does not exist", store.ErrConstraint, accountID)
	}
	return nil
}

// QueryTransactionsByMerchant returns a merchant's transactions ordered by date,
// read in a single statement so the result is a consistent snapshot.
func (s *Store) QueryTransactionsByMerchant(ctx context.Context, merchant string) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+txnColumns+`
		FROM transactions WHERE merchant = ? ORDER BY date, id`, merchant)
	if err != nil {
		return nil, fmt.Errorf("querying transactions for %q: %w", merchant, mapErr(err))
	}
	return collectTransactions(rows)
}

// ListTransactions returns an account's transactions ordered by date.
func (s *Store) ListTransactions(ctx context.Context, accountID int64) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+txnColumns+`
		FROM transactions WHERE account_id = ? ORDER BY date, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing transactions for account %d: %w", accountID, mapErr(err))
	}
	return collectTransactions(rows)
}

// ListMerchants returns every distinct non-empty merchant key.
func (s *Store) ListMerchants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT merchant FROM transactions WHERE merchant != '' ORDER BY merchant`)
	if err != nil {
		return nil, fmt.Errorf("listing merchants: %w", mapErr(err))
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scanning merchant: %w", mapErr(err))
		}
		out = append(out, m)
	}
	return out, mapErr(rows.Err())
}

// CountTransactions returns how many transactions an account holds.
func (s *Store) CountTransactions(ctx context.Context, accountID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE account_id = ?`, accountID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting transactions: %w", mapErr(err))
	}
	return n, nil
}

func collectTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var (
			t           model.Transaction
			category    sql.NullInt64
			recurring   sql.NullInt64
			fingerprint sql.NullString
			date        string
			cents       int64
		)
		err := rows.Scan(&t.ID, &t.AccountID, &category, &date, &cents, &t.Description, &t.RawDescription,
			&fingerprint, &t.Merchant, &t.IsRecurring, &recurring, &t.Notes)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", mapErr(err))
		}
		if t.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		t.Amount = fromCents(cents)
		t.CategoryID = category.Int64
		t.RecurringID = recurring.Int64
		t.Fingerprint = fingerprint.String
		out = append(out, t)
	}
	return out, mapErr(rows.Err())
}
