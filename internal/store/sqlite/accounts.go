package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cleared-dev/finscan/internal/model"
	"github.com/cleared-dev/finscan/internal/store"
)

// CreateAccount inserts an account and returns its ID. The balance always starts at zero.
func (s *Store) CreateAccount(ctx context.Context, a model.Account) (int64, error) {
	var id int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (name, account_type, institution, last_four)
			VALUES (?, ?, ?, ?)`,
			a.Name, string(a.Type), a.Institution, a.LastFour)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("creating account: %w", err)
	}
	return id, nil
}

// GetAccount returns an account by ID.
func (s *Store) GetAccount(ctx context.Context, id int64) (model.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, account_type, institution, last_four, balance_cents
		FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		return model.Account{}, fmt.Errorf("getting account %d: %w", id, mapErr(err))
	}
	return a, nil
}

// ListAccounts returns all accounts ordered by ID.
func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, account_type, institution, last_four, balance_cents
		FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", mapErr(err))
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", mapErr(err))
		}
		out = append(out, a)
	}
	return out, mapErr(rows.Err())
}

// DeleteAccount removes an account together with its transactions and mappings.
func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	err := s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting account %d: %w", id, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(sc scanner) (model.Account, error) {
	var (
		a       model.Account
		acctTyp string
		cents   int64
	)
	if err := sc.Scan(&a.ID, &a.Name, &acctTyp, &a.Institution, &a.LastFour, &cents); err != nil {
		return model.Account{}, err
	}
	a.Type = model.AccountType(acctTyp)
	a.Balance = fromCents(cents)
	return a, nil
}
