package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cleared-dev/finscan/internal/model"
)

const recurringColumns = `id, merchant, category_id, average_cents, frequency_days, frequency_type,
	confidence, next_expected_date, is_active, occurrences, first_seen, last_seen`

// UpsertRecurringExpense inserts or updates the recurring expense keyed by
// merchant and re-links the merchant's transactions, all in one database
// transaction. Concurrent upserts of one merchant resolve last-writer-wins.
func (s *Store) UpsertRecurringExpense(ctx context.Context, re model.RecurringExpense) (int64, error) {
	var id int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO recurring_expenses (merchant, category_id, average_cents, frequency_days,
				frequency_type, confidence, next_expected_date, is_active, occurrences, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(merchant) DO UPDATE SET
				category_id = excluded.category_id,
				average_cents = excluded.average_cents,
				frequency_days = excluded.frequency_days,
				frequency_type = excluded.frequency_type,
				confidence = excluded.confidence,
				next_expected_date = excluded.next_expected_date,
				is_active = excluded.is_active,
				occurrences = excluded.occurrences,
				first_seen = excluded.first_seen,
				last_seen = excluded.last_seen,
				updated_at = CURRENT_TIMESTAMP
			RETURNING id`,
			re.Merchant, nullInt(re.CategoryID), toCents(re.AverageAmount), re.FrequencyDays,
			string(re.FrequencyType), re.Confidence, formatDate(re.NextExpectedDate), re.IsActive,
			re.Occurrences, formatDate(re.FirstSeen), formatDate(re.LastSeen)).Scan(&id)
		if err != nil {
			return err
		}

		link := sql.NullInt64{}
		if re.IsActive {
			link = sql.NullInt64{Int64: id, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE transactions SET is_recurring = ?, recurring_id = ?
			WHERE merchant = ?`, re.IsActive, link, re.Merchant)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("upserting recurring expense %q: %w", re.Merchant, err)
	}
	return id, nil
}

// GetRecurringExpense returns the recurring expense for a merchant.
func (s *Store) GetRecurringExpense(ctx context.Context, merchant string) (model.RecurringExpense, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recurringColumns+` FROM recurring_expenses WHERE merchant = ?`, merchant)
	re, err := scanRecurring(row)
	if err != nil {
		return model.RecurringExpense{}, fmt.Errorf("getting recurring expense %q: %w", merchant, mapErr(err))
	}
	return re, nil
}

// ListRecurringExpenses returns recurring expenses ordered by merchant.
func (s *Store) ListRecurringExpenses(ctx context.Context, activeOnly bool) ([]model.RecurringExpense, error) {
	query := `SELECT ` + recurringColumns + ` FROM recurring_expenses`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY merchant`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing recurring expenses: %w", mapErr(err))
	}
	defer rows.Close()

	var out []model.RecurringExpense
	for rows.Next() {
		re, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning recurring expense: %w", mapErr(err))
		}
		out = append(out, re)
	}
	return out, mapErr(rows.Err())
}

func scanRecurring(sc scanner) (model.RecurringExpense, error) {
	var (
		re                    model.RecurringExpense
		category              sql.NullInt64
		cents                 int64
		freqType              string
		next, first, lastSeen string
	)
	err := sc.Scan(&re.ID, &re.Merchant, &category, &cents, &re.FrequencyDays, &freqType,
		&re.Confidence, &next, &re.IsActive, &re.Occurrences, &first, &lastSeen)
	if err != nil {
		return model.RecurringExpense{}, err
	}
	re.CategoryID = category.Int64
	re.AverageAmount = fromCents(cents)
	re.FrequencyType = model.FrequencyType(freqType)
	if re.NextExpectedDate, err = parseDate(next); err != nil {
		return model.RecurringExpense{}, err
	}
	if re.FirstSeen, err = parseDate(first); err != nil {
		return model.RecurringExpense{}, err
	}
	if re.LastSeen, err = parseDate(lastSeen); err != nil {
		return model.RecurringExpense{}, err
	}
	return re, nil
}
