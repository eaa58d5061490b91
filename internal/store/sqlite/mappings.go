package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/cleared-dev/finscan/internal/model"
)

const mappingColumns = `id, name, account_id, columns, date_format, amount_mode,
	debit_column, credit_column, type_column, debit_keywords, skip_rows, decimal_comma`

// CreateCsvMapping stores a mapping configuration and returns its ID.
// Validation is the caller's job; the schema only rejects unknown amount modes.
func (s *Store) CreateCsvMapping(ctx context.Context, m model.CsvMapping) (int64, error) {
	cols, err := json.Marshal(m.Columns)
	if err != nil {
		return 0, fmt.Errorf("encoding columns: %w", err)
	}
	keywords := m.DebitKeywords
	if keywords == nil {
		keywords = []string{}
	}
	kw, err := json.Marshal(keywords)
	if err != nil {
		return 0, fmt.Errorf("encoding debit keywords: %w", err)
	}

	var id int64
	err = s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO csv_mappings (name, account_id, columns, date_format, amount_mode,
				debit_column, credit_column, type_column, debit_keywords, skip_rows, decimal_comma)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.Name, nullInt(m.AccountID), string(cols), m.DateFormat, string(m.AmountMode),
			m.DebitColumn, m.CreditColumn, m.TypeColumn, string(kw), m.SkipRows, m.DecimalComma)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("creating csv mapping %q: %w", m.Name, err)
	}
	return id, nil
}

// GetCsvMapping returns a mapping configuration by ID.
func (s *Store) GetCsvMapping(ctx context.Context, id int64) (model.CsvMapping, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mappingColumns+` FROM csv_mappings WHERE id = ?`, id)
	m, err := scanMapping(row)
	if err != nil {
		return model.CsvMapping{}, fmt.Errorf("getting csv mapping %d: %w", id, mapErr(err))
	}
	return m, nil
}

// ListCsvMappings returns all mappings ordered by ID.
func (s *Store) ListCsvMappings(ctx context.Context) ([]model.CsvMapping, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+mappingColumns+` FROM csv_mappings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing csv mappings: %w", mapErr(err))
	}
	defer rows.Close()

	var out []model.CsvMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning csv mapping: %w", mapErr(err))
		}
		out = append(out, m)
	}
	return out, mapErr(rows.Err())
}

func scanMapping(sc scanner) (model.CsvMapping, error) {
	var (
		m         model.CsvMapping
		accountID sql.NullInt64
		cols, kw  string
		mode      string
	)
	err := sc.Scan(&m.ID, &m.Name, &accountID, &cols, &m.DateFormat, &mode,
		&m.DebitColumn, &m.CreditColumn, &m.TypeColumn, &kw, &m.SkipRows, &m.DecimalComma)
	if err != nil {
		return model.CsvMapping{}, err
	}
	m.AccountID = accountID.Int64
	m.AmountMode = model.AmountMode(mode)
	if err := json.Unmarshal([]byte(cols), &m.Columns); err != nil {
		return model.CsvMapping{}, fmt.Errorf("decoding columns: %w", err)
	}
	if err := json.Unmarshal([]byte(kw), &m.DebitKeywords); err != nil {
		return model.CsvMapping{}, fmt.Errorf("decoding debit keywords: %w", err)
	}
	if len(m.DebitKeywords) == 0 {
		m.DebitKeywords = nil
	}
	return m, nil
}
