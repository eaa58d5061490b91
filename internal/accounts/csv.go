package accounts

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/finscan/internal/model"
)

const (
	numFields      = 6
	colID          = 0
	colName        = 1
	colType        = 2
	colInstitution = 3
	colLastFour    = 4
	colBalance     = 5
)

var header = []string{"account_id", "name", "type", "institution", "last_four", "balance"}

// ReadAccounts reads an accounts CSV as written by WriteAccounts. IDs and
// balances in the file are ignored on create.
func ReadAccounts(r io.Reader) ([]model.Account, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading accounts CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	var accounts []model.Account
	for i, rec := range records[1:] {
		acct, err := UnmarshalAccount(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// WriteAccounts writes accounts as CSV.
func WriteAccounts(w io.Writer, accounts []model.Account) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, acct := range accounts {
		if err := cw.Write(MarshalAccount(acct)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalAccount converts an Account to a CSV row.
func MarshalAccount(acct model.Account) []string {
	row := make([]string, numFields)
	if acct.ID != 0 {
		row[colID] = strconv.FormatInt(acct.ID, 10)
	}
	row[colName] = acct.Name
	row[colType] = string(acct.Type)
	row[colInstitution] = acct.Institution
	row[colLastFour] = acct.LastFour
	row[colBalance] = acct.Balance.StringFixed(2)
	return row
}

// UnmarshalAccount converts a CSV row to an Account.
func UnmarshalAccount(record []string) (model.Account, error) {
	if len(record) != numFields {
		return model.Account{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	var (
		id  int64
		err error
	)
	if record[colID] != "" {
		id, err = strconv.ParseInt(record[colID], 10, 64)
		if err != nil {
			return model.Account{}, fmt.Errorf("parsing account_id %q: %w", record[colID], err)
		}
	}

	balance := decimal.Zero
	if record[colBalance] != "" {
		balance, err = decimal.NewFromString(record[colBalance])
		if err != nil {
			return model.Account{}, fmt.Errorf("parsing balance %q: %w", record[colBalance], err)
		}
	}

	return model.Account{
		ID:          id,
		Name:        record[colName],
		Type:        model.AccountType(record[colType]),
		Institution: record[colInstitution],
		LastFour:    record[colLastFour],
		Balance:     balance,
	}, nil
}
