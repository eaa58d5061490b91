package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CanonicalRecord is a bank row normalized to the internal field set,
// independent of the source CSV layout.
type CanonicalRecord struct {
	Date           time.Time
	Amount         decimal.Decimal // positive = inflow, negative = outflow
	Description    string
	RawDescription string
	MerchantHint   string
}

// Transaction is a persisted ledger row.
type Transaction struct {
	ID             int64
	AccountID      int64
	CategoryID     int64 // 0 = uncategorized
	Date           time.Time
	Amount         decimal.Decimal // positive = inflow, negative = outflow
	Description    string
	RawDescription string
	Fingerprint    string // empty for manually entered rows
	Merchant       string
	IsRecurring    bool
	RecurringID    int64 // 0 = not linked
	Notes          string
}

// NewTransaction builds an unsaved transaction from a canonical record.
func NewTransaction(accountID int64, rec CanonicalRecord, fingerprint string) Transaction {
	return Transaction{
		AccountID:      accountID,
		Date:           rec.Date,
		Amount:         rec.Amount,
		Description:    rec.Description,
		RawDescription: rec.RawDescription,
		Fingerprint:    fingerprint,
		Merchant:       rec.MerchantHint,
	}
}
