// Package dedup fingerprints canonical records and reserves them in the store.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cleared-dev/finscan/internal/model"
	"github.com/cleared-dev/finscan/internal/store"
)

// Outcome of reserving one record.
type Outcome int

const (
	Accepted Outcome = iota
	Duplicate
)

func (o Outcome) String() string {
	if o == Duplicate {
		return "duplicate"
	}
	return "accepted"
}

// Inserter is the store capability the deduplicator needs.
type Inserter interface {
	InsertTransaction(ctx context.Context, t model.Transaction) (int64, error)
}

// Fingerprint hashes the fields that identify a bank row independent of
// column order or incidental whitespace.
func Fingerprint(accountID int64, rec model.CanonicalRecord) string {
	key := strings.Join([]string{
		rec.Date.Format("2006-01-02"),
		rec.Amount.StringFixed(2),
		NormalizeDescription(rec.Description),
		strconv.FormatInt(accountID, 10),
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// NormalizeDescription lowercases and collapses whitespace.
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Deduplicator inserts records under their fingerprint. The store's unique
// constraint is the only serialization point; there is no in-memory lock.
type Deduplicator struct {
	store Inserter
}

func New(s Inserter) *Deduplicator {
	return &Deduplicator{store: s}
}

// Reservation is the result of CheckAndReserve.
type Reservation struct {
	Outcome     Outcome
	ID          int64 // zero for duplicates
	Fingerprint string
}

// CheckAndReserve persists txn unless its fingerprint is already taken. A
// unique-constraint violation is reported as Duplicate, not as an error.
// The fingerprint is computed from txn when empty.
func (d *Deduplicator) CheckAndReserve(ctx context.Context, txn model.Transaction) (Reservation, error) {
	if txn.Fingerprint == "" {
		txn.Fingerprint = Fingerprint(txn.AccountID, model.CanonicalRecord{
			Date:        txn.Date,
			Amount:      txn.Amount,
			Description: txn.Description,
		})
	}

	id, err := d.store.InsertTransaction(ctx, txn)
	switch {
	case err == nil:
		return Reservation{Outcome: Accepted, ID: id, Fingerprint: txn.Fingerprint}, nil
	case errors.Is(err, store.ErrDuplicate):
		return Reservation{Outcome: Duplicate, Fingerprint: txn.Fingerprint}, nil
	default:
		return Reservation{Fingerprint: txn.Fingerprint}, fmt.Errorf("reserving %s: %w", txn.Fingerprint[:12], err)
	}
}
