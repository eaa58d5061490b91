package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/finscan/internal/model"
	"github.com/cleared-dev/finscan/internal/store"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "finscan.db")}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y, m, d int) time.Time { return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC) }

func newAccount(t *testing.T, s *Store) int64 {
	t.Helper()
	id, err := s.CreateAccount(context.Background(), model.Account{Name: "Checking", Type: model.AccountTypeChecking})
	require.NoError(t, err)
	return id
}

func TestOpen_MigratesTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finscan.db")
	s, err := Open(context.Background(), Config{Path: path}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), Config{Path: path}, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())
}

func TestAccounts_CRUD(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	id, err := s.CreateAccount(ctx, model.Account{Name: "Chase Checking", Type: model.AccountTypeChecking, Institution: "Chase", LastFour: "1234"})
	require.NoError(t, err)

	got, err := s.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Chase Checking", got.Name)
	assert.Equal(t, model.AccountTypeChecking, got.Type)
	assert.True(t, got.Balance.IsZero())

	all, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteAccount(ctx, id))
	_, err = s.GetAccount(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteAccount(ctx, id), store.ErrNotFound)
}

func TestAccounts_RejectsUnknownType(t *testing.T) {
	s := openTest(t)
	_, err := s.CreateAccount(context.Background(), model.Account{Name: "X", Type: "brokerage"})
	assert.ErrorIs(t, err, store.ErrConstraint)
}

func TestInsertTransaction_PostsBalance(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	acct := newAccount(t, s)

	_, err := s.InsertTransaction(ctx, model.Transaction{AccountID: acct, Date: date(2025, 1, 3), Amount: dec("3500.00"), Description: "PAYROLL", Fingerprint: "a"})
	require.NoError(t, err)
	id, err := s.InsertTransaction(ctx, model.Transaction{AccountID: acct, Date: date(2025, 1, 4), Amount: dec("-4.25"), Description: "GITHUB", Fingerprint: "b"})
	require.NoError(t, err)

	got, err := s.GetAccount(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, "3495.75", got.Balance.StringFixed(2))

	require.NoError(t, s.DeleteTransaction(ctx, id))
	got, err = s.GetAccount(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, "3500.00", got.Balance.StringFixed(2))
}

func TestInsertTransaction_DuplicateFingerprint(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	acct := newAccount(t, s)

	txn := model.Transaction{AccountID: acct, Date: date(2025, 1, 3), Amount: dec("-9.99"), Description: "NETFLIX", Fingerprint: "fp1"}
	_, err := s.InsertTransaction(ctx, txn)
	require.NoError(t, err)

	_, err = s.InsertTransaction(ctx, txn)
	require.ErrorIs(t, err, store.ErrDuplicate)

	// The rejected duplicate must not have touched the balance.
	got, err := s.GetAccount(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, "-9.99", got.Balance.StringFixed(2))
}

func TestInsertTransaction_ManualRowsWithoutFingerprint(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	acct := newAccount(t, s)

	for i := 0; i < 2; i++ {
		_, err := s.InsertTransaction(ctx, model.Transaction{AccountID: acct, Date: date(2025, 1, 3), Amount: dec("-1"), Description: "cash"})
		require.NoError(t, err)
	}
	n, err := s.CountTransactions(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestInsertTransaction_UnknownAccount(t *testing.T) {
	s := openTest(t)
	_, err := s.InsertTransaction(context.Background(), model.Transaction{AccountID: 99, Date: date(2025, 1, 3), Amount: dec("1"), Description: "x", Fingerprint: "z"})
	assert.ErrorIs(t, err, store.ErrConstraint)
}

func TestInsertTransaction_ConcurrentSameFingerprint(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	acct := newAccount(t, s)

	const workers = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		accepted   int
		duplicates int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.InsertTransaction(ctx, model.Transaction{AccountID: acct, Date: date(2025, 2, 1), Amount: dec("-15.49"), Description: "SPOTIFY", Fingerprint: "same"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, store.ErrDuplicate):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, workers-1, duplicates)
}

func TestDeleteAccount_CascadesTransactions(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	acct := newAccount(t, s)
	_, err := s.InsertTransaction(ctx, model.Transaction{AccountID: acct, Date: date(2025, 1, 3), Amount: dec("-1"), Description: "x", Merchant: "X", Fingerprint: "c"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteAccount(ctx, acct))
	txns, err := s.QueryTransactionsByMerchant(ctx, "X")
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestQueryTransactionsByMerchant_OrderedByDate(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	acct := newAccount(t, s)

	for i, d := range []time.Time{date(2025, 3, 1), date(2025, 1, 1), date(2025, 2, 1)} {
		_, err := s.InsertTransaction(ctx, model.Transaction{
			AccountID: acct, Date: d, Amount: dec("-9.99"), Description: "NETFLIX.COM",
			Merchant: "NETFLIX COM", Fingerprint: string(rune('a' + i)),
		})
		require.NoError(t, err)
	}
	_, err := s.InsertTransaction(ctx, model.Transaction{AccountID: acct, Date: date(2025, 1, 5), Amount: dec("-3"), Description: "COFFEE", Merchant: "COFFEE", Fingerprint: "z"})
	require.NoError(t, err)

	txns, err := s.QueryTransactionsByMerchant(ctx, "NETFLIX COM")
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.Equal(t, date(2025, 1, 1), txns[0].Date)
	assert.Equal(t, date(2025, 3, 1), txns[2].Date)
	assert.Equal(t, "-9.99", txns[0].Amount.StringFixed(2))

	merchants, err := s.ListMerchants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"COFFEE", "NETFLIX COM"}, merchants)
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	parent, err := s.CreateCategory(ctx, model.Category{Name: "Housing", IsExpense: true})
	require.NoError(t, err)
	child, err := s.CreateCategory(ctx, model.Category{Name: "Rent", ParentID: parent, IsExpense: true})
	require.NoError(t, err)

	_, err = s.CreateCategory(ctx, model.Category{Name: "Rent"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	got, err := s.GetCategory(ctx, child)
	require.NoError(t, err)
	assert.Equal(t, parent, got.ParentID)

	byName, err := s.GetCategoryByName(ctx, "Housing")
	require.NoError(t, err)
	assert.Equal(t, parent, byName.ID)

	require.NoError(t, s.SetCategoryParent(ctx, child, 0))
	got, err = s.GetCategory(ctx, child)
	require.NoError(t, err)
	assert.Zero(t, got.ParentID)

	assert.ErrorIs(t, s.SetCategoryParent(ctx, child, 999), store.ErrConstraint)

	require.NoError(t, s.DeleteCategory(ctx, parent))
	all, err := s.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertCategory_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	id1, err := s.UpsertCategory(ctx, model.Category{Name: "Groceries", IsExpense: true, IsSystem: true})
	require.NoError(t, err)
	id2, err := s.UpsertCategory(ctx, model.Category{Name: "Groceries", IsExpense: true, IsSystem: true})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	all, err := s.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.True(t, all[0].IsSystem)
}

func TestUpsertCategory_KeepsUserFlags(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	id, err := s.CreateCategory(ctx, model.Category{Name: "Streaming"})
	require.NoError(t, err)
	got, err := s.UpsertCategory(ctx, model.Category{Name: "Streaming", IsExpense: true, IsSystem: true})
	require.NoError(t, err)
	assert.Equal(t, id, got)

	c, err := s.GetCategory(ctx, id)
	require.NoError(t, err)
	assert.False(t, c.IsSystem)
	assert.False(t, c.IsExpense)
}

func TestCsvMappings(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	acct := newAccount(t, s)

	m := model.CsvMapping{
		Name:      "Capital One",
		AccountID: acct,
		Columns: []model.ColumnBinding{
			{Field: model.FieldDate, Header: "Transaction Date"},
			{Field: model.FieldDescription, Header: "Description"},
		},
		DateFormat:    "%Y-%m-%d",
		AmountMode:    model.AmountDebitCredit,
		DebitColumn:   "Debit",
		CreditColumn:  "Credit",
		SkipRows:      2,
		DebitKeywords: []string{"debit"},
	}
	id, err := s.CreateCsvMapping(ctx, m)
	require.NoError(t, err)

	got, err := s.GetCsvMapping(ctx, id)
	require.NoError(t, err)
	m.ID = id
	assert.Equal(t, m, got)

	list, err := s.ListCsvMappings(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.GetCsvMapping(ctx, 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpsertRecurringExpense(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	acct := newAccount(t, s)

	for i, d := range []time.Time{date(2025, 1, 1), date(2025, 1, 31)} {
		_, err := s.InsertTransaction(ctx, model.Transaction{AccountID: acct, Date: d, Amount: dec("-9.99"), Description: "NETFLIX", Merchant: "NETFLIX", Fingerprint: string(rune('a' + i))})
		require.NoError(t, err)
	}

	re := model.RecurringExpense{
		Merchant:         "NETFLIX",
		AverageAmount:    dec("-9.99"),
		FrequencyDays:    30,
		FrequencyType:    model.FrequencyMonthly,
		Confidence:       0.95,
		NextExpectedDate: date(2025, 3, 2),
		IsActive:         true,
		Occurrences:      2,
		FirstSeen:        date(2025, 1, 1),
		LastSeen:         date(2025, 1, 31),
	}
	id1, err := s.UpsertRecurringExpense(ctx, re)
	require.NoError(t, err)

	txns, err := s.QueryTransactionsByMerchant(ctx, "NETFLIX")
	require.NoError(t, err)
	for _, txn := range txns {
		assert.True(t, txn.IsRecurring)
		assert.Equal(t, id1, txn.RecurringID)
	}

	re.Confidence = 0.4
	re.IsActive = false
	id2, err := s.UpsertRecurringExpense(ctx, re)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := s.GetRecurringExpense(ctx, "NETFLIX")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.InDelta(t, 0.4, got.Confidence, 1e-9)
	assert.Equal(t, date(2025, 3, 2), got.NextExpectedDate)

	txns, err = s.QueryTransactionsByMerchant(ctx, "NETFLIX")
	require.NoError(t, err)
	for _, txn := range txns {
		assert.False(t, txn.IsRecurring)
		assert.Zero(t, txn.RecurringID)
	}

	all, err := s.ListRecurringExpenses(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	active, err := s.ListRecurringExpenses(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.Close())
	_, err := s.ListAccounts(context.Background())
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestCentsRoundTrip(t *testing.T) {
	tests := []struct{ in, want string }{
		{"9.99", "9.99"},
		{"-1234.5", "-1234.50"},
		{"0.005", "0.01"},
		{"100", "100.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fromCents(toCents(dec(tt.in))).StringFixed(2), tt.in)
	}
}
