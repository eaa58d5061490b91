package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/finscan/internal/mapper"
	"github.com/cleared-dev/finscan/internal/model"
	"github.com/cleared-dev/finscan/internal/store"
	"github.com/cleared-dev/finscan/internal/store/sqlite"
)

// fakeStore enforces fingerprint uniqueness and can fail after N inserts.
type fakeStore struct {
	mu        sync.Mutex
	mappings  map[int64]model.CsvMapping
	accounts  map[int64]bool
	byFP      map[string]model.Transaction
	inserts   int
	failAfter int // 0 = never
	failErr   error
	onInsert  func(n int)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		mappings: make(map[int64]model.CsvMapping),
		accounts: map[int64]bool{1: true},
		byFP:     make(map[string]model.Transaction),
	}
}

func (f *fakeStore) GetAccount(_ context.Context, id int64) (model.Account, error) {
	if !f.accounts[id] {
		return model.Account{}, store.ErrNotFound
	}
	return model.Account{ID: id, Name: "acct", Type: model.AccountTypeChecking}, nil
}

func (f *fakeStore) GetCsvMapping(_ context.Context, id int64) (model.CsvMapping, error) {
	m, ok := f.mappings[id]
	if !ok {
		return model.CsvMapping{}, store.ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) InsertTransaction(_ context.Context, t model.Transaction) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && f.inserts >= f.failAfter {
		return 0, f.failErr
	}
	if _, ok := f.byFP[t.Fingerprint]; ok {
		return 0, store.ErrDuplicate
	}
	f.inserts++
	t.ID = int64(f.inserts)
	f.byFP[t.Fingerprint] = t
	if f.onInsert != nil {
		f.onInsert(f.inserts)
	}
	return t.ID, nil
}

func signedMapping() model.CsvMapping {
	return model.CsvMapping{
		ID:   7,
		Name: "bank",
		Columns: []model.ColumnBinding{
			{Field: model.FieldDate, Header: "Date"},
			{Field: model.FieldDescription, Header: "Description"},
			{Field: model.FieldAmount, Header: "Amount"},
		},
		DateFormat: "%m/%d/%Y",
		AmountMode: model.AmountSigned,
	}
}

// csvRows builds n distinct rows; badRow (1-based, 0 = none) gets an unparseable date.
func csvRows(n, badRow int) []byte {
	var b strings.Builder
	b.WriteString("Date,Description,Amount\n")
	for i := 1; i <= n; i++ {
		date := fmt.Sprintf("%02d/%02d/2025", (i-1)%12+1, (i-1)%28+1)
		if i == badRow {
			date = "not-a-date"
		}
		fmt.Fprintf(&b, "%s,MERCHANT %c%c,-%d.%02d\n", date, 'A'+rune(i%26), 'A'+rune(i/26), i, i%100)
	}
	return []byte(b.String())
}

func newPipeline(s Store, opts ...Option) *Pipeline {
	return New(s, Config{}, zerolog.Nop(), opts...)
}

func TestImport_PartialFailure(t *testing.T) {
	s := newFakeStore()
	s.mappings[7] = signedMapping()
	p := newPipeline(s)

	res, err := p.Import(context.Background(), 1, 7, csvRows(100, 50))
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 99, res.Imported)
	assert.Equal(t, 0, res.Duplicates)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 50, res.Errors[0].Row)
	assert.Equal(t, mapper.ReasonInvalidDate, res.Errors[0].Reason)

	require.Len(t, res.Rows, 100)
	assert.Equal(t, OutcomeError, res.Rows[49].Outcome)
	assert.Equal(t, OutcomeImported, res.Rows[50].Outcome)
	assert.NotEmpty(t, res.BatchID)
}

func TestImport_IdempotentReimport(t *testing.T) {
	s := newFakeStore()
	s.mappings[7] = signedMapping()
	p := newPipeline(s)
	data := csvRows(20, 0)

	first, err := p.Import(context.Background(), 1, 7, data)
	require.NoError(t, err)
	assert.Equal(t, 20, first.Imported)

	second, err := p.Import(context.Background(), 1, 7, data)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 20, second.Duplicates)
	assert.Empty(t, second.Merchants)
	assert.NotEqual(t, first.BatchID, second.BatchID)
}

func TestImport_AmbiguousDebitCredit(t *testing.T) {
	s := newFakeStore()
	s.mappings[3] = model.CsvMapping{
		ID:   3,
		Name: "dc",
		Columns: []model.ColumnBinding{
			{Field: model.FieldDate, Header: "Date"},
			{Field: model.FieldDescription, Header: "Description"},
		},
		DateFormat:   "%Y-%m-%d",
		AmountMode:   model.AmountDebitCredit,
		DebitColumn:  "Debit",
		CreditColumn: "Credit",
	}
	data := "Date,Description,Debit,Credit\n" +
		"2025-01-01,RENT,1500.00,\n" +
		"2025-01-02,ODD,10.00,10.00\n" +
		"2025-01-03,REFUND,,20.00\n"

	res, err := newPipeline(s).Import(context.Background(), 1, 3, []byte(data))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Row)
	assert.Equal(t, mapper.ReasonAmbiguousAmount, res.Errors[0].Reason)
}

func TestImport_InfrastructureFailureKeepsPrefix(t *testing.T) {
	s := newFakeStore()
	s.mappings[7] = signedMapping()
	s.failAfter = 30
	s.failErr = fmt.Errorf("%w: disk I/O error", store.ErrUnavailable)
	p := newPipeline(s)

	res, err := p.Import(context.Background(), 1, 7, csvRows(60, 0))
	require.Error(t, err)

	var ie *InfrastructureError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 30, ie.Committed)
	assert.True(t, errors.Is(err, store.ErrUnavailable))
	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, 30, res.Imported)
	assert.Equal(t, OutcomeImported, res.Rows[29].Outcome)
	assert.Equal(t, OutcomePending, res.Rows[30].Outcome)

	// Store recovers: the rerun skips the committed prefix.
	s.failAfter = 0
	res, err = p.Import(context.Background(), 1, 7, csvRows(60, 0))
	require.NoError(t, err)
	assert.Equal(t, 30, res.Imported)
	assert.Equal(t, 30, res.Duplicates)
}

func TestImport_ConfigurationError(t *testing.T) {
	s := newFakeStore()
	m := signedMapping()
	m.AmountMode = model.AmountDebitCredit
	m.Columns = m.Columns[:2]
	s.mappings[7] = m

	res, err := newPipeline(s).Import(context.Background(), 1, 7, csvRows(5, 0))
	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, int64(7), ce.MappingID)
	assert.NotEmpty(t, ce.Problems)
	assert.Zero(t, res.Imported)
	assert.Zero(t, s.inserts)
}

func TestImport_MissingHeaderIsConfigurationError(t *testing.T) {
	s := newFakeStore()
	s.mappings[7] = signedMapping()

	_, err := newPipeline(s).Import(context.Background(), 1, 7, []byte("Date,Memo,Amount\n01/01/2025,X,1\n"))
	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Error(), "Description")
}

func TestImport_UnknownMappingAndAccount(t *testing.T) {
	s := newFakeStore()
	s.mappings[7] = signedMapping()
	p := newPipeline(s)

	_, err := p.Import(context.Background(), 1, 99, csvRows(1, 0))
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = p.Import(context.Background(), 42, 7, csvRows(1, 0))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestImport_CancellationStopsPromptly(t *testing.T) {
	s := newFakeStore()
	s.mappings[7] = signedMapping()
	ctx, cancel := context.WithCancel(context.Background())
	s.onInsert = func(n int) {
		if n == 10 {
			cancel()
		}
	}

	res, err := newPipeline(s).Import(ctx, 1, 7, csvRows(50, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 10, res.Imported)
	assert.Equal(t, 10, s.inserts)
}

type fixedCategorizer struct{ id int64 }

func (c fixedCategorizer) Categorize(context.Context, model.CanonicalRecord) (int64, error) {
	return c.id, nil
}

func TestImport_Categorizer(t *testing.T) {
	s := newFakeStore()
	s.mappings[7] = signedMapping()

	_, err := newPipeline(s, WithCategorizer(fixedCategorizer{id: 4})).Import(context.Background(), 1, 7, csvRows(3, 0))
	require.NoError(t, err)
	for _, txn := range s.byFP {
		assert.Equal(t, int64(4), txn.CategoryID)
	}
}

type failingCategorizer struct {
	err   error
	calls int
	after int
}

func (c *failingCategorizer) Categorize(context.Context, model.CanonicalRecord) (int64, error) {
	c.calls++
	if c.calls > c.after {
		return 0, c.err
	}
	return 2, nil
}

func TestImport_CategorizerStoreFailureAborts(t *testing.T) {
	s := newFakeStore()
	s.mappings[7] = signedMapping()
	cat := &failingCategorizer{err: fmt.Errorf("looking up category: %w", store.ErrUnavailable), after: 2}

	res, err := newPipeline(s, WithCategorizer(cat)).Import(context.Background(), 1, 7, csvRows(5, 0))
	var infra *InfrastructureError
	require.ErrorAs(t, err, &infra)
	assert.Equal(t, 2, infra.Committed)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, 2, s.inserts)
}

func TestImport_CategorizerUnknownCategoryIsRecoverable(t *testing.T) {
	s := newFakeStore()
	s.mappings[7] = signedMapping()
	cat := &failingCategorizer{err: fmt.Errorf("rule names unknown category: %w", store.ErrNotFound)}

	res, err := newPipeline(s, WithCategorizer(cat)).Import(context.Background(), 1, 7, csvRows(3, 0))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	for _, txn := range s.byFP {
		assert.Zero(t, txn.CategoryID)
	}
}

type slowCategorizer struct{}

func (slowCategorizer) Categorize(ctx context.Context, _ model.CanonicalRecord) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestImport_CategorizerRunsUnderStoreTimeout(t *testing.T) {
	s := newFakeStore()
	s.mappings[7] = signedMapping()
	p := New(s, Config{StoreTimeout: 20 * time.Millisecond}, zerolog.Nop(), WithCategorizer(slowCategorizer{}))

	_, err := p.Import(context.Background(), 1, 7, csvRows(3, 0))
	var infra *InfrastructureError
	require.ErrorAs(t, err, &infra)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, infra.Committed)
}

func TestNew_TagsComponent(t *testing.T) {
	s := newFakeStore()
	s.mappings[7] = signedMapping()
	var buf bytes.Buffer

	_, err := New(s, Config{}, zerolog.New(&buf)).Import(context.Background(), 1, 7, csvRows(1, 0))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"component":"pipeline"`)
}

func TestImport_InBatchDuplicates(t *testing.T) {
	s := newFakeStore()
	s.mappings[7] = signedMapping()
	data := "Date,Description,Amount\n01/05/2025,COFFEE,-3.00\n01/05/2025,  coffee ,-3.00\n"

	res, err := newPipeline(s).Import(context.Background(), 1, 7, []byte(data))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, []string{"COFFEE"}, res.Merchants)
}

func TestImport_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, sqlite.Config{Path: filepath.Join(t.TempDir(), "finscan.db")}, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	acct, err := db.CreateAccount(ctx, model.Account{Name: "Checking", Type: model.AccountTypeChecking})
	require.NoError(t, err)
	m := signedMapping()
	m.ID = 0
	mid, err := db.CreateCsvMapping(ctx, m)
	require.NoError(t, err)

	p := newPipeline(db)
	data := csvRows(25, 0)
	res, err := p.Import(ctx, acct, mid, data)
	require.NoError(t, err)
	assert.Equal(t, 25, res.Imported)

	res, err = p.Import(ctx, acct, mid, data)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Imported)
	assert.Equal(t, 25, res.Duplicates)

	n, err := db.CountTransactions(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, 25, n)
}

func TestImport_ConcurrentOverlappingFiles(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, sqlite.Config{Path: filepath.Join(t.TempDir(), "finscan.db")}, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	acct, err := db.CreateAccount(ctx, model.Account{Name: "Checking", Type: model.AccountTypeChecking})
	require.NoError(t, err)
	p := newPipeline(db)
	data := csvRows(15, 0)

	var wg sync.WaitGroup
	results := make([]BatchResult, 4)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.ImportMapping(ctx, acct, signedMapping(), strings.NewReader(string(data)))
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	imported, dups := 0, 0
	for _, r := range results {
		imported += r.Imported
		dups += r.Duplicates
	}
	assert.Equal(t, 15, imported)
	assert.Equal(t, 45, dups)
}

func TestPreview(t *testing.T) {
	res, err := Preview(context.Background(), signedMapping(), strings.NewReader(string(csvRows(10, 4))), 3)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Total)
	assert.Len(t, res.Records, 3)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 4, res.Errors[0].Row)
}
