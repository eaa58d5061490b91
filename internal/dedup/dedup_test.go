package dedup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/finscan/internal/mapper"
	"github.com/cleared-dev/finscan/internal/model"
	"github.com/cleared-dev/finscan/internal/store"
)

// memStore enforces fingerprint uniqueness the way the SQL schema does.
type memStore struct {
	mu     sync.Mutex
	byFP   map[string]int64
	nextID int64
	err    error
}

func newMemStore() *memStore {
	return &memStore{byFP: make(map[string]int64)}
}

func (m *memStore) InsertTransaction(_ context.Context, t model.Transaction) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	if _, ok := m.byFP[t.Fingerprint]; ok {
		return 0, store.ErrDuplicate
	}
	m.nextID++
	m.byFP[t.Fingerprint] = m.nextID
	return m.nextID, nil
}

func record(desc, amount string) model.CanonicalRecord {
	return model.CanonicalRecord{
		Date:        time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString(amount),
		Description: desc,
	}
}

func TestFingerprint_Stable(t *testing.T) {
	a := Fingerprint(1, record("NETFLIX.COM", "-15.99"))
	b := Fingerprint(1, record("  netflix.com ", "-15.990"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, Fingerprint(2, record("NETFLIX.COM", "-15.99")))
	assert.NotEqual(t, a, Fingerprint(1, record("NETFLIX.COM", "15.99")))
	assert.NotEqual(t, a, Fingerprint(1, record("HULU", "-15.99")))
}

func TestFingerprint_ColumnOrderIndependent(t *testing.T) {
	m1 := model.CsvMapping{
		Name: "a",
		Columns: []model.ColumnBinding{
			{Field: model.FieldDate, Header: "Date"},
			{Field: model.FieldDescription, Header: "Description"},
			{Field: model.FieldAmount, Header: "Amount"},
		},
		DateFormat: "%m/%d/%Y",
		AmountMode: model.AmountSigned,
	}
	m2 := m1
	m2.Columns = []model.ColumnBinding{
		{Field: model.FieldAmount, Header: "Amount"},
		{Field: model.FieldDescription, Header: "Description"},
		{Field: model.FieldDate, Header: "Date"},
	}

	cm1, err := mapper.New(m1)
	require.NoError(t, err)
	cm2, err := mapper.New(m2)
	require.NoError(t, err)

	row := mapper.Row{"Date": "01/15/2025", "Description": "SPOTIFY  USA", "Amount": "-9.99"}
	r1, err := cm1.Map(1, row)
	require.NoError(t, err)
	r2, err := cm2.Map(1, mapper.Row{"Amount": "-9.99 ", "Description": "SPOTIFY USA", "Date": "1/15/2025"})
	require.NoError(t, err)

	assert.Equal(t, Fingerprint(3, r1), Fingerprint(3, r2))
}

func TestCheckAndReserve(t *testing.T) {
	s := newMemStore()
	d := New(s)
	ctx := context.Background()
	rec := record("RENT", "-1500")

	res, err := d.CheckAndReserve(ctx, model.NewTransaction(1, rec, Fingerprint(1, rec)))
	require.NoError(t, err)
	assert.Equal(t, Accepted, res.Outcome)
	assert.Equal(t, int64(1), res.ID)

	res, err = d.CheckAndReserve(ctx, model.NewTransaction(1, rec, Fingerprint(1, rec)))
	require.NoError(t, err)
	assert.Equal(t, Duplicate, res.Outcome)
	assert.Zero(t, res.ID)
}

func TestCheckAndReserve_ComputesMissingFingerprint(t *testing.T) {
	d := New(newMemStore())
	rec := record("RENT", "-1500")

	res, err := d.CheckAndReserve(context.Background(), model.NewTransaction(1, rec, ""))
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(1, rec), res.Fingerprint)
}

func TestCheckAndReserve_StoreFailure(t *testing.T) {
	s := newMemStore()
	s.err = store.ErrUnavailable
	d := New(s)
	rec := record("RENT", "-1500")

	_, err := d.CheckAndReserve(context.Background(), model.NewTransaction(1, rec, ""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUnavailable))
}

func TestCheckAndReserve_Concurrent(t *testing.T) {
	d := New(newMemStore())
	rec := record("GYM", "-40")
	fp := Fingerprint(9, rec)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		dups     int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := d.CheckAndReserve(context.Background(), model.NewTransaction(9, rec, fp))
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			if res.Outcome == Accepted {
				accepted++
			} else {
				dups++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 15, dups)
}
