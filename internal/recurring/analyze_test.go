package recurring

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/finscan/internal/model"
)

func day(y, m, d int) time.Time { return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC) }

// series builds transactions starting at start and separated by gaps.
func series(start time.Time, gaps []int, amounts ...string) []model.Transaction {
	dates := []time.Time{start}
	for _, g := range gaps {
		dates = append(dates, dates[len(dates)-1].AddDate(0, 0, g))
	}
	txns := make([]model.Transaction, len(dates))
	for i, d := range dates {
		amt := amounts[len(amounts)-1]
		if i < len(amounts) {
			amt = amounts[i]
		}
		txns[i] = model.Transaction{Date: d, Amount: decimal.RequireFromString(amt), Merchant: "NETFLIX"}
	}
	return txns
}

func TestAnalyze_Monthly(t *testing.T) {
	txns := series(day(2025, 1, 1), []int{30, 31, 29, 30}, "-9.99")

	a, ok := Analyze("NETFLIX", txns, 3, DefaultBands)
	require.True(t, ok)
	assert.Equal(t, model.FrequencyMonthly, a.FrequencyType)
	assert.Equal(t, 30, a.FrequencyDays)
	assert.Greater(t, a.Confidence, 0.9)
	assert.InDelta(t, 0.0, a.AmountCV, 1e-9)
	assert.Equal(t, "-9.99", a.AverageAmount.StringFixed(2))
	assert.Equal(t, day(2025, 1, 1), a.FirstSeen)
	assert.Equal(t, day(2025, 5, 1), a.LastSeen)
	assert.Equal(t, day(2025, 5, 31), a.NextExpected)
	assert.Equal(t, 5, a.Occurrences)
}

func TestAnalyze_EvenGapCountUsesMidpointMedian(t *testing.T) {
	txns := series(day(2025, 1, 1), []int{25, 35}, "-9.99")

	a, ok := Analyze("NETFLIX", txns, 3, DefaultBands)
	require.True(t, ok)
	assert.InDelta(t, 30.0, a.MedianGap, 1e-9)
	assert.Equal(t, model.FrequencyMonthly, a.FrequencyType)
	assert.Equal(t, 30, a.FrequencyDays)
	assert.Equal(t, day(2025, 3, 2).AddDate(0, 0, 30), a.NextExpected)
}

func TestAnalyze_MixedSignsAreNotRecurring(t *testing.T) {
	txns := series(day(2025, 1, 1), []int{30, 30, 30}, "-50", "50", "-50", "50")

	_, ok := Analyze("TRANSFER", txns, 3, DefaultBands)
	assert.False(t, ok)
}

func TestAnalyze_InflowsUseSignedAmounts(t *testing.T) {
	txns := series(day(2025, 1, 1), []int{14, 14, 14}, "2500.00")

	a, ok := Analyze("PAYROLL", txns, 3, DefaultBands)
	require.True(t, ok)
	assert.Equal(t, "2500.00", a.AverageAmount.StringFixed(2))
	assert.InDelta(t, 0.0, a.AmountCV, 1e-9)
	assert.Equal(t, model.FrequencyBiweekly, a.FrequencyType)
}

func TestCV(t *testing.T) {
	assert.Zero(t, cv([]float64{-9.99, -9.99, -9.99}))
	assert.True(t, math.IsInf(cv([]float64{-1, 1}), 1))
	assert.InDelta(t, cv([]float64{10, 20, 30}), cv([]float64{-10, -20, -30}), 1e-12)
}

func TestMedianOf(t *testing.T) {
	assert.Equal(t, 30.0, medianOf([]float64{25, 35}))
	assert.Equal(t, 30.0, medianOf([]float64{29, 30, 31}))
	assert.Equal(t, 30.5, medianOf([]float64{29, 30, 31, 90}))
}

func TestAnalyze_UnorderedInput(t *testing.T) {
	txns := series(day(2025, 1, 1), []int{30, 31, 29, 30}, "-9.99")
	txns[0], txns[3] = txns[3], txns[0]

	a, ok := Analyze("NETFLIX", txns, 3, DefaultBands)
	require.True(t, ok)
	assert.Equal(t, day(2025, 1, 1), a.FirstSeen)
	assert.Equal(t, model.FrequencyMonthly, a.FrequencyType)
}

func TestAnalyze_Noise(t *testing.T) {
	txns := series(day(2025, 1, 1), []int{2, 45, 10}, "-4.50", "-12.00", "-3.25", "-40.00")

	a, ok := Analyze("CORNER STORE", txns, 3, DefaultBands)
	require.True(t, ok)
	assert.Less(t, a.Confidence, DefaultConfig().MinConfidence)
}

func TestAnalyze_Bands(t *testing.T) {
	tests := []struct {
		gaps     []int
		wantType model.FrequencyType
		wantDays int
	}{
		{[]int{7, 7, 8, 6}, model.FrequencyWeekly, 7},
		{[]int{14, 14, 13}, model.FrequencyBiweekly, 14},
		{[]int{90, 92, 91}, model.FrequencyQuarterly, 91},
		{[]int{365, 366}, model.FrequencyYearly, 365},
		{[]int{50, 50, 50}, model.FrequencyCustom, 50},
	}
	for _, tt := range tests {
		t.Run(string(tt.wantType), func(t *testing.T) {
			a, ok := Analyze("M", series(day(2024, 1, 1), tt.gaps, "-20"), 3, DefaultBands)
			require.True(t, ok)
			assert.Equal(t, tt.wantType, a.FrequencyType)
			assert.Equal(t, tt.wantDays, a.FrequencyDays)
		})
	}
}

func TestAnalyze_TooFew(t *testing.T) {
	_, ok := Analyze("M", series(day(2025, 1, 1), []int{30}, "-9.99"), 3, DefaultBands)
	assert.False(t, ok)
}

func TestAnalyze_SameDayRepeats(t *testing.T) {
	a, ok := Analyze("M", series(day(2025, 1, 1), []int{0, 0}, "-5"), 3, DefaultBands)
	require.True(t, ok)
	assert.True(t, math.IsInf(a.GapCV, 1))
	assert.Less(t, a.Confidence, 0.6)
	assert.Equal(t, 1, a.FrequencyDays)
}

func TestAnalyze_DominantCategory(t *testing.T) {
	txns := series(day(2025, 1, 1), []int{30, 30, 30}, "-9.99")
	txns[0].CategoryID = 5
	txns[1].CategoryID = 5
	txns[2].CategoryID = 3

	a, _ := Analyze("M", txns, 3, DefaultBands)
	assert.Equal(t, int64(5), a.CategoryID)
}

func TestConfidence_MonotonicAndClamped(t *testing.T) {
	assert.InDelta(t, 1.0, Confidence(0, 0), 1e-12)
	assert.Zero(t, Confidence(math.Inf(1), math.Inf(1)))

	steps := []float64{0, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	for _, fixed := range steps {
		prevGap, prevAmt := 2.0, 2.0
		for _, x := range steps {
			g := Confidence(x, fixed)
			a := Confidence(fixed, x)
			assert.LessOrEqual(t, g, prevGap)
			assert.LessOrEqual(t, a, prevAmt)
			assert.GreaterOrEqual(t, g, 0.0)
			assert.LessOrEqual(t, g, 1.0)
			prevGap, prevAmt = g, a
		}
	}
}

func decimalOf(s string) decimal.Decimal { return decimal.RequireFromString(s) }
