// Package recurring detects repeating charges per merchant and keeps one
// RecurringExpense row per qualifying merchant.
package recurring

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/cleared-dev/finscan/internal/model"
)

// Band is a named billing period with a tolerance in days around it.
type Band struct {
	Type      model.FrequencyType `yaml:"type"`
	Days      int                 `yaml:"days"`
	Tolerance int                 `yaml:"tolerance"`
}

// DefaultBands are checked in order; the first band containing the median gap wins.
var DefaultBands = []Band{
	{Type: model.FrequencyWeekly, Days: 7, Tolerance: 2},
	{Type: model.FrequencyBiweekly, Days: 14, Tolerance: 2},
	{Type: model.FrequencyMonthly, Days: 30, Tolerance: 3},
	{Type: model.FrequencyQuarterly, Days: 91, Tolerance: 7},
	{Type: model.FrequencyYearly, Days: 365, Tolerance: 15},
}

// Confidence weights. Gap regularity matters more than amount regularity:
// utilities vary in amount but still bill on a schedule.
const (
	gapWeight    = 0.6
	amountWeight = 0.4
	gapDecay     = 2.0
	amountDecay  = 3.0
)

// Analysis is the statistical summary of one merchant's history.
type Analysis struct {
	Merchant      string
	Occurrences   int
	MedianGap     float64
	GapCV         float64
	AmountCV      float64
	FrequencyType model.FrequencyType
	FrequencyDays int
	Confidence    float64
	AverageAmount decimal.Decimal
	FirstSeen     time.Time
	LastSeen      time.Time
	NextExpected  time.Time
	CategoryID    int64
}

// Expense converts the analysis into an active recurring expense.
func (a Analysis) Expense() model.RecurringExpense {
	return model.RecurringExpense{
		Merchant:         a.Merchant,
		CategoryID:       a.CategoryID,
		AverageAmount:    a.AverageAmount,
		FrequencyDays:    a.FrequencyDays,
		FrequencyType:    a.FrequencyType,
		Confidence:       a.Confidence,
		NextExpectedDate: a.NextExpected,
		IsActive:         true,
		Occurrences:      a.Occurrences,
		FirstSeen:        a.FirstSeen,
		LastSeen:         a.LastSeen,
	}
}

// Confidence scores regularity. It is 1 for perfectly regular gaps and
// amounts and never increases as either coefficient of variation grows.
func Confidence(gapCV, amountCV float64) float64 {
	c := gapWeight*math.Exp(-gapDecay*gapCV) + amountWeight*math.Exp(-amountDecay*amountCV)
	return math.Max(0, math.Min(1, c))
}

// Analyze summarizes txns, which all belong to merchant. It reports false when
// there are fewer than minOccurrences transactions or when the history mixes
// inflows and outflows, which has no single recurring direction.
func Analyze(merchant string, txns []model.Transaction, minOccurrences int, bands []Band) (Analysis, bool) {
	if len(txns) < minOccurrences || len(txns) < 2 {
		return Analysis{}, false
	}

	sorted := append([]model.Transaction(nil), txns...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	gaps := make([]float64, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps[i-1] = math.Round(sorted[i].Date.Sub(sorted[i-1].Date).Hours() / 24)
	}
	amounts := make([]float64, len(sorted))
	total := decimal.Zero
	var inflows, outflows int
	for i, t := range sorted {
		amounts[i] = t.Amount.InexactFloat64()
		total = total.Add(t.Amount)
		switch t.Amount.Sign() {
		case 1:
			inflows++
		case -1:
			outflows++
		}
	}
	if inflows > 0 && outflows > 0 {
		return Analysis{}, false
	}

	ordered := append([]float64(nil), gaps...)
	sort.Float64s(ordered)
	median := medianOf(ordered)

	gapCV := cv(gaps)
	if ordered[len(ordered)-1] == 0 {
		// every occurrence on the same day: no cadence at all
		gapCV = math.Inf(1)
	}

	a := Analysis{
		Merchant:      merchant,
		Occurrences:   len(sorted),
		MedianGap:     median,
		GapCV:         gapCV,
		AmountCV:      cv(amounts),
		AverageAmount: total.Div(decimal.NewFromInt(int64(len(sorted)))).Round(2),
		FirstSeen:     sorted[0].Date,
		LastSeen:      sorted[len(sorted)-1].Date,
		CategoryID:    dominantCategory(sorted),
	}
	a.FrequencyType, a.FrequencyDays = classify(median, bands)
	a.Confidence = Confidence(a.GapCV, a.AmountCV)
	a.NextExpected = a.LastSeen.AddDate(0, 0, a.FrequencyDays)
	return a, true
}

func classify(median float64, bands []Band) (model.FrequencyType, int) {
	for _, b := range bands {
		if math.Abs(median-float64(b.Days)) <= float64(b.Tolerance) {
			return b.Type, b.Days
		}
	}
	days := int(math.Round(median))
	if days < 1 {
		days = 1
	}
	return model.FrequencyCustom, days
}

// medianOf returns the median of sorted, averaging the middle pair when the
// length is even.
func medianOf(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// cv is the sample coefficient of variation of xs. Spread around a zero mean
// is unbounded variation.
func cv(xs []float64) float64 {
	mean, std := stat.MeanStdDev(xs, nil)
	if math.IsNaN(std) || std == 0 {
		return 0
	}
	if mean == 0 {
		return math.Inf(1)
	}
	return std / math.Abs(mean)
}

func dominantCategory(txns []model.Transaction) int64 {
	counts := make(map[int64]int)
	for _, t := range txns {
		if t.CategoryID != 0 {
			counts[t.CategoryID]++
		}
	}
	var best int64
	for id, n := range counts {
		if n > counts[best] || (n == counts[best] && id < best) {
			best = id
		}
	}
	return best
}
