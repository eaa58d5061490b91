package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FrequencyType names the billing cycle of a recurring expense.
type FrequencyType string

const (
	FrequencyWeekly    FrequencyType = "weekly"
	FrequencyBiweekly  FrequencyType = "biweekly"
	FrequencyMonthly   FrequencyType = "monthly"
	FrequencyQuarterly FrequencyType = "quarterly"
	FrequencyYearly    FrequencyType = "yearly"
	FrequencyCustom    FrequencyType = "custom"
)

// RecurringExpense is a merchant-keyed repeating charge (or deposit).
type RecurringExpense struct {
	ID               int64
	Merchant         string
	CategoryID       int64 // 0 = none
	AverageAmount    decimal.Decimal
	FrequencyDays    int
	FrequencyType    FrequencyType
	Confidence       float64 // 0.0 - 1.0
	NextExpectedDate time.Time
	IsActive         bool
	Occurrences      int
	FirstSeen        time.Time
	LastSeen         time.Time
}
