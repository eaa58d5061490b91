// Package mapper translates raw CSV rows into canonical records according to a
// stored CsvMapping.
package mapper

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/finscan/internal/model"
)

// Reason tags why a row was rejected.
type Reason string

const (
	ReasonInvalidDate     Reason = "invalid_date"
	ReasonInvalidAmount   Reason = "invalid_amount"
	ReasonAmbiguousAmount Reason = "ambiguous_amount"
	ReasonMissingColumn   Reason = "missing_required_column"
)

// RowError is a recoverable, row-level mapping failure.
type RowError struct {
	Row    int // 1-based data row number
	Reason Reason
	Detail string
}

func (e *RowError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Reason, e.Detail)
}

// Row is one CSV record keyed by header name.
type Row map[string]string

// ColumnMapper maps rows under one validated mapping.
type ColumnMapper struct {
	mapping       model.CsvMapping
	layouts       []string
	dateHeader    string
	descHeader    string
	amountHeader  string
	origHeader    string
	debitKeywords map[string]bool
}

// New validates m and prepares a mapper. The returned error is a
// model.ValidationErrors when the mapping itself is unusable.
func New(m model.CsvMapping) (*ColumnMapper, error) {
	errs := m.Validate()

	layouts, err := Layouts(m.DateFormat)
	if err != nil {
		errs = append(errs, model.ValidationError{Field: "DateFormat", Description: err.Error()})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	keywords := m.DebitKeywords
	if len(keywords) == 0 {
		keywords = model.DefaultDebitKeywords
	}
	kw := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		kw[strings.ToLower(strings.TrimSpace(k))] = true
	}

	cm := &ColumnMapper{mapping: m, layouts: layouts, debitKeywords: kw}
	cm.dateHeader, _ = m.Header(model.FieldDate)
	cm.descHeader, _ = m.Header(model.FieldDescription)
	cm.amountHeader, _ = m.Header(model.FieldAmount)
	cm.origHeader, _ = m.Header(model.FieldOriginalDescription)
	return cm, nil
}

// Mapping returns the mapping the mapper was built from.
func (cm *ColumnMapper) Mapping() model.CsvMapping {
	return cm.mapping
}

// CheckHeaders reports every header the mapping needs that the file lacks.
func (cm *ColumnMapper) CheckHeaders(headers []string) error {
	have := make(map[string]bool, len(headers))
	for _, h := range headers {
		have[h] = true
	}
	var errs model.ValidationErrors
	for _, h := range cm.mapping.RequiredHeaders() {
		if !have[h] {
			errs = append(errs, model.ValidationError{Field: "Columns", Description: fmt.Sprintf("column %q not in file header", h)})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Map converts one row. Failures are always *RowError.
func (cm *ColumnMapper) Map(rowNum int, row Row) (model.CanonicalRecord, error) {
	rawDate, ok := row[cm.dateHeader]
	if !ok || strings.TrimSpace(rawDate) == "" {
		return model.CanonicalRecord{}, &RowError{Row: rowNum, Reason: ReasonMissingColumn, Detail: cm.dateHeader}
	}
	date, err := cm.parseDate(rawDate)
	if err != nil {
		return model.CanonicalRecord{}, &RowError{Row: rowNum, Reason: ReasonInvalidDate, Detail: fmt.Sprintf("%q", rawDate)}
	}

	rawDesc, ok := row[cm.descHeader]
	if !ok {
		return model.CanonicalRecord{}, &RowError{Row: rowNum, Reason: ReasonMissingColumn, Detail: cm.descHeader}
	}

	amount, rerr := cm.amount(rowNum, row)
	if rerr != nil {
		return model.CanonicalRecord{}, rerr
	}

	raw := rawDesc
	if cm.origHeader != "" {
		if v, ok := row[cm.origHeader]; ok && strings.TrimSpace(v) != "" {
			raw = v
		}
	}

	desc := strings.Join(strings.Fields(rawDesc), " ")
	return model.CanonicalRecord{
		Date:           date,
		Amount:         amount,
		Description:    desc,
		RawDescription: raw,
		MerchantHint:   NormalizeMerchant(desc),
	}, nil
}

func (cm *ColumnMapper) amount(rowNum int, row Row) (decimal.Decimal, *RowError) {
	switch cm.mapping.AmountMode {
	case model.AmountDebitCredit:
		debit, dok := row[cm.mapping.DebitColumn]
		credit, cok := row[cm.mapping.CreditColumn]
		if !dok || !cok {
			return decimal.Zero, &RowError{Row: rowNum, Reason: ReasonMissingColumn, Detail: "debit/credit"}
		}
		hasDebit, hasCredit := !isBlank(debit), !isBlank(credit)
		switch {
		case hasDebit && hasCredit:
			return decimal.Zero, &RowError{Row: rowNum, Reason: ReasonAmbiguousAmount, Detail: fmt.Sprintf("debit %q and credit %q", debit, credit)}
		case hasDebit:
			v, err := ParseAmount(debit, cm.mapping.DecimalComma)
			if err != nil {
				return decimal.Zero, &RowError{Row: rowNum, Reason: ReasonInvalidAmount, Detail: fmt.Sprintf("%q", debit)}
			}
			return v.Abs().Neg(), nil
		case hasCredit:
			v, err := ParseAmount(credit, cm.mapping.DecimalComma)
			if err != nil {
				return decimal.Zero, &RowError{Row: rowNum, Reason: ReasonInvalidAmount, Detail: fmt.Sprintf("%q", credit)}
			}
			return v.Abs(), nil
		default:
			return decimal.Zero, &RowError{Row: rowNum, Reason: ReasonMissingColumn, Detail: "neither debit nor credit populated"}
		}

	case model.AmountTypeColumn:
		raw, ok := row[cm.amountHeader]
		if !ok || strings.TrimSpace(raw) == "" {
			return decimal.Zero, &RowError{Row: rowNum, Reason: ReasonMissingColumn, Detail: cm.amountHeader}
		}
		typ, ok := row[cm.mapping.TypeColumn]
		if !ok {
			return decimal.Zero, &RowError{Row: rowNum, Reason: ReasonMissingColumn, Detail: cm.mapping.TypeColumn}
		}
		v, err := ParseAmount(raw, cm.mapping.DecimalComma)
		if err != nil {
			return decimal.Zero, &RowError{Row: rowNum, Reason: ReasonInvalidAmount, Detail: fmt.Sprintf("%q", raw)}
		}
		if cm.debitKeywords[strings.ToLower(strings.TrimSpace(typ))] {
			return v.Abs().Neg(), nil
		}
		return v.Abs(), nil

	default:
		raw, ok := row[cm.amountHeader]
		if !ok || strings.TrimSpace(raw) == "" {
			return decimal.Zero, &RowError{Row: rowNum, Reason: ReasonMissingColumn, Detail: cm.amountHeader}
		}
		v, err := ParseAmount(raw, cm.mapping.DecimalComma)
		if err != nil {
			return decimal.Zero, &RowError{Row: rowNum, Reason: ReasonInvalidAmount, Detail: fmt.Sprintf("%q", raw)}
		}
		return v, nil
	}
}

func (cm *ColumnMapper) parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var firstErr error
	for _, layout := range cm.layouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func isBlank(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "-", "--":
		return true
	}
	return false
}
