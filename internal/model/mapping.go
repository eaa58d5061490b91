package model

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// AmountMode selects how a row's signed amount is derived.
type AmountMode string

const (
	AmountSigned      AmountMode = "signed"
	AmountDebitCredit AmountMode = "debit_credit"
	AmountTypeColumn  AmountMode = "type_column"
)

// Canonical field names that a column mapping can bind.
const (
	FieldDate                = "date"
	FieldDescription         = "description"
	FieldAmount              = "amount"
	FieldOriginalDescription = "original_description"
)

var canonicalFields = map[string]bool{
	FieldDate:                true,
	FieldDescription:         true,
	FieldAmount:              true,
	FieldOriginalDescription: true,
}

// DefaultDebitKeywords are type-column values that mark an outflow.
var DefaultDebitKeywords = []string{"debit", "dr", "withdrawal", "expense", "payment", "purchase"}

// ColumnBinding maps one canonical field to a source CSV header.
type ColumnBinding struct {
	Field  string `json:"field" yaml:"field"`
	Header string `json:"header" yaml:"header"`
}

// CsvMapping describes how to read one bank's CSV export.
type CsvMapping struct {
	ID            int64           `yaml:"-"`
	Name          string          `yaml:"name" validate:"required,max=100"`
	AccountID     int64           `yaml:"account_id,omitempty"` // 0 = not bound to an account
	Columns       []ColumnBinding `yaml:"columns" validate:"required,min=1"`
	DateFormat    string          `yaml:"date_format" validate:"required"`
	AmountMode    AmountMode      `yaml:"amount_mode" validate:"required,oneof=signed debit_credit type_column"`
	DebitColumn   string          `yaml:"debit_column,omitempty" validate:"required_if=AmountMode debit_credit"`
	CreditColumn  string          `yaml:"credit_column,omitempty" validate:"required_if=AmountMode debit_credit"`
	TypeColumn    string          `yaml:"type_column,omitempty" validate:"required_if=AmountMode type_column"`
	DebitKeywords []string        `yaml:"debit_keywords,omitempty"`
	SkipRows      int             `yaml:"skip_rows,omitempty" validate:"gte=0"`
	DecimalComma  bool            `yaml:"decimal_comma,omitempty"` // 1.234,56 style numbers
}

// Header returns the source header bound to a canonical field.
func (m CsvMapping) Header(field string) (string, bool) {
	for _, c := range m.Columns {
		if c.Field == field {
			return c.Header, c.Header != ""
		}
	}
	return "", false
}

// RequiredHeaders lists every source header a row must provide under this mapping.
func (m CsvMapping) RequiredHeaders() []string {
	var hs []string
	for _, c := range m.Columns {
		hs = append(hs, c.Header)
	}
	switch m.AmountMode {
	case AmountDebitCredit:
		hs = append(hs, m.DebitColumn, m.CreditColumn)
	case AmountTypeColumn:
		hs = append(hs, m.TypeColumn)
	}
	return hs
}

// ValidationError describes a single mapping problem.
type ValidationError struct {
	Field       string
	Description string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Description)
}

// ValidationErrors collects every problem found in one value.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	msgs := make([]string, len(ve))
	for i, e := range ve {
		msgs[i] = e.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared struct validator.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks struct tags plus the cross-field rules a mapping must satisfy
// before any row can be trusted under it.
func (m CsvMapping) Validate() ValidationErrors {
	errs := structErrors(m)

	seen := make(map[string]bool)
	for _, c := range m.Columns {
		if !canonicalFields[c.Field] {
			errs = append(errs, ValidationError{Field: "Columns", Description: fmt.Sprintf("unknown canonical field %q", c.Field)})
			continue
		}
		if seen[c.Field] {
			errs = append(errs, ValidationError{Field: "Columns", Description: fmt.Sprintf("field %q mapped twice", c.Field)})
		}
		seen[c.Field] = true
		if strings.TrimSpace(c.Header) == "" {
			errs = append(errs, ValidationError{Field: "Columns", Description: fmt.Sprintf("field %q has no header", c.Field)})
		}
	}

	for _, f := range []string{FieldDate, FieldDescription} {
		if !seen[f] {
			errs = append(errs, ValidationError{Field: "Columns", Description: fmt.Sprintf("missing %q column", f)})
		}
	}
	if m.AmountMode != AmountDebitCredit && !seen[FieldAmount] {
		errs = append(errs, ValidationError{Field: "Columns", Description: fmt.Sprintf("amount mode %s needs an %q column", m.AmountMode, FieldAmount)})
	}
	if m.AmountMode == AmountDebitCredit && m.DebitColumn != "" && m.DebitColumn == m.CreditColumn {
		errs = append(errs, ValidationError{Field: "CreditColumn", Description: "debit and credit columns must differ"})
	}
	return errs
}

// ValidateStruct runs tag validation on any model value.
func ValidateStruct(v any) ValidationErrors {
	return structErrors(v)
}

func structErrors(v any) ValidationErrors {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{Field: "-", Description: err.Error()}}
	}
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		desc := "failed " + fe.Tag()
		if fe.Param() != "" {
			desc += "=" + fe.Param()
		}
		out = append(out, ValidationError{Field: fe.Field(), Description: desc})
	}
	return out
}
