package model

import "github.com/shopspring/decimal"

// AccountType classifies bank accounts.
type AccountType string

const (
	AccountTypeChecking   AccountType = "checking"
	AccountTypeSavings    AccountType = "savings"
	AccountTypeCreditCard AccountType = "credit_card"
	AccountTypeInvestment AccountType = "investment"
	AccountTypeCash       AccountType = "cash"
	AccountTypeMortgage   AccountType = "mortgage"
)

// Account is a bank account that owns imported transactions.
type Account struct {
	ID          int64
	Name        string          `validate:"required,max=100"`
	Type        AccountType     `validate:"required,oneof=checking savings credit_card investment cash mortgage"`
	Institution string          `validate:"max=100"`
	LastFour    string          `validate:"omitempty,len=4,numeric"`
	Balance     decimal.Decimal // maintained by the store on transaction insert/delete
}

// Category groups transactions. Categories form a tree through ParentID.
type Category struct {
	ID        int64
	Name      string
	ParentID  int64 // 0 = top-level
	IsExpense bool
	IsSystem  bool
}
