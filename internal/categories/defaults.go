package categories

import "github.com/cleared-dev/finscan/internal/model"

// Seed is a system category and the name of its parent.
type Seed struct {
	Name    string
	Parent  string
	Expense bool
}

// DefaultCategories lists the seed tree. Parents precede their children.
func DefaultCategories() []Seed {
	return []Seed{
		{Name: "Income"},
		{Name: "Salary", Parent: "Income"},
		{Name: "Interest", Parent: "Income"},
		{Name: "Refunds", Parent: "Income"},
		{Name: "Transfers"},

		{Name: "Housing", Expense: true},
		{Name: "Rent", Parent: "Housing", Expense: true},
		{Name: "Mortgage", Parent: "Housing", Expense: true},
		{Name: "Utilities", Parent: "Housing", Expense: true},
		{Name: "Food", Expense: true},
		{Name: "Groceries", Parent: "Food", Expense: true},
		{Name: "Restaurants", Parent: "Food", Expense: true},
		{Name: "Transportation", Expense: true},
		{Name: "Fuel", Parent: "Transportation", Expense: true},
		{Name: "Public Transit", Parent: "Transportation", Expense: true},
		{Name: "Subscriptions", Expense: true},
		{Name: "Streaming", Parent: "Subscriptions", Expense: true},
		{Name: "Software", Parent: "Subscriptions", Expense: true},
		{Name: "Health", Expense: true},
		{Name: "Shopping", Expense: true},
		{Name: "Entertainment", Expense: true},
		{Name: "Travel", Expense: true},
		{Name: "Fees", Expense: true},
	}
}

func (s Seed) category(parentID int64) model.Category {
	return model.Category{Name: s.Name, ParentID: parentID, IsExpense: s.Expense, IsSystem: true}
}
