// Package accounts manages the bank accounts that own imported transactions.
package accounts

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/finscan/internal/model"
)

// Store is the persistence the account service needs.
type Store interface {
	CreateAccount(ctx context.Context, a model.Account) (int64, error)
	GetAccount(ctx context.Context, id int64) (model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	DeleteAccount(ctx context.Context, id int64) error
}

// Service validates and persists accounts.
type Service struct {
	store Store
}

// NewService creates a Service over s.
func NewService(s Store) *Service {
	return &Service{store: s}
}

// Create validates a and stores it. Balance starts at zero and is only ever
// moved by transaction postings.
func (s *Service) Create(ctx context.Context, a model.Account) (model.Account, error) {
	if errs := model.ValidateStruct(a); len(errs) > 0 {
		return model.Account{}, errs
	}
	a.ID = 0
	a.Balance = decimal.Zero

	id, err := s.store.CreateAccount(ctx, a)
	if err != nil {
		return model.Account{}, fmt.Errorf("creating account %q: %w", a.Name, err)
	}
	a.ID = id
	return a, nil
}

// Get returns an account by ID.
func (s *Service) Get(ctx context.Context, id int64) (model.Account, error) {
	return s.store.GetAccount(ctx, id)
}

// All returns all accounts.
func (s *Service) All(ctx context.Context) ([]model.Account, error) {
	return s.store.ListAccounts(ctx)
}

// ByType returns all accounts of the given type.
func (s *Service) ByType(ctx context.Context, accountType model.AccountType) ([]model.Account, error) {
	all, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	var result []model.Account
	for _, a := range all {
		if a.Type == accountType {
			result = append(result, a)
		}
	}
	return result, nil
}

// Delete removes an account and, through the store's cascade, its transactions.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteAccount(ctx, id)
}

// CreateAll creates every account in order, stopping at the first failure.
// It returns the accounts created so far.
func (s *Service) CreateAll(ctx context.Context, accts []model.Account) ([]model.Account, error) {
	var created []model.Account
	for i, a := range accts {
		c, err := s.Create(ctx, a)
		if err != nil {
			return created, fmt.Errorf("account %d: %w", i+1, err)
		}
		created = append(created, c)
	}
	return created, nil
}
