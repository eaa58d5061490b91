// Package categories manages the category tree.
package categories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cleared-dev/finscan/internal/model"
)

var (
	// ErrCycle is returned when a parent assignment would close a loop.
	ErrCycle = errors.New("category cycle")
	// ErrSystemCategory is returned when deleting seed data.
	ErrSystemCategory = errors.New("system categories cannot be deleted")
)

// MaxDepth bounds the ancestor walk. A chain longer than this is treated as
// a cycle.
const MaxDepth = 32

// Store is the persistence the category service needs.
type Store interface {
	CreateCategory(ctx context.Context, c model.Category) (int64, error)
	UpsertCategory(ctx context.Context, c model.Category) (int64, error)
	GetCategory(ctx context.Context, id int64) (model.Category, error)
	GetCategoryByName(ctx context.Context, name string) (model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	SetCategoryParent(ctx context.Context, id, parentID int64) error
	DeleteCategory(ctx context.Context, id int64) error
}

// Service enforces tree and seed-data rules on top of the store.
type Service struct {
	store Store
}

func NewService(s Store) *Service {
	return &Service{store: s}
}

// SeedDefaults upserts the system categories by name. Running it again, or
// concurrently, converges on the same rows. Existing parents are kept.
func (s *Service) SeedDefaults(ctx context.Context) (int, error) {
	ids := make(map[string]int64)
	for _, sd := range DefaultCategories() {
		id, err := s.store.UpsertCategory(ctx, sd.category(ids[sd.Parent]))
		if err != nil {
			return len(ids), fmt.Errorf("seeding %q: %w", sd.Name, err)
		}
		ids[sd.Name] = id
	}
	return len(ids), nil
}

// Create adds a user category. User categories are never system categories.
func (s *Service) Create(ctx context.Context, c model.Category) (model.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return model.Category{}, model.ValidationErrors{{Field: "Name", Description: "failed required"}}
	}
	c.IsSystem = false
	if c.ParentID != 0 {
		if _, err := s.store.GetCategory(ctx, c.ParentID); err != nil {
			return model.Category{}, fmt.Errorf("parent %d: %w", c.ParentID, err)
		}
	}

	id, err := s.store.CreateCategory(ctx, c)
	if err != nil {
		return model.Category{}, err
	}
	c.ID = id
	return c, nil
}

// SetParent re-parents id under parentID (0 = top-level) after walking
// parentID's ancestors to make sure id is not among them.
func (s *Service) SetParent(ctx context.Context, id, parentID int64) error {
	if _, err := s.store.GetCategory(ctx, id); err != nil {
		return err
	}
	if err := s.checkAncestry(ctx, id, parentID); err != nil {
		return err
	}
	return s.store.SetCategoryParent(ctx, id, parentID)
}

func (s *Service) checkAncestry(ctx context.Context, id, parentID int64) error {
	cur := parentID
	for depth := 0; cur != 0; depth++ {
		if cur == id {
			return fmt.Errorf("%w: %d is an ancestor of %d", ErrCycle, id, parentID)
		}
		if depth >= MaxDepth {
			return fmt.Errorf("%w: ancestry of %d deeper than %d", ErrCycle, parentID, MaxDepth)
		}
		c, err := s.store.GetCategory(ctx, cur)
		if err != nil {
			return fmt.Errorf("walking ancestors of %d: %w", parentID, err)
		}
		cur = c.ParentID
	}
	return nil
}

// Delete removes a user category.
func (s *Service) Delete(ctx context.Context, id int64) error {
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if c.IsSystem {
		return fmt.Errorf("%w: %q", ErrSystemCategory, c.Name)
	}
	return s.store.DeleteCategory(ctx, id)
}

// Lookup finds a category by name.
func (s *Service) Lookup(ctx context.Context, name string) (model.Category, error) {
	return s.store.GetCategoryByName(ctx, strings.TrimSpace(name))
}

// Node is a category with its depth in the tree.
type Node struct {
	model.Category
	Depth int
}

// Tree returns categories depth-first, siblings sorted by name.
func (s *Service) Tree(ctx context.Context) ([]Node, error) {
	all, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	children := make(map[int64][]model.Category)
	for _, c := range all {
		children[c.ParentID] = append(children[c.ParentID], c)
	}
	for _, cs := range children {
		sort.Slice(cs, func(i, j int) bool { return cs[i].Name < cs[j].Name })
	}

	var out []Node
	var walk func(parent int64, depth int)
	walk = func(parent int64, depth int) {
		if depth > MaxDepth {
			return
		}
		for _, c := range children[parent] {
			out = append(out, Node{Category: c, Depth: depth})
			walk(c.ID, depth+1)
		}
	}
	walk(0, 0)
	return out, nil
}
