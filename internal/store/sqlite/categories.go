package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cleared-dev/finscan/internal/model"
	"github.com/cleared-dev/finscan/internal/store"
)

const categoryColumns = `id, name, parent_id, is_expense, is_system`

// CreateCategory inserts a new category. A taken name yields store.ErrDuplicate.
func (s *Store) CreateCategory(ctx context.Context, c model.Category) (int64, error) {
	var id int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO categories (name, parent_id, is_expense, is_system)
			VALUES (?, ?, ?, ?)`,
			c.Name, nullInt(c.ParentID), c.IsExpense, c.IsSystem)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("creating category %q: %w", c.Name, err)
	}
	return id, nil
}

// UpsertCategory inserts a category or, if the name exists as a system
// category, refreshes its expense flag. A user-created category keeps its
// flags and is never promoted to a system one. The parent of an existing
// category is left alone. Returns the category ID.
func (s *Store) UpsertCategory(ctx context.Context, c model.Category) (int64, error) {
	var id int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO categories (name, parent_id, is_expense, is_system)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				is_expense = CASE WHEN categories.is_system
					THEN excluded.is_expense ELSE categories.is_expense END
			RETURNING id`,
			c.Name, nullInt(c.ParentID), c.IsExpense, c.IsSystem).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("upserting category %q: %w", c.Name, err)
	}
	return id, nil
}

// GetCategory returns a category by ID.
func (s *Store) GetCategory(ctx context.Context, id int64) (model.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	c, err := scanCategory(row)
	if err != nil {
		return model.Category{}, fmt.Errorf("getting category %d: %w", id, mapErr(err))
	}
	return c, nil
}

// GetCategoryByName returns a category by its unique name.
func (s *Store) GetCategoryByName(ctx context.Context, name string) (model.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE name = ?`, name)
	c, err := scanCategory(row)
	if err != nil {
		return model.Category{}, fmt.Errorf("getting category %q: %w", name, mapErr(err))
	}
	return c, nil
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", mapErr(err))
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning category: %w", mapErr(err))
		}
		out = append(out, c)
	}
	return out, mapErr(rows.Err())
}

// SetCategoryParent re-parents a category. Cycle checks belong to the caller.
func (s *Store) SetCategoryParent(ctx context.Context, id, parentID int64) error {
	err := s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE categories SET parent_id = ? WHERE id = ?`, nullInt(parentID), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("setting parent of category %d: %w", id, err)
	}
	return nil
}

// DeleteCategory removes a category. Children become top-level and
// transactions become uncategorized.
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	err := s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting category %d: %w", id, err)
	}
	return nil
}

func scanCategory(sc scanner) (model.Category, error) {
	var (
		c      model.Category
		parent sql.NullInt64
	)
	if err := sc.Scan(&c.ID, &c.Name, &parent, &c.IsExpense, &c.IsSystem); err != nil {
		return model.Category{}, err
	}
	c.ParentID = parent.Int64
	return c, nil
}
