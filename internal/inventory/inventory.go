// Package inventory manages the product catalog: categories, products and
// the human-facing item numbers (1-9999) printed on menus.
package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meeteat/pos/internal/apperr"
	"github.com/meeteat/pos/internal/clock"
	"github.com/meeteat/pos/internal/store"
)

const (
	MinItemNo = 1
	MaxItemNo = 9999

	// searchLimit caps SearchProducts results.
	searchLimit = 20
)

// Category is a product grouping, created on first reference by name.
type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Product is a catalog entry joined with its category name.
type Product struct {
	ID          int64  `json:"id"`
	ItemNo      *int64 `json:"item_no"`
	Name        string `json:"name"`
	CategoryID  *int64 `json:"category_id"`
	Category    string `json:"category_name"`
	PriceCents  int64  `json:"price_cents"`
	IsAvailable bool   `json:"is_available"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ProductInput carries the writable fields of a product.
type ProductInput struct {
	Name       string
	Category   string // resolved by name; empty means no category
	PriceCents int64
	ItemNo     *int64
}

// DeleteResult reports how DeleteProduct removed a product.
type DeleteResult struct {
	Deleted  bool `json:"deleted"`
	Disabled bool `json:"disabled"`
}

// Manager implements catalog operations over the store.
type Manager struct {
	store store.Access
	clock clock.Clock
	log   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for created_at/updated_at.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = clock.Or(c) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager creates a Manager using st for all store access.
func NewManager(st store.Access, opts ...Option) *Manager {
	m := &Manager{store: st, clock: clock.System{}, log: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

const productSelect = `
	SELECT p.id, p.item_no, p.name, p.category_id, COALESCE(c.name, ''),
	       p.price_cents, p.is_available, p.created_at, p.updated_at
	FROM products p
	LEFT JOIN categories c ON c.id = p.category_id
`

// Products with an item number come first, in number order, then by name.
const productOrder = ` ORDER BY (p.item_no IS NULL), p.item_no, p.name COLLATE BINARY, p.id`

// ListCategories returns all categories ordered by name.
func (m *Manager) ListCategories(ctx context.Context) ([]Category, error) {
	categories := []Category{}
	err := m.store.Run(ctx, func(q store.Querier) error {
		rows, err := q.QueryContext(ctx, `SELECT id, name, is_active FROM categories ORDER BY name COLLATE BINARY, id`)
		if err != nil {
			return fmt.Errorf("query categories: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var c Category
			if err := rows.Scan(&c.ID, &c.Name, &c.IsActive); err != nil {
				return fmt.Errorf("scan category: %w", err)
			}
			categories = append(categories, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return categories, nil
}

// ListProducts returns every product.
func (m *Manager) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	err := m.store.Run(ctx, func(q store.Querier) error {
		var err error
		products, err = queryProducts(ctx, q, productSelect+productOrder)
		return err
	})
	return products, err
}

// SearchProducts returns up to 20 products whose name, or item number as
// text, contains query. Matching is case-sensitive.
func (m *Manager) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	query = strings.TrimSpace(query)

	var products []Product
	err := m.store.Run(ctx, func(q store.Querier) error {
		var err error
		products, err = queryProducts(ctx, q, productSelect+`
			WHERE instr(p.name, ?) > 0
			   OR instr(COALESCE(CAST(p.item_no AS TEXT), ''), ?) > 0
		`+productOrder+fmt.Sprintf(" LIMIT %d", searchLimit), query, query)
		return err
	})
	return products, err
}

// GetProduct returns a single product.
func (m *Manager) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := m.store.Run(ctx, func(q store.Querier) error {
		var err error
		p, err = getProduct(ctx, q, id)
		return err
	})
	return p, err
}

// CreateProduct inserts a product. An explicit item number in [1, 9999] is
// used as given; otherwise the next free number is allocated.
func (m *Manager) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	if err := in.validate(); err != nil {
		return Product{}, err
	}

	var created Product
	err := m.store.RunTx(ctx, func(q store.Querier) error {
		categoryID, err := resolveCategory(ctx, q, in.Category)
		if err != nil {
			return err
		}

		now := clock.Stamp(m.clock.Now())
		insert := func(itemNo int64) (int64, error) {
			res, err := q.ExecContext(ctx, `
				INSERT INTO products (item_no, name, category_id, price_cents, is_available, created_at, updated_at)
				VALUES (?, ?, ?, ?, 1, ?, ?)
			`, itemNo, strings.TrimSpace(in.Name), categoryID, in.PriceCents, now, now)
			if err != nil {
				return 0, err
			}
			return res.LastInsertId()
		}

		var id int64
		if in.ItemNo != nil && ValidItemNo(*in.ItemNo) {
			id, err = insert(*in.ItemNo)
			if store.IsUniqueViolation(err) {
				return itemNoInUse(*in.ItemNo)
			}
		} else {
			id, err = allocateItemNo(ctx, q, insert)
		}
		if err != nil {
			return fmt.Errorf("create product: %w", err)
		}

		created, err = getProduct(ctx, q, id)
		return err
	})
	if err != nil {
		return Product{}, err
	}

	m.log.Info("product created", "product_id", created.ID, "item_no", derefItemNo(created.ItemNo))
	return created, nil
}

// UpdateProduct replaces the writable fields of a product. An item number
// outside [1, 9999] clears the number instead of failing.
func (m *Manager) UpdateProduct(ctx context.Context, id int64, in ProductInput) (Product, error) {
	if err := in.validate(); err != nil {
		return Product{}, err
	}

	var itemNo sql.NullInt64
	if in.ItemNo != nil && ValidItemNo(*in.ItemNo) {
		itemNo = sql.NullInt64{Int64: *in.ItemNo, Valid: true}
	}

	var updated Product
	err := m.store.RunTx(ctx, func(q store.Querier) error {
		categoryID, err := resolveCategory(ctx, q, in.Category)
		if err != nil {
			return err
		}

		res, err := q.ExecContext(ctx, `
			UPDATE products
			SET item_no = ?, name = ?, category_id = ?, price_cents = ?, updated_at = ?
			WHERE id = ?
		`, itemNo, strings.TrimSpace(in.Name), categoryID, in.PriceCents, clock.Stamp(m.clock.Now()), id)
		if store.IsUniqueViolation(err) {
			return itemNoInUse(itemNo.Int64)
		}
		if err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		if err := expectRow(res, id); err != nil {
			return err
		}

		updated, err = getProduct(ctx, q, id)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	return updated, nil
}

// SetAvailability sets the available flag. Setting the current value again
// succeeds.
func (m *Manager) SetAvailability(ctx context.Context, id int64, available bool) (Product, error) {
	var updated Product
	err := m.store.Run(ctx, func(q store.Querier) error {
		res, err := q.ExecContext(ctx, `UPDATE products SET is_available = ?, updated_at = ? WHERE id = ?`,
			available, clock.Stamp(m.clock.Now()), id)
		if err != nil {
			return fmt.Errorf("set availability: %w", err)
		}
		if err := expectRow(res, id); err != nil {
			return err
		}
		updated, err = getProduct(ctx, q, id)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	return updated, nil
}

// DeleteProduct removes a product. A product still referenced by bill items
// cannot be removed; it is marked unavailable instead and the result reports
// Disabled.
func (m *Manager) DeleteProduct(ctx context.Context, id int64) (DeleteResult, error) {
	var result DeleteResult
	err := m.store.Run(ctx, func(q store.Querier) error {
		res, err := q.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
		if store.IsForeignKeyViolation(err) {
			res, err = q.ExecContext(ctx, `UPDATE products SET is_available = 0, updated_at = ? WHERE id = ?`,
				clock.Stamp(m.clock.Now()), id)
			if err != nil {
				return fmt.Errorf("disable product: %w", err)
			}
			result = DeleteResult{Disabled: true}
			return expectRow(res, id)
		}
		if err != nil {
			return fmt.Errorf("delete product: %w", err)
		}
		result = DeleteResult{Deleted: true}
		return expectRow(res, id)
	})
	if err != nil {
		return DeleteResult{}, err
	}

	if result.Disabled {
		m.log.Info("product referenced by bills, disabled instead of deleted", "product_id", id)
	}
	return result, nil
}

// ValidItemNo reports whether n is inside the item number range.
func ValidItemNo(n int64) bool {
	return n >= MinItemNo && n <= MaxItemNo
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.New(apperr.InvalidInput, "name is required")
	}
	if in.PriceCents < 0 {
		return apperr.New(apperr.InvalidInput, "price_cents must be >= 0")
	}
	return nil
}

// resolveCategory returns the id of the named category, creating it if
// missing. An empty name resolves to NULL.
func resolveCategory(ctx context.Context, q store.Querier, name string) (sql.NullInt64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return sql.NullInt64{}, nil
	}

	_, err := q.ExecContext(ctx, `INSERT INTO categories (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name)
	if err != nil {
		return sql.NullInt64{}, fmt.Errorf("upsert category: %w", err)
	}

	var id int64
	if err := q.QueryRowContext(ctx, `SELECT id FROM categories WHERE name = ?`, name).Scan(&id); err != nil {
		return sql.NullInt64{}, fmt.Errorf("select category: %w", err)
	}
	return sql.NullInt64{Int64: id, Valid: true}, nil
}

func getProduct(ctx context.Context, q store.Querier, id int64) (Product, error) {
	products, err := queryProducts(ctx, q, productSelect+` WHERE p.id = ?`, id)
	if err != nil {
		return Product{}, err
	}
	if len(products) == 0 {
		return Product{}, apperr.Newf(apperr.NotFound, "product %d not found", id)
	}
	return products[0], nil
}

// queryProducts runs a productSelect query. Returns an empty slice (not nil)
// when nothing matches.
func queryProducts(ctx context.Context, q store.Querier, query string, args ...any) ([]Product, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		var p Product
		var itemNo, categoryID sql.NullInt64
		if err := rows.Scan(&p.ID, &itemNo, &p.Name, &categoryID, &p.Category,
			&p.PriceCents, &p.IsAvailable, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if itemNo.Valid {
			p.ItemNo = &itemNo.Int64
		}
		if categoryID.Valid {
			p.CategoryID = &categoryID.Int64
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func expectRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.Newf(apperr.NotFound, "product %d not found", id)
	}
	return nil
}

func itemNoInUse(n int64) error {
	return apperr.Newf(apperr.ItemNumberInUse, "item number %d is already in use", n)
}

func derefItemNo(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}
