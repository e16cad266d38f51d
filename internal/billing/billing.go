// Package billing implements the bill transaction: sequence increment, bill
// and line-item insert in one atomic unit, plus the bill queries behind the
// history screens.
package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meeteat/pos/internal/apperr"
	"github.com/meeteat/pos/internal/clock"
	"github.com/meeteat/pos/internal/store"
)

// ItemInput is a candidate line item as sent by the till.
type ItemInput struct {
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Qty            int64  `json:"qty"`
}

// Request asks for a new bill.
type Request struct {
	Items           []ItemInput `json:"items"`
	DiscountRateBps int64       `json:"discount_rate_bps"`
}

// Bill is an issued bill. Items is only populated by GetBill and CreateBill.
type Bill struct {
	ID              int64  `json:"id"`
	BillNo          string `json:"bill_no"`
	SubtotalCents   int64  `json:"subtotal_cents"`
	DiscountRateBps int64  `json:"discount_rate_bps"`
	DiscountCents   int64  `json:"discount_cents"`
	TotalCents      int64  `json:"total_cents"`
	CreatedAt       string `json:"created_at"`
	Items           []Item `json:"items,omitempty"`
}

// Item is a persisted line item. ProductName and UnitPriceCents are
// snapshots taken when the bill was issued.
type Item struct {
	ID             int64  `json:"id"`
	BillID         int64  `json:"bill_id"`
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Qty            int64  `json:"qty"`
	LineTotalCents int64  `json:"line_total_cents"`
}

// Engine issues and reads bills.
type Engine struct {
	store store.Access
	clock clock.Clock
	log   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for created_at.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = clock.Or(c) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine creates an Engine using st for all store access.
func NewEngine(st store.Access, opts ...Option) *Engine {
	e := &Engine{store: st, clock: clock.System{}, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateBill validates the request and issues a bill atomically.
//
// Items with a non-positive product id or an empty name are dropped, qty is
// clamped to [1, 1000] and negative prices become 0. A request left with no
// items fails with NoValidItems before any store access, so it never
// consumes a bill number.
func (e *Engine) CreateBill(ctx context.Context, req Request) (Bill, error) {
	items := NormalizeItems(req.Items)
	if len(items) == 0 {
		return Bill{}, apperr.New(apperr.NoValidItems, "bill has no valid items")
	}

	rate := clampRate(req.DiscountRateBps)
	subtotal, discount, total := Totals(items, rate)

	bill := Bill{
		SubtotalCents:   subtotal,
		DiscountRateBps: rate,
		DiscountCents:   discount,
		TotalCents:      total,
		CreatedAt:       clock.Stamp(e.clock.Now()),
	}

	err := e.store.RunTx(ctx, func(q store.Querier) error {
		seq, err := nextBillSeq(ctx, q)
		if err != nil {
			return err
		}
		bill.BillNo = FormatBillNo(seq)

		res, err := q.ExecContext(ctx, `
			INSERT INTO bills (bill_no, subtotal_cents, discount_rate_bps, discount_cents, total_cents, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, bill.BillNo, bill.SubtotalCents, bill.DiscountRateBps, bill.DiscountCents, bill.TotalCents, bill.CreatedAt)
		if store.IsUniqueViolation(err) {
			return apperr.Wrap(apperr.ConstraintViolation, "bill number "+bill.BillNo+" already exists", err)
		}
		if err != nil {
			return fmt.Errorf("insert bill: %w", err)
		}
		if bill.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert bill: last insert id: %w", err)
		}

		for i := range items {
			items[i].BillID = bill.ID
			res, err := q.ExecContext(ctx, `
				INSERT INTO bill_items (bill_id, product_id, product_name, unit_price_cents, qty, line_total_cents)
				VALUES (?, ?, ?, ?, ?, ?)
			`, bill.ID, items[i].ProductID, items[i].ProductName, items[i].UnitPriceCents, items[i].Qty, items[i].LineTotalCents)
			if store.IsForeignKeyViolation(err) {
				return apperr.Newf(apperr.InvalidInput, "item %d references unknown product %d", i+1, items[i].ProductID)
			}
			if err != nil {
				return fmt.Errorf("insert bill item %d: %w", i+1, err)
			}
			if items[i].ID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("insert bill item %d: last insert id: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return Bill{}, err
	}

	bill.Items = items
	e.log.Info("bill created", "bill_no", bill.BillNo, "items", len(items), "total_cents", bill.TotalCents)
	return bill, nil
}

// NormalizeItems applies the line item rules and computes line totals.
func NormalizeItems(in []ItemInput) []Item {
	items := make([]Item, 0, len(in))
	for _, it := range in {
		name := strings.TrimSpace(it.ProductName)
		if it.ProductID <= 0 || name == "" {
			continue
		}
		qty := clamp(it.Qty, MinQty, MaxQty)
		price := max(it.UnitPriceCents, 0)
		items = append(items, Item{
			ProductID:      it.ProductID,
			ProductName:    name,
			UnitPriceCents: price,
			Qty:            qty,
			LineTotalCents: qty * price,
		})
	}
	return items
}

// nextBillSeq increments bill_seq and returns the new value. It is the only
// writer of bill_seq and must run inside the bill transaction, so a rollback
// returns the number.
func nextBillSeq(ctx context.Context, q store.Querier) (int64, error) {
	_, err := q.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, '0') ON CONFLICT(key) DO NOTHING`,
		store.SettingBillSeq)
	if err != nil {
		return 0, fmt.Errorf("ensure bill sequence: %w", err)
	}

	_, err = q.ExecContext(ctx, `UPDATE settings SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT) WHERE key = ?`,
		store.SettingBillSeq)
	if err != nil {
		return 0, fmt.Errorf("increment bill sequence: %w", err)
	}

	var seq int64
	err = q.QueryRowContext(ctx, `SELECT CAST(value AS INTEGER) FROM settings WHERE key = ?`, store.SettingBillSeq).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("read bill sequence: %w", err)
	}
	return seq, nil
}

// GetBill returns a bill with its items.
func (e *Engine) GetBill(ctx context.Context, id int64) (Bill, error) {
	var bill Bill
	err := e.store.Run(ctx, func(q store.Querier) error {
		err := q.QueryRowContext(ctx, billSelect+` WHERE id = ?`, id).Scan(billFields(&bill)...)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.Newf(apperr.NotFound, "bill %d not found", id)
		}
		if err != nil {
			return fmt.Errorf("query bill: %w", err)
		}

		bill.Items, err = billItems(ctx, q, id)
		return err
	})
	if err != nil {
		return Bill{}, err
	}
	return bill, nil
}

// Count returns the number of issued bills.
func (e *Engine) Count(ctx context.Context) (int64, error) {
	var n int64
	err := e.store.Run(ctx, func(q store.Querier) error {
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bills`).Scan(&n); err != nil {
			return fmt.Errorf("count bills: %w", err)
		}
		return nil
	})
	return n, err
}

const billSelect = `
	SELECT id, bill_no, subtotal_cents, discount_rate_bps, discount_cents, total_cents, created_at
	FROM bills
`

func billFields(b *Bill) []any {
	return []any{&b.ID, &b.BillNo, &b.SubtotalCents, &b.DiscountRateBps, &b.DiscountCents, &b.TotalCents, &b.CreatedAt}
}

func billItems(ctx context.Context, q store.Querier, billID int64) ([]Item, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, bill_id, product_id, product_name, unit_price_cents, qty, line_total_cents
		FROM bill_items
		WHERE bill_id = ?
		ORDER BY id ASC
	`, billID)
	if err != nil {
		return nil, fmt.Errorf("query bill items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.BillID, &it.ProductID, &it.ProductName,
			&it.UnitPriceCents, &it.Qty, &it.LineTotalCents); err != nil {
			return nil, fmt.Errorf("scan bill item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bill items: %w", err)
	}
	return items, nil
}
