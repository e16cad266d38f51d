package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meeteat/pos/internal/apperr"
	"github.com/meeteat/pos/internal/store"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100

	// MaxPage keeps the row offset, (page-1)*limit, far from overflow.
	MaxPage = 10_000_000

	dateLayout = "2006-01-02"
)

// ListFilter selects a page of bills. Start and End are inclusive
// YYYY-MM-DD dates matched against created_at; BillNo is a substring.
type ListFilter struct {
	Page   int
	Limit  int
	BillNo string
	Start  string
	End    string
}

// Page is one page of bills, most recent first.
type Page struct {
	Bills []Bill `json:"bills"`
	Total int64  `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

// ListBills returns a page of bills matching f.
func (e *Engine) ListBills(ctx context.Context, f ListFilter) (Page, error) {
	f.normalize()

	where, args, err := f.where()
	if err != nil {
		return Page{}, err
	}

	page := Page{Bills: []Bill{}, Page: f.Page, Limit: f.Limit}
	err = e.store.Run(ctx, func(q store.Querier) error {
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bills`+where, args...).Scan(&page.Total); err != nil {
			return fmt.Errorf("count bills: %w", err)
		}

		rows, err := q.QueryContext(ctx, billSelect+where+` ORDER BY id DESC LIMIT ? OFFSET ?`,
			append(args, f.Limit, (f.Page-1)*f.Limit)...)
		if err != nil {
			return fmt.Errorf("query bills: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var b Bill
			if err := rows.Scan(billFields(&b)...); err != nil {
				return fmt.Errorf("scan bill: %w", err)
			}
			page.Bills = append(page.Bills, b)
		}
		return rows.Err()
	})
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

func (f *ListFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	f.BillNo = strings.TrimSpace(f.BillNo)
	f.Start = strings.TrimSpace(f.Start)
	f.End = strings.TrimSpace(f.End)
}

func (f ListFilter) where() (string, []any, error) {
	var clauses []string
	var args []any

	if f.BillNo != "" {
		clauses = append(clauses, "instr(bill_no, ?) > 0")
		args = append(args, f.BillNo)
	}
	if f.Start != "" {
		if _, err := time.Parse(dateLayout, f.Start); err != nil {
			return "", nil, apperr.Newf(apperr.InvalidInput, "start must be YYYY-MM-DD, got %q", f.Start)
		}
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.Start+" 00:00:00")
	}
	if f.End != "" {
		if _, err := time.Parse(dateLayout, f.End); err != nil {
			return "", nil, apperr.Newf(apperr.InvalidInput, "end must be YYYY-MM-DD, got %q", f.End)
		}
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.End+" 23:59:59")
	}

	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}
