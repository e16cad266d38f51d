package inventory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/meeteat/pos/internal/apperr"
	"github.com/meeteat/pos/internal/store"
)

// maxAllocationAttempts bounds automatic item number allocation. A
// collision means an explicit assignment took the candidate between the
// MAX() read and the insert.
const maxAllocationAttempts = 3

// retry calls fn until it succeeds, fails with an error retryable rejects,
// or attempts calls have been made. It returns fn's last error.
func retry(attempts int, retryable func(error) bool, fn func(attempt int) error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(attempt)
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

// allocateItemNo inserts a product under the next free item number
// (current maximum + 1) using insert, retrying on uniqueness collisions.
func allocateItemNo(ctx context.Context, q store.Querier, insert func(itemNo int64) (int64, error)) (int64, error) {
	var id int64
	err := retry(maxAllocationAttempts, store.IsUniqueViolation, func(int) error {
		next, err := nextItemNo(ctx, q)
		if err != nil {
			return err
		}
		id, err = insert(next)
		return err
	})
	if store.IsUniqueViolation(err) {
		return 0, apperr.Wrap(apperr.AllocationExhausted,
			fmt.Sprintf("item number allocation failed after %d attempts", maxAllocationAttempts), err)
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// nextItemNo returns max(item_no)+1, failing when that leaves the range.
func nextItemNo(ctx context.Context, q store.Querier) (int64, error) {
	var current sql.NullInt64
	if err := q.QueryRowContext(ctx, `SELECT MAX(item_no) FROM products`).Scan(&current); err != nil {
		return 0, fmt.Errorf("read max item number: %w", err)
	}

	next := current.Int64 + 1
	if next > MaxItemNo {
		return 0, apperr.Newf(apperr.ItemNumberRangeExceeded,
			"next item number %d exceeds maximum %d", next, MaxItemNo)
	}
	return next, nil
}
