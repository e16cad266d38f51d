package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// BillNoPrefix precedes the zero-padded sequence in every bill number.
	BillNoPrefix = "MNE-"

	MinQty = 1
	MaxQty = 1000

	// MaxDiscountRateBps is 100%.
	MaxDiscountRateBps = 10000
)

var bpsDivisor = decimal.NewFromInt(10000)

// FormatBillNo renders a sequence value as a bill number, e.g. MNE-000042.
func FormatBillNo(seq int64) string {
	return fmt.Sprintf("%s%06d", BillNoPrefix, seq)
}

// DiscountCents returns subtotal x rate / 10000 rounded half away from zero.
func DiscountCents(subtotalCents, rateBps int64) int64 {
	return decimal.NewFromInt(subtotalCents).
		Mul(decimal.NewFromInt(rateBps)).
		Div(bpsDivisor).
		Round(0).
		IntPart()
}

// Totals returns subtotal, discount and total for already-normalized items.
func Totals(items []Item, rateBps int64) (subtotal, discount, total int64) {
	for _, it := range items {
		subtotal += it.LineTotalCents
	}
	discount = DiscountCents(subtotal, rateBps)
	return subtotal, discount, subtotal - discount
}

// clampRate keeps the discount within [0, 100%].
func clampRate(bps int64) int64 {
	return clamp(bps, 0, MaxDiscountRateBps)
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
