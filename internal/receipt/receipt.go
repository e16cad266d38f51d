// Package receipt renders a bill summary into the fixed-width text layout
// printed on thermal receipt paper. Formatting is pure: no I/O and no store
// access.
package receipt

import (
	"fmt"
	"strings"

	"github.com/meeteat/pos/internal/apperr"
)

// LineBreak terminates every receipt line.
const LineBreak = "\r\n"

// Item is one printed line item.
type Item struct {
	Name           string `json:"name"`
	Qty            int64  `json:"qty"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	LineTotalCents int64  `json:"lineTotalCents"`
}

// Summary is the bill data a receipt is printed from.
type Summary struct {
	BillNo          string `json:"billNo"`
	PrintedAt       string `json:"printedAt"`
	SubtotalCents   int64  `json:"subtotalCents"`
	DiscountRateBps int64  `json:"discountRateBps"`
	DiscountCents   int64  `json:"discountCents"`
	TotalCents      int64  `json:"totalCents"`
	Items           []Item `json:"items"`
}

const (
	DefaultTitle   = "MEET & EAT"
	DefaultTagline = "Fresh Food | Fast Service"
	DefaultClosing = "Thank you. Visit again!"

	// trailingBlankLines feed the last printed line past the tear bar.
	trailingBlankLines = 3
)

// Layout controls how a Summary is rendered.
type Layout struct {
	Width   int
	Clip    ClipMode
	Title   string
	Tagline string
	Closing string

	// OmitBranding drops the title and closing lines from the body, for
	// transports that print them with device emphasis themselves.
	OmitBranding bool
}

// DefaultLayout returns the stock layout for the given paper width.
func DefaultLayout(width int) Layout {
	return Layout{
		Width:   width,
		Clip:    ClipBytes,
		Title:   DefaultTitle,
		Tagline: DefaultTagline,
		Closing: DefaultClosing,
	}
}

// columns are the item table widths: name, qty, rate, amount. The four
// columns plus three separating spaces fill the paper width exactly.
type columns struct {
	name, qty, rate, amount int
}

var columnSets = map[int]columns{
	42: {name: 20, qty: 4, rate: 7, amount: 8},
	48: {name: 20, qty: 5, rate: 8, amount: 12},
}

// SupportedWidth reports whether width has a column layout.
func SupportedWidth(width int) bool {
	_, ok := columnSets[width]
	return ok
}

// Format renders s with layout l.
func Format(s Summary, l Layout) (string, error) {
	cols, ok := columnSets[l.Width]
	if !ok {
		return "", apperr.Newf(apperr.InvalidInput, "unsupported receipt width %d", l.Width)
	}
	text, err := newText(l.Clip)
	if err != nil {
		return "", err
	}

	sep := strings.Repeat("-", l.Width)
	var lines []string

	if !l.OmitBranding && l.Title != "" {
		lines = append(lines, text.fit(l.Title, l.Width))
	}
	if l.Tagline != "" {
		lines = append(lines, text.fit(l.Tagline, l.Width))
	}
	lines = append(lines,
		sep,
		text.twoCol("Bill: "+s.BillNo, s.PrintedAt, l.Width),
		sep,
		text.row(cols, "Item", "Qty", "Rate", "Amount"),
		sep,
	)

	for _, it := range s.Items {
		lines = append(lines, text.row(cols,
			it.Name,
			fmt.Sprint(it.Qty),
			Money(it.UnitPriceCents),
			Money(it.LineTotalCents),
		))
	}

	lines = append(lines,
		sep,
		text.twoCol("Subtotal", "Rs "+Money(s.SubtotalCents), l.Width),
		text.twoCol("Discount ("+Percent(s.DiscountRateBps)+"%)", "-Rs "+Money(s.DiscountCents), l.Width),
		text.twoCol("TOTAL", "Rs "+Money(s.TotalCents), l.Width),
		sep,
	)
	if !l.OmitBranding && l.Closing != "" {
		lines = append(lines, text.fit(l.Closing, l.Width))
	}
	for range trailingBlankLines {
		lines = append(lines, "")
	}

	return strings.Join(lines, LineBreak), nil
}
