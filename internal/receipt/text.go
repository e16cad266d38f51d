package receipt

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/meeteat/pos/internal/apperr"
)

// ClipMode selects how text length is measured when clipping and padding.
type ClipMode string

const (
	// ClipBytes measures encoded bytes. Whole characters are appended while
	// the clipped text is shorter than the column, so a multi-byte name can
	// overshoot the column but is never split. This matches the receipts
	// printed by earlier releases.
	ClipBytes ClipMode = "bytes"

	// ClipRunes measures characters after NFC normalization.
	ClipRunes ClipMode = "runes"
)

type text struct {
	length func(string) int
	fit    func(string, int) string
}

func newText(mode ClipMode) (text, error) {
	switch mode {
	case ClipBytes, "":
		return text{length: byteLen, fit: fitBytes}, nil
	case ClipRunes:
		return text{length: utf8.RuneCountInString, fit: fitRunes}, nil
	default:
		return text{}, apperr.Newf(apperr.InvalidInput, "unknown clip mode %q", mode)
	}
}

func byteLen(s string) int { return len(s) }

func fitBytes(s string, width int) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for _, r := range s {
		if b.Len() >= width {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}

func fitRunes(s string, width int) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	n := 0
	for i := range s {
		if n == width {
			return s[:i]
		}
		n++
	}
	return s
}

func (t text) padRight(s string, width int) string {
	if n := t.length(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func (t text) padLeft(s string, width int) string {
	if n := t.length(s); n < width {
		return strings.Repeat(" ", width-n) + s
	}
	return s
}

// twoCol right-aligns right and clips left into the remaining room, leaving
// at least one space between them. A right value that fills the width is
// printed alone.
func (t text) twoCol(left, right string, width int) string {
	rn := t.length(right)
	if rn >= width {
		return t.fit(right, width)
	}
	l := t.fit(left, max(width-rn-1, 0))
	return l + strings.Repeat(" ", max(width-t.length(l)-rn, 0)) + right
}

// row lays out one item table line. Only the name is clipped; numbers are
// padded. A number wider than its column takes the extra room from the name
// column so the row stays within the paper width.
func (t text) row(c columns, name, qty, rate, amount string) string {
	over := max(t.length(qty)-c.qty, 0) +
		max(t.length(rate)-c.rate, 0) +
		max(t.length(amount)-c.amount, 0)
	nameWidth := max(c.name-over, 0)
	return t.padRight(t.fit(name, nameWidth), nameWidth) + " " +
		t.padLeft(qty, c.qty) + " " +
		t.padLeft(rate, c.rate) + " " +
		t.padLeft(amount, c.amount)
}

// Money renders cents as fixed two-decimal text, e.g. 1999 -> "19.99".
func Money(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// Percent renders basis points as a two-decimal percentage, e.g. 250 -> "2.50".
func Percent(bps int64) string {
	return decimal.New(bps, -2).StringFixed(2)
}
