package receipt

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meeteat/pos/internal/apperr"
)

func sampleSummary() Summary {
	return Summary{
		BillNo:          "MNE-000042",
		PrintedAt:       "2024-05-01 12:30:45",
		SubtotalCents:   126550,
		DiscountRateBps: 250,
		DiscountCents:   3164,
		TotalCents:      123386,
		Items: []Item{
			{Name: "Chicken Biryani Family Pack", Qty: 2, UnitPriceCents: 45000, LineTotalCents: 90000},
			{Name: "Masala Tea", Qty: 3, UnitPriceCents: 1500, LineTotalCents: 4500},
			{Name: "Paneer Tikka", Qty: 1, UnitPriceCents: 32050, LineTotalCents: 32050},
		},
	}
}

func TestFormat_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	printLayout := DefaultLayout(42)
	printLayout.OmitBranding = true

	tests := []struct {
		name   string
		layout Layout
	}{
		{"receipt_42", DefaultLayout(42)},
		{"receipt_48", DefaultLayout(48)},
		{"receipt_42_print", printLayout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Format(sampleSummary(), tt.layout)
			require.NoError(t, err)
			g.Assert(t, tt.name, []byte(out))
		})
	}
}

func TestFormat_LinesFitWidth(t *testing.T) {
	for _, width := range []int{42, 48} {
		out, err := Format(sampleSummary(), DefaultLayout(width))
		require.NoError(t, err)

		lines := strings.Split(out, LineBreak)
		for _, line := range lines {
			assert.LessOrEqual(t, len(line), width, "line %q", line)
			assert.NotContains(t, line, "\n")
		}
		assert.Equal(t, strings.Repeat("-", width), lines[2])
	}
}

func TestFormat_WideAmountStaysWithinWidth(t *testing.T) {
	s := sampleSummary()
	s.Items = []Item{
		{Name: "Chicken Biryani Family Pack", Qty: 1000, UnitPriceCents: 15000, LineTotalCents: 15000000},
		{Name: "Catering Tray", Qty: 1000, UnitPriceCents: 999999, LineTotalCents: 999999000},
	}

	for _, width := range []int{42, 48} {
		out, err := Format(s, DefaultLayout(width))
		require.NoError(t, err)

		var rows []string
		for _, line := range strings.Split(out, LineBreak) {
			assert.LessOrEqual(t, len(line), width, "line %q", line)
			if strings.HasPrefix(line, "Chicken") || strings.HasPrefix(line, "Catering") {
				rows = append(rows, line)
			}
		}
		require.Len(t, rows, 2)
		assert.True(t, strings.HasSuffix(rows[0], " 150000.00"), "row %q", rows[0])
		assert.True(t, strings.HasSuffix(rows[1], " 9999990.00"), "row %q", rows[1])
	}

	out, err := Format(s, DefaultLayout(42))
	require.NoError(t, err)
	assert.Contains(t, out, "Chicken Biryani Fam 1000  150.00 150000.00"+LineBreak)
	assert.Contains(t, out, "Catering Tray      1000 9999.99 9999990.00"+LineBreak)
}

func TestFormat_TruncatesLongNames(t *testing.T) {
	s := sampleSummary()
	s.Items = []Item{{Name: "  Chicken Biryani Family Pack  ", Qty: 1, UnitPriceCents: 100, LineTotalCents: 100}}

	out, err := Format(s, DefaultLayout(42))
	require.NoError(t, err)

	var row string
	for _, line := range strings.Split(out, LineBreak) {
		if strings.HasPrefix(line, "Chicken") {
			row = line
		}
	}
	require.NotEmpty(t, row)
	assert.Equal(t, "Chicken Biryani Fami", row[:20])
	assert.Equal(t, byte(' '), row[20])
	assert.NotContains(t, out, "Family")
	assert.NotContains(t, out, "...")
}

func TestFormat_TrailingPadding(t *testing.T) {
	out, err := Format(sampleSummary(), DefaultLayout(42))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, DefaultClosing+"\r\n\r\n\r\n"))
}

func TestFormat_Errors(t *testing.T) {
	_, err := Format(sampleSummary(), DefaultLayout(40))
	assert.True(t, apperr.Is(err, apperr.InvalidInput))

	l := DefaultLayout(42)
	l.Clip = "graphemes"
	_, err = Format(sampleSummary(), l)
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
}

func TestFormat_RuneClip(t *testing.T) {
	s := sampleSummary()
	// decomposed accents normalize to single runes before clipping
	s.Items = []Item{{Name: "Crème brûlée à la maison", Qty: 1, UnitPriceCents: 500, LineTotalCents: 500}}

	l := DefaultLayout(42)
	l.Clip = ClipRunes
	out, err := Format(s, l)
	require.NoError(t, err)
	assert.Contains(t, out, "Crème brûlée à la ma    1    5.00     5.00")
}

func TestTwoCol(t *testing.T) {
	txt, err := newText(ClipBytes)
	require.NoError(t, err)

	tests := []struct {
		name        string
		left, right string
		width       int
		want        string
	}{
		{"fits", "TOTAL", "Rs 12.00", 20, "TOTAL       Rs 12.00"},
		{"left clipped", "Total amount due today", "Rs 12.00", 20, "Total amoun Rs 12.00"},
		{"right fills width", "Bill: MNE-000001", strings.Repeat("x", 42), 42, strings.Repeat("x", 42)},
		{"right exceeds width", "ignored", "0123456789ABC", 10, "0123456789"},
		{"empty left", "", "Rs 1.00", 10, "   Rs 1.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, txt.twoCol(tt.left, tt.right, tt.width))
		})
	}
}

func TestFitBytes(t *testing.T) {
	assert.Equal(t, "Crème brûlée à l", fitBytes("Crème brûlée à la maison", 20))
	// whole characters only, so a multi-byte rune may overshoot by a byte
	assert.Equal(t, "abcdefghijklmnopqrsé", fitBytes("abcdefghijklmnopqrsé tail", 20))
	assert.Equal(t, "Tea", fitBytes("  Tea  ", 20))
}

func TestFitRunes(t *testing.T) {
	assert.Equal(t, "Crème brûlée à la ma", fitRunes("Crème brûlée à la maison", 20))
	assert.Equal(t, "Tea", fitRunes(" Tea ", 20))
	assert.Equal(t, "", fitRunes("Tea", 0))
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "0.00", Money(0))
	assert.Equal(t, "0.05", Money(5))
	assert.Equal(t, "19.99", Money(1999))
	assert.Equal(t, "-1.50", Money(-150))
	assert.Equal(t, "2.50", Percent(250))
	assert.Equal(t, "100.00", Percent(10000))
}
