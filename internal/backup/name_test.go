package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+30*60)
	west := time.FixedZone("W", -8*3600)

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"utc", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), "meet-eat-20240501_120000.db"},
		{"offset crosses new year", time.Date(2024, 12, 31, 20, 0, 0, 0, time.UTC).In(ist), "meet-eat-20250101_013000.db"},
		{"negative offset", time.Date(2024, 3, 1, 3, 4, 5, 0, time.UTC).In(west), "meet-eat-20240229_190405.db"},
		{"epoch", time.Unix(0, 0).UTC(), "meet-eat-19700101_000000.db"},
		{"before epoch", time.Date(1969, 12, 31, 23, 59, 59, 0, time.UTC), "meet-eat-19691231_235959.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.at))
		})
	}
}

func TestCivilFromDays_MatchesCalendar(t *testing.T) {
	start := time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC)

	for d := start; d.Before(end); d = d.AddDate(0, 0, 7) {
		days := d.Unix() / secondsPerDay
		y, m, day := civilFromDays(days)
		if y != int64(d.Year()) || m != int(d.Month()) || day != d.Day() {
			t.Fatalf("civilFromDays(%d) = %d-%02d-%02d, want %s", days, y, m, day, d.Format("2006-01-02"))
		}
	}
}

func TestFloorDiv(t *testing.T) {
	assert.Equal(t, int64(2), floorDiv(5, 2))
	assert.Equal(t, int64(-3), floorDiv(-5, 2))
	assert.Equal(t, int64(-1), floorDiv(-1, 86400))
	assert.Equal(t, int64(0), floorDiv(0, 86400))
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	name := "meet-eat-20240501_120000.db"

	got, err := uniquePath(dir, name)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, name), got)

	require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meet-eat-20240501_120000_2.db"), nil, 0o644))

	got, err = uniquePath(dir, name)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "meet-eat-20240501_120000_3.db"), got)
}
