package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const secondsPerDay = 86400

// FileName returns the backup file name for t, e.g.
// meet-eat-20240501_120000.db. The local wall clock is derived from the
// epoch seconds and t's zone offset, so no timezone database is consulted.
func FileName(t time.Time) string {
	_, offset := t.Zone()
	secs := t.Unix() + int64(offset)

	days := floorDiv(secs, secondsPerDay)
	rem := secs - days*secondsPerDay
	y, m, d := civilFromDays(days)

	return fmt.Sprintf("%s%04d%02d%02d_%02d%02d%02d%s",
		filePrefix, y, m, d, rem/3600, rem%3600/60, rem%60, Extension)
}

// uniquePath returns dir/name when it is free, otherwise dir/<stem>_N.db
// with the smallest free N from 2. Callers hold the store lock, so two
// backups in the same second cannot pick the same path.
func uniquePath(dir, name string) (string, error) {
	stem := strings.TrimSuffix(name, Extension)
	path := filepath.Join(dir, name)
	for n := 2; ; n++ {
		_, err := os.Lstat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", err
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, Extension))
	}
}

// civilFromDays converts days since 1970-01-01 to a proleptic Gregorian
// date (Howard Hinnant's algorithm).
func civilFromDays(z int64) (year int64, month, day int) {
	z += 719468
	era := floorDiv(z, 146097)
	doe := z - era*146097                                  // [0, 146096]
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365 // [0, 399]
	doy := doe - (365*yoe + yoe/4 - yoe/100)               // [0, 365]
	mp := (5*doy + 2) / 153                                // [0, 11]

	day = int(doy - (153*mp+2)/5 + 1)
	if mp < 10 {
		month = int(mp + 3)
	} else {
		month = int(mp - 9)
	}
	year = yoe + era*400
	if month <= 2 {
		year++
	}
	return year, month, day
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
