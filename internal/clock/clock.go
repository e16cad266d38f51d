// Package clock provides the wall-clock capability used for bill timestamps
// and backup file names.
package clock

import "time"

// Clock returns the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// System reads the process clock.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time {
	return time.Now()
}

// Or returns c, or System when c is nil.
func Or(c Clock) Clock {
	if c == nil {
		return System{}
	}
	return c
}

// Layout is the text form of timestamps persisted by the store.
const Layout = "2006-01-02 15:04:05"

// Stamp formats t with Layout in t's own location.
func Stamp(t time.Time) string {
	return t.Format(Layout)
}
