// Package timecodec converts between the YYYY-MM-DD dates users type and the
// timestamps kept in the document store.
package timecodec

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the display format for best-before dates
const Layout = "2006-01-02"

// ErrInvalidDateFormat is returned when a date string is not YYYY-MM-DD
var ErrInvalidDateFormat = errors.New("invalid date format")

// ToStoreTimestamp parses a YYYY-MM-DD string into a UTC midnight timestamp
func ToStoreTimestamp(dateText string) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, dateText, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, dateText)
	}
	return t, nil
}

// ToDisplayString formats a timestamp back to YYYY-MM-DD
func ToDisplayString(ts time.Time) string {
	return ts.UTC().Format(Layout)
}
