// Package timestamp converts between time.Time and the Unix millisecond
// integers carried in the _timestamp attribute. Zero means "not set".
package timestamp

import (
	"strconv"
	"time"
)

// ToUnixMs converts t to Unix milliseconds, 0 for the zero time.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// String renders Unix milliseconds as a decimal string.
func String(ms int64) string {
	return strconv.FormatInt(ms, 10)
}
