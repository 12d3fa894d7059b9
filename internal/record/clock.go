package record

import "time"

// Clock supplies wall-clock time for stamping records and lease expiry.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

// Now returns the current time, stamped.
func (SystemClock) Now() time.Time {
	return Stamp(time.Now())
}

// Stamp normalizes t to UTC with microsecond precision.
func Stamp(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Microsecond)
}
