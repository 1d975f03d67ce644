package alz

import (
	"fmt"
	"time"
)

// DOSTime is a packed MS-DOS date and time.
//
// Bits 0-4 hold seconds/2, bits 5-10 minutes, bits 11-15 hours, bits 16-20 day, bits 21-24 month, and bits 25-31 the
// number of years since 1980.
type DOSTime uint32

func (t DOSTime) Year() int   { return int(t>>25&0x7f) + 1980 }
func (t DOSTime) Month() int  { return int(t >> 21 & 0x0f) }
func (t DOSTime) Day() int    { return int(t >> 16 & 0x1f) }
func (t DOSTime) Hour() int   { return int(t >> 11 & 0x1f) }
func (t DOSTime) Minute() int { return int(t >> 5 & 0x3f) }
func (t DOSTime) Second() int { return int(t&0x1f) << 1 }

// Valid reports whether the month and day are in range.
func (t DOSTime) Valid() bool {
	m, d := t.Month(), t.Day()
	return m >= 1 && m <= 12 && d >= 1 && d <= 31
}

// Time returns the timestamp interpreted as UTC, or the zero time.Time if !t.Valid().
//
// Out-of-range days, hours, and so on are normalised the way time.Date does.
func (t DOSTime) Time() time.Time {
	if !t.Valid() {
		return time.Time{}
	}

	return time.Date(t.Year(), time.Month(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// String formats the fields as "YYYY-MM-DD HH:MM:SS" without validation.
func (t DOSTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
}
