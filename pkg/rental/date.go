package rental

import (
	"fmt"
	"iter"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a timezone-naive calendar day. It is the only date
// representation allowed past the ingestion boundary; values carrying a
// time-of-day or an offset are truncated to their calendar day on parse.
type Date struct {
	year  int
	month time.Month
	day   int
}

// NewDate validates a calendar day. Out-of-range components (such as
// February 30th) are rejected rather than normalized.
func NewDate(year int, month time.Month, day int) (Date, error) {
	candidate := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if candidate.Year() != year || candidate.Month() != month || candidate.Day() != day {
		return Date{}, fmt.Errorf("%w: %04d-%02d-%02d", ErrInvalidDate, year, int(month), day)
	}
	return Date{year: year, month: month, day: day}, nil
}

// ParseDate accepts an ISO calendar date, or an RFC 3339 timestamp which
// is truncated to its calendar day.
func ParseDate(raw string) (Date, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Date{}, fmt.Errorf("%w: empty value", ErrInvalidDate)
	}
	if parsed, err := time.Parse(dateLayout, trimmed); err == nil {
		return DateOf(parsed), nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return DateOf(parsed.UTC()), nil
}

// DateOf truncates an instant to its calendar day.
func DateOf(instant time.Time) Date {
	return Date{year: instant.Year(), month: instant.Month(), day: instant.Day()}
}

// String returns the ISO calendar date.
func (date Date) String() string {
	return date.startOfDay().Format(dateLayout)
}

// IsZero reports whether the date is the zero value.
func (date Date) IsZero() bool {
	return date == Date{}
}

// Before reports whether date falls strictly before other.
func (date Date) Before(other Date) bool {
	return date.startOfDay().Before(other.startOfDay())
}

// After reports whether date falls strictly after other.
func (date Date) After(other Date) bool {
	return other.Before(date)
}

// AddDays returns the date shifted by the given number of calendar days.
func (date Date) AddDays(days int) Date {
	return DateOf(date.startOfDay().AddDate(0, 0, days))
}

func (date Date) startOfDay() time.Time {
	return time.Date(date.year, date.month, date.day, 0, 0, 0, 0, time.UTC)
}

// MarshalJSON encodes the date as a quoted ISO calendar date.
func (date Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + date.String() + `"`), nil
}

// UnmarshalJSON decodes a quoted ISO date or RFC 3339 timestamp.
func (date *Date) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*date = parsed
	return nil
}

// DaysBetween returns the number of whole days from start to end,
// negative when end precedes start.
func DaysBetween(start Date, end Date) int {
	return int(end.startOfDay().Sub(start.startOfDay()) / (24 * time.Hour))
}

// Overlaps reports whether two inclusive calendar ranges share at least
// one day.
func Overlaps(aStart Date, aEnd Date, bStart Date, bEnd Date) bool {
	return !aStart.After(bEnd) && !bStart.After(aEnd)
}

// DaysInRange yields every calendar day from start to end inclusive. The
// sequence is empty when end precedes start and may be iterated any
// number of times.
func DaysInRange(start Date, end Date) iter.Seq[Date] {
	return func(yield func(Date) bool) {
		for day := start; !day.After(end); day = day.AddDays(1) {
			if !yield(day) {
				return
			}
		}
	}
}
