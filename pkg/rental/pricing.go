package rental

import "fmt"

// TotalPrice computes the price of an inclusive rental span: the daily
// rate times the number of calendar days from start to end inclusive. A
// single-day rental costs exactly one day's rate.
func TotalPrice(dailyRateCents PriceCents, start Date, end Date) (PriceCents, error) {
	if end.Before(start) {
		return 0, fmt.Errorf("%w: end %s before start %s", ErrInvalidDateRange, end, start)
	}
	days := int64(DaysBetween(start, end)) + 1
	return NewPriceCents(dailyRateCents.Int64() * days)
}
