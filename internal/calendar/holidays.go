package calendar

import (
	"fmt"
	"sort"
	"time"
)

// DeriveHolidays infers the holidays of a market from the days it actually
// traded. Every business day between the first and last reference day that
// is missing from reference is a holiday. A non-zero rangeStart or rangeEnd
// further clips the result.
//
// Reference days are normalized with Day, sorted and de-duplicated, so any
// ordering of the source is accepted. The returned slice is ascending and
// duplicate-free.
func DeriveHolidays(reference []time.Time, rangeStart, rangeEnd time.Time) ([]time.Time, error) {
	if len(reference) == 0 {
		return nil, fmt.Errorf("%w: no reference trading days", ErrConfiguration)
	}

	traded := make(map[time.Time]struct{}, len(reference))
	days := make([]time.Time, 0, len(reference))
	for _, t := range reference {
		d := Day(t)
		if _, ok := traded[d]; ok {
			continue
		}
		traded[d] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	first, last := days[0], days[len(days)-1]
	if !rangeStart.IsZero() && Day(rangeStart).After(first) {
		first = Day(rangeStart)
	}
	if !rangeEnd.IsZero() && Day(rangeEnd).Before(last) {
		last = Day(rangeEnd)
	}

	var holidays []time.Time
	for _, d := range BusinessDays(first, last) {
		if _, ok := traded[d]; !ok {
			holidays = append(holidays, d)
		}
	}
	return holidays, nil
}
