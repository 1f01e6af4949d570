package report

import (
	"errors"
	"time"
)

// ComputePeriod derives the report window for periodType relative to
// `now`, per spec.md §4.K's period table. All boundaries are computed
// in `now`'s location.
func ComputePeriod(periodType PeriodType, now time.Time) (Period, error) {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch periodType {
	case PeriodDaily:
		yesterday := today.AddDate(0, 0, -1)
		return Period{Start: yesterday, End: endOfDay(yesterday), Type: PeriodTagPointInTime}, nil

	case PeriodWeekly:
		start := today.AddDate(0, 0, -7)
		end := endOfDay(today.AddDate(0, 0, -1))
		return Period{Start: start, End: end, Type: PeriodTagPeriod}, nil

	case PeriodMonthly:
		firstOfThisMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
		firstOfPrevMonth := firstOfThisMonth.AddDate(0, -1, 0)
		lastOfPrevMonth := firstOfThisMonth.AddDate(0, 0, -1)
		return Period{Start: firstOfPrevMonth, End: endOfDay(lastOfPrevMonth), Type: PeriodTagPeriod}, nil

	case PeriodQuarterly:
		quarterStartMonth := time.Month(((int(today.Month())-1)/3)*3 + 1)
		firstOfThisQuarter := time.Date(today.Year(), quarterStartMonth, 1, 0, 0, 0, 0, loc)
		firstOfPrevQuarter := firstOfThisQuarter.AddDate(0, -3, 0)
		lastOfPrevQuarter := firstOfThisQuarter.AddDate(0, 0, -1)
		return Period{Start: firstOfPrevQuarter, End: endOfDay(lastOfPrevQuarter), Type: PeriodTagPeriod}, nil

	case PeriodYearly:
		prevYear := today.Year() - 1
		start := time.Date(prevYear, time.January, 1, 0, 0, 0, 0, loc)
		end := time.Date(prevYear, time.December, 31, 0, 0, 0, 0, loc)
		return Period{Start: start, End: endOfDay(end), Type: PeriodTagPeriod}, nil

	default:
		return Period{}, ErrUnknownPeriodType
	}
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// ErrUnknownPeriodType is returned for a PeriodType not in the table.
var ErrUnknownPeriodType = errors.New("report: unknown period type")
