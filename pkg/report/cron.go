package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cron is a parsed 5-field cron expression: minute hour day-of-month
// month day-of-week. spec.md §4.K requires exactly 5 fields and
// rejects 7-field (seconds/year) variants some cron dialects allow.
type Cron struct {
	minute     fieldSet
	hour       fieldSet
	dayOfMonth fieldSet
	month      fieldSet
	dayOfWeek  fieldSet
	expr       string
}

// fieldSet is the set of values a cron field accepts, as a sorted
// bitmap over [min,max].
type fieldSet struct {
	min, max int
	allowed  map[int]bool
}

func (fs fieldSet) has(v int) bool {
	if len(fs.allowed) == 0 {
		return true
	}
	return fs.allowed[v]
}

// ErrInvalidCron is returned for malformed cron expressions, including
// the 7-field case spec.md explicitly rejects.
var ErrInvalidCron = fmt.Errorf("report: invalid cron expression")

// ParseCron parses a 5-field cron expression. Supported syntax per
// field: "*", a single integer, a comma-separated list, a range
// "a-b", and a step "*/n" or "a-b/n".
func ParseCron(expr string) (Cron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return Cron{}, fmt.Errorf("%w: expected 5 fields, got %d", ErrInvalidCron, len(fields))
	}

	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	parsed := make([]fieldSet, 5)
	for i, f := range fields {
		fs, err := parseField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return Cron{}, fmt.Errorf("%w: field %d (%q): %v", ErrInvalidCron, i, f, err)
		}
		parsed[i] = fs
	}

	return Cron{
		minute: parsed[0], hour: parsed[1], dayOfMonth: parsed[2],
		month: parsed[3], dayOfWeek: parsed[4], expr: expr,
	}, nil
}

func parseField(raw string, min, max int) (fieldSet, error) {
	fs := fieldSet{min: min, max: max, allowed: make(map[int]bool)}

	for _, part := range strings.Split(raw, ",") {
		base := part
		step := 1
		if idx := strings.Index(part, "/"); idx >= 0 {
			base = part[:idx]
			n, err := strconv.Atoi(part[idx+1:])
			if err != nil || n <= 0 {
				return fieldSet{}, fmt.Errorf("invalid step %q", part[idx+1:])
			}
			step = n
		}

		lo, hi := min, max
		switch {
		case base == "*":
			// full range, already set
		case strings.Contains(base, "-"):
			bounds := strings.SplitN(base, "-", 2)
			var err error
			lo, err = strconv.Atoi(bounds[0])
			if err != nil {
				return fieldSet{}, fmt.Errorf("invalid range start %q", bounds[0])
			}
			hi, err = strconv.Atoi(bounds[1])
			if err != nil {
				return fieldSet{}, fmt.Errorf("invalid range end %q", bounds[1])
			}
		default:
			v, err := strconv.Atoi(base)
			if err != nil {
				return fieldSet{}, fmt.Errorf("invalid value %q", base)
			}
			lo, hi = v, v
		}

		if lo < min || hi > max || lo > hi {
			return fieldSet{}, fmt.Errorf("value out of range [%d,%d]", min, max)
		}
		for v := lo; v <= hi; v += step {
			fs.allowed[v] = true
		}
	}

	// "*" with no step narrows nothing; empty allowed means "any".
	if raw == "*" {
		fs.allowed = nil
	}
	return fs, nil
}

// String returns the original expression text.
func (c Cron) String() string { return c.expr }

// Next returns the next firing time strictly after `after`, in
// `after`'s location (host local time per spec.md §4.K).
func (c Cron) Next(after time.Time) time.Time {
	t := after.Add(time.Minute).Truncate(time.Minute)
	// Bounded search: at most ~4 years of minutes covers every
	// representable combination (e.g. Feb 29 + specific weekday).
	limit := t.AddDate(4, 0, 0)
	for t.Before(limit) {
		if c.month.has(int(t.Month())) && c.dayOfWeekMatches(t) {
			if c.hour.has(t.Hour()) && c.minute.has(t.Minute()) {
				return t
			}
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

// dayOfWeekMatches applies the cron convention that day-of-month and
// day-of-week are OR'd together when both are restricted, and treated
// normally (AND, trivially true) when either is "*".
func (c Cron) dayOfWeekMatches(t time.Time) bool {
	dowRestricted := len(c.dayOfWeek.allowed) > 0
	domRestricted := len(c.dayOfMonth.allowed) > 0
	if dowRestricted && domRestricted {
		return c.dayOfWeek.has(int(t.Weekday())) || c.dayOfMonth.has(t.Day())
	}
	return c.dayOfWeek.has(int(t.Weekday())) && c.dayOfMonth.has(t.Day())
}
