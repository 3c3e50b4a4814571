package window

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layouts accepted for range bounds and row time fields.
const (
	TimestampLayout = "2006-01-02 15:04:05"
	DateLayout      = "2006-01-02"
	compactDate     = "20060102"
)

// ErrRangeParse marks a range whose bounds could not be parsed. Callers that
// receive it still get a usable, unbounded TimeRange.
var ErrRangeParse = errors.New("invalid time range")

// TimeRange is an optional inclusive interval. A nil bound is unbounded.
type TimeRange struct {
	Start *time.Time
	End   *time.Time
}

// Unbounded reports whether neither side is set.
func (r TimeRange) Unbounded() bool { return r.Start == nil && r.End == nil }

// Contains reports whether t lies within the range, bounds inclusive.
func (r TimeRange) Contains(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && t.After(*r.End) {
		return false
	}
	return true
}

// Overlaps reports whether the interval [bob, eob] touches the range.
func (r TimeRange) Overlaps(bob, eob time.Time) bool {
	if r.Start != nil && eob.Before(*r.Start) {
		return false
	}
	if r.End != nil && bob.After(*r.End) {
		return false
	}
	return true
}

func (r TimeRange) String() string {
	format := func(t *time.Time) string {
		if t == nil {
			return "*"
		}
		return t.Format(TimestampLayout)
	}
	return "[" + format(r.Start) + ", " + format(r.End) + "]"
}

// ParseDateRange parses calendar-date bounds (yyyy-MM-dd or yyyyMMdd; any
// time part is ignored). Empty strings are unbounded. If either bound is
// invalid the whole range is dropped and an error wrapping ErrRangeParse is
// returned alongside the unbounded range.
func ParseDateRange(start, end string) (TimeRange, error) {
	return parseRange(start, end, ParseDate)
}

// ParseTimestampRange parses yyyy-MM-dd HH:mm:ss bounds with the same
// fail-open behavior as ParseDateRange.
func ParseTimestampRange(start, end string) (TimeRange, error) {
	return parseRange(start, end, ParseTimestamp)
}

func parseRange(start, end string, parse func(string) (time.Time, error)) (TimeRange, error) {
	var r TimeRange
	if s := strings.TrimSpace(start); s != "" {
		t, err := parse(s)
		if err != nil {
			return TimeRange{}, fmt.Errorf("%w: start %q: %v", ErrRangeParse, start, err)
		}
		r.Start = &t
	}
	if s := strings.TrimSpace(end); s != "" {
		t, err := parse(s)
		if err != nil {
			return TimeRange{}, fmt.Errorf("%w: end %q: %v", ErrRangeParse, end, err)
		}
		r.End = &t
	}
	return r, nil
}

// ParseTimestamp parses a row or bound timestamp. A "created_at:" label and
// any zone suffix ("+08:00", "-05:00", "Z") are removed first; the result is
// a wall-clock time in UTC. Fractional seconds are accepted.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "created_at:")
	s = strings.Trim(strings.TrimSpace(s), `"`)
	s = trimZone(s)
	if len(s) > 10 && s[10] == 'T' {
		s = s[:10] + " " + s[11:]
	}
	return time.Parse(TimestampLayout, s)
}

// ParseDate parses the calendar date of s, ignoring any time part.
func ParseDate(s string) (time.Time, error) {
	s = strings.Trim(strings.TrimSpace(s), `"`)
	if i := strings.IndexAny(s, " T"); i >= 0 {
		s = s[:i]
	}
	if len(s) == len(compactDate) {
		return time.Parse(compactDate, s)
	}
	return time.Parse(DateLayout, s)
}

func trimZone(s string) string {
	if i := strings.IndexByte(s, '+'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	if strings.HasSuffix(s, "Z") {
		return s[:len(s)-1]
	}
	// A '-' past the date part starts a negative offset.
	if i := strings.LastIndexByte(s, '-'); i > len(DateLayout) {
		return strings.TrimSpace(s[:i])
	}
	return s
}
