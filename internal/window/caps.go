package window

import (
	"fmt"
	"strings"
)

// CapKind selects a per-dataset row ceiling.
type CapKind int

const (
	CapDay CapKind = iota
	CapMinute
	CapMinuteHalf
	CapTick
)

var capLimits = map[CapKind]int{
	CapDay:        1000,
	CapMinute:     1000,
	CapMinuteHalf: 500,
	CapTick:       180,
}

var capNames = map[CapKind]string{
	CapDay:        "day",
	CapMinute:     "minute",
	CapMinuteHalf: "minute-half",
	CapTick:       "tick",
}

// String returns the cap kind's name.
func (k CapKind) String() string {
	if n, ok := capNames[k]; ok {
		return n
	}
	return fmt.Sprintf("CapKind(%d)", int(k))
}

// ParseCapKind maps a name such as "minute-half" to a CapKind.
func ParseCapKind(s string) (CapKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, n := range capNames {
		if n == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown cap kind %q", s)
}

// CapFor returns the hard row ceiling for k. Unknown kinds get the smallest
// ceiling.
func CapFor(k CapKind) int {
	if n, ok := capLimits[k]; ok {
		return n
	}
	return capLimits[CapTick]
}

// Clamp bounds a requested row count by the ceiling of k. A non-positive
// request means "as many as allowed".
func Clamp(k CapKind, n int) int {
	limit := CapFor(k)
	if n <= 0 || n > limit {
		return limit
	}
	return n
}
