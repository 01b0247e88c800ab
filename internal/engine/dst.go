package engine

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// wall strips the zone from t so that local clock readings can be compared
// across an offset change
func wall(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// sentinelPrice is large enough to lose every search and small enough that
// a full day of it still sums to a finite value
const sentinelPrice = math.MaxFloat64 / 1000

// Normalize coerces one day of prices to the canonical length for mtu.
// A day one hour short gets filler intervals at the clock gap. Fillers
// carry the most expensive price, or the cheapest when inverted, so they
// never win a search, and they have zero length at the instant of the gap
// so a selection spanning them never overlaps a real interval. A day one
// hour long loses the intervals whose clock reading repeats. Anything else
// is returned as is.
func Normalize(day []HourPrice, mtu MTU, inverted bool) []HourPrice {
	perDay, perHour := mtu.PerDay(), mtu.PerHour()
	switch len(day) {
	case perDay - perHour:
		return fillGap(day, mtu, inverted)
	case perDay + perHour:
		return dropRepeated(day)
	default:
		return day
	}
}

// NormalizeDay runs Normalize and fails when the result still is not one
// canonical day
func NormalizeDay(day []HourPrice, mtu MTU, inverted bool) ([]HourPrice, error) {
	out := Normalize(day, mtu, inverted)
	if len(out) != mtu.PerDay() {
		return nil, fmt.Errorf("%w: got %d prices for one day, expected %d", ErrValueNotFound, len(day), mtu.PerDay())
	}
	return out, nil
}

func fillGap(day []HourPrice, mtu MTU, inverted bool) []HourPrice {
	step := mtu.Duration()
	threshold := step + step/4

	sentinel := sentinelPrice
	if inverted {
		sentinel = -sentinelPrice
	}

	for i := 1; i < len(day); i++ {
		if wall(day[i].Start).Sub(wall(day[i-1].Start)) < threshold {
			continue
		}
		prev := day[i-1]
		filler := make([]HourPrice, mtu.PerHour())
		for k := range filler {
			filler[k] = NewHourPrice(sentinel, prev.End, prev.Type, 0)
		}
		return slices.Insert(slices.Clone(day), i, filler...)
	}
	return day
}

// isFiller reports whether p was inserted at a spring-forward gap
func isFiller(p HourPrice) bool {
	return !p.End.After(p.Start)
}

func dropRepeated(day []HourPrice) []HourPrice {
	seen := make(map[time.Time]struct{}, len(day))
	out := make([]HourPrice, 0, len(day))
	for _, p := range day {
		key := wall(p.Start)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
