package engine

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	// ErrInvalidInput means selection parameters violate the algorithm preconditions
	ErrInvalidInput = errors.New("invalid input parameters")
	// ErrValueNotFound means upstream price data is missing, stale or malformed
	ErrValueNotFound = errors.New("price values not found")
	// ErrSystemConfiguration means the configuration does not match the provider data
	ErrSystemConfiguration = errors.New("system configuration mismatch")
	// ErrInvalidEntityState means a dynamic parameter could not be resolved to a number
	ErrInvalidEntityState = errors.New("invalid entity state")
)

// SelectSequential finds the single contiguous block of q.WindowLength
// intervals with the lowest (or, inverted, highest) total price.
// Ties keep the earliest block.
func SelectSequential(today, tomorrow []HourPrice, q Query) (Selection, error) {
	if q.PriceLimit != nil {
		return Selection{}, fmt.Errorf("%w: price limit is not supported by sequential selection", ErrInvalidInput)
	}
	if err := q.validate(len(today), len(tomorrow)); err != nil {
		return Selection{}, err
	}
	n := q.WindowLength
	if n == 0 {
		return Selection{}, fmt.Errorf("%w: sequential selection needs at least one interval", ErrInvalidInput)
	}

	prices := slices.Concat(today, tomorrow)
	start, end := q.bounds()
	if start+n > end {
		return Selection{}, fmt.Errorf("%w: %d intervals do not fit between %d and %d", ErrInvalidInput, n, start, end)
	}

	// Blocks are ranked by the number of gap fillers they contain, then by
	// the sum of their real prices.
	best, bestFillers := -1, 0
	bestSum := 0.0
	for i := start + n; i <= end; i++ {
		fillers, sum := 0, 0.0
		for _, p := range prices[i-n : i] {
			if isFiller(p) {
				fillers++
				continue
			}
			sum += p.Value
		}

		better := best < 0 || fillers < bestFillers ||
			fillers == bestFillers && (q.Inverted && sum > bestSum || !q.Inverted && sum < bestSum)
		if better {
			best, bestFillers, bestSum = i-n, fillers, sum
		}
	}

	block := prices[best : best+n]
	stats := statsOf(block)
	if stats.Mean == nil {
		return Selection{Windows: []Window{}}, nil
	}
	return Selection{
		Windows: []Window{{Start: block[0].Start, End: block[n-1].End}},
		Stats:   stats,
	}, nil
}

// SelectNonSequential ranks every interval in the search range by price,
// keeps the best q.WindowLength of them, drops those beyond the price limit
// and merges the survivors into contiguous windows.
func SelectNonSequential(today, tomorrow []HourPrice, q Query) (Selection, error) {
	if err := q.validate(len(today), len(tomorrow)); err != nil {
		return Selection{}, err
	}

	prices := slices.Concat(today, tomorrow)
	start, end := q.bounds()
	candidates := slices.Clone(prices[start:end])

	slices.SortStableFunc(candidates, func(a, b HourPrice) int {
		c := cmp.Or(cmp.Compare(a.Value, b.Value), a.Start.Compare(b.Start))
		if q.Inverted {
			return -c
		}
		return c
	})
	if len(candidates) > q.WindowLength {
		candidates = candidates[:q.WindowLength]
	}
	slices.SortStableFunc(candidates, func(a, b HourPrice) int {
		return a.Start.Compare(b.Start)
	})

	if limit := q.PriceLimit; limit != nil {
		candidates = slices.DeleteFunc(candidates, func(p HourPrice) bool {
			if q.Inverted {
				return p.Value < *limit
			}
			return p.Value > *limit
		})
	}

	candidates = slices.DeleteFunc(candidates, isFiller)
	return Selection{
		Windows: mergeAdjacent(candidates),
		Stats:   statsOf(candidates),
	}, nil
}

// validate checks the query against the algorithm preconditions
func (q Query) validate(todayLen, tomorrowLen int) error {
	if !q.MTU.Valid() {
		return fmt.Errorf("%w: unsupported interval length %d", ErrInvalidInput, q.MTU)
	}
	perDay, perHour := q.MTU.PerDay(), q.MTU.PerHour()
	if todayLen != perDay || tomorrowLen != perDay {
		return fmt.Errorf("%w: expected %d prices per day, got %d and %d", ErrInvalidInput, perDay, todayLen, tomorrowLen)
	}
	if q.FirstInterval < 0 || q.FirstInterval >= perDay || q.LastInterval < 0 || q.LastInterval >= perDay {
		return fmt.Errorf("%w: interval bounds %d-%d outside of day", ErrInvalidInput, q.FirstInterval, q.LastInterval)
	}
	if q.WindowLength < 0 || q.WindowLength > perDay {
		return fmt.Errorf("%w: window of %d intervals exceeds one day", ErrInvalidInput, q.WindowLength)
	}

	// Ordering is checked on whole hours so a 15 minute query accepts the
	// same first/last hour pairs as an hourly one.
	first, last := q.FirstInterval/perHour, q.LastInterval/perHour
	if q.AnchorToday && first < last {
		return fmt.Errorf("%w: first hour %d must not precede last hour %d when starting today", ErrInvalidInput, first, last)
	}
	if !q.AnchorToday && last < first {
		return fmt.Errorf("%w: last hour %d must not precede first hour %d when starting tomorrow", ErrInvalidInput, last, first)
	}
	return nil
}

// bounds returns the half open search range over today ++ tomorrow
func (q Query) bounds() (start, end int) {
	perDay := q.MTU.PerDay()
	start = q.FirstInterval
	if !q.AnchorToday {
		start += perDay
	}
	end = q.LastInterval + 1 + perDay
	return start, end
}

// mergeAdjacent turns start ordered prices into windows, joining every
// interval whose start equals the previous end
func mergeAdjacent(prices []HourPrice) []Window {
	windows := make([]Window, 0, len(prices))
	for _, p := range prices {
		if n := len(windows); n > 0 && windows[n-1].End.Equal(p.Start) {
			windows[n-1].End = p.End
			continue
		}
		windows = append(windows, Window{Start: p.Start, End: p.End})
	}
	return windows
}

// statsOf summarises the real prices among prices, gap fillers excluded
func statsOf(prices []HourPrice) Stats {
	count, sum := 0, 0.0
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range prices {
		if isFiller(p) {
			continue
		}
		count++
		sum += p.Value
		lo = min(lo, p.Value)
		hi = max(hi, p.Value)
	}
	if count == 0 {
		return Stats{}
	}
	mean := sum / float64(count)
	return Stats{Mean: &mean, Min: &lo, Max: &hi}
}
