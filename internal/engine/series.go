package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// CombineIntervals averages runs of four quarter hour prices into hourly
// prices. Each run must begin on the hour; misaligned entries are skipped
// and a trailing incomplete run is dropped.
func CombineIntervals(quarters []HourPrice) []HourPrice {
	const group = 4
	four := decimal.NewFromInt(group)

	hours := make([]HourPrice, 0, len(quarters)/group)
	for i := 0; i < len(quarters); {
		if quarters[i].Start.Minute() != 0 {
			i++
			continue
		}
		if i+group > len(quarters) {
			break
		}

		sum := decimal.Zero
		for _, q := range quarters[i : i+group] {
			sum = sum.Add(decimal.NewFromFloat(q.Value))
		}
		mean, _ := sum.Div(four).Round(2).Float64()

		first, last := quarters[i], quarters[i+group-1]
		hours = append(hours, HourPrice{
			Value: mean,
			Start: first.Start,
			End:   last.End,
			Type:  first.Type,
		})
		i += group
	}
	return hours
}

// DetectMTU infers the interval length of a start ordered series from the
// spacing of its first two entries
func DetectMTU(prices []HourPrice) (MTU, bool) {
	if len(prices) < 2 {
		return 0, false
	}
	switch prices[1].Start.Sub(prices[0].Start) {
	case 15 * time.Minute:
		return MTU15, true
	case time.Hour:
		return MTU60, true
	default:
		return 0, false
	}
}
