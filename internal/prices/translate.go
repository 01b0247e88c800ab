package prices

import (
	"fmt"
	"slices"
	"time"

	"github.com/awaistahir/smart-window/internal/engine"
)

// RawPrice is one price entry as published by an integration. Nord Pool
// uses value/start/end, the official Nord Pool service price/start/end and
// Entso-e price/time.
type RawPrice struct {
	Value *float64 `json:"value,omitempty"`
	Price *float64 `json:"price,omitempty"`
	Start string   `json:"start,omitempty"`
	End   string   `json:"end,omitempty"`
	Time  string   `json:"time,omitempty"`
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05Z07:00", "2006-01-02T15:04:05"}

func parseTime(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), true
		}
	}
	return time.Time{}, false
}

// convert maps a raw entry to the uniform model. The end is zero when the
// provider did not publish one.
func (r RawPrice) convert(kind engine.PriceType, loc *time.Location) (engine.HourPrice, bool) {
	var value *float64
	var start, end string
	switch kind {
	case engine.PriceEntsoe:
		value, start = r.Price, r.Time
	case engine.PriceNordPoolOfficial:
		value, start, end = r.Price, r.Start, r.End
	default:
		value, start, end = r.Value, r.Start, r.End
	}
	if value == nil {
		return engine.HourPrice{}, false
	}

	s, ok := parseTime(start, loc)
	if !ok {
		return engine.HourPrice{}, false
	}
	p := engine.HourPrice{Value: *value, Start: s, Type: kind}
	if e, ok := parseTime(end, loc); ok && e.After(s) {
		p.End = e
	}
	return p, true
}

// series is a parsed provider series in its native granularity
type series struct {
	prices []engine.HourPrice
	mtu    engine.MTU
}

// parse converts, orders and measures a raw series. Malformed entries are
// dropped and surface later as a length mismatch.
func parse(raw []RawPrice, kind engine.PriceType, loc *time.Location) series {
	out := make([]engine.HourPrice, 0, len(raw))
	for _, r := range raw {
		if p, ok := r.convert(kind, loc); ok {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b engine.HourPrice) int { return a.Start.Compare(b.Start) })

	mtu, ok := engine.DetectMTU(out)
	if !ok {
		mtu = engine.MTU60
	}
	for i := range out {
		if out[i].End.IsZero() {
			out[i].End = out[i].Start.Add(mtu.Duration())
		}
	}
	return series{prices: out, mtu: mtu}
}

// adapt brings a series to the requested interval length. Quarter hour data
// is combined into hours; hourly data cannot serve a quarter hour request.
func (s series) adapt(want engine.MTU) ([]engine.HourPrice, error) {
	switch {
	case s.mtu == want:
		return s.prices, nil
	case s.mtu == engine.MTU15 && want == engine.MTU60:
		return engine.CombineIntervals(s.prices), nil
	default:
		return nil, fmt.Errorf("%w: provider publishes %d minute prices, %d minutes configured", engine.ErrSystemConfiguration, s.mtu, want)
	}
}

// Translate converts a raw provider series into prices of the requested
// interval length
func Translate(raw []RawPrice, kind engine.PriceType, loc *time.Location, want engine.MTU) ([]engine.HourPrice, error) {
	return parse(raw, kind, loc).adapt(want)
}
