package engine

import (
	"slices"
	"time"
)

// PriceType tags where an HourPrice came from
type PriceType string

const (
	PriceNordPool         PriceType = "nordpool"          // Nord Pool custom integration
	PriceNordPoolOfficial PriceType = "nordpool_official" // Nord Pool official service
	PriceEntsoe           PriceType = "entsoe"            // Entso-e integration
)

// MTU is the market time unit, the length of one price interval in minutes
type MTU int

const (
	MTU60 MTU = 60
	MTU15 MTU = 15
)

// Valid reports whether m is a supported interval length
func (m MTU) Valid() bool {
	return m == MTU60 || m == MTU15
}

// Duration returns the interval length
func (m MTU) Duration() time.Duration {
	return time.Duration(m) * time.Minute
}

// PerHour returns the number of intervals in one hour
func (m MTU) PerHour() int {
	return 60 / int(m)
}

// PerDay returns the canonical number of intervals in one day
func (m MTU) PerDay() int {
	return 24 * m.PerHour()
}

// HourPrice is the price of a single elementary interval.
// Values are never modified in place; WithValue returns a new instance.
type HourPrice struct {
	Value float64   `json:"value"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Type  PriceType `json:"type"`
}

// NewHourPrice builds a price spanning one interval from start
func NewHourPrice(value float64, start time.Time, typ PriceType, length time.Duration) HourPrice {
	return HourPrice{
		Value: value,
		Start: start,
		End:   start.Add(length),
		Type:  typ,
	}
}

// WithValue returns a copy with the value replaced
func (p HourPrice) WithValue(value float64) HourPrice {
	p.Value = value
	return p
}

// Window is a selected time range
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies within the window, both ends included
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Equal compares two windows by instant
func (w Window) Equal(o Window) bool {
	return w.Start.Equal(o.Start) && w.End.Equal(o.End)
}

// WindowsEqual compares two selections window by window
func WindowsEqual(a, b []Window) bool {
	return slices.EqualFunc(a, b, Window.Equal)
}

// Stats summarises the prices underlying a selection. All fields are nil
// when nothing was selected.
type Stats struct {
	Mean *float64 `json:"mean_price"`
	Min  *float64 `json:"min_price"`
	Max  *float64 `json:"max_price"`
}

// Query contains the parameters for both selection algorithms.
// Interval indexes are expressed in elementary intervals of the MTU.
type Query struct {
	WindowLength  int
	AnchorToday   bool // search starts within today instead of tomorrow
	FirstInterval int
	LastInterval  int  // inclusive
	Inverted      bool // look for the most expensive intervals
	PriceLimit    *float64
	MTU           MTU
}

// HourQuery builds a Query from hour based settings, scaling hours to intervals
func HourQuery(hours, firstHour, lastHour int, anchorToday, inverted bool, priceLimit *float64, mtu MTU) Query {
	perHour := mtu.PerHour()
	return Query{
		WindowLength:  hours * perHour,
		AnchorToday:   anchorToday,
		FirstInterval: firstHour * perHour,
		LastInterval:  lastHour*perHour + perHour - 1,
		Inverted:      inverted,
		PriceLimit:    priceLimit,
		MTU:           mtu,
	}
}

// Selection is the result of a window search
type Selection struct {
	Windows []Window `json:"list"`
	Stats   Stats    `json:"extra"`
}
