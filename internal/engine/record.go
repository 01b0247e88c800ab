package engine

import (
	"slices"
	"time"
)

// Failsafe is a fixed daily fallback window. End before Start wraps over
// midnight.
type Failsafe struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// NewFailsafe builds the fallback window starting at hour and lasting hours
func NewFailsafe(hour, hours int) Failsafe {
	start := TimeOfDay{Hour: hour}
	end := TimeOfDay{Hour: ((hour+hours)%24 + 24) % 24}
	return Failsafe{Start: start, End: end}
}

// Contains reports whether the wall clock of now lies inside the window
func (f Failsafe) Contains(now time.Time) bool {
	return TimeBetween(ClockOf(now), f.Start, f.End)
}

// Staged is a selection waiting for the active one to expire
type Staged struct {
	List       []Window  `json:"list"`
	Expiration time.Time `json:"expiration"`
	Extra      Stats     `json:"extra"`
}

// Mode is the behavioural state of a record at a given instant
type Mode string

const (
	ModeActive              Mode = "active"
	ModeActiveWithStaged    Mode = "active_with_staged"
	ModeExpiredBare         Mode = "expired"
	ModeExpiredWithFailsafe Mode = "expired_with_failsafe"
)

// Record is the persisted state of one sensor. Methods never modify the
// receiver; updates return a new Record.
type Record struct {
	List       []Window  `json:"list"`
	Expiration time.Time `json:"expiration,omitzero"`
	Extra      Stats     `json:"extra"`
	Next       *Staged   `json:"next,omitempty"`
	Failsafe   *Failsafe `json:"failsafe,omitempty"`
	FetchDate  Date      `json:"fetch_date,omitzero"`
	UpdatedAt  time.Time `json:"updated_at,omitzero"`

	ActiveNumberOfHours *int     `json:"active_number_of_hours,omitempty"`
	ActiveTriggerHour   *int     `json:"active_trigger_hour,omitempty"`
	ActivePriceLimit    *float64 `json:"active_price_limit,omitempty"`

	Name     string `json:"name,omitempty"`
	Type     string `json:"type,omitempty"`
	Calendar bool   `json:"calendar"`
}

// Expired reports whether the active list must be replaced at now. A record
// that never had an expiration is expired.
func (r Record) Expired(now time.Time) bool {
	return r.Expiration.IsZero() || !now.Before(r.Expiration)
}

// FailsafeActive reports whether the fallback window applies at now
func (r Record) FailsafeActive(now time.Time) bool {
	return r.Failsafe != nil && r.Expired(now) && r.Failsafe.Contains(now)
}

// IsOn reports whether now lies inside a selected window, both ends
// included. Only an empty list falls back to the failsafe window.
func (r Record) IsOn(now time.Time) bool {
	if len(r.List) == 0 {
		return r.FailsafeActive(now)
	}
	for _, w := range r.List {
		if w.Contains(now) {
			return true
		}
	}
	return false
}

// FetchedOn reports whether prices were already fetched on day
func (r Record) FetchedOn(day Date) bool {
	return r.FetchDate == day
}

func (r Record) Mode(now time.Time) Mode {
	switch {
	case r.Expired(now) && r.Failsafe != nil:
		return ModeExpiredWithFailsafe
	case r.Expired(now):
		return ModeExpiredBare
	case r.Next != nil:
		return ModeActiveWithStaged
	default:
		return ModeActive
	}
}

// WithList makes sel the active selection
func (r Record) WithList(sel Selection, expiration, now time.Time) Record {
	r.List = slices.Clone(sel.Windows)
	if r.List == nil {
		r.List = []Window{}
	}
	r.Expiration = expiration
	r.Extra = sel.Stats
	r.UpdatedAt = now
	return r
}

// WithNext stages sel behind the active selection
func (r Record) WithNext(sel Selection, expiration time.Time) Record {
	windows := slices.Clone(sel.Windows)
	if windows == nil {
		windows = []Window{}
	}
	r.Next = &Staged{List: windows, Expiration: expiration, Extra: sel.Stats}
	return r
}

// Promote replaces the active selection with the staged one
func (r Record) Promote(now time.Time) Record {
	if r.Next == nil {
		return r
	}
	next := *r.Next
	r.Next = nil
	return r.WithList(Selection{Windows: next.List, Stats: next.Extra}, next.Expiration, now)
}

// WithoutList empties the active selection, keeping its expiration
func (r Record) WithoutList() Record {
	r.List = []Window{}
	r.Extra = Stats{}
	return r
}

// In converts every stored instant to loc
func (r Record) In(loc *time.Location) Record {
	r.List = windowsIn(r.List, loc)
	if !r.Expiration.IsZero() {
		r.Expiration = r.Expiration.In(loc)
	}
	if !r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.UpdatedAt.In(loc)
	}
	if r.Next != nil {
		next := *r.Next
		next.List = windowsIn(next.List, loc)
		next.Expiration = next.Expiration.In(loc)
		r.Next = &next
	}
	return r
}

func windowsIn(windows []Window, loc *time.Location) []Window {
	if windows == nil {
		return nil
	}
	out := make([]Window, len(windows))
	for i, w := range windows {
		out[i] = Window{Start: w.Start.In(loc), End: w.End.In(loc)}
	}
	return out
}

// Expiration returns the instant a selection computed on the day of now
// stops being valid: one hour past the last hour of the following day
func Expiration(now time.Time, lastHour int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 1+lastHour, 0, 0, 0, now.Location())
}
