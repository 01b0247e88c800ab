package engine

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall clock time without a date
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses HH:mm or HH:mm:ss
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return ClockOf(t), nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
}

// ClockOf returns the wall clock time of t in its own location
func ClockOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay{Hour: h, Minute: m, Second: s}
}

func (c TimeOfDay) seconds() int {
	return c.Hour*3600 + c.Minute*60 + c.Second
}

// Before reports whether c is earlier in the day than o
func (c TimeOfDay) Before(o TimeOfDay) bool {
	return c.seconds() < o.seconds()
}

func (c TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

func (c TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TimeBetween reports whether now lies in [start, end). A range whose end is
// before its start wraps over midnight, e.g. 23:30-04:15.
func TimeBetween(now, start, end TimeOfDay) bool {
	n, s, e := now.seconds(), start.seconds(), end.seconds()
	if s <= e {
		return s <= n && n < e
	}
	return s <= n || n < e
}

// Date is a calendar date without time or location
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in its own location
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// In returns the start of the date in loc
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	t, err := time.Parse("2006-01-02", string(b))
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", string(b), err)
	}
	*d = DateOf(t)
	return nil
}

// StartOfDay returns local midnight of the day containing t
func StartOfDay(t time.Time) time.Time {
	return DateOf(t).In(t.Location())
}
