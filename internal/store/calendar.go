package store

import (
	"cmp"
	"slices"
	"time"

	"github.com/awaistahir/smart-window/internal/engine"
)

// Event is one selected window of a calendar-enabled sensor
type Event struct {
	Sensor  string    `json:"sensor"`
	Summary string    `json:"summary"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Staged  bool      `json:"staged"`
}

// Events lists the active and staged windows whose start lies strictly
// between start and end, ordered by start.
func (s *Store) Events(start, end time.Time) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []Event
	for key, rec := range s.records {
		if !rec.Calendar {
			continue
		}
		summary := cmp.Or(rec.Name, key)
		events = appendEvents(events, key, summary, rec.List, false, start, end)
		if rec.Next != nil {
			events = appendEvents(events, key, summary, rec.Next.List, true, start, end)
		}
	}

	slices.SortFunc(events, func(a, b Event) int {
		return cmp.Or(a.Start.Compare(b.Start), cmp.Compare(a.Sensor, b.Sensor))
	})
	return events
}

func appendEvents(events []Event, key, summary string, windows []engine.Window, staged bool, start, end time.Time) []Event {
	for _, w := range windows {
		if !w.Start.After(start) || !w.Start.Before(end) {
			continue
		}
		events = append(events, Event{
			Sensor:  key,
			Summary: summary,
			Start:   w.Start,
			End:     w.End,
			Staged:  staged,
		})
	}
	return events
}
