package engine

import (
	"errors"
	"math"
	"testing"
	"time"
	_ "time/tzdata"
)

var (
	todayPrices = []float64{
		3.809, 3.435, 3.295, 3.169, 3.08, 3.16, 3.355, 3.436, // 00:00-08:00
		3.752, 3.768, 3.577, 3.549, 3.463, 3.6, 3.585, 3.541, // 08:00-16:00
		3.229, 3.019, 10.287, 3.369, 3.435, 0.434, 1.391, 2.567, // 16:00-24:00, 21:00 is the cheapest
	}
	tomorrowPrices = []float64{
		3.482, 2.461, 2.967, 2.859, 3.063, 3.249, 3.582, 4.149,
		4.382, 4.505, 1.547, 25.874, 1.851, 1.71, 4.774, 4.706,
		4.598, 4.551, 4.463, 4.551, 4.46, 4.397, 4.345, 4.175,
	}
)

func helsinki(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Fatalf("loading location: %v", err)
	}
	return loc
}

// buildDay expands hourly values into a day of mtu sized prices starting at midnight
func buildDay(day time.Time, hourly []float64, mtu MTU) []HourPrice {
	out := make([]HourPrice, 0, len(hourly)*mtu.PerHour())
	for h, v := range hourly {
		for q := 0; q < mtu.PerHour(); q++ {
			start := day.Add(time.Duration(h)*time.Hour + time.Duration(q)*mtu.Duration())
			out = append(out, NewHourPrice(v, start, PriceNordPool, mtu.Duration()))
		}
	}
	return out
}

func fixture(t *testing.T, mtu MTU) (today, tomorrow []HourPrice, day time.Time) {
	t.Helper()
	loc := helsinki(t)
	day = time.Date(2024, 7, 22, 0, 0, 0, 0, loc)
	return buildDay(day, todayPrices, mtu), buildDay(day.AddDate(0, 0, 1), tomorrowPrices, mtu), day
}

func at(day time.Time, dayOffset, hour int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day()+dayOffset, hour, 0, 0, 0, day.Location())
}

func ptr[T any](v T) *T { return &v }

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-3
}

func TestSelectSequential(t *testing.T) {
	today, tomorrow, day := fixture(t, MTU60)

	tests := []struct {
		name        string
		hours       int
		anchorToday bool
		first, last int
		inverted    bool
		wantStart   time.Time
		wantEnd     time.Time
	}{
		{
			name:      "cheapest three hours tomorrow",
			hours:     3,
			first:     0,
			last:      23,
			wantStart: at(day, 1, 1),
			wantEnd:   at(day, 1, 4),
		},
		{
			name:      "cheapest three hours in a narrowed range",
			hours:     3,
			first:     11,
			last:      20,
			wantStart: at(day, 1, 12),
			wantEnd:   at(day, 1, 15),
		},
		{
			name:        "starting today wraps over midnight",
			hours:       3,
			anchorToday: true,
			first:       21,
			last:        18,
			wantStart:   at(day, 0, 21),
			wantEnd:     at(day, 1, 0),
		},
		{
			name:      "most expensive three hours tomorrow",
			hours:     3,
			first:     0,
			last:      23,
			inverted:  true,
			wantStart: at(day, 1, 9),
			wantEnd:   at(day, 1, 12),
		},
		{
			name:        "most expensive three hours starting today",
			hours:       3,
			anchorToday: true,
			first:       21,
			last:        8,
			inverted:    true,
			wantStart:   at(day, 1, 6),
			wantEnd:     at(day, 1, 9),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := HourQuery(tt.hours, tt.first, tt.last, tt.anchorToday, tt.inverted, nil, MTU60)
			sel, err := SelectSequential(today, tomorrow, q)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(sel.Windows) != 1 {
				t.Fatalf("expected exactly one window, got %d", len(sel.Windows))
			}
			w := sel.Windows[0]
			if !w.Start.Equal(tt.wantStart) || !w.End.Equal(tt.wantEnd) {
				t.Errorf("window = %s - %s, want %s - %s", w.Start, w.End, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestSelectSequentialStats(t *testing.T) {
	today, tomorrow, _ := fixture(t, MTU60)

	sel, err := SelectSequential(today, tomorrow, HourQuery(3, 0, 23, false, false, nil, MTU60))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sel.Stats.Mean == nil || !approx(*sel.Stats.Mean, 2.7623) {
		t.Errorf("mean = %v, want 2.7623", sel.Stats.Mean)
	}
	if sel.Stats.Min == nil || *sel.Stats.Min != 2.461 {
		t.Errorf("min = %v, want 2.461", sel.Stats.Min)
	}
	if sel.Stats.Max == nil || *sel.Stats.Max != 2.967 {
		t.Errorf("max = %v, want 2.967", sel.Stats.Max)
	}
}

func TestSelectSequentialTieKeepsEarliest(t *testing.T) {
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	flat := make([]float64, 24)
	for i := range flat {
		flat[i] = 5
	}
	today, tomorrow := buildDay(day, flat, MTU60), buildDay(day.AddDate(0, 0, 1), flat, MTU60)

	for _, inverted := range []bool{false, true} {
		sel, err := SelectSequential(today, tomorrow, HourQuery(2, 3, 20, false, inverted, nil, MTU60))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := at(day, 1, 3); !sel.Windows[0].Start.Equal(want) {
			t.Errorf("inverted=%v: start = %s, want %s", inverted, sel.Windows[0].Start, want)
		}
	}
}

func TestSelectNonSequential(t *testing.T) {
	today, tomorrow, day := fixture(t, MTU60)

	tests := []struct {
		name        string
		hours       int
		anchorToday bool
		first, last int
		inverted    bool
		limit       *float64
		want        []Window
		wantMean    *float64
	}{
		{
			name:  "cheapest three hours merge adjacent",
			hours: 3,
			first: 0,
			last:  18,
			want: []Window{
				{Start: at(day, 1, 10), End: at(day, 1, 11)},
				{Start: at(day, 1, 12), End: at(day, 1, 14)},
			},
			wantMean: ptr(1.7027),
		},
		{
			name:     "most expensive three hours",
			hours:    3,
			first:    0,
			last:     18,
			inverted: true,
			want: []Window{
				{Start: at(day, 1, 11), End: at(day, 1, 12)},
				{Start: at(day, 1, 14), End: at(day, 1, 16)},
			},
		},
		{
			name:        "most expensive three hours starting today",
			hours:       3,
			anchorToday: true,
			first:       18,
			last:        6,
			inverted:    true,
			want: []Window{
				{Start: at(day, 0, 18), End: at(day, 0, 19)},
				{Start: at(day, 1, 0), End: at(day, 1, 1)},
				{Start: at(day, 1, 6), End: at(day, 1, 7)},
			},
		},
		{
			name:  "price limit shrinks the selection",
			hours: 10,
			first: 0,
			last:  23,
			limit: ptr(2.0),
			want: []Window{
				{Start: at(day, 1, 10), End: at(day, 1, 11)},
				{Start: at(day, 1, 12), End: at(day, 1, 14)},
			},
		},
		{
			name:  "price limit below every price",
			hours: 10,
			first: 0,
			last:  23,
			limit: ptr(0.1),
			want:  []Window{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := HourQuery(tt.hours, tt.first, tt.last, tt.anchorToday, tt.inverted, tt.limit, MTU60)
			sel, err := SelectNonSequential(today, tomorrow, q)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !WindowsEqual(sel.Windows, tt.want) {
				t.Errorf("windows = %v, want %v", sel.Windows, tt.want)
			}
			if tt.wantMean != nil && (sel.Stats.Mean == nil || !approx(*sel.Stats.Mean, *tt.wantMean)) {
				t.Errorf("mean = %v, want %v", sel.Stats.Mean, *tt.wantMean)
			}
			if len(tt.want) == 0 && (sel.Stats.Mean != nil || sel.Stats.Min != nil || sel.Stats.Max != nil) {
				t.Errorf("expected empty stats, got %+v", sel.Stats)
			}
		})
	}
}

func TestSelectQuarterHour(t *testing.T) {
	today, tomorrow, day := fixture(t, MTU15)

	seq, err := SelectSequential(today, tomorrow, HourQuery(3, 0, 23, false, false, nil, MTU15))
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}
	if want := []Window{{Start: at(day, 1, 1), End: at(day, 1, 4)}}; !WindowsEqual(seq.Windows, want) {
		t.Errorf("sequential windows = %v, want %v", seq.Windows, want)
	}

	nonSeq, err := SelectNonSequential(today, tomorrow, HourQuery(3, 0, 18, false, false, nil, MTU15))
	if err != nil {
		t.Fatalf("non-sequential: %v", err)
	}
	want := []Window{
		{Start: at(day, 1, 10), End: at(day, 1, 11)},
		{Start: at(day, 1, 12), End: at(day, 1, 14)},
	}
	if !WindowsEqual(nonSeq.Windows, want) {
		t.Errorf("non-sequential windows = %v, want %v", nonSeq.Windows, want)
	}
}

func TestSelectInvalidInput(t *testing.T) {
	today, tomorrow, _ := fixture(t, MTU60)

	tests := []struct {
		name  string
		query Query
		seq   bool
	}{
		{name: "window longer than a day", query: HourQuery(25, 0, 23, false, false, nil, MTU60)},
		{name: "today range ends after it starts", query: HourQuery(3, 21, 22, true, false, nil, MTU60)},
		{name: "tomorrow range ends before it starts", query: HourQuery(3, 22, 21, false, false, nil, MTU60)},
		{name: "tomorrow range 22-8", query: HourQuery(3, 22, 8, false, false, nil, MTU60), seq: true},
		{name: "price limit on sequential", query: HourQuery(3, 0, 23, false, false, ptr(2.0), MTU60), seq: true},
		{name: "sequential window does not fit", query: HourQuery(5, 10, 12, false, false, nil, MTU60), seq: true},
		{name: "empty sequential window", query: HourQuery(0, 0, 23, false, false, nil, MTU60), seq: true},
		{name: "unknown interval length", query: Query{WindowLength: 3, LastInterval: 23, MTU: 30}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.seq {
				_, err = SelectSequential(today, tomorrow, tt.query)
			} else {
				_, err = SelectNonSequential(today, tomorrow, tt.query)
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	if _, err := SelectNonSequential(today[:23], tomorrow, HourQuery(3, 0, 23, false, false, nil, MTU60)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("short day: expected ErrInvalidInput, got %v", err)
	}
}

func TestInversionSymmetry(t *testing.T) {
	today, tomorrow, _ := fixture(t, MTU60)
	negate := func(in []HourPrice) []HourPrice {
		out := make([]HourPrice, len(in))
		for i, p := range in {
			out[i] = p.WithValue(-p.Value)
		}
		return out
	}
	negToday, negTomorrow := negate(today), negate(tomorrow)

	for _, hours := range []int{1, 3, 6} {
		inv := HourQuery(hours, 0, 23, false, true, nil, MTU60)
		plain := HourQuery(hours, 0, 23, false, false, nil, MTU60)

		a, _ := SelectSequential(today, tomorrow, inv)
		b, _ := SelectSequential(negToday, negTomorrow, plain)
		if !WindowsEqual(a.Windows, b.Windows) {
			t.Errorf("sequential %dh: %v != %v", hours, a.Windows, b.Windows)
		}

		c, _ := SelectNonSequential(today, tomorrow, inv)
		d, _ := SelectNonSequential(negToday, negTomorrow, plain)
		if !WindowsEqual(c.Windows, d.Windows) {
			t.Errorf("non-sequential %dh: %v != %v", hours, c.Windows, d.Windows)
		}
	}
}

func covered(windows []Window) time.Duration {
	var total time.Duration
	for _, w := range windows {
		total += w.End.Sub(w.Start)
	}
	return total
}

func TestNonSequentialInvariants(t *testing.T) {
	today, tomorrow, _ := fixture(t, MTU60)

	for hours := 1; hours <= 24; hours++ {
		sel, err := SelectNonSequential(today, tomorrow, HourQuery(hours, 0, 23, false, false, nil, MTU60))
		if err != nil {
			t.Fatalf("%dh: %v", hours, err)
		}
		if got := covered(sel.Windows); got != time.Duration(hours)*time.Hour {
			t.Errorf("%dh: covered %s", hours, got)
		}
		for i := 1; i < len(sel.Windows); i++ {
			if !sel.Windows[i-1].End.Before(sel.Windows[i].Start) {
				t.Errorf("%dh: windows %d and %d overlap or touch", hours, i-1, i)
			}
		}
	}
}

func TestPriceLimitMonotonic(t *testing.T) {
	today, tomorrow, _ := fixture(t, MTU60)

	prev := time.Duration(-1)
	for limit := 0.0; limit <= 30; limit += 0.25 {
		sel, err := SelectNonSequential(today, tomorrow, HourQuery(12, 0, 23, false, false, ptr(limit), MTU60))
		if err != nil {
			t.Fatalf("limit %.2f: %v", limit, err)
		}
		got := covered(sel.Windows)
		if got < prev {
			t.Errorf("limit %.2f covers %s, less than %s at a lower limit", limit, got, prev)
		}
		prev = got
	}
}

func TestNormalizeSpringForward(t *testing.T) {
	loc := helsinki(t)
	day := time.Date(2024, 3, 31, 0, 0, 0, 0, loc)

	short := make([]HourPrice, 23)
	for i := range short {
		short[i] = NewHourPrice(1, day.Add(time.Duration(i)*time.Hour), PriceEntsoe, time.Hour)
	}

	got, err := NormalizeDay(short, MTU60, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 24 {
		t.Fatalf("expected 24 prices, got %d", len(got))
	}
	if got[3].Value != sentinelPrice {
		t.Errorf("expected sentinel at the clock gap, got %v", got[3].Value)
	}
	if !got[3].Start.Equal(got[4].Start) || !got[3].End.Equal(got[3].Start) {
		t.Errorf("expected a zero length filler at %s, got %s-%s", got[4].Start, got[3].Start, got[3].End)
	}

	tomorrow := buildDay(day.AddDate(0, 0, 1), tomorrowPrices, MTU60)
	sel, err := SelectNonSequential(got, tomorrow, HourQuery(23, 0, 0, true, false, nil, MTU60))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.Stats.Max == nil || *sel.Stats.Max != 1 {
		t.Errorf("sentinel interval was selected, max = %v", sel.Stats.Max)
	}

	inv, _ := NormalizeDay(short, MTU60, true)
	if inv[3].Value != -sentinelPrice {
		t.Errorf("expected inverted sentinel, got %v", inv[3].Value)
	}
}

func TestNormalizeFallBack(t *testing.T) {
	loc := helsinki(t)
	day := time.Date(2024, 10, 27, 0, 0, 0, 0, loc)

	long := make([]HourPrice, 25)
	for i := range long {
		long[i] = NewHourPrice(float64(i), day.Add(time.Duration(i)*time.Hour), PriceNordPool, time.Hour)
	}

	got, err := NormalizeDay(long, MTU60, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 24 {
		t.Fatalf("expected 24 prices, got %d", len(got))
	}
	if got[3].Value != 3 || got[4].Value != 5 {
		t.Errorf("expected the repeated 03:00 to be dropped, got %v and %v", got[3].Value, got[4].Value)
	}
}

func TestNormalizeQuarterHourSpringForward(t *testing.T) {
	loc := helsinki(t)
	day := time.Date(2024, 3, 31, 0, 0, 0, 0, loc)

	short := make([]HourPrice, 92)
	for i := range short {
		short[i] = NewHourPrice(1, day.Add(time.Duration(i)*15*time.Minute), PriceEntsoe, 15*time.Minute)
	}

	got, err := NormalizeDay(short, MTU15, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 96 {
		t.Fatalf("expected 96 prices, got %d", len(got))
	}
	for i := 12; i < 16; i++ {
		if !isFiller(got[i]) || got[i].Value != sentinelPrice {
			t.Errorf("expected sentinel at %d, got %v", i, got[i].Value)
		}
	}
}

func TestSelectionAcrossSpringForwardGap(t *testing.T) {
	loc := helsinki(t)
	today := buildDay(time.Date(2025, 3, 29, 0, 0, 0, 0, loc), todayPrices, MTU60)
	gapDay := time.Date(2025, 3, 30, 0, 0, 0, 0, loc)

	for _, mtu := range []MTU{MTU60, MTU15} {
		short := make([]HourPrice, 0, mtu.PerDay()-mtu.PerHour())
		for i := 0; i < mtu.PerDay()-mtu.PerHour(); i++ {
			short = append(short, NewHourPrice(float64(i%7)+1, gapDay.Add(time.Duration(i)*mtu.Duration()), PriceNordPool, mtu.Duration()))
		}
		tomorrow, err := NormalizeDay(short, mtu, false)
		if err != nil {
			t.Fatalf("mtu %d: unexpected error: %v", mtu, err)
		}
		today := today
		if mtu == MTU15 {
			today = buildDay(today[0].Start, todayPrices, MTU15)
		}

		tests := []struct {
			name   string
			sel    func(today, tomorrow []HourPrice, q Query) (Selection, error)
			q      Query
			length time.Duration
		}{
			{"non sequential", SelectNonSequential, HourQuery(5, 1, 5, false, false, nil, mtu), 4 * time.Hour},
			{"sequential", SelectSequential, HourQuery(6, 0, 5, false, false, nil, mtu), 5 * time.Hour},
			{"inverted", SelectNonSequential, HourQuery(5, 1, 5, false, true, nil, mtu), 4 * time.Hour},
		}
		for _, tt := range tests {
			got, err := tt.sel(today, tomorrow, tt.q)
			if err != nil {
				t.Fatalf("mtu %d %s: unexpected error: %v", mtu, tt.name, err)
			}
			for i := 1; i < len(got.Windows); i++ {
				if got.Windows[i-1].End.After(got.Windows[i].Start) {
					t.Errorf("mtu %d %s: windows %v overlap", mtu, tt.name, got.Windows)
				}
			}
			if c := covered(got.Windows); c != tt.length {
				t.Errorf("mtu %d %s: covered %s, expected %s", mtu, tt.name, c, tt.length)
			}
			for _, v := range []*float64{got.Stats.Mean, got.Stats.Min, got.Stats.Max} {
				if v == nil || math.IsInf(*v, 0) || math.Abs(*v) > 10 {
					t.Errorf("mtu %d %s: stats must describe real prices only, got %v", mtu, tt.name, got.Stats)
				}
			}
		}
	}
}

func TestNormalizeDayRejectsDefects(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	broken := buildDay(day, todayPrices[:20], MTU60)

	if _, err := NormalizeDay(broken, MTU60, false); !errors.Is(err, ErrValueNotFound) {
		t.Errorf("expected ErrValueNotFound, got %v", err)
	}
}

func TestCombineIntervals(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	values := []float64{9, 9, 9, 1, 2, 3, 4.01, 7, 7}

	quarters := make([]HourPrice, len(values))
	for i, v := range values {
		quarters[i] = NewHourPrice(v, day.Add(15*time.Minute+time.Duration(i)*15*time.Minute), PriceEntsoe, 15*time.Minute)
	}

	got := CombineIntervals(quarters)
	if len(got) != 1 {
		t.Fatalf("expected one hourly price, got %d", len(got))
	}
	if got[0].Value != 2.5 {
		t.Errorf("value = %v, want 2.5", got[0].Value)
	}
	if !got[0].Start.Equal(at(day, 0, 1)) || !got[0].End.Equal(at(day, 0, 2)) {
		t.Errorf("span = %s - %s", got[0].Start, got[0].End)
	}
}

func TestDetectMTU(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	if mtu, ok := DetectMTU(buildDay(day, todayPrices, MTU15)); !ok || mtu != MTU15 {
		t.Errorf("expected MTU15, got %v %v", mtu, ok)
	}
	if mtu, ok := DetectMTU(buildDay(day, todayPrices, MTU60)); !ok || mtu != MTU60 {
		t.Errorf("expected MTU60, got %v %v", mtu, ok)
	}
	if _, ok := DetectMTU(nil); ok {
		t.Error("expected no MTU for an empty series")
	}
}
