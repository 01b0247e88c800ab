package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/awaistahir/smart-window/internal/engine"
	"github.com/awaistahir/smart-window/internal/lifecycle"
	"github.com/awaistahir/smart-window/internal/store"
)

// SelectOptions configure the select command.
type SelectOptions struct {
	Sensor string
	Date   engine.Date // day the prices were fetched on, zero means today
}

// ClearOptions configure the clear command.
type ClearOptions struct {
	Sensor string
	All    bool
}

// Fetch reads today's and tomorrow's prices of a sensor, caches them and
// prints them as JSON.
func (a *App) Fetch(ctx context.Context, sensor string, out io.Writer) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	c, err := a.controller(sensor, st, a.newClient())
	if err != nil {
		return err
	}

	now := a.Now()
	days, err := c.FetchPrices(ctx, now)
	if err != nil {
		return fmt.Errorf("fetch prices: %w", err)
	}
	if err := st.CachePrices(ctx, c.ID(), engine.DateOf(now), days); err != nil {
		return fmt.Errorf("cache prices: %w", err)
	}
	a.Logger.Info().Str("sensor", c.ID()).Int("today", len(days.Today)).Int("tomorrow", len(days.Tomorrow)).Msg("prices cached")

	return writeJSON(out, days)
}

// Select runs the selection on cached prices and prints it as JSON. The
// persisted record is not modified.
func (a *App) Select(ctx context.Context, opts SelectOptions, out io.Writer) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	c, err := a.controller(opts.Sensor, st, a.newClient())
	if err != nil {
		return err
	}

	day := opts.Date
	if day.IsZero() {
		day = engine.DateOf(a.Now())
	}
	days, err := st.GetCachedPrices(ctx, c.ID(), day)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no cached prices for %s on %s, run fetch first", c.ID(), day)
	}
	if err != nil {
		return err
	}

	now := day.In(a.loc)
	if day == engine.DateOf(a.Now()) {
		now = a.Now()
	}
	preview, err := c.Preview(ctx, now, days)
	if err != nil {
		return fmt.Errorf("select: %w", err)
	}
	return writeJSON(out, preview)
}

// Show prints persisted records, all of them when sensor is empty.
func (a *App) Show(ctx context.Context, sensor string, out io.Writer) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if sensor != "" {
		rec, ok := st.Get(lifecycle.NormalizeID(sensor))
		if !ok {
			return fmt.Errorf("no record for %q", sensor)
		}
		return writeJSON(out, rec)
	}

	records := st.All()
	if len(records) == 0 {
		fmt.Fprintln(out, "no records found")
		return nil
	}

	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	now := a.Now()
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Sensor\tOn\tMode\tWindows\tExpiration\tNext\tFetched")
	for _, key := range keys {
		rec := records[key]
		next, fetched := "-", "-"
		if rec.Next != nil {
			next = formatWindows(rec.Next.List)
		}
		if !rec.FetchDate.IsZero() {
			fetched = rec.FetchDate.String()
		}
		fmt.Fprintf(writer, "%s\t%t\t%s\t%s\t%s\t%s\t%s\n",
			key,
			rec.IsOn(now),
			rec.Mode(now),
			formatWindows(rec.List),
			formatTime(rec.Expiration),
			next,
			fetched,
		)
	}
	return writer.Flush()
}

// Status prints the observed state of configured sensors at the current
// time: the full attributes of one sensor as JSON, or a table of all.
func (a *App) Status(ctx context.Context, sensor string, out io.Writer) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	now := a.Now()
	if sensor != "" {
		c, err := a.controller(sensor, st, a.newClient())
		if err != nil {
			return err
		}
		return writeJSON(out, c.Attributes(now))
	}

	controllers, err := a.controllers(st, a.newClient())
	if err != nil {
		return err
	}
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Sensor\tName\tOn\tMode\tFailsafe\tWindows")
	for _, c := range controllers {
		attrs := c.Attributes(now)
		fmt.Fprintf(writer, "%s\t%s\t%t\t%s\t%t\t%s\n",
			attrs.UniqueID,
			attrs.Name,
			attrs.IsOn,
			attrs.Mode,
			attrs.FailsafeActive,
			formatWindows(attrs.List),
		)
	}
	return writer.Flush()
}

// Clear removes persisted records.
func (a *App) Clear(ctx context.Context, opts ClearOptions) error {
	if !opts.All && opts.Sensor == "" {
		return errors.New("either a sensor id or --all is required")
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.All {
		if err := st.ClearAll(ctx); err != nil {
			return err
		}
		a.Logger.Info().Msg("all records cleared")
		return nil
	}

	id := lifecycle.NormalizeID(opts.Sensor)
	if err := st.Clear(ctx, id); err != nil {
		return fmt.Errorf("clear %s: %w", id, err)
	}
	a.Logger.Info().Str("sensor", id).Msg("record cleared")
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatWindows(windows []engine.Window) string {
	if len(windows) == 0 {
		return "-"
	}
	parts := make([]string, len(windows))
	for i, w := range windows {
		parts[i] = w.Start.Format("01-02 15:04") + "-" + w.End.Format("15:04")
	}
	return strings.Join(parts, ",")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
