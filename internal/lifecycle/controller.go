package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/awaistahir/smart-window/internal/engine"
	"github.com/awaistahir/smart-window/internal/logging"
	"github.com/awaistahir/smart-window/internal/metrics"
	"github.com/awaistahir/smart-window/internal/prices"
	"github.com/awaistahir/smart-window/internal/transform"
)

// Outcome describes what a tick did
type Outcome string

const (
	OutcomeSwapped          Outcome = "swapped"
	OutcomeFailsafe         Outcome = "failsafe"
	OutcomeFresh            Outcome = "fresh"
	OutcomeGated            Outcome = "skipped_gate"
	OutcomeParamUnresolved  Outcome = "param_unresolved"
	OutcomePriceUnavailable Outcome = "price_unavailable"
	OutcomeInvalidInput     Outcome = "invalid_input"
	OutcomeUpdated          Outcome = "updated"
	OutcomeStaged           Outcome = "staged"
	OutcomeUnchanged        Outcome = "unchanged"
)

// RecordStore durably keeps one record per sensor
type RecordStore interface {
	Get(key string) (engine.Record, bool)
	Set(ctx context.Context, key string, rec engine.Record) error
}

// PriceSource supplies the two days a selection is computed from
type PriceSource interface {
	Fetch(ctx context.Context, now time.Time, mtu engine.MTU) (prices.Days, error)
}

// Controller runs the selection lifecycle of one sensor. Ticks are
// serialized.
type Controller struct {
	mu sync.Mutex

	settings  Settings
	store     RecordStore
	source    PriceSource
	resolver  Resolver
	transform transform.Func
	logger    zerolog.Logger
}

// NewController wires a sensor to its store, price source, parameter
// resolver and optional price transform.
func NewController(settings Settings, store RecordStore, source PriceSource, resolver Resolver, fn transform.Func, logger zerolog.Logger) *Controller {
	settings.UniqueID = NormalizeID(settings.UniqueID)
	return &Controller{
		settings:  settings,
		store:     store,
		source:    source,
		resolver:  resolver,
		transform: fn,
		logger:    logging.Sensor(logger, "lifecycle", settings.UniqueID),
	}
}

func (c *Controller) ID() string { return c.settings.UniqueID }

func (c *Controller) Settings() Settings { return c.settings }

// Record returns the persisted record, or an empty one for a new sensor
func (c *Controller) Record() engine.Record {
	rec, ok := c.store.Get(c.settings.UniqueID)
	if !ok {
		rec = engine.Record{}
	}
	rec.Name = c.settings.Name
	rec.Type = RecordType
	rec.Calendar = c.settings.Calendar
	return rec
}

// Tick advances the lifecycle at now. Failures of the price source or of
// parameter resolution are reported through the outcome; only persistence
// failures return an error.
func (c *Controller) Tick(ctx context.Context, now time.Time) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	started := time.Now()
	outcome, err := c.tick(ctx, now)
	metrics.ObserveTick(c.settings.UniqueID, string(outcome), time.Since(started))

	rec := c.Record()
	metrics.SetSignal(c.settings.UniqueID, rec.IsOn(now), selectedDuration(rec.List))

	c.logger.Debug().Str("outcome", string(outcome)).Time("now", now).Msg("tick finished")
	return outcome, err
}

func (c *Controller) tick(ctx context.Context, now time.Time) (Outcome, error) {
	rec := c.Record()

	if rec.Expired(now) {
		if rec.Next != nil {
			rec = rec.Promote(now)
			c.logger.Info().Time("expiration", rec.Expiration).Msg("staged selection promoted")
			return OutcomeSwapped, c.save(ctx, rec)
		}
		if len(rec.List) > 0 {
			rec = rec.WithoutList()
			if err := c.save(ctx, rec); err != nil {
				return "", err
			}
		}
	}

	if rec.FailsafeActive(now) {
		return OutcomeFailsafe, nil
	}
	if rec.FetchedOn(engine.DateOf(now)) && !rec.Expired(now) {
		return OutcomeFresh, nil
	}

	params, err := c.resolve(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to get values from external entities")
		return OutcomeParamUnresolved, nil
	}
	rec.ActiveNumberOfHours = &params.hours
	rec.ActiveTriggerHour = params.triggerHour
	rec.ActivePriceLimit = params.priceLimit

	if !c.allowed(now, params) {
		c.logger.Debug().Msg("update not allowed by trigger")
		return OutcomeGated, nil
	}

	rec.Failsafe = c.failsafe(params.hours)

	today, tomorrow, err := c.fetch(ctx, now)
	if err != nil {
		c.logFetchError(err)
		if rec.Expired(now) {
			rec = rec.WithoutList()
		}
		return OutcomePriceUnavailable, c.save(ctx, rec)
	}

	sel, err := c.selectWindows(today, tomorrow, params)
	if err != nil {
		c.logger.Error().Err(err).Msg("invalid selection parameters")
		return OutcomeInvalidInput, nil
	}
	expiration := engine.Expiration(now, c.settings.LastHour)
	sel, expiration = applyOffset(sel, expiration, c.settings.Offset)

	outcome := OutcomeUnchanged
	switch {
	case rec.Expired(now):
		rec = rec.WithList(sel, expiration, now)
		outcome = OutcomeUpdated
	case !engine.WindowsEqual(rec.List, sel.Windows):
		rec = rec.WithNext(sel, expiration)
		outcome = OutcomeStaged
	}
	rec.FetchDate = engine.DateOf(now)

	return outcome, c.save(ctx, rec)
}

type resolved struct {
	hours       int
	triggerHour *int
	priceLimit  *float64
}

func (c *Controller) resolve(ctx context.Context) (resolved, error) {
	var out resolved

	hours, err := c.settings.NumberOfHours.ResolveInt(ctx, c.resolver)
	if err != nil {
		return out, fmt.Errorf("number of hours: %w", err)
	}
	if hours < 0 {
		return out, fmt.Errorf("number of hours %d: %w", hours, engine.ErrInvalidEntityState)
	}
	out.hours = hours

	if !c.settings.TriggerHour.IsZero() {
		h, err := c.settings.TriggerHour.ResolveInt(ctx, c.resolver)
		if err != nil {
			return out, fmt.Errorf("trigger hour: %w", err)
		}
		out.triggerHour = &h
	}

	if !c.settings.PriceLimit.IsZero() {
		limit, err := c.settings.PriceLimit.Resolve(ctx, c.resolver)
		if err != nil {
			return out, fmt.Errorf("price limit: %w", err)
		}
		out.priceLimit = &limit
	}
	return out, nil
}

func (c *Controller) allowed(now time.Time, p resolved) bool {
	if t := c.settings.TriggerTime; t != nil && engine.ClockOf(now).Before(*t) {
		return false
	}
	if p.triggerHour != nil && now.Hour() < *p.triggerHour {
		return false
	}
	return true
}

func (c *Controller) failsafe(hours int) *engine.Failsafe {
	if c.settings.FailsafeStartingHour == nil {
		return nil
	}
	fs := engine.NewFailsafe(*c.settings.FailsafeStartingHour, hours)
	return &fs
}

// fetch reads both days, applies the price transform and normalizes each
// day to its canonical length
func (c *Controller) fetch(ctx context.Context, now time.Time) (today, tomorrow []engine.HourPrice, err error) {
	days, err := c.source.Fetch(ctx, now, c.settings.mtu())
	if err != nil {
		return nil, nil, err
	}
	return c.prepare(days)
}

func (c *Controller) prepare(days prices.Days) (today, tomorrow []engine.HourPrice, err error) {
	mtu := c.settings.mtu()
	today, err = engine.NormalizeDay(transform.Apply(c.transform, days.Today), mtu, c.settings.Inversed)
	if err != nil {
		return nil, nil, fmt.Errorf("today: %w", err)
	}
	tomorrow, err = engine.NormalizeDay(transform.Apply(c.transform, days.Tomorrow), mtu, c.settings.Inversed)
	if err != nil {
		return nil, nil, fmt.Errorf("tomorrow: %w", err)
	}
	return today, tomorrow, nil
}

func (c *Controller) logFetchError(err error) {
	switch {
	case errors.Is(err, engine.ErrSystemConfiguration):
		metrics.IncPriceFetchError(c.settings.UniqueID, "system_configuration")
		c.logger.Error().Err(err).Msg("price data does not match configuration, check time zone, region and mtu")
	default:
		metrics.IncPriceFetchError(c.settings.UniqueID, "value_not_found")
		c.logger.Debug().Err(err).Msg("could not get the latest price data")
	}
}

func (c *Controller) selectWindows(today, tomorrow []engine.HourPrice, p resolved) (engine.Selection, error) {
	q := engine.HourQuery(p.hours, c.settings.FirstHour, c.settings.LastHour, c.settings.StartingToday,
		c.settings.Inversed, p.priceLimit, c.settings.mtu())
	if c.settings.Sequential {
		return engine.SelectSequential(today, tomorrow, q)
	}
	return engine.SelectNonSequential(today, tomorrow, q)
}

// applyOffset moves the first start and the last end. An end pushed past
// expiration extends the expiration by the same amount.
func applyOffset(sel engine.Selection, expiration time.Time, off Offset) (engine.Selection, time.Time) {
	if len(sel.Windows) == 0 || off == (Offset{}) {
		return sel, expiration
	}
	windows := slices.Clone(sel.Windows)
	windows[0].Start = windows[0].Start.Add(off.Start)
	last := len(windows) - 1
	windows[last].End = windows[last].End.Add(off.End)
	if windows[last].End.After(expiration) {
		expiration = expiration.Add(off.End)
	}
	sel.Windows = windows
	return sel, expiration
}

func (c *Controller) save(ctx context.Context, rec engine.Record) error {
	if err := c.store.Set(ctx, c.settings.UniqueID, rec); err != nil {
		return fmt.Errorf("persist %s: %w", c.settings.UniqueID, err)
	}
	return nil
}

func selectedDuration(windows []engine.Window) time.Duration {
	var total time.Duration
	for _, w := range windows {
		total += w.End.Sub(w.Start)
	}
	return total
}
