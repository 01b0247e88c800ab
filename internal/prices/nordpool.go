package prices

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/awaistahir/smart-window/internal/engine"
)

// NordPool reads prices from the Nord Pool custom integration sensor
type NordPool struct {
	entity string
	states StateReader
	logger zerolog.Logger
}

// NewNordPool constructs a Nord Pool source for entity
func NewNordPool(entity string, states StateReader, logger zerolog.Logger) *NordPool {
	return &NordPool{
		entity: entity,
		states: states,
		logger: logger.With().Str("component", "nordpool").Str("entity", entity).Logger(),
	}
}

func (n *NordPool) Kind() engine.PriceType { return engine.PriceNordPool }

// Fetch reads raw_today and raw_tomorrow. The sensor must have published
// tomorrow and its first price of today must be dated today, otherwise the
// sensor still shows yesterday's data.
func (n *NordPool) Fetch(ctx context.Context, now time.Time, mtu engine.MTU) (Days, error) {
	state, err := readState(ctx, n.states, n.entity)
	if err != nil {
		return Days{}, err
	}

	var today []float64
	if ok, _ := state.Attribute("today", &today); !ok {
		return Days{}, fmt.Errorf("%w: %s has no prices for today", engine.ErrValueNotFound, n.entity)
	}

	var valid bool
	if ok, _ := state.Attribute("tomorrow_valid", &valid); ok && !valid {
		return Days{}, fmt.Errorf("%w: %s has no valid prices for tomorrow", engine.ErrValueNotFound, n.entity)
	}

	loc := now.Location()
	var rawToday, rawTomorrow []RawPrice
	if _, err := state.Attribute("raw_today", &rawToday); err != nil {
		return Days{}, fmt.Errorf("%w: %v", engine.ErrValueNotFound, err)
	}
	todaySeries := parse(rawToday, engine.PriceNordPool, loc)
	if len(todaySeries.prices) > 0 && engine.DateOf(todaySeries.prices[0].Start) != engine.DateOf(now) {
		n.logger.Debug().Time("first", todaySeries.prices[0].Start).Msg("nord pool still provides old data")
		return Days{}, fmt.Errorf("%w: %s provides stale prices", engine.ErrValueNotFound, n.entity)
	}

	if ok, err := state.Attribute("raw_tomorrow", &rawTomorrow); err != nil || !ok || len(rawTomorrow) == 0 {
		n.logger.Warn().Msg("no values for tomorrow")
		return Days{}, fmt.Errorf("%w: %s has no prices for tomorrow", engine.ErrValueNotFound, n.entity)
	}

	todayPrices, err := todaySeries.adapt(mtu)
	if err != nil {
		return Days{}, err
	}
	tomorrowPrices, err := parse(rawTomorrow, engine.PriceNordPool, loc).adapt(mtu)
	if err != nil {
		return Days{}, err
	}
	return Days{Today: todayPrices, Tomorrow: tomorrowPrices}, nil
}

var _ Source = (*NordPool)(nil)
