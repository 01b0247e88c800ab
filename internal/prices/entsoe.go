package prices

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/awaistahir/smart-window/internal/engine"
)

// Entso-e publishes tomorrow in the early afternoon; fewer hours than this
// means the publication has not happened yet
const entsoeMinPublishedHours = 10

// Entsoe reads prices from the Entso-e integration sensor
type Entsoe struct {
	entity string
	states StateReader
	logger zerolog.Logger
}

// NewEntsoe constructs an Entso-e source for entity
func NewEntsoe(entity string, states StateReader, logger zerolog.Logger) *Entsoe {
	return &Entsoe{
		entity: entity,
		states: states,
		logger: logger.With().Str("component", "entsoe").Str("entity", entity).Logger(),
	}
}

func (e *Entsoe) Kind() engine.PriceType { return engine.PriceEntsoe }

func (e *Entsoe) Fetch(ctx context.Context, now time.Time, mtu engine.MTU) (Days, error) {
	state, err := readState(ctx, e.states, e.entity)
	if err != nil {
		return Days{}, err
	}

	loc := now.Location()
	var rawToday, rawTomorrow []RawPrice
	if ok, err := state.Attribute("prices_today", &rawToday); err != nil || !ok {
		return Days{}, fmt.Errorf("%w: %s has no prices for today", engine.ErrValueNotFound, e.entity)
	}
	if ok, err := state.Attribute("prices_tomorrow", &rawTomorrow); err != nil || !ok || len(rawTomorrow) == 0 {
		e.logger.Warn().Msg("no values for tomorrow")
		return Days{}, fmt.Errorf("%w: %s has no prices for tomorrow", engine.ErrValueNotFound, e.entity)
	}

	tomorrow := parse(rawTomorrow, engine.PriceEntsoe, loc)
	perHour := tomorrow.mtu.PerHour()
	switch n := len(tomorrow.prices); {
	case n < entsoeMinPublishedHours*perHour:
		e.logger.Debug().Int("entries", n).Msg("tomorrow not published yet")
		return Days{}, fmt.Errorf("%w: %s has only %d prices for tomorrow", engine.ErrValueNotFound, e.entity, n)
	case n < (24-1)*perHour:
		return Days{}, fmt.Errorf("%w: %s has only %d prices for tomorrow, check time zone and region", engine.ErrSystemConfiguration, e.entity, n)
	}

	todayPrices, err := parse(rawToday, engine.PriceEntsoe, loc).adapt(mtu)
	if err != nil {
		return Days{}, err
	}
	tomorrowPrices, err := tomorrow.adapt(mtu)
	if err != nil {
		return Days{}, err
	}
	return Days{Today: todayPrices, Tomorrow: tomorrowPrices}, nil
}

var _ Source = (*Entsoe)(nil)
