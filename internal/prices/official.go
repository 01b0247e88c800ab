package prices

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/awaistahir/smart-window/internal/engine"
)

const (
	officialDomain  = "nordpool"
	officialService = "get_prices_for_date"
)

// OfficialOptions parameterise the official Nord Pool service source.
type OfficialOptions struct {
	ConfigEntry string
	Area        string
	Currency    string
}

// Official fetches prices through the service of the official Nord Pool
// integration, one call per day
type Official struct {
	opts     OfficialOptions
	services ServiceCaller
	logger   zerolog.Logger
}

// NewOfficial constructs an official Nord Pool source.
func NewOfficial(opts OfficialOptions, services ServiceCaller, logger zerolog.Logger) *Official {
	return &Official{
		opts:     opts,
		services: services,
		logger:   logger.With().Str("component", "nordpool_official").Str("area", opts.Area).Logger(),
	}
}

func (o *Official) Kind() engine.PriceType { return engine.PriceNordPoolOfficial }

type officialRequest struct {
	ConfigEntry string `json:"config_entry"`
	Date        string `json:"date"`
	Areas       string `json:"areas"`
	Currency    string `json:"currency,omitempty"`
}

func (o *Official) Fetch(ctx context.Context, now time.Time, mtu engine.MTU) (Days, error) {
	today := engine.DateOf(now)
	tomorrow := engine.DateOf(today.In(now.Location()).AddDate(0, 0, 1))

	todayPrices, err := o.day(ctx, today, now.Location(), mtu)
	if err != nil {
		return Days{}, err
	}
	tomorrowPrices, err := o.day(ctx, tomorrow, now.Location(), mtu)
	if err != nil {
		return Days{}, err
	}
	return Days{Today: todayPrices, Tomorrow: tomorrowPrices}, nil
}

func (o *Official) day(ctx context.Context, date engine.Date, loc *time.Location, mtu engine.MTU) ([]engine.HourPrice, error) {
	req := officialRequest{
		ConfigEntry: o.opts.ConfigEntry,
		Date:        date.String(),
		Areas:       o.opts.Area,
		Currency:    o.opts.Currency,
	}

	var resp map[string][]RawPrice
	if err := o.services.CallService(ctx, officialDomain, officialService, req, &resp); err != nil {
		o.logger.Debug().Err(err).Stringer("date", date).Msg("price service call failed")
		return nil, fmt.Errorf("%w: %v", engine.ErrValueNotFound, err)
	}

	raw, ok := resp[o.opts.Area]
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%w: no prices for %s in area %s", engine.ErrValueNotFound, date, o.opts.Area)
	}
	return Translate(raw, engine.PriceNordPoolOfficial, loc, mtu)
}

var _ Source = (*Official)(nil)
