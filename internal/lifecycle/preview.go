package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/awaistahir/smart-window/internal/engine"
	"github.com/awaistahir/smart-window/internal/prices"
)

// Preview is a selection computed outside the lifecycle
type Preview struct {
	Selection  engine.Selection `json:"selection"`
	Expiration time.Time        `json:"expiration"`
	Hours      int              `json:"number_of_hours"`
	PriceLimit *float64         `json:"price_limit,omitempty"`
}

// Preview runs the selection on days as a tick at now would, without
// gating or touching the persisted record.
func (c *Controller) Preview(ctx context.Context, now time.Time, days prices.Days) (Preview, error) {
	params, err := c.resolve(ctx)
	if err != nil {
		return Preview{}, err
	}

	today, tomorrow, err := c.prepare(days)
	if err != nil {
		return Preview{}, fmt.Errorf("normalize prices: %w", err)
	}

	sel, err := c.selectWindows(today, tomorrow, params)
	if err != nil {
		return Preview{}, err
	}
	expiration := engine.Expiration(now, c.settings.LastHour)
	sel, expiration = applyOffset(sel, expiration, c.settings.Offset)

	return Preview{
		Selection:  sel,
		Expiration: expiration,
		Hours:      params.hours,
		PriceLimit: params.priceLimit,
	}, nil
}

// FetchPrices reads both days from the price source as they are delivered,
// before any transform or normalization
func (c *Controller) FetchPrices(ctx context.Context, now time.Time) (prices.Days, error) {
	return c.source.Fetch(ctx, now, c.settings.mtu())
}
