package prices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/awaistahir/smart-window/internal/engine"
	"github.com/awaistahir/smart-window/internal/hass"
)

// Days holds the two price series a selection is computed from
type Days struct {
	Today    []engine.HourPrice `json:"today"`
	Tomorrow []engine.HourPrice `json:"tomorrow"`
}

// Source supplies today's and tomorrow's prices in the requested interval
// length. Missing or stale data fails with engine.ErrValueNotFound, data
// that cannot match the configuration with engine.ErrSystemConfiguration.
type Source interface {
	Kind() engine.PriceType
	Fetch(ctx context.Context, now time.Time, mtu engine.MTU) (Days, error)
}

// StateReader reads entity states
type StateReader interface {
	State(ctx context.Context, entityID string) (hass.State, error)
}

// ServiceCaller calls services that return a response
type ServiceCaller interface {
	CallService(ctx context.Context, domain, service string, data any, out any) error
}

// Config selects and parameterises one price source
type Config struct {
	Kind        engine.PriceType
	Entity      string // sensor entity of the Nord Pool or Entso-e integration
	ConfigEntry string // config entry of the official Nord Pool integration
	Area        string
	Currency    string
}

// NewSource builds the source described by cfg on top of the Home Assistant client
func NewSource(cfg Config, client *hass.Client, logger zerolog.Logger) (Source, error) {
	switch cfg.Kind {
	case engine.PriceNordPool:
		return NewNordPool(cfg.Entity, client, logger), nil
	case engine.PriceEntsoe:
		return NewEntsoe(cfg.Entity, client, logger), nil
	case engine.PriceNordPoolOfficial:
		return NewOfficial(OfficialOptions{
			ConfigEntry: cfg.ConfigEntry,
			Area:        cfg.Area,
			Currency:    cfg.Currency,
		}, client, logger), nil
	default:
		return nil, fmt.Errorf("unknown price source %q", cfg.Kind)
	}
}

// readState fetches an entity, mapping an unknown entity to a missing value
func readState(ctx context.Context, states StateReader, entityID string) (hass.State, error) {
	state, err := states.State(ctx, entityID)
	if errors.Is(err, hass.ErrNotFound) {
		return hass.State{}, fmt.Errorf("%w: entity %s does not exist", engine.ErrValueNotFound, entityID)
	}
	if err != nil {
		return hass.State{}, fmt.Errorf("%w: %v", engine.ErrValueNotFound, err)
	}
	return state, nil
}
