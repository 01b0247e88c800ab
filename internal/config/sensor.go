package config

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/awaistahir/smart-window/internal/engine"
	"github.com/awaistahir/smart-window/internal/lifecycle"
	"github.com/awaistahir/smart-window/internal/prices"
)

// SensorConfig describes one cheapest (or most expensive) hours sensor.
type SensorConfig struct {
	UniqueID string `mapstructure:"unique_id"`
	Name     string `mapstructure:"name"`

	// exactly one price source
	NordPoolEntity   string          `mapstructure:"nordpool_entity"`
	EntsoeEntity     string          `mapstructure:"entsoe_entity"`
	NordPoolOfficial *OfficialConfig `mapstructure:"nordpool_official"`

	FirstHour            int               `mapstructure:"first_hour"`
	LastHour             int               `mapstructure:"last_hour"`
	StartingToday        bool              `mapstructure:"starting_today"`
	NumberOfHours        lifecycle.Param   `mapstructure:"number_of_hours"`
	Sequential           bool              `mapstructure:"sequential"`
	FailsafeStartingHour *int              `mapstructure:"failsafe_starting_hour"`
	Inversed             bool              `mapstructure:"inversed"`
	TriggerTime          *engine.TimeOfDay `mapstructure:"trigger_time"`
	TriggerHour          lifecycle.Param   `mapstructure:"trigger_hour"`
	PriceLimit           lifecycle.Param   `mapstructure:"price_limit"`
	MaxPrice             lifecycle.Param   `mapstructure:"max_price"` // deprecated alias of price_limit
	Calendar             *bool             `mapstructure:"calendar"`
	Offset               *OffsetConfig     `mapstructure:"offset"`
	MTU                  int               `mapstructure:"mtu"`
	PriceModifications   string            `mapstructure:"price_modifications"`
}

// OfficialConfig addresses the official Nord Pool integration.
type OfficialConfig struct {
	ConfigEntry string `mapstructure:"config_entry"`
	Area        string `mapstructure:"area"`
	Currency    string `mapstructure:"currency"`
}

// OffsetConfig shifts the first window start and the last window end.
type OffsetConfig struct {
	Start Span `mapstructure:"start"`
	End   Span `mapstructure:"end"`
}

// Span is a signed hours and minutes duration.
type Span struct {
	Hours   int `mapstructure:"hours"`
	Minutes int `mapstructure:"minutes"`
}

func (s Span) Duration() time.Duration {
	return time.Duration(s.Hours)*time.Hour + time.Duration(s.Minutes)*time.Minute
}

// ID is the normalized unique id.
func (s SensorConfig) ID() string {
	return lifecycle.NormalizeID(s.UniqueID)
}

func (s *SensorConfig) validate() error {
	if s.ID() == "" {
		return errors.New("unique_id is required")
	}

	sources := 0
	for _, set := range []bool{s.NordPoolEntity != "", s.EntsoeEntity != "", s.NordPoolOfficial != nil} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return fmt.Errorf("%s: exactly one of nordpool_entity, entsoe_entity or nordpool_official must be set", s.UniqueID)
	}
	if s.NordPoolOfficial != nil && (s.NordPoolOfficial.ConfigEntry == "" || s.NordPoolOfficial.Area == "") {
		return fmt.Errorf("%s: nordpool_official needs config_entry and area", s.UniqueID)
	}

	if err := checkHour("first_hour", s.FirstHour); err != nil {
		return fmt.Errorf("%s: %w", s.UniqueID, err)
	}
	if err := checkHour("last_hour", s.LastHour); err != nil {
		return fmt.Errorf("%s: %w", s.UniqueID, err)
	}
	if s.FailsafeStartingHour != nil {
		if err := checkHour("failsafe_starting_hour", *s.FailsafeStartingHour); err != nil {
			return fmt.Errorf("%s: %w", s.UniqueID, err)
		}
	}
	if s.NumberOfHours.IsZero() {
		return fmt.Errorf("%s: number_of_hours is required", s.UniqueID)
	}
	if s.MTU != 0 && !engine.MTU(s.MTU).Valid() {
		return fmt.Errorf("%s: mtu must be 15 or 60, got %d", s.UniqueID, s.MTU)
	}

	if s.PriceLimit.IsZero() && !s.MaxPrice.IsZero() {
		s.PriceLimit = s.MaxPrice
	}
	s.MaxPrice = lifecycle.Param{}
	return nil
}

func checkHour(name string, h int) error {
	if h < 0 || h > 23 {
		return fmt.Errorf("%s must be within 0..23, got %d", name, h)
	}
	return nil
}

// Settings converts the sensor into lifecycle settings.
func (s SensorConfig) Settings() lifecycle.Settings {
	settings := lifecycle.Settings{
		UniqueID:             s.ID(),
		Name:                 s.Name,
		FirstHour:            s.FirstHour,
		LastHour:             s.LastHour,
		StartingToday:        s.StartingToday,
		NumberOfHours:        s.NumberOfHours,
		Sequential:           s.Sequential,
		Inversed:             s.Inversed,
		PriceLimit:           s.PriceLimit,
		MTU:                  engine.MTU(s.MTU),
		FailsafeStartingHour: s.FailsafeStartingHour,
		TriggerTime:          s.TriggerTime,
		TriggerHour:          s.TriggerHour,
		Calendar:             s.Calendar == nil || *s.Calendar,
	}
	if settings.Name == "" {
		settings.Name = s.UniqueID
	}
	if settings.MTU == 0 {
		settings.MTU = engine.MTU60
	}
	if s.Offset != nil {
		settings.Offset = lifecycle.Offset{Start: s.Offset.Start.Duration(), End: s.Offset.End.Duration()}
	}
	return settings
}

// PriceConfig converts the price source of the sensor.
func (s SensorConfig) PriceConfig() prices.Config {
	switch {
	case s.NordPoolOfficial != nil:
		return prices.Config{
			Kind:        engine.PriceNordPoolOfficial,
			ConfigEntry: s.NordPoolOfficial.ConfigEntry,
			Area:        s.NordPoolOfficial.Area,
			Currency:    s.NordPoolOfficial.Currency,
		}
	case s.EntsoeEntity != "":
		return prices.Config{Kind: engine.PriceEntsoe, Entity: s.EntsoeEntity}
	default:
		return prices.Config{Kind: engine.PriceNordPool, Entity: s.NordPoolEntity}
	}
}

var paramType = reflect.TypeOf(lifecycle.Param{})

// numberToParamHookFunc decodes plain YAML numbers into literal params.
// Strings are left to the TextUnmarshaler hook.
func numberToParamHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != paramType {
			return data, nil
		}
		switch f.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return lifecycle.Literal(float64(reflect.ValueOf(data).Int())), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return lifecycle.Literal(float64(reflect.ValueOf(data).Uint())), nil
		case reflect.Float32, reflect.Float64:
			return lifecycle.Literal(reflect.ValueOf(data).Float()), nil
		default:
			return data, nil
		}
	}
}
