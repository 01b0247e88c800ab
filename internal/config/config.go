package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/awaistahir/smart-window/internal/hass"
	"github.com/awaistahir/smart-window/internal/logging"
	"github.com/awaistahir/smart-window/internal/scheduler"
	"github.com/awaistahir/smart-window/internal/store"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Storage   store.Config    `mapstructure:"storage"`
	Hass      HassConfig      `mapstructure:"hass"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Sensors   []SensorConfig  `mapstructure:"sensors"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Timezone string `mapstructure:"timezone"`
}

// SchedulerConfig governs how often every sensor is ticked.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// HassConfig covers Home Assistant REST access.
type HassConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// HTTPConfig configures the daemon API listener.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SMARTWINDOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.smartwindow")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "smartwindow")
	v.SetDefault("app.timezone", "Local")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.max_open_conns", 10)
	v.SetDefault("storage.max_idle_conns", 2)
	v.SetDefault("storage.conn_max_lifetime", "30m")

	v.SetDefault("hass.base_url", "http://homeassistant.local:8123")
	v.SetDefault("hass.token", "")
	v.SetDefault("hass.timeout", "10s")

	v.SetDefault("http.addr", ":8090")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			numberToParamHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.TextUnmarshallerHookFunc(),
		)
	}
}

// Validate performs sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("app.timezone: %w", err)
	}
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", c.Storage.Driver)
	}

	seen := make(map[string]bool, len(c.Sensors))
	for i := range c.Sensors {
		s := &c.Sensors[i]
		if err := s.validate(); err != nil {
			return fmt.Errorf("sensors[%d]: %w", i, err)
		}
		id := s.ID()
		if seen[id] {
			return fmt.Errorf("sensors[%d]: duplicate unique_id %q", i, id)
		}
		seen[id] = true
	}
	return nil
}

// Location returns the time zone windows are computed in.
func (c *Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" || c.App.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.App.Timezone)
}

// Sensor returns the sensor with the given unique id.
func (c *Config) Sensor(id string) (SensorConfig, bool) {
	for _, s := range c.Sensors {
		if s.ID() == id {
			return s, true
		}
	}
	return SensorConfig{}, false
}

// SchedulerOptions converts the scheduler section.
func (c *Config) SchedulerOptions() scheduler.Options {
	return scheduler.Options{
		Interval:     c.Scheduler.Interval,
		AlignToStart: c.Scheduler.AlignToBucket,
		StartupDelay: c.Scheduler.StartupDelay,
	}
}

// HassOptions converts the hass section.
func (c *Config) HassOptions() hass.Options {
	return hass.Options{
		BaseURL: c.Hass.BaseURL,
		Token:   c.Hass.Token,
		Timeout: c.Hass.Timeout,
	}
}
