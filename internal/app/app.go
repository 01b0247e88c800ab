package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/awaistahir/smart-window/internal/config"
	"github.com/awaistahir/smart-window/internal/hass"
	"github.com/awaistahir/smart-window/internal/lifecycle"
	"github.com/awaistahir/smart-window/internal/metrics"
	"github.com/awaistahir/smart-window/internal/prices"
	"github.com/awaistahir/smart-window/internal/scheduler"
	"github.com/awaistahir/smart-window/internal/store"
	"github.com/awaistahir/smart-window/internal/transform"
	"github.com/awaistahir/smart-window/internal/uiapi"
)

// App aggregates configuration and shared dependencies for the commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	loc *time.Location
	now func() time.Time
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		loc:    loc,
		now:    time.Now,
	}, nil
}

// Now is the current time in the configured zone
func (a *App) Now() time.Time {
	return a.now().In(a.loc)
}

func (a *App) openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(ctx, a.Config.Storage, a.loc, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return st, nil
}

func (a *App) newClient() *hass.Client {
	return hass.NewClient(a.Config.HassOptions(), a.Logger)
}

func (a *App) newController(sc config.SensorConfig, st lifecycle.RecordStore, client *hass.Client) (*lifecycle.Controller, error) {
	source, err := prices.NewSource(sc.PriceConfig(), client, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sc.ID(), err)
	}
	fn, err := transform.Compile(sc.PriceModifications, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sc.ID(), err)
	}
	return lifecycle.NewController(sc.Settings(), st, source, client, fn, a.Logger), nil
}

func (a *App) controllers(st lifecycle.RecordStore, client *hass.Client) ([]*lifecycle.Controller, error) {
	out := make([]*lifecycle.Controller, 0, len(a.Config.Sensors))
	for _, sc := range a.Config.Sensors {
		c, err := a.newController(sc, st, client)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (a *App) controller(id string, st lifecycle.RecordStore, client *hass.Client) (*lifecycle.Controller, error) {
	sc, ok := a.Config.Sensor(lifecycle.NormalizeID(id))
	if !ok {
		return nil, fmt.Errorf("unknown sensor %q", id)
	}
	return a.newController(sc, st, client)
}

// tickAll advances every controller once. Persistence failures of single
// sensors are collected so the remaining sensors still tick.
func (a *App) tickAll(ctx context.Context, controllers []*lifecycle.Controller) error {
	var errs []error
	for _, c := range controllers {
		if _, err := c.Tick(ctx, a.Now()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run executes the long-running service: the tick loop and the HTTP API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics.Init()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	controllers, err := a.controllers(st, a.newClient())
	if err != nil {
		return err
	}
	if len(controllers) == 0 {
		a.Logger.Warn().Msg("no sensors configured")
	}

	sensors := make([]uiapi.Sensor, len(controllers))
	for i, c := range controllers {
		sensors[i] = c
	}
	srv := &http.Server{
		Addr:              a.Config.HTTP.Addr,
		Handler:           uiapi.NewServer(sensors, st, a.loc, a.Logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", srv.Addr).Msg("http api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
	}()

	opts := a.Config.SchedulerOptions()
	opts.RunAtStart = true
	sched := scheduler.New(opts, a.Logger)

	a.Logger.Info().Int("sensors", len(controllers)).Msg("starting selection service")
	err = sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		return a.tickAll(ctx, controllers)
	})

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		a.Logger.Warn().Err(shutdownErr).Msg("http shutdown")
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("http api: %w", err)
	default:
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("selection service stopped")
	return nil
}
