package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaistahir/smart-window/internal/config"
	"github.com/awaistahir/smart-window/internal/engine"
	"github.com/awaistahir/smart-window/internal/lifecycle"
	"github.com/awaistahir/smart-window/internal/prices"
	"github.com/awaistahir/smart-window/internal/store"
)

var (
	dayOne = []float64{
		3.809, 3.435, 3.295, 3.169, 3.08, 3.16, 3.355, 3.436,
		3.752, 3.768, 3.577, 3.549, 3.463, 3.6, 3.585, 3.541,
		3.229, 3.019, 10.287, 3.369, 3.435, 0.434, 1.391, 2.567,
	}
	dayTwo = []float64{
		3.482, 2.461, 2.967, 2.859, 3.063, 3.249, 3.582, 4.149,
		4.382, 4.505, 1.547, 25.874, 1.851, 1.71, 4.774, 4.706,
		4.598, 4.551, 4.463, 4.551, 4.46, 4.397, 4.345, 4.175,
	}
)

func rawDay(day time.Time, values []float64) []map[string]any {
	out := make([]map[string]any, len(values))
	for i, v := range values {
		start := day.Add(time.Duration(i) * time.Hour)
		out[i] = map[string]any{
			"value": v,
			"start": start.Format(time.RFC3339),
			"end":   start.Add(time.Hour).Format(time.RFC3339),
		}
	}
	return out
}

// homeAssistant serves a Nord Pool sensor with two days of prices starting at day
func homeAssistant(t *testing.T, day time.Time) *httptest.Server {
	t.Helper()
	state := map[string]any{
		"entity_id": "sensor.nordpool",
		"state":     "3.1",
		"attributes": map[string]any{
			"today":          dayOne,
			"tomorrow_valid": true,
			"raw_today":      rawDay(day, dayOne),
			"raw_tomorrow":   rawDay(day.AddDate(0, 0, 1), dayTwo),
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/states/sensor.nordpool":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(state)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T) (*App, time.Time) {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Helsinki")
	require.NoError(t, err)
	day := time.Date(2024, 7, 22, 0, 0, 0, 0, loc)
	ha := homeAssistant(t, day)

	cfg := &config.Config{
		App:       config.AppConfig{Name: "smartwindow", Timezone: "Europe/Helsinki"},
		Scheduler: config.SchedulerConfig{Interval: time.Minute},
		Storage:   store.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "smartwindow.db")},
		Hass:      config.HassConfig{BaseURL: ha.URL, Timeout: time.Second},
		Sensors: []config.SensorConfig{{
			UniqueID:       "cheap hours",
			Name:           "Cheap hours",
			NordPoolEntity: "sensor.nordpool",
			LastHour:       18,
			NumberOfHours:  lifecycle.Literal(3),
		}},
	}
	require.NoError(t, cfg.Validate())

	a, err := NewApp(cfg, zerolog.Nop())
	require.NoError(t, err)
	a.now = func() time.Time { return day.Add(14*time.Hour + 25*time.Minute) }
	return a, day
}

func TestFetchThenSelect(t *testing.T) {
	ctx := context.Background()
	a, day := newTestApp(t)

	var out bytes.Buffer
	require.NoError(t, a.Fetch(ctx, "cheap hours", &out))
	var days prices.Days
	require.NoError(t, json.Unmarshal(out.Bytes(), &days))
	assert.Len(t, days.Today, 24)
	assert.Len(t, days.Tomorrow, 24)

	out.Reset()
	require.NoError(t, a.Select(ctx, SelectOptions{Sensor: "cheap_hours"}, &out))
	var preview lifecycle.Preview
	require.NoError(t, json.Unmarshal(out.Bytes(), &preview))

	tomorrow := day.AddDate(0, 0, 1)
	want := []engine.Window{
		{Start: tomorrow.Add(10 * time.Hour), End: tomorrow.Add(11 * time.Hour)},
		{Start: tomorrow.Add(12 * time.Hour), End: tomorrow.Add(14 * time.Hour)},
	}
	assert.True(t, engine.WindowsEqual(want, preview.Selection.Windows), "windows = %v", preview.Selection.Windows)
	assert.Equal(t, 3, preview.Hours)

	// nothing was persisted
	out.Reset()
	require.NoError(t, a.Show(ctx, "", &out))
	assert.Contains(t, out.String(), "no records found")
}

func TestSelectWithoutCache(t *testing.T) {
	a, _ := newTestApp(t)
	err := a.Select(context.Background(), SelectOptions{Sensor: "cheap_hours"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run fetch first")

	err = a.Select(context.Background(), SelectOptions{Sensor: "unknown"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestTickShowClear(t *testing.T) {
	ctx := context.Background()
	a, day := newTestApp(t)

	st, err := a.openStore(ctx)
	require.NoError(t, err)
	controllers, err := a.controllers(st, a.newClient())
	require.NoError(t, err)
	require.Len(t, controllers, 1)
	require.NoError(t, a.tickAll(ctx, controllers))

	rec, ok := st.Get("cheap_hours")
	require.True(t, ok)
	assert.Len(t, rec.List, 2)
	require.NoError(t, st.Close())

	var out bytes.Buffer
	require.NoError(t, a.Show(ctx, "", &out))
	assert.Contains(t, out.String(), "cheap_hours")
	assert.Contains(t, out.String(), "07-23 10:00-11:00,07-23 12:00-14:00")

	out.Reset()
	require.NoError(t, a.Show(ctx, "cheap hours", &out))
	var shown engine.Record
	require.NoError(t, json.Unmarshal(out.Bytes(), &shown))
	assert.Equal(t, "Cheap hours", shown.Name)

	// 2024-07-23 10:30 lies inside the first window
	a.now = func() time.Time { return day.AddDate(0, 0, 1).Add(10*time.Hour + 30*time.Minute) }
	out.Reset()
	require.NoError(t, a.Status(ctx, "", &out))
	assert.Regexp(t, `cheap_hours\s+Cheap hours\s+true\s+active\s+false`, out.String())

	out.Reset()
	require.NoError(t, a.Status(ctx, "cheap hours", &out))
	var attrs lifecycle.Attributes
	require.NoError(t, json.Unmarshal(out.Bytes(), &attrs))
	assert.True(t, attrs.IsOn)
	assert.Equal(t, engine.ModeActive, attrs.Mode)
	assert.Error(t, a.Status(ctx, "unknown", &out))

	assert.Error(t, a.Clear(ctx, ClearOptions{}))
	require.NoError(t, a.Clear(ctx, ClearOptions{Sensor: "cheap hours"}))
	assert.Error(t, a.Show(ctx, "cheap_hours", &out))
	require.NoError(t, a.Clear(ctx, ClearOptions{All: true}))
}
