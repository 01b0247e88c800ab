package transform

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaistahir/smart-window/internal/engine"
)

func TestCompile(t *testing.T) {
	at := time.Date(2024, 7, 22, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		src   string
		price float64
		want  float64
	}{
		{"vat and margin", "price * 1.24 + 0.5", 2, 2.98},
		{"template braces", "{{ price * 2 }}", 1.5, 3},
		{"integer result", "1", 7, 1},
		{"time dependent tariff", "time.Hour() >= 17 ? price + 3 : price", 1, 4},
		{"conditional cap", "price > 4 ? 4.0 : price", 5, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := Compile(tt.src, zerolog.Nop())
			require.NoError(t, err)
			require.NotNil(t, fn)
			assert.InDelta(t, tt.want, fn(tt.price, at), 1e-9)
		})
	}
}

func TestCompileEmpty(t *testing.T) {
	fn, err := Compile("  {{ }} ", zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, fn)
}

func TestCompileRejectsUnknownVariables(t *testing.T) {
	_, err := Compile("prize * 2", zerolog.Nop())
	assert.Error(t, err)
}

func TestRuntimeFailureKeepsOriginalPrice(t *testing.T) {
	fn, err := Compile(`price + float("x" + string(price))`, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 4.2, fn(4.2, time.Now()))
}

func TestApply(t *testing.T) {
	start := time.Date(2024, 7, 22, 0, 0, 0, 0, time.UTC)
	in := []engine.HourPrice{
		engine.NewHourPrice(1, start, engine.PriceNordPool, time.Hour),
		engine.NewHourPrice(2, start.Add(time.Hour), engine.PriceNordPool, time.Hour),
	}

	fn, err := Compile("price * 10", zerolog.Nop())
	require.NoError(t, err)

	out := Apply(fn, in)
	assert.Equal(t, 10.0, out[0].Value)
	assert.Equal(t, 20.0, out[1].Value)
	assert.Equal(t, in[1].Start, out[1].Start)
	assert.Equal(t, 1.0, in[0].Value, "input is not modified")

	assert.Equal(t, in, Apply(nil, in))
}
