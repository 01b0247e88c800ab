package transform

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"

	"github.com/awaistahir/smart-window/internal/engine"
)

// Func remaps the price of one interval
type Func func(price float64, at time.Time) float64

// env is the variable set visible to price expressions
type env struct {
	Price float64   `expr:"price"`
	Time  time.Time `expr:"time"`
}

// Compile turns a price expression such as "price * 1.24 + 0.5" into a
// Func. Template braces around the expression are accepted. An empty
// expression yields a nil Func. Evaluation failures keep the original price.
func Compile(src string, logger zerolog.Logger) (Func, error) {
	src = strings.TrimSpace(src)
	src = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(src, "{{"), "}}"))
	if src == "" {
		return nil, nil
	}

	program, err := expr.Compile(src, expr.Env(env{}), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("compile price modification %q: %w", src, err)
	}

	logger = logger.With().Str("component", "price_transform").Logger()
	return func(price float64, at time.Time) float64 {
		return run(program, price, at, logger)
	}, nil
}

func run(program *vm.Program, price float64, at time.Time, logger zerolog.Logger) float64 {
	out, err := expr.Run(program, env{Price: price, Time: at})
	if err != nil {
		logger.Warn().Err(err).Float64("price", price).Time("time", at).Msg("price modification failed, keeping original price")
		return price
	}
	v, ok := out.(float64)
	if !ok {
		return price
	}
	return v
}

// Apply returns a new series with every value remapped by fn. A nil fn
// returns prices unchanged.
func Apply(fn Func, prices []engine.HourPrice) []engine.HourPrice {
	if fn == nil {
		return prices
	}
	out := make([]engine.HourPrice, len(prices))
	for i, p := range prices {
		out[i] = p.WithValue(fn(p.Value, p.Start))
	}
	return out
}
