package lifecycle

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/awaistahir/smart-window/internal/engine"
)

// Resolver reads the numeric state of an external entity
type Resolver interface {
	Number(ctx context.Context, entityID string) (float64, error)
}

// Param is either a literal number or a reference to an entity whose state
// supplies the number. The zero Param is unset.
type Param struct {
	Value  *float64
	Entity string
}

// Literal returns a Param with a fixed value
func Literal(v float64) Param {
	return Param{Value: &v}
}

// Ref returns a Param read from entity on every resolution
func Ref(entity string) Param {
	return Param{Entity: entity}
}

// ParseParam reads a number, or anything else as an entity id
func ParseParam(s string) (Param, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Param{}, nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Literal(v), nil
	}
	if !strings.Contains(s, ".") {
		return Param{}, fmt.Errorf("%q is neither a number nor an entity id", s)
	}
	return Ref(s), nil
}

func (p Param) IsZero() bool {
	return p.Value == nil && p.Entity == ""
}

func (p Param) String() string {
	switch {
	case p.Value != nil:
		return strconv.FormatFloat(*p.Value, 'f', -1, 64)
	default:
		return p.Entity
	}
}

func (p Param) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Param) UnmarshalText(b []byte) error {
	parsed, err := ParseParam(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Resolve returns the literal value or the current state of the entity
func (p Param) Resolve(ctx context.Context, r Resolver) (float64, error) {
	if p.Value != nil {
		return *p.Value, nil
	}
	if p.Entity == "" {
		return 0, fmt.Errorf("%w: parameter is not set", engine.ErrInvalidEntityState)
	}
	if r == nil {
		return 0, fmt.Errorf("%w: no resolver for %s", engine.ErrInvalidEntityState, p.Entity)
	}
	v, err := r.Number(ctx, p.Entity)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", engine.ErrInvalidEntityState, err)
	}
	return v, nil
}

// ResolveInt resolves p and truncates the value to a whole number
func (p Param) ResolveInt(ctx context.Context, r Resolver) (int, error) {
	v, err := p.Resolve(ctx, r)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %v is not a whole number", engine.ErrInvalidEntityState, v)
	}
	return int(v), nil
}
