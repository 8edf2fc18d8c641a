package optimize

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
)

var (
	ErrInvalidBounds = errors.New("optimize: invalid parameter bounds")
	ErrEmptySpace    = errors.New("optimize: empty parameter space")
)

// Kind is the value type of a tunable parameter.
type Kind string

const (
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindChoice Kind = "choice"
)

// Bounds describes one tunable parameter. Int and float parameters span
// [Min, Max]; Step controls grid granularity (int defaults to 1). Choice
// parameters enumerate Choices; bool parameters enumerate false/true.
type Bounds struct {
	Name    string   `yaml:"name" json:"name"`
	Kind    Kind     `yaml:"kind" json:"kind"`
	Min     float64  `yaml:"min" json:"min,omitempty"`
	Max     float64  `yaml:"max" json:"max,omitempty"`
	Step    float64  `yaml:"step" json:"step,omitempty"`
	Default any      `yaml:"default" json:"default,omitempty"`
	Choices []string `yaml:"choices" json:"choices,omitempty"`
}

func (b Bounds) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidBounds)
	}
	switch b.Kind {
	case KindInt, KindFloat:
		if b.Min > b.Max {
			return fmt.Errorf("%w: %s min %v > max %v", ErrInvalidBounds, b.Name, b.Min, b.Max)
		}
		if b.Step < 0 {
			return fmt.Errorf("%w: %s negative step", ErrInvalidBounds, b.Name)
		}
		if b.Kind == KindFloat && b.Step == 0 {
			return fmt.Errorf("%w: %s float parameter requires a step for grid enumeration", ErrInvalidBounds, b.Name)
		}
		if d, ok := b.defaultNumber(); ok && (d < b.Min || d > b.Max) {
			return fmt.Errorf("%w: %s default %v outside [%v, %v]", ErrInvalidBounds, b.Name, d, b.Min, b.Max)
		}
	case KindBool:
	case KindChoice:
		if len(b.Choices) == 0 {
			return fmt.Errorf("%w: %s choice parameter with no choices", ErrInvalidBounds, b.Name)
		}
	default:
		return fmt.Errorf("%w: %s unknown kind %q", ErrInvalidBounds, b.Name, b.Kind)
	}
	return nil
}

func (b Bounds) defaultNumber() (float64, bool) {
	switch v := b.Default.(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// enumerate lists every grid value for the parameter, in ascending order.
func (b Bounds) enumerate() []any {
	switch b.Kind {
	case KindInt:
		step := b.Step
		if step == 0 {
			step = 1
		}
		var out []any
		for v := b.Min; v <= b.Max+1e-9; v += step {
			out = append(out, int(math.Round(v)))
		}
		return out
	case KindFloat:
		var out []any
		for v := b.Min; v <= b.Max+b.Step*1e-9; v += b.Step {
			out = append(out, v)
		}
		return out
	case KindBool:
		return []any{false, true}
	case KindChoice:
		out := make([]any, len(b.Choices))
		for i, c := range b.Choices {
			out[i] = c
		}
		return out
	}
	return nil
}

// sample draws one uniform value from the parameter's range.
func (b Bounds) sample(r *rand.Rand) any {
	switch b.Kind {
	case KindInt:
		lo, hi := int(b.Min), int(b.Max)
		return lo + r.Intn(hi-lo+1)
	case KindFloat:
		return b.Min + r.Float64()*(b.Max-b.Min)
	case KindBool:
		return r.Intn(2) == 1
	case KindChoice:
		return b.Choices[r.Intn(len(b.Choices))]
	}
	return nil
}

// Space is the full set of tunable parameters for a search.
type Space []Bounds

func (s Space) Validate() error {
	if len(s) == 0 {
		return ErrEmptySpace
	}
	seen := make(map[string]bool, len(s))
	for _, b := range s {
		if err := b.Validate(); err != nil {
			return err
		}
		if seen[b.Name] {
			return fmt.Errorf("%w: duplicate parameter %q", ErrInvalidBounds, b.Name)
		}
		seen[b.Name] = true
	}
	return nil
}

// size returns the number of grid points in the space.
func (s Space) size() int {
	n := 1
	for _, b := range s {
		n *= len(b.enumerate())
	}
	return n
}

// grid materializes the Cartesian product of all parameter values.
func (s Space) grid() []Params {
	out := []Params{{}}
	for _, b := range s {
		values := b.enumerate()
		next := make([]Params, 0, len(out)*len(values))
		for _, base := range out {
			for _, v := range values {
				p := make(Params, len(base)+1)
				for k, bv := range base {
					p[k] = bv
				}
				p[b.Name] = v
				next = append(next, p)
			}
		}
		out = next
	}
	return out
}

// Params is one concrete assignment of values to parameter names.
type Params map[string]any

// Key renders a canonical sorted form, used for deduplication and as a
// deterministic ranking tiebreaker.
func (p Params) Key() string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	var sb strings.Builder
	for i, k := range names {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=%v", k, p[k])
	}
	return sb.String()
}

// Int reads an integer parameter, tolerating float-typed values.
func (p Params) Int(name string, fallback int) int {
	switch v := p[name].(type) {
	case int:
		return v
	case float64:
		return int(math.Round(v))
	}
	return fallback
}

// Float reads a numeric parameter.
func (p Params) Float(name string, fallback float64) float64 {
	switch v := p[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

// Bool reads a boolean parameter.
func (p Params) Bool(name string, fallback bool) bool {
	if v, ok := p[name].(bool); ok {
		return v
	}
	return fallback
}

// String reads a choice parameter.
func (p Params) String(name, fallback string) string {
	if v, ok := p[name].(string); ok {
		return v
	}
	return fallback
}
