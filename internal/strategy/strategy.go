// Package strategy defines the Strategy interface for trading strategies and
// provides a Registry and an Executor that runs many strategies over a price
// series and merges their signal streams into one decision per timestamp.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"hkquant/internal/domain"
)

// ErrDuplicateStrategy is returned when registering a strategy under a name
// that is already taken.
var ErrDuplicateStrategy = errors.New("strategy: duplicate strategy name")

// Strategy is the interface that all trading strategies must implement.
// Implementations must be pure with respect to the series: evaluating the
// same bars twice yields the same signals.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Warmup returns the number of leading bars the strategy needs before
	// its signals are meaningful. The executor emits hold signals during
	// warm-up.
	Warmup() int

	// OnBar evaluates the series at index i, with bars[:i+1] visible, and
	// returns one signal stamped with bars[i].Timestamp.
	OnBar(ctx context.Context, bars []domain.Bar, i int) (domain.Signal, error)
}

// Registry holds a named collection of strategies for lookup and enumeration.
// It is constructed once at startup and passed by injection; there is no
// package-level registry.
type Registry struct {
	strategies map[string]Strategy
	weights    map[string]float64
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
		weights:    make(map[string]float64),
	}
}

// Register adds a strategy to the registry, keyed by its Name(). Registering
// a name twice fails with ErrDuplicateStrategy.
func (r *Registry) Register(s Strategy) error {
	name := s.Name()
	if _, ok := r.strategies[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, name)
	}
	r.strategies[name] = s
	r.weights[name] = 1
	return nil
}

// SetWeight assigns the aggregation weight for a registered strategy.
// Weights default to equal; they are normalized at merge time.
func (r *Registry) SetWeight(name string, weight float64) error {
	if _, ok := r.strategies[name]; !ok {
		return fmt.Errorf("strategy: set weight for unknown strategy %q", name)
	}
	r.weights[name] = weight
	return nil
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MaxWarmup returns the largest warm-up requirement across all registered
// strategies.
func (r *Registry) MaxWarmup() int {
	max := 0
	for _, s := range r.strategies {
		if w := s.Warmup(); w > max {
			max = w
		}
	}
	return max
}
