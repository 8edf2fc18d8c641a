package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"hkquant/internal/domain"
)

// Aggregation selects how the executor merges multi-strategy signal streams.
type Aggregation string

const (
	// AggregationWeighted merges strengths by normalized per-strategy weight
	// and averages confidences.
	AggregationWeighted Aggregation = "weighted"

	// AggregationVoting counts buy vs. sell votes; the majority wins with
	// confidence equal to the minimum confidence among the winning side. An
	// exact tie yields hold.
	AggregationVoting Aggregation = "voting"

	// AggregationMax selects the single signal with the highest confidence,
	// breaking ties by higher absolute strength.
	AggregationMax Aggregation = "max"
)

// Executor runs every registered strategy over a price series and merges
// their per-timestamp signals. It carries no state between calls: the output
// is a pure function of the inputs.
type Executor struct {
	registry *Registry
	log      *slog.Logger
}

// NewExecutor creates an Executor over the given registry.
func NewExecutor(registry *Registry, log *slog.Logger) *Executor {
	return &Executor{registry: registry, log: log}
}

// MaxWarmup is the longest warmup among registered strategies; before this
// many bars every merged signal is hold.
func (e *Executor) MaxWarmup() int {
	return e.registry.MaxWarmup()
}

// GenerateSignals runs all registered strategies against the series and
// returns one merged signal per input timestamp. A strategy that returns an
// error or panics contributes hold with confidence 0 for that timestamp; the
// run continues.
func (e *Executor) GenerateSignals(ctx context.Context, bars []domain.Bar, method Aggregation) ([]domain.Signal, error) {
	if err := domain.ValidateSeries(bars); err != nil {
		return nil, err
	}
	names := e.registry.List()
	if len(names) == 0 {
		return nil, fmt.Errorf("strategy: no strategies registered")
	}

	merged := make([]domain.Signal, 0, len(bars))
	raw := make([]domain.Signal, len(names))

	for i := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j, name := range names {
			s, _ := e.registry.Get(name)
			raw[j] = e.evalOne(ctx, s, bars, i)
		}
		m, err := e.merge(raw, method)
		if err != nil {
			return nil, err
		}
		m.Timestamp = bars[i].Timestamp
		m.Symbol = bars[i].Symbol
		merged = append(merged, m)
	}
	return merged, nil
}

// evalOne evaluates one strategy on one bar, isolating failures: an error or
// panic becomes a hold signal with confidence 0.
func (e *Executor) evalOne(ctx context.Context, s Strategy, bars []domain.Bar, i int) (sig domain.Signal) {
	hold := domain.Signal{
		Timestamp: bars[i].Timestamp,
		Symbol:    bars[i].Symbol,
		Direction: domain.DirectionHold,
		Source:    s.Name(),
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("strategy panicked, substituting hold",
				"strategy", s.Name(), "bar", bars[i].Timestamp, "panic", r)
			sig = hold
		}
	}()

	if i < s.Warmup() {
		return hold
	}
	out, err := s.OnBar(ctx, bars, i)
	if err != nil {
		e.log.Warn("strategy failed, substituting hold",
			"strategy", s.Name(), "bar", bars[i].Timestamp, "error", err)
		return hold
	}
	out.Timestamp = bars[i].Timestamp
	out.Symbol = bars[i].Symbol
	out.Source = s.Name()
	out.Strength = clamp(out.Strength, -1, 1)
	out.Confidence = clamp(out.Confidence, 0, 1)
	return out
}

func (e *Executor) merge(signals []domain.Signal, method Aggregation) (domain.Signal, error) {
	switch method {
	case AggregationWeighted:
		return e.mergeWeighted(signals), nil
	case AggregationVoting:
		return mergeVoting(signals), nil
	case AggregationMax:
		return mergeMax(signals), nil
	default:
		return domain.Signal{}, fmt.Errorf("strategy: unknown aggregation method %q", method)
	}
}

// mergeWeighted computes strength as the weight-normalized sum of signed
// strengths and confidence as the mean confidence.
func (e *Executor) mergeWeighted(signals []domain.Signal) domain.Signal {
	var totalWeight, strength, confidence float64
	for _, s := range signals {
		totalWeight += e.registry.weights[s.Source]
	}
	if totalWeight == 0 {
		totalWeight = float64(len(signals))
	}
	for _, s := range signals {
		w := e.registry.weights[s.Source] / totalWeight
		strength += w * signedStrength(s)
		confidence += s.Confidence
	}
	confidence /= float64(len(signals))

	return domain.Signal{
		Direction:  directionOf(strength),
		Strength:   clamp(strength, -1, 1),
		Confidence: confidence,
		Source:     "aggregate:weighted",
	}
}

func mergeVoting(signals []domain.Signal) domain.Signal {
	buys, sells := 0, 0
	for _, s := range signals {
		switch s.Direction {
		case domain.DirectionBuy:
			buys++
		case domain.DirectionSell:
			sells++
		}
	}

	// An exact split is hold by definition, not an error.
	if buys == sells {
		return domain.Signal{Direction: domain.DirectionHold, Source: "aggregate:voting"}
	}

	winner := domain.DirectionBuy
	if sells > buys {
		winner = domain.DirectionSell
	}
	minConf := math.Inf(1)
	var strengthSum float64
	var n int
	for _, s := range signals {
		if s.Direction != winner {
			continue
		}
		if s.Confidence < minConf {
			minConf = s.Confidence
		}
		strengthSum += signedStrength(s)
		n++
	}
	return domain.Signal{
		Direction:  winner,
		Strength:   clamp(strengthSum/float64(n), -1, 1),
		Confidence: minConf,
		Source:     "aggregate:voting",
	}
}

func mergeMax(signals []domain.Signal) domain.Signal {
	best := signals[0]
	for _, s := range signals[1:] {
		if s.Confidence > best.Confidence ||
			(s.Confidence == best.Confidence && math.Abs(s.Strength) > math.Abs(best.Strength)) {
			best = s
		}
	}
	out := best
	out.Source = "aggregate:max"
	return out
}

// signedStrength folds direction into the strength sign so that sell
// contributes negatively regardless of how the strategy signed it.
func signedStrength(s domain.Signal) float64 {
	switch s.Direction {
	case domain.DirectionBuy:
		return math.Abs(s.Strength)
	case domain.DirectionSell:
		return -math.Abs(s.Strength)
	default:
		return 0
	}
}

func directionOf(strength float64) domain.Direction {
	switch {
	case strength > 0:
		return domain.DirectionBuy
	case strength < 0:
		return domain.DirectionSell
	default:
		return domain.DirectionHold
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
