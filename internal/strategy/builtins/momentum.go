package builtins

import (
	"context"
	"math"

	"hkquant/internal/domain"
	"hkquant/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Momentum)(nil)

// Momentum signals in the direction of the trailing return when it clears a
// configurable threshold.
type Momentum struct {
	lookback  int
	threshold float64
}

// NewMomentum creates the strategy with the given lookback (bars) and
// minimum absolute trailing return required to signal.
func NewMomentum(lookback int, threshold float64) *Momentum {
	if lookback < 1 {
		lookback = 1
	}
	if threshold < 0 {
		threshold = 0
	}
	return &Momentum{lookback: lookback, threshold: threshold}
}

// Name returns "momentum".
func (s *Momentum) Name() string {
	return "momentum"
}

// Warmup returns the lookback window length.
func (s *Momentum) Warmup() int {
	return s.lookback
}

// OnBar signals in the direction of the trailing lookback return.
func (s *Momentum) OnBar(_ context.Context, bars []domain.Bar, i int) (domain.Signal, error) {
	past := bars[i-s.lookback].Close
	if past == 0 {
		return domain.Signal{Direction: domain.DirectionHold}, nil
	}
	ret := bars[i].Close/past - 1

	sig := domain.Signal{Direction: domain.DirectionHold}
	if math.Abs(ret) < s.threshold {
		return sig, nil
	}
	strength := clamp(ret*10, -1, 1)
	if ret > 0 {
		sig.Direction = domain.DirectionBuy
	} else {
		sig.Direction = domain.DirectionSell
	}
	sig.Strength = strength
	sig.Confidence = clamp(math.Abs(ret)*20, 0.1, 1)
	return sig, nil
}
