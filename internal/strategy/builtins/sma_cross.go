// Package builtins provides built-in strategy implementations that ship with
// the hkquant platform. Each exposes its parameters as a bounded space so the
// optimizer can sweep them.
package builtins

import (
	"context"
	"math"

	"hkquant/internal/domain"
	"hkquant/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It generates
// a buy signal when the short-period SMA crosses above the long-period SMA,
// and a sell signal when it crosses below.
type SMACross struct {
	shortPeriod int
	longPeriod  int
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods.
func NewSMACross(short, long int) *SMACross {
	if short < 1 {
		short = 1
	}
	if long <= short {
		long = short + 1
	}
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Warmup returns the long period plus one bar for crossover detection.
func (s *SMACross) Warmup() int {
	return s.longPeriod + 1
}

// OnBar detects a crossover between the short and long SMAs at bars[i].
func (s *SMACross) OnBar(_ context.Context, bars []domain.Bar, i int) (domain.Signal, error) {
	shortNow := sma(bars, i, s.shortPeriod)
	longNow := sma(bars, i, s.longPeriod)
	shortPrev := sma(bars, i-1, s.shortPeriod)
	longPrev := sma(bars, i-1, s.longPeriod)

	sig := domain.Signal{Direction: domain.DirectionHold}
	crossedUp := shortPrev <= longPrev && shortNow > longNow
	crossedDown := shortPrev >= longPrev && shortNow < longNow
	if !crossedUp && !crossedDown {
		return sig, nil
	}

	// Separation of the averages relative to price measures conviction.
	sep := math.Abs(shortNow-longNow) / bars[i].Close
	strength := clamp(sep*50, 0.1, 1)
	if crossedUp {
		sig.Direction = domain.DirectionBuy
		sig.Strength = strength
	} else {
		sig.Direction = domain.DirectionSell
		sig.Strength = -strength
	}
	sig.Confidence = clamp(0.5+sep*25, 0, 1)
	return sig, nil
}

// sma computes the simple moving average of closes over the period ending at
// index i inclusive.
func sma(bars []domain.Bar, i, period int) float64 {
	if i+1 < period {
		return 0
	}
	var sum float64
	for j := i - period + 1; j <= i; j++ {
		sum += bars[j].Close
	}
	return sum / float64(period)
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
