package builtins

import (
	"context"

	"hkquant/internal/domain"
	"hkquant/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*RSIReversion)(nil)

// RSIReversion is a mean-reversion strategy on the relative strength index:
// buy when RSI drops below the oversold threshold, sell when it rises above
// the overbought threshold.
type RSIReversion struct {
	period     int
	oversold   float64
	overbought float64
}

// NewRSIReversion creates the strategy with the given RSI period and
// oversold/overbought thresholds (conventionally 30 and 70).
func NewRSIReversion(period int, oversold, overbought float64) *RSIReversion {
	if period < 2 {
		period = 2
	}
	if oversold <= 0 {
		oversold = 30
	}
	if overbought <= oversold {
		overbought = 70
	}
	return &RSIReversion{period: period, oversold: oversold, overbought: overbought}
}

// Name returns "rsi-reversion".
func (s *RSIReversion) Name() string {
	return "rsi-reversion"
}

// Warmup returns the RSI period plus one bar for the first price change.
func (s *RSIReversion) Warmup() int {
	return s.period + 1
}

// OnBar computes Wilder's RSI over the trailing window and signals on
// threshold breaches.
func (s *RSIReversion) OnBar(_ context.Context, bars []domain.Bar, i int) (domain.Signal, error) {
	rsi := rsiAt(bars, i, s.period)

	sig := domain.Signal{Direction: domain.DirectionHold}
	switch {
	case rsi <= s.oversold:
		depth := (s.oversold - rsi) / s.oversold
		sig.Direction = domain.DirectionBuy
		sig.Strength = clamp(0.3+depth, 0, 1)
		sig.Confidence = clamp(0.5+depth, 0, 1)
	case rsi >= s.overbought:
		depth := (rsi - s.overbought) / (100 - s.overbought)
		sig.Direction = domain.DirectionSell
		sig.Strength = -clamp(0.3+depth, 0, 1)
		sig.Confidence = clamp(0.5+depth, 0, 1)
	}
	return sig, nil
}

// rsiAt computes the RSI of closes over the period ending at index i.
func rsiAt(bars []domain.Bar, i, period int) float64 {
	if i < period {
		return 50
	}
	var gains, losses float64
	for j := i - period + 1; j <= i; j++ {
		change := bars[j].Close - bars[j-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	if losses == 0 {
		if gains == 0 {
			return 50
		}
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}
