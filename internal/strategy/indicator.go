package strategy

import (
	"context"

	"hkquant/internal/domain"
)

// Compile-time interface check.
var _ Strategy = (*IndicatorOverlay)(nil)

// IndicatorOverlay adapts a named alternative-indicator series (retail sales,
// visitor arrivals, export volumes, ...) into the Strategy contract so the
// executor can merge it into the signal stream for replay-augmented
// backtests. It signals on the indicator's deviation from its trailing mean.
type IndicatorOverlay struct {
	series   domain.IndicatorSeries
	lookback int
}

// NewIndicatorOverlay wraps the indicator series with the given trailing-mean
// lookback (in bars).
func NewIndicatorOverlay(series domain.IndicatorSeries, lookback int) *IndicatorOverlay {
	if lookback < 2 {
		lookback = 2
	}
	return &IndicatorOverlay{series: series, lookback: lookback}
}

// Name returns "indicator:<series name>".
func (o *IndicatorOverlay) Name() string {
	return "indicator:" + o.series.Name
}

// Warmup returns the lookback window length.
func (o *IndicatorOverlay) Warmup() int {
	return o.lookback
}

// OnBar compares the indicator value aligned to bars[i] against its trailing
// mean over the lookback window. Missing observations yield hold.
func (o *IndicatorOverlay) OnBar(_ context.Context, bars []domain.Bar, i int) (domain.Signal, error) {
	hold := domain.Signal{Direction: domain.DirectionHold}

	current, ok := o.series.At(bars[i].Timestamp)
	if !ok {
		return hold, nil
	}

	var sum float64
	var n int
	for j := i - o.lookback; j < i; j++ {
		if j < 0 {
			continue
		}
		if v, ok := o.series.At(bars[j].Timestamp); ok {
			sum += v
			n++
		}
	}
	if n < 2 {
		return hold, nil
	}
	mean := sum / float64(n)
	if mean == 0 {
		return hold, nil
	}

	dev := (current - mean) / mean
	dir := domain.DirectionHold
	switch {
	case dev > 0:
		dir = domain.DirectionBuy
	case dev < 0:
		dir = domain.DirectionSell
	}
	strength := clamp(dev*10, -1, 1)
	confidence := clamp(float64(n)/float64(o.lookback), 0, 1) * 0.5

	return domain.Signal{Direction: dir, Strength: strength, Confidence: confidence}, nil
}
