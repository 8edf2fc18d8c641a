package backtest

import (
	"context"
	"math"

	"hkquant/internal/domain"
)

// runVectorized computes the same simulation as runEvent organized as batch
// passes over arrays: one pass extracting prices, one pass over the signal
// array deciding position flips, then segment-wise equity fills between
// flips. Trade identification and final metrics are identical to event
// execution for the same inputs; the per-bar decision dispatch is gone,
// which is what makes this mode suitable for parameter sweeps.
func (e *Engine) runVectorized(ctx context.Context, bars []domain.Bar, signals []domain.Signal) (*Result, error) {
	closes := make([]float64, len(bars))
	for i := range bars {
		closes[i] = bars[i].Close
	}

	// Decision pass: position flips depend only on the signal stream, never
	// on equity, so they can be precomputed in one scan.
	type action struct {
		idx int
		sig domain.Signal
	}
	var actions []action
	side := domain.DirectionHold
	for i := range signals {
		s := signals[i]
		if s.Direction == domain.DirectionHold || s.Direction == side {
			continue
		}
		// Mirrors the entry guards of openPosition: a zero weight or a
		// non-positive execution price leaves the book flat.
		weight := math.Min(s.Confidence, e.cfg.MaxPositionWeight)
		px := e.execPrice(bars[i].Close, s.Direction == domain.DirectionBuy)
		if weight > 0 && px > 0 {
			side = s.Direction
		} else {
			side = domain.DirectionHold
		}
		actions = append(actions, action{idx: i, sig: s})
	}

	a := &account{cash: e.cfg.InitialCapital, curve: make([]domain.EquityPoint, 0, len(bars))}
	prev := 0
	for _, act := range actions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fillCurve(a, bars, closes, prev, act.idx)

		bar := bars[act.idx]
		e.closePosition(a, bar)
		e.openPosition(a, bar, act.sig)
		a.curve = append(a.curve, domain.EquityPoint{Timestamp: bar.Timestamp, Value: a.equity(bar.Close)})
		prev = act.idx + 1
	}
	fillCurve(a, bars, closes, prev, len(bars))

	return e.finish(a, bars), nil
}

// fillCurve marks equity for bars [from, to) during which the position is
// constant.
func fillCurve(a *account, bars []domain.Bar, closes []float64, from, to int) {
	for i := from; i < to; i++ {
		a.curve = append(a.curve, domain.EquityPoint{Timestamp: bars[i].Timestamp, Value: a.cash + a.qty*closes[i]})
	}
}
