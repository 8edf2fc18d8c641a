// Package domain defines the core data types shared across the hkquant
// platform: price bars, trading signals, trades, positions, and the
// JSON-serializable result records exposed to external consumers.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Market identifies a trading venue.
type Market string

const (
	// MarketHK is the Hong Kong stock exchange.
	MarketHK Market = "hk"
)

// Bar is a single OHLCV observation. Bars are immutable once ingested and
// are ordered ascending by timestamp with no duplicate timestamps per symbol.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	Turnover  float64   `json:"turnover"`
}

// Series validation errors. These are data errors: they are returned before
// any computation starts, never mid-run.
var (
	ErrEmptySeries        = errors.New("domain: empty price series")
	ErrUnorderedSeries    = errors.New("domain: price series not ascending by timestamp")
	ErrDuplicateTimestamp = errors.New("domain: duplicate timestamp in price series")
)

// ValidateSeries checks the bar-series invariants: non-empty, strictly
// ascending timestamps, no duplicates.
func ValidateSeries(bars []Bar) error {
	if len(bars) == 0 {
		return ErrEmptySeries
	}
	for i := 1; i < len(bars); i++ {
		switch {
		case bars[i].Timestamp.Equal(bars[i-1].Timestamp):
			return fmt.Errorf("%w: %s at index %d", ErrDuplicateTimestamp, bars[i].Timestamp.Format(time.RFC3339), i)
		case bars[i].Timestamp.Before(bars[i-1].Timestamp):
			return fmt.Errorf("%w: index %d", ErrUnorderedSeries, i)
		}
	}
	return nil
}

// Direction is the decision carried by a Signal.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
	DirectionHold Direction = "hold"
)

// Signal is an atomic trading-decision event produced by a strategy or by
// aggregating several strategies' outputs. Signals are never mutated after
// creation.
type Signal struct {
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Strength   float64   `json:"strength"`   // [-1, 1]
	Confidence float64   `json:"confidence"` // [0, 1]
	Source     string    `json:"source"`
}

// PositionSide distinguishes long from short exposure.
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// Trade is one round trip (entry to exit) produced by the backtest engine.
// Open trades carry a nil ExitTime; once closed, EntryTime precedes ExitTime
// and the record is immutable.
type Trade struct {
	Symbol      string       `json:"symbol"`
	Side        PositionSide `json:"side"`
	EntryTime   time.Time    `json:"entry_time"`
	ExitTime    *time.Time   `json:"exit_time"`
	EntryPrice  float64      `json:"entry_price"`
	ExitPrice   float64      `json:"exit_price"`
	Quantity    float64      `json:"quantity"`
	RealizedPnL float64      `json:"realized_pnl"`
	Cost        float64      `json:"cost"`
}

// Closed reports whether the trade has been exited.
func (t *Trade) Closed() bool {
	return t.ExitTime != nil
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Position is a live holding. Market value and unrealized PnL are derived
// from current vs. entry price and never stored, so they cannot go stale.
type Position struct {
	Symbol       string       `json:"symbol"`
	Quantity     float64      `json:"quantity"`
	EntryPrice   float64      `json:"entry_price"`
	CurrentPrice float64      `json:"current_price"`
	Side         PositionSide `json:"side"`
}

// MarketValue returns the absolute notional of the position at the current
// price.
func (p *Position) MarketValue() float64 {
	return p.Quantity * p.CurrentPrice
}

// UnrealizedPnL returns the profit or loss of the position were it closed at
// the current price.
func (p *Position) UnrealizedPnL() float64 {
	diff := p.CurrentPrice - p.EntryPrice
	if p.Side == SideShort {
		diff = -diff
	}
	return diff * p.Quantity
}

// UnrealizedPnLPct returns the unrealized PnL as a fraction of the entry
// notional. Returns 0 for a zero entry notional.
func (p *Position) UnrealizedPnLPct() float64 {
	notional := p.Quantity * p.EntryPrice
	if notional == 0 {
		return 0
	}
	return p.UnrealizedPnL() / notional
}

// PortfolioRisk is the JSON-serializable risk report computed fresh from a
// position set on every call.
type PortfolioRisk struct {
	VaR95                 float64  `json:"var_95"`
	VaR99                 float64  `json:"var_99"`
	CVaR95                float64  `json:"cvar_95"`
	ConcentrationIndex    float64  `json:"concentration_index"`
	LargestPositionPct    float64  `json:"largest_position_pct"`
	PortfolioBeta         float64  `json:"portfolio_beta"`
	CorrelationWithMarket float64  `json:"correlation_with_market"`
	Alerts                []string `json:"alerts"`
}

// IndicatorPoint is one observation of a named alternative-indicator series
// aligned to the bar timestamp grid.
type IndicatorPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// IndicatorSeries is a named alternative economic indicator aligned to the
// price-bar timestamp grid of a symbol.
type IndicatorSeries struct {
	Name   string           `json:"name"`
	Points []IndicatorPoint `json:"points"`
}

// At returns the indicator value at the exact timestamp ts. The second
// return value reports whether an aligned observation exists.
func (s *IndicatorSeries) At(ts time.Time) (float64, bool) {
	for i := range s.Points {
		if s.Points[i].Timestamp.Equal(ts) {
			return s.Points[i].Value, true
		}
	}
	return 0, false
}
