// Package backtest turns a merged signal stream and a price series into
// simulated trading activity and performance metrics. An Engine holds
// private state for the duration of one run and must not be shared by two
// concurrent callers.
package backtest

import (
	"errors"

	"hkquant/internal/util"
)

// Simulation errors. Both are data errors: they are returned before any bar
// is simulated.
var (
	ErrInsufficientData = errors.New("backtest: insufficient bars for warm-up")
	ErrSignalMismatch   = errors.New("backtest: signal stream does not align with price series")
)

// Mode selects the execution style of a run.
type Mode string

const (
	// ModeVectorized batches the computation over the whole series. Used for
	// parameter sweeps.
	ModeVectorized Mode = "vectorized"

	// ModeEvent simulates sequentially, applying transaction cost and
	// slippage per bar. Used when cost and ordering fidelity matter.
	ModeEvent Mode = "event"

	// ModeReplay is event simulation over a signal stream that the strategy
	// executor has already augmented with alternative-indicator overlays.
	ModeReplay Mode = "replay"
)

// Config parameterizes one backtest run. Cost parameters are never
// hardcoded in the engine.
type Config struct {
	Mode           Mode    `json:"mode"`
	InitialCapital float64 `json:"initial_capital"`

	// CommissionPct is charged as a fraction of trade notional on both entry
	// and exit.
	CommissionPct float64 `json:"commission_pct"`

	// Slippage is an absolute price offset applied at execution: fills buy
	// higher and sell lower by this amount.
	Slippage float64 `json:"slippage"`

	// RiskFreeRate is the annual rate used by Sharpe and Sortino.
	RiskFreeRate float64 `json:"risk_free_rate"`

	// PeriodsPerYear is the annualization constant. Defaults to the HKEX
	// daily-bar constant.
	PeriodsPerYear float64 `json:"periods_per_year"`

	// MaxPositionWeight bounds confidence-weighted position sizing. The
	// sizing weight is min(signal confidence, MaxPositionWeight), so the
	// normalization range defaults to [0, 1].
	MaxPositionWeight float64 `json:"max_position_weight"`

	// Warmup is the number of leading bars required before simulation may
	// start. Runs with fewer bars fail with ErrInsufficientData.
	Warmup int `json:"warmup"`
}

func (c Config) withDefaults() Config {
	q := c
	if q.Mode == "" {
		q.Mode = ModeEvent
	}
	if q.InitialCapital == 0 {
		q.InitialCapital = 1_000_000
	}
	if q.PeriodsPerYear == 0 {
		q.PeriodsPerYear = util.TradingPeriodsPerYear
	}
	if q.MaxPositionWeight == 0 {
		q.MaxPositionWeight = 1.0
	}
	return q
}
