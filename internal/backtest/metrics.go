package backtest

import (
	"math"

	"hkquant/internal/domain"
)

// Metrics are the summary statistics derived from one run's equity curve and
// trade list. Degenerate inputs (flat curves, no trades) produce defined
// zero sentinels rather than NaN.
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
	TotalTrades      int     `json:"total_trades"`
}

// profitFactorCap is reported when a run has winning trades and no losing
// trades, keeping the result JSON-serializable instead of +Inf.
const profitFactorCap = 1000.0

func computeMetrics(curve []domain.EquityPoint, trades []domain.Trade, cfg Config) Metrics {
	m := Metrics{TotalTrades: len(trades)}
	if len(curve) < 2 || cfg.InitialCapital == 0 {
		return m
	}

	final := curve[len(curve)-1].Value
	m.TotalReturn = final/cfg.InitialCapital - 1

	periods := float64(len(curve) - 1)
	years := periods / cfg.PeriodsPerYear
	if years > 0 && final > 0 {
		m.AnnualizedReturn = math.Pow(final/cfg.InitialCapital, 1/years) - 1
	}

	returns := periodReturns(curve)
	mean := meanOf(returns)
	std := stddev(returns, mean)
	m.Volatility = std * math.Sqrt(cfg.PeriodsPerYear)

	// Zero variance yields the 0 sentinel for both ratios.
	rfPerPeriod := cfg.RiskFreeRate / cfg.PeriodsPerYear
	if std > 0 {
		m.SharpeRatio = (mean - rfPerPeriod) / std * math.Sqrt(cfg.PeriodsPerYear)
	}
	if dd := downsideDev(returns, rfPerPeriod); dd > 0 {
		m.SortinoRatio = (mean - rfPerPeriod) / dd * math.Sqrt(cfg.PeriodsPerYear)
	}

	m.MaxDrawdown = maxDrawdown(curve)

	wins := 0
	var grossProfit, grossLoss float64
	for i := range trades {
		pnl := trades[i].RealizedPnL
		if pnl > 0 {
			wins++
			grossProfit += pnl
		} else {
			grossLoss -= pnl
		}
	}
	if len(trades) > 0 {
		m.WinRate = float64(wins) / float64(len(trades))
		switch {
		case grossLoss > 0:
			m.ProfitFactor = grossProfit / grossLoss
		case grossProfit > 0:
			m.ProfitFactor = profitFactorCap
		}
	}
	return m
}

// periodReturns derives simple per-period returns from the equity curve.
func periodReturns(curve []domain.EquityPoint) []float64 {
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Value
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, curve[i].Value/prev-1)
	}
	return out
}

// maxDrawdown is the maximum peak-to-trough decline of the equity curve,
// expressed as a positive fraction.
func maxDrawdown(curve []domain.EquityPoint) float64 {
	peak := curve[0].Value
	var maxDD float64
	for _, p := range curve[1:] {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			if dd := (peak - p.Value) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func meanOf(a []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	var s float64
	for _, x := range a {
		s += x
	}
	return s / float64(len(a))
}

func stddev(a []float64, mean float64) float64 {
	if len(a) <= 1 {
		return 0
	}
	var s float64
	for _, x := range a {
		d := x - mean
		s += d * d
	}
	return math.Sqrt(s / float64(len(a)-1))
}

// downsideDev measures deviation of returns below the target rate, the
// denominator of the Sortino ratio.
func downsideDev(a []float64, target float64) float64 {
	if len(a) <= 1 {
		return 0
	}
	var s float64
	for _, x := range a {
		if x < target {
			d := x - target
			s += d * d
		}
	}
	return math.Sqrt(s / float64(len(a)-1))
}
