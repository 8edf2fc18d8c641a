package risk

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"hkquant/internal/config"
	"hkquant/internal/domain"
)

// Calculator produces portfolio risk reports. Degenerate inputs (empty
// return series, zero variance, empty portfolios) yield zero-valued
// sentinels rather than NaN or errors, so downstream JSON consumers never
// see non-finite numbers.
type Calculator struct {
	cfg config.RiskConfig
	log *slog.Logger
}

func NewCalculator(cfg config.RiskConfig, log *slog.Logger) *Calculator {
	if cfg.VaRConfidence == 0 {
		cfg.VaRConfidence = 0.95
	}
	if cfg.MaxPositionPct == 0 {
		cfg.MaxPositionPct = 0.25
	}
	return &Calculator{cfg: cfg, log: log}
}

// HistoricalVaR returns the loss threshold not exceeded with the given
// confidence, as a (typically negative) period return. Empty series yields 0.
func (c *Calculator) HistoricalVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 || confidence <= 0 || confidence >= 1 {
		return 0
	}
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)
	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// CVaR returns the mean return of the tail at or below the VaR threshold.
func (c *Calculator) CVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 || confidence <= 0 || confidence >= 1 {
		return 0
	}
	threshold := c.HistoricalVaR(returns, confidence)
	var sum float64
	var n int
	for _, r := range returns {
		if r <= threshold {
			sum += r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ParametricVaR assumes normally distributed returns.
func (c *Calculator) ParametricVaR(returns []float64, confidence float64) float64 {
	if len(returns) < 2 || confidence <= 0 || confidence >= 1 {
		return 0
	}
	mean := meanOf(returns)
	std := stddevOf(returns, mean)
	if std == 0 {
		return 0
	}
	return mean - zScore(confidence)*std
}

// zScore approximates the standard normal quantile for the common
// confidence levels; intermediate values are linearly interpolated.
func zScore(confidence float64) float64 {
	anchors := []struct{ c, z float64 }{
		{0.90, 1.2816}, {0.95, 1.6449}, {0.975, 1.9600}, {0.99, 2.3263}, {0.995, 2.5758},
	}
	if confidence <= anchors[0].c {
		return anchors[0].z
	}
	for i := 1; i < len(anchors); i++ {
		if confidence <= anchors[i].c {
			lo, hi := anchors[i-1], anchors[i]
			frac := (confidence - lo.c) / (hi.c - lo.c)
			return lo.z + frac*(hi.z-lo.z)
		}
	}
	return anchors[len(anchors)-1].z
}

// Concentration computes the Herfindahl index over position weights:
// 1/n for an equal-weight portfolio of n names, 1 for a single position.
func (c *Calculator) Concentration(positions []domain.Position) float64 {
	total := grossValue(positions)
	if total == 0 {
		return 0
	}
	var h float64
	for _, p := range positions {
		w := math.Abs(p.MarketValue()) / total
		h += w * w
	}
	return h
}

// Beta regresses portfolio returns against market returns.
func (c *Calculator) Beta(portfolio, market []float64) float64 {
	if len(portfolio) != len(market) || len(portfolio) < 2 {
		return 0
	}
	mv := varianceOf(market)
	if mv == 0 {
		return 0
	}
	return covariance(portfolio, market) / mv
}

// Correlation is the Pearson coefficient between two return series; zero
// variance on either side yields the 0 sentinel.
func (c *Calculator) Correlation(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}
	va, vb := varianceOf(a), varianceOf(b)
	if va == 0 || vb == 0 {
		return 0
	}
	return covariance(a, b) / math.Sqrt(va*vb)
}

// HedgeRatio is the minimum-variance ratio of hedge notional to portfolio
// notional: cov(portfolio, hedge) / var(hedge).
func (c *Calculator) HedgeRatio(portfolio, hedge []float64) float64 {
	if len(portfolio) != len(hedge) || len(portfolio) < 2 {
		return 0
	}
	hv := varianceOf(hedge)
	if hv == 0 {
		return 0
	}
	return covariance(portfolio, hedge) / hv
}

// HedgeNotional returns the signed notional of the hedge instrument that
// zeroes net beta exposure: holding h of the hedge against positionSize of
// the instrument leaves positionSize*instrumentBeta + h*hedgeBeta = 0.
// A zero-beta hedge instrument cannot offset anything and yields 0.
func (c *Calculator) HedgeNotional(positionSize, instrumentBeta, hedgeBeta float64) float64 {
	if hedgeBeta == 0 {
		return 0
	}
	return -positionSize * instrumentBeta / hedgeBeta
}

// PortfolioReturns combines per-symbol return series into one portfolio
// return series using signed position weights (shorts contribute
// negatively). It returns nil unless every position has an aligned series in
// bySymbol; a nil result tells the aggregation methods to fall back to the
// independence assumption.
func (c *Calculator) PortfolioReturns(positions []domain.Position, bySymbol map[string][]float64) []float64 {
	total := grossValue(positions)
	if total == 0 || len(bySymbol) == 0 {
		return nil
	}
	n := -1
	for _, p := range positions {
		series, ok := bySymbol[p.Symbol]
		if !ok || len(series) == 0 {
			return nil
		}
		if n == -1 {
			n = len(series)
		} else if len(series) != n {
			return nil
		}
	}
	out := make([]float64, n)
	for _, p := range positions {
		w := signedValue(&p) / total
		for i, r := range bySymbol[p.Symbol] {
			out[i] += w * r
		}
	}
	return out
}

// PortfolioVaR aggregates value-at-risk across the position set as a
// portfolio-level period return. When every position has an aligned series
// the combined series carries the empirical correlation between names; when
// coverage is partial, positions are treated as independent and the weighted
// per-position VaRs combine as a root sum of squares.
func (c *Calculator) PortfolioVaR(positions []domain.Position, bySymbol map[string][]float64, confidence float64) float64 {
	if combined := c.PortfolioReturns(positions, bySymbol); combined != nil {
		return c.HistoricalVaR(combined, confidence)
	}
	return c.independentTail(positions, bySymbol, confidence, c.HistoricalVaR)
}

// PortfolioCVaR is the tail-expectation counterpart of PortfolioVaR, with
// the same correlation-aware / independence fallback behavior.
func (c *Calculator) PortfolioCVaR(positions []domain.Position, bySymbol map[string][]float64, confidence float64) float64 {
	if combined := c.PortfolioReturns(positions, bySymbol); combined != nil {
		return c.CVaR(combined, confidence)
	}
	return c.independentTail(positions, bySymbol, confidence, c.CVaR)
}

func (c *Calculator) independentTail(positions []domain.Position, bySymbol map[string][]float64, confidence float64, tail func([]float64, float64) float64) float64 {
	total := grossValue(positions)
	if total == 0 {
		return 0
	}
	var ss float64
	for _, p := range positions {
		w := math.Abs(p.MarketValue()) / total
		v := w * tail(bySymbol[p.Symbol], confidence)
		ss += v * v
	}
	if ss == 0 {
		return 0
	}
	return -math.Sqrt(ss)
}

// Input carries the return data a report is computed from. Portfolio may be
// supplied precombined; when it is empty the calculator aggregates across
// the position set from BySymbol instead (correlation-aware when every
// position has an aligned series, independent otherwise). Market may be nil
// when no benchmark is available.
type Input struct {
	BySymbol  map[string][]float64
	Portfolio []float64
	Market    []float64
}

// Report assembles the full portfolio risk record.
func (c *Calculator) Report(positions []domain.Position, in Input) domain.PortfolioRisk {
	rets := in.Portfolio
	if len(rets) == 0 {
		rets = c.PortfolioReturns(positions, in.BySymbol)
	}
	r := domain.PortfolioRisk{
		ConcentrationIndex: c.Concentration(positions),
		Alerts:             []string{},
	}
	if len(rets) > 0 {
		r.VaR95 = c.HistoricalVaR(rets, 0.95)
		r.VaR99 = c.HistoricalVaR(rets, 0.99)
		r.CVaR95 = c.CVaR(rets, 0.95)
	} else {
		r.VaR95 = c.PortfolioVaR(positions, in.BySymbol, 0.95)
		r.VaR99 = c.PortfolioVaR(positions, in.BySymbol, 0.99)
		r.CVaR95 = c.PortfolioCVaR(positions, in.BySymbol, 0.95)
	}
	if len(in.Market) > 0 {
		r.PortfolioBeta = c.Beta(rets, in.Market)
		r.CorrelationWithMarket = c.Correlation(rets, in.Market)
	}

	total := grossValue(positions)
	if total > 0 {
		for _, p := range positions {
			pct := math.Abs(p.MarketValue()) / total
			if pct > r.LargestPositionPct {
				r.LargestPositionPct = pct
			}
			if pct > c.cfg.MaxPositionPct {
				r.Alerts = append(r.Alerts,
					fmt.Sprintf("position %s is %.1f%% of portfolio, above the %.1f%% limit",
						p.Symbol, pct*100, c.cfg.MaxPositionPct*100))
			}
		}
	}
	v := c.HistoricalVaR(rets, c.cfg.VaRConfidence)
	if len(rets) == 0 {
		v = c.PortfolioVaR(positions, in.BySymbol, c.cfg.VaRConfidence)
	}
	if v < -0.05 {
		r.Alerts = append(r.Alerts,
			fmt.Sprintf("1-period VaR at %.0f%% confidence is %.1f%%", c.cfg.VaRConfidence*100, v*100))
	}
	if len(r.Alerts) > 0 {
		c.log.Warn("risk alerts raised", "count", len(r.Alerts))
	}
	return r
}

func signedValue(p *domain.Position) float64 {
	v := p.MarketValue()
	if p.Side == domain.SideShort {
		v = -v
	}
	return v
}

func grossValue(positions []domain.Position) float64 {
	var total float64
	for _, p := range positions {
		total += math.Abs(p.MarketValue())
	}
	return total
}

func meanOf(a []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	var sum float64
	for _, v := range a {
		sum += v
	}
	return sum / float64(len(a))
}

func stddevOf(a []float64, mean float64) float64 {
	if len(a) <= 1 {
		return 0
	}
	var ss float64
	for _, v := range a {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(a)-1))
}

func varianceOf(a []float64) float64 {
	sd := stddevOf(a, meanOf(a))
	return sd * sd
}

func covariance(a, b []float64) float64 {
	ma, mb := meanOf(a), meanOf(b)
	var sum float64
	for i := range a {
		sum += (a[i] - ma) * (b[i] - mb)
	}
	return sum / float64(len(a)-1)
}
