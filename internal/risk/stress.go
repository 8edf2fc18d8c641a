package risk

import (
	"sort"

	"hkquant/internal/domain"
)

// Scenario is a named market shock: per-symbol price moves as fractional
// returns, with DefaultShock applied to symbols the map does not name.
type Scenario struct {
	Name         string             `json:"name" yaml:"name"`
	Shocks       map[string]float64 `json:"shocks" yaml:"shocks"`
	DefaultShock float64            `json:"default_shock" yaml:"default_shock"`
}

// StressResult is the portfolio impact of one scenario.
type StressResult struct {
	Scenario  string             `json:"scenario"`
	PnL       float64            `json:"pnl"`
	PnLPct    float64            `json:"pnl_pct"`
	PerSymbol map[string]float64 `json:"per_symbol"`
}

// BuiltinScenarios covers the shocks used for routine HK portfolio reviews.
func BuiltinScenarios() []Scenario {
	return []Scenario{
		{Name: "market_crash", DefaultShock: -0.20},
		{Name: "correction", DefaultShock: -0.10},
		{Name: "tech_selloff", DefaultShock: -0.05, Shocks: map[string]float64{
			"0700.HK": -0.25, "9988.HK": -0.25, "3690.HK": -0.30, "9618.HK": -0.25,
		}},
		{Name: "property_stress", DefaultShock: -0.03, Shocks: map[string]float64{
			"0016.HK": -0.20, "0012.HK": -0.20, "1109.HK": -0.25, "0688.HK": -0.22,
		}},
		{Name: "rate_hike", DefaultShock: -0.06, Shocks: map[string]float64{
			"0005.HK": 0.04, "2388.HK": 0.03, "0011.HK": 0.03,
		}},
	}
}

// StressTest revalues the portfolio under each scenario. A short position
// gains when its symbol is shocked downward.
func (c *Calculator) StressTest(positions []domain.Position, scenarios []Scenario) []StressResult {
	out := make([]StressResult, 0, len(scenarios))
	total := grossValue(positions)
	for _, sc := range scenarios {
		res := StressResult{Scenario: sc.Name, PerSymbol: make(map[string]float64, len(positions))}
		for _, p := range positions {
			shock, ok := sc.Shocks[p.Symbol]
			if !ok {
				shock = sc.DefaultShock
			}
			pnl := p.Quantity * p.CurrentPrice * shock
			if p.Side == domain.SideShort {
				pnl = -pnl
			}
			res.PerSymbol[p.Symbol] += pnl
			res.PnL += pnl
		}
		if total > 0 {
			res.PnLPct = res.PnL / total
		}
		out = append(out, res)
	}
	// Worst scenario first.
	sort.Slice(out, func(i, j int) bool {
		if out[i].PnL != out[j].PnL {
			return out[i].PnL < out[j].PnL
		}
		return out[i].Scenario < out[j].Scenario
	})
	return out
}

// WorstCase returns the most damaging scenario result, or false for an
// empty scenario list.
func (c *Calculator) WorstCase(positions []domain.Position, scenarios []Scenario) (StressResult, bool) {
	results := c.StressTest(positions, scenarios)
	if len(results) == 0 {
		return StressResult{}, false
	}
	return results[0], true
}
