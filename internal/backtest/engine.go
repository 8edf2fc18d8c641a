package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"hkquant/internal/domain"
)

// Result is the record produced by one run. It is owned by the run that
// produced it and read-only to downstream consumers.
type Result struct {
	Config      Config               `json:"config"`
	EquityCurve []domain.EquityPoint `json:"equity_curve"`
	Trades      []domain.Trade       `json:"trades"`
	Metrics     Metrics              `json:"metrics"`
}

// Engine simulates order execution, position accounting, and transaction
// costs for one (signal stream, price series) pair. Engines are single-use
// per run and hold no state across runs.
type Engine struct {
	cfg Config
	log *slog.Logger
}

// NewEngine creates an Engine with the given configuration.
func NewEngine(cfg Config, log *slog.Logger) *Engine {
	return &Engine{cfg: cfg.withDefaults(), log: log}
}

// Run executes the configured mode over the aligned (bars, signals) pair.
// Input problems are reported before simulation starts; a context
// cancellation unwinds between bars and returns ctx.Err().
func (e *Engine) Run(ctx context.Context, bars []domain.Bar, signals []domain.Signal) (*Result, error) {
	if err := domain.ValidateSeries(bars); err != nil {
		return nil, err
	}
	if len(bars) <= e.cfg.Warmup {
		return nil, fmt.Errorf("%w: have %d bars, warm-up requires more than %d", ErrInsufficientData, len(bars), e.cfg.Warmup)
	}
	if len(signals) != len(bars) {
		return nil, fmt.Errorf("%w: %d signals for %d bars", ErrSignalMismatch, len(signals), len(bars))
	}
	for i := range signals {
		if !signals[i].Timestamp.Equal(bars[i].Timestamp) {
			return nil, fmt.Errorf("%w: timestamp mismatch at index %d", ErrSignalMismatch, i)
		}
	}

	switch e.cfg.Mode {
	case ModeVectorized:
		return e.runVectorized(ctx, bars, signals)
	case ModeEvent, ModeReplay:
		return e.runEvent(ctx, bars, signals)
	default:
		return nil, fmt.Errorf("backtest: unknown mode %q", e.cfg.Mode)
	}
}

// account is the mutable simulation state shared by both execution paths.
// The position side state machine is FLAT -> LONG -> FLAT -> SHORT -> ...,
// transitioning on each non-hold signal that differs from the current side.
type account struct {
	cash    float64
	qty     float64 // signed: >0 long, <0 short, 0 flat
	entryPx float64
	curve   []domain.EquityPoint
	trades  []domain.Trade
	open    *domain.Trade
}

func (a *account) equity(price float64) float64 {
	return a.cash + a.qty*price
}

// execPrice applies slippage as a price offset: buys fill higher, sells
// fill lower.
func (e *Engine) execPrice(price float64, buying bool) float64 {
	if buying {
		return price + e.cfg.Slippage
	}
	return price - e.cfg.Slippage
}

// closePosition exits the open position at the bar's close and records the
// completed trade.
func (e *Engine) closePosition(a *account, bar domain.Bar) {
	if a.qty == 0 {
		return
	}
	// Closing a long sells; closing a short buys.
	px := e.execPrice(bar.Close, a.qty < 0)
	notional := math.Abs(a.qty) * px
	commission := notional * e.cfg.CommissionPct

	a.cash += a.qty * px
	a.cash -= commission

	exit := bar.Timestamp
	tr := *a.open
	tr.ExitTime = &exit
	tr.ExitPrice = px
	tr.Cost += commission
	tr.RealizedPnL = a.qty*(px-a.entryPx) - tr.Cost
	a.trades = append(a.trades, tr)

	a.qty = 0
	a.entryPx = 0
	a.open = nil
}

// openPosition enters a new position sized by signal confidence against
// current equity.
func (e *Engine) openPosition(a *account, bar domain.Bar, sig domain.Signal) {
	weight := math.Min(sig.Confidence, e.cfg.MaxPositionWeight)
	if weight <= 0 {
		return
	}
	buying := sig.Direction == domain.DirectionBuy
	px := e.execPrice(bar.Close, buying)
	if px <= 0 {
		return
	}

	equity := a.equity(bar.Close)
	qty := weight * equity / px
	if !buying {
		qty = -qty
	}
	notional := math.Abs(qty) * px
	commission := notional * e.cfg.CommissionPct

	a.cash -= qty * px
	a.cash -= commission
	a.qty = qty
	a.entryPx = px

	side := domain.SideLong
	if !buying {
		side = domain.SideShort
	}
	a.open = &domain.Trade{
		Symbol:     bar.Symbol,
		Side:       side,
		EntryTime:  bar.Timestamp,
		EntryPrice: px,
		Quantity:   math.Abs(qty),
		Cost:       commission,
	}
}

// step applies one bar's signal to the account: a non-hold signal whose
// direction differs from the current side closes the position and, when
// sized above zero, opens the opposite one.
func (e *Engine) step(a *account, bar domain.Bar, sig domain.Signal) {
	if sig.Direction != domain.DirectionHold && sig.Direction != currentSide(a.qty) {
		e.closePosition(a, bar)
		e.openPosition(a, bar, sig)
	}
	a.curve = append(a.curve, domain.EquityPoint{Timestamp: bar.Timestamp, Value: a.equity(bar.Close)})
}

// currentSide maps the signed quantity to the signal direction that would
// keep it unchanged.
func currentSide(qty float64) domain.Direction {
	switch {
	case qty > 0:
		return domain.DirectionBuy
	case qty < 0:
		return domain.DirectionSell
	default:
		return domain.DirectionHold
	}
}

// finish auto-closes whatever side is open at the final bar and assembles
// the result.
func (e *Engine) finish(a *account, bars []domain.Bar) *Result {
	if a.qty != 0 {
		last := bars[len(bars)-1]
		e.closePosition(a, last)
		a.curve[len(a.curve)-1].Value = a.equity(last.Close)
	}
	res := &Result{
		Config:      e.cfg,
		EquityCurve: a.curve,
		Trades:      a.trades,
	}
	res.Metrics = computeMetrics(a.curve, a.trades, e.cfg)
	return res
}

// runEvent is the sequential simulation: one decision, one cost application,
// and one cancellation check per bar.
func (e *Engine) runEvent(ctx context.Context, bars []domain.Bar, signals []domain.Signal) (*Result, error) {
	a := &account{cash: e.cfg.InitialCapital, curve: make([]domain.EquityPoint, 0, len(bars))}
	for i := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.step(a, bars[i], signals[i])
	}
	return e.finish(a, bars), nil
}
