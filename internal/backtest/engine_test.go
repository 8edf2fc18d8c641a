package backtest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"hkquant/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seriesOf builds a daily bar series from close prices.
func seriesOf(closes []float64) []domain.Bar {
	base := time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    "0700.HK",
			Timestamp: base.AddDate(0, 0, i),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    10_000,
		}
	}
	return bars
}

// signalsFor pairs each bar with a directive; strength/confidence fixed.
func signalsFor(bars []domain.Bar, dirs []domain.Direction) []domain.Signal {
	sigs := make([]domain.Signal, len(bars))
	for i := range bars {
		dir := domain.DirectionHold
		if i < len(dirs) {
			dir = dirs[i]
		}
		strength := 0.0
		switch dir {
		case domain.DirectionBuy:
			strength = 1
		case domain.DirectionSell:
			strength = -1
		}
		sigs[i] = domain.Signal{
			Timestamp:  bars[i].Timestamp,
			Symbol:     bars[i].Symbol,
			Direction:  dir,
			Strength:   strength,
			Confidence: 1,
			Source:     "test",
		}
	}
	return sigs
}

func TestRunRejectsShortSeries(t *testing.T) {
	e := NewEngine(Config{Warmup: 10}, testLogger())
	bars := seriesOf([]float64{100, 101, 102})
	_, err := e.Run(context.Background(), bars, signalsFor(bars, nil))
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
}

func TestRunRejectsMisalignedSignals(t *testing.T) {
	e := NewEngine(Config{}, testLogger())
	bars := seriesOf([]float64{100, 101, 102})
	_, err := e.Run(context.Background(), bars, signalsFor(bars[:2], nil))
	if !errors.Is(err, ErrSignalMismatch) {
		t.Fatalf("err = %v, want ErrSignalMismatch", err)
	}
}

func TestLongRoundTrip(t *testing.T) {
	closes := []float64{100, 100, 110, 110, 121}
	bars := seriesOf(closes)
	dirs := []domain.Direction{domain.DirectionBuy, domain.DirectionHold, domain.DirectionHold, domain.DirectionSell, domain.DirectionHold}
	e := NewEngine(Config{InitialCapital: 1000}, testLogger())

	res, err := e.Run(context.Background(), bars, signalsFor(bars, dirs))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// Buy at 100, flip to short at 110 (closing the long), short auto-closed
	// at 121: two trades.
	if len(res.Trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(res.Trades))
	}
	long := res.Trades[0]
	if long.Side != domain.SideLong || !long.Closed() {
		t.Fatalf("first trade = %+v, want closed long", long)
	}
	if long.RealizedPnL <= 0 {
		t.Errorf("long from 100 to 110 should profit, got %v", long.RealizedPnL)
	}
	short := res.Trades[1]
	if short.Side != domain.SideShort {
		t.Fatalf("second trade side = %s, want short", short.Side)
	}
	if short.RealizedPnL >= 0 {
		t.Errorf("short from 110 to 121 should lose, got %v", short.RealizedPnL)
	}
	if len(res.EquityCurve) != len(bars) {
		t.Errorf("equity curve has %d points, want %d", len(res.EquityCurve), len(bars))
	}
}

func TestTradesAreChronologicalAndNonOverlapping(t *testing.T) {
	closes := []float64{100, 102, 99, 104, 101, 107, 103, 110, 106, 112}
	bars := seriesOf(closes)
	dirs := []domain.Direction{
		domain.DirectionBuy, domain.DirectionSell, domain.DirectionBuy, domain.DirectionSell,
		domain.DirectionBuy, domain.DirectionSell, domain.DirectionBuy, domain.DirectionSell,
		domain.DirectionBuy, domain.DirectionHold,
	}
	e := NewEngine(Config{InitialCapital: 1000}, testLogger())
	res, err := e.Run(context.Background(), bars, signalsFor(bars, dirs))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(res.Trades) == 0 {
		t.Fatal("expected trades from alternating signals")
	}
	for i, tr := range res.Trades {
		if !tr.Closed() {
			t.Fatalf("trade %d not closed at end of run", i)
		}
		if !tr.EntryTime.Before(*tr.ExitTime) {
			t.Errorf("trade %d: entry %s not before exit %s", i, tr.EntryTime, tr.ExitTime)
		}
		if i > 0 {
			prevExit := *res.Trades[i-1].ExitTime
			if tr.EntryTime.Before(prevExit) {
				t.Errorf("trade %d entry %s overlaps previous exit %s", i, tr.EntryTime, prevExit)
			}
		}
	}
}

func TestFlatSeriesSentinels(t *testing.T) {
	bars := seriesOf([]float64{100, 100, 100, 100, 100, 100})
	e := NewEngine(Config{InitialCapital: 1000}, testLogger())
	res, err := e.Run(context.Background(), bars, signalsFor(bars, nil))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Errorf("flat hold-only series generated %d trades, want 0", len(res.Trades))
	}
	m := res.Metrics
	if m.SharpeRatio != 0 || m.SortinoRatio != 0 || m.Volatility != 0 {
		t.Errorf("flat series ratios = %+v, want zero sentinels", m)
	}
	if math.IsNaN(m.SharpeRatio) || math.IsNaN(m.TotalReturn) {
		t.Error("metrics must never be NaN")
	}
}

func TestCommissionReducesEquity(t *testing.T) {
	closes := []float64{100, 100, 100, 100}
	bars := seriesOf(closes)
	dirs := []domain.Direction{domain.DirectionBuy, domain.DirectionHold, domain.DirectionSell, domain.DirectionHold}

	free := NewEngine(Config{InitialCapital: 1000}, testLogger())
	costly := NewEngine(Config{InitialCapital: 1000, CommissionPct: 0.01}, testLogger())

	freeRes, err := free.Run(context.Background(), bars, signalsFor(bars, dirs))
	if err != nil {
		t.Fatalf("free run: %v", err)
	}
	costlyRes, err := costly.Run(context.Background(), bars, signalsFor(bars, dirs))
	if err != nil {
		t.Fatalf("costly run: %v", err)
	}
	freeFinal := freeRes.EquityCurve[len(freeRes.EquityCurve)-1].Value
	costlyFinal := costlyRes.EquityCurve[len(costlyRes.EquityCurve)-1].Value
	if costlyFinal >= freeFinal {
		t.Errorf("commission should reduce final equity: %v >= %v", costlyFinal, freeFinal)
	}
	for _, tr := range costlyRes.Trades {
		if tr.Cost <= 0 {
			t.Errorf("trade cost = %v, want > 0 with commission configured", tr.Cost)
		}
	}
}

func TestDeterminism(t *testing.T) {
	closes := []float64{100, 103, 101, 106, 104, 109, 102, 111}
	bars := seriesOf(closes)
	dirs := []domain.Direction{
		domain.DirectionBuy, domain.DirectionHold, domain.DirectionSell, domain.DirectionHold,
		domain.DirectionBuy, domain.DirectionHold, domain.DirectionSell, domain.DirectionHold,
	}
	cfg := Config{InitialCapital: 5000, CommissionPct: 0.002, Slippage: 0.05}

	run := func() *Result {
		res, err := NewEngine(cfg, testLogger()).Run(context.Background(), bars, signalsFor(bars, dirs))
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		return res
	}
	a, b := run(), run()
	if a.Metrics != b.Metrics {
		t.Errorf("identical inputs produced different metrics:\n  %+v\n  %+v", a.Metrics, b.Metrics)
	}
}

func TestCrossModeConsistency(t *testing.T) {
	closes := []float64{100, 104, 98, 107, 103, 112, 96, 118, 109, 121, 115, 126}
	bars := seriesOf(closes)
	dirs := []domain.Direction{
		domain.DirectionBuy, domain.DirectionHold, domain.DirectionSell, domain.DirectionHold,
		domain.DirectionBuy, domain.DirectionSell, domain.DirectionHold, domain.DirectionBuy,
		domain.DirectionHold, domain.DirectionSell, domain.DirectionBuy, domain.DirectionHold,
	}
	sigs := signalsFor(bars, dirs)

	// Zero slippage, non-zero commission: both modes must agree.
	base := Config{InitialCapital: 10_000, CommissionPct: 0.001}

	evCfg := base
	evCfg.Mode = ModeEvent
	vecCfg := base
	vecCfg.Mode = ModeVectorized

	ev, err := NewEngine(evCfg, testLogger()).Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("event run: %v", err)
	}
	vec, err := NewEngine(vecCfg, testLogger()).Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("vectorized run: %v", err)
	}

	if len(ev.Trades) != len(vec.Trades) {
		t.Fatalf("trade identification differs: event %d, vectorized %d", len(ev.Trades), len(vec.Trades))
	}
	for i := range ev.Trades {
		if !ev.Trades[i].EntryTime.Equal(vec.Trades[i].EntryTime) {
			t.Errorf("trade %d entry differs between modes", i)
		}
	}
	const tol = 1e-9
	if math.Abs(ev.Metrics.TotalReturn-vec.Metrics.TotalReturn) > tol {
		t.Errorf("total return differs: event %v, vectorized %v", ev.Metrics.TotalReturn, vec.Metrics.TotalReturn)
	}
	if math.Abs(ev.Metrics.MaxDrawdown-vec.Metrics.MaxDrawdown) > tol {
		t.Errorf("max drawdown differs: event %v, vectorized %v", ev.Metrics.MaxDrawdown, vec.Metrics.MaxDrawdown)
	}
}

func TestCrossModeConsistencyWithLargeSlippage(t *testing.T) {
	// Slippage above the first close makes the short entry price non-positive,
	// so that entry is declined. Both modes must agree that the book stayed
	// flat and take the later short at a viable price.
	closes := []float64{1, 1, 5, 5, 5, 5}
	bars := seriesOf(closes)
	dirs := []domain.Direction{
		domain.DirectionSell, domain.DirectionHold, domain.DirectionSell,
		domain.DirectionHold, domain.DirectionBuy, domain.DirectionHold,
	}
	sigs := signalsFor(bars, dirs)

	base := Config{InitialCapital: 10_000, Slippage: 2}
	evCfg := base
	evCfg.Mode = ModeEvent
	vecCfg := base
	vecCfg.Mode = ModeVectorized

	ev, err := NewEngine(evCfg, testLogger()).Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("event run: %v", err)
	}
	vec, err := NewEngine(vecCfg, testLogger()).Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("vectorized run: %v", err)
	}
	if len(ev.Trades) != len(vec.Trades) {
		t.Fatalf("trade identification differs: event %d, vectorized %d", len(ev.Trades), len(vec.Trades))
	}
	for i := range ev.Trades {
		if !ev.Trades[i].EntryTime.Equal(vec.Trades[i].EntryTime) {
			t.Errorf("trade %d entry differs between modes", i)
		}
	}
	if math.Abs(ev.Metrics.TotalReturn-vec.Metrics.TotalReturn) > 1e-9 {
		t.Errorf("total return differs: event %v, vectorized %v", ev.Metrics.TotalReturn, vec.Metrics.TotalReturn)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	bars := seriesOf(make([]float64, 100))
	for i := range bars {
		bars[i].Close = 100 + float64(i%7)
		bars[i].Open, bars[i].High, bars[i].Low = bars[i].Close, bars[i].Close, bars[i].Close
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(Config{InitialCapital: 1000}, testLogger()).Run(ctx, bars, signalsFor(bars, nil))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestAutoCloseAtFinalBar(t *testing.T) {
	closes := []float64{100, 100, 120}
	bars := seriesOf(closes)
	dirs := []domain.Direction{domain.DirectionBuy, domain.DirectionHold, domain.DirectionHold}
	res, err := NewEngine(Config{InitialCapital: 1000}, testLogger()).Run(context.Background(), bars, signalsFor(bars, dirs))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(res.Trades) != 1 || !res.Trades[0].Closed() {
		t.Fatalf("open position must be auto-closed at the final bar: %+v", res.Trades)
	}
	if got := res.Trades[0].ExitTime; !got.Equal(bars[2].Timestamp) {
		t.Errorf("auto-close exit time = %s, want final bar %s", got, bars[2].Timestamp)
	}
	final := res.EquityCurve[len(res.EquityCurve)-1].Value
	if final <= 1000 {
		t.Errorf("final equity = %v, want > initial for a 20%% gain", final)
	}
}
