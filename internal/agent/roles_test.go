package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"hkquant/internal/backtest"
	"hkquant/internal/config"
	"hkquant/internal/domain"
	"hkquant/internal/risk"
	"hkquant/internal/strategy"
	"hkquant/internal/strategy/builtins"
)

func rolesBars(n int) []domain.Bar {
	base := time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	px := 100.0
	for i := range bars {
		px += 0.8
		bars[i] = domain.Bar{
			Symbol: "0700.HK", Timestamp: base.AddDate(0, 0, i),
			Open: px, High: px + 1, Low: px - 1, Close: px, Volume: 1000,
		}
	}
	return bars
}

// collectorRole records messages for assertions at the end of a pipeline.
type collectorRole struct {
	mu  sync.Mutex
	got []Message
}

func (r *collectorRole) Type() RoleType                       { return RoleCoordinator }
func (r *collectorRole) Initialize(ctx context.Context) error { return nil }
func (r *collectorRole) Cleanup(ctx context.Context) error    { return nil }

func (r *collectorRole) HandleMessage(ctx context.Context, msg Message) ([]Outbound, error) {
	r.mu.Lock()
	r.got = append(r.got, msg)
	r.mu.Unlock()
	return nil, nil
}

func (r *collectorRole) first() (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.got) == 0 {
		return Message{}, false
	}
	return r.got[0], true
}

func TestStrategyRoleProducesSignals(t *testing.T) {
	rt := newTestRuntime(nil)
	defer rt.StopAll()

	reg := strategy.NewRegistry()
	if err := reg.Register(builtins.NewSMACross(3, 8)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	strategyID, err := rt.Spawn(context.Background(), &StrategyRole{
		Executor: strategy.NewExecutor(reg, testLogger()),
		Method:   strategy.AggregationWeighted,
	})
	if err != nil {
		t.Fatalf("Spawn strategy: %v", err)
	}
	collector := &collectorRole{}
	collectorID, err := rt.Spawn(context.Background(), collector)
	if err != nil {
		t.Fatalf("Spawn collector: %v", err)
	}

	req := NewMessage(MsgSignalRequest, collectorID, SignalRequest{Bars: rolesBars(30)})
	if err := rt.Send(strategyID, req); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, func() bool { _, ok := collector.first(); return ok })

	reply, _ := collector.first()
	if reply.Type != MsgSignal {
		t.Fatalf("reply type = %s, want %s", reply.Type, MsgSignal)
	}
	signals, ok := reply.Payload.([]domain.Signal)
	if !ok {
		t.Fatalf("payload type = %T", reply.Payload)
	}
	if len(signals) != 30 {
		t.Errorf("got %d signals, want one per bar", len(signals))
	}
	if reply.SenderID != strategyID {
		t.Errorf("reply sender = %q, want the strategy agent", reply.SenderID)
	}
}

func TestBacktestRolePipeline(t *testing.T) {
	rt := newTestRuntime(nil)
	defer rt.StopAll()

	backtestID, err := rt.Spawn(context.Background(), &BacktestRole{Log: testLogger()})
	if err != nil {
		t.Fatalf("Spawn backtest: %v", err)
	}
	collector := &collectorRole{}
	collectorID, err := rt.Spawn(context.Background(), collector)
	if err != nil {
		t.Fatalf("Spawn collector: %v", err)
	}

	bars := rolesBars(40)
	signals := make([]domain.Signal, len(bars))
	for i := range bars {
		dir := domain.DirectionHold
		if i == 5 {
			dir = domain.DirectionBuy
		}
		signals[i] = domain.Signal{
			Timestamp: bars[i].Timestamp, Symbol: bars[i].Symbol,
			Direction: dir, Strength: 1, Confidence: 1, Source: "test",
		}
	}
	req := NewMessage(MsgBacktestRequest, collectorID, BacktestRequest{
		Bars:    bars,
		Signals: signals,
		Config:  backtest.Config{InitialCapital: 10000},
	})
	if err := rt.Send(backtestID, req); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, func() bool { _, ok := collector.first(); return ok })

	reply, _ := collector.first()
	if reply.Type != MsgBacktestResult {
		t.Fatalf("reply type = %s, want %s", reply.Type, MsgBacktestResult)
	}
	result, ok := reply.Payload.(*backtest.Result)
	if !ok {
		t.Fatalf("payload type = %T", reply.Payload)
	}
	if result.Metrics.TotalTrades != 1 {
		t.Errorf("TotalTrades = %d, want the single buy-and-hold trade", result.Metrics.TotalTrades)
	}
}

func TestRiskRoleReportsAndIgnoresOtherTypes(t *testing.T) {
	rt := newTestRuntime(nil)
	defer rt.StopAll()

	calc := risk.NewCalculator(config.RiskConfig{MaxPositionPct: 0.25, VaRConfidence: 0.95}, testLogger())
	riskID, err := rt.Spawn(context.Background(), &RiskRole{Calculator: calc})
	if err != nil {
		t.Fatalf("Spawn risk: %v", err)
	}
	collector := &collectorRole{}
	collectorID, err := rt.Spawn(context.Background(), collector)
	if err != nil {
		t.Fatalf("Spawn collector: %v", err)
	}

	// Unrelated types must be ignored without error.
	if err := rt.Send(riskID, NewMessage(MsgSignal, collectorID, "noise")); err != nil {
		t.Fatalf("Send noise: %v", err)
	}
	req := NewMessage(MsgRiskRequest, collectorID, RiskRequest{
		Positions: []domain.Position{
			{Symbol: "0700.HK", Quantity: 100, EntryPrice: 290, CurrentPrice: 300, Side: domain.SideLong},
		},
		PortfolioReturns: []float64{0.01, -0.02, 0.015, -0.005},
	})
	if err := rt.Send(riskID, req); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, func() bool { _, ok := collector.first(); return ok })

	reply, _ := collector.first()
	if reply.Type != MsgRiskReport {
		t.Fatalf("reply type = %s, want %s", reply.Type, MsgRiskReport)
	}
	report, ok := reply.Payload.(domain.PortfolioRisk)
	if !ok {
		t.Fatalf("payload type = %T", reply.Payload)
	}
	if report.ConcentrationIndex != 1 {
		t.Errorf("single-name concentration = %v, want 1", report.ConcentrationIndex)
	}
}

func TestCoordinatorRoleForwardsToSink(t *testing.T) {
	rt := newTestRuntime(nil)
	defer rt.StopAll()

	var mu sync.Mutex
	var seen []Message
	coordID, err := rt.Spawn(context.Background(), &CoordinatorRole{Sink: func(m Message) {
		mu.Lock()
		seen = append(seen, m)
		mu.Unlock()
	}})
	if err != nil {
		t.Fatalf("Spawn coordinator: %v", err)
	}

	if err := rt.Send(coordID, NewMessage(MsgRiskReport, "test", domain.PortfolioRisk{})); err != nil {
		t.Fatalf("Send report: %v", err)
	}
	// Request types are not results and must not reach the sink.
	if err := rt.Send(coordID, NewMessage(MsgRiskRequest, "test", nil)); err != nil {
		t.Fatalf("Send request: %v", err)
	}
	waitFor(t, func() bool {
		m, err := rt.Metrics(coordID)
		return err == nil && m.Processed == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("sink saw %d messages, want only the risk report", len(seen))
	}
	if seen[0].Type != MsgRiskReport {
		t.Errorf("sink message type = %s", seen[0].Type)
	}
}
