package agent

import (
	"context"
	"fmt"
	"log/slog"

	"hkquant/internal/backtest"
	"hkquant/internal/domain"
	"hkquant/internal/optimize"
	"hkquant/internal/risk"
	"hkquant/internal/strategy"
)

// SignalRequest asks a strategy agent to evaluate a bar series.
type SignalRequest struct {
	Bars []domain.Bar `json:"bars"`
}

// BacktestRequest asks a backtest agent to simulate a signal stream.
type BacktestRequest struct {
	Bars    []domain.Bar    `json:"bars"`
	Signals []domain.Signal `json:"signals"`
	Config  backtest.Config `json:"config"`
}

// RiskRequest asks a risk agent for a portfolio report.
type RiskRequest struct {
	Positions        []domain.Position    `json:"positions"`
	SymbolReturns    map[string][]float64 `json:"symbol_returns"`
	PortfolioReturns []float64            `json:"portfolio_returns"`
	MarketReturns    []float64            `json:"market_returns"`
}

// OptimizeRequest asks an optimizer agent to run a parameter search.
type OptimizeRequest struct {
	Method  string `json:"method"`
	Samples int    `json:"samples"`
	Seed    int64  `json:"seed"`
}

// StrategyRole evaluates registered strategies over incoming bar series and
// replies with the aggregated signal stream.
type StrategyRole struct {
	Executor *strategy.Executor
	Method   strategy.Aggregation
}

func (r *StrategyRole) Type() RoleType                       { return RoleStrategy }
func (r *StrategyRole) Initialize(ctx context.Context) error { return nil }
func (r *StrategyRole) Cleanup(ctx context.Context) error    { return nil }

func (r *StrategyRole) HandleMessage(ctx context.Context, msg Message) ([]Outbound, error) {
	if msg.Type != MsgSignalRequest {
		return nil, nil
	}
	req, ok := msg.Payload.(SignalRequest)
	if !ok {
		return nil, fmt.Errorf("agent: unexpected payload %T for %s", msg.Payload, msg.Type)
	}
	signals, err := r.Executor.GenerateSignals(ctx, req.Bars, r.Method)
	if err != nil {
		return nil, err
	}
	return []Outbound{Reply(msg, MsgSignal, "", signals)}, nil
}

// BacktestRole simulates signal streams on demand.
type BacktestRole struct {
	Log *slog.Logger
}

func (r *BacktestRole) Type() RoleType                       { return RoleBacktest }
func (r *BacktestRole) Initialize(ctx context.Context) error { return nil }
func (r *BacktestRole) Cleanup(ctx context.Context) error    { return nil }

func (r *BacktestRole) HandleMessage(ctx context.Context, msg Message) ([]Outbound, error) {
	if msg.Type != MsgBacktestRequest {
		return nil, nil
	}
	req, ok := msg.Payload.(BacktestRequest)
	if !ok {
		return nil, fmt.Errorf("agent: unexpected payload %T for %s", msg.Payload, msg.Type)
	}
	res, err := backtest.NewEngine(req.Config, r.Log).Run(ctx, req.Bars, req.Signals)
	if err != nil {
		return nil, err
	}
	return []Outbound{Reply(msg, MsgBacktestResult, "", res)}, nil
}

// RiskRole answers portfolio risk queries.
type RiskRole struct {
	Calculator *risk.Calculator
}

func (r *RiskRole) Type() RoleType                       { return RoleRisk }
func (r *RiskRole) Initialize(ctx context.Context) error { return nil }
func (r *RiskRole) Cleanup(ctx context.Context) error    { return nil }

func (r *RiskRole) HandleMessage(ctx context.Context, msg Message) ([]Outbound, error) {
	if msg.Type != MsgRiskRequest {
		return nil, nil
	}
	req, ok := msg.Payload.(RiskRequest)
	if !ok {
		return nil, fmt.Errorf("agent: unexpected payload %T for %s", msg.Payload, msg.Type)
	}
	report := r.Calculator.Report(req.Positions, risk.Input{
		BySymbol:  req.SymbolReturns,
		Portfolio: req.PortfolioReturns,
		Market:    req.MarketReturns,
	})
	return []Outbound{Reply(msg, MsgRiskReport, "", report)}, nil
}

// OptimizerRole runs parameter searches through a pre-built manager.
type OptimizerRole struct {
	Manager *optimize.Manager
}

func (r *OptimizerRole) Type() RoleType                       { return RoleOptimizer }
func (r *OptimizerRole) Initialize(ctx context.Context) error { return nil }
func (r *OptimizerRole) Cleanup(ctx context.Context) error    { return nil }

func (r *OptimizerRole) HandleMessage(ctx context.Context, msg Message) ([]Outbound, error) {
	if msg.Type != MsgOptimizeRequest {
		return nil, nil
	}
	req, ok := msg.Payload.(OptimizeRequest)
	if !ok {
		return nil, fmt.Errorf("agent: unexpected payload %T for %s", msg.Payload, msg.Type)
	}
	var (
		results []optimize.Candidate
		err     error
	)
	if req.Method == "random" {
		results, err = r.Manager.RandomSearch(ctx, req.Samples, req.Seed)
	} else {
		results, err = r.Manager.GridSearch(ctx)
	}
	if err != nil {
		return nil, err
	}
	return []Outbound{Reply(msg, MsgOptimizeResult, "", results)}, nil
}

// CoordinatorRole fans completed results out to an external sink, typically
// the websocket hub. It accepts every result-bearing message type.
type CoordinatorRole struct {
	Sink func(Message)
}

func (r *CoordinatorRole) Type() RoleType                       { return RoleCoordinator }
func (r *CoordinatorRole) Initialize(ctx context.Context) error { return nil }
func (r *CoordinatorRole) Cleanup(ctx context.Context) error    { return nil }

func (r *CoordinatorRole) HandleMessage(ctx context.Context, msg Message) ([]Outbound, error) {
	switch msg.Type {
	case MsgSignal, MsgBacktestResult, MsgOptimizeResult, MsgRiskReport:
		if r.Sink != nil {
			r.Sink(msg)
		}
	}
	return nil, nil
}
