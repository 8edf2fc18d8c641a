// One-shot tool: run a backtest over stored bars and print the result.
//
// Usage:
//
//	go build -o bin/hkquant-backtest ./cmd/hkquant-backtest/
//	bin/hkquant-backtest -symbol 0700.HK -start 2023-01-01 -end 2024-01-01 [-mode event] [-agg weighted]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"hkquant/internal/backtest"
	"hkquant/internal/config"
	"hkquant/internal/store"
	"hkquant/internal/strategy"
	"hkquant/internal/strategy/builtins"
	"hkquant/internal/util"
)

func main() {
	var (
		symbol     = flag.String("symbol", "", "symbol to backtest, e.g. 0700.HK")
		start      = flag.String("start", "", "start date (YYYY-MM-DD)")
		end        = flag.String("end", "", "end date (YYYY-MM-DD)")
		mode       = flag.String("mode", "event", "simulation mode: vectorized, event, or replay")
		agg        = flag.String("agg", "weighted", "signal aggregation: weighted, voting, or max")
		commission = flag.Float64("commission", 0, "commission as a fraction of notional")
		slippage   = flag.Float64("slippage", 0, "slippage as an absolute price offset")
		indicator  = flag.String("indicator", "", "indicator series to overlay in replay mode")
		lookback   = flag.Int("indicator-lookback", 12, "trailing-mean window for the indicator overlay")
	)
	flag.Parse()
	if *symbol == "" || *start == "" || *end == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfgPath := "config/hkquant.yaml"
	if p := os.Getenv("HKQUANT_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	startDay, err := time.Parse("2006-01-02", *start)
	if err != nil {
		log.Fatalf("invalid start date: %v", err)
	}
	endDay, err := time.Parse("2006-01-02", *end)
	if err != nil {
		log.Fatalf("invalid end date: %v", err)
	}

	ctx := context.Background()
	ps := store.NewParquetStore(cfg.Storage.DataDir)
	bars, err := ps.ReadBars(ctx, *symbol, startDay, endDay.AddDate(0, 0, 1))
	if err != nil {
		log.Fatalf("reading bars: %v", err)
	}
	logger.Info("bars loaded", "symbol", *symbol, "count", len(bars))

	registry := strategy.NewRegistry()
	for _, s := range []strategy.Strategy{
		builtins.NewSMACross(10, 30),
		builtins.NewRSIReversion(14, 30, 70),
		builtins.NewMomentum(20, 0.03),
	} {
		if err := registry.Register(s); err != nil {
			log.Fatalf("registering strategy: %v", err)
		}
	}
	if *indicator != "" {
		series, err := ps.ReadIndicator(ctx, *symbol, *indicator, startDay, endDay.AddDate(0, 0, 1))
		if err != nil {
			log.Fatalf("reading indicator %q: %v", *indicator, err)
		}
		if len(series.Points) == 0 {
			log.Fatalf("no %q observations stored for %s", *indicator, *symbol)
		}
		if err := registry.Register(strategy.NewIndicatorOverlay(series, *lookback)); err != nil {
			log.Fatalf("registering indicator overlay: %v", err)
		}
		*mode = string(backtest.ModeReplay)
		logger.Info("indicator overlay registered", "name", *indicator, "points", len(series.Points))
	}

	executor := strategy.NewExecutor(registry, logger)
	signals, err := executor.GenerateSignals(ctx, bars, strategy.Aggregation(*agg))
	if err != nil {
		log.Fatalf("generating signals: %v", err)
	}

	engine := backtest.NewEngine(backtest.Config{
		Mode:              backtest.Mode(*mode),
		InitialCapital:    cfg.Backtest.InitialCapital,
		CommissionPct:     *commission,
		Slippage:          *slippage,
		RiskFreeRate:      cfg.Backtest.RiskFreeRate,
		MaxPositionWeight: cfg.Backtest.MaxPositionWeight,
		Warmup:            registry.MaxWarmup(),
	}, logger)
	result, err := engine.Run(ctx, bars, signals)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	logger.Info("backtest complete",
		"trades", result.Metrics.TotalTrades,
		"total_return", result.Metrics.TotalReturn,
		"sharpe", result.Metrics.SharpeRatio,
		"max_drawdown", result.Metrics.MaxDrawdown)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.Metrics); err != nil {
		log.Fatalf("encoding metrics: %v", err)
	}
}
