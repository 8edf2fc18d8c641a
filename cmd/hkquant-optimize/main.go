// One-shot tool: sweep strategy parameters over stored bars and print the
// ranked results. Each candidate builds its own strategy set, generates
// signals, and runs a full backtest; the run is persisted to the SQLite
// history and the best candidate can be saved as a named parameter set.
//
// Usage:
//
//	go build -o bin/hkquant-optimize ./cmd/hkquant-optimize/
//	bin/hkquant-optimize -symbol 0700.HK -start 2023-01-01 -end 2024-01-01 [-method grid] [-samples 50] [-save tencent_best]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"hkquant/internal/backtest"
	"hkquant/internal/config"
	"hkquant/internal/domain"
	"hkquant/internal/optimize"
	"hkquant/internal/store"
	"hkquant/internal/strategy"
	"hkquant/internal/strategy/builtins"
	"hkquant/internal/util"
)

func main() {
	var (
		symbol  = flag.String("symbol", "", "symbol to optimize against, e.g. 0700.HK")
		start   = flag.String("start", "", "start date (YYYY-MM-DD)")
		end     = flag.String("end", "", "end date (YYYY-MM-DD)")
		method  = flag.String("method", "grid", "search method: grid or random")
		samples = flag.Int("samples", 50, "candidate count for random search")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random search seed")
		save    = flag.String("save", "", "save the best candidate under this parameter set name")
		top     = flag.Int("top", 10, "number of ranked candidates to print")
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

	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening sqlite store: %v", err)
	}
	defer db.Close()

	space := optimize.Space{
		{Name: "sma_short", Kind: optimize.KindInt, Min: 5, Max: 20, Step: 5, Default: 10},
		{Name: "sma_long", Kind: optimize.KindInt, Min: 30, Max: 90, Step: 30, Default: 30},
		{Name: "momentum_lookback", Kind: optimize.KindInt, Min: 10, Max: 30, Step: 10, Default: 20},
		{Name: "momentum_threshold", Kind: optimize.KindFloat, Min: 0.01, Max: 0.05, Step: 0.02, Default: 0.03},
	}

	eval := func(ctx context.Context, p optimize.Params) (backtest.Metrics, error) {
		return evaluate(ctx, bars, p, cfg, logger)
	}
	manager, err := optimize.NewManager(space, eval, logger,
		optimize.WithWorkers(cfg.Optimizer.MaxWorkers),
		optimize.WithStore(db),
		optimize.WithTopN(*top))
	if err != nil {
		log.Fatalf("building optimizer: %v", err)
	}

	var results []optimize.Candidate
	if *method == "random" {
		results, err = manager.RandomSearch(ctx, *samples, *seed)
	} else {
		results, err = manager.GridSearch(ctx)
	}
	if err != nil {
		log.Fatalf("search failed: %v", err)
	}

	if *save != "" {
		if err := manager.SaveParamSet(ctx, *save, results[0].Params); err != nil {
			log.Fatalf("saving param set %q: %v", *save, err)
		}
		logger.Info("best candidate saved", "name", *save, "params", results[0].Params.Key())
	}

	if *top < len(results) {
		results = results[:*top]
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		log.Fatalf("encoding results: %v", err)
	}
}

// evaluate scores one parameter assignment with a fresh strategy set and a
// full event-mode backtest.
func evaluate(ctx context.Context, bars []domain.Bar, p optimize.Params, cfg *config.Config, logger *slog.Logger) (backtest.Metrics, error) {
	registry := strategy.NewRegistry()
	for _, s := range []strategy.Strategy{
		builtins.NewSMACross(p.Int("sma_short", 10), p.Int("sma_long", 30)),
		builtins.NewMomentum(p.Int("momentum_lookback", 20), p.Float("momentum_threshold", 0.03)),
	} {
		if err := registry.Register(s); err != nil {
			return backtest.Metrics{}, err
		}
	}
	executor := strategy.NewExecutor(registry, logger)
	signals, err := executor.GenerateSignals(ctx, bars, strategy.AggregationWeighted)
	if err != nil {
		return backtest.Metrics{}, err
	}
	engine := backtest.NewEngine(backtest.Config{
		Mode:              backtest.ModeEvent,
		InitialCapital:    cfg.Backtest.InitialCapital,
		CommissionPct:     cfg.Backtest.CommissionPct,
		Slippage:          cfg.Backtest.Slippage,
		RiskFreeRate:      cfg.Backtest.RiskFreeRate,
		MaxPositionWeight: cfg.Backtest.MaxPositionWeight,
		Warmup:            registry.MaxWarmup(),
	}, logger)
	result, err := engine.Run(ctx, bars, signals)
	if err != nil {
		return backtest.Metrics{}, err
	}
	return result.Metrics, nil
}
