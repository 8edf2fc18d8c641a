package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hkquant/internal/agent"
	"hkquant/internal/config"
	"hkquant/internal/httpapi"
	"hkquant/internal/risk"
	"hkquant/internal/store"
	"hkquant/internal/strategy"
	"hkquant/internal/strategy/builtins"
	"hkquant/internal/util"
)

func main() {
	// Load config.
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

	// Stores.
	ps := store.NewParquetStore(cfg.Storage.DataDir)
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening sqlite store: %v", err)
	}
	defer db.Close()

	// Strategies.
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
	executor := strategy.NewExecutor(registry, logger)
	riskCalc := risk.NewCalculator(cfg.Risk, logger)

	// Websocket hub and agent runtime. Heartbeats stream to connected
	// dashboard clients.
	hub := httpapi.NewHub(logger)
	go hub.Run()
	runtime := agent.NewRuntime(cfg.Agents, logger, func(m agent.Metrics) {
		hub.Publish("agent_heartbeat", m)
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, role := range []agent.Role{
		&agent.StrategyRole{Executor: executor, Method: strategy.AggregationWeighted},
		&agent.BacktestRole{Log: logger},
		&agent.RiskRole{Calculator: riskCalc},
		&agent.CoordinatorRole{Sink: func(msg agent.Message) {
			hub.Publish(string(msg.Type), msg.Payload)
		}},
	} {
		id, err := runtime.Spawn(ctx, role)
		if err != nil {
			log.Fatalf("spawning %s agent: %v", role.Type(), err)
		}
		logger.Info("agent spawned", "role", role.Type(), "id", id)
	}

	srv := httpapi.NewServer(*cfg, ps, db, executor, riskCalc, runtime, hub, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: srv.Handler(),
	}

	go func() {
		logger.Info("hkquant server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down hkquant server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	runtime.StopAll()
}
