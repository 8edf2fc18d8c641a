package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"hkquant/internal/agent"
	"hkquant/internal/backtest"
	"hkquant/internal/config"
	"hkquant/internal/domain"
	"hkquant/internal/optimize"
	"hkquant/internal/risk"
	"hkquant/internal/store"
	"hkquant/internal/strategy"
	"hkquant/internal/util"
)

// Server serves the research platform HTTP API: bar data, backtests,
// parameter searches, risk reports, and live agent status over websocket.
type Server struct {
	cfg      config.Config
	bars     store.BarStore
	params   store.ParamStore
	executor *strategy.Executor
	riskCalc *risk.Calculator
	runtime  *agent.Runtime
	hub      *Hub
	calendar *util.TradingCalendar
	log      *slog.Logger
}

func NewServer(
	cfg config.Config,
	bars store.BarStore,
	params store.ParamStore,
	executor *strategy.Executor,
	riskCalc *risk.Calculator,
	runtime *agent.Runtime,
	hub *Hub,
	log *slog.Logger,
) *Server {
	return &Server{
		cfg:      cfg,
		bars:     bars,
		params:   params,
		executor: executor,
		riskCalc: riskCalc,
		runtime:  runtime,
		hub:      hub,
		calendar: util.NewTradingCalendar(),
		log:      log,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/market/status", s.handleMarketStatus)
	mux.HandleFunc("GET /api/symbols", s.handleSymbols)
	mux.HandleFunc("GET /api/bars/{symbol}", s.handleBars)
	mux.HandleFunc("POST /api/backtest", s.handleBacktest)
	mux.HandleFunc("POST /api/risk", s.handleRisk)
	mux.HandleFunc("GET /api/params", s.handleListParams)
	mux.HandleFunc("GET /api/params/{name}", s.handleGetParams)
	mux.HandleFunc("PUT /api/params/{name}", s.handleSaveParams)
	mux.HandleFunc("DELETE /api/params/{name}", s.handleDeleteParams)
	mux.HandleFunc("GET /api/optimize/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/optimize/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/agents", s.handleAgents)
	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.HandleWebSocket)
	}
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

// MarketStatus reports whether the exchange is currently in session, for
// dashboard and bot consumers that schedule polling around trading hours.
type MarketStatus struct {
	Open         bool      `json:"open"`
	NextOpen     time.Time `json:"next_open"`
	SessionClose time.Time `json:"session_close"`
	ServerTime   time.Time `json:"server_time"`
}

func (s *Server) handleMarketStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	writeJSON(w, MarketStatus{
		Open:         s.calendar.IsMarketOpen(now),
		NextOpen:     s.calendar.NextOpen(now),
		SessionClose: s.calendar.SessionClose(now),
		ServerTime:   now,
	})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := s.bars.ListSymbols(r.Context())
	if err != nil {
		s.log.Error("listing symbols", "error", err)
		writeError(w, http.StatusInternalServerError, "listing symbols")
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, symbols)
}

func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	start, end, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bars, err := s.bars.ReadBars(r.Context(), symbol, start, end)
	if err != nil {
		s.log.Error("reading bars", "symbol", symbol, "error", err)
		writeError(w, http.StatusInternalServerError, "reading bars")
		return
	}
	writeJSON(w, bars)
}

// BacktestRequest selects a symbol range and simulation settings. Zero-value
// fields fall back to the server configuration.
type BacktestRequest struct {
	Symbol      string  `json:"symbol"`
	Start       string  `json:"start"` // YYYY-MM-DD
	End         string  `json:"end"`
	Mode        string  `json:"mode"`
	Aggregation string  `json:"aggregation"`
	Commission  float64 `json:"commission"`
	Slippage    float64 `json:"slippage"`
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	start, err := time.Parse("2006-01-02", req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start date")
		return
	}
	end, err := time.Parse("2006-01-02", req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end date")
		return
	}
	bars, err := s.bars.ReadBars(r.Context(), req.Symbol, start, end.AddDate(0, 0, 1))
	if err != nil {
		s.log.Error("reading bars", "symbol", req.Symbol, "error", err)
		writeError(w, http.StatusInternalServerError, "reading bars")
		return
	}

	method := strategy.Aggregation(req.Aggregation)
	if method == "" {
		method = strategy.AggregationWeighted
	}
	signals, err := s.executor.GenerateSignals(r.Context(), bars, method)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	commission := req.Commission
	if commission == 0 {
		commission = s.cfg.Backtest.CommissionPct
	}
	slippage := req.Slippage
	if slippage == 0 {
		slippage = s.cfg.Backtest.Slippage
	}
	cfg := backtest.Config{
		Mode:              backtest.Mode(req.Mode),
		InitialCapital:    s.cfg.Backtest.InitialCapital,
		CommissionPct:     commission,
		Slippage:          slippage,
		RiskFreeRate:      s.cfg.Backtest.RiskFreeRate,
		MaxPositionWeight: s.cfg.Backtest.MaxPositionWeight,
		Warmup:            s.executor.MaxWarmup(),
	}
	result, err := backtest.NewEngine(cfg, s.log).Run(r.Context(), bars, signals)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, backtest.ErrInsufficientData) || errors.Is(err, backtest.ErrSignalMismatch) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}
	if s.hub != nil {
		s.hub.Publish("backtest_result", map[string]any{
			"symbol": req.Symbol, "metrics": result.Metrics,
		})
	}
	writeJSON(w, result)
}

// RiskRequest carries the portfolio to analyze. SymbolReturns holds aligned
// per-symbol return series for correlation-aware aggregation; a precombined
// portfolio series takes precedence when supplied.
type RiskRequest struct {
	Positions        []domain.Position    `json:"positions"`
	SymbolReturns    map[string][]float64 `json:"symbol_returns"`
	PortfolioReturns []float64            `json:"portfolio_returns"`
	MarketReturns    []float64            `json:"market_returns"`
	StressScenarios  []risk.Scenario      `json:"stress_scenarios"`
}

// RiskResponse is the report plus stress test results.
type RiskResponse struct {
	Report domain.PortfolioRisk `json:"report"`
	Stress []risk.StressResult  `json:"stress"`
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	var req RiskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	scenarios := req.StressScenarios
	if len(scenarios) == 0 {
		scenarios = risk.BuiltinScenarios()
	}
	resp := RiskResponse{
		Report: s.riskCalc.Report(req.Positions, risk.Input{
			BySymbol:  req.SymbolReturns,
			Portfolio: req.PortfolioReturns,
			Market:    req.MarketReturns,
		}),
		Stress: s.riskCalc.StressTest(req.Positions, scenarios),
	}
	if s.hub != nil {
		s.hub.Publish("risk_report", resp.Report)
	}
	writeJSON(w, resp)
}

func (s *Server) handleListParams(w http.ResponseWriter, r *http.Request) {
	names, err := s.params.ListParamSets(r.Context())
	if err != nil {
		s.log.Error("listing param sets", "error", err)
		writeError(w, http.StatusInternalServerError, "listing param sets")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, names)
}

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	p, err := s.params.LoadParamSet(r.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("param set %q not found", name))
			return
		}
		s.log.Error("loading param set", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "loading param set")
		return
	}
	writeJSON(w, p)
}

func (s *Server) handleSaveParams(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var p optimize.Params
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.params.SaveParamSet(r.Context(), name, p); err != nil {
		s.log.Error("saving param set", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "saving param set")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteParams(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.params.DeleteParamSet(r.Context(), name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("param set %q not found", name))
			return
		}
		s.log.Error("deleting param set", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "deleting param set")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := s.params.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.Error("listing runs", "error", err)
		writeError(w, http.StatusInternalServerError, "listing runs")
		return
	}
	if runs == nil {
		runs = []optimize.Run{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.params.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("run %q not found", id))
			return
		}
		s.log.Error("loading run", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "loading run")
		return
	}
	writeJSON(w, run)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.runtime.List())
}

func parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	start, err := time.Parse("2006-01-02", q.Get("start"))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid start date")
	}
	end, err := time.Parse("2006-01-02", q.Get("end"))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid end date")
	}
	return start, end.AddDate(0, 0, 1), nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
