package optimize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"hkquant/internal/backtest"
)

var (
	ErrNoResults      = errors.New("optimize: no candidate produced a result")
	ErrUnknownSet     = errors.New("optimize: unknown parameter set")
	ErrNoEvaluator    = errors.New("optimize: evaluator not configured")
	ErrBadSampleCount = errors.New("optimize: sample count must be positive")
)

// EvalFunc scores one parameter assignment, typically by running a backtest.
type EvalFunc func(ctx context.Context, p Params) (backtest.Metrics, error)

// ScoreFunc ranks candidates; higher is better.
type ScoreFunc func(m backtest.Metrics) float64

// TotalReturnScore is the default ranking objective.
func TotalReturnScore(m backtest.Metrics) float64 { return m.TotalReturn }

// SharpeScore ranks by risk-adjusted return instead.
func SharpeScore(m backtest.Metrics) float64 { return m.SharpeRatio }

// Candidate is one evaluated parameter assignment.
type Candidate struct {
	Params  Params           `json:"params"`
	Metrics backtest.Metrics `json:"metrics"`
	Score   float64          `json:"score"`
}

// Run records a completed search for later inspection.
type Run struct {
	ID        string      `json:"id"`
	Method    string      `json:"method"`
	StartedAt time.Time   `json:"started_at"`
	Elapsed   string      `json:"elapsed"`
	Evaluated int         `json:"evaluated"`
	Failed    int         `json:"failed"`
	Best      []Candidate `json:"best"`
}

// SetStore persists named parameter sets and search history.
type SetStore interface {
	SaveParamSet(ctx context.Context, name string, p Params) error
	LoadParamSet(ctx context.Context, name string) (Params, error)
	SaveRun(ctx context.Context, run Run) error
}

// Manager drives grid and random search over a parameter space. Evaluations
// run concurrently; a candidate that errors or panics is dropped from the
// ranking without aborting the rest of the search.
type Manager struct {
	space   Space
	eval    EvalFunc
	score   ScoreFunc
	workers int
	topN    int
	store   SetStore
	log     *slog.Logger
}

type Option func(*Manager)

func WithScore(fn ScoreFunc) Option { return func(m *Manager) { m.score = fn } }
func WithWorkers(n int) Option      { return func(m *Manager) { m.workers = n } }
func WithTopN(n int) Option         { return func(m *Manager) { m.topN = n } }
func WithStore(s SetStore) Option   { return func(m *Manager) { m.store = s } }

func NewManager(space Space, eval EvalFunc, log *slog.Logger, opts ...Option) (*Manager, error) {
	if err := space.Validate(); err != nil {
		return nil, err
	}
	if eval == nil {
		return nil, ErrNoEvaluator
	}
	m := &Manager{
		space:   space,
		eval:    eval,
		score:   TotalReturnScore,
		workers: 4,
		topN:    10,
		log:     log,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.workers < 1 {
		m.workers = 1
	}
	return m, nil
}

// GridSearch evaluates the full Cartesian product of the space and returns
// candidates ranked best first.
func (m *Manager) GridSearch(ctx context.Context) ([]Candidate, error) {
	return m.search(ctx, "grid", m.space.grid())
}

// RandomSearch evaluates n uniform draws from the space. When the grid is
// finite and no larger than n the draws are replaced by the exhaustive grid,
// so no candidate is evaluated twice.
func (m *Manager) RandomSearch(ctx context.Context, n int, seed int64) ([]Candidate, error) {
	if n <= 0 {
		return nil, ErrBadSampleCount
	}
	if m.space.size() <= n {
		return m.search(ctx, "random", m.space.grid())
	}
	r := rand.New(rand.NewSource(seed))
	seen := make(map[string]bool, n)
	candidates := make([]Params, 0, n)
	for len(candidates) < n {
		p := make(Params, len(m.space))
		for _, b := range m.space {
			p[b.Name] = b.sample(r)
		}
		if key := p.Key(); !seen[key] {
			seen[key] = true
			candidates = append(candidates, p)
		}
	}
	return m.search(ctx, "random", candidates)
}

func (m *Manager) search(ctx context.Context, method string, candidates []Params) ([]Candidate, error) {
	started := time.Now()
	m.log.Info("parameter search started", "method", method, "candidates", len(candidates), "workers", m.workers)

	var (
		mu      sync.Mutex
		results []Candidate
		failed  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, p := range candidates {
		p := p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			metrics, err := m.evalOne(gctx, p)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				m.log.Warn("candidate evaluation failed", "params", p.Key(), "error", err)
				return nil
			}
			results = append(results, Candidate{Params: p, Metrics: metrics, Score: m.score(metrics)})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %d of %d candidates failed", ErrNoResults, failed, len(candidates))
	}
	m.rank(results)

	m.log.Info("parameter search finished",
		"method", method, "evaluated", len(results), "failed", failed,
		"best_score", results[0].Score, "elapsed", time.Since(started).String())

	if m.store != nil {
		run := Run{
			ID:        fmt.Sprintf("%s-%d", method, started.UnixMilli()),
			Method:    method,
			StartedAt: started,
			Elapsed:   time.Since(started).String(),
			Evaluated: len(results),
			Failed:    failed,
			Best:      topOf(results, m.topN),
		}
		if err := m.store.SaveRun(ctx, run); err != nil {
			m.log.Warn("failed to persist search run", "error", err)
		}
	}
	return results, nil
}

// evalOne isolates a single candidate: a panic inside the evaluator is
// converted to an error for that candidate only.
func (m *Manager) evalOne(ctx context.Context, p Params) (metrics backtest.Metrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("optimize: evaluator panic: %v", r)
		}
	}()
	return m.eval(ctx, p)
}

// rank orders candidates best first. Ties fall back to Sharpe, then smaller
// drawdown, then the canonical parameter key so results are reproducible.
func (m *Manager) rank(results []Candidate) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Metrics.SharpeRatio != b.Metrics.SharpeRatio {
			return a.Metrics.SharpeRatio > b.Metrics.SharpeRatio
		}
		if a.Metrics.MaxDrawdown != b.Metrics.MaxDrawdown {
			return a.Metrics.MaxDrawdown < b.Metrics.MaxDrawdown
		}
		return a.Params.Key() < b.Params.Key()
	})
}

func topOf(results []Candidate, n int) []Candidate {
	if n <= 0 || n > len(results) {
		n = len(results)
	}
	out := make([]Candidate, n)
	copy(out, results[:n])
	return out
}

// SaveParamSet stores a named parameter assignment for reuse.
func (m *Manager) SaveParamSet(ctx context.Context, name string, p Params) error {
	if m.store == nil {
		return errors.New("optimize: no store configured")
	}
	return m.store.SaveParamSet(ctx, name, p)
}

// LoadParamSet retrieves a previously saved assignment.
func (m *Manager) LoadParamSet(ctx context.Context, name string) (Params, error) {
	if m.store == nil {
		return nil, errors.New("optimize: no store configured")
	}
	return m.store.LoadParamSet(ctx, name)
}
