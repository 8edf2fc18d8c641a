package optimize

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"hkquant/internal/backtest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBoundsValidate(t *testing.T) {
	tests := []struct {
		name    string
		bounds  Bounds
		wantErr bool
	}{
		{"valid int", Bounds{Name: "window", Kind: KindInt, Min: 5, Max: 50}, false},
		{"valid float with step", Bounds{Name: "threshold", Kind: KindFloat, Min: 0, Max: 1, Step: 0.1}, false},
		{"valid choice", Bounds{Name: "method", Kind: KindChoice, Choices: []string{"weighted", "voting"}}, false},
		{"bool needs nothing", Bounds{Name: "enabled", Kind: KindBool}, false},
		{"min above max", Bounds{Name: "window", Kind: KindInt, Min: 50, Max: 5}, true},
		{"float without step", Bounds{Name: "threshold", Kind: KindFloat, Min: 0, Max: 1}, true},
		{"default out of range", Bounds{Name: "window", Kind: KindInt, Min: 5, Max: 50, Default: 100}, true},
		{"empty choices", Bounds{Name: "method", Kind: KindChoice}, true},
		{"missing name", Bounds{Kind: KindInt, Min: 0, Max: 1}, true},
		{"unknown kind", Bounds{Name: "x", Kind: "complex"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bounds.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSpaceGrid(t *testing.T) {
	space := Space{
		{Name: "window", Kind: KindInt, Min: 10, Max: 30, Step: 10},
		{Name: "invert", Kind: KindBool},
	}
	grid := space.grid()
	if len(grid) != 6 {
		t.Fatalf("grid size = %d, want 6 (3 windows x 2 bools)", len(grid))
	}
	seen := make(map[string]bool)
	for _, p := range grid {
		seen[p.Key()] = true
	}
	if len(seen) != 6 {
		t.Errorf("grid contains duplicates: %d unique of %d", len(seen), len(grid))
	}
	if space.size() != 6 {
		t.Errorf("size() = %d, want 6", space.size())
	}
}

func TestGridSearchRanksAllCandidates(t *testing.T) {
	space := Space{{Name: "window", Kind: KindInt, Min: 10, Max: 30, Step: 10}}

	// Larger window scores better, so ranking is fully determined.
	eval := func(ctx context.Context, p Params) (backtest.Metrics, error) {
		w := float64(p.Int("window", 0))
		return backtest.Metrics{SharpeRatio: w / 10, TotalReturn: w / 100}, nil
	}
	m, err := NewManager(space, eval, testLogger(), WithWorkers(2))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	results, err := m.GridSearch(context.Background())
	if err != nil {
		t.Fatalf("GridSearch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, want := range []int{30, 20, 10} {
		if got := results[i].Params.Int("window", 0); got != want {
			t.Errorf("rank %d window = %d, want %d", i, got, want)
		}
	}
	if results[0].Score != 0.3 {
		t.Errorf("best score = %v, want 0.3", results[0].Score)
	}
}

func TestDefaultRankingPrefersTotalReturn(t *testing.T) {
	space := Space{{Name: "window", Kind: KindInt, Min: 1, Max: 2}}

	// The candidates disagree: window=1 has the better return, window=2 the
	// better Sharpe. The default objective must put the return first; Sharpe
	// only breaks ties.
	eval := func(ctx context.Context, p Params) (backtest.Metrics, error) {
		if p.Int("window", 0) == 1 {
			return backtest.Metrics{TotalReturn: 0.50, SharpeRatio: 0.1}, nil
		}
		return backtest.Metrics{TotalReturn: 0.01, SharpeRatio: 2.0}, nil
	}
	m, err := NewManager(space, eval, testLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	results, err := m.GridSearch(context.Background())
	if err != nil {
		t.Fatalf("GridSearch: %v", err)
	}
	if got := results[0].Params.Int("window", 0); got != 1 {
		t.Fatalf("best window = %d, want 1 (higher total return)", got)
	}
	if results[0].Score != 0.50 {
		t.Errorf("best score = %v, want 0.50", results[0].Score)
	}

	// The Sharpe objective stays available as an explicit override.
	m, err = NewManager(space, eval, testLogger(), WithScore(SharpeScore))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	results, err = m.GridSearch(context.Background())
	if err != nil {
		t.Fatalf("GridSearch: %v", err)
	}
	if got := results[0].Params.Int("window", 0); got != 2 {
		t.Fatalf("best window under SharpeScore = %d, want 2", got)
	}
}

func TestSearchIsolatesFailingCandidates(t *testing.T) {
	space := Space{{Name: "window", Kind: KindInt, Min: 1, Max: 4}}
	eval := func(ctx context.Context, p Params) (backtest.Metrics, error) {
		switch p.Int("window", 0) {
		case 2:
			return backtest.Metrics{}, errors.New("degenerate series")
		case 3:
			panic("evaluator blew up")
		}
		return backtest.Metrics{SharpeRatio: 1}, nil
	}
	m, err := NewManager(space, eval, testLogger(), WithWorkers(1))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	results, err := m.GridSearch(context.Background())
	if err != nil {
		t.Fatalf("GridSearch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 survivors of 4 candidates", len(results))
	}
	for _, c := range results {
		if w := c.Params.Int("window", 0); w == 2 || w == 3 {
			t.Errorf("failed candidate window=%d leaked into ranking", w)
		}
	}
}

func TestSearchAllCandidatesFail(t *testing.T) {
	space := Space{{Name: "window", Kind: KindInt, Min: 1, Max: 2}}
	eval := func(ctx context.Context, p Params) (backtest.Metrics, error) {
		return backtest.Metrics{}, errors.New("no data")
	}
	m, err := NewManager(space, eval, testLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := m.GridSearch(context.Background()); !errors.Is(err, ErrNoResults) {
		t.Fatalf("err = %v, want ErrNoResults", err)
	}
}

func TestRandomSearchDeterministicWithSeed(t *testing.T) {
	space := Space{
		{Name: "threshold", Kind: KindFloat, Min: 0, Max: 1, Step: 0.01},
		{Name: "window", Kind: KindInt, Min: 5, Max: 200},
	}
	eval := func(ctx context.Context, p Params) (backtest.Metrics, error) {
		return backtest.Metrics{SharpeRatio: p.Float("threshold", 0)}, nil
	}
	m, err := NewManager(space, eval, testLogger(), WithWorkers(1))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	a, err := m.RandomSearch(context.Background(), 8, 42)
	if err != nil {
		t.Fatalf("RandomSearch: %v", err)
	}
	b, err := m.RandomSearch(context.Background(), 8, 42)
	if err != nil {
		t.Fatalf("RandomSearch: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed must reproduce identical ranked results")
	}
	if len(a) != 8 {
		t.Errorf("got %d results, want 8", len(a))
	}
}

func TestRandomSearchSmallSpaceFallsBackToGrid(t *testing.T) {
	space := Space{{Name: "invert", Kind: KindBool}}
	eval := func(ctx context.Context, p Params) (backtest.Metrics, error) {
		return backtest.Metrics{SharpeRatio: 1}, nil
	}
	m, err := NewManager(space, eval, testLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	results, err := m.RandomSearch(context.Background(), 100, 1)
	if err != nil {
		t.Fatalf("RandomSearch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want the 2 grid points, never duplicates", len(results))
	}
}

func TestSearchHonorsCancellation(t *testing.T) {
	space := Space{{Name: "window", Kind: KindInt, Min: 1, Max: 100}}
	eval := func(ctx context.Context, p Params) (backtest.Metrics, error) {
		return backtest.Metrics{SharpeRatio: 1}, nil
	}
	m, err := NewManager(space, eval, testLogger(), WithWorkers(1))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.GridSearch(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestParamAccessors(t *testing.T) {
	p := Params{"window": 20, "threshold": 0.5, "invert": true, "method": "voting"}
	if p.Int("window", 0) != 20 {
		t.Error("Int accessor")
	}
	if p.Float("threshold", 0) != 0.5 {
		t.Error("Float accessor")
	}
	if !p.Bool("invert", false) {
		t.Error("Bool accessor")
	}
	if p.String("method", "") != "voting" {
		t.Error("String accessor")
	}
	if p.Int("missing", 7) != 7 {
		t.Error("fallback for missing key")
	}
}
