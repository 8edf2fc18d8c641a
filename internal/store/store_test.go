package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"hkquant/internal/domain"
	"hkquant/internal/optimize"
)

func sampleBars(symbol string, n int) []domain.Bar {
	base := time.Date(2024, 3, 4, 16, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		px := 300 + float64(i)
		bars[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: base.AddDate(0, 0, i),
			Open:      px - 1,
			High:      px + 2,
			Low:       px - 2,
			Close:     px,
			Volume:    1_000_000,
			Turnover:  px * 1_000_000,
		}
	}
	return bars
}

func TestParquetBarRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())

	bars := sampleBars("0700.HK", 5)
	if err := s.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := s.ReadBars(ctx, "0700.HK", bars[0].Timestamp, bars[4].Timestamp)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d bars, want 5", len(got))
	}
	for i := range got {
		if !got[i].Timestamp.Equal(bars[i].Timestamp) || got[i].Close != bars[i].Close {
			t.Errorf("bar %d = %+v, want %+v", i, got[i], bars[i])
		}
	}

	symbols, err := s.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 1 || symbols[0] != "0700.HK" {
		t.Errorf("symbols = %v, want [0700.HK]", symbols)
	}
}

func TestParquetBarMergeDeduplicates(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())

	bars := sampleBars("0005.HK", 3)
	if err := s.WriteBars(ctx, bars); err != nil {
		t.Fatalf("first write: %v", err)
	}
	// Rewrite the middle bar with a corrected close.
	bars[1].Close = 999
	if err := s.WriteBars(ctx, bars[1:2]); err != nil {
		t.Fatalf("second write: %v", err)
	}

	got, err := s.ReadBars(ctx, "0005.HK", bars[0].Timestamp, bars[2].Timestamp)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d bars after merge, want 3", len(got))
	}
	if got[1].Close != 999 {
		t.Errorf("merged close = %v, want the rewritten 999", got[1].Close)
	}
}

func TestParquetReadMissingSymbol(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	got, err := s.ReadBars(context.Background(), "9999.HK",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d bars for an unknown symbol, want 0", len(got))
	}
}

func TestParquetIndicatorRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())

	base := time.Date(2024, 3, 4, 16, 0, 0, 0, time.UTC)
	series := domain.IndicatorSeries{
		Name: "southbound_flow",
		Points: []domain.IndicatorPoint{
			{Timestamp: base, Value: 1.2},
			{Timestamp: base.AddDate(0, 0, 1), Value: -0.4},
			{Timestamp: base.AddDate(0, 0, 2), Value: 0.9},
		},
	}
	if err := s.WriteIndicator(ctx, "0700.HK", series); err != nil {
		t.Fatalf("WriteIndicator: %v", err)
	}
	// A second series for the same symbol must not clobber the first.
	other := domain.IndicatorSeries{
		Name:   "short_interest",
		Points: []domain.IndicatorPoint{{Timestamp: base, Value: 0.05}},
	}
	if err := s.WriteIndicator(ctx, "0700.HK", other); err != nil {
		t.Fatalf("WriteIndicator second series: %v", err)
	}

	got, err := s.ReadIndicator(ctx, "0700.HK", "southbound_flow", base, base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("ReadIndicator: %v", err)
	}
	if len(got.Points) != 3 {
		t.Fatalf("got %d points, want 3", len(got.Points))
	}
	if got.Points[1].Value != -0.4 {
		t.Errorf("point 1 value = %v, want -0.4", got.Points[1].Value)
	}
}

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "hkquant.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteParamSets(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	params := optimize.Params{"window": 20.0, "threshold": 0.03, "method": "voting"}
	if err := s.SaveParamSet(ctx, "tencent_momentum", params); err != nil {
		t.Fatalf("SaveParamSet: %v", err)
	}
	got, err := s.LoadParamSet(ctx, "tencent_momentum")
	if err != nil {
		t.Fatalf("LoadParamSet: %v", err)
	}
	if got.Float("window", 0) != 20 || got.String("method", "") != "voting" {
		t.Errorf("loaded params = %v", got)
	}

	// Overwrite under the same name.
	params["window"] = 50.0
	if err := s.SaveParamSet(ctx, "tencent_momentum", params); err != nil {
		t.Fatalf("SaveParamSet overwrite: %v", err)
	}
	got, err = s.LoadParamSet(ctx, "tencent_momentum")
	if err != nil {
		t.Fatalf("LoadParamSet after overwrite: %v", err)
	}
	if got.Float("window", 0) != 50 {
		t.Errorf("window = %v after overwrite, want 50", got.Float("window", 0))
	}

	names, err := s.ListParamSets(ctx)
	if err != nil {
		t.Fatalf("ListParamSets: %v", err)
	}
	if len(names) != 1 || names[0] != "tencent_momentum" {
		t.Errorf("names = %v", names)
	}

	if err := s.DeleteParamSet(ctx, "tencent_momentum"); err != nil {
		t.Fatalf("DeleteParamSet: %v", err)
	}
	if _, err := s.LoadParamSet(ctx, "tencent_momentum"); !errors.Is(err, ErrNotFound) {
		t.Errorf("load after delete = %v, want ErrNotFound", err)
	}
	if err := s.DeleteParamSet(ctx, "tencent_momentum"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	base := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := optimize.Run{
			ID:        string(rune('a' + i)),
			Method:    "grid",
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Elapsed:   "1.5s",
			Evaluated: 27,
			Failed:    i,
			Best: []optimize.Candidate{
				{Params: optimize.Params{"window": 20.0}, Score: float64(i)},
			},
		}
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun %d: %v", i, err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("runs not newest first: %s, %s", runs[0].ID, runs[1].ID)
	}

	got, err := s.GetRun(ctx, "a")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Evaluated != 27 || len(got.Best) != 1 {
		t.Errorf("run a = %+v", got)
	}
	if !got.StartedAt.Equal(base) {
		t.Errorf("StartedAt = %s, want %s", got.StartedAt, base)
	}

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun missing = %v, want ErrNotFound", err)
	}
}
