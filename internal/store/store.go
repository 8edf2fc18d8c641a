// Package store defines storage interfaces for persisting and retrieving
// domain objects such as bars, indicator series, parameter sets, and
// optimization runs.
package store

import (
	"context"
	"errors"
	"time"

	"hkquant/internal/domain"
	"hkquant/internal/optimize"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end],
	// ordered by timestamp.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols with stored bars.
	ListSymbols(ctx context.Context) ([]string, error)
}

// IndicatorStore persists and retrieves alternative-indicator series aligned
// to the bar timestamp grid.
type IndicatorStore interface {
	// WriteIndicator persists one named series for a symbol.
	WriteIndicator(ctx context.Context, symbol string, series domain.IndicatorSeries) error

	// ReadIndicator returns the named series for a symbol within [start, end].
	ReadIndicator(ctx context.Context, symbol, name string, start, end time.Time) (domain.IndicatorSeries, error)
}

// ParamStore persists named parameter sets and optimization run history. It
// is a superset of what the optimizer needs.
type ParamStore interface {
	optimize.SetStore

	// ListParamSets returns the names of all saved parameter sets.
	ListParamSets(ctx context.Context) ([]string, error)

	// DeleteParamSet removes a saved parameter set.
	DeleteParamSet(ctx context.Context, name string) error

	// ListRuns returns the most recent optimization runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]optimize.Run, error)

	// GetRun retrieves one optimization run by ID.
	GetRun(ctx context.Context, id string) (optimize.Run, error)
}
