package domain

import (
	"errors"
	"testing"
	"time"
)

func TestValidateSeries(t *testing.T) {
	base := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	bar := func(offset int) Bar {
		return Bar{Symbol: "0700.HK", Timestamp: base.AddDate(0, 0, offset), Close: 300}
	}

	tests := []struct {
		name    string
		bars    []Bar
		wantErr error
	}{
		{"valid ascending", []Bar{bar(0), bar(1), bar(2)}, nil},
		{"empty", nil, ErrEmptySeries},
		{"duplicate timestamp", []Bar{bar(0), bar(0)}, ErrDuplicateTimestamp},
		{"descending", []Bar{bar(2), bar(1)}, ErrUnorderedSeries},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSeries(tt.bars)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateSeries returned unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSeries error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPositionDerivedValues(t *testing.T) {
	long := Position{Symbol: "0005.HK", Quantity: 400, EntryPrice: 60, CurrentPrice: 66, Side: SideLong}
	if got := long.MarketValue(); got != 400*66 {
		t.Errorf("MarketValue = %v, want %v", got, 400*66)
	}
	if got := long.UnrealizedPnL(); got != 400*6 {
		t.Errorf("UnrealizedPnL = %v, want %v", got, 400*6)
	}
	if got := long.UnrealizedPnLPct(); got != 0.1 {
		t.Errorf("UnrealizedPnLPct = %v, want 0.1", got)
	}

	short := Position{Symbol: "0005.HK", Quantity: 400, EntryPrice: 60, CurrentPrice: 66, Side: SideShort}
	if got := short.UnrealizedPnL(); got != -400*6 {
		t.Errorf("short UnrealizedPnL = %v, want %v", got, -400*6)
	}

	empty := Position{}
	if got := empty.UnrealizedPnLPct(); got != 0 {
		t.Errorf("zero-notional UnrealizedPnLPct = %v, want 0", got)
	}
}

func TestTradeClosed(t *testing.T) {
	tr := Trade{Symbol: "0700.HK", EntryTime: time.Now()}
	if tr.Closed() {
		t.Error("trade with nil ExitTime should not be closed")
	}
	exit := tr.EntryTime.Add(24 * time.Hour)
	tr.ExitTime = &exit
	if !tr.Closed() {
		t.Error("trade with ExitTime should be closed")
	}
	if !tr.EntryTime.Before(*tr.ExitTime) {
		t.Error("closed trade must have EntryTime < ExitTime")
	}
}

func TestIndicatorSeriesAt(t *testing.T) {
	ts := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	s := IndicatorSeries{
		Name: "visitor_arrivals",
		Points: []IndicatorPoint{
			{Timestamp: ts, Value: 1.5},
			{Timestamp: ts.AddDate(0, 0, 1), Value: 2.5},
		},
	}
	if v, ok := s.At(ts.AddDate(0, 0, 1)); !ok || v != 2.5 {
		t.Errorf("At = (%v, %v), want (2.5, true)", v, ok)
	}
	if _, ok := s.At(ts.AddDate(0, 0, 7)); ok {
		t.Error("At should report false for unaligned timestamp")
	}
}
