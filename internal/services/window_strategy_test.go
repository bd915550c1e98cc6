package services

import (
	"testing"

	"saldo/internal/core"
)

func TestWindowStrategies(t *testing.T) {
	monday := core.NewDate(2025, 3, 10)
	sunday := core.NewDate(2025, 3, 9)

	tests := []struct {
		name      string
		strategy  WindowStrategy
		today     core.Date
		wantStart string
		wantEnd   string
	}{
		{"trailing 7 days", TrailingDays{N: 7}, monday, "2025-03-04", "2025-03-10"},
		{"trailing 1 day", TrailingDays{N: 1}, monday, "2025-03-10", "2025-03-10"},
		{"zero size means today", TrailingDays{}, monday, "2025-03-10", "2025-03-10"},
		{"3 business days from monday", TrailingBusinessDays{N: 3}, monday, "2025-03-06", "2025-03-10"},
		{"3 business days from sunday", TrailingBusinessDays{N: 3}, sunday, "2025-03-05", "2025-03-09"},
		{"month to date", MonthToDate{}, monday, "2025-03-01", "2025-03-10"},
		{"month to date on the first", MonthToDate{}, core.NewDate(2025, 4, 1), "2025-04-01", "2025-04-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.strategy.Window(tt.today)
			if got.Start.String() != tt.wantStart || got.End.String() != tt.wantEnd {
				t.Errorf("Window() = %s, want %s..%s", got, tt.wantStart, tt.wantEnd)
			}
			if err := got.Validate(); err != nil {
				t.Errorf("Window() returned an invalid range: %v", err)
			}
		})
	}
}

func TestGetWindowStrategy(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		want    WindowStrategy
		wantErr bool
	}{
		{"days", 5, TrailingDays{N: 5}, false},
		{"business_days", 2, TrailingBusinessDays{N: 2}, false},
		{"month", 99, MonthToDate{}, false},
		{"fortnight", 14, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetWindowStrategy(tt.name, tt.size)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetWindowStrategy() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("GetWindowStrategy() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

type fixedWindow struct{ rng core.DateRange }

func (f fixedWindow) Window(core.Date) core.DateRange { return f.rng }

func TestRegisterWindowStrategy(t *testing.T) {
	rng := core.DateRange{Start: core.NewDate(2025, 1, 1), End: core.NewDate(2025, 1, 31)}
	RegisterWindowStrategy("fixed", func(int) WindowStrategy { return fixedWindow{rng: rng} })
	t.Cleanup(func() { delete(windowStrategies, "fixed") })

	s, err := GetWindowStrategy("fixed", 0)
	if err != nil {
		t.Fatalf("GetWindowStrategy() error = %v", err)
	}
	if got := s.Window(core.Today()); got != rng {
		t.Errorf("Window() = %s, want %s", got, rng)
	}
}
