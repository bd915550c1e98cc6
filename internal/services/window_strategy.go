// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for the scheduler's recalculation
// window. Each strategy decides which trailing dates a periodic run covers.

package services

import (
	"fmt"
	"sort"

	"saldo/internal/core"
)

// WindowStrategy picks the dates a scheduled run recalculates.
type WindowStrategy interface {
	// Window returns the range to recalculate when the run happens on today.
	Window(today core.Date) core.DateRange
}

// TrailingDays covers the last N calendar days, today included.
type TrailingDays struct{ N int }

func (s TrailingDays) Window(today core.Date) core.DateRange {
	n := max(s.N, 1)
	return core.DateRange{Start: today.AddDays(-(n - 1)), End: today}
}

// TrailingBusinessDays starts at the Nth most recent business day. Weekend
// days in between are still recalculated since the chain must stay unbroken.
type TrailingBusinessDays struct{ N int }

func (s TrailingBusinessDays) Window(today core.Date) core.DateRange {
	days := core.LastBusinessDays(max(s.N, 1), today)
	return core.DateRange{Start: days[len(days)-1], End: today}
}

// MonthToDate covers the current month up to today.
type MonthToDate struct{}

func (MonthToDate) Window(today core.Date) core.DateRange {
	return core.DateRange{Start: core.NewDate(today.Year(), today.Month(), 1), End: today}
}

// windowStrategies maps configuration names to strategy constructors.
var windowStrategies = map[string]func(size int) WindowStrategy{
	"days":          func(n int) WindowStrategy { return TrailingDays{N: n} },
	"business_days": func(n int) WindowStrategy { return TrailingBusinessDays{N: n} },
	"month":         func(int) WindowStrategy { return MonthToDate{} },
}

// GetWindowStrategy returns the strategy registered under name.
func GetWindowStrategy(name string, size int) (WindowStrategy, error) {
	build, ok := windowStrategies[name]
	if !ok {
		return nil, fmt.Errorf("unknown window strategy: %s (want one of %v)", name, WindowStrategyNames())
	}
	return build(size), nil
}

// RegisterWindowStrategy adds or replaces a named strategy.
func RegisterWindowStrategy(name string, build func(size int) WindowStrategy) {
	windowStrategies[name] = build
}

func WindowStrategyNames() []string {
	names := make([]string, 0, len(windowStrategies))
	for n := range windowStrategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
