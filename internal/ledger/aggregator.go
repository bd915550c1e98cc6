// Package ledger computes daily balances from movements and keeps the chain of
// daily records continuous.
package ledger

import (
	"fmt"

	"saldo/internal/classifier"
	"saldo/internal/core"
)

// Aggregator sums one day's movements into a DailyMovementSummary.
type Aggregator struct {
	classifier *classifier.Classifier
}

func NewAggregator(c *classifier.Classifier) *Aggregator {
	if c == nil {
		c = classifier.New()
	}
	return &Aggregator{classifier: c}
}

// Aggregate is pure: movements dated on other days are ignored, revenue rows
// sharing a Ref are counted once and Money rounds after every addition.
func (a *Aggregator) Aggregate(date core.Date, movements []core.MovementRecord) core.DailyMovementSummary {
	sum := core.DailyMovementSummary{Date: date}
	seenRevenue := make(map[string]struct{})

	for _, m := range movements {
		if !m.Date.SameDay(date) {
			continue
		}
		switch m.SourceKind {
		case core.Revenue:
			if m.Ref != "" {
				if _, dup := seenRevenue[m.Ref]; dup {
					continue
				}
				seenRevenue[m.Ref] = struct{}{}
			}
			if !m.ApplicationAccount {
				sum.RevenueTotal = sum.RevenueTotal.Add(m.Amount)
				continue
			}
			a.addApplicationRevenue(&sum, m)
		case core.AreaExpense, core.BankTransfer:
			a.addClassified(&sum, m)
		default:
			sum.Warnings = append(sum.Warnings, fmt.Sprintf("movement %s has unknown source kind %q and was skipped", describe(m), m.SourceKind))
		}
	}
	return sum
}

func (a *Aggregator) addClassified(sum *core.DailyMovementSummary, m core.MovementRecord) {
	res := a.classifier.ClassifyDetailed(m.CategoryLabel)
	if res.Ambiguous {
		sum.Warnings = append(sum.Warnings, fmt.Sprintf("movement %s has no recognizable category label and was counted as an expense", describe(m)))
	}
	switch res.Category {
	case core.ApplicationRedemption:
		sum.ApplicationNet = sum.ApplicationNet.Add(m.Amount)
	case core.ApplicationDeposit, core.ApplicationTransferOut:
		sum.ApplicationNet = sum.ApplicationNet.Sub(m.Amount)
	default:
		sum.ExpenseTotal = sum.ExpenseTotal.Add(m.Amount)
	}
}

// Revenue booked on the application account is money coming back from or going
// into the investment, never operating revenue.
func (a *Aggregator) addApplicationRevenue(sum *core.DailyMovementSummary, m core.MovementRecord) {
	res := a.classifier.ClassifyDetailed(m.CategoryLabel)
	switch res.Category {
	case core.ApplicationDeposit, core.ApplicationTransferOut:
		sum.ApplicationNet = sum.ApplicationNet.Sub(m.Amount)
	case core.ApplicationRedemption:
		sum.ApplicationNet = sum.ApplicationNet.Add(m.Amount)
	default:
		if res.Ambiguous {
			sum.Warnings = append(sum.Warnings, fmt.Sprintf("application account revenue %s has no recognizable category label and was counted as a redemption", describe(m)))
		}
		sum.ApplicationNet = sum.ApplicationNet.Add(m.Amount)
	}
}

func describe(m core.MovementRecord) string {
	if m.Ref != "" {
		return fmt.Sprintf("%s/%s", m.SourceKind, m.Ref)
	}
	return fmt.Sprintf("%s on %s (%s)", m.SourceKind, m.Date, m.Amount)
}
