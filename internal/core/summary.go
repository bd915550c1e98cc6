package core

import "github.com/shopspring/decimal"

const (
	BankMode    ReconciliationMode = "bank"
	BillingMode ReconciliationMode = "billing"
)

const (
	FailureFetch     FailureKind = "fetch"
	FailureUpsert    FailureKind = "upsert"
	FailureCancelled FailureKind = "cancelled"
)

var (
	// BankTolerance is the largest bank difference still treated as a match.
	BankTolerance = decimal.RequireFromString("0.01")
	// BillingTolerance is tighter: billing figures are expected to match exactly.
	BillingTolerance = decimal.RequireFromString("0.009")
)

type (
	ReconciliationMode string

	FailureKind string

	// DailyMovementSummary holds one day's movement totals. It lives for a single pass.
	DailyMovementSummary struct {
		Date           Date     `json:"date"`
		RevenueTotal   Money    `json:"revenue_total"`
		ExpenseTotal   Money    `json:"expense_total"`
		ApplicationNet Money    `json:"application_net"`
		Warnings       []string `json:"warnings,omitempty"`
	}

	// DateFailure explains why a date was not persisted.
	DateFailure struct {
		Date     Date        `json:"date"`
		Kind     FailureKind `json:"kind"`
		Reason   string      `json:"reason"`
		Terminal bool        `json:"terminal"`
	}

	BankBalance struct {
		BankID   string `json:"bank_id"`
		BankName string `json:"bank_name,omitempty"`
		AsOf     Date   `json:"as_of"`
		Amount   Money  `json:"amount"`
	}

	ReconciliationRow struct {
		Date          Date               `json:"date"`
		Mode          ReconciliationMode `json:"mode"`
		ComputedTotal Money              `json:"computed_total"`
		ObservedTotal Money              `json:"observed_total"`
		Difference    Money              `json:"difference"`
		Divergent     bool               `json:"divergent"`
		// LedgerMissing is set when no balance record exists for the date.
		LedgerMissing bool          `json:"ledger_missing,omitempty"`
		Banks         []BankBalance `json:"banks,omitempty"`
	}
)

// Net is the day's effect on the balance.
func (s DailyMovementSummary) Net() Money {
	return s.RevenueTotal.Sub(s.ExpenseTotal).Add(s.ApplicationNet)
}

// Closing applies the summary to an opening balance.
func (s DailyMovementSummary) Closing(opening Money) Money {
	return opening.Add(s.RevenueTotal).Sub(s.ExpenseTotal).Add(s.ApplicationNet)
}

func (m ReconciliationMode) Tolerance() decimal.Decimal {
	if m == BillingMode {
		return BillingTolerance
	}
	return BankTolerance
}

func ParseReconciliationMode(s string) (ReconciliationMode, bool) {
	switch ReconciliationMode(s) {
	case BankMode:
		return BankMode, true
	case BillingMode:
		return BillingMode, true
	}
	return "", false
}

// NewReconciliationRow fills in difference = observed - computed and the divergence flag.
func NewReconciliationRow(date Date, mode ReconciliationMode, computed, observed Money) ReconciliationRow {
	diff := observed.Sub(computed)
	return ReconciliationRow{
		Date:          date,
		Mode:          mode,
		ComputedTotal: computed,
		ObservedTotal: observed,
		Difference:    diff,
		Divergent:     diff.Exceeds(mode.Tolerance()),
	}
}
