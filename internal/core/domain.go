package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Revenue      SourceKind = "revenue"
	AreaExpense  SourceKind = "area_expense"
	BankTransfer SourceKind = "bank_transfer"
)

const (
	Expense                MovementCategory = "expense"
	ApplicationDeposit     MovementCategory = "application_deposit"
	ApplicationRedemption  MovementCategory = "application_redemption"
	ApplicationTransferOut MovementCategory = "application_transfer_out"
)

type (
	// SourceKind tells which source table a movement was read from.
	SourceKind string

	// MovementCategory is the ledger meaning of a movement, derived from its label.
	MovementCategory string

	MovementRecord struct {
		Date          Date
		Amount        Money
		CategoryLabel string
		SourceKind    SourceKind
		// Ref is the id of the row in its source, used to drop duplicated revenue rows.
		Ref string
		// ApplicationAccount marks movements booked on the investment account.
		ApplicationAccount bool
	}

	DailyBalanceRecord struct {
		Date           Date      `json:"date"`
		OpeningBalance Money     `json:"opening_balance"`
		ClosingBalance Money     `json:"closing_balance"`
		Description    string    `json:"description,omitempty"`
		Note           string    `json:"note,omitempty"`
		CreatedAt      time.Time `json:"created_at"`
		UpdatedAt      time.Time `json:"updated_at"`
	}

	// ApplicationOpening is a known balance of the investment account on a date.
	ApplicationOpening struct {
		Date   Date   `json:"date"`
		Amount Money  `json:"amount"`
		Note   string `json:"note,omitempty"`
	}

	ObservedBalanceSnapshot struct {
		Date     Date
		BankID   string
		BankName string
		Amount   Money
	}

	BillingTotal struct {
		Date               Date
		AccountID          string
		Amount             Money
		ApplicationAccount bool
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidSourceKind = errors.New("invalid source kind")
)

// AllSourceKinds lists every movement source in the order they are fetched.
func AllSourceKinds() []SourceKind {
	return []SourceKind{Revenue, AreaExpense, BankTransfer}
}

func ParseSourceKind(s string) (SourceKind, error) {
	k := SourceKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case Revenue, AreaExpense, BankTransfer:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSourceKind, s)
}

func (k SourceKind) String() string { return string(k) }

func (c MovementCategory) String() string { return string(c) }

// IsApplication reports whether the category moves money in or out of the investment account.
func (c MovementCategory) IsApplication() bool {
	return c == ApplicationDeposit || c == ApplicationRedemption || c == ApplicationTransferOut
}

func (m MovementRecord) Validate() error {
	if err := m.Date.Validate(); err != nil {
		return err
	}
	switch m.SourceKind {
	case Revenue, AreaExpense, BankTransfer:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSourceKind, m.SourceKind)
	}
	return nil
}

func (r DailyBalanceRecord) Validate() error {
	if err := r.Date.Validate(); err != nil {
		return err
	}
	if len(r.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

func (o ApplicationOpening) Validate() error {
	if err := o.Date.Validate(); err != nil {
		return err
	}
	if len(o.Note) > 200 {
		return errors.New("note too long (max 200 characters)")
	}
	return nil
}

// Variation is the net change the record books for its day.
func (r DailyBalanceRecord) Variation() Money {
	return r.ClosingBalance.Sub(r.OpeningBalance)
}
