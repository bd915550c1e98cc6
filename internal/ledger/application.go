package ledger

import (
	"context"
	"errors"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"saldo/internal/classifier"
	"saldo/internal/core"
	"saldo/internal/log"
	"saldo/internal/store"
)

// ApplicationFlow is the direction of an investment account movement.
type ApplicationFlow string

const (
	// FlowDeposit moves money from the operating account into the investment.
	FlowDeposit ApplicationFlow = "deposit"
	// FlowRedemption brings money back from the investment.
	FlowRedemption ApplicationFlow = "redemption"
)

// ApplicationMovement is one statement line with the balance after it.
type ApplicationMovement struct {
	Date         core.Date       `json:"date"`
	Flow         ApplicationFlow `json:"flow"`
	Amount       core.Money      `json:"amount"`
	Label        string          `json:"label"`
	Source       core.SourceKind `json:"source"`
	Ref          string          `json:"ref,omitempty"`
	BalanceAfter core.Money      `json:"balance_after"`
}

// ApplicationDay totals one date of the statement that had movement.
type ApplicationDay struct {
	Date      core.Date  `json:"date"`
	Deposited core.Money `json:"deposited"`
	Redeemed  core.Money `json:"redeemed"`
	Net       core.Money `json:"net"`
	Closing   core.Money `json:"closing"`
}

// ApplicationStatement is the investment account over a period. BaseDate is
// the recorded opening the balances are carried from, nil when none exists
// and the statement starts from zero at Start.
type ApplicationStatement struct {
	Start            core.Date             `json:"start"`
	End              core.Date             `json:"end"`
	BaseDate         *core.Date            `json:"base_date"`
	OpeningBalance   core.Money            `json:"opening_balance"`
	ClosingBalance   core.Money            `json:"closing_balance"`
	TotalDeposits    core.Money            `json:"total_deposits"`
	TotalRedemptions core.Money            `json:"total_redemptions"`
	Movements        []ApplicationMovement `json:"movements"`
	Days             []ApplicationDay      `json:"days"`
}

// StatementBuilder assembles the investment account statement from the
// same movements the daily ledger reads.
type StatementBuilder struct {
	source     store.ApplicationSource
	classifier *classifier.Classifier
	logger     *log.Logger
}

func NewStatementBuilder(source store.ApplicationSource, c *classifier.Classifier, logger *log.Logger) *StatementBuilder {
	if c == nil {
		c = classifier.New()
	}
	return &StatementBuilder{
		source:     source,
		classifier: c,
		logger:     logger.OrDiscard().WithComponent(log.ComponentApplication),
	}
}

// Statement carries the earliest recorded opening forward to rng.Start and
// lists every deposit and redemption inside rng with the running balance.
func (b *StatementBuilder) Statement(ctx context.Context, rng core.DateRange) (ApplicationStatement, error) {
	if err := rng.Validate(); err != nil {
		return ApplicationStatement{}, err
	}
	st := ApplicationStatement{Start: rng.Start, End: rng.End, Movements: []ApplicationMovement{}, Days: []ApplicationDay{}}

	base, err := b.source.FetchEarliestApplicationOpening(ctx)
	if err != nil {
		return st, &core.StoreFetchError{Op: "application opening", Date: rng.Start, Err: err}
	}
	from, balance := rng.Start, core.Money{}
	if base != nil {
		d := base.Date
		st.BaseDate = &d
		from, balance = base.Date, base.Amount
	} else {
		b.logger.WarnContext(ctx, "No application opening recorded, starting from zero", log.FieldStart, rng.Start.String())
	}
	if from.After(rng.End.Time) {
		st.OpeningBalance, st.ClosingBalance = balance, balance
		return st, nil
	}

	all, err := b.fetch(ctx, core.DateRange{Start: from, End: rng.End})
	if err != nil {
		return st, err
	}

	for _, m := range all {
		if !m.Date.Before(rng.Start.Time) {
			continue
		}
		balance = apply(balance, m)
	}
	st.OpeningBalance = balance

	for _, m := range all {
		if m.Date.Before(rng.Start.Time) {
			continue
		}
		balance = apply(balance, m)
		m.BalanceAfter = balance
		st.Movements = append(st.Movements, m)

		switch m.Flow {
		case FlowDeposit:
			st.TotalDeposits = st.TotalDeposits.Add(m.Amount)
		case FlowRedemption:
			st.TotalRedemptions = st.TotalRedemptions.Add(m.Amount)
		}

		n := len(st.Days)
		if n == 0 || !st.Days[n-1].Date.SameDay(m.Date) {
			st.Days = append(st.Days, ApplicationDay{Date: m.Date})
			n++
		}
		day := &st.Days[n-1]
		if m.Flow == FlowDeposit {
			day.Deposited = day.Deposited.Add(m.Amount)
		} else {
			day.Redeemed = day.Redeemed.Add(m.Amount)
		}
		day.Net = day.Deposited.Sub(day.Redeemed)
		day.Closing = balance
	}
	st.ClosingBalance = balance

	b.logger.DebugContext(ctx, "Application statement built",
		log.FieldStart, rng.Start.String(), log.FieldEnd, rng.End.String(),
		"movements", len(st.Movements), "closing", balance.String())
	return st, nil
}

// fetch reads every source kind concurrently and returns the investment
// movements in date order.
func (b *StatementBuilder) fetch(ctx context.Context, rng core.DateRange) ([]ApplicationMovement, error) {
	kinds := core.AllSourceKinds()
	fetched := make([][]core.MovementRecord, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			ms, err := b.source.FetchMovementRange(gctx, rng, kind)
			if err != nil {
				return &core.StoreFetchError{Op: "movements " + string(kind), Date: rng.Start, Err: err}
			}
			fetched[i] = ms
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var fetchErr *core.StoreFetchError
		if errors.As(err, &fetchErr) {
			return nil, fetchErr
		}
		return nil, err
	}

	var out []ApplicationMovement
	seenRevenue := make(map[string]struct{})
	for _, ms := range fetched {
		for _, m := range ms {
			if m.SourceKind == core.Revenue && m.Ref != "" {
				if _, dup := seenRevenue[m.Ref]; dup {
					continue
				}
				seenRevenue[m.Ref] = struct{}{}
			}
			if am, ok := b.classify(m); ok {
				out = append(out, am)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out, nil
}

// classify keeps only movements that touch the investment account. Revenue
// on the application account is a redemption unless its label says the
// money went in; expenses and transfers count only when their label names
// the investment.
func (b *StatementBuilder) classify(m core.MovementRecord) (ApplicationMovement, bool) {
	if m.Amount.IsZero() {
		return ApplicationMovement{}, false
	}
	category := b.classifier.Classify(m.CategoryLabel)
	var flow ApplicationFlow
	switch m.SourceKind {
	case core.Revenue:
		if !m.ApplicationAccount {
			return ApplicationMovement{}, false
		}
		flow = FlowRedemption
		if category == core.ApplicationDeposit || category == core.ApplicationTransferOut {
			flow = FlowDeposit
		}
	case core.AreaExpense, core.BankTransfer:
		switch category {
		case core.ApplicationRedemption:
			flow = FlowRedemption
		case core.ApplicationDeposit, core.ApplicationTransferOut:
			flow = FlowDeposit
		default:
			return ApplicationMovement{}, false
		}
	default:
		return ApplicationMovement{}, false
	}

	label := strings.TrimSpace(m.CategoryLabel)
	if label == "" {
		label = "Resgate aplicação"
		if flow == FlowDeposit {
			label = "Transferência aplicação"
		}
	}
	return ApplicationMovement{Date: m.Date, Flow: flow, Amount: m.Amount, Label: label, Source: m.SourceKind, Ref: m.Ref}, true
}

func apply(balance core.Money, m ApplicationMovement) core.Money {
	if m.Flow == FlowRedemption {
		return balance.Sub(m.Amount)
	}
	return balance.Add(m.Amount)
}
