package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"saldo/internal/core"
	"saldo/internal/log"
	"saldo/internal/store"
)

// ImportDescription is stored on records written by an administrative import.
const ImportDescription = "Administrative import"

// ImportRow is one raw balance row as supplied by an operator.
type ImportRow struct {
	Date    string    `json:"date"`
	Opening RawAmount `json:"opening"`
	Closing RawAmount `json:"closing"`
	Note    string    `json:"note,omitempty"`
}

// RawAmount keeps an amount as typed so that "1.234,56" survives until parsing.
// It decodes from a JSON string or number.
type RawAmount string

func (a *RawAmount) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = RawAmount(s)
		return nil
	}
	*a = RawAmount(data)
	return nil
}

type ImportReport struct {
	Total    int      `json:"total"`
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// Success reports whether every row was imported.
func (r ImportReport) Success() bool { return r.Failed == 0 }

// Importer writes externally supplied daily balances. Imported records become
// candidates for the anchor, so a later recalculation starts from them.
type Importer struct {
	balances store.BalanceWriter
	logger   *log.Logger
}

func NewImporter(balances store.BalanceWriter, logger *log.Logger) *Importer {
	return &Importer{balances: balances, logger: logger.OrDiscard().WithComponent(log.ComponentImport)}
}

// Import upserts every valid row and keeps going past bad ones.
func (im *Importer) Import(ctx context.Context, rows []ImportRow) ImportReport {
	rep := ImportReport{Total: len(rows)}
	for i, row := range rows {
		rec, err := row.record()
		if err == nil {
			err = im.balances.UpsertBalanceRecord(ctx, rec, true)
			if err != nil {
				err = &core.StoreUpsertError{Date: rec.Date, Err: err}
			}
		}
		if err != nil {
			rep.Failed++
			rep.Errors = append(rep.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			im.logger.WarnContext(ctx, "Import row rejected", "row", i+1, log.FieldDate, row.Date, log.FieldError, err)
			continue
		}
		rep.Imported++
	}
	im.logger.InfoContext(ctx, "Import finished", "total", rep.Total, "imported", rep.Imported, "failed", rep.Failed)
	return rep
}

func (row ImportRow) record() (core.DailyBalanceRecord, error) {
	d, err := core.ParseDate(row.Date)
	if err != nil {
		return core.DailyBalanceRecord{}, fmt.Errorf("invalid date %q", row.Date)
	}
	opening, err := parseOptionalMoney(row.Opening)
	if err != nil {
		return core.DailyBalanceRecord{}, fmt.Errorf("invalid opening for %s: %w", d, err)
	}
	closing, err := parseOptionalMoney(row.Closing)
	if err != nil {
		return core.DailyBalanceRecord{}, fmt.Errorf("invalid closing for %s: %w", d, err)
	}
	rec := core.DailyBalanceRecord{
		Date:           d,
		OpeningBalance: opening,
		ClosingBalance: closing,
		Description:    ImportDescription,
		Note:           strings.TrimSpace(row.Note),
	}
	return rec, rec.Validate()
}

// Blank amounts import as zero.
func parseOptionalMoney(a RawAmount) (core.Money, error) {
	if strings.TrimSpace(string(a)) == "" {
		return core.Money{}, nil
	}
	return core.ParseMoney(string(a))
}
