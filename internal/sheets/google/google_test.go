package google

import (
	"context"
	"errors"
	"testing"
	"time"

	"saldo/internal/core"
)

type fakeSource struct {
	sheets map[string][][]any
	reads  int
	err    error
}

func (f *fakeSource) Values(_ context.Context, _ string, a1 string) ([][]any, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	return f.sheets[a1], nil
}

func newFakeClient(src *fakeSource) *Client {
	return newClient(src, Options{SpreadsheetID: "sheet-id", BankSheetName: "Bancos", BillingSheetName: "Faturamento"})
}

func TestFetchObservedBalances_FiltersRange(t *testing.T) {
	src := &fakeSource{sheets: map[string][][]any{
		"Bancos!A:Z": {
			{"Data", "Banco", "Saldo"},
			{"2025-03-09", "BB", "1"},
			{"2025-03-10", "BB", "2"},
			{"2025-03-12", "BB", "3"},
		},
	}}
	c := newFakeClient(src)
	rng := core.DateRange{Start: core.NewDate(2025, 3, 10), End: core.NewDate(2025, 3, 11)}

	snaps, err := c.FetchObservedBalances(context.Background(), rng)
	if err != nil {
		t.Fatalf("FetchObservedBalances() error = %v", err)
	}
	if len(snaps) != 1 || snaps[0].Amount.String() != "2.00" {
		t.Errorf("snapshots = %+v", snaps)
	}
}

func TestFetchBillingTotals(t *testing.T) {
	src := &fakeSource{sheets: map[string][][]any{
		"Faturamento!A:Z": {
			{"Data", "Conta", "Valor"},
			{"2025-03-10", "Mensalidades", "1000"},
		},
	}}
	c := newFakeClient(src)
	d := core.NewDate(2025, 3, 10)

	totals, err := c.FetchBillingTotals(context.Background(), core.DateRange{Start: d, End: d})
	if err != nil {
		t.Fatalf("FetchBillingTotals() error = %v", err)
	}
	if len(totals) != 1 || totals[0].AccountID != "Mensalidades" {
		t.Errorf("totals = %+v", totals)
	}
}

func TestReadSheet_CachesUntilExpiry(t *testing.T) {
	src := &fakeSource{sheets: map[string][][]any{"Bancos!A:Z": {{"Data", "Banco", "Saldo"}}}}
	c := newFakeClient(src)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()
	rng := core.DateRange{Start: core.NewDate(2025, 3, 10), End: core.NewDate(2025, 3, 10)}

	for i := 0; i < 3; i++ {
		if _, err := c.FetchObservedBalances(ctx, rng); err != nil {
			t.Fatal(err)
		}
	}
	if src.reads != 1 {
		t.Errorf("reads = %d, want 1 while cached", src.reads)
	}

	now = now.Add(DefaultCacheTTL + time.Second)
	if _, err := c.FetchObservedBalances(ctx, rng); err != nil {
		t.Fatal(err)
	}
	if src.reads != 2 {
		t.Errorf("reads = %d, want 2 after expiry", src.reads)
	}

	c.InvalidateCache()
	if _, err := c.FetchObservedBalances(ctx, rng); err != nil {
		t.Fatal(err)
	}
	if src.reads != 3 {
		t.Errorf("reads = %d, want 3 after invalidation", src.reads)
	}
}

func TestReadSheet_Errors(t *testing.T) {
	c := newFakeClient(&fakeSource{err: errors.New("quota exceeded")})
	d := core.NewDate(2025, 3, 10)
	if _, err := c.FetchBillingTotals(context.Background(), core.DateRange{Start: d, End: d}); err == nil {
		t.Error("expected the API error to surface")
	}

	uninit := &Client{}
	if _, err := uninit.FetchObservedBalances(context.Background(), core.DateRange{Start: d, End: d}); err == nil {
		t.Error("expected an error from an uninitialized client")
	}
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Options{}); err == nil {
		t.Error("expected error for a missing spreadsheet id")
	}
	if _, err := New(ctx, Options{SpreadsheetID: "x"}); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := New(ctx, Options{SpreadsheetID: "x", OAuthClientJSON: "{}"}); err == nil {
		t.Error("expected error without an OAuth token")
	}
	if _, err := New(ctx, Options{SpreadsheetID: "x", ServiceAccountFile: "/non/existent/sa.json"}); err == nil {
		t.Error("expected error for a missing service account file")
	}
}

func TestReadSecret(t *testing.T) {
	b, err := readSecret(" {\"a\":1} ", "/ignored")
	if err != nil || string(b) != `{"a":1}` {
		t.Errorf("readSecret() = %q, %v", b, err)
	}
	b, err = readSecret("", "")
	if err != nil || b != nil {
		t.Errorf("readSecret() = %q, %v, want nothing", b, err)
	}
}
