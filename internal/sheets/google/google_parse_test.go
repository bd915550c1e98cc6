package google

import (
	"testing"
)

func TestParseBankSnapshots(t *testing.T) {
	values := [][]any{
		{"Data", "Código", "Banco", "Saldo"},
		{"10/03/2025", "001", "Banco do Brasil", "R$ 6.000,00"},
		{"2025-03-10", "341", "Itaú", 4050.5},
		{"", "", "", ""},
		{"not a date", "104", "Caixa", "1,00"},
		{"2025-03-11", "104", "Caixa", "abc"},
	}
	snaps, skipped, err := parseBankSnapshots(values)
	if err != nil {
		t.Fatalf("parse err: %v", err)
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(snaps))
	}
	if snaps[0].BankID != "001" || snaps[0].Amount.String() != "6000.00" || snaps[0].Date.String() != "2025-03-10" {
		t.Errorf("first snapshot = %+v", snaps[0])
	}
	if snaps[1].BankName != "Itaú" || snaps[1].Amount.String() != "4050.50" {
		t.Errorf("second snapshot = %+v", snaps[1])
	}
}

func TestParseBankSnapshots_NameOnly(t *testing.T) {
	values := [][]any{
		{"date", "BANK", "balance"},
		{"2025-03-10", "Nubank", "10"},
	}
	snaps, _, err := parseBankSnapshots(values)
	if err != nil {
		t.Fatalf("parse err: %v", err)
	}
	if len(snaps) != 1 || snaps[0].BankID != "Nubank" {
		t.Errorf("snapshots = %+v, want the bank name as id", snaps)
	}
}

func TestParseBankSnapshots_UnexpectedHeader(t *testing.T) {
	_, _, err := parseBankSnapshots([][]any{{"Quando", "Quanto"}})
	if err == nil {
		t.Fatal("expected a header error")
	}
}

func TestParseBillingTotals(t *testing.T) {
	values := [][]any{
		{"Data", "Conta", "Valor", "Aplicação"},
		{"2025-03-10", "Mensalidades", "1.000,00", ""},
		{"2025-03-10", "Conta Aplicação", "500", ""},
		{"2025-03-10", "Reserva", "20", "sim"},
		{"31/02/2025", "Mensalidades", "1", ""},
	}
	totals, skipped, err := parseBillingTotals(values)
	if err != nil {
		t.Fatalf("parse err: %v", err)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(totals) != 3 {
		t.Fatalf("got %d totals, want 3", len(totals))
	}
	if totals[0].ApplicationAccount || totals[0].Amount.String() != "1000.00" {
		t.Errorf("first total = %+v", totals[0])
	}
	if !totals[1].ApplicationAccount {
		t.Error("account named after the application should be flagged")
	}
	if !totals[2].ApplicationAccount {
		t.Error("flag column should mark the application account")
	}
}

func TestIndexOf(t *testing.T) {
	headers := []string{" data ", "CÓDIGO", "Saldo"}
	tests := []struct {
		aliases []string
		want    int
	}{
		{[]string{"Data"}, 0},
		{[]string{"Codigo"}, 1},
		{[]string{"Balance", "Saldo"}, 2},
		{[]string{"Valor"}, -1},
	}
	for _, tt := range tests {
		if got := indexOf(headers, tt.aliases...); got != tt.want {
			t.Errorf("indexOf(%v) = %d, want %d", tt.aliases, got, tt.want)
		}
	}
}
