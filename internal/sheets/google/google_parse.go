package google

import (
	"fmt"
	"strings"

	"saldo/internal/classifier"
	"saldo/internal/core"
)

// Header aliases, compared after accent and case folding.
var (
	dateHeaders        = []string{"Data", "Date"}
	bankIDHeaders      = []string{"Codigo", "Banco ID", "Bank ID"}
	bankNameHeaders    = []string{"Banco", "Bank"}
	balanceHeaders     = []string{"Saldo", "Balance"}
	accountHeaders     = []string{"Conta", "Account"}
	amountHeaders      = []string{"Valor", "Total", "Amount"}
	applicationHeaders = []string{"Aplicacao", "Application"}
)

// parseBankSnapshots converts the bank sheet matrix into snapshots. The first
// row is the header. Rows without a readable date or amount are skipped and
// counted.
func parseBankSnapshots(values [][]any) ([]core.ObservedBalanceSnapshot, int, error) {
	if len(values) == 0 {
		return nil, 0, nil
	}
	headers := toStrings(values[0])
	colDate := indexOf(headers, dateHeaders...)
	colID := indexOf(headers, bankIDHeaders...)
	colName := indexOf(headers, bankNameHeaders...)
	colBalance := indexOf(headers, balanceHeaders...)
	if colDate == -1 || colBalance == -1 || (colID == -1 && colName == -1) {
		return nil, 0, fmt.Errorf("unexpected bank sheet header: want Data, Banco and Saldo; got headers=%v", headers)
	}

	var (
		out     []core.ObservedBalanceSnapshot
		skipped int
	)
	for _, raw := range values[1:] {
		row := toStrings(raw)
		if blank(row) {
			continue
		}
		date, err := core.ParseDate(safeGet(row, colDate))
		if err != nil {
			skipped++
			continue
		}
		amount, err := parseAmount(safeGet(row, colBalance))
		if err != nil {
			skipped++
			continue
		}
		name := safeGet(row, colName)
		id := safeGet(row, colID)
		if id == "" {
			id = name
		}
		if id == "" {
			skipped++
			continue
		}
		out = append(out, core.ObservedBalanceSnapshot{Date: date, BankID: id, BankName: name, Amount: amount})
	}
	return out, skipped, nil
}

// parseBillingTotals converts the billing sheet matrix into per-account
// totals. An account is the application account when its flag column is set
// or when its name mentions the application.
func parseBillingTotals(values [][]any) ([]core.BillingTotal, int, error) {
	if len(values) == 0 {
		return nil, 0, nil
	}
	headers := toStrings(values[0])
	colDate := indexOf(headers, dateHeaders...)
	colAccount := indexOf(headers, accountHeaders...)
	colAmount := indexOf(headers, amountHeaders...)
	colApp := indexOf(headers, applicationHeaders...)
	if colDate == -1 || colAccount == -1 || colAmount == -1 {
		return nil, 0, fmt.Errorf("unexpected billing sheet header: want Data, Conta and Valor; got headers=%v", headers)
	}

	var (
		out     []core.BillingTotal
		skipped int
	)
	for _, raw := range values[1:] {
		row := toStrings(raw)
		if blank(row) {
			continue
		}
		date, err := core.ParseDate(safeGet(row, colDate))
		if err != nil {
			skipped++
			continue
		}
		amount, err := parseAmount(safeGet(row, colAmount))
		if err != nil {
			skipped++
			continue
		}
		account := safeGet(row, colAccount)
		out = append(out, core.BillingTotal{
			Date:               date,
			AccountID:          account,
			Amount:             amount,
			ApplicationAccount: truthy(safeGet(row, colApp)) || strings.Contains(classifier.Normalize(account), "APLICACAO"),
		})
	}
	return out, skipped, nil
}

// parseAmount accepts the formatted cell values Sheets returns, such as
// "R$ 1.234,56".
func parseAmount(s string) (core.Money, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	return core.ParseMoney(s)
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// indexOf returns the first column whose header matches any alias.
func indexOf(headers []string, aliases ...string) int {
	for _, alias := range aliases {
		want := classifier.Normalize(alias)
		for i, h := range headers {
			if classifier.Normalize(h) == want {
				return i
			}
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

func blank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

func truthy(s string) bool {
	switch classifier.Normalize(s) {
	case "SIM", "S", "YES", "Y", "TRUE", "X", "1":
		return true
	}
	return false
}
