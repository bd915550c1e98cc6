// Package classifier maps free-text category labels to ledger categories.
//
// Labels come from area names and revenue account names typed by people,
// with or without accents and in any case. Classification is a lookup in an
// ordered keyword table: the first matching rule wins, and anything that is
// not clearly an investment movement is an ordinary expense.
package classifier

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"saldo/internal/core"
)

// Rule maps a keyword found in a normalized label to a category.
type Rule struct {
	Keyword  string
	Category core.MovementCategory
}

// Result carries the category and whether the label was recognized at all.
type Result struct {
	Category   core.MovementCategory
	Normalized string
	// Ambiguous is set when the label has no letters at all (empty, or only
	// digits and punctuation), so the Expense fallback is a guess.
	Ambiguous bool
}

// Classifier holds a gate keyword and the sub-rules applied when the gate matches.
type Classifier struct {
	gate     string
	rules    []Rule
	fallback core.MovementCategory
}

// ApplicationKeyword marks a label as an investment account movement.
const ApplicationKeyword = "APLICACAO"

// DefaultRules are tested in order once a label is known to be an application movement.
var DefaultRules = []Rule{
	{Keyword: "RESGATE", Category: core.ApplicationRedemption},
	{Keyword: "TRANSFERENCIA", Category: core.ApplicationTransferOut},
}

// New returns the classifier used by the ledger.
func New() *Classifier {
	return NewWithRules(ApplicationKeyword, DefaultRules, core.ApplicationTransferOut)
}

// NewWithRules builds a classifier from a custom table. Keywords are normalized
// the same way labels are, so accented keywords work too.
func NewWithRules(gate string, rules []Rule, fallback core.MovementCategory) *Classifier {
	normalized := make([]Rule, len(rules))
	for i, r := range rules {
		normalized[i] = Rule{Keyword: Normalize(r.Keyword), Category: r.Category}
	}
	return &Classifier{gate: Normalize(gate), rules: normalized, fallback: fallback}
}

// Classify maps a label to its category.
func (c *Classifier) Classify(label string) core.MovementCategory {
	return c.ClassifyDetailed(label).Category
}

// ClassifyDetailed is Classify plus the normalized label and the ambiguity flag.
func (c *Classifier) ClassifyDetailed(label string) Result {
	n := Normalize(label)
	if !strings.ContainsFunc(n, unicode.IsLetter) {
		return Result{Category: core.Expense, Normalized: n, Ambiguous: true}
	}
	if !strings.Contains(n, c.gate) {
		return Result{Category: core.Expense, Normalized: n}
	}
	for _, r := range c.rules {
		if strings.Contains(n, r.Keyword) {
			return Result{Category: r.Category, Normalized: n}
		}
	}
	return Result{Category: c.fallback, Normalized: n}
}

// Normalize strips diacritics, uppercases and trims a label.
func Normalize(label string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, label)
	if err != nil {
		out = label
	}
	return strings.ToUpper(strings.TrimSpace(out))
}
