package ledger

import (
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Entry is one recognized ledger line. Amount is in minor currency units.
type Entry struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

// amountPattern matches 12, 12.5, 12,50 but not 12.345 or 1.2.3.
var amountPattern = regexp.MustCompile(`^(\d+)(?:[.,](\d{1,2}))?$`)

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// ParseLine extracts a (name, amount) pair from a recognized text line.
// The last token shaped like an amount is the amount; the non-amount
// tokens before it form the name. Lines without an amount or without a
// name produce nothing.
func ParseLine(line string) (Entry, bool) {
	tokens := strings.Fields(line)

	last := -1
	for i, tok := range tokens {
		if amountPattern.MatchString(tok) {
			last = i
		}
	}
	if last < 0 {
		return Entry{}, false
	}

	var nameParts []string
	for _, tok := range tokens[:last] {
		if !amountPattern.MatchString(tok) {
			nameParts = append(nameParts, tok)
		}
	}
	name := strings.TrimSpace(strings.Join(nameParts, " "))
	if name == "" {
		return Entry{}, false
	}

	amount, ok := parseMinorUnits(tokens[last])
	if !ok {
		return Entry{}, false
	}
	return Entry{Name: name, Amount: amount}, true
}

// ParseLines parses each line and keeps those that yield an entry, in order.
func ParseLines(lines []string) []Entry {
	var out []Entry
	for _, ln := range lines {
		if e, ok := ParseLine(ln); ok {
			out = append(out, e)
		}
	}
	return out
}

// parseMinorUnits converts an amount token to minor units. The decimal
// separator may be '.' or ','; a single fractional digit counts as tens.
func parseMinorUnits(tok string) (int64, bool) {
	m := amountPattern.FindStringSubmatch(tok)
	if m == nil {
		return 0, false
	}
	frac := m[2]
	if len(frac) == 1 {
		frac += "0"
	}
	raw := m[1]
	if frac != "" {
		raw += "." + frac
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, false
	}
	minor := d.Shift(2).Round(0)
	if minor.GreaterThan(maxAmount) {
		return 0, false
	}
	return minor.IntPart(), true
}

// FormatAmount renders minor units with two decimals, e.g. 1250 -> "12.50".
func FormatAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// FormatLine renders an entry the way it would be written on the page.
func FormatLine(e Entry) string {
	return e.Name + " " + FormatAmount(e.Amount)
}
