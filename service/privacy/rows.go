package privacy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	hashDisplayLen    = 16
	addressDisplayLen = 8
	maxChips          = 3

	// fallbackDisplayValue is shown when a transaction carries no value at all.
	fallbackDisplayValue = 123400000
)

// ChipTier is the colour class of an output chip.
type ChipTier string

const (
	ChipShielded    ChipTier = "shielded"
	ChipTransparent ChipTier = "transparent"
)

// Chip is a truncated output address.
type Chip struct {
	Label string   `json:"label"`
	Tier  ChipTier `json:"tier"`
}

// Row is one renderable line of the transaction list.
type Row struct {
	Hash  string `json:"hash"`
	Value string `json:"value"`
	Chips []Chip `json:"chips"`
}

// TransactionRows projects transactions into list rows.
func TransactionRows(txs []Transaction) []Row {
	rows := make([]Row, len(txs))
	for i, tx := range txs {
		rows[i] = Row{
			Hash:  DisplayHash(tx.ID, i),
			Value: DisplayValue(tx),
			Chips: chips(tx.Outputs),
		}
	}
	return rows
}

// DisplayHash truncates id to 16 characters followed by "...".
// An empty id is replaced by "demo-tx-N" where N is the 1-based position.
func DisplayHash(id string, index int) string {
	if id == "" {
		return fmt.Sprintf("demo-tx-%d", index+1)
	}
	return truncate(id, hashDisplayLen) + "..."
}

// DisplayValue picks the first non-zero of the total output value, the first
// output's value and a fixed constant, divides it by 10^8 and formats it with
// four decimals.
func DisplayValue(tx Transaction) string {
	var raw decimal.Decimal
	switch {
	case tx.TotalOutputValue != 0:
		raw = decimal.NewFromFloat(tx.TotalOutputValue)
	case len(tx.Outputs) > 0 && tx.Outputs[0].Value != 0:
		raw = decimal.NewFromInt(tx.Outputs[0].Value)
	default:
		raw = decimal.NewFromInt(fallbackDisplayValue)
	}
	return raw.Div(decimal.NewFromInt(ZatoshiPerZEC)).StringFixed(4)
}

// ChipFor renders one output as a chip.
func ChipFor(out Output) Chip {
	label := "..."
	if out.Address != nil {
		label = truncate(*out.Address, addressDisplayLen) + "..."
	}
	tier := ChipTransparent
	if out.IsShielded() {
		tier = ChipShielded
	}
	return Chip{Label: label, Tier: tier}
}

func chips(outputs []Output) []Chip {
	n := min(len(outputs), maxChips)
	out := make([]Chip, n)
	for i := range n {
		out[i] = ChipFor(outputs[i])
	}
	return out
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
