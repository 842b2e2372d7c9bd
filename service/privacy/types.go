package privacy

import (
	"strings"
)

// ShieldedPrefix is the address prefix of Sapling shielded addresses.
const ShieldedPrefix = "zs"

const (
	// MaxTransactions caps how many transactions a ScoreState may hold.
	MaxTransactions = 10

	// ZatoshiPerZEC is the number of smallest units in one ZEC.
	ZatoshiPerZEC = 100_000_000
)

// Output is a single transaction output.
// Address is nil when the explorer did not report a destination.
type Output struct {
	Address *string `json:"address,omitempty"`
	Value   int64   `json:"value"` // zatoshi
}

// IsShielded reports whether the output pays a shielded address.
func (o Output) IsShielded() bool {
	return IsShieldedAddress(o.Address)
}

// IsShieldedAddress reports whether addr starts with the shielded prefix.
// A nil address is never shielded.
func IsShieldedAddress(addr *string) bool {
	return addr != nil && strings.HasPrefix(*addr, ShieldedPrefix)
}

// Transaction is a Zcash transaction as reported by the explorer.
// This is our domain model, independent of the explorer response format.
type Transaction struct {
	ID               string   `json:"id"`
	TotalOutputValue float64  `json:"total_output_value"` // ZEC
	Outputs          []Output `json:"outputs"`
}

// ScoreState is the result of one acquisition cycle.
type ScoreState struct {
	Address      string        `json:"address"`
	Transactions []Transaction `json:"transactions"`
	Score        int           `json:"score"`
}

// Clone returns a deep copy so callers can hand state across goroutines.
func (s ScoreState) Clone() ScoreState {
	out := ScoreState{Address: s.Address, Score: s.Score}
	if s.Transactions != nil {
		out.Transactions = make([]Transaction, len(s.Transactions))
		for i, tx := range s.Transactions {
			out.Transactions[i] = tx
			out.Transactions[i].Outputs = append([]Output(nil), tx.Outputs...)
		}
	}
	return out
}

func strPtr(s string) *string {
	return &s
}
