package privacy

import "math"

// Score returns the percentage of outputs across txs that pay shielded
// addresses, rounded half up. It returns 0 when there are no outputs.
func Score(txs []Transaction) int {
	var shielded, total int
	for _, tx := range txs {
		for _, out := range tx.Outputs {
			total++
			if out.IsShielded() {
				shielded++
			}
		}
	}
	if total == 0 {
		return 0
	}

	ratio := float64(shielded) / float64(total)
	return int(math.Floor(ratio*100 + 0.5))
}
