package privacy

// DemoAddress is the placeholder shielded address shown with the demo dataset.
const DemoAddress = "zs1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq"

// DemoScore is the score reported for the demo dataset.
const DemoScore = 100

type demoEntry struct {
	id       string
	valueOut float64
	address  string
	value    int64
}

var demoEntries = []demoEntry{
	{"demo-1", 1.234, "zs1demo-shielded", 123400000},
	{"demo-2", 0.567, "zs1demo-private", 56700000},
	{"demo-3", 2.345, "zs1demo-secure", 234500000},
	{"demo-4", 0.891, "zs1demo-hidden", 89100000},
	{"demo-5", 1.678, "zs1demo-anonymous", 167800000},
	{"demo-6", 3.210, "zs1demo-encrypted", 321000000},
	{"demo-7", 0.432, "zs1demo-private", 43200000},
	{"demo-8", 1.987, "zs1demo-shielded", 198700000},
	{"demo-9", 0.765, "zs1demo-secure", 76500000},
	{"demo-10", 2.109, "zs1demo-hidden", 210900000},
}

// DemoTransactions returns a fresh copy of the demo transaction set.
// Every demo output pays a shielded address.
func DemoTransactions() []Transaction {
	txs := make([]Transaction, len(demoEntries))
	for i, e := range demoEntries {
		txs[i] = Transaction{
			ID:               e.id,
			TotalOutputValue: e.valueOut,
			Outputs: []Output{
				{Address: strPtr(e.address), Value: e.value},
			},
		}
	}
	return txs
}

// DemoState returns the state shown at startup and after a failed live fetch.
func DemoState() ScoreState {
	return ScoreState{
		Address:      DemoAddress,
		Transactions: DemoTransactions(),
		Score:        DemoScore,
	}
}
