package privacy

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/brojonat/zviewer/service/metrics"
	"golang.org/x/sync/errgroup"
)

// User-facing messages.
const (
	EmptyAddressMessage = "Enter a Zcash address!"
	FallbackNotice      = "Live data unavailable — showing 100% shielded DEMO!"
)

var (
	// ErrEmptyAddress is returned when acquisition is asked for an empty address.
	// State must not change.
	ErrEmptyAddress = errors.New("address is required")

	// ErrNoTransactions means the explorer knows no transactions for the address.
	ErrNoTransactions = errors.New("address has no transactions")
)

// Source tells where a ScoreState came from.
type Source string

const (
	SourceDemo Source = "demo"
	SourceLive Source = "live"
)

// FallbackReason records why a live fetch fell back to the demo dataset.
type FallbackReason string

const (
	ReasonNone                FallbackReason = ""
	ReasonExplorerUnavailable FallbackReason = "explorer_unavailable"
	ReasonNoTransactions      FallbackReason = "no_transactions"
	ReasonInvalidAddress      FallbackReason = "invalid_address"
)

// MaxAddressLength bounds the input sent to the explorer. Unified addresses
// are the longest and stay well under it.
const MaxAddressLength = 128

// Explorer is the subset of the block explorer API acquisition needs.
// This allows us to fake the explorer in tests without hitting the network.
type Explorer interface {
	// AddressTransactionIDs returns transaction ids for address in API order.
	AddressTransactionIDs(ctx context.Context, address string) ([]string, error)

	// Transaction returns the decoded transaction with the given id.
	Transaction(ctx context.Context, id string) (*Transaction, error)
}

// Result is the outcome of one acquisition cycle.
type Result struct {
	State          ScoreState
	Source         Source
	FallbackReason FallbackReason
	Requested      int // transaction ids requested from the explorer
}

// FellBack reports whether the result is the demo fallback.
func (r *Result) FellBack() bool {
	return r.FallbackReason != ReasonNone
}

// Notice is the non-blocking message to show the user, if any.
func (r *Result) Notice() string {
	if r.FellBack() {
		return FallbackNotice
	}
	return ""
}

// Acquirer turns an address into a ScoreState using the explorer.
type Acquirer struct {
	explorer       Explorer
	maxConcurrency int
	timeout        time.Duration
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// NewAcquirer creates an Acquirer.
// maxConcurrency bounds the concurrent transaction detail calls and is
// clamped to [1, MaxTransactions]. A zero timeout disables the overall bound.
// If metrics is nil, no metrics will be recorded.
func NewAcquirer(explorer Explorer, maxConcurrency int, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Acquirer {
	if maxConcurrency < 1 || maxConcurrency > MaxTransactions {
		maxConcurrency = MaxTransactions
	}
	return &Acquirer{
		explorer:       explorer,
		maxConcurrency: maxConcurrency,
		timeout:        timeout,
		metrics:        m,
		logger:         logger,
	}
}

// Acquire fetches up to MaxTransactions transactions for address and scores
// them. Explorer failures never surface as errors: the result falls back to
// the demo dataset instead. The only error is ErrEmptyAddress.
func (a *Acquirer) Acquire(ctx context.Context, address string) (*Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		if a.metrics != nil {
			a.metrics.RecordLookup("invalid", "")
		}
		return nil, ErrEmptyAddress
	}
	if !queryable(address) {
		a.logger.WarnContext(ctx, "address cannot be queried, falling back to demo",
			"address", truncateForLog(address),
			"length", len(address),
		)
		return a.fallback(ReasonInvalidAddress), nil
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	ids, err := a.transactionIDs(ctx, address)
	if err != nil {
		reason := ReasonExplorerUnavailable
		if errors.Is(err, ErrNoTransactions) {
			reason = ReasonNoTransactions
		}
		a.logger.WarnContext(ctx, "live lookup failed, falling back to demo",
			"address", address,
			"reason", reason,
			"error", err,
		)
		return a.fallback(reason), nil
	}

	txs := a.fetchTransactions(ctx, ids)
	result := &Result{
		State: ScoreState{
			Address:      address,
			Transactions: txs,
			Score:        Score(txs),
		},
		Source:    SourceLive,
		Requested: len(ids),
	}

	a.logger.InfoContext(ctx, "privacy score computed",
		"address", address,
		"requested", len(ids),
		"fetched", len(txs),
		"score", result.State.Score,
	)
	if a.metrics != nil {
		a.metrics.RecordLookup(string(SourceLive), "")
		a.metrics.RecordTransactionsFetched(len(ids), len(txs))
		a.metrics.RecordScore(result.State.Score)
	}

	return result, nil
}

// transactionIDs returns at most MaxTransactions ids for address in API order.
func (a *Acquirer) transactionIDs(ctx context.Context, address string) ([]string, error) {
	ids, err := a.explorer.AddressTransactionIDs(ctx, address)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoTransactions
	}
	if len(ids) > MaxTransactions {
		ids = ids[:MaxTransactions]
	}
	return ids, nil
}

// fetchTransactions fetches all ids concurrently. A failed fetch leaves a nil
// slot that is dropped afterwards; the order of ids is preserved.
func (a *Acquirer) fetchTransactions(ctx context.Context, ids []string) []Transaction {
	slots := make([]*Transaction, len(ids))

	var g errgroup.Group
	g.SetLimit(a.maxConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			tx, err := a.explorer.Transaction(ctx, id)
			if err != nil {
				a.logger.DebugContext(ctx, "transaction fetch failed, skipping",
					"txid", id,
					"error", err,
				)
				return nil
			}
			slots[i] = tx
			return nil
		})
	}
	// Workers never return errors.
	_ = g.Wait()

	txs := make([]Transaction, 0, len(ids))
	for _, tx := range slots {
		if tx != nil {
			txs = append(txs, *tx)
		}
	}
	return txs
}

// queryable reports whether address can be sent to the explorer at all.
// Anything else, including malformed addresses, is left to the explorer.
func queryable(address string) bool {
	if len(address) > MaxAddressLength {
		return false
	}
	for _, r := range address {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func truncateForLog(s string) string {
	if len(s) > MaxAddressLength {
		return s[:MaxAddressLength] + "..."
	}
	return s
}

func (a *Acquirer) fallback(reason FallbackReason) *Result {
	if a.metrics != nil {
		a.metrics.RecordLookup("fallback", string(reason))
	}
	return &Result{
		State:          DemoState(),
		Source:         SourceDemo,
		FallbackReason: reason,
	}
}
