package explorer

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/zviewer/service/metrics"
	"github.com/sony/gobreaker"
)

var (
	// MinRequestsToTrip is how many requests a window needs before the breaker may open.
	MinRequestsToTrip = 10
	// FailingRatio is the failure ratio at which the breaker opens.
	FailingRatio = 0.6
	// OpenTimeout is how long the breaker stays open before letting a trial request through.
	OpenTimeout = 30 * time.Second
)

// NewCircuitBreaker returns a breaker that opens once more than
// MinRequestsToTrip requests were seen and at least FailingRatio of them failed.
// Callers report only explorer faults to it, see countsAsSuccess.
// State changes are logged and, if m is not nil, exported.
func NewCircuitBreaker(name string, m *metrics.Metrics, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: time.Minute,
		Timeout:  OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return int(counts.Requests) > MinRequestsToTrip && ratio >= FailingRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("explorer circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			if m != nil {
				m.RecordBreakerState(name, int(to), to.String())
			}
		},
	})
}

// countsAsSuccess reports whether err leaves the breaker's failure count alone.
// Transport errors, 5xx and 429 are explorer faults. A 404 for one transaction,
// an unparseable body or a caller that gave up say nothing about the explorer's
// health for other lookups.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var done *callerDoneError
	if errors.As(err, &done) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrMissingData) {
		return true
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.StatusCode < 500 && status.StatusCode != http.StatusTooManyRequests
	}
	return false
}
