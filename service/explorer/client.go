package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brojonat/zviewer/service/metrics"
	"github.com/brojonat/zviewer/service/privacy"
	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"
)

// DefaultBaseURL is the public Blockchair Zcash API.
const DefaultBaseURL = "https://api.blockchair.com/zcash"

const (
	endpointAddress     = "dashboards/address"
	endpointTransaction = "raw/transaction"

	// maxResponseSize bounds how much of an explorer response is read.
	maxResponseSize = 4 << 20
)

var (
	// ErrUnexpectedStatus is returned for any non-2xx explorer response.
	ErrUnexpectedStatus = errors.New("unexpected explorer status")

	// ErrMissingData is returned when a response lacks the expected fields.
	ErrMissingData = errors.New("explorer response missing data")

	// ErrMalformedResponse is returned when a response body is not valid JSON
	// for the requested endpoint.
	ErrMalformedResponse = errors.New("malformed explorer response")
)

// StatusError reports a non-2xx explorer response. It matches
// ErrUnexpectedStatus under errors.Is.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d: %s", ErrUnexpectedStatus, e.StatusCode, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// callerDoneError marks a failure that happened because the caller's context
// ended, not because the explorer misbehaved.
type callerDoneError struct {
	err error
}

func (e *callerDoneError) Error() string { return e.err.Error() }
func (e *callerDoneError) Unwrap() error { return e.err }

// Client reads address and transaction data from a Blockchair-compatible
// explorer. All calls share one rate limiter and one circuit breaker.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    ratelimit.Limiter
	breaker    *gobreaker.CircuitBreaker
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates an explorer client.
// rps <= 0 disables rate limiting. If httpClient is nil a client with a 10s
// timeout is used. If metrics is nil, no metrics will be recorded.
func NewClient(baseURL string, httpClient *http.Client, rps int, m *metrics.Metrics, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	limiter := ratelimit.NewUnlimited()
	if rps > 0 {
		limiter = ratelimit.New(rps)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		limiter:    limiter,
		breaker:    NewCircuitBreaker("explorer", m, logger),
		metrics:    m,
		logger:     logger,
	}
}

// AddressTransactionIDs returns the transaction ids the explorer lists for
// address, in API order.
func (c *Client) AddressTransactionIDs(ctx context.Context, address string) ([]string, error) {
	var resp dashboardResponse
	if err := c.get(ctx, endpointAddress, address, &resp); err != nil {
		return nil, fmt.Errorf("address dashboard: %w", err)
	}

	entry, ok := resp.Data[address]
	if !ok {
		return nil, fmt.Errorf("address dashboard for %s: %w", address, ErrMissingData)
	}

	c.logger.DebugContext(ctx, "fetched address transaction ids",
		"address", address,
		"count", len(entry.Transactions),
	)
	return entry.Transactions, nil
}

// Transaction returns the decoded transaction with the given id.
func (c *Client) Transaction(ctx context.Context, id string) (*privacy.Transaction, error) {
	var resp rawTransactionResponse
	if err := c.get(ctx, endpointTransaction, id, &resp); err != nil {
		return nil, fmt.Errorf("raw transaction %s: %w", id, err)
	}

	tx, err := decodeTransaction(id, resp.Data)
	if err != nil {
		return nil, fmt.Errorf("raw transaction %s: %w", id, err)
	}
	return tx, nil
}

// get performs GET {baseURL}/{endpoint}/{key} through the limiter and breaker
// and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, endpoint, key string, out any) error {
	u := fmt.Sprintf("%s/%s/%s", c.baseURL, endpoint, url.PathEscape(key))

	waited := metrics.Timer(time.Now(), func(d float64) {
		if c.metrics != nil {
			c.metrics.RecordRateLimitWait(endpoint, d)
		}
	})
	c.limiter.Take()
	waited()
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	benign, err := c.breaker.Execute(func() (interface{}, error) {
		err := c.do(ctx, u, out)
		if err != nil && ctx.Err() != nil {
			err = &callerDoneError{err: err}
		}
		if countsAsSuccess(err) {
			return err, nil
		}
		return nil, err
	})
	if err == nil && benign != nil {
		err = benign.(error)
	}
	if c.metrics != nil {
		c.metrics.RecordExplorerCall(endpoint, err, time.Since(start).Seconds())
	}
	if err != nil {
		c.logger.DebugContext(ctx, "explorer call failed",
			"endpoint", endpoint,
			"key", key,
			"error", err,
		)
		return err
	}
	return nil
}

func (c *Client) do(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: truncateBody(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrMalformedResponse, err)
	}
	return nil
}

func truncateBody(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
