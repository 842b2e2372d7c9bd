package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Output is one transaction output as reported by the server.
type Output struct {
	Address *string `json:"address,omitempty"`
	Value   int64   `json:"value"`
}

// Transaction is one scored transaction.
type Transaction struct {
	ID               string   `json:"id"`
	TotalOutputValue float64  `json:"total_output_value"`
	Outputs          []Output `json:"outputs"`
}

// Chip is a truncated output address with its tier ("shielded" or "transparent").
type Chip struct {
	Label string `json:"label"`
	Tier  string `json:"tier"`
}

// Row is one display row of the transaction list.
type Row struct {
	Hash  string `json:"hash"`
	Value string `json:"value"`
	Chips []Chip `json:"chips"`
}

// Chart is the chart-ready series of a score.
type Chart struct {
	Labels          []string `json:"labels"`
	Label           string   `json:"label"`
	Data            []int    `json:"data"`
	Tier            string   `json:"tier"`
	BorderColor     string   `json:"border_color"`
	BackgroundColor string   `json:"background_color"`
	Tension         float64  `json:"tension"`
}

// Score is the privacy score of an address.
type Score struct {
	Requested      string        `json:"requested,omitempty"`
	Address        string        `json:"address"`
	Score          int           `json:"score"`
	Source         string        `json:"source"` // "live" or "demo"
	FallbackReason string        `json:"fallback_reason,omitempty"`
	Notice         string        `json:"notice,omitempty"`
	Verdict        string        `json:"verdict"`
	Tier           string        `json:"tier"`
	Transactions   []Transaction `json:"transactions"`
	Rows           []Row         `json:"rows"`
	Chart          Chart         `json:"chart"`
	ShareURL       string        `json:"share_url"`
}

// FellBack reports whether the server answered with the demo dataset.
func (s *Score) FellBack() bool {
	return s.FallbackReason != ""
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// Client is the HTTP client for the zviewer privacy score service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new privacy score service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Score asks the server to score address. Explorer failures are not errors:
// the server answers with the demo dataset and Score.FellBack reports it.
func (c *Client) Score(ctx context.Context, address string) (*Score, error) {
	u := fmt.Sprintf("%s/api/v1/score/%s", c.baseURL, url.PathEscape(address))

	var score Score
	if err := c.getJSON(ctx, u, &score); err != nil {
		return nil, err
	}

	c.logger.Debug("score retrieved",
		"address", address,
		"score", score.Score,
		"source", score.Source,
	)
	return &score, nil
}

// Demo returns the demo dataset score.
func (c *Client) Demo(ctx context.Context) (*Score, error) {
	var score Score
	if err := c.getJSON(ctx, c.baseURL+"/api/v1/demo", &score); err != nil {
		return nil, err
	}
	return &score, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
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

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}
