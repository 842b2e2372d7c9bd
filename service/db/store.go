package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/zviewer/service/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup does not exist.
var ErrNotFound = errors.New("lookup not found")

const (
	// DefaultListLimit is used when ListLookupsParams.Limit is not positive.
	DefaultListLimit = 20
	// MaxListLimit caps ListLookupsParams.Limit.
	MaxListLimit = 500
)

// Store provides database operations for the lookup history.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// Lookup is one recorded privacy score lookup.
type Lookup struct {
	ID                    uuid.UUID `json:"id"`
	RequestedAddress      string    `json:"requested_address"`
	Address               string    `json:"address"`
	Score                 int       `json:"score"`
	Source                string    `json:"source"`
	FallbackReason        *string   `json:"fallback_reason,omitempty"` // nil for live results
	TransactionsRequested int       `json:"transactions_requested"`
	TransactionsFetched   int       `json:"transactions_fetched"`
	ShieldedOutputs       int       `json:"shielded_outputs"`
	TotalOutputs          int       `json:"total_outputs"`
	CreatedAt             time.Time `json:"created_at"`
}

// RecordLookupParams contains the parameters for recording a lookup.
type RecordLookupParams struct {
	RequestedAddress      string
	Address               string
	Score                 int
	Source                string
	FallbackReason        string
	TransactionsRequested int
	TransactionsFetched   int
	ShieldedOutputs       int
	TotalOutputs          int
}

// ListLookupsParams filters and paginates the history.
// An empty RequestedAddress lists lookups for every address.
type ListLookupsParams struct {
	RequestedAddress string
	Limit            int
	Offset           int
}

const lookupColumns = `id, requested_address, address, score, source, fallback_reason,
    transactions_requested, transactions_fetched, shielded_outputs, total_outputs, created_at`

// RecordLookup inserts a lookup into the history.
func (s *Store) RecordLookup(ctx context.Context, params RecordLookupParams) (*Lookup, error) {
	start := time.Now()

	row := s.pool.QueryRow(ctx, `
INSERT INTO lookups (
    id, requested_address, address, score, source, fallback_reason,
    transactions_requested, transactions_fetched, shielded_outputs, total_outputs
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+lookupColumns,
		uuid.New(),
		params.RequestedAddress,
		params.Address,
		params.Score,
		params.Source,
		pgtextFromString(params.FallbackReason),
		params.TransactionsRequested,
		params.TransactionsFetched,
		params.ShieldedOutputs,
		params.TotalOutputs,
	)

	lookup, err := scanLookup(row)
	s.recordQuery("insert", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to record lookup: %w", err)
	}
	return lookup, nil
}

// GetLookup retrieves a lookup by id.
func (s *Store) GetLookup(ctx context.Context, id uuid.UUID) (*Lookup, error) {
	start := time.Now()

	row := s.pool.QueryRow(ctx, `SELECT `+lookupColumns+` FROM lookups WHERE id = $1`, id)
	lookup, err := scanLookup(row)
	s.recordQuery("select", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lookup: %w", err)
	}
	return lookup, nil
}

// ListLookups returns lookups ordered by most recent first.
func (s *Store) ListLookups(ctx context.Context, params ListLookupsParams) ([]*Lookup, error) {
	start := time.Now()

	limit := params.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	offset := max(params.Offset, 0)

	var (
		rows pgx.Rows
		err  error
	)
	if params.RequestedAddress == "" {
		rows, err = s.pool.Query(ctx, `
SELECT `+lookupColumns+` FROM lookups
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`, limit, offset)
	} else {
		rows, err = s.pool.Query(ctx, `
SELECT `+lookupColumns+` FROM lookups
WHERE requested_address = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, params.RequestedAddress, limit, offset)
	}
	if err != nil {
		s.recordQuery("select", start, err)
		return nil, fmt.Errorf("failed to list lookups: %w", err)
	}

	lookups, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Lookup, error) {
		return scanLookup(row)
	})
	s.recordQuery("select", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to scan lookups: %w", err)
	}
	return lookups, nil
}

// CountLookups returns how many lookups were recorded for an address, or in
// total when requestedAddress is empty.
func (s *Store) CountLookups(ctx context.Context, requestedAddress string) (int64, error) {
	start := time.Now()

	var count int64
	var err error
	if requestedAddress == "" {
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM lookups`).Scan(&count)
	} else {
		err = s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM lookups WHERE requested_address = $1`,
			requestedAddress,
		).Scan(&count)
	}
	s.recordQuery("count", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count lookups: %w", err)
	}
	return count, nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) recordQuery(operation string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(operation, "lookups", time.Since(start).Seconds(), err)
	}
}

func scanLookup(row pgx.Row) (*Lookup, error) {
	var (
		l              Lookup
		score          int16
		requested      int16
		fetched        int16
		fallbackReason pgtype.Text
		createdAt      pgtype.Timestamptz
	)
	err := row.Scan(
		&l.ID,
		&l.RequestedAddress,
		&l.Address,
		&score,
		&l.Source,
		&fallbackReason,
		&requested,
		&fetched,
		&l.ShieldedOutputs,
		&l.TotalOutputs,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	l.Score = int(score)
	l.TransactionsRequested = int(requested)
	l.TransactionsFetched = int(fetched)
	l.FallbackReason = stringPtrFromPgtext(fallbackReason)
	l.CreatedAt = createdAt.Time
	return &l, nil
}

// Helper functions for converting between Go types and pgtype

func pgtextFromString(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}
