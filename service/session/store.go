package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/brojonat/zviewer/service/metrics"
	"github.com/brojonat/zviewer/service/privacy"
)

// Acquirer produces a privacy score for an address.
// *privacy.Acquirer satisfies it.
type Acquirer interface {
	Acquire(ctx context.Context, address string) (*privacy.Result, error)
}

// Store holds the state of one session.
// It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	state    State
	lastSeen time.Time
	metrics  *metrics.Metrics
}

// NewStore returns a store in the initial demo state.
// If metrics is nil, no metrics will be recorded.
func NewStore(m *metrics.Metrics) *Store {
	return &Store{
		state:    Initial(),
		lastSeen: time.Now(),
		metrics:  m,
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Dispatch applies a to the state and returns the new state.
func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, a)
	s.lastSeen = time.Now()
	return s.state.Clone()
}

// Begin starts a new fetch and returns its generation token.
func (s *Store) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen := s.state.Generation + 1
	s.state = Reduce(s.state, FetchStarted{Gen: gen})
	s.lastSeen = time.Now()
	return gen
}

// LoadDemo shows the demo dataset. Any fetch still in flight becomes stale.
func (s *Store) LoadDemo() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, DemoLoaded{Gen: s.state.Generation + 1})
	s.lastSeen = time.Now()
	return s.state.Clone()
}

// Complete applies the result of fetch gen. It returns false, leaving the
// state untouched, when a newer fetch has been started since.
func (s *Store) Complete(gen uint64, r *privacy.Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.state.Generation {
		if s.metrics != nil {
			s.metrics.RecordStaleCompletion()
		}
		return false
	}

	var a Action = FetchSucceeded{Gen: gen, State: r.State}
	if r.FellBack() {
		a = FetchFellBack{Gen: gen, Reason: r.FallbackReason}
	}
	s.state = Reduce(s.state, a)
	s.lastSeen = time.Now()
	return true
}

// Submit validates address and starts a fetch for it. It returns the
// generation token and the trimmed address. An empty address dispatches
// ValidationFailed and returns privacy.ErrEmptyAddress without starting a fetch.
func (s *Store) Submit(address string) (uint64, string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		s.Dispatch(ValidationFailed{Message: privacy.EmptyAddressMessage})
		return 0, "", privacy.ErrEmptyAddress
	}
	return s.Begin(), address, nil
}

// Finish runs the acquisition for fetch gen and completes it. The fetch is
// always completed, falling back to the demo dataset if acq fails; the
// acquisition error, if any, is returned.
func (s *Store) Finish(ctx context.Context, acq Acquirer, gen uint64, address string) error {
	result, err := acq.Acquire(ctx, address)
	if err != nil {
		// A started fetch must never stay loading.
		result = &privacy.Result{
			State:          privacy.DemoState(),
			Source:         privacy.SourceDemo,
			FallbackReason: privacy.ReasonExplorerUnavailable,
		}
	}
	s.Complete(gen, result)
	return err
}

// Lookup runs one acquisition cycle for address synchronously.
func (s *Store) Lookup(ctx context.Context, acq Acquirer, address string) (State, error) {
	gen, address, err := s.Submit(address)
	if err != nil {
		return s.Snapshot(), err
	}
	err = s.Finish(ctx, acq, gen, address)
	return s.Snapshot(), err
}

// LastSeen returns when the store was last changed.
func (s *Store) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// touch marks the store as used without changing its state.
func (s *Store) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}
