package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/zviewer/service/db"
	natspkg "github.com/brojonat/zviewer/service/nats"
	"github.com/brojonat/zviewer/service/privacy"
	"github.com/brojonat/zviewer/service/session"
)

// recordTimeout bounds how long a lookup waits on history and event sinks.
const recordTimeout = 5 * time.Second

// LookupRecorder persists completed lookups. *db.Store satisfies it.
type LookupRecorder interface {
	RecordLookup(ctx context.Context, params db.RecordLookupParams) (*db.Lookup, error)
}

// recordingAcquirer reports every completed acquisition to the history store
// and the event publisher. Sink failures are logged, never returned.
type recordingAcquirer struct {
	next      session.Acquirer
	history   LookupRecorder
	publisher natspkg.Publisher
	logger    *slog.Logger
}

func newRecordingAcquirer(next session.Acquirer, history LookupRecorder, publisher natspkg.Publisher, logger *slog.Logger) session.Acquirer {
	if history == nil && publisher == nil {
		return next
	}
	return &recordingAcquirer{
		next:      next,
		history:   history,
		publisher: publisher,
		logger:    logger,
	}
}

func (a *recordingAcquirer) Acquire(ctx context.Context, address string) (*privacy.Result, error) {
	result, err := a.next.Acquire(ctx, address)
	if err != nil {
		return nil, err
	}

	// The caller may already be gone; the record should still be written.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	event := natspkg.FromResult(address, result)

	if a.history != nil {
		_, err := a.history.RecordLookup(rctx, db.RecordLookupParams{
			RequestedAddress:      event.Requested,
			Address:               event.Address,
			Score:                 event.Score,
			Source:                string(event.Source),
			FallbackReason:        string(event.FallbackReason),
			TransactionsRequested: event.TransactionsRequested,
			TransactionsFetched:   event.TransactionsFetched,
			ShieldedOutputs:       event.ShieldedOutputs,
			TotalOutputs:          event.TotalOutputs,
		})
		if err != nil {
			a.logger.ErrorContext(ctx, "failed to record lookup",
				"address", event.Requested,
				"error", err,
			)
		}
	}

	if a.publisher != nil {
		if err := a.publisher.PublishScore(rctx, event); err != nil {
			a.logger.ErrorContext(ctx, "failed to publish score event",
				"address", event.Requested,
				"error", err,
			)
		}
	}

	return result, nil
}

// lookupRunner completes page lookups in the background so the page can
// show the loading state. Stop cancels outstanding lookups and waits for them.
type lookupRunner struct {
	ctx      context.Context
	cancel   context.CancelFunc
	acquirer session.Acquirer
	wg       sync.WaitGroup
	logger   *slog.Logger
}

func newLookupRunner(acquirer session.Acquirer, logger *slog.Logger) *lookupRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &lookupRunner{
		ctx:      ctx,
		cancel:   cancel,
		acquirer: acquirer,
		logger:   logger,
	}
}

// Run finishes fetch gen of store for address in a new goroutine.
func (r *lookupRunner) Run(store *session.Store, gen uint64, address string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := store.Finish(r.ctx, r.acquirer, gen, address); err != nil {
			r.logger.Error("background lookup failed",
				"address", address,
				"generation", gen,
				"error", err,
			)
		}
	}()
}

// Wait blocks until all started lookups have completed.
func (r *lookupRunner) Wait() {
	r.wg.Wait()
}

// Stop cancels outstanding lookups and waits for them to complete.
func (r *lookupRunner) Stop() {
	r.cancel()
	r.wg.Wait()
}
