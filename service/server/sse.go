package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/zviewer/service/metrics"
	natspkg "github.com/brojonat/zviewer/service/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// keepaliveInterval is how often an idle stream sends a comment line.
const keepaliveInterval = 10 * time.Second

// SSEPublisher manages Server-Sent Events connections for score streaming.
type SSEPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSSEPublisher creates a new SSE publisher that subscribes to NATS internally.
func NewSSEPublisher(natsURL string, logger *slog.Logger) (*SSEPublisher, error) {
	nc, err := natspkg.Connect(natsURL, "zviewer-sse-publisher")
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	logger.Info("SSE publisher initialized", "nats_url", natsURL)

	return &SSEPublisher{
		nc:     nc,
		js:     js,
		logger: logger,
	}, nil
}

// Close closes the NATS connection.
func (p *SSEPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("SSE publisher closed")
	}
	return nil
}

// handleStreamScores streams score events as SSE.
// If the address path parameter is empty, streams every lookup.
// GET /api/v1/stream/scores[/{address}]
func handleStreamScores(publisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		address := r.PathValue("address")
		desc := address
		if desc == "" {
			desc = "all addresses"
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher.Flush()

		logger.DebugContext(ctx, "SSE client connected",
			"address", desc,
			"remote_addr", r.RemoteAddr,
		)
		if m != nil {
			m.RecordSSEConnectionChange(1)
			defer m.RecordSSEConnectionChange(-1)
		}

		events, err := natspkg.Subscribe(ctx, publisher.js, address, logger)
		if err != nil {
			logger.ErrorContext(ctx, "failed to subscribe", "address", desc, "error", err)
			writeEvent(w, flusher, m, "error", map[string]string{"error": "failed to subscribe"})
			return
		}

		writeEvent(w, flusher, m, "connected", map[string]string{
			"address": desc,
			"subject": natspkg.FilterSubject(address),
		})

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flusher.Flush()

			case event := <-events:
				writeEvent(w, flusher, m, "score", event)
				logger.DebugContext(ctx, "sent score event",
					"address", event.Requested,
					"event_id", event.ID,
				)

			case <-ctx.Done():
				logger.DebugContext(ctx, "SSE client disconnected",
					"address", desc,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}

// writeEvent writes one SSE event with a JSON payload.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, m *metrics.Metrics, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
	flusher.Flush()
	if m != nil {
		m.RecordSSEEventSent(eventType)
	}
}
