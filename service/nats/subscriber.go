package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// FilterSubject returns the subject filter for address, or every score
// subject when address is empty.
func FilterSubject(address string) string {
	if address == "" {
		return StreamSubjects
	}
	return Subject(address)
}

// Subscribe creates an ephemeral consumer that delivers new score events for
// address (all addresses if empty). Events are acked once decoded. Delivery
// stops when ctx is done; callers select on ctx.Done alongside the channel.
func Subscribe(ctx context.Context, js jetstream.JetStream, address string, logger *slog.Logger) (<-chan *ScoreEvent, error) {
	cons, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: FilterSubject(address),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy, // Only deliver new messages after consumer creation
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	events := make(chan *ScoreEvent, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		var event ScoreEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			logger.WarnContext(ctx, "failed to unmarshal score event",
				"subject", msg.Subject(),
				"error", err,
			)
			_ = msg.Ack()
			return
		}
		_ = msg.Ack()

		select {
		case events <- &event:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming messages: %w", err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
	}()

	return events, nil
}
