package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/zviewer/service/nats"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand streams score events.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to score events",
		ArgsUsage: "[ADDRESS]",
		Description: `Subscribe to score events published to NATS JetStream after every lookup.

Events are published to the subject: scores.{address}
Without ADDRESS, events for every address are shown.

Example:
  zviewer nats subscribe t1abc... --json`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Stop after this long (0 waits until interrupted)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 1 {
				return fmt.Errorf("accepts at most one argument: address")
			}

			address := c.Args().First()
			natsURL := c.String("nats-url")
			jsonOutput := c.Bool("json")
			logger := newLogger(os.Stderr, c.String("log-level"))

			nc, err := natspkg.Connect(natsURL, "zviewer-cli")
			if err != nil {
				return err
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout := c.Duration("timeout"); timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			events, err := natspkg.Subscribe(ctx, js, address, logger)
			if err != nil {
				return err
			}

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "📡 Subscribing to: %s\n", natspkg.FilterSubject(address))
				fmt.Fprintf(os.Stderr, "   NATS: %s\n", natsURL)
				fmt.Fprintf(os.Stderr, "\nWaiting for score events... (Ctrl-C to exit)\n\n")
			}

			count := 0
			for {
				select {
				case event := <-events:
					count++
					if err := printEvent(c.App.Writer, event, jsonOutput); err != nil {
						return err
					}
				case <-ctx.Done():
					if !jsonOutput {
						fmt.Fprintf(os.Stderr, "\nReceived %d event(s)\n", count)
					}
					return nil
				}
			}
		},
	}
}

// inspectStreamCommand shows information about the SCORES JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the SCORES JetStream stream",
		Action: func(c *cli.Context) error {
			nc, err := natspkg.Connect(c.String("nats-url"), "zviewer-cli")
			if err != nil {
				return err
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(context.Background(), natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, info)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Stream: %s\n", info.Config.Name)
			fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
			fmt.Fprintf(w, "Subjects:     %v\n", info.Config.Subjects)
			fmt.Fprintf(w, "Messages:     %d\n", info.State.Msgs)
			fmt.Fprintf(w, "Bytes:        %d\n", info.State.Bytes)
			fmt.Fprintf(w, "Consumers:    %d\n", info.State.Consumers)
			fmt.Fprintf(w, "Max Age:      %s\n", info.Config.MaxAge)
			return nil
		},
	}
}

func printEvent(w io.Writer, event *natspkg.ScoreEvent, jsonOutput bool) error {
	if jsonOutput {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	fmt.Fprintf(w, "✅ %s: %d%% shielded (%s)\n", event.Requested, event.Score, event.Source)
	if event.FallbackReason != "" {
		fmt.Fprintf(w, "   Fallback:  %s\n", event.FallbackReason)
	}
	fmt.Fprintf(w, "   Outputs:   %d/%d shielded\n", event.ShieldedOutputs, event.TotalOutputs)
	fmt.Fprintf(w, "   Published: %s\n\n", event.PublishedAt.Format(time.RFC3339))
	return nil
}
