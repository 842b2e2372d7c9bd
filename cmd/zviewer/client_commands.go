package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/brojonat/zviewer/client"
	"github.com/urfave/cli/v2"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with the zviewer service",
		Subcommands: []*cli.Command{
			clientScoreCommand(),
			clientDemoCommand(),
		},
	}
}

func clientScoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "score",
		Usage:     "Score an address through a running server",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   60 * time.Second,
				Usage:   "Request timeout",
			},
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq filter applied to the JSON result (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: address")
			}

			codes, err := compileJQ(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			cl := newServiceClient(c)
			score, err := cl.Score(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to score address: %w", err)
			}

			return outputScore(c, score, codes)
		},
	}
}

func clientDemoCommand() *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "Fetch the demo dataset from a running server",
		Action: func(c *cli.Context) error {
			score, err := newServiceClient(c).Demo(context.Background())
			if err != nil {
				return fmt.Errorf("failed to fetch demo: %w", err)
			}
			return outputScore(c, score, nil)
		},
	}
}

func newServiceClient(c *cli.Context) *client.Client {
	timeout := c.Duration("timeout")
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	logger := newLogger(os.Stderr, c.String("log-level"))
	return client.NewClient(c.String("server-url"), &http.Client{Timeout: timeout}, logger)
}
