package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/brojonat/zviewer/client"
	"github.com/brojonat/zviewer/service/explorer"
	"github.com/brojonat/zviewer/service/privacy"
	"github.com/urfave/cli/v2"
)

const defaultPageURL = "http://localhost:8080/"

func lookupCommand() *cli.Command {
	return &cli.Command{
		Name:      "lookup",
		Usage:     "Score an address directly against the explorer",
		ArgsUsage: "ADDRESS",
		Description: `Fetch up to 10 recent transactions of ADDRESS from the explorer and compute
its privacy score, the share of outputs paid to shielded addresses.

If the explorer is unreachable or the address has no transactions, the demo
dataset is shown instead, exactly as the web page does.

Example:
  zviewer lookup t1abc... --jq '.score' --jq '.rows[].hash'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "explorer-url",
				Usage:   "Explorer API base URL",
				EnvVars: []string{"EXPLORER_URL"},
				Value:   explorer.DefaultBaseURL,
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "Bound on the whole lookup",
				Value:   30 * time.Second,
			},
			&cli.IntFlag{
				Name:  "rps",
				Usage: "Explorer requests per second (0 for unlimited)",
				Value: 10,
			},
			&cli.IntFlag{
				Name:  "max-concurrency",
				Usage: "Concurrent transaction detail requests (1-10)",
				Value: privacy.MaxTransactions,
			},
			&cli.StringFlag{
				Name:    "page-url",
				Usage:   "Page URL used in the share text",
				EnvVars: []string{"PUBLIC_URL"},
				Value:   defaultPageURL,
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

			logger := newLogger(os.Stderr, c.String("log-level"))
			timeout := c.Duration("timeout")

			explorerClient := explorer.NewClient(
				c.String("explorer-url"),
				&http.Client{Timeout: timeout},
				c.Int("rps"),
				nil,
				logger,
			)
			acquirer := privacy.NewAcquirer(explorerClient, c.Int("max-concurrency"), timeout, nil, logger)

			address := c.Args().First()
			result, err := acquirer.Acquire(context.Background(), address)
			if errors.Is(err, privacy.ErrEmptyAddress) {
				return errors.New(privacy.EmptyAddressMessage)
			}
			if err != nil {
				return fmt.Errorf("lookup failed: %w", err)
			}

			score := scoreFromState(result.State, result.Source, result.FallbackReason, c.String("page-url"))
			score.Requested = strings.TrimSpace(address)
			score.Notice = result.Notice()

			return outputScore(c, score, codes)
		},
	}
}

func demoCommand() *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "Show the demo dataset",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "page-url",
				Usage:   "Page URL used in the share text",
				EnvVars: []string{"PUBLIC_URL"},
				Value:   defaultPageURL,
			},
		},
		Action: func(c *cli.Context) error {
			score := scoreFromState(privacy.DemoState(), privacy.SourceDemo, privacy.ReasonNone, c.String("page-url"))
			return outputScore(c, score, nil)
		},
	}
}

func shareURLCommand() *cli.Command {
	return &cli.Command{
		Name:  "share-url",
		Usage: "Print the tweet intent URL for a score",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "score",
				Aliases:  []string{"s"},
				Usage:    "Privacy score (0-100)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "page-url",
				Usage:   "Page URL used in the share text",
				EnvVars: []string{"PUBLIC_URL"},
				Value:   defaultPageURL,
			},
		},
		Action: func(c *cli.Context) error {
			score := c.Int("score")
			if score < 0 || score > 100 {
				return fmt.Errorf("score must be between 0 and 100, got %d", score)
			}

			shareURL := privacy.ShareURL(score, c.String("page-url"))
			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]string{
					"text": privacy.ShareText(score, c.String("page-url")),
					"url":  shareURL,
				})
			}
			fmt.Fprintln(c.App.Writer, shareURL)
			return nil
		},
	}
}

// scoreFromState builds the same projection the server's JSON API returns.
func scoreFromState(state privacy.ScoreState, source privacy.Source, reason privacy.FallbackReason, pageURL string) *client.Score {
	score := &client.Score{
		Address:        state.Address,
		Score:          state.Score,
		Source:         string(source),
		FallbackReason: string(reason),
		Verdict:        privacy.Verdict(state.Score),
		Tier:           string(privacy.PanelTier(state.Score)),
		Transactions:   make([]client.Transaction, len(state.Transactions)),
		ShareURL:       privacy.ShareURL(state.Score, pageURL),
	}

	for i, tx := range state.Transactions {
		outputs := make([]client.Output, len(tx.Outputs))
		for j, out := range tx.Outputs {
			outputs[j] = client.Output{Address: out.Address, Value: out.Value}
		}
		score.Transactions[i] = client.Transaction{
			ID:               tx.ID,
			TotalOutputValue: tx.TotalOutputValue,
			Outputs:          outputs,
		}
	}

	rows := privacy.TransactionRows(state.Transactions)
	score.Rows = make([]client.Row, len(rows))
	for i, row := range rows {
		chips := make([]client.Chip, len(row.Chips))
		for j, chip := range row.Chips {
			chips[j] = client.Chip{Label: chip.Label, Tier: string(chip.Tier)}
		}
		score.Rows[i] = client.Row{Hash: row.Hash, Value: row.Value, Chips: chips}
	}

	chart := privacy.Chart(state)
	score.Chart = client.Chart{
		Labels:          chart.Labels,
		Label:           chart.Label,
		Data:            chart.Data,
		Tier:            string(chart.Tier),
		BorderColor:     chart.BorderColor,
		BackgroundColor: chart.BackgroundColor,
		Tension:         chart.Tension,
	}
	return score
}

// outputScore prints score as jq results, JSON or a summary.
func outputScore(c *cli.Context, score *client.Score, codes []*jqCode) error {
	if len(codes) > 0 {
		return runJQ(c.App.Writer, score, codes)
	}
	if c.Bool("json") {
		return outputJSON(c.App.Writer, score)
	}
	printScore(c.App.Writer, score)
	return nil
}

func printScore(w io.Writer, score *client.Score) {
	fmt.Fprintf(w, "Address:  %s\n", score.Address)
	if score.Requested != "" && score.Requested != score.Address {
		fmt.Fprintf(w, "Requested: %s\n", score.Requested)
	}
	fmt.Fprintf(w, "Score:    %d%% Shielded\n", score.Score)
	fmt.Fprintf(w, "Verdict:  %s\n", score.Verdict)
	fmt.Fprintf(w, "Source:   %s\n", score.Source)
	if score.Notice != "" {
		fmt.Fprintf(w, "Notice:   %s\n", score.Notice)
	}

	if len(score.Rows) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "HASH\tVALUE (ZEC)\tOUTPUTS")
		for _, row := range score.Rows {
			labels := make([]string, len(row.Chips))
			for i, chip := range row.Chips {
				labels[i] = fmt.Sprintf("%s [%s]", chip.Label, chip.Tier)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", row.Hash, row.Value, strings.Join(labels, ", "))
		}
		tw.Flush()
	}

	fmt.Fprintf(w, "\nShare: %s\n", score.ShareURL)
}
