package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/zviewer/service/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func listHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Usage:   "List recorded lookups, newest first",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "address",
				Aliases: []string{"a"},
				Usage:   "Filter by requested address",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of lookups",
				Value:   db.DefaultListLimit,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Skip this many lookups",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			ctx := context.Background()
			address := c.String("address")
			lookups, err := store.ListLookups(ctx, db.ListLookupsParams{
				RequestedAddress: address,
				Limit:            c.Int("limit"),
				Offset:           c.Int("offset"),
			})
			if err != nil {
				return fmt.Errorf("failed to list lookups: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, lookups)
			}

			total, err := store.CountLookups(ctx, address)
			if err != nil {
				return fmt.Errorf("failed to count lookups: %w", err)
			}

			printLookups(c, lookups)
			fmt.Fprintf(os.Stderr, "\nShowing %d of %d lookups\n", len(lookups), total)
			return nil
		},
	}
}

func getHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show one recorded lookup",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: lookup id")
			}

			id, err := uuid.Parse(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid lookup id: %w", err)
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			lookup, err := store.GetLookup(context.Background(), id)
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("lookup %s not found", id)
			}
			if err != nil {
				return fmt.Errorf("failed to get lookup: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, lookup)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "ID:           %s\n", lookup.ID)
			fmt.Fprintf(w, "Requested:    %s\n", lookup.RequestedAddress)
			fmt.Fprintf(w, "Address:      %s\n", lookup.Address)
			fmt.Fprintf(w, "Score:        %d%%\n", lookup.Score)
			fmt.Fprintf(w, "Source:       %s\n", lookup.Source)
			fmt.Fprintf(w, "Fallback:     %s\n", formatReason(lookup.FallbackReason))
			fmt.Fprintf(w, "Transactions: %d/%d fetched\n", lookup.TransactionsFetched, lookup.TransactionsRequested)
			fmt.Fprintf(w, "Outputs:      %d/%d shielded\n", lookup.ShieldedOutputs, lookup.TotalOutputs)
			fmt.Fprintf(w, "Created:      %s\n", lookup.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func printLookups(c *cli.Context, lookups []*db.Lookup) {
	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREQUESTED\tSCORE\tSOURCE\tFALLBACK\tOUTPUTS\tCREATED")
	for _, l := range lookups {
		fmt.Fprintf(w, "%s\t%s\t%d%%\t%s\t%s\t%d/%d\t%s\n",
			l.ID,
			l.RequestedAddress,
			l.Score,
			l.Source,
			formatReason(l.FallbackReason),
			l.ShieldedOutputs,
			l.TotalOutputs,
			l.CreatedAt.Format(time.RFC3339),
		)
	}
	w.Flush()
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		// Try environment variable directly if flag not found
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool, nil)
	closer := func() { pool.Close() }

	return store, closer, nil
}

func formatReason(reason *string) string {
	if reason != nil && *reason != "" {
		return *reason
	}
	return "-"
}
