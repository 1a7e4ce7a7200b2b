package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/txpulse/txpulse/client"
	"github.com/urfave/cli/v2"
)

func walletCommands() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "Watched wallet inspection commands",
		Subcommands: []*cli.Command{
			walletListCommand(),
			walletTransactionsCommand(),
		},
	}
}

func walletListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List all watched wallets (outputs JSON by default)",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "table",
				Aliases: []string{"t"},
				Usage:   "Output as human-readable table instead of JSON",
			},
		},
		Action: func(c *cli.Context) error {
			tableOutput := c.Bool("table")

			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelError,
			}))

			cl := client.NewClient(c.String("server-url"), nil, logger)

			wallets, err := cl.ListWallets(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list wallets: %w", err)
			}

			// Default to JSON output
			if !tableOutput {
				data, _ := json.MarshalIndent(wallets, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			if len(wallets) == 0 {
				fmt.Println("No wallets watched")
				return nil
			}

			fmt.Printf("Found %d wallet(s):\n\n", len(wallets))
			for _, w := range wallets {
				fmt.Println("────────────────────────────────────────────────────────────")
				fmt.Printf("Nickname:     %s\n", w.Nickname)
				fmt.Printf("Address:      %s\n", w.Address)
				fmt.Printf("Transactions: %d\n", w.TrackedCount)
				fmt.Printf("Bootstrapped: %v\n", w.Bootstrapped)
				if w.SyncMarker != "" {
					fmt.Printf("Sync Marker:  %s\n", w.SyncMarker)
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func walletTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "transactions",
		Aliases:   []string{"txns", "tx"},
		Usage:     "List observed transactions for a wallet, newest first",
		ArgsUsage: "NICKNAME",
		Flags: []cli.Flag{
			&cli.TimestampFlag{
				Name:   "start",
				Usage:  "Window start (RFC3339)",
				Layout: time.RFC3339,
			},
			&cli.TimestampFlag{
				Name:   "end",
				Usage:  "Window end (RFC3339)",
				Layout: time.RFC3339,
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Value:   20,
				Usage:   "Maximum number of transactions to retrieve (1-1000)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet nickname is required")
			}

			nickname := c.Args().Get(0)
			limit := c.Int("limit")
			jsonOutput := c.Bool("json")

			if limit < 1 || limit > 1000 {
				return fmt.Errorf("limit must be between 1 and 1000")
			}

			opts := client.TransactionsOptions{Limit: limit}
			if ts := c.Timestamp("start"); ts != nil {
				opts.Start = *ts
			}
			if ts := c.Timestamp("end"); ts != nil {
				opts.End = *ts
			}

			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelError,
			}))

			cl := client.NewClient(c.String("server-url"), nil, logger)

			list, err := cl.Transactions(context.Background(), nickname, opts)
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(list, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			if len(list.Transactions) == 0 {
				fmt.Println("No transactions found")
				return nil
			}

			fmt.Printf("Found %d transaction(s) for %s (showing %d):\n\n",
				list.Total, list.Wallet, len(list.Transactions))
			for i, txn := range list.Transactions {
				fmt.Printf("[%d] %s\n", i+1, txn.ID)
				fmt.Printf("    Direction: %s\n", txn.Direction)
				fmt.Printf("    Amount:    %s SOL\n", txn.Amount)
				if !txn.Fee.IsZero() {
					fmt.Printf("    Fee:       %s SOL\n", txn.Fee)
				}
				if txn.Counterparty != "" {
					fmt.Printf("    Counterparty: %s\n", txn.Counterparty)
				}
				fmt.Printf("    Status:    %s\n", txn.Status)
				fmt.Printf("    Time:      %s\n", txn.Timestamp.Format(time.RFC3339))
				fmt.Println()
			}
			return nil
		},
	}
}
