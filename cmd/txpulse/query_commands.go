package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/itchyny/gojq"
	"github.com/txpulse/txpulse/client"
	"github.com/txpulse/txpulse/service/analytics"
	"github.com/urfave/cli/v2"
)

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Aliases:   []string{"q", "ask"},
		Usage:     "Ask a natural-language question about a watched wallet",
		ArgsUsage: "NICKNAME QUESTION...",
		Description: `Send a free-form question about a wallet to the analytics engine.

The nickname must match a configured wallet (case-insensitive). Everything
after the nickname is joined into the question.

Examples:
  txpulse query "Main Treasury" what is the balance
  txpulse query ops-wallet how much came in last week --jq '.flow.inflow'`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq expression applied to the JSON result (can be specified multiple times)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("requires a wallet nickname and a question")
			}

			nickname := c.Args().Get(0)
			question := strings.Join(c.Args().Slice()[1:], " ")
			jqFilters := c.StringSlice("jq")
			jsonOutput := c.Bool("json")

			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelError,
			}))

			cl := client.NewClient(c.String("server-url"), nil, logger)

			result, err := cl.Query(context.Background(), nickname, question)
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}

			if len(jqFilters) > 0 {
				return printFiltered(result, jqFilters)
			}

			if jsonOutput {
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal result: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			printResult(result)
			return nil
		},
	}
}

// printFiltered runs each jq expression against the result and prints every
// output value as a JSON line.
func printFiltered(result *analytics.Result, filters []string) error {
	// Round-trip through JSON so gojq sees plain maps and slices
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	var input interface{}
	if err := json.Unmarshal(raw, &input); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}

	for _, filter := range filters {
		outputs, err := evalJQ(filter, input)
		if err != nil {
			return err
		}
		for _, v := range outputs {
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("failed to marshal jq output: %w", err)
			}
			fmt.Println(string(data))
		}
	}
	return nil
}

// evalJQ compiles and runs a jq expression against input, collecting all
// output values.
func evalJQ(filter string, input interface{}) ([]interface{}, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	var outputs []interface{}
	iter := code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("jq filter %q: %w", filter, err)
		}
		outputs = append(outputs, v)
	}
	return outputs, nil
}

// printResult renders a human-readable answer for each intent.
func printResult(r *analytics.Result) {
	fmt.Printf("Wallet:  %s (%s)\n", r.Wallet, r.Address)
	fmt.Printf("Intent:  %s\n", r.Intent)
	if !r.Window.Start.IsZero() || !r.Window.End.IsZero() {
		fmt.Printf("Window:  %s - %s\n",
			r.Window.Start.Format(time.RFC3339),
			r.Window.End.Format(time.RFC3339),
		)
	}
	fmt.Println()

	switch r.Intent {
	case analytics.IntentCurrentBalance:
		if r.Balance != nil {
			fmt.Printf("Balance: %s SOL\n", r.Balance)
		}
	case analytics.IntentCount:
		if r.Count != nil {
			fmt.Printf("Transactions: %d\n", *r.Count)
		}
	case analytics.IntentFlowSummary:
		if r.Flow != nil {
			printFlow(*r.Flow, "")
		}
	case analytics.IntentLargestTransaction:
		if r.Largest != nil {
			fmt.Printf("Largest: %s SOL (%s)\n", r.Largest.Amount.Abs(), r.Largest.ID)
			fmt.Printf("  Time:   %s\n", r.Largest.Timestamp.Format(time.RFC3339))
			fmt.Printf("  Status: %s\n", r.Largest.Status)
		}
	case analytics.IntentTokenHoldings:
		for _, tf := range r.TokenHoldings {
			name := tf.Symbol
			if name == "" {
				name = tf.Mint
			}
			fmt.Printf("%-12s in %s / out %s / net %s\n", name, tf.Inflow, tf.Outflow, tf.Net)
		}
	case analytics.IntentComparisonOverTime:
		if r.Flow != nil {
			printFlow(*r.Flow, "Current:  ")
		}
		if r.CompareFlow != nil {
			printFlow(*r.CompareFlow, "Previous: ")
		}
	case analytics.IntentTrendOverTime:
		for _, b := range r.Trend {
			fmt.Printf("%s  in %s / out %s / net %s (%d txns)\n",
				b.Start.Format(time.RFC3339), b.Inflow, b.Outflow, b.Net, b.Count)
		}
	case analytics.IntentTransactionList:
		if len(r.Transactions) == 0 {
			fmt.Println("No transactions in window")
			return
		}
		for i, txn := range r.Transactions {
			fmt.Printf("[%d] %s\n", i+1, txn.ID)
			fmt.Printf("    Amount: %s SOL\n", txn.Amount)
			fmt.Printf("    Status: %s\n", txn.Status)
			fmt.Printf("    Time:   %s\n", txn.Timestamp.Format(time.RFC3339))
		}
	}
}

func printFlow(f analytics.FlowSummary, prefix string) {
	fmt.Printf("%sInflow:  %s SOL\n", prefix, f.Inflow)
	fmt.Printf("%sOutflow: %s SOL\n", prefix, f.Outflow)
	fmt.Printf("%sNet:     %s SOL (%d transactions)\n", prefix, f.Net, f.Count)
}
