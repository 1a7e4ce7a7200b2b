package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/txpulse/txpulse/service/config"
	"github.com/txpulse/txpulse/service/temporal"
	"github.com/urfave/cli/v2"
	"go.temporal.io/sdk/client"
)

const schedulePrefix = "watch-wallet-"

func listSchedulesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-schedules",
		Usage:   "List all Temporal schedules",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			iter, err := temporalClient.ScheduleClient().List(ctx, client.ScheduleListOptions{
				PageSize: 100,
			})
			if err != nil {
				return fmt.Errorf("failed to list schedules: %w", err)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCHEDULE ID")
			count := 0
			for iter.HasNext() {
				schedule, err := iter.Next()
				if err != nil {
					return fmt.Errorf("failed to iterate schedules: %w", err)
				}
				fmt.Fprintf(w, "%s\n", schedule.ID)
				count++
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d schedules\n", count)
			return nil
		},
	}
}

func describeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "describe-schedule",
		Usage:     "Describe a Temporal schedule",
		Aliases:   []string{"desc"},
		ArgsUsage: "<schedule-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			desc, err := handle.Describe(ctx)
			if err != nil {
				return fmt.Errorf("failed to describe schedule: %w", err)
			}

			// Pretty output
			fmt.Printf("Schedule ID:    %s\n", scheduleID)
			fmt.Printf("State Note:     %s\n", desc.Schedule.State.Note)
			fmt.Printf("Paused:         %v\n", desc.Schedule.State.Paused)

			if action := desc.Schedule.Action; action != nil {
				if wa, ok := action.(*client.ScheduleWorkflowAction); ok {
					fmt.Printf("\nWorkflow:\n")
					fmt.Printf("  Workflow:     %s\n", wa.Workflow)
					fmt.Printf("  Task Queue:   %s\n", wa.TaskQueue)
					fmt.Printf("  Args:         %v\n", wa.Args)
				}
			}

			if len(desc.Schedule.Spec.Intervals) > 0 {
				fmt.Printf("\nSchedule Spec:\n")
				for i, interval := range desc.Schedule.Spec.Intervals {
					fmt.Printf("  Interval %d:   Every %v\n", i+1, interval.Every)
				}
			}

			fmt.Printf("\nRecent Actions: %d\n", len(desc.Info.RecentActions))
			if len(desc.Info.RecentActions) > 0 {
				lastAction := desc.Info.RecentActions[len(desc.Info.RecentActions)-1]
				fmt.Printf("Last Action:  %s\n", lastAction.ActualTime.Format(time.RFC3339))
			}

			return nil
		},
	}
}

func pauseScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "pause-schedule",
		Usage:     "Pause a Temporal schedule",
		ArgsUsage: "<schedule-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note explaining why schedule is paused",
				Value: "Paused via txpulse CLI",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()
			note := c.String("note")

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			err = handle.Pause(ctx, client.SchedulePauseOptions{
				Note: note,
			})
			if err != nil {
				return fmt.Errorf("failed to pause schedule: %w", err)
			}

			fmt.Printf("✓ Schedule paused: %s\n", scheduleID)
			if note != "" {
				fmt.Printf("  Note: %s\n", note)
			}
			return nil
		},
	}
}

func resumeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "resume-schedule",
		Usage:     "Resume a paused Temporal schedule",
		ArgsUsage: "<schedule-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note explaining why schedule is resumed",
				Value: "Resumed via txpulse CLI",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()
			note := c.String("note")

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			err = handle.Unpause(ctx, client.ScheduleUnpauseOptions{
				Note: note,
			})
			if err != nil {
				return fmt.Errorf("failed to resume schedule: %w", err)
			}

			fmt.Printf("✓ Schedule resumed: %s\n", scheduleID)
			if note != "" {
				fmt.Printf("  Note: %s\n", note)
			}
			return nil
		},
	}
}

func deleteScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-schedule",
		Usage:     "Delete a Temporal schedule (use for orphaned schedules)",
		ArgsUsage: "<schedule-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Skip confirmation prompt",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()

			// Confirm deletion unless --force
			if !c.Bool("force") {
				fmt.Printf("Are you sure you want to delete schedule %s? (yes/no): ", scheduleID)
				var response string
				fmt.Scanln(&response)
				if response != "yes" {
					fmt.Println("Cancelled")
					return nil
				}
			}

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			err = handle.Delete(ctx)
			if err != nil {
				return fmt.Errorf("failed to delete schedule: %w", err)
			}

			fmt.Printf("✓ Schedule deleted: %s\n", scheduleID)
			return nil
		},
	}
}

func createScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "create-schedule",
		Usage:     "Manually create a watch schedule for a wallet",
		ArgsUsage: "<wallet-address> <nickname> <poll-interval>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "task-queue",
				Usage:   "Task queue name",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "txpulse-wallet-watching",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 3 {
				return fmt.Errorf("requires exactly three arguments: wallet-address nickname poll-interval")
			}

			address := c.Args().Get(0)
			nickname := c.Args().Get(1)
			interval, err := time.ParseDuration(c.Args().Get(2))
			if err != nil {
				return fmt.Errorf("invalid poll-interval: %w", err)
			}

			tc, err := getServiceTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.CreateWalletSchedule(context.Background(), address, nickname, interval); err != nil {
				return fmt.Errorf("failed to create schedule: %w", err)
			}

			fmt.Printf("✓ Schedule created: %s%s\n", schedulePrefix, address)
			fmt.Printf("  Wallet:   %s (%s)\n", nickname, address)
			fmt.Printf("  Interval: %v\n", interval)
			fmt.Printf("  Task Queue: %s\n", c.String("task-queue"))
			return nil
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Check for inconsistencies between configured wallets and Temporal schedules",
		Description: `Reads WATCH_WALLETS from the environment, upserts a watch schedule for
each configured wallet, and reports schedules that no longer correspond
to a configured wallet. Orphans are deleted with --fix.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "fix",
				Usage: "Delete orphaned schedules",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			tc, err := getServiceTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			ctx := context.Background()

			// Upsert schedules for all configured wallets
			wallets := make([]temporal.WalletSpec, 0, len(cfg.Wallets))
			configured := make(map[string]bool, len(cfg.Wallets))
			for _, w := range cfg.Wallets {
				wallets = append(wallets, temporal.WalletSpec{Address: w.Address, Nickname: w.Nickname})
				configured[w.Address] = true
			}
			if err := temporal.ReconcileSchedules(ctx, tc, wallets, cfg.PollInterval); err != nil {
				return fmt.Errorf("failed to reconcile schedules: %w", err)
			}

			// Find watch schedules without a configured wallet
			iter, err := tc.SDKClient().ScheduleClient().List(ctx, client.ScheduleListOptions{
				PageSize: 1000,
			})
			if err != nil {
				return fmt.Errorf("failed to list schedules: %w", err)
			}

			var orphaned []string
			total := 0
			for iter.HasNext() {
				schedule, err := iter.Next()
				if err != nil {
					return fmt.Errorf("failed to iterate schedules: %w", err)
				}
				if !strings.HasPrefix(schedule.ID, schedulePrefix) {
					continue
				}
				total++
				address := strings.TrimPrefix(schedule.ID, schedulePrefix)
				if !configured[address] {
					orphaned = append(orphaned, schedule.ID)
				}
			}

			fmt.Printf("Reconciliation Report:\n")
			fmt.Printf("  Configured wallets:    %d\n", len(cfg.Wallets))
			fmt.Printf("  Schedules in Temporal: %d\n", total)
			fmt.Printf("\n")

			if len(orphaned) == 0 {
				fmt.Printf("✓ No orphaned schedules\n")
				return nil
			}

			fmt.Printf("⚠ Orphaned schedules (%d):\n", len(orphaned))
			for _, id := range orphaned {
				fmt.Printf("  - %s\n", id)
			}

			if !c.Bool("fix") {
				fmt.Printf("\nTo delete these schedules, run: txpulse temporal reconcile --fix\n")
				return nil
			}

			fmt.Printf("\nDeleting orphaned schedules...\n")
			for _, id := range orphaned {
				address := strings.TrimPrefix(id, schedulePrefix)
				if err := tc.DeleteWalletSchedule(ctx, address); err != nil {
					fmt.Printf("  ✗ Failed to delete %s: %v\n", id, err)
				} else {
					fmt.Printf("  ✓ Deleted %s\n", id)
				}
			}
			fmt.Printf("\nReconciliation complete!\n")
			return nil
		},
	}
}

// getTemporalClient connects to Temporal with the raw SDK client.
func getTemporalClient(c *cli.Context) (client.Client, error) {
	temporalClient, err := client.Dial(client.Options{
		HostPort:  c.String("temporal-host"),
		Namespace: c.String("temporal-namespace"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	return temporalClient, nil
}

// getServiceTemporalClient connects with the service's schedule-aware client.
func getServiceTemporalClient(c *cli.Context) (*temporal.Client, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	taskQueue := c.String("task-queue")
	if taskQueue == "" {
		taskQueue = "txpulse-wallet-watching"
	}

	return temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		taskQueue,
		logger,
	)
}
