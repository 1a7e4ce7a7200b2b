package temporal

import (
	"context"
	"fmt"
	"time"
)

// Scheduler manages Temporal schedules for wallet watching.
// Each wallet gets its own schedule that triggers the WatchWalletWorkflow.
type Scheduler interface {
	// CreateWalletSchedule creates a new schedule for watching a wallet.
	// The schedule will trigger the WatchWalletWorkflow on the given interval.
	CreateWalletSchedule(ctx context.Context, address, nickname string, interval time.Duration) error

	// UpsertWalletSchedule creates the schedule if missing, otherwise updates
	// its watch interval in place.
	UpsertWalletSchedule(ctx context.Context, address, nickname string, interval time.Duration) error

	// DeleteWalletSchedule deletes the schedule for a wallet.
	// This stops the wallet from being watched.
	DeleteWalletSchedule(ctx context.Context, address string) error
}

// WalletSpec names one wallet to keep a schedule for.
type WalletSpec struct {
	Address  string
	Nickname string
}

// ReconcileSchedules upserts a schedule for every configured wallet. Called
// at startup so configuration changes take effect on restart.
func ReconcileSchedules(ctx context.Context, s Scheduler, wallets []WalletSpec, interval time.Duration) error {
	for _, w := range wallets {
		if err := s.UpsertWalletSchedule(ctx, w.Address, w.Nickname, interval); err != nil {
			return fmt.Errorf("failed to reconcile schedule for %s: %w", w.Nickname, err)
		}
	}
	return nil
}

// scheduleID returns the Temporal schedule ID for a wallet address.
func scheduleID(address string) string {
	return "watch-wallet-" + address
}
