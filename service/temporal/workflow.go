package temporal

import (
	"fmt"
	"time"

	"github.com/txpulse/txpulse/service/monitor"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// WatchWalletWorkflow is the Temporal workflow that runs one watch cycle for
// a single wallet. It is triggered by a per-wallet schedule at the configured
// interval; the schedule's overlap policy skips a cycle while the previous
// one is still running, so cycles for one address never interleave.
//
// The workflow performs these steps:
// 1. Fetch transactions newer than the sync marker (FetchTransactions activity)
// 2. Diff against known state and emit change events (DetectChanges activity)
// 3. Deliver notifications for the events (PublishNotifications activity)
//
// A fetch failure fails the cycle before the marker moves, so the next cycle
// retries from the same position. A publish failure is best effort and never
// fails the cycle.
func WatchWalletWorkflow(ctx workflow.Context, input WatchWalletInput) (*WatchWalletResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("WatchWalletWorkflow started", "address", input.Address, "nickname", input.Nickname)

	result := &WatchWalletResult{
		Address:   input.Address,
		WatchTime: workflow.Now(ctx),
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 120 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	// Step 1: Fetch transactions above the sync marker.
	var fetchResult *FetchTransactionsResult
	err := workflow.ExecuteActivity(ctx, a.FetchTransactions, FetchTransactionsInput{
		Address: input.Address,
		Limit:   input.Limit,
	}).Get(ctx, &fetchResult)
	if err != nil {
		logger.Error("failed to fetch transactions", "address", input.Address, "error", err)
		errMsg := fmt.Sprintf("failed to fetch transactions: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	result.Fetched = len(fetchResult.Records)
	logger.Info("fetched transactions", "address", input.Address, "count", result.Fetched)

	// Step 2: Detect changes. This is where the marker advances, so it only
	// runs after a successful fetch.
	var detectResult *DetectChangesResult
	err = workflow.ExecuteActivity(ctx, a.DetectChanges, DetectChangesInput{
		Address: input.Address,
		Records: fetchResult.Records,
	}).Get(ctx, &detectResult)
	if err != nil {
		logger.Error("failed to detect changes", "address", input.Address, "error", err)
		errMsg := fmt.Sprintf("failed to detect changes: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to detect changes: %w", err)
	}

	for _, ev := range detectResult.Events {
		switch ev.Kind {
		case monitor.KindNewTransaction:
			result.NewTransactions++
		case monitor.KindStatusTransition:
			result.StatusTransitions++
		}
	}

	if len(detectResult.Events) == 0 {
		logger.Info("no changes detected", "address", input.Address)
		return result, nil
	}

	logger.Info("detected changes",
		"address", input.Address,
		"new_transactions", result.NewTransactions,
		"status_transitions", result.StatusTransitions,
	)

	// Step 3: Deliver notifications. Best effort: a delivery failure must
	// not fail the cycle or block the marker, so errors are logged only.
	var publishResult *PublishNotificationsResult
	err = workflow.ExecuteActivity(ctx, a.PublishNotifications, PublishNotificationsInput{
		Events: detectResult.Events,
	}).Get(ctx, &publishResult)
	if err != nil {
		logger.Warn("failed to publish notifications", "address", input.Address, "error", err)
	} else {
		result.Published = publishResult.Published
	}

	logger.Info("WatchWalletWorkflow completed",
		"address", input.Address,
		"fetched", result.Fetched,
		"events", len(detectResult.Events),
		"published", result.Published,
	)

	return result, nil
}
