package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/txpulse/txpulse/service/ledger"
	"github.com/txpulse/txpulse/service/metrics"
	"github.com/txpulse/txpulse/service/monitor"
	"github.com/txpulse/txpulse/service/notify"
)

// WatchWalletInput contains the input parameters for one watch cycle.
type WatchWalletInput struct {
	Address  string `json:"address"`
	Nickname string `json:"nickname"`
	Limit    int    `json:"limit,omitempty"`
}

// WatchWalletResult contains the result of one watch cycle.
type WatchWalletResult struct {
	Address           string    `json:"address"`
	Fetched           int       `json:"fetched"`
	NewTransactions   int       `json:"new_transactions"`
	StatusTransitions int       `json:"status_transitions"`
	Published         int       `json:"published"`
	WatchTime         time.Time `json:"watch_time"`
	Error             *string   `json:"error,omitempty"`
}

// FetchTransactionsInput contains parameters for the FetchTransactions activity.
type FetchTransactionsInput struct {
	Address string `json:"address"`
	Limit   int    `json:"limit,omitempty"`
}

// FetchTransactionsResult contains the result of fetching from the ledger.
type FetchTransactionsResult struct {
	Records []*ledger.TransactionRecord `json:"records"`
}

// DetectChangesInput contains parameters for the DetectChanges activity.
type DetectChangesInput struct {
	Address string                      `json:"address"`
	Records []*ledger.TransactionRecord `json:"records"`
}

// DetectChangesResult contains the change events of one detection cycle.
type DetectChangesResult struct {
	Events []monitor.ChangeEvent `json:"events"`
}

// PublishNotificationsInput contains parameters for the PublishNotifications activity.
type PublishNotificationsInput struct {
	Events []monitor.ChangeEvent `json:"events"`
}

// PublishNotificationsResult contains the publish outcome.
type PublishNotificationsResult struct {
	Published int `json:"published"`
}

// LedgerClientInterface defines the ledger operations needed by activities.
// This allows for easy mocking in tests.
type LedgerClientInterface interface {
	FetchTransactions(ctx context.Context, params ledger.FetchParams) ([]*ledger.TransactionRecord, error)
}

// PublisherInterface defines the notification delivery operations needed by
// activities. This allows for easy mocking in tests.
type PublisherInterface interface {
	Publish(ctx context.Context, n *notify.Notification) error
	PublishBatch(ctx context.Context, ns []*notify.Notification) error
}

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit. The address state
// store lives inside this worker process, so all schedules for a deployment
// must target the same task queue served by a single worker.
type Activities struct {
	store     *monitor.Store
	ledger    LedgerClientInterface
	detector  *monitor.Detector
	publisher PublisherInterface
	formatter *notify.Formatter
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If m is nil, no metrics will be recorded.
func NewActivities(
	store *monitor.Store,
	ledgerClient LedgerClientInterface,
	detector *monitor.Detector,
	publisher PublisherInterface,
	formatter *notify.Formatter,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:     store,
		ledger:    ledgerClient,
		detector:  detector,
		publisher: publisher,
		formatter: formatter,
		metrics:   m,
		logger:    logger,
	}
}

// FetchTransactions fetches transactions newer than the address's sync
// marker from the ledger. On error the marker is untouched, so the next
// cycle retries from the same position and nothing is skipped.
func (a *Activities) FetchTransactions(ctx context.Context, input FetchTransactionsInput) (*FetchTransactionsResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("FetchTransactions", input.Address, time.Since(start).Seconds())
		}
	}()

	pubkey, err := solanago.PublicKeyFromBase58(input.Address)
	if err != nil {
		a.logger.ErrorContext(ctx, "invalid wallet address",
			"address", input.Address,
			"error", err,
		)
		return nil, fmt.Errorf("invalid wallet address: %w", err)
	}

	marker := a.store.Marker(input.Address)

	a.logger.DebugContext(ctx, "fetching transactions",
		"address", input.Address,
		"marker", marker,
		"limit", input.Limit,
	)

	records, err := a.ledger.FetchTransactions(ctx, ledger.FetchParams{
		Address: pubkey,
		SinceID: marker,
		Limit:   input.Limit,
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to fetch transactions",
			"address", input.Address,
			"error", err,
		)
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	a.logger.InfoContext(ctx, "fetched transactions",
		"address", input.Address,
		"count", len(records),
	)

	return &FetchTransactionsResult{Records: records}, nil
}

// DetectChanges diffs fetched records against the address state store and
// returns the resulting change events. The sync marker advances here, and
// only here, so a cycle that failed at fetch never moves it.
func (a *Activities) DetectChanges(ctx context.Context, input DetectChangesInput) (*DetectChangesResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("DetectChanges", input.Address, time.Since(start).Seconds())
		}
	}()

	events := a.detector.ProcessRecords(ctx, input.Address, input.Records)

	return &DetectChangesResult{Events: events}, nil
}

// PublishNotifications formats and delivers change events. Delivery is best
// effort: individual publish failures are logged and counted but never fail
// the activity, so a broker outage cannot stall watching.
func (a *Activities) PublishNotifications(ctx context.Context, input PublishNotificationsInput) (*PublishNotificationsResult, error) {
	if len(input.Events) == 0 {
		return &PublishNotificationsResult{}, nil
	}

	address := input.Events[0].Record.Address
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("PublishNotifications", address, time.Since(start).Seconds())
		}
	}()

	published := 0
	for _, ev := range input.Events {
		n := a.formatter.Format(ctx, ev)
		if err := a.publisher.Publish(ctx, n); err != nil {
			a.logger.ErrorContext(ctx, "failed to publish notification",
				"wallet", ev.AddressNickname,
				"kind", ev.Kind,
				"tx", ev.Record.ID,
				"error", err,
			)
			continue
		}
		published++
	}

	a.logger.InfoContext(ctx, "published notifications",
		"wallet", input.Events[0].AddressNickname,
		"published", published,
		"total", len(input.Events),
	)

	return &PublishNotificationsResult{Published: published}, nil
}
