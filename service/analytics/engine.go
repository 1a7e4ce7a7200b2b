package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/txpulse/txpulse/service/ledger"
	"github.com/txpulse/txpulse/service/metrics"
	"github.com/txpulse/txpulse/service/monitor"
)

// maxListedTransactions caps how many records a TransactionList answer
// carries; the total count is still reported.
const maxListedTransactions = 50

// HistoryFetcher is the slice of the ledger client the engine needs for
// supplemental historical fetches. Mockable in tests.
type HistoryFetcher interface {
	FetchWindow(ctx context.Context, address solana.PublicKey, start, end time.Time) ([]*ledger.TransactionRecord, error)
}

// Engine resolves a natural-language question about a named wallet into a
// deterministic computation over transaction history. It reads the address
// state store populated by the change detector and reaches back to the
// ledger only when the requested window predates what the store has
// observed.
type Engine struct {
	store         *monitor.Store
	history       HistoryFetcher
	defaultWindow time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger

	// now is swappable so window resolution is testable against a fixed
	// clock.
	now func() time.Time
}

// NewEngine creates an analytics engine. If m is nil, no metrics are
// recorded. defaultWindow <= 0 falls back to the documented 30-day default.
func NewEngine(store *monitor.Store, history HistoryFetcher, defaultWindow time.Duration, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultWindow <= 0 {
		defaultWindow = DefaultWindowDays * 24 * time.Hour
	}
	return &Engine{
		store:         store,
		history:       history,
		defaultWindow: defaultWindow,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

// Query answers a free-form question about a configured wallet. Errors are
// typed: *ResolutionError for an unknown nickname, *DataUnavailableError
// when required history could not be fetched. An empty window is a valid
// zero/empty answer, not an error.
func (e *Engine) Query(ctx context.Context, req QueryRequest) (*Result, error) {
	started := time.Now()
	intent, direction := classifyIntent(req.Question)

	res, err := e.query(ctx, req, intent, direction)

	if e.metrics != nil {
		status := "ok"
		switch err.(type) {
		case *ResolutionError:
			status = "resolution_error"
		case *DataUnavailableError:
			status = "data_unavailable"
		default:
			if err != nil {
				status = "error"
			}
		}
		e.metrics.RecordQuery(string(intent), status, time.Since(started).Seconds())
	}
	return res, err
}

func (e *Engine) query(ctx context.Context, req QueryRequest, intent Intent, direction *ledger.Direction) (*Result, error) {
	address, ok := e.store.ResolveNickname(req.WalletNickname)
	if !ok {
		return nil, &ResolutionError{Nickname: req.WalletNickname}
	}

	now := e.now()
	window, _ := resolveWindow(req.Question, now, e.defaultWindow)

	res := &Result{
		Intent:    intent,
		Wallet:    e.store.Nickname(address),
		Address:   address,
		Window:    window,
		Question:  req.Question,
		Direction: direction,
	}

	e.logger.DebugContext(ctx, "resolved analytics query",
		"wallet", res.Wallet,
		"intent", intent,
		"window_start", window.Start,
		"window_end", window.End,
	)

	switch intent {
	case IntentCurrentBalance:
		// Balance and holdings are computed over the full observed history,
		// not a window: they are running totals, not windowed aggregates.
		res.Window = e.observedRange(address, now)
		balance := e.balance(address, now)
		res.Balance = &balance
		return res, nil

	case IntentTokenHoldings:
		res.Window = e.observedRange(address, now)
		all := e.store.RecordsInWindow(address, time.Time{}, now)
		res.TokenHoldings = tokenFlows(confirmedOnly(all))
		return res, nil
	}

	recs, err := e.recordsFor(ctx, address, window)
	if err != nil {
		return nil, err
	}
	recs = filterDirection(recs, direction)

	switch intent {
	case IntentTransactionList:
		total := len(recs)
		res.Count = &total
		res.Transactions = newestFirst(recs, maxListedTransactions)

	case IntentCount:
		total := len(recs)
		res.Count = &total

	case IntentFlowSummary:
		flow := flowSummary(confirmedOnly(recs))
		res.Flow = &flow

	case IntentLargestTransaction:
		res.Largest = largestByMagnitude(recs)

	case IntentTrendOverTime:
		bucket := bucketSize(window)
		res.Trend = trendBuckets(confirmedOnly(recs), window, bucket)
		if bucket == time.Hour {
			res.BucketSize = "hour"
		} else {
			res.BucketSize = "day"
		}

	case IntentComparisonOverTime:
		compare := resolveCompareWindow(req.Question, window, now)
		compareRecs, err := e.recordsFor(ctx, address, compare)
		if err != nil {
			return nil, err
		}
		compareRecs = filterDirection(compareRecs, direction)

		flow := flowSummary(confirmedOnly(recs))
		compareFlow := flowSummary(confirmedOnly(compareRecs))
		res.Flow = &flow
		res.CompareWindow = &compare
		res.CompareFlow = &compareFlow
	}

	return res, nil
}

// recordsFor sources the records for a window: the in-memory store first,
// extended by a supplemental historical fetch when the window starts before
// anything the store has observed. Fetched history is merged into the store
// by id so repeated queries do not refetch.
func (e *Engine) recordsFor(ctx context.Context, address string, window TimeRange) ([]*ledger.TransactionRecord, error) {
	earliest := e.store.EarliestObserved(address)
	if earliest.IsZero() || window.Start.Before(earliest) {
		pubkey, err := solana.PublicKeyFromBase58(address)
		if err != nil {
			return nil, fmt.Errorf("invalid configured address %q: %w", address, err)
		}

		recs, err := e.history.FetchWindow(ctx, pubkey, window.Start, window.End)
		if err != nil {
			e.logger.WarnContext(ctx, "supplemental history fetch failed",
				"address", address,
				"window_start", window.Start,
				"error", err,
			)
			return nil, &DataUnavailableError{Window: window, Err: err}
		}
		e.store.MergeHistory(address, recs)
	}

	return e.store.RecordsInWindow(address, window.Start, window.End), nil
}

// balance sums the confirmed net effect of every observed transaction:
// signed amount minus the fee the address paid. Pending transactions are
// excluded so the figure never drifts on unfinalized state.
func (e *Engine) balance(address string, now time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, rec := range e.store.RecordsInWindow(address, time.Time{}, now) {
		if !rec.Confirmed() {
			continue
		}
		total = total.Add(rec.Amount).Sub(rec.Fee)
	}
	return total
}

// observedRange is the window actually backing a full-history answer.
func (e *Engine) observedRange(address string, now time.Time) TimeRange {
	start := e.store.EarliestObserved(address)
	return TimeRange{Start: start, End: now}
}

func filterDirection(recs []*ledger.TransactionRecord, direction *ledger.Direction) []*ledger.TransactionRecord {
	if direction == nil {
		return recs
	}
	out := recs[:0:0]
	for _, rec := range recs {
		if rec.Direction == *direction {
			out = append(out, rec)
		}
	}
	return out
}

func confirmedOnly(recs []*ledger.TransactionRecord) []*ledger.TransactionRecord {
	out := recs[:0:0]
	for _, rec := range recs {
		if rec.Confirmed() {
			out = append(out, rec)
		}
	}
	return out
}

// flowSummary computes inflow, outflow and net from signed amounts with
// exact decimal arithmetic. Outflow is a positive magnitude.
func flowSummary(recs []*ledger.TransactionRecord) FlowSummary {
	flow := FlowSummary{
		Inflow:  decimal.Zero,
		Outflow: decimal.Zero,
		Net:     decimal.Zero,
	}
	for _, rec := range recs {
		if rec.Amount.Sign() >= 0 {
			flow.Inflow = flow.Inflow.Add(rec.Amount)
		} else {
			flow.Outflow = flow.Outflow.Add(rec.Amount.Neg())
		}
		flow.Count++
	}
	flow.Net = flow.Inflow.Sub(flow.Outflow)
	return flow
}

func largestByMagnitude(recs []*ledger.TransactionRecord) *ledger.TransactionRecord {
	var largest *ledger.TransactionRecord
	for _, rec := range recs {
		if largest == nil || rec.Amount.Abs().GreaterThan(largest.Amount.Abs()) {
			largest = rec
		}
	}
	return largest
}

func tokenFlows(recs []*ledger.TransactionRecord) []TokenFlow {
	byMint := make(map[string]*TokenFlow)
	for _, rec := range recs {
		for _, tt := range rec.TokenTransfers {
			flow, ok := byMint[tt.Mint]
			if !ok {
				flow = &TokenFlow{
					Mint:    tt.Mint,
					Symbol:  tt.Symbol,
					Inflow:  decimal.Zero,
					Outflow: decimal.Zero,
					Net:     decimal.Zero,
				}
				byMint[tt.Mint] = flow
			}
			if tt.Amount.Sign() >= 0 {
				flow.Inflow = flow.Inflow.Add(tt.Amount)
			} else {
				flow.Outflow = flow.Outflow.Add(tt.Amount.Neg())
			}
			flow.Net = flow.Inflow.Sub(flow.Outflow)
		}
	}

	out := make([]TokenFlow, 0, len(byMint))
	for _, flow := range byMint {
		out = append(out, *flow)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Net.Abs().GreaterThan(out[j].Net.Abs())
	})
	return out
}

// bucketSize picks hourly buckets for short windows, daily otherwise.
func bucketSize(window TimeRange) time.Duration {
	if window.Duration() <= 48*time.Hour {
		return time.Hour
	}
	return 24 * time.Hour
}

// trendBuckets produces the full bucketed series covering the window,
// including empty buckets, oldest first.
func trendBuckets(recs []*ledger.TransactionRecord, window TimeRange, bucket time.Duration) []TrendBucket {
	if !window.End.After(window.Start) {
		return nil
	}

	start := window.Start.Truncate(bucket)
	n := int(window.End.Sub(start)/bucket) + 1
	buckets := make([]TrendBucket, n)
	for i := range buckets {
		buckets[i] = TrendBucket{
			Start:   start.Add(time.Duration(i) * bucket),
			Inflow:  decimal.Zero,
			Outflow: decimal.Zero,
			Net:     decimal.Zero,
		}
	}

	for _, rec := range recs {
		if rec.Timestamp.IsZero() || !window.Contains(rec.Timestamp) {
			continue
		}
		i := int(rec.Timestamp.Sub(start) / bucket)
		if i < 0 || i >= n {
			continue
		}
		b := &buckets[i]
		if rec.Amount.Sign() >= 0 {
			b.Inflow = b.Inflow.Add(rec.Amount)
		} else {
			b.Outflow = b.Outflow.Add(rec.Amount.Neg())
		}
		b.Net = b.Inflow.Sub(b.Outflow)
		b.Count++
	}

	return buckets
}

// newestFirst returns up to limit records sorted newest first.
func newestFirst(recs []*ledger.TransactionRecord, limit int) []*ledger.TransactionRecord {
	out := make([]*ledger.TransactionRecord, len(recs))
	copy(out, recs)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
