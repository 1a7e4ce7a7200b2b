package analytics

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/txpulse/txpulse/service/ledger"
)

// Intent is the closed set of analysis categories a question can map to.
type Intent string

const (
	IntentCurrentBalance     Intent = "current_balance"
	IntentTransactionList    Intent = "transaction_list"
	IntentCount              Intent = "count"
	IntentFlowSummary        Intent = "flow_summary"
	IntentLargestTransaction Intent = "largest_transaction"
	IntentTokenHoldings      Intent = "token_holdings"
	IntentComparisonOverTime Intent = "comparison_over_time"
	IntentTrendOverTime      Intent = "trend_over_time"
)

// QueryRequest is a free-form question bound to a configured wallet.
type QueryRequest struct {
	WalletNickname string `json:"wallet_nickname"`
	Question       string `json:"question"`
}

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the length of the range.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// FlowSummary is the inflow/outflow/net aggregate over a window. Outflow is
// reported as a positive magnitude; Net = Inflow - Outflow.
type FlowSummary struct {
	Inflow  decimal.Decimal `json:"inflow"`
	Outflow decimal.Decimal `json:"outflow"`
	Net     decimal.Decimal `json:"net"`
	Count   int             `json:"count"`
}

// TokenFlow is the per-token movement aggregate.
type TokenFlow struct {
	Mint    string          `json:"mint"`
	Symbol  string          `json:"symbol,omitempty"`
	Inflow  decimal.Decimal `json:"inflow"`
	Outflow decimal.Decimal `json:"outflow"`
	Net     decimal.Decimal `json:"net"`
}

// TrendBucket is one time bucket of a trend series.
type TrendBucket struct {
	Start   time.Time       `json:"start"`
	Inflow  decimal.Decimal `json:"inflow"`
	Outflow decimal.Decimal `json:"outflow"`
	Net     decimal.Decimal `json:"net"`
	Count   int             `json:"count"`
}

// Result is the structured answer to an analytics query. It carries the
// resolved intent and window plus the computed values, so the notification
// formatter can render it without re-deriving any semantics. Only the
// fields relevant to the intent are populated.
type Result struct {
	Intent   Intent    `json:"intent"`
	Wallet   string    `json:"wallet"`
	Address  string    `json:"address"`
	Window   TimeRange `json:"window"`
	Question string    `json:"question"`

	Direction *ledger.Direction `json:"direction,omitempty"` // filter applied, if any

	Balance       *decimal.Decimal            `json:"balance,omitempty"`
	Count         *int                        `json:"count,omitempty"`
	Flow          *FlowSummary                `json:"flow,omitempty"`
	Largest       *ledger.TransactionRecord   `json:"largest,omitempty"`
	Transactions  []*ledger.TransactionRecord `json:"transactions,omitempty"`
	TokenHoldings []TokenFlow                 `json:"token_holdings,omitempty"`

	CompareWindow *TimeRange   `json:"compare_window,omitempty"`
	CompareFlow   *FlowSummary `json:"compare_flow,omitempty"`

	Trend      []TrendBucket `json:"trend,omitempty"`
	BucketSize string        `json:"bucket_size,omitempty"` // "hour" or "day"
}

// ResolutionError is returned when the wallet nickname does not match any
// configured address. The engine deliberately does not guess the closest
// match; the error names exactly what failed to resolve.
type ResolutionError struct {
	Nickname string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("unknown wallet nickname %q", e.Nickname)
}

// DataUnavailableError is returned when a supplemental historical fetch
// fails. The query is abandoned rather than answered with a partial,
// misleading aggregate.
type DataUnavailableError struct {
	Window TimeRange
	Err    error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("transaction history unavailable for window %s to %s: %v",
		e.Window.Start.Format(time.RFC3339), e.Window.End.Format(time.RFC3339), e.Err)
}

func (e *DataUnavailableError) Unwrap() error {
	return e.Err
}
