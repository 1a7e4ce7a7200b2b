package analytics

import (
	"regexp"
	"strings"

	"github.com/txpulse/txpulse/service/ledger"
)

// intentMatcher pairs a compiled pattern with the intent it selects.
// Matchers run in priority order: the first hit wins, and questions that
// match nothing fall through to TransactionList over the default window, so
// an unrecognized question can never silently produce a misleading number.
type intentMatcher struct {
	pattern *regexp.Regexp
	intent  Intent
}

var intentMatchers = []intentMatcher{
	// Comparison has to outrank trend and flow: "compare this week to last
	// week" also contains window phrases that other matchers would claim.
	{regexp.MustCompile(`\b(compare|compared|comparison|versus|vs\.?)\b|\bthan (last|the previous)\b`), IntentComparisonOverTime},
	{regexp.MustCompile(`\b(trend|over time|per day|per hour|daily|hourly|breakdown by|history of activity)\b`), IntentTrendOverTime},
	{regexp.MustCompile(`\btokens?\b|\btoken holdings?\b`), IntentTokenHoldings},
	{regexp.MustCompile(`\b(balance|how much (do|does|is)\b.*\b(have|hold|worth))\b`), IntentCurrentBalance},
	{regexp.MustCompile(`\b(largest|biggest|max|maximum|highest)\b`), IntentLargestTransaction},
	{regexp.MustCompile(`\bhow many\b|\bcount\b|\bnumber of\b`), IntentCount},
	{regexp.MustCompile(`\b(flow|inflow|outflow|net|in and out|summary|total (received|sent))\b`), IntentFlowSummary},
	{regexp.MustCompile(`\b(show|list|display|what|which)\b.*\b(transactions?|transfers?|activity|payments?)\b`), IntentTransactionList},
}

var (
	incomingPattern = regexp.MustCompile(`\b(received?|incoming|deposits?|credited)\b`)
	outgoingPattern = regexp.MustCompile(`\b(sent|outgoing|spent|paid|withdrawals?|debited)\b`)
)

// classifyIntent maps free-form question text onto the closed intent set and
// extracts an optional direction filter. Classification is lexical: keyword
// and pattern matching, not a fixed command grammar.
func classifyIntent(question string) (Intent, *ledger.Direction) {
	q := strings.ToLower(strings.TrimSpace(question))

	intent := IntentTransactionList
	for _, m := range intentMatchers {
		if m.pattern.MatchString(q) {
			intent = m.intent
			break
		}
	}

	var direction *ledger.Direction
	in := incomingPattern.MatchString(q)
	out := outgoingPattern.MatchString(q)
	switch {
	case in && !out:
		d := ledger.DirectionIncoming
		direction = &d
	case out && !in:
		d := ledger.DirectionOutgoing
		direction = &d
	}

	// A direction filter makes no sense for balance or token holdings.
	if intent == IntentCurrentBalance || intent == IntentTokenHoldings {
		direction = nil
	}

	return intent, direction
}
