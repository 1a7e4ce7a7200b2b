package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/txpulse/txpulse/service/monitor"
)

// PriceLookup returns the current fiat (USD) price for a token symbol.
// The second return is false when no price is available; formatting then
// degrades to amounts without fiat equivalents.
type PriceLookup interface {
	USDPrice(ctx context.Context, symbol string) (decimal.Decimal, bool)
}

// Formatter renders change events into notification text. Prices are
// optional; a nil PriceLookup disables fiat amounts entirely.
type Formatter struct {
	prices PriceLookup
}

// NewFormatter creates a formatter. prices may be nil.
func NewFormatter(prices PriceLookup) *Formatter {
	return &Formatter{prices: prices}
}

// Format renders one change event into a deliverable notification.
func (f *Formatter) Format(ctx context.Context, ev monitor.ChangeEvent) *Notification {
	return &Notification{
		Wallet:      ev.AddressNickname,
		Kind:        ev.Kind,
		Body:        f.body(ctx, ev),
		Event:       ev,
		PublishedAt: time.Now().UTC(),
	}
}

func (f *Formatter) body(ctx context.Context, ev monitor.ChangeEvent) string {
	rec := ev.Record
	var b strings.Builder

	switch ev.Kind {
	case monitor.KindStatusTransition:
		fmt.Fprintf(&b, "[%s] transaction confirmed\n", ev.AddressNickname)
	default:
		fmt.Fprintf(&b, "[%s] %s transaction detected\n", ev.AddressNickname, rec.Direction)
	}

	fmt.Fprintf(&b, "  amount: %s SOL%s\n", rec.Amount.String(), f.fiatSuffix(ctx, "SOL", rec.Amount))
	if rec.Fee.Sign() > 0 {
		fmt.Fprintf(&b, "  fee: %s SOL\n", rec.Fee.String())
	}
	for _, tt := range rec.TokenTransfers {
		label := tt.Symbol
		if label == "" {
			label = tt.Mint
		}
		fmt.Fprintf(&b, "  token: %s %s%s\n", tt.Amount.String(), label, f.fiatSuffix(ctx, tt.Symbol, tt.Amount))
	}
	if rec.Counterparty != "" {
		fmt.Fprintf(&b, "  counterparty: %s\n", rec.Counterparty)
	}
	fmt.Fprintf(&b, "  status: %s\n", rec.Status)
	if !rec.Timestamp.IsZero() {
		fmt.Fprintf(&b, "  time: %s\n", rec.Timestamp.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "  tx: %s", rec.ID)

	return b.String()
}

// fiatSuffix renders " (~$123.45)" when a price is known, "" otherwise.
func (f *Formatter) fiatSuffix(ctx context.Context, symbol string, amount decimal.Decimal) string {
	if f.prices == nil || symbol == "" {
		return ""
	}
	price, ok := f.prices.USDPrice(ctx, symbol)
	if !ok {
		return ""
	}
	usd := amount.Abs().Mul(price)
	return fmt.Sprintf(" (~$%s)", usd.Round(2).String())
}
