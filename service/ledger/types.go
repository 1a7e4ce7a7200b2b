package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction indicates whether value flowed into or out of the watched address.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Status is the confirmation status of a transaction. The transition is
// one-way: once a transaction is Confirmed it never goes back to Pending.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
)

// TokenTransfer is a single token movement within a transaction.
// Amount is signed relative to the watched address (negative = sent away).
type TokenTransfer struct {
	Mint   string          `json:"mint"`
	Symbol string          `json:"symbol,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

// TransactionRecord is a parsed transaction as seen from one watched address.
// This is our domain model, independent of the RPC response format.
//
// ID is the transaction signature and is stable across polls: the same
// on-chain transaction always produces the same ID, which is what the change
// detector diffs on. Amount is in SOL (main unit), signed: positive for
// incoming, negative for outgoing. The outgoing amount excludes the network
// fee, which is reported separately in Fee.
type TransactionRecord struct {
	ID             string          `json:"id"`
	Address        string          `json:"address"`
	Direction      Direction       `json:"direction"`
	Amount         decimal.Decimal `json:"amount"`
	Fee            decimal.Decimal `json:"fee"`
	TokenTransfers []TokenTransfer `json:"token_transfers,omitempty"`
	Status         Status          `json:"status"`
	Timestamp      time.Time       `json:"timestamp"` // zero while pending
	Counterparty   string          `json:"counterparty,omitempty"`
	Slot           uint64          `json:"slot"`
}

// Confirmed reports whether the record has reached its final status.
func (r *TransactionRecord) Confirmed() bool {
	return r.Status == StatusConfirmed
}
