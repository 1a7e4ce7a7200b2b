package ledger

import (
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

const lamportsPerSOLExp = -9 // 1 SOL = 10^9 lamports

// signatureToRecord builds a metadata-only record from the signature list.
// Used as a fallback when full transaction details cannot be fetched or
// parsed; the id, slot, timestamp and status are still correct, so the
// change detector can track the transaction even without amounts.
func signatureToRecord(sig *rpc.TransactionSignature, address solana.PublicKey) *TransactionRecord {
	rec := &TransactionRecord{
		ID:        sig.Signature.String(),
		Address:   address.String(),
		Direction: DirectionIncoming,
		Amount:    decimal.Zero,
		Fee:       decimal.Zero,
		Slot:      sig.Slot,
		Status:    statusFromSignature(sig),
	}
	if sig.BlockTime != nil {
		rec.Timestamp = sig.BlockTime.Time()
	}
	return rec
}

// statusFromSignature maps the RPC confirmation status onto our two-state
// model: only "finalized" counts as Confirmed, everything earlier is Pending.
func statusFromSignature(sig *rpc.TransactionSignature) Status {
	if sig.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
		return StatusConfirmed
	}
	return StatusPending
}

// parseRecord extracts a domain record from a full transaction result as
// seen from the watched address.
//
// Amounts come from the address's pre/post balance delta rather than from
// decoding individual instructions: the delta is what actually happened to
// the wallet, regardless of which program moved the lamports. The network
// fee is backed out of the delta when the watched address was the fee payer,
// so Amount reflects the transfer itself and Fee is reported separately.
func parseRecord(sig *rpc.TransactionSignature, result *rpc.GetTransactionResult, owner solana.PublicKey) (*TransactionRecord, error) {
	if result == nil || result.Meta == nil {
		return nil, fmt.Errorf("transaction result has no metadata")
	}
	meta := result.Meta

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	keys := tx.Message.AccountKeys
	ownerIdx := -1
	for i, key := range keys {
		if key.Equals(owner) {
			ownerIdx = i
			break
		}
	}
	if ownerIdx < 0 || ownerIdx >= len(meta.PreBalances) || ownerIdx >= len(meta.PostBalances) {
		return nil, fmt.Errorf("watched address %s not found in transaction accounts", owner)
	}

	rawDelta := int64(meta.PostBalances[ownerIdx]) - int64(meta.PreBalances[ownerIdx])

	// Index 0 is always the fee payer.
	var feeLamports int64
	if ownerIdx == 0 {
		feeLamports = int64(meta.Fee)
	}
	transferLamports := rawDelta + feeLamports

	rec := &TransactionRecord{
		ID:      sig.Signature.String(),
		Address: owner.String(),
		Amount:  decimal.New(transferLamports, lamportsPerSOLExp),
		Fee:     decimal.New(feeLamports, lamportsPerSOLExp),
		Slot:    sig.Slot,
		Status:  statusFromSignature(sig),
	}

	if sig.BlockTime != nil {
		rec.Timestamp = sig.BlockTime.Time()
	} else if result.BlockTime != nil {
		rec.Timestamp = result.BlockTime.Time()
	}

	rec.TokenTransfers = parseTokenTransfers(meta, owner)

	switch {
	case transferLamports > 0:
		rec.Direction = DirectionIncoming
	case transferLamports < 0:
		rec.Direction = DirectionOutgoing
	default:
		rec.Direction = tokenDirection(rec.TokenTransfers)
	}

	rec.Counterparty = findCounterparty(meta, keys, ownerIdx, transferLamports)

	return rec, nil
}

// parseTokenTransfers computes the net token movement per mint for the
// watched address from the pre/post token balances.
func parseTokenTransfers(meta *rpc.TransactionMeta, owner solana.PublicKey) []TokenTransfer {
	net := make(map[string]decimal.Decimal)

	for _, tb := range meta.PreTokenBalances {
		if tb.Owner == nil || !tb.Owner.Equals(owner) {
			continue
		}
		mint := tb.Mint.String()
		net[mint] = net[mint].Sub(tokenAmount(tb))
	}
	for _, tb := range meta.PostTokenBalances {
		if tb.Owner == nil || !tb.Owner.Equals(owner) {
			continue
		}
		mint := tb.Mint.String()
		net[mint] = net[mint].Add(tokenAmount(tb))
	}

	var transfers []TokenTransfer
	for mint, amount := range net {
		if amount.IsZero() {
			continue
		}
		transfers = append(transfers, TokenTransfer{
			Mint:   mint,
			Symbol: SymbolForMint(mint),
			Amount: amount,
		})
	}
	sort.Slice(transfers, func(i, j int) bool { return transfers[i].Mint < transfers[j].Mint })
	return transfers
}

// tokenAmount converts a raw token balance into a decimal in the token's
// main unit.
func tokenAmount(tb rpc.TokenBalance) decimal.Decimal {
	if tb.UiTokenAmount == nil {
		return decimal.Zero
	}
	raw, err := decimal.NewFromString(tb.UiTokenAmount.Amount)
	if err != nil {
		return decimal.Zero
	}
	return raw.Shift(-int32(tb.UiTokenAmount.Decimals))
}

// tokenDirection derives a direction from token movement when the SOL delta
// is zero (pure token transfers still pay a fee from the token account's
// owner but may leave the SOL balance unchanged from our perspective).
func tokenDirection(transfers []TokenTransfer) Direction {
	net := decimal.Zero
	for _, t := range transfers {
		net = net.Add(t.Amount)
	}
	if net.Sign() < 0 {
		return DirectionOutgoing
	}
	return DirectionIncoming
}

// findCounterparty picks the account with the largest balance change in the
// opposite direction of the watched address's transfer. Best effort: returns
// "" when no account moved the other way (e.g. fee-only transactions).
func findCounterparty(meta *rpc.TransactionMeta, keys []solana.PublicKey, ownerIdx int, transferLamports int64) string {
	if transferLamports == 0 {
		return ""
	}

	n := len(keys)
	if len(meta.PreBalances) < n {
		n = len(meta.PreBalances)
	}
	if len(meta.PostBalances) < n {
		n = len(meta.PostBalances)
	}

	best := -1
	var bestMagnitude int64
	for i := 0; i < n; i++ {
		if i == ownerIdx {
			continue
		}
		delta := int64(meta.PostBalances[i]) - int64(meta.PreBalances[i])
		// Counterparty moved opposite to us.
		if delta == 0 || (delta > 0) == (transferLamports > 0) {
			continue
		}
		magnitude := delta
		if magnitude < 0 {
			magnitude = -magnitude
		}
		if magnitude > bestMagnitude {
			bestMagnitude = magnitude
			best = i
		}
	}

	if best < 0 {
		return ""
	}
	return keys[best].String()
}
