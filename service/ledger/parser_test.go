package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	watchedAddr = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	senderAddr  = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	usdcMint    = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	testSig = solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
)

// makeTxEnvelope builds a TransactionResultEnvelope for a transaction with
// the given account keys. The envelope's fields are unexported, so we go
// through JSON the way the RPC response itself would.
func makeTxEnvelope(t *testing.T, accountKeys []solana.PublicKey) *rpc.TransactionResultEnvelope {
	t.Helper()

	tx := &solana.Transaction{
		Message: solana.Message{AccountKeys: accountKeys},
	}
	txJSON, err := json.Marshal(tx)
	require.NoError(t, err)

	var temp struct {
		Transaction json.RawMessage `json:"transaction"`
	}
	temp.Transaction = txJSON

	envelopeJSON, err := json.Marshal(temp)
	require.NoError(t, err)

	var result rpc.GetTransactionResult
	require.NoError(t, json.Unmarshal(envelopeJSON, &result))
	return result.Transaction
}

func finalizedSig(sig solana.Signature, blockTime time.Time) *rpc.TransactionSignature {
	bt := solana.UnixTimeSeconds(blockTime.Unix())
	return &rpc.TransactionSignature{
		Signature:          sig,
		Slot:               100,
		BlockTime:          &bt,
		ConfirmationStatus: rpc.ConfirmationStatusFinalized,
	}
}

func TestStatusFromSignature(t *testing.T) {
	tests := []struct {
		confirmation rpc.ConfirmationStatusType
		want         Status
	}{
		{rpc.ConfirmationStatusFinalized, StatusConfirmed},
		{rpc.ConfirmationStatusConfirmed, StatusPending},
		{rpc.ConfirmationStatusProcessed, StatusPending},
		{"", StatusPending},
	}
	for _, tt := range tests {
		sig := &rpc.TransactionSignature{ConfirmationStatus: tt.confirmation}
		assert.Equal(t, tt.want, statusFromSignature(sig), "confirmation %q", tt.confirmation)
	}
}

func TestSignatureToRecord(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	sig := finalizedSig(testSig, now)

	rec := signatureToRecord(sig, watchedAddr)

	assert.Equal(t, testSig.String(), rec.ID)
	assert.Equal(t, watchedAddr.String(), rec.Address)
	assert.Equal(t, StatusConfirmed, rec.Status)
	assert.Equal(t, uint64(100), rec.Slot)
	assert.True(t, rec.Amount.IsZero())
	assert.True(t, rec.Fee.IsZero())
	assert.Equal(t, now.Unix(), rec.Timestamp.Unix())
}

func TestSignatureToRecord_NoBlockTime(t *testing.T) {
	sig := &rpc.TransactionSignature{Signature: testSig, Slot: 100}

	rec := signatureToRecord(sig, watchedAddr)

	assert.Equal(t, StatusPending, rec.Status)
	assert.True(t, rec.Timestamp.IsZero())
}

func TestParseRecord_IncomingTransfer(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	sig := finalizedSig(testSig, now)

	// Watched address at index 1: not the fee payer. It gained 1 SOL,
	// the sender paid the transfer plus the 5000 lamport fee.
	result := &rpc.GetTransactionResult{
		Transaction: makeTxEnvelope(t, []solana.PublicKey{senderAddr, watchedAddr}),
		Meta: &rpc.TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{5_000_000_000, 1_000_000_000},
			PostBalances: []uint64{3_999_995_000, 2_000_000_000},
		},
	}

	rec, err := parseRecord(sig, result, watchedAddr)
	require.NoError(t, err)

	assert.Equal(t, DirectionIncoming, rec.Direction)
	assert.True(t, rec.Amount.Equal(decimal.RequireFromString("1")), "amount was %s", rec.Amount)
	assert.True(t, rec.Fee.IsZero(), "non fee payer reports no fee")
	assert.Equal(t, senderAddr.String(), rec.Counterparty)
	assert.Equal(t, StatusConfirmed, rec.Status)
	assert.Equal(t, now.Unix(), rec.Timestamp.Unix())
}

func TestParseRecord_OutgoingBacksOutFee(t *testing.T) {
	sig := finalizedSig(testSig, time.Now())

	// Watched address at index 0: the fee payer. The raw delta includes the
	// fee; Amount must reflect the 1 SOL transfer alone.
	result := &rpc.GetTransactionResult{
		Transaction: makeTxEnvelope(t, []solana.PublicKey{watchedAddr, senderAddr}),
		Meta: &rpc.TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{2_000_000_000, 1_000_000_000},
			PostBalances: []uint64{999_995_000, 2_000_000_000},
		},
	}

	rec, err := parseRecord(sig, result, watchedAddr)
	require.NoError(t, err)

	assert.Equal(t, DirectionOutgoing, rec.Direction)
	assert.True(t, rec.Amount.Equal(decimal.RequireFromString("-1")), "amount was %s", rec.Amount)
	assert.True(t, rec.Fee.Equal(decimal.RequireFromString("0.000005")), "fee was %s", rec.Fee)
	assert.Equal(t, senderAddr.String(), rec.Counterparty)
}

func TestParseRecord_TokenTransfer(t *testing.T) {
	sig := finalizedSig(testSig, time.Now())

	owner := watchedAddr
	other := senderAddr
	result := &rpc.GetTransactionResult{
		Transaction: makeTxEnvelope(t, []solana.PublicKey{senderAddr, watchedAddr}),
		Meta: &rpc.TransactionMeta{
			// SOL balances unchanged: a pure token movement.
			PreBalances:  []uint64{1_000_000_000, 1_000_000_000},
			PostBalances: []uint64{1_000_000_000, 1_000_000_000},
			PreTokenBalances: []rpc.TokenBalance{
				{Mint: usdcMint, Owner: &owner, UiTokenAmount: &rpc.UiTokenAmount{Amount: "100000000", Decimals: 6}},
				{Mint: usdcMint, Owner: &other, UiTokenAmount: &rpc.UiTokenAmount{Amount: "0", Decimals: 6}},
			},
			PostTokenBalances: []rpc.TokenBalance{
				{Mint: usdcMint, Owner: &owner, UiTokenAmount: &rpc.UiTokenAmount{Amount: "75000000", Decimals: 6}},
				{Mint: usdcMint, Owner: &other, UiTokenAmount: &rpc.UiTokenAmount{Amount: "25000000", Decimals: 6}},
			},
		},
	}

	rec, err := parseRecord(sig, result, watchedAddr)
	require.NoError(t, err)

	require.Len(t, rec.TokenTransfers, 1, "the other owner's balances must not count")
	transfer := rec.TokenTransfers[0]
	assert.Equal(t, usdcMint.String(), transfer.Mint)
	assert.Equal(t, "USDC", transfer.Symbol)
	assert.True(t, transfer.Amount.Equal(decimal.RequireFromString("-25")), "amount was %s", transfer.Amount)

	// Zero SOL delta: direction comes from the token movement
	assert.Equal(t, DirectionOutgoing, rec.Direction)
	assert.True(t, rec.Amount.IsZero())
	assert.Empty(t, rec.Counterparty)
}

func TestParseRecord_NoMetadata(t *testing.T) {
	sig := finalizedSig(testSig, time.Now())

	_, err := parseRecord(sig, nil, watchedAddr)
	assert.Error(t, err)

	_, err = parseRecord(sig, &rpc.GetTransactionResult{}, watchedAddr)
	assert.Error(t, err)
}

func TestParseRecord_WatchedAddressAbsent(t *testing.T) {
	sig := finalizedSig(testSig, time.Now())

	result := &rpc.GetTransactionResult{
		Transaction: makeTxEnvelope(t, []solana.PublicKey{senderAddr}),
		Meta: &rpc.TransactionMeta{
			PreBalances:  []uint64{1_000_000_000},
			PostBalances: []uint64{1_000_000_000},
		},
	}

	_, err := parseRecord(sig, result, watchedAddr)
	assert.ErrorContains(t, err, "not found in transaction accounts")
}

func TestTokenAmount(t *testing.T) {
	assert.True(t, tokenAmount(rpc.TokenBalance{}).IsZero())

	got := tokenAmount(rpc.TokenBalance{
		UiTokenAmount: &rpc.UiTokenAmount{Amount: "2500000", Decimals: 6},
	})
	assert.True(t, got.Equal(decimal.RequireFromString("2.5")), "amount was %s", got)
}

func TestFindCounterparty_PicksLargestOppositeMover(t *testing.T) {
	third := solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")
	keys := []solana.PublicKey{watchedAddr, senderAddr, third}

	// Watched gained 3 SOL; two accounts lost, the bigger loser is the
	// counterparty.
	meta := &rpc.TransactionMeta{
		PreBalances:  []uint64{1_000_000_000, 3_000_000_000, 2_000_000_000},
		PostBalances: []uint64{4_000_000_000, 1_000_000_000, 1_000_000_000},
	}
	got := findCounterparty(meta, keys, 0, 3_000_000_000)
	assert.Equal(t, senderAddr.String(), got)
}

func TestFindCounterparty_FeeOnly(t *testing.T) {
	keys := []solana.PublicKey{watchedAddr, senderAddr}
	meta := &rpc.TransactionMeta{
		PreBalances:  []uint64{1_000_000_000, 1_000_000_000},
		PostBalances: []uint64{999_995_000, 1_000_000_000},
	}
	assert.Empty(t, findCounterparty(meta, keys, 0, 0))
}
