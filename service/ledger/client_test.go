package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSig2 = solana.MustSignatureFromBase58("2TgM4N8qCMqLvfR8dxqTQgKygPNzT5KQkN5b5sT7eZPEkdxyLTXGnNQB3j7KG4DPFg5Qez5yNJBQRQ5r7DDnFfjG")
	testSig3 = solana.MustSignatureFromBase58("3LzUfBWvh7uN5sNTVPkbDGq5SNrPBKDYTJqFmH8nHq6Z9VGJ7iCxB2rLFZsKrQNuJfTnKQ5D5YqGrNqvnKQZXMQE")
)

// mockRPCClient implements RPCClient for testing. It is behavior-focused: we
// set what it should return, not verify call sequences. Signatures are held
// newest first, the order the real RPC returns them, and the mock honors the
// Until, Before and Limit options the same way the node does.
type mockRPCClient struct {
	signatures   []*rpc.TransactionSignature
	transactions map[string]*rpc.GetTransactionResult
	err          error

	lastSigOpts *rpc.GetSignaturesForAddressOpts
}

func (m *mockRPCClient) GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	m.lastSigOpts = opts
	if m.err != nil {
		return nil, m.err
	}

	started := opts == nil || opts.Before.IsZero()
	var out []*rpc.TransactionSignature
	for _, sig := range m.signatures {
		if !started {
			if sig.Signature == opts.Before {
				started = true
			}
			continue
		}
		if opts != nil && !opts.Until.IsZero() && sig.Signature == opts.Until {
			break
		}
		out = append(out, sig)
		if opts != nil && opts.Limit != nil && len(out) >= *opts.Limit {
			break
		}
	}
	return out, nil
}

func (m *mockRPCClient) GetTransaction(ctx context.Context, signature solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	// A missing entry returns (nil, nil) like a node that has pruned the
	// transaction, which exercises the metadata-only fallback.
	return m.transactions[signature.String()], nil
}

func newTestClient(mock *mockRPCClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(mock, "test", time.Second, nil, logger)
}

// incomingResult is a full transaction result where the watched address,
// at index 1, received 1 SOL.
func incomingResult(t *testing.T) *rpc.GetTransactionResult {
	t.Helper()
	return &rpc.GetTransactionResult{
		Transaction: makeTxEnvelope(t, []solana.PublicKey{senderAddr, watchedAddr}),
		Meta: &rpc.TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{5_000_000_000, 1_000_000_000},
			PostBalances: []uint64{3_999_995_000, 2_000_000_000},
		},
	}
}

func TestFetchTransactions_ParsesFullRecords(t *testing.T) {
	now := time.Now()
	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{
			finalizedSig(testSig2, now),
			finalizedSig(testSig, now.Add(-time.Hour)),
		},
		transactions: map[string]*rpc.GetTransactionResult{
			testSig.String():  incomingResult(t),
			testSig2.String(): incomingResult(t),
		},
	}
	client := newTestClient(mock)

	records, err := client.FetchTransactions(context.Background(), FetchParams{Address: watchedAddr})
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first, as fetched
	assert.Equal(t, testSig2.String(), records[0].ID)
	assert.Equal(t, testSig.String(), records[1].ID)
	assert.True(t, records[0].Amount.Equal(decimal.RequireFromString("1")), "amount was %s", records[0].Amount)
	assert.Equal(t, DirectionIncoming, records[0].Direction)

	// The default page size reached the node
	require.NotNil(t, mock.lastSigOpts.Limit)
	assert.Equal(t, 100, *mock.lastSigOpts.Limit)
}

func TestFetchTransactions_SkipsFailedTransactions(t *testing.T) {
	failed := finalizedSig(testSig, time.Now())
	failed.Err = map[string]interface{}{"InstructionError": []interface{}{0, "InsufficientFunds"}}

	mock := &mockRPCClient{signatures: []*rpc.TransactionSignature{failed}}
	client := newTestClient(mock)

	records, err := client.FetchTransactions(context.Background(), FetchParams{Address: watchedAddr})
	require.NoError(t, err)
	assert.Empty(t, records, "failed transactions move no value")
}

func TestFetchTransactions_MetadataFallback(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{finalizedSig(testSig, now)},
		// No transaction details available
	}
	client := newTestClient(mock)

	records, err := client.FetchTransactions(context.Background(), FetchParams{Address: watchedAddr})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, testSig.String(), rec.ID)
	assert.Equal(t, StatusConfirmed, rec.Status)
	assert.Equal(t, now.Unix(), rec.Timestamp.Unix())
	assert.True(t, rec.Amount.IsZero(), "amounts are unknown without details")
}

func TestFetchTransactions_SinceMarker(t *testing.T) {
	now := time.Now()
	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{
			finalizedSig(testSig3, now),
			finalizedSig(testSig2, now.Add(-time.Hour)),
			finalizedSig(testSig, now.Add(-2*time.Hour)),
		},
	}
	client := newTestClient(mock)

	records, err := client.FetchTransactions(context.Background(), FetchParams{
		Address: watchedAddr,
		SinceID: testSig2.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, testSig2, mock.lastSigOpts.Until)

	// Only what came after the marker
	require.Len(t, records, 1)
	assert.Equal(t, testSig3.String(), records[0].ID)
}

func TestFetchTransactions_MalformedMarkerIgnored(t *testing.T) {
	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{finalizedSig(testSig, time.Now())},
	}
	client := newTestClient(mock)

	records, err := client.FetchTransactions(context.Background(), FetchParams{
		Address: watchedAddr,
		SinceID: "not-a-signature",
	})
	require.NoError(t, err)
	assert.True(t, mock.lastSigOpts.Until.IsZero())
	assert.Len(t, records, 1)
}

func TestFetchTransactions_RPCError(t *testing.T) {
	mock := &mockRPCClient{err: errors.New("node unavailable")}
	client := newTestClient(mock)

	_, err := client.FetchTransactions(context.Background(), FetchParams{Address: watchedAddr})
	assert.Error(t, err)
}

func TestFetchWindow(t *testing.T) {
	now := time.Now()
	var unplacedSig solana.Signature
	unplacedSig[0] = 0xAB
	noBlockTime := &rpc.TransactionSignature{
		Signature:          unplacedSig,
		ConfirmationStatus: rpc.ConfirmationStatusFinalized,
	}

	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{
			finalizedSig(testSig2, now.Add(-30*time.Minute)), // after the window
			noBlockTime,                                      // unplaceable, skipped
			finalizedSig(testSig, now.Add(-2*time.Hour)),     // inside
			finalizedSig(testSig3, now.Add(-4*time.Hour)),    // before the window
		},
	}
	client := newTestClient(mock)

	records, err := client.FetchWindow(context.Background(), watchedAddr, now.Add(-3*time.Hour), now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, testSig.String(), records[0].ID)
}
